package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sherine-k/intersection/pkg/config"
)

// Phase is a state of the light controller
type Phase int

const (
	PhaseNSGreen Phase = iota
	PhaseNSYellow
	PhaseAllRed1
	PhaseEWGreen
	PhaseEWYellow
	PhaseAllRed2
	PhaseEmergency
)

var phaseNames = [...]string{"NS_GREEN", "NS_YELLOW", "ALL_RED_1", "EW_GREEN", "EW_YELLOW", "ALL_RED_2", "EMERGENCY"}

func (p Phase) String() string {
	if p < PhaseNSGreen || p > PhaseEmergency {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// next returns the following phase of the normal cycle
func (p Phase) next() Phase {
	if p >= PhaseAllRed2 {
		return PhaseNSGreen
	}
	return p + 1
}

// Signal receives color commands for one approach
type Signal interface {
	SetColor(color LightColor)
}

// Coordinator runs the light-phase state machine. It is driven by Step, so a
// phase hold is a countdown checked between emergency polls rather than one
// long sleep.
type Coordinator struct {
	cfg     *config.Config
	store   Store
	signals map[Direction]Signal
	events  *EventLog
	log     logrus.FieldLogger

	mu            sync.Mutex
	started       bool
	phase         Phase
	remaining     time.Duration
	emergencyAxis Axis
}

// NewCoordinator creates a controller sending commands to signals
func NewCoordinator(cfg *config.Config, store Store, signals map[Direction]Signal, events *EventLog, logger logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		store:   store,
		signals: signals,
		events:  events,
		log:     logger.WithField("component", "coordinator"),
	}
}

// Phase returns the current phase
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Remaining returns the hold time left in the current phase
func (c *Coordinator) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Begin enters the initial phase. Calling it again has no effect.
func (c *Coordinator) Begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.enter(PhaseNSGreen)
}

// Run steps the machine every emergency poll until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) error {
	c.Begin()

	poll := c.cfg.EmergencyPoll
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Step(poll)
		}
	}
}

// Step advances the machine by dt. Emergencies are checked first and
// override the phase timer.
func (c *Coordinator) Step(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.started = true
		c.enter(PhaseNSGreen)
	}

	if dir, ok := c.firstEmergency(); ok {
		if c.phase != PhaseEmergency || c.emergencyAxis != dir.Axis() {
			c.preempt(dir)
		}
		return
	}

	if c.phase == PhaseEmergency {
		c.log.Info("emergency cleared, restarting cycle")
		c.events.Add(Event{
			Type:    EventTypePreemptionEnded,
			Phase:   PhaseEmergency.String(),
			Cycle:   c.store.Counters().Cycle,
			Message: "Emergency cleared, cycle restarts at NS_GREEN",
		})
		c.enter(PhaseNSGreen)
		return
	}

	c.remaining -= dt
	if c.remaining > 0 {
		return
	}

	if c.phase == PhaseAllRed2 {
		cycle := c.store.IncrementCycle()
		c.log.WithField("cycle", cycle).Debug("cycle completed")
		c.events.Add(Event{
			Type:    EventTypeCycleCompleted,
			Cycle:   cycle,
			Message: fmt.Sprintf("Cycle %d started", cycle),
		})
	}
	c.enter(c.phase.next())
}

func (c *Coordinator) enter(p Phase) {
	from := c.phase
	c.phase = p
	c.remaining = c.holdTime(p)

	switch p {
	case PhaseNSGreen:
		c.send(AxisEW, Red)
		c.send(AxisNS, Green)
	case PhaseNSYellow:
		c.send(AxisNS, Yellow)
	case PhaseEWGreen:
		c.send(AxisNS, Red)
		c.send(AxisEW, Green)
	case PhaseEWYellow:
		c.send(AxisEW, Yellow)
	case PhaseAllRed1, PhaseAllRed2:
		c.send(AxisNS, Red)
		c.send(AxisEW, Red)
	}

	c.log.WithFields(logrus.Fields{"from": from.String(), "phase": p.String()}).Debug("phase changed")
	c.events.Add(Event{
		Type:    EventTypePhaseChanged,
		Phase:   p.String(),
		Cycle:   c.store.Counters().Cycle,
		Message: fmt.Sprintf("Phase %s -> %s", from, p),
	})
}

func (c *Coordinator) preempt(dir Direction) {
	axis := dir.Axis()
	c.phase = PhaseEmergency
	c.emergencyAxis = axis
	c.remaining = 0

	c.send(axis.Other(), Red)
	c.send(axis, Green)

	c.log.WithFields(logrus.Fields{"approach": dir.String(), "axis": axis.String()}).Info("emergency preemption")
	c.events.Add(Event{
		Type:      EventTypePreemptionStarted,
		Approach:  dir.String(),
		Phase:     PhaseEmergency.String(),
		Cycle:     c.store.Counters().Cycle,
		Message:   fmt.Sprintf("Emergency on %s, %s axis granted green", dir, axis),
		IsWarning: true,
	})
}

func (c *Coordinator) holdTime(p Phase) time.Duration {
	switch p {
	case PhaseNSGreen, PhaseEWGreen:
		return c.cfg.Phases.Green
	case PhaseNSYellow, PhaseEWYellow:
		return c.cfg.Phases.Yellow
	case PhaseAllRed1, PhaseAllRed2:
		return c.cfg.Phases.AllRed
	default:
		return 0
	}
}

func (c *Coordinator) send(axis Axis, color LightColor) {
	for _, d := range axis.Directions() {
		if s, ok := c.signals[d]; ok {
			s.SetColor(color)
		}
	}
}

// firstEmergency scans one snapshot of all approaches in canonical order, so
// a vehicle in the middle of a transfer is seen exactly once. An unreadable
// store counts as having no emergency.
func (c *Coordinator) firstEmergency() (Direction, bool) {
	parts, err := c.store.SnapshotAll()
	if err != nil {
		return 0, false
	}
	for _, d := range Directions {
		if parts[d].HasEmergency {
			return d, true
		}
	}
	return 0, false
}
