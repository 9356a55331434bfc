package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sherine-k/intersection/pkg/config"
)

// Simulator runs the intersection: four approach actors and one coordinator
// sharing a store
type Simulator struct {
	config *config.Config
	log    logrus.FieldLogger
	events *EventLog
	now    func() time.Time

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex
	running   bool
	torn      bool
	cancel    context.CancelFunc
	actors    sync.WaitGroup
	control   sync.WaitGroup

	// mu guards the backend references. The backend is built on first use
	// and replaced by Start after a Stop.
	mu          sync.RWMutex
	store       Store
	stats       StatsSink
	approaches  map[Direction]*Approach
	coordinator *Coordinator
}

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger used by the simulator and its actors
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Simulator) {
		s.log = logger
	}
}

// WithClock overrides the wall clock used for arrival timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// NewSimulator creates a new simulator with an empty intersection
func NewSimulator(cfg *config.Config, opts ...Option) *Simulator {
	s := &Simulator{
		config: cfg,
		log:    logrus.StandardLogger(),
		events: NewEventLog(cfg.EventLogSize),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBackend(backend config.Backend) (Store, StatsSink) {
	if backend == config.BackendIsolated {
		return NewBrokerStore(), NewChannelStats()
	}
	return NewMemoryStore(), NewLockedStats()
}

// Run starts the simulation and stops it after the configured duration or
// when ctx is cancelled. A zero duration runs until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start simulation: %w", err)
	}
	defer s.Stop()

	if s.config.SimulationDuration <= 0 {
		<-ctx.Done()
		return nil
	}

	timer := time.NewTimer(s.config.SimulationDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return nil
}

// Start spins up the approach actors and the coordinator. Starting a running
// simulator does nothing; starting after Stop begins on a fresh store.
func (s *Simulator) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running {
		s.log.Debug("simulation already running")
		return nil
	}

	s.mu.Lock()
	if s.store == nil || s.torn {
		s.store, s.stats = newBackend(s.config.Backend)
		s.torn = false
	}
	store, stats := s.store, s.stats

	approaches := make(map[Direction]*Approach, len(Directions))
	signals := make(map[Direction]Signal, len(Directions))
	for _, d := range Directions {
		a := NewApproach(d, s.config, store, stats, s.events, s.log)
		approaches[d] = a
		signals[d] = a
	}
	coordinator := NewCoordinator(s.config, store, signals, s.events, s.log)
	s.approaches = approaches
	s.coordinator = coordinator
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, a := range approaches {
		s.actors.Add(1)
		go func(a *Approach) {
			defer s.actors.Done()
			if err := a.Run(ctx); err != nil {
				s.log.WithError(err).WithField("approach", a.Direction().String()).Error("approach stopped")
			}
		}(a)
	}

	s.control.Add(1)
	go func() {
		defer s.control.Done()
		if err := coordinator.Run(ctx); err != nil {
			s.log.WithError(err).Error("coordinator stopped")
		}
	}()

	s.running = true
	s.log.WithField("backend", string(s.config.Backend)).Info("simulation started")
	return nil
}

// Stop signals every actor, waits for all of them and tears the store down.
// On a simulator that is not running it only releases a backend that
// AddVehicle built before any Start.
func (s *Simulator) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running {
		s.release()
		return
	}
	s.running = false
	s.cancel()

	// The coordinator is the only sender of color commands, so the command
	// channels can be closed once it has returned.
	s.control.Wait()
	s.mu.RLock()
	for _, a := range s.approaches {
		a.closeCommands()
	}
	store, stats := s.store, s.stats
	s.mu.RUnlock()
	s.actors.Wait()

	store.Close()
	stats.Close()

	s.mu.Lock()
	s.torn = true
	s.mu.Unlock()

	counters := store.Counters()
	s.log.WithFields(logrus.Fields{
		"cycle":     counters.Cycle,
		"completed": counters.Completed,
	}).Info("simulation stopped")
}

// release closes a backend that was built by AddVehicle but never started
func (s *Simulator) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil || s.torn {
		return
	}
	s.store.Close()
	s.stats.Close()
	s.torn = true
}

// Running reports whether the actors are active
func (s *Simulator) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.running
}

// backend returns nil values before the first AddVehicle or Start
func (s *Simulator) backend() (Store, StatsSink) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store, s.stats
}

// ensureBackend builds the backend on first use. A torn-down backend is
// kept so its final state stays readable until the next Start.
func (s *Simulator) ensureBackend() Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		s.store, s.stats = newBackend(s.config.Backend)
	}
	return s.store
}

// AddVehicle injects a vehicle at the spawn position of dir. It is safe to
// call while the actors are running. Vehicles added before Start wait for
// it; Stop releases them if Start never comes.
func (s *Simulator) AddVehicle(dir Direction, emergency bool) (Vehicle, error) {
	if !dir.Valid() {
		return Vehicle{}, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	store := s.ensureBackend()

	v := Vehicle{
		ID:        uuid.New().String(),
		Direction: dir,
		ArrivedAt: s.now(),
		Position:  s.config.Approach.SpawnPosition(),
		Emergency: emergency,
		Status:    VehicleWaiting,
	}
	err := store.Mutate(dir, func(st *ApproachState) {
		st.Vehicles = append(st.Vehicles, v)
		st.HasEmergency = st.HasEmergency || emergency
	})
	if err != nil {
		return Vehicle{}, fmt.Errorf("failed to add vehicle on %s: %w", dir, err)
	}

	kind := "vehicle"
	if emergency {
		kind = "emergency vehicle"
	}
	s.events.Add(Event{
		Type:      EventTypeVehicleAdded,
		Approach:  dir.String(),
		VehicleID: v.ID,
		Cycle:     store.Counters().Cycle,
		Message:   fmt.Sprintf("Added %s %s on %s", kind, shortID(v.ID), dir),
	})
	return v, nil
}

// GetState returns a point-in-time copy of every approach keyed by direction
// name. Before the first start, or when the store cannot be read, approaches
// are reported red and empty.
func (s *Simulator) GetState() map[string]ApproachView {
	var parts [4]ApproachState
	if store, _ := s.backend(); store != nil {
		if all, err := store.SnapshotAll(); err == nil {
			parts = all
		}
	}

	state := make(map[string]ApproachView, len(Directions))
	for _, d := range Directions {
		st := parts[d]
		vehicles := st.Vehicles
		if vehicles == nil {
			vehicles = []Vehicle{}
		}
		state[d.String()] = ApproachView{
			Color:        st.Color.String(),
			Vehicles:     vehicles,
			HasEmergency: st.HasEmergency,
		}
	}
	return state
}

// GetCurrentCycle returns the number of completed light cycles
func (s *Simulator) GetCurrentCycle() int64 {
	store, _ := s.backend()
	if store == nil {
		return 0
	}
	return store.Counters().Cycle
}

// GetCompletedVehicles returns the number of vehicles that finished all laps
func (s *Simulator) GetCompletedVehicles() int64 {
	store, _ := s.backend()
	if store == nil {
		return 0
	}
	return store.Counters().Completed
}

// GetStats returns the wait-time aggregate
func (s *Simulator) GetStats() TrafficStats {
	_, stats := s.backend()
	if stats == nil {
		return TrafficStats{}
	}
	return stats.Stats()
}

// GetPhase returns the coordinator phase, or NS_GREEN before the first start
func (s *Simulator) GetPhase() Phase {
	s.mu.RLock()
	coordinator := s.coordinator
	s.mu.RUnlock()
	if coordinator == nil {
		return PhaseNSGreen
	}
	return coordinator.Phase()
}

// GetEvents returns all retained events
func (s *Simulator) GetEvents() []Event {
	return s.events.Events()
}

// GetEventCounts returns the retained events grouped by type
func (s *Simulator) GetEventCounts() map[EventType]int {
	return s.events.CountByType()
}

// GetWarnings returns all retained warning events
func (s *Simulator) GetWarnings() []Event {
	return s.events.Warnings()
}
