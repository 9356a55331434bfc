package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/sherine-k/intersection/pkg/config"
)

var errCommandsClosed = errors.New("command channel closed")

// Approach advances the vehicles of one direction on a fixed tick and obeys
// the color commands sent by the coordinator
type Approach struct {
	dir    Direction
	cfg    *config.Config
	store  Store
	stats  StatsSink
	events *EventLog
	log    logrus.FieldLogger

	commands chan LightColor

	// pending is a received command not applied yet
	pending     *LightColor
	deferLogged bool
}

// NewApproach creates the actor for one direction
func NewApproach(dir Direction, cfg *config.Config, store Store, stats StatsSink, events *EventLog, logger logrus.FieldLogger) *Approach {
	return &Approach{
		dir:      dir,
		cfg:      cfg,
		store:    store,
		stats:    stats,
		events:   events,
		log:      logger.WithField("approach", dir.String()),
		commands: make(chan LightColor, 1),
	}
}

// Direction returns the approach this actor owns
func (a *Approach) Direction() Direction {
	return a.dir
}

// SetColor queues a color command. A command that has not been picked up
// yet is replaced, so at most one command is ever pending.
func (a *Approach) SetColor(color LightColor) {
	for {
		select {
		case a.commands <- color:
			return
		default:
		}
		select {
		case <-a.commands:
		default:
		}
	}
}

// closeCommands must only be called once no more SetColor calls can happen
func (a *Approach) closeCommands() {
	close(a.commands)
}

// Run ticks until ctx is cancelled, the store is closed or the command
// channel is closed
func (a *Approach) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := a.Tick()
			if err == nil {
				continue
			}
			if errors.Is(err, ErrStoreClosed) || errors.Is(err, errCommandsClosed) {
				a.log.WithError(err).Debug("approach stopping")
				return nil
			}
			a.log.WithError(err).Warn("tick skipped")
			a.events.Add(Event{
				Type:      EventTypeTickSkipped,
				Approach:  a.dir.String(),
				Message:   fmt.Sprintf("%s tick skipped: %v", a.dir, err),
				IsWarning: true,
			})
		}
	}
}

// Tick performs one simulation step of the approach
func (a *Approach) Tick() error {
	if err := a.applyCommand(); err != nil {
		return err
	}

	counters := a.store.Counters()
	speed, gap := Dynamics(a.cfg, counters.Cycle)

	crossGreen, err := a.perpendicularGreen()
	if err != nil {
		return err
	}

	var departed, completed []Vehicle
	err = a.store.Mutate(a.dir, func(st *ApproachState) {
		kept := make([]Vehicle, 0, len(st.Vehicles))
		limit := a.cfg.Approach.EndPosition
		for _, v := range st.Vehicles {
			v = a.advance(v, st.Color, crossGreen, speed, limit)
			limit = v.Position - gap

			if v.Position >= a.cfg.Approach.EndPosition {
				v.Laps++
				if v.Laps >= a.cfg.Approach.LapsToComplete {
					completed = append(completed, v)
					continue
				}
				// Stays resident here until the transfer moves it.
				departed = append(departed, v)
			}
			kept = append(kept, v)
		}
		st.Vehicles = kept
		st.HasEmergency = hasEmergency(kept)
	})
	if err != nil {
		return err
	}

	for _, v := range completed {
		a.complete(v)
	}
	if len(departed) > 0 {
		return a.rotate(departed)
	}
	return nil
}

// Dynamics returns the per-tick speed and following gap for a cycle number
func Dynamics(cfg *config.Config, cycle int64) (speed, gap float64) {
	speed, gap = cfg.Kinematics.BaseSpeed, cfg.Kinematics.BaseGap
	if IsRushHour(cfg.RushHour, cycle) {
		speed *= cfg.RushHour.SpeedMultiplier
		gap *= cfg.RushHour.GapMultiplier
	}
	return speed, gap
}

// IsRushHour reports whether cycle falls in the last cycles of its super-cycle
func IsRushHour(rush config.RushHour, cycle int64) bool {
	if rush.SuperCycle <= 0 {
		return false
	}
	m := cycle%int64(rush.SuperCycle) + 1
	return m >= int64(rush.StartsAt)
}

func (a *Approach) advance(v Vehicle, color LightColor, crossGreen bool, speed, limit float64) Vehicle {
	geo := a.cfg.Approach

	step := speed
	if v.Emergency {
		step *= a.cfg.Kinematics.EmergencyBoost
	}
	target := math.Min(v.Position+step, limit)

	if v.Position < 0 && color != Green {
		target = math.Min(target, geo.StopHold)
	}
	if crossGreen && v.Position >= 0 {
		if v.Position < geo.BlockEdge {
			target = math.Min(target, geo.BlockEdge)
		} else {
			target = v.Position
		}
	}

	if target <= v.Position {
		v.Waited += a.cfg.Tick
		return v
	}
	v.Position = target
	v.Status = statusAt(target)
	return v
}

func (a *Approach) complete(v Vehicle) {
	v.Status = VehicleCompleted
	total := a.store.IncrementCompleted()
	a.stats.Record(v.Waited)
	a.log.WithFields(logrus.Fields{
		"vehicle_id": v.ID,
		"status":     string(v.Status),
		"waited":     v.Waited,
		"completed":  total,
	}).Debug("vehicle completed")
	a.events.Add(Event{
		Type:      EventTypeVehicleCompleted,
		Approach:  a.dir.String(),
		VehicleID: v.ID,
		Message:   fmt.Sprintf("Vehicle %s completed %d laps after waiting %s", shortID(v.ID), v.Laps, v.Waited),
	})
}

func (a *Approach) rotate(departed []Vehicle) error {
	next := a.dir.Next()
	spawn := a.cfg.Approach.SpawnPosition()
	leaving := lo.SliceToMap(departed, func(v Vehicle) (string, struct{}) {
		return v.ID, struct{}{}
	})

	err := a.store.Transfer(a.dir, next, func(src, dst *ApproachState) {
		src.Vehicles = lo.Reject(src.Vehicles, func(v Vehicle, _ int) bool {
			_, ok := leaving[v.ID]
			return ok
		})
		src.HasEmergency = hasEmergency(src.Vehicles)

		for _, v := range departed {
			v.Direction = next
			v.Position = spawn
			v.Status = VehicleWaiting
			dst.Vehicles = append(dst.Vehicles, v)
		}
		dst.HasEmergency = hasEmergency(dst.Vehicles)
	})
	if err != nil {
		return err
	}

	for _, v := range departed {
		a.events.Add(Event{
			Type:      EventTypeVehicleRotated,
			Approach:  a.dir.String(),
			VehicleID: v.ID,
			Message:   fmt.Sprintf("Vehicle %s moved from %s to %s (lap %d)", shortID(v.ID), a.dir, next, v.Laps),
		})
	}
	return nil
}

func (a *Approach) applyCommand() error {
	select {
	case color, ok := <-a.commands:
		if !ok {
			return errCommandsClosed
		}
		a.pending = &color
		a.deferLogged = false
	default:
	}
	if a.pending == nil {
		return nil
	}

	color := *a.pending
	if color == Green {
		crossGreen, err := a.perpendicularGreen()
		if err != nil {
			return err
		}
		if crossGreen {
			// Cross traffic has not seen its red yet.
			if !a.deferLogged {
				a.deferLogged = true
				a.events.Add(Event{
					Type:      EventTypeCommandDeferred,
					Approach:  a.dir.String(),
					Message:   fmt.Sprintf("%s green deferred while cross traffic is green", a.dir),
					IsWarning: true,
				})
			}
			return nil
		}
	}

	err := a.store.Mutate(a.dir, func(st *ApproachState) {
		st.Color = color
	})
	if err != nil {
		return err
	}
	a.pending = nil
	return nil
}

func (a *Approach) perpendicularGreen() (bool, error) {
	for _, d := range a.dir.Axis().Other().Directions() {
		color, err := a.store.Color(d)
		if err != nil {
			return false, err
		}
		if color == Green {
			return true, nil
		}
	}
	return false, nil
}

func hasEmergency(vehicles []Vehicle) bool {
	return lo.ContainsBy(vehicles, func(v Vehicle) bool {
		return v.Emergency
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
