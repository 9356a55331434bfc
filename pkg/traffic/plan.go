// Package traffic schedules deterministic vehicle injections from the
// traffic section of the configuration
package traffic

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sherine-k/intersection/pkg/config"
	"github.com/sherine-k/intersection/pkg/simulation"
)

// Injector accepts new vehicles
type Injector interface {
	AddVehicle(dir simulation.Direction, emergency bool) (simulation.Vehicle, error)
}

// Plan runs scheduled injections and periodic reports on a cron scheduler
type Plan struct {
	cron     *cron.Cron
	injector Injector
	log      logrus.FieldLogger
	injected atomic.Int64
}

// NewPlan registers one job per spawn entry. Nothing runs before Start.
func NewPlan(spawns []config.Spawn, injector Injector, logger logrus.FieldLogger) (*Plan, error) {
	p := &Plan{
		cron:     cron.New(cron.WithLogger(cron.PrintfLogger(logger))),
		injector: injector,
		log:      logger.WithField("component", "traffic"),
	}

	for _, spawn := range spawns {
		dir, err := simulation.ParseDirection(spawn.Direction)
		if err != nil {
			return nil, fmt.Errorf("traffic %s: %w", spawn.Name, err)
		}
		schedule, err := config.ParseSchedule(spawn.Schedule)
		if err != nil {
			return nil, fmt.Errorf("traffic %s: invalid schedule %q: %w", spawn.Name, spawn.Schedule, err)
		}
		p.cron.Schedule(schedule, p.spawnJob(spawn, dir))
	}

	return p, nil
}

func (p *Plan) spawnJob(spawn config.Spawn, dir simulation.Direction) cron.Job {
	var fired atomic.Int64
	return cron.FuncJob(func() {
		n := fired.Add(1)
		if spawn.Count > 0 && n > int64(spawn.Count) {
			return
		}
		v, err := p.injector.AddVehicle(dir, spawn.Emergency)
		if err != nil {
			p.log.WithError(err).WithField("entry", spawn.Name).Warn("injection failed")
			return
		}
		p.injected.Add(1)
		p.log.WithFields(logrus.Fields{
			"entry":      spawn.Name,
			"vehicle_id": v.ID,
			"approach":   dir.String(),
			"emergency":  spawn.Emergency,
		}).Debug("vehicle injected")
	})
}

// Every runs fn at a fixed interval, rounded down to whole seconds with a
// minimum of one second
func (p *Plan) Every(interval time.Duration, fn func()) {
	p.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
}

// Injected returns how many vehicles the plan has added
func (p *Plan) Injected() int64 {
	return p.injected.Load()
}

// Start begins running the scheduled jobs in the background
func (p *Plan) Start() {
	p.cron.Start()
}

// Stop halts the scheduler and waits for running jobs
func (p *Plan) Stop() {
	<-p.cron.Stop().Done()
}
