package traffic

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherine-k/intersection/pkg/config"
	"github.com/sherine-k/intersection/pkg/simulation"
)

type fakeInjector struct {
	mu    sync.Mutex
	added []simulation.Vehicle
	fail  map[simulation.Direction]bool
}

func (f *fakeInjector) AddVehicle(dir simulation.Direction, emergency bool) (simulation.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[dir] {
		return simulation.Vehicle{}, errors.New("store closed")
	}
	v := simulation.Vehicle{ID: dir.String(), Direction: dir, Emergency: emergency}
	f.added = append(f.added, v)
	return v, nil
}

func (f *fakeInjector) count(dir simulation.Direction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.added {
		if v.Direction == dir {
			n++
		}
	}
	return n
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewPlan(t *testing.T) {
	t.Run("Unknown direction", func(t *testing.T) {
		_, err := NewPlan([]config.Spawn{{Name: "x", Direction: "up", Schedule: "@every 1s"}}, &fakeInjector{}, quietLogger())
		assert.ErrorIs(t, err, simulation.ErrUnknownDirection)
		assert.ErrorContains(t, err, "traffic x")
	})

	t.Run("Invalid schedule", func(t *testing.T) {
		_, err := NewPlan([]config.Spawn{{Name: "x", Direction: "North", Schedule: "sometimes"}}, &fakeInjector{}, quietLogger())
		assert.ErrorContains(t, err, "invalid schedule")
	})

	t.Run("Nothing runs before Start", func(t *testing.T) {
		injector := &fakeInjector{}
		p, err := NewPlan([]config.Spawn{{Name: "x", Direction: "North", Schedule: "@every 1s"}}, injector, quietLogger())
		require.NoError(t, err)
		time.Sleep(1200 * time.Millisecond)
		assert.Zero(t, p.Injected())
		p.Stop()
	})
}

func TestPlanRun(t *testing.T) {
	injector := &fakeInjector{fail: map[simulation.Direction]bool{simulation.West: true}}
	p, err := NewPlan([]config.Spawn{
		{Name: "limited", Direction: "east", Schedule: "@every 1s", Count: 2, Emergency: true},
		{Name: "broken", Direction: "West", Schedule: "@every 1s"},
	}, injector, quietLogger())
	require.NoError(t, err)

	var reports atomic.Int64
	p.Every(time.Second, func() { reports.Add(1) })

	p.Start()
	assert.Eventually(t, func() bool {
		return injector.count(simulation.East) == 2
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(1500 * time.Millisecond)
	p.Stop()

	assert.Equal(t, 2, injector.count(simulation.East))
	assert.Equal(t, int64(2), p.Injected())
	assert.Positive(t, reports.Load())
	for _, v := range injector.added {
		assert.True(t, v.Emergency)
	}
}
