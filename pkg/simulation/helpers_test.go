package simulation

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sherine-k/intersection/pkg/config"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fastConfig shrinks every timing so real-time runs finish quickly
func fastConfig(backend config.Backend) *config.Config {
	cfg := config.Default()
	cfg.Backend = backend
	cfg.Tick = 2 * time.Millisecond
	cfg.EmergencyPoll = 10 * time.Millisecond
	cfg.Phases = config.Phases{
		Green:  40 * time.Millisecond,
		Yellow: 20 * time.Millisecond,
		AllRed: 10 * time.Millisecond,
	}
	cfg.Kinematics.BaseSpeed = 40
	return cfg
}

var backends = []config.Backend{config.BackendShared, config.BackendIsolated}

func newStore(t *testing.T, backend config.Backend) Store {
	t.Helper()
	store, stats := newBackend(backend)
	t.Cleanup(func() {
		store.Close()
		stats.Close()
	})
	return store
}

func setColor(t *testing.T, store Store, dir Direction, color LightColor) {
	t.Helper()
	require.NoError(t, store.Mutate(dir, func(st *ApproachState) {
		st.Color = color
	}))
}

func placeVehicle(t *testing.T, store Store, v Vehicle) {
	t.Helper()
	require.NoError(t, store.Mutate(v.Direction, func(st *ApproachState) {
		st.Vehicles = append(st.Vehicles, v)
		st.HasEmergency = st.HasEmergency || v.Emergency
	}))
}

func snapshot(t *testing.T, store Store, dir Direction) ApproachState {
	t.Helper()
	st, err := store.Snapshot(dir)
	require.NoError(t, err)
	return st
}

// findVehicle returns the approach holding id and how many copies exist
func findVehicle(t *testing.T, store Store, id string) (Direction, Vehicle, int) {
	t.Helper()
	var (
		where  Direction
		found  Vehicle
		copies int
	)
	for _, d := range Directions {
		for _, v := range snapshot(t, store, d).Vehicles {
			if v.ID == id {
				where, found = d, v
				copies++
			}
		}
	}
	return where, found, copies
}

func totalVehicles(t *testing.T, store Store) int {
	t.Helper()
	n := 0
	for _, d := range Directions {
		n += len(snapshot(t, store, d).Vehicles)
	}
	return n
}
