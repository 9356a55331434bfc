package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherine-k/intersection/pkg/config"
)

type approachRig struct {
	cfg        *config.Config
	store      Store
	stats      *LockedStats
	events     *EventLog
	approaches map[Direction]*Approach
}

func newApproachRig(t *testing.T) *approachRig {
	t.Helper()
	r := &approachRig{
		cfg:        config.Default(),
		store:      NewMemoryStore(),
		stats:      NewLockedStats(),
		events:     NewEventLog(0),
		approaches: map[Direction]*Approach{},
	}
	for _, d := range Directions {
		r.approaches[d] = NewApproach(d, r.cfg, r.store, r.stats, r.events, quietLogger())
	}
	return r
}

func (r *approachRig) tick(t *testing.T, dirs ...Direction) {
	t.Helper()
	if len(dirs) == 0 {
		dirs = Directions
	}
	for _, d := range dirs {
		require.NoError(t, r.approaches[d].Tick())
	}
}

func TestApproachStopLine(t *testing.T) {
	for _, color := range []LightColor{Red, Yellow} {
		for _, emergency := range []bool{false, true} {
			color, emergency := color, emergency
			name := color.String()
			if emergency {
				name += " emergency"
			}
			t.Run(name, func(t *testing.T) {
				r := newApproachRig(t)
				setColor(t, r.store, North, color)
				placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: -400, Emergency: emergency})

				for i := 0; i < 200; i++ {
					r.tick(t, North)
					_, v, _ := findVehicle(t, r.store, "a")
					require.LessOrEqual(t, v.Position, r.cfg.Approach.StopHold)
				}

				_, v, _ := findVehicle(t, r.store, "a")
				assert.Equal(t, r.cfg.Approach.StopHold, v.Position)
				assert.Positive(t, v.Waited)
			})
		}
	}
}

func TestApproachGreenCrossesStopLine(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, North, Green)
	placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: -10})

	r.tick(t, North)
	r.tick(t, North)

	_, v, _ := findVehicle(t, r.store, "a")
	assert.Equal(t, float64(0), v.Position)
	assert.Zero(t, v.Waited)
}

func TestApproachVehicleStatus(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, North, Green)
	placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: -5, Status: VehicleWaiting})

	r.tick(t, North)
	_, v, _ := findVehicle(t, r.store, "a")
	assert.Equal(t, VehicleCrossing, v.Status)

	require.NoError(t, r.store.Mutate(North, func(st *ApproachState) {
		st.Vehicles[0].Position = 399
	}))
	r.tick(t, North)

	where, v, _ := findVehicle(t, r.store, "a")
	assert.Equal(t, East, where)
	assert.Equal(t, VehicleWaiting, v.Status)
}

func TestApproachEmergencyBoost(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, East, Green)
	placeVehicle(t, r.store, Vehicle{ID: "e", Direction: East, Position: 0, Emergency: true})

	r.tick(t, East)

	_, v, _ := findVehicle(t, r.store, "e")
	assert.InDelta(t, 7.5, v.Position, 1e-9)
	assert.True(t, snapshot(t, r.store, East).HasEmergency)
}

func TestApproachFollowingGap(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, South, Green)
	placeVehicle(t, r.store, Vehicle{ID: "front", Direction: South, Position: 100})
	placeVehicle(t, r.store, Vehicle{ID: "back", Direction: South, Position: 64})

	r.tick(t, South)

	_, front, _ := findVehicle(t, r.store, "front")
	_, back, _ := findVehicle(t, r.store, "back")
	assert.Equal(t, float64(105), front.Position)
	assert.Equal(t, float64(65), back.Position)

	r.tick(t, South)
	_, back, _ = findVehicle(t, r.store, "back")
	assert.Equal(t, float64(70), back.Position)
}

func TestApproachYieldsToCrossTraffic(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, North, Green)
	setColor(t, r.store, East, Green)
	placeVehicle(t, r.store, Vehicle{ID: "past", Direction: North, Position: 150 + r.cfg.Approach.BlockEdge})
	placeVehicle(t, r.store, Vehicle{ID: "inside", Direction: North, Position: 197})

	r.tick(t, North)

	_, inside, _ := findVehicle(t, r.store, "inside")
	_, past, _ := findVehicle(t, r.store, "past")
	assert.Equal(t, r.cfg.Approach.BlockEdge, inside.Position)
	assert.Equal(t, float64(350), past.Position)
	assert.Equal(t, r.cfg.Tick, past.Waited)

	setColor(t, r.store, East, Red)
	r.tick(t, North)

	_, inside, _ = findVehicle(t, r.store, "inside")
	assert.Equal(t, r.cfg.Approach.BlockEdge+5, inside.Position)
}

func TestApproachRotation(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, North, Green)
	placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: 398, Laps: 2})

	r.tick(t, North)

	where, v, copies := findVehicle(t, r.store, "a")
	assert.Equal(t, 1, copies)
	assert.Equal(t, East, where)
	assert.Equal(t, East, v.Direction)
	assert.Equal(t, 3, v.Laps)
	assert.Equal(t, r.cfg.Approach.SpawnPosition(), v.Position)
	assert.Empty(t, snapshot(t, r.store, North).Vehicles)
	assert.Equal(t, 1, r.events.CountByType()[EventTypeVehicleRotated])
}

func TestApproachRotationCarriesEmergencyFlag(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, West, Green)
	placeVehicle(t, r.store, Vehicle{ID: "e", Direction: West, Position: 399, Emergency: true})

	r.tick(t, West)

	assert.False(t, snapshot(t, r.store, West).HasEmergency)
	assert.True(t, snapshot(t, r.store, North).HasEmergency)
}

func TestApproachCompletion(t *testing.T) {
	r := newApproachRig(t)
	setColor(t, r.store, South, Green)
	placeVehicle(t, r.store, Vehicle{ID: "a", Direction: South, Position: 399, Laps: 3, Waited: 4 * r.cfg.Tick})

	r.tick(t, South)

	_, _, copies := findVehicle(t, r.store, "a")
	assert.Zero(t, copies)
	assert.Equal(t, int64(1), r.store.Counters().Completed)

	stats := r.stats.Stats()
	assert.Equal(t, 1, stats.TotalVehicles)
	assert.InDelta(t, 0.2, stats.Average(), 1e-9)
}

func TestApproachConservation(t *testing.T) {
	r := newApproachRig(t)
	placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: r.cfg.Approach.SpawnPosition()})

	for i := 0; i < 1000 && r.store.Counters().Completed == 0; i++ {
		where, _, copies := findVehicle(t, r.store, "a")
		require.Equal(t, 1, copies, "iteration %d", i)
		for _, d := range Directions {
			color := Red
			if d == where {
				color = Green
			}
			setColor(t, r.store, d, color)
		}
		r.tick(t)
	}

	assert.Equal(t, int64(1), r.store.Counters().Completed)
	assert.Zero(t, totalVehicles(t, r.store))
	assert.Equal(t, 3, r.events.CountByType()[EventTypeVehicleRotated])
}

func TestDynamics(t *testing.T) {
	cfg := config.Default()

	t.Run("Base speed early in the super-cycle", func(t *testing.T) {
		speed, gap := Dynamics(cfg, 4)
		assert.Equal(t, cfg.Kinematics.BaseSpeed, speed)
		assert.Equal(t, cfg.Kinematics.BaseGap, gap)
	})

	t.Run("Rush hour late in the super-cycle", func(t *testing.T) {
		speed, gap := Dynamics(cfg, 8)
		assert.InDelta(t, cfg.Kinematics.BaseSpeed*1.5, speed, 1e-9)
		assert.InDelta(t, cfg.Kinematics.BaseGap*0.6, gap, 1e-9)
	})

	t.Run("Rush hour window", func(t *testing.T) {
		var rush []int64
		for c := int64(0); c < 20; c++ {
			if IsRushHour(cfg.RushHour, c) {
				rush = append(rush, c)
			}
		}
		assert.Equal(t, []int64{7, 8, 9, 17, 18, 19}, rush)
	})

	t.Run("Disabled without a super-cycle", func(t *testing.T) {
		assert.False(t, IsRushHour(config.RushHour{}, 9))
	})

	t.Run("Approach moves faster in rush hour", func(t *testing.T) {
		r := newApproachRig(t)
		for i := 0; i < 8; i++ {
			r.store.IncrementCycle()
		}
		setColor(t, r.store, North, Green)
		placeVehicle(t, r.store, Vehicle{ID: "a", Direction: North, Position: 0})

		r.tick(t, North)

		_, v, _ := findVehicle(t, r.store, "a")
		assert.InDelta(t, 7.5, v.Position, 1e-9)
	})
}

func TestApproachCommands(t *testing.T) {
	t.Run("Latest command wins", func(t *testing.T) {
		r := newApproachRig(t)
		a := r.approaches[North]
		a.SetColor(Green)
		a.SetColor(Yellow)

		r.tick(t, North)
		assert.Equal(t, Yellow, snapshot(t, r.store, North).Color)
	})

	t.Run("Green waits for cross traffic to clear", func(t *testing.T) {
		r := newApproachRig(t)
		setColor(t, r.store, West, Green)

		r.approaches[North].SetColor(Green)
		r.tick(t, North)
		r.tick(t, North)
		assert.Equal(t, Red, snapshot(t, r.store, North).Color)
		assert.Len(t, r.events.Warnings(), 1)
		assert.Equal(t, EventTypeCommandDeferred, r.events.Warnings()[0].Type)

		setColor(t, r.store, West, Red)
		r.tick(t, North)
		assert.Equal(t, Green, snapshot(t, r.store, North).Color)
	})

	t.Run("Red is never deferred", func(t *testing.T) {
		r := newApproachRig(t)
		setColor(t, r.store, North, Green)
		setColor(t, r.store, East, Green)

		r.approaches[North].SetColor(Red)
		r.tick(t, North)
		assert.Equal(t, Red, snapshot(t, r.store, North).Color)
	})

	t.Run("Closed commands stop the approach", func(t *testing.T) {
		r := newApproachRig(t)
		a := r.approaches[East]
		a.closeCommands()
		assert.ErrorIs(t, a.Tick(), errCommandsClosed)
	})

	t.Run("Closed store stops the approach", func(t *testing.T) {
		r := newApproachRig(t)
		r.store.Close()
		assert.ErrorIs(t, r.approaches[East].Tick(), ErrStoreClosed)
	})
}
