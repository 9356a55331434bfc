package config

import (
	"time"
)

// Config represents the entire configuration for the intersection simulator
type Config struct {
	Backend            Backend       `yaml:"backend"`
	Tick               time.Duration `yaml:"tick"`
	EmergencyPoll      time.Duration `yaml:"emergencyPoll"`
	SimulationDuration time.Duration `yaml:"simulationDuration"`
	ReportInterval     time.Duration `yaml:"reportInterval"`
	EventLogSize       int           `yaml:"eventLogSize"`
	Listen             string        `yaml:"listen,omitempty"`

	Phases     Phases     `yaml:"phases"`
	Approach   Approach   `yaml:"approach"`
	Kinematics Kinematics `yaml:"kinematics"`
	RushHour   RushHour   `yaml:"rushHour"`

	Traffic []Spawn `yaml:"traffic"`
}

// Phases holds the hold time of each light phase
type Phases struct {
	Green  time.Duration `yaml:"green"`
	Yellow time.Duration `yaml:"yellow"`
	AllRed time.Duration `yaml:"allRed"`
}

// Approach describes the geometry shared by all four approaches.
// Positions are measured along the lane; 0 is the stop line.
type Approach struct {
	Length         Length  `yaml:"length"`
	EndPosition    float64 `yaml:"endPosition"`
	StopHold       float64 `yaml:"stopHold"`
	BlockEdge      float64 `yaml:"blockEdge"`
	LapsToComplete int     `yaml:"lapsToComplete"`
}

// SpawnPosition returns where new and rotated vehicles are placed
func (a Approach) SpawnPosition() float64 {
	if a.Length == LengthShort {
		return -200
	}
	return -400
}

// Kinematics holds per-tick movement parameters before any multiplier
type Kinematics struct {
	BaseSpeed      float64 `yaml:"baseSpeed"`
	BaseGap        float64 `yaml:"baseGap"`
	EmergencyBoost float64 `yaml:"emergencyBoost"`
}

// RushHour describes the last cycles of every super-cycle, during which
// vehicles move faster and follow more closely
type RushHour struct {
	SuperCycle      int     `yaml:"superCycle"`
	StartsAt        int     `yaml:"startsAt"`
	SpeedMultiplier float64 `yaml:"speedMultiplier"`
	GapMultiplier   float64 `yaml:"gapMultiplier"`
}

// Spawn is one scheduled vehicle injection of the traffic plan
type Spawn struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
	Emergency bool   `yaml:"emergency,omitempty"`
	Schedule  string `yaml:"schedule"`
	Count     int    `yaml:"count,omitempty"`
}

// Backend selects the storage and messaging substrate
type Backend string

const (
	BackendShared   Backend = "shared"
	BackendIsolated Backend = "isolated"
)

// Length selects the spawn distance of an approach
type Length string

const (
	LengthLong  Length = "long"
	LengthShort Length = "short"
)

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Backend:            BackendShared,
		Tick:               50 * time.Millisecond,
		EmergencyPoll:      500 * time.Millisecond,
		SimulationDuration: time.Minute,
		ReportInterval:     5 * time.Second,
		EventLogSize:       1000,
		Phases: Phases{
			Green:  6 * time.Second,
			Yellow: 2 * time.Second,
			AllRed: time.Second,
		},
		Approach: Approach{
			Length:         LengthLong,
			EndPosition:    400,
			StopHold:       -5,
			BlockEdge:      200,
			LapsToComplete: 4,
		},
		Kinematics: Kinematics{
			BaseSpeed:      5,
			BaseGap:        40,
			EmergencyBoost: 1.5,
		},
		RushHour: RushHour{
			SuperCycle:      10,
			StartsAt:        8,
			SpeedMultiplier: 1.5,
			GapMultiplier:   0.6,
		},
	}
}
