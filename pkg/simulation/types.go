package simulation

import (
	"fmt"
	"strings"
	"time"
)

// Direction identifies one of the four approaches
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// Directions lists the approaches in canonical order. Emergency tie-breaks
// and multi-approach locking both follow this order.
var Directions = []Direction{North, South, East, West}

var directionNames = [...]string{"North", "South", "East", "West"}

func (d Direction) String() string {
	if d < North || d > West {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Valid reports whether d is one of the four approaches
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// MarshalText encodes the direction by name
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDirection, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name in any case
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Next returns the approach a vehicle moves onto after finishing d.
// The successors form the ring North, East, South, West.
func (d Direction) Next() Direction {
	switch d {
	case North:
		return East
	case East:
		return South
	case South:
		return West
	default:
		return North
	}
}

// Axis returns the pair of opposite approaches d belongs to
func (d Direction) Axis() Axis {
	if d == North || d == South {
		return AxisNS
	}
	return AxisEW
}

// ParseDirection accepts a direction name in any case
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if strings.EqualFold(s, name) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Axis is a pair of opposite approaches sharing right-of-way
type Axis int

const (
	AxisNS Axis = iota
	AxisEW
)

func (a Axis) String() string {
	if a == AxisNS {
		return "NS"
	}
	return "EW"
}

// Directions returns both approaches of the axis
func (a Axis) Directions() []Direction {
	if a == AxisNS {
		return []Direction{North, South}
	}
	return []Direction{East, West}
}

// Other returns the perpendicular axis
func (a Axis) Other() Axis {
	if a == AxisNS {
		return AxisEW
	}
	return AxisNS
}

// LightColor is the signal shown to one approach. The zero value is Red.
type LightColor int

const (
	Red LightColor = iota
	Yellow
	Green
)

func (c LightColor) String() string {
	switch c {
	case Yellow:
		return "Yellow"
	case Green:
		return "Green"
	default:
		return "Red"
	}
}

// VehicleStatus is where a vehicle stands relative to the stop line
type VehicleStatus string

const (
	VehicleWaiting   VehicleStatus = "Waiting"
	VehicleCrossing  VehicleStatus = "Crossing"
	VehicleCompleted VehicleStatus = "Completed"
)

// statusAt derives the status of a resident vehicle from its position
func statusAt(position float64) VehicleStatus {
	if position < 0 {
		return VehicleWaiting
	}
	return VehicleCrossing
}

// Vehicle is a single car looping through the approaches
type Vehicle struct {
	ID        string        `json:"id"`
	Direction Direction     `json:"direction"`
	ArrivedAt time.Time     `json:"arrived_at"`
	Position  float64       `json:"position"`
	Emergency bool          `json:"is_emergency"`
	Laps      int           `json:"laps_completed"`
	Status    VehicleStatus `json:"status"`

	// Waited accumulates the simulated time the vehicle spent held by a
	// light or by the yield rule.
	Waited time.Duration `json:"waited"`
}

// ApproachState is the shared record of one approach
type ApproachState struct {
	Color        LightColor
	Vehicles     []Vehicle
	HasEmergency bool
}

// Clone returns a copy that shares no memory with s
func (s ApproachState) Clone() ApproachState {
	out := s
	out.Vehicles = append([]Vehicle(nil), s.Vehicles...)
	return out
}

// Counters are the global counters owned by the store
type Counters struct {
	Completed int64
	Cycle     int64
}

// ApproachView is the rendering-friendly snapshot of one approach
type ApproachView struct {
	Color        string    `json:"color"`
	Vehicles     []Vehicle `json:"vehicles"`
	HasEmergency bool      `json:"has_emergency"`
}
