package simulation

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// EventType defines the type of event in the simulation
type EventType string

const (
	EventTypePhaseChanged      EventType = "phase-changed"
	EventTypePreemptionStarted EventType = "preemption-started"
	EventTypePreemptionEnded   EventType = "preemption-ended"
	EventTypeCycleCompleted    EventType = "cycle-completed"
	EventTypeVehicleAdded      EventType = "vehicle-added"
	EventTypeVehicleRotated    EventType = "vehicle-rotated"
	EventTypeVehicleCompleted  EventType = "vehicle-completed"
	EventTypeCommandDeferred   EventType = "command-deferred"
	EventTypeTickSkipped       EventType = "tick-skipped"
)

// Event represents a point-in-time event in the simulation
type Event struct {
	Time      time.Time `json:"time"`
	Type      EventType `json:"type"`
	Approach  string    `json:"approach,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Cycle     int64     `json:"cycle"`
	Message   string    `json:"message"`
	IsWarning bool      `json:"is_warning,omitempty"`
}

// EventLog keeps the most recent events in memory. A nil log discards
// everything.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	limit  int
	now    func() time.Time
}

// NewEventLog creates a log holding at most limit events; 0 means unbounded
func NewEventLog(limit int) *EventLog {
	return &EventLog{
		events: []Event{},
		limit:  limit,
		now:    time.Now,
	}
}

// Add appends an event, dropping the oldest once the log is full
func (l *EventLog) Add(event Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Time.IsZero() {
		event.Time = l.now()
	}
	l.events = append(l.events, event)
	if l.limit > 0 && len(l.events) > l.limit {
		l.events = append(l.events[:0:0], l.events[len(l.events)-l.limit:]...)
	}
}

// Events returns all retained events, oldest first
func (l *EventLog) Events() []Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Warnings returns all retained warning events
func (l *EventLog) Warnings() []Event {
	return lo.Filter(l.Events(), func(event Event, _ int) bool {
		return event.IsWarning
	})
}

// CountByType groups retained events by type
func (l *EventLog) CountByType() map[EventType]int {
	return lo.CountValuesBy(l.Events(), func(event Event) EventType {
		return event.Type
	})
}
