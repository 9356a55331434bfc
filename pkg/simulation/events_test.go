package simulation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog(t *testing.T) {
	t.Run("Oldest events are dropped at the limit", func(t *testing.T) {
		log := NewEventLog(3)
		for i := 0; i < 5; i++ {
			log.Add(Event{Type: EventTypeCycleCompleted, Cycle: int64(i), Message: fmt.Sprintf("cycle %d", i)})
		}

		events := log.Events()
		require.Len(t, events, 3)
		assert.Equal(t, int64(2), events[0].Cycle)
		assert.Equal(t, int64(4), events[2].Cycle)
		assert.False(t, events[0].Time.IsZero())
	})

	t.Run("Warnings and counts", func(t *testing.T) {
		log := NewEventLog(0)
		log.Add(Event{Type: EventTypePhaseChanged})
		log.Add(Event{Type: EventTypePreemptionStarted, IsWarning: true})
		log.Add(Event{Type: EventTypePhaseChanged})

		assert.Len(t, log.Warnings(), 1)
		assert.Equal(t, map[EventType]int{
			EventTypePhaseChanged:      2,
			EventTypePreemptionStarted: 1,
		}, log.CountByType())
	})

	t.Run("Events returns a copy", func(t *testing.T) {
		log := NewEventLog(0)
		log.Add(Event{Message: "a"})
		events := log.Events()
		events[0].Message = "b"
		assert.Equal(t, "a", log.Events()[0].Message)
	})

	t.Run("Nil log discards", func(t *testing.T) {
		var log *EventLog
		log.Add(Event{Message: "dropped"})
		assert.Empty(t, log.Events())
		assert.Empty(t, log.Warnings())
	})
}
