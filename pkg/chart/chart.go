package chart

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sherine-k/intersection/pkg/simulation"
)

const (
	chartWidth = 80
	laneWidth  = 60
)

// Generator generates ASCII charts
type Generator struct {
	width     int
	laneWidth int
}

// NewGenerator creates a new chart generator
func NewGenerator() *Generator {
	return &Generator{
		width:     chartWidth,
		laneWidth: laneWidth,
	}
}

// GenerateIntersectionView draws one lane strip per approach, from the spawn
// position on the left to the exit threshold on the right
func (g *Generator) GenerateIntersectionView(state map[string]simulation.ApproachView, spawn, stopLine, blockEdge, end float64) string {
	var sb strings.Builder

	// Header
	sb.WriteString("\n")
	sb.WriteString("Intersection\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")

	span := end - spawn
	column := func(pos float64) int {
		if span <= 0 {
			return 0
		}
		x := int(math.Round((pos - spawn) / span * float64(g.laneWidth-1)))
		if x < 0 {
			return 0
		}
		if x >= g.laneWidth {
			return g.laneWidth - 1
		}
		return x
	}

	for _, dir := range simulation.Directions {
		view, ok := state[dir.String()]
		if !ok {
			continue
		}

		lane := make([]rune, g.laneWidth)
		for i := range lane {
			lane[i] = '.'
		}
		lane[column(stopLine)] = '|'
		lane[column(blockEdge)] = ':'

		for _, v := range view.Vehicles {
			x := column(v.Position)
			switch {
			case v.Emergency:
				lane[x] = 'E'
			case lane[x] == 'o' || lane[x] == '2':
				lane[x] = '2'
			default:
				lane[x] = 'o'
			}
		}

		sb.WriteString(fmt.Sprintf("%-6s %s [%s] %d\n",
			dir.String(),
			colorMark(view.Color),
			string(lane),
			len(view.Vehicles)))
	}

	// Legend
	sb.WriteString("\n")
	sb.WriteString("Legend:\n")
	sb.WriteString("    | - Stop line    : - Block edge\n")
	sb.WriteString("    o - Vehicle      2 - Several vehicles    E - Emergency vehicle\n")
	sb.WriteString("    G/Y/R - Light color\n")
	sb.WriteString("\n")

	return sb.String()
}

func colorMark(color string) string {
	if color == "" {
		return "?"
	}
	return color[:1]
}

// GenerateStatsSummary generates the counters and wait-time aggregate
func (g *Generator) GenerateStatsSummary(phase simulation.Phase, cycle, completed int64, stats simulation.TrafficStats) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("Statistics\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Phase: %s\n", phase))
	sb.WriteString(fmt.Sprintf("Cycle: %d\n", cycle))
	sb.WriteString(fmt.Sprintf("Completed Vehicles: %d\n", completed))
	sb.WriteString(fmt.Sprintf("Wait Samples: %d\n", stats.TotalVehicles))
	sb.WriteString(fmt.Sprintf("Average Wait: %s\n", FormatDuration(time.Duration(stats.Average()*float64(time.Second)))))
	sb.WriteString("\n")

	return sb.String()
}

// StatusLine is the one-line progress report printed while running
func StatusLine(phase simulation.Phase, cycle, completed int64, stats simulation.TrafficStats, state map[string]simulation.ApproachView) string {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		view := state[name]
		parts = append(parts, fmt.Sprintf("%s=%s/%d", name, colorMark(view.Color), len(view.Vehicles)))
	}
	return fmt.Sprintf("[%s] cycle=%d completed=%d avg_wait=%.2fs %s",
		phase, cycle, completed, stats.Average(), strings.Join(parts, " "))
}

// GenerateEventSummary generates a summary of events grouped by type
func (g *Generator) GenerateEventSummary(eventsByType map[simulation.EventType]int) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("Event Summary\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")

	total := 0
	for _, n := range eventsByType {
		total += n
	}

	sb.WriteString(fmt.Sprintf("Total Events: %d\n", total))
	sb.WriteString(fmt.Sprintf("  - Phase Changes: %d\n", eventsByType[simulation.EventTypePhaseChanged]))
	sb.WriteString(fmt.Sprintf("  - Cycles Completed: %d\n", eventsByType[simulation.EventTypeCycleCompleted]))
	sb.WriteString(fmt.Sprintf("  - Preemptions: %d\n", eventsByType[simulation.EventTypePreemptionStarted]))
	sb.WriteString(fmt.Sprintf("  - Vehicles Added: %d\n", eventsByType[simulation.EventTypeVehicleAdded]))
	sb.WriteString(fmt.Sprintf("  - Rotations: %d\n", eventsByType[simulation.EventTypeVehicleRotated]))
	sb.WriteString(fmt.Sprintf("  - Vehicles Completed: %d\n", eventsByType[simulation.EventTypeVehicleCompleted]))
	sb.WriteString(fmt.Sprintf("  - Deferred Greens: %d\n", eventsByType[simulation.EventTypeCommandDeferred]))
	sb.WriteString(fmt.Sprintf("  - Skipped Ticks: %d\n", eventsByType[simulation.EventTypeTickSkipped]))
	sb.WriteString("\n")

	return sb.String()
}

// GenerateWarnings generates a list of warnings
func (g *Generator) GenerateWarnings(warnings []simulation.Event) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("Warnings\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")

	if len(warnings) == 0 {
		sb.WriteString("No warnings!\n")
		return sb.String()
	}

	for _, warning := range warnings {
		timestamp := warning.Time.Format("15:04:05.000")
		sb.WriteString(fmt.Sprintf("[%s] %s\n", timestamp, warning.Message))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total Warnings: %d\n", len(warnings)))
	sb.WriteString("\n")

	return sb.String()
}

// GenerateDetailedTimeline generates a detailed timeline of events
func (g *Generator) GenerateDetailedTimeline(events []simulation.Event, limit int) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("Detailed Timeline")
	if limit > 0 && limit < len(events) {
		sb.WriteString(fmt.Sprintf(" (showing first %d events)", limit))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")

	displayCount := len(events)
	if limit > 0 && limit < displayCount {
		displayCount = limit
	}

	for i := 0; i < displayCount; i++ {
		event := events[i]
		timestamp := event.Time.Format("15:04:05.000")

		typeIcon := " "
		switch event.Type {
		case simulation.EventTypePhaseChanged:
			typeIcon = "P"
		case simulation.EventTypeCycleCompleted:
			typeIcon = "C"
		case simulation.EventTypePreemptionStarted:
			typeIcon = "!"
		case simulation.EventTypePreemptionEnded:
			typeIcon = "~"
		case simulation.EventTypeVehicleAdded:
			typeIcon = "+"
		case simulation.EventTypeVehicleRotated:
			typeIcon = ">"
		case simulation.EventTypeVehicleCompleted:
			typeIcon = "-"
		case simulation.EventTypeCommandDeferred, simulation.EventTypeTickSkipped:
			typeIcon = "W"
		}

		sb.WriteString(fmt.Sprintf("[%s] %s [%d] %s\n",
			timestamp,
			typeIcon,
			event.Cycle,
			event.Message))
	}

	if limit > 0 && limit < len(events) {
		sb.WriteString(fmt.Sprintf("\n... and %d more events\n", len(events)-limit))
	}

	sb.WriteString("\n")

	return sb.String()
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
