package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sherine-k/intersection/internal/transport/ws"
	"github.com/sherine-k/intersection/pkg/chart"
	"github.com/sherine-k/intersection/pkg/config"
	"github.com/sherine-k/intersection/pkg/simulation"
	"github.com/sherine-k/intersection/pkg/traffic"
)

var (
	configFile       string
	duration         time.Duration
	backend          string
	listenAddr       string
	logLevel         string
	showTimeline     bool
	timelineLimit    int
	showEventSummary bool
)

var rootCmd = &cobra.Command{
	Use:   "intersection",
	Short: "Four-way intersection simulator",
	Long: `A CLI tool that simulates a four-way road intersection.

Vehicles arrive on the North, South, East and West approaches, a light
controller cycles right-of-way between the two axes and preempts the cycle
for emergency vehicles. Each approach runs as its own actor. When the run
ends the final intersection state, statistics and events are printed.`,
	RunE: runSimulation,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (defaults are used when empty)")
	rootCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Override the simulation duration (0 keeps the configured value)")
	rootCmd.Flags().StringVarP(&backend, "backend", "b", "", "Override the backend: shared or isolated")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve state snapshots over websocket on this address, e.g. :8080")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().BoolVarP(&showTimeline, "timeline", "t", false, "Show detailed timeline of events")
	rootCmd.Flags().IntVarP(&timelineLimit, "timeline-limit", "l", 50, "Limit number of timeline events to display")
	rootCmd.Flags().BoolVarP(&showEventSummary, "summary", "s", true, "Show event summary")
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if duration > 0 {
		cfg.SimulationDuration = duration
	}
	if backend != "" {
		cfg.Backend = config.Backend(backend)
		if cfg.Backend != config.BackendShared && cfg.Backend != config.BackendIsolated {
			return nil, fmt.Errorf("backend must be either 'shared' or 'isolated'")
		}
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	source := "defaults"
	if configFile != "" {
		source = configFile
	}
	fmt.Printf("Loaded configuration from %s\n", source)
	fmt.Printf("  - Backend: %s\n", cfg.Backend)
	fmt.Printf("  - Tick: %s\n", cfg.Tick)
	fmt.Printf("  - Phases: green %s, yellow %s, all-red %s\n", cfg.Phases.Green, cfg.Phases.Yellow, cfg.Phases.AllRed)
	fmt.Printf("  - Simulation Duration: %s\n", cfg.SimulationDuration)
	fmt.Printf("  - Traffic Entries: %d\n\n", len(cfg.Traffic))

	// Create simulator and traffic plan
	sim := simulation.NewSimulator(cfg, simulation.WithLogger(logger))
	plan, err := traffic.NewPlan(cfg.Traffic, sim, logger)
	if err != nil {
		return fmt.Errorf("failed to build traffic plan: %w", err)
	}
	if cfg.ReportInterval > 0 {
		plan.Every(cfg.ReportInterval, func() {
			fmt.Println(chart.StatusLine(sim.GetPhase(), sim.GetCurrentCycle(), sim.GetCompletedVehicles(), sim.GetStats(), sim.GetState()))
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", ws.NewServer(sim, cfg.Tick*4, logger).Handler())
		server = &http.Server{Addr: cfg.Listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("websocket server failed")
			}
		}()
		fmt.Printf("Serving snapshots on ws://%s/ws\n\n", cfg.Listen)
	}

	plan.Start()
	runErr := sim.Run(ctx)
	plan.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	}
	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}

	// Generate and display charts
	chartGen := chart.NewGenerator()

	view := chartGen.GenerateIntersectionView(sim.GetState(),
		cfg.Approach.SpawnPosition(), 0, cfg.Approach.BlockEdge, cfg.Approach.EndPosition)
	fmt.Println(view)

	fmt.Println(chartGen.GenerateStatsSummary(sim.GetPhase(), sim.GetCurrentCycle(), sim.GetCompletedVehicles(), sim.GetStats()))

	events := sim.GetEvents()

	// Display event summary
	if showEventSummary {
		fmt.Println(chartGen.GenerateEventSummary(sim.GetEventCounts()))
	}

	// Display warnings
	fmt.Println(chartGen.GenerateWarnings(sim.GetWarnings()))

	// Display detailed timeline if requested
	if showTimeline {
		fmt.Println(chartGen.GenerateDetailedTimeline(events, timelineLimit))
	}

	fmt.Printf("Injected by traffic plan: %d\n", plan.Injected())
	return nil
}
