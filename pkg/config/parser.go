package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("schema.json", schemaSource)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a traffic schedule. Both cron expressions and
// descriptors such as "@every 2s" are accepted.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

// LoadConfig loads and parses the configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML document against the schema and decodes it on top
// of the defaults
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("failed to validate config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateSchema checks the raw document shape before decoding. YAML is
// round-tripped through JSON so the validator sees plain JSON values.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	return schema.Validate(value)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Backend != BackendShared && config.Backend != BackendIsolated {
		return fmt.Errorf("backend must be either 'shared' or 'isolated'")
	}

	if config.Tick <= 0 {
		return fmt.Errorf("tick must be greater than 0")
	}

	if config.EmergencyPoll < config.Tick {
		return fmt.Errorf("emergencyPoll must not be shorter than tick")
	}

	if config.SimulationDuration < 0 {
		return fmt.Errorf("simulationDuration must not be negative")
	}

	if config.Phases.Green <= 0 || config.Phases.Yellow <= 0 || config.Phases.AllRed <= 0 {
		return fmt.Errorf("phases: green, yellow and allRed must be greater than 0")
	}

	if config.Approach.EndPosition <= config.Approach.BlockEdge {
		return fmt.Errorf("approach: endPosition must be past blockEdge")
	}

	if config.Approach.BlockEdge <= 0 {
		return fmt.Errorf("approach: blockEdge must be past the stop line")
	}

	if config.Approach.StopHold >= 0 || config.Approach.StopHold <= config.Approach.SpawnPosition() {
		return fmt.Errorf("approach: stopHold must lie between the spawn position and the stop line")
	}

	if config.Approach.LapsToComplete <= 0 {
		return fmt.Errorf("approach: lapsToComplete must be greater than 0")
	}

	if config.Kinematics.BaseSpeed <= 0 {
		return fmt.Errorf("kinematics: baseSpeed must be greater than 0")
	}

	if config.RushHour.StartsAt > config.RushHour.SuperCycle {
		return fmt.Errorf("rushHour: startsAt must not exceed superCycle")
	}

	for i, spawn := range config.Traffic {
		if spawn.Name == "" {
			return fmt.Errorf("traffic %d: name is required", i)
		}

		switch strings.ToLower(spawn.Direction) {
		case "north", "south", "east", "west":
		default:
			return fmt.Errorf("traffic %s: direction must be one of North, South, East, West", spawn.Name)
		}

		if _, err := ParseSchedule(spawn.Schedule); err != nil {
			return fmt.Errorf("traffic %s: invalid schedule %q: %w", spawn.Name, spawn.Schedule, err)
		}

		if spawn.Count < 0 {
			return fmt.Errorf("traffic %s: count must not be negative", spawn.Name)
		}
	}

	return nil
}
