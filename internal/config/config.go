// Package config loads runtime configuration from file, environment and
// flags, in that precedence order (lowest first).
package config

import (
	"fmt"
	"time"

	"github.com/agentmesh/agentmesh/internal/core"
)

// Config is the full runtime configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	StateDir  string `mapstructure:"state_dir"`

	Consensus ConsensusConfig `mapstructure:"consensus"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`

	// Planners names the offline planner instances consulted for
	// consensus when no external services are configured.
	Planners []string `mapstructure:"planners"`
}

// ConsensusConfig tunes workflow synthesis.
type ConsensusConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	MinOverlap        float64 `mapstructure:"min_overlap"`
	CritiqueThreshold float64 `mapstructure:"critique_threshold"`
}

// ExecutionConfig tunes the scheduler.
type ExecutionConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	ProposeTimeout time.Duration `mapstructure:"propose_timeout"`
}

// RecoveryConfig tunes failure handling.
type RecoveryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "auto",
		StateDir:  ".agentmesh",
		Consensus: ConsensusConfig{
			Threshold:         0.5,
			MinOverlap:        0.5,
			CritiqueThreshold: 0.5,
		},
		Execution: ExecutionConfig{
			MaxConcurrent:  4,
			TaskTimeout:    5 * time.Minute,
			ProposeTimeout: 2 * time.Minute,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		Planners: []string{"planner-a", "planner-b", "planner-c"},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Consensus.Threshold <= 0 || c.Consensus.Threshold > 1 {
		return invalid(fmt.Sprintf("consensus.threshold %.2f must be in (0, 1]", c.Consensus.Threshold))
	}
	if c.Consensus.MinOverlap < 0 || c.Consensus.MinOverlap > 1 {
		return invalid(fmt.Sprintf("consensus.min_overlap %.2f must be in [0, 1]", c.Consensus.MinOverlap))
	}
	if c.Consensus.CritiqueThreshold < 0 || c.Consensus.CritiqueThreshold > 1 {
		return invalid(fmt.Sprintf("consensus.critique_threshold %.2f must be in [0, 1]", c.Consensus.CritiqueThreshold))
	}
	if c.Execution.MaxConcurrent < 1 {
		return invalid("execution.max_concurrent must be at least 1")
	}
	if c.Execution.TaskTimeout <= 0 {
		return invalid("execution.task_timeout must be positive")
	}
	if c.Recovery.MaxAttempts < 1 {
		return invalid("recovery.max_attempts must be at least 1")
	}
	if c.Recovery.Multiplier < 1 {
		return invalid("recovery.multiplier must be at least 1")
	}
	if c.Recovery.Jitter < 0 || c.Recovery.Jitter > 1 {
		return invalid("recovery.jitter must be in [0, 1]")
	}
	if len(c.Planners) == 0 {
		return invalid("at least one planner must be configured")
	}
	return nil
}

func invalid(message string) error {
	return core.ErrValidation(core.CodeInvalidConfig, message)
}
