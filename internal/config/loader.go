package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "AGENTMESH",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "AGENTMESH",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (AGENTMESH_*)
// 3. Project config (.agentmesh.yaml in current directory)
// 4. User config (~/.config/agentmesh/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".agentmesh")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "agentmesh"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	def := Default()

	l.v.SetDefault("log_level", def.LogLevel)
	l.v.SetDefault("log_format", def.LogFormat)
	l.v.SetDefault("state_dir", def.StateDir)

	l.v.SetDefault("consensus.threshold", def.Consensus.Threshold)
	l.v.SetDefault("consensus.min_overlap", def.Consensus.MinOverlap)
	l.v.SetDefault("consensus.critique_threshold", def.Consensus.CritiqueThreshold)

	l.v.SetDefault("execution.max_concurrent", def.Execution.MaxConcurrent)
	l.v.SetDefault("execution.task_timeout", def.Execution.TaskTimeout.String())
	l.v.SetDefault("execution.propose_timeout", def.Execution.ProposeTimeout.String())

	l.v.SetDefault("recovery.max_attempts", def.Recovery.MaxAttempts)
	l.v.SetDefault("recovery.base_delay", def.Recovery.BaseDelay.String())
	l.v.SetDefault("recovery.max_delay", def.Recovery.MaxDelay.String())
	l.v.SetDefault("recovery.multiplier", def.Recovery.Multiplier)
	l.v.SetDefault("recovery.jitter", def.Recovery.Jitter)

	l.v.SetDefault("planners", def.Planners)
}
