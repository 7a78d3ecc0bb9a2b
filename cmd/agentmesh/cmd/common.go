package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/agentmesh/agentmesh/internal/adapters/provider"
	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/service"
	"github.com/agentmesh/agentmesh/internal/service/workflow"
	"github.com/agentmesh/agentmesh/internal/tools"
)

// loadConfig loads configuration honoring the global flags. The shared
// viper instance carries the flag bindings from init().
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	return loader.Load()
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
}

// newServices instantiates the configured planning collaborators.
func newServices(cfg *config.Config) []core.TextService {
	services := make([]core.TextService, 0, len(cfg.Planners))
	for _, name := range cfg.Planners {
		services = append(services, provider.NewTemplatePlanner(name))
	}
	return services
}

// newBuilder wires the synthesis pipeline from config.
func newBuilder(cfg *config.Config, logger *logging.Logger) *workflow.Builder {
	reducer := service.NewConsensusReducer(cfg.Consensus.Threshold)
	return workflow.NewBuilder(newServices(cfg), reducer, logger,
		workflow.WithSimilarity(service.StepDescriptionSimilarity(cfg.Consensus.MinOverlap)),
		workflow.WithCritiqueThreshold(cfg.Consensus.CritiqueThreshold),
		workflow.WithProposeTimeout(cfg.Execution.ProposeTimeout),
	)
}

// newRecovery wires the recovery policy from config.
func newRecovery(cfg *config.Config, registry *tools.Registry) *workflow.RecoveryManager {
	backoff := service.NewBackoffPolicy(
		service.WithBaseDelay(cfg.Recovery.BaseDelay),
		service.WithMaxDelay(cfg.Recovery.MaxDelay),
		service.WithMultiplier(cfg.Recovery.Multiplier),
		service.WithJitter(cfg.Recovery.Jitter),
	)
	return workflow.NewRecoveryManager(cfg.Recovery.MaxAttempts, backoff, registry)
}

// historyPath returns the sqlite history location under the state dir.
func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "history.db")
}

// signalContext derives a context cancelled on SIGINT/SIGTERM so an
// interrupted run still settles its tasks and reports.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
