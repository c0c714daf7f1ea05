package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudtrim/cloudtrim/pkg/config"
	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/gateways"
	"github.com/cloudtrim/cloudtrim/pkg/policy"
	"github.com/cloudtrim/cloudtrim/pkg/stores"
	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

// loadConfig resolves the service configuration from --config, falling back
// to the defaults when no file is given. --verbose forces debug logging.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.LogFormat = "json"
	}

	return cfg, nil
}

// newLogger builds the component logger without starting the full telemetry
// stack. Used by read-only commands.
func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	logger, err := telemetry.NewLogger(cfg.TelemetryConfig().Logging)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Zerolog(), nil
}

// openStore opens, initializes, and migrates the audit store.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	return store, nil
}

// buildGuard compiles the OPA guardrails when policy enforcement is enabled.
func buildGuard(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*policy.Engine, error) {
	if !cfg.Policy.Enabled {
		return nil, nil
	}

	guard, err := policy.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	if len(cfg.Policy.Paths) > 0 {
		if err := guard.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	return guard, nil
}

// backoffPolicy maps the engine tuning section onto the retry backoff.
// Zeroed intervals keep the engine's per-type defaults.
func backoffPolicy(cfg *config.Config) engine.BackoffPolicy {
	initial := cfg.Engine.BackoffInterval.Std()
	max := cfg.Engine.BackoffMaxInterval.Std()
	if initial <= 0 {
		return nil
	}
	if max <= initial {
		return engine.FixedBackoff{Interval: initial}
	}
	return engine.ExponentialBackoff{Initial: initial, Max: max}
}

// buildGateway assembles the gateway stack: the in-memory inventory wrapped
// by the circuit breaker and the telemetry decorator.
func buildGateway(cfg *config.Config, tel *telemetry.Telemetry, logger zerolog.Logger, resourcesFile string) (engine.ResourceGateway, *gateways.MemoryGateway, error) {
	memory := gateways.NewMemoryGateway(logger)
	if cfg.Gateway.SimulatedLatency > 0 {
		memory.SetLatency(cfg.Gateway.SimulatedLatency.Std())
	}

	if resourcesFile != "" {
		resources, err := loadResources(resourcesFile)
		if err != nil {
			return nil, nil, err
		}
		memory.Seed(resources...)
	}

	var gateway engine.ResourceGateway = memory
	if cfg.Gateway.Breaker.Enabled {
		gateway = gateways.NewBreakerGateway(gateway, cfg.BreakerConfig(), logger)
	}

	var metrics *telemetry.Metrics
	var tracer *telemetry.Tracer
	if tel != nil {
		metrics = tel.Metrics
		tracer = tel.Tracer
	}
	gateway = gateways.NewInstrumentedGateway(gateway, cfg.Gateway.Provider, metrics, tracer)

	return gateway, memory, nil
}

// loadResources reads the gateway inventory from a JSON file.
func loadResources(path string) ([]gateways.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources file: %w", err)
	}

	var resources []gateways.Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("failed to parse resources file %s: %w", path, err)
	}

	return resources, nil
}

// loadOpportunity reads an opportunity definition from a JSON file.
func loadOpportunity(path string) (*engine.Opportunity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read opportunity file: %w", err)
	}

	var opp engine.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return nil, fmt.Errorf("failed to parse opportunity file %s: %w", path, err)
	}

	return &opp, nil
}

// busPublisher adapts the telemetry event bus to the engine's publisher
// contract.
type busPublisher struct {
	bus *telemetry.EventBus
}

func (p *busPublisher) Publish(event engine.Event) {
	_ = p.bus.Publish(telemetry.Event{
		ID:          event.ID,
		Timestamp:   event.Timestamp,
		Type:        string(event.Type),
		Source:      "engine",
		ExecutionID: event.ExecutionID,
		StepID:      event.StepID,
		ResourceID:  event.ResourceID,
		Message:     event.Message,
		Level:       event.Level,
		Data:        event.Details,
	})
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTime renders a timestamp for table output.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
