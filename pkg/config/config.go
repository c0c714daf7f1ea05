package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Engine: EngineConfig{
			BackoffInterval:    Duration(5 * time.Second),
			BackoffMaxInterval: Duration(80 * time.Second),
			ShutdownTimeout:    Duration(2 * time.Minute),
		},
		Store: StoreConfig{
			Path:            "cloudtrim.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: Duration(time.Hour),
		},
		Telemetry: TelemetryConfig{
			LogLevel:             "debug",
			LogFormat:            "console",
			MetricsEnabled:       true,
			MetricsListenAddress: ":9090",
			TracingEnabled:       true,
			TracingExporter:      "stdout",
			TracingSampleRate:    1.0,
			EventBufferSize:      1000,
		},
		Policy: PolicyConfig{
			Enabled: true,
			Watch:   false,
		},
		Gateway: GatewayConfig{
			Provider: "memory",
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				Interval:            Duration(60 * time.Second),
				Timeout:             Duration(30 * time.Second),
			},
		},
	}
}

// Production returns the production configuration.
func Production() *Config {
	cfg := Default()
	cfg.Environment = "production"
	cfg.Store.Path = "/var/lib/cloudtrim/cloudtrim.db"
	cfg.Telemetry.LogLevel = "info"
	cfg.Telemetry.LogFormat = "json"
	cfg.Telemetry.TracingExporter = "otlp"
	cfg.Telemetry.TracingEndpoint = "localhost:4317"
	cfg.Telemetry.TracingSampleRate = 0.1
	cfg.Policy.Watch = true
	return cfg
}

// Load reads a YAML configuration file on top of the defaults and validates
// the result. Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Engine.BackoffMaxInterval > 0 && c.Engine.BackoffMaxInterval < c.Engine.BackoffInterval {
		return fmt.Errorf("engine.backoff_max_interval (%s) must not be below engine.backoff_interval (%s)",
			c.Engine.BackoffMaxInterval.Std(), c.Engine.BackoffInterval.Std())
	}

	if c.Gateway.Breaker.Enabled && c.Gateway.Breaker.Timeout == 0 {
		return fmt.Errorf("gateway.breaker.timeout must be set when the breaker is enabled")
	}

	return nil
}

// Write serializes the configuration to a YAML file. Used by `cloudtrim init`
// to scaffold a starting config.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
