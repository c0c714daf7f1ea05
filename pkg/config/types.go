package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudtrim/cloudtrim/pkg/gateways"
	"github.com/cloudtrim/cloudtrim/pkg/stores"
	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

// Duration wraps time.Duration so values can be written as "30s" or "5m" in
// YAML configuration files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level service configuration for CloudTrim.
type Config struct {
	// Environment is the deployment environment.
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`

	// Engine configures the execution engine.
	Engine EngineConfig `yaml:"engine"`

	// Store configures the SQLite audit store.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, metrics, tracing, and events.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Policy configures the OPA guardrails.
	Policy PolicyConfig `yaml:"policy"`

	// Gateway configures the resource gateway and its circuit breaker.
	Gateway GatewayConfig `yaml:"gateway"`
}

// EngineConfig holds execution engine tuning knobs.
type EngineConfig struct {
	// BackoffInterval is the base wait between step retries.
	BackoffInterval Duration `yaml:"backoff_interval" validate:"min=0"`

	// BackoffMaxInterval caps the exponential backoff used for destructive
	// optimization types.
	BackoffMaxInterval Duration `yaml:"backoff_max_interval" validate:"min=0"`

	// ShutdownTimeout bounds how long Shutdown waits for active executions
	// before force-cancelling them.
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// StoreConfig holds audit store settings.
type StoreConfig struct {
	// Path is the SQLite database path, or ":memory:" for an ephemeral store.
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns limits concurrent connections.
	MaxOpenConns int `yaml:"max_open_conns" validate:"min=0"`

	// MaxIdleConns limits idle pooled connections.
	MaxIdleConns int `yaml:"max_idle_conns" validate:"min=0"`

	// ConnMaxLifetime bounds how long a pooled connection is reused.
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" validate:"min=0"`
}

// TelemetryConfig holds the observability settings surfaced in the service
// config file. It maps onto telemetry.Config.
type TelemetryConfig struct {
	// LogLevel sets the minimum log level (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level" validate:"required,oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format" validate:"required,oneof=console json"`

	// MetricsEnabled controls prometheus metrics collection.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MetricsListenAddress is the promhttp listen address.
	MetricsListenAddress string `yaml:"metrics_listen_address" validate:"required_if=MetricsEnabled true"`

	// TracingEnabled controls otel tracing.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingExporter selects the span exporter (otlp, stdout, none).
	TracingExporter string `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `yaml:"tracing_endpoint"`

	// TracingSampleRate is the trace sampling rate (0.0 to 1.0).
	TracingSampleRate float64 `yaml:"tracing_sample_rate" validate:"gte=0,lte=1"`

	// EventBufferSize is the buffered event publisher capacity.
	EventBufferSize int `yaml:"event_buffer_size" validate:"min=1"`
}

// PolicyConfig holds OPA guardrail settings.
type PolicyConfig struct {
	// Enabled toggles guardrail evaluation at submission.
	Enabled bool `yaml:"enabled"`

	// Paths lists .rego / .json policy files or directories to load in
	// addition to the built-in guardrails.
	Paths []string `yaml:"paths"`

	// Watch enables fsnotify hot reload of the policy paths.
	Watch bool `yaml:"watch"`
}

// GatewayConfig holds resource gateway settings.
type GatewayConfig struct {
	// Provider labels which cloud the gateway targets.
	Provider string `yaml:"provider" validate:"required,oneof=aws azure gcp memory"`

	// SimulatedLatency adds per-call latency to the in-memory gateway.
	SimulatedLatency Duration `yaml:"simulated_latency" validate:"min=0"`

	// Breaker configures the circuit breaker decorator.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// Enabled toggles the breaker decorator.
	Enabled bool `yaml:"enabled"`

	// ConsecutiveFailures is the trip threshold.
	ConsecutiveFailures int `yaml:"consecutive_failures" validate:"min=1"`

	// Interval is the closed-state counter reset interval.
	Interval Duration `yaml:"interval" validate:"min=0"`

	// Timeout is how long the breaker stays open before probing.
	Timeout Duration `yaml:"timeout" validate:"min=0"`
}

// TelemetryConfig converts the YAML telemetry section into the richer
// telemetry.Config consumed by pkg/telemetry.
func (c *Config) TelemetryConfig() *telemetry.Config {
	tc := telemetry.DefaultConfig()
	if c.Environment == "production" {
		tc = telemetry.ProductionConfig()
	}

	tc.Environment = c.Environment
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsListenAddress != "" {
		tc.Metrics.ListenAddress = c.Telemetry.MetricsListenAddress
	}
	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TracingExporter != "" {
		tc.Tracing.Exporter = c.Telemetry.TracingExporter
	}
	tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	tc.Tracing.SamplingRate = c.Telemetry.TracingSampleRate
	if c.Telemetry.EventBufferSize > 0 {
		tc.Events.BufferSize = c.Telemetry.EventBufferSize
	}

	return tc
}

// StoreConfig converts the YAML store section into the stores package config.
func (c *Config) StoreConfig() stores.Config {
	return stores.Config{
		Path:            c.Store.Path,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime.Std(),
	}
}

// BreakerConfig converts the YAML breaker section into the gateways package
// config.
func (c *Config) BreakerConfig() gateways.BreakerConfig {
	return gateways.BreakerConfig{
		Name:                fmt.Sprintf("%s-gateway", c.Gateway.Provider),
		MaxRequests:         1,
		ConsecutiveFailures: uint32(c.Gateway.Breaker.ConsecutiveFailures),
		Interval:            c.Gateway.Breaker.Interval.Std(),
		Timeout:             c.Gateway.Breaker.Timeout.Std(),
	}
}
