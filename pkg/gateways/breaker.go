package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

// BreakerConfig configures the circuit breaker decorator.
type BreakerConfig struct {
	// Name identifies the breaker in logs and state change callbacks.
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period in the closed state after which the
	// breaker clears its failure counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ConsecutiveFailures is the failure streak that trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "resource_gateway",
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerGateway wraps a ResourceGateway with a circuit breaker so that a
// struggling provider API sheds load instead of absorbing every retry.
// Permanent domain errors (not found, policy denials, unmet prerequisites)
// do not count toward tripping the breaker; only transient and throttled
// failures indicate provider trouble.
type BreakerGateway struct {
	next   engine.ResourceGateway
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

// NewBreakerGateway wraps next with a circuit breaker.
func NewBreakerGateway(next engine.ResourceGateway, cfg BreakerConfig, logger zerolog.Logger) *BreakerGateway {
	log := logger.With().Str("component", "breaker_gateway").Logger()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Only provider-health failures count against the breaker.
			return err == nil || !(engine.IsTransient(err) || engine.IsThrottled(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &BreakerGateway{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: log,
	}
}

// State returns the breaker's current state.
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}

// execute runs fn through the breaker, mapping open-circuit rejections to
// throttled errors so the engine's retry loop backs off instead of failing
// the execution outright.
func (b *BreakerGateway) execute(operation string, fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, engine.NewThrottledError("provider gateway circuit breaker is open", err).
			WithOperation(operation)
	}
	return out, err
}

// GetResourceConfig implements engine.ResourceGateway.
func (b *BreakerGateway) GetResourceConfig(ctx context.Context, resourceID string) (engine.Config, error) {
	out, err := b.execute("get_resource_config", func() (interface{}, error) {
		return b.next.GetResourceConfig(ctx, resourceID)
	})
	if err != nil {
		return nil, err
	}
	return out.(engine.Config), nil
}

// CheckPrerequisite implements engine.ResourceGateway.
func (b *BreakerGateway) CheckPrerequisite(ctx context.Context, resourceID, prerequisite string) (bool, error) {
	out, err := b.execute("check_prerequisite", func() (interface{}, error) {
		return b.next.CheckPrerequisite(ctx, resourceID, prerequisite)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// CreateBackup implements engine.ResourceGateway.
func (b *BreakerGateway) CreateBackup(ctx context.Context, resourceID string) (json.RawMessage, error) {
	out, err := b.execute("create_backup", func() (interface{}, error) {
		return b.next.CreateBackup(ctx, resourceID)
	})
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}

// RestoreBackup implements engine.ResourceGateway.
func (b *BreakerGateway) RestoreBackup(ctx context.Context, resourceID string, backup json.RawMessage) error {
	_, err := b.execute("restore_backup", func() (interface{}, error) {
		return nil, b.next.RestoreBackup(ctx, resourceID, backup)
	})
	return err
}

// ApplyResourceConfig implements engine.ResourceGateway.
func (b *BreakerGateway) ApplyResourceConfig(ctx context.Context, resourceID string, target engine.Config, optimizationType engine.OptimizationType) error {
	_, err := b.execute("apply_resource_config", func() (interface{}, error) {
		return nil, b.next.ApplyResourceConfig(ctx, resourceID, target, optimizationType)
	})
	return err
}

// TagResource implements engine.ResourceGateway.
func (b *BreakerGateway) TagResource(ctx context.Context, resourceID string, tags map[string]string) error {
	_, err := b.execute("tag_resource", func() (interface{}, error) {
		return nil, b.next.TagResource(ctx, resourceID, tags)
	})
	return err
}
