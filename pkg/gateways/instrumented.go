package gateways

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

// InstrumentedGateway decorates a ResourceGateway with metrics and traces.
// Every call records a duration histogram and, on failure, an error counter;
// when a tracer is configured each call runs inside a gateway span.
type InstrumentedGateway struct {
	next     engine.ResourceGateway
	provider string
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// NewInstrumentedGateway wraps next. Metrics and tracer may each be nil,
// disabling that signal.
func NewInstrumentedGateway(next engine.ResourceGateway, provider string, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *InstrumentedGateway {
	return &InstrumentedGateway{
		next:     next,
		provider: provider,
		metrics:  metrics,
		tracer:   tracer,
	}
}

func (g *InstrumentedGateway) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	if g.tracer != nil {
		spanCtx, span := g.tracer.StartGatewaySpan(ctx, g.provider, operation)
		defer span.End()
		ctx = spanCtx
		err := fn(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		g.record(operation, start, err)
		return err
	}

	err := fn(ctx)
	g.record(operation, start, err)
	return err
}

func (g *InstrumentedGateway) record(operation string, start time.Time, err error) {
	g.metrics.RecordGatewayCall(g.provider, operation, time.Since(start))
	if err != nil {
		g.metrics.RecordGatewayError(g.provider, operation)
	}
}

// GetResourceConfig implements engine.ResourceGateway.
func (g *InstrumentedGateway) GetResourceConfig(ctx context.Context, resourceID string) (engine.Config, error) {
	var cfg engine.Config
	err := g.observe(ctx, "get_resource_config", func(ctx context.Context) error {
		var err error
		cfg, err = g.next.GetResourceConfig(ctx, resourceID)
		return err
	})
	return cfg, err
}

// CheckPrerequisite implements engine.ResourceGateway.
func (g *InstrumentedGateway) CheckPrerequisite(ctx context.Context, resourceID, prerequisite string) (bool, error) {
	var ok bool
	err := g.observe(ctx, "check_prerequisite", func(ctx context.Context) error {
		var err error
		ok, err = g.next.CheckPrerequisite(ctx, resourceID, prerequisite)
		return err
	})
	return ok, err
}

// CreateBackup implements engine.ResourceGateway.
func (g *InstrumentedGateway) CreateBackup(ctx context.Context, resourceID string) (json.RawMessage, error) {
	var backup json.RawMessage
	err := g.observe(ctx, "create_backup", func(ctx context.Context) error {
		var err error
		backup, err = g.next.CreateBackup(ctx, resourceID)
		return err
	})
	return backup, err
}

// RestoreBackup implements engine.ResourceGateway.
func (g *InstrumentedGateway) RestoreBackup(ctx context.Context, resourceID string, backup json.RawMessage) error {
	return g.observe(ctx, "restore_backup", func(ctx context.Context) error {
		return g.next.RestoreBackup(ctx, resourceID, backup)
	})
}

// ApplyResourceConfig implements engine.ResourceGateway.
func (g *InstrumentedGateway) ApplyResourceConfig(ctx context.Context, resourceID string, target engine.Config, optimizationType engine.OptimizationType) error {
	return g.observe(ctx, "apply_resource_config", func(ctx context.Context) error {
		return g.next.ApplyResourceConfig(ctx, resourceID, target, optimizationType)
	})
}

// TagResource implements engine.ResourceGateway.
func (g *InstrumentedGateway) TagResource(ctx context.Context, resourceID string, tags map[string]string) error {
	return g.observe(ctx, "tag_resource", func(ctx context.Context) error {
		return g.next.TagResource(ctx, resourceID, tags)
	})
}
