package gateways

import (
	"context"
	"testing"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

func TestInstrumentedGatewayPassesThrough(t *testing.T) {
	inner := setupTestGateway(t)
	// nil metrics and tracer disable both signals without changing behavior
	g := NewInstrumentedGateway(inner, "aws", nil, nil)
	ctx := context.Background()

	cfg, err := g.GetResourceConfig(ctx, "i-0web01")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cfg["instance_type"] != "m5.xlarge" {
		t.Errorf("expected pass-through config, got %v", cfg["instance_type"])
	}

	if err := g.ApplyResourceConfig(ctx, "i-0web01", engine.Config{"instance_type": "t3.medium"}, engine.OptimizationRightsizing); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if inner.Resource("i-0web01").Config["instance_type"] != "t3.medium" {
		t.Error("expected mutation to reach inner gateway")
	}

	_, err = g.GetResourceConfig(ctx, "i-missing")
	if engine.ErrCode(err) != engine.ErrCodeNotFound {
		t.Errorf("expected error pass-through, got %v", err)
	}
}

func TestInstrumentedGatewayRecordsMetrics(t *testing.T) {
	inner := setupTestGateway(t)
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "cloudtrim_test"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	g := NewInstrumentedGateway(inner, "aws", metrics, nil)
	ctx := context.Background()

	if _, err := g.GetResourceConfig(ctx, "i-0web01"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, err := g.GetResourceConfig(ctx, "i-missing"); err == nil {
		t.Fatal("expected error for missing resource")
	}
	if _, err := g.CreateBackup(ctx, "i-0web01"); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	// Metrics collection must not alter results; counters are scraped via the
	// registry and not asserted here.
}
