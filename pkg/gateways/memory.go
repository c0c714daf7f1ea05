package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

// Resource is one entry in the simulated cloud inventory.
type Resource struct {
	// ID is the cloud resource identifier.
	ID string `json:"id"`

	// Provider is the cloud platform hosting the resource.
	Provider engine.CloudProvider `json:"cloud_provider"`

	// Region is the cloud region hosting the resource.
	Region string `json:"region"`

	// Config is the resource's current attribute map.
	Config engine.Config `json:"config"`

	// Tags are the resource's tags.
	Tags map[string]string `json:"tags"`
}

// snapshot is the backup wire format captured by CreateBackup.
type snapshot struct {
	ResourceID string               `json:"resource_id"`
	Config     engine.Config        `json:"config"`
	Tags       map[string]string    `json:"tags"`
	Provider   engine.CloudProvider `json:"cloud_provider"`
	CapturedAt time.Time            `json:"captured_at"`
}

// MemoryGateway is an in-memory ResourceGateway over a simulated inventory.
// It backs local development, the demo CLI and tests; all operations are
// safe for concurrent use.
type MemoryGateway struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	latency   time.Duration
	failNext  int
	failErr   error
	logger    zerolog.Logger
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway(logger zerolog.Logger) *MemoryGateway {
	return &MemoryGateway{
		resources: make(map[string]*Resource),
		logger:    logger.With().Str("component", "memory_gateway").Logger(),
	}
}

// Seed adds resources to the inventory, replacing entries with the same ID.
func (g *MemoryGateway) Seed(resources ...Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range resources {
		r := resources[i]
		if r.Config == nil {
			r.Config = engine.Config{}
		}
		if r.Tags == nil {
			r.Tags = map[string]string{}
		}
		g.resources[r.ID] = &r
	}
}

// SetLatency makes every operation sleep for d, simulating provider round
// trips. The sleep respects context cancellation.
func (g *MemoryGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// InjectFailures makes the next n operations fail with err.
func (g *MemoryGateway) InjectFailures(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failErr = err
}

// Resource returns a copy of the inventory entry, or nil if absent.
func (g *MemoryGateway) Resource(resourceID string) *Resource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return nil
	}
	cp := *r
	cp.Config = r.Config.Clone()
	cp.Tags = make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		cp.Tags[k] = v
	}
	return &cp
}

// GetResourceConfig implements engine.ResourceGateway.
func (g *MemoryGateway) GetResourceConfig(ctx context.Context, resourceID string) (engine.Config, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return nil, notFound(resourceID, "get_resource_config")
	}
	return r.Config.Clone(), nil
}

// CheckPrerequisite implements engine.ResourceGateway. Well-known
// prerequisites are evaluated against the resource state; any other name is
// treated as a boolean attribute of the resource configuration.
func (g *MemoryGateway) CheckPrerequisite(ctx context.Context, resourceID, prerequisite string) (bool, error) {
	if err := g.simulate(ctx); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return false, notFound(resourceID, "check_prerequisite")
	}

	switch prerequisite {
	case "resource_exists":
		return true, nil
	case "resource_running":
		return r.Config["state"] == "running", nil
	case "resource_stopped":
		return r.Config["state"] == "stopped", nil
	case "no_active_connections":
		n, _ := r.Config["active_connections"].(float64)
		i, _ := r.Config["active_connections"].(int)
		return n == 0 && i == 0, nil
	default:
		v, ok := r.Config[prerequisite].(bool)
		return ok && v, nil
	}
}

// CreateBackup implements engine.ResourceGateway. The snapshot captures the
// full configuration and tags so a restore is byte-exact.
func (g *MemoryGateway) CreateBackup(ctx context.Context, resourceID string) (json.RawMessage, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return nil, notFound(resourceID, "create_backup")
	}

	snap := snapshot{
		ResourceID: resourceID,
		Config:     r.Config.Clone(),
		Tags:       copyTags(r.Tags),
		Provider:   r.Provider,
		CapturedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, engine.NewPermanentError("failed to encode backup", err).
			WithCode(engine.ErrCodeBackupFailed).
			WithResource(resourceID).
			WithOperation("create_backup")
	}
	g.logger.Debug().
		Str("resource_id", resourceID).
		Int("bytes", len(data)).
		Msg("Backup captured")
	return data, nil
}

// RestoreBackup implements engine.ResourceGateway.
func (g *MemoryGateway) RestoreBackup(ctx context.Context, resourceID string, backup json.RawMessage) error {
	if err := g.simulate(ctx); err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(backup, &snap); err != nil {
		return engine.NewPermanentError("failed to decode backup", err).
			WithCode(engine.ErrCodeRestoreFailed).
			WithResource(resourceID).
			WithOperation("restore_backup")
	}
	if snap.ResourceID != resourceID {
		return engine.NewPermanentError(
			fmt.Sprintf("backup belongs to resource %s, not %s", snap.ResourceID, resourceID), nil).
			WithCode(engine.ErrCodeRestoreFailed).
			WithResource(resourceID).
			WithOperation("restore_backup")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources[resourceID]
	if !ok {
		// A terminated resource is recreated from its snapshot
		r = &Resource{ID: resourceID, Provider: snap.Provider}
		g.resources[resourceID] = r
	}
	r.Config = snap.Config.Clone()
	r.Tags = copyTags(snap.Tags)
	g.logger.Info().
		Str("resource_id", resourceID).
		Msg("Resource restored from backup")
	return nil
}

// ApplyResourceConfig implements engine.ResourceGateway. The resource takes
// on the target configuration; terminated resources stay in the inventory so
// verification and rollback can still read them.
func (g *MemoryGateway) ApplyResourceConfig(ctx context.Context, resourceID string, target engine.Config, optimizationType engine.OptimizationType) error {
	if err := g.simulate(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return notFound(resourceID, "apply_resource_config")
	}

	r.Config = target.Clone()
	g.logger.Info().
		Str("resource_id", resourceID).
		Str("optimization_type", string(optimizationType)).
		Msg("Resource configuration applied")
	return nil
}

// TagResource implements engine.ResourceGateway.
func (g *MemoryGateway) TagResource(ctx context.Context, resourceID string, tags map[string]string) error {
	if err := g.simulate(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources[resourceID]
	if !ok {
		return notFound(resourceID, "tag_resource")
	}
	for k, v := range tags {
		r.Tags[k] = v
	}
	return nil
}

// simulate applies the configured latency and consumes one injected failure.
func (g *MemoryGateway) simulate(ctx context.Context) error {
	g.mu.Lock()
	latency := g.latency
	var fault error
	if g.failNext > 0 {
		g.failNext--
		fault = g.failErr
	}
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fault
}

func notFound(resourceID, operation string) error {
	return engine.NewPermanentError(fmt.Sprintf("resource not found: %s", resourceID), nil).
		WithCode(engine.ErrCodeNotFound).
		WithResource(resourceID).
		WithOperation(operation)
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
