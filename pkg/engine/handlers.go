package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OptimizationHandler supplies the type-specific Execution phase steps and
// performs the actual resource mutation for one optimization type.
type OptimizationHandler interface {
	// Type returns the optimization type this handler serves.
	Type() OptimizationType

	// DefaultTimeout is the Execution step timeout used when the opportunity
	// carries no estimate.
	DefaultTimeout() time.Duration

	// ExecutionSteps builds the Execution phase steps for the given
	// execution, in the order they must run. The pipeline builder fills in
	// ID, phase, order and status.
	ExecutionSteps(ec *ExecutionContext, opp *Opportunity) []*ExecutionStep

	// Apply performs the mutation for one of the handler's Execution steps.
	// It is invoked by the step runner under that step's timeout and retry
	// budget.
	Apply(ctx context.Context, gateway ResourceGateway, ec *ExecutionContext, step *ExecutionStep) error
}

// HandlerSet is a registry of optimization handlers keyed by type.
type HandlerSet struct {
	mu       sync.RWMutex
	handlers map[OptimizationType]OptimizationHandler
}

// NewHandlerSet creates an empty handler registry.
func NewHandlerSet() *HandlerSet {
	return &HandlerSet{handlers: make(map[OptimizationType]OptimizationHandler)}
}

// DefaultHandlers returns a registry populated with the built-in handlers
// for all supported optimization types.
func DefaultHandlers() *HandlerSet {
	hs := NewHandlerSet()
	for _, h := range builtinHandlers() {
		hs.Register(h)
	}
	return hs
}

// Register adds or replaces the handler for its optimization type.
func (hs *HandlerSet) Register(h OptimizationHandler) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.handlers[h.Type()] = h
}

// For returns the handler for the given optimization type, or a permanent
// UNSUPPORTED_OPTIMIZATION error when none is registered.
func (hs *HandlerSet) For(t OptimizationType) (OptimizationHandler, error) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	h, ok := hs.handlers[t]
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("no handler registered for optimization type %q", t), nil).
			WithCode(ErrCodeUnsupportedOptimization).
			WithOperation("handler_lookup")
	}
	return h, nil
}

// applyFunc performs one Execution step's mutation through the gateway.
type applyFunc func(ctx context.Context, gateway ResourceGateway, ec *ExecutionContext) error

// stepSpec describes one Execution phase step of a built-in handler. A nil
// apply means the shared delta-apply of the computed target configuration.
type stepSpec struct {
	name        string
	description string
	rollback    []RollbackAction
	apply       applyFunc
}

// typeHandler is the common implementation behind the built-in handlers.
// Each instance carries its type's ordered step specs; most types need a
// single delta-apply step, migration-style types need more.
type typeHandler struct {
	optType OptimizationType
	timeout time.Duration
	steps   []stepSpec
}

func (h *typeHandler) Type() OptimizationType { return h.optType }

func (h *typeHandler) DefaultTimeout() time.Duration { return h.timeout }

func (h *typeHandler) ExecutionSteps(ec *ExecutionContext, _ *Opportunity) []*ExecutionStep {
	steps := make([]*ExecutionStep, 0, len(h.steps))
	for _, spec := range h.steps {
		actions := make([]RollbackAction, len(spec.rollback))
		copy(actions, spec.rollback)
		// Timeout stays zero: the builder applies the opportunity estimate,
		// falling back to the handler default.
		steps = append(steps, &ExecutionStep{
			Name:            spec.name,
			Description:     fmt.Sprintf(spec.description, ec.ResourceID),
			RollbackActions: actions,
		})
	}
	return steps
}

func (h *typeHandler) Apply(ctx context.Context, gateway ResourceGateway, ec *ExecutionContext, step *ExecutionStep) error {
	for _, spec := range h.steps {
		if spec.name != step.Name {
			continue
		}
		if spec.apply != nil {
			return spec.apply(ctx, gateway, ec)
		}
		return applyTarget(ctx, gateway, ec, h.optType)
	}
	return NewPermanentError(fmt.Sprintf("handler %s has no step %q", h.optType, step.Name), nil).
		WithCode(ErrCodeInternal).
		WithOperation(step.Name)
}

// applyTarget is the shared mutation: push the computed target configuration
// through the gateway.
func applyTarget(ctx context.Context, gateway ResourceGateway, ec *ExecutionContext, t OptimizationType) error {
	return gateway.ApplyResourceConfig(ctx, ec.ResourceID, ec.TargetConfig, t)
}

// confirmSpotFulfillment re-reads the resource until the provider reports
// spot capacity serving. Unfulfilled capacity is transient: the step's retry
// budget covers the provider's fulfillment lag.
func confirmSpotFulfillment(ctx context.Context, gateway ResourceGateway, ec *ExecutionContext) error {
	cfg, err := gateway.GetResourceConfig(ctx, ec.ResourceID)
	if err != nil {
		return err
	}
	if cfg["lifecycle"] != "spot" {
		return NewTransientError("spot capacity not yet fulfilled", nil).
			WithCode(ErrCodeExecutionFailed).
			WithResource(ec.ResourceID).
			WithOperation("confirm_spot_fulfillment")
	}
	return nil
}

func builtinHandlers() []OptimizationHandler {
	return []OptimizationHandler{
		&typeHandler{
			optType: OptimizationRightsizing,
			timeout: 20 * time.Minute,
			steps: []stepSpec{
				{
					name:        "resize_resource",
					description: "Resize %s to the recommended instance type",
					rollback: []RollbackAction{
						{Order: 1, Description: "Restore original instance type from backup"},
						{Order: 2, Description: "Verify resource is running with original configuration"},
					},
				},
			},
		},
		&typeHandler{
			optType: OptimizationScheduling,
			timeout: 15 * time.Minute,
			steps: []stepSpec{
				{
					name:        "apply_schedule",
					description: "Apply start/stop schedule to %s",
					rollback: []RollbackAction{
						{Order: 1, Description: "Remove start/stop schedule"},
						{Order: 2, Description: "Ensure resource is running continuously"},
					},
				},
			},
		},
		&typeHandler{
			optType: OptimizationUnusedResources,
			timeout: 10 * time.Minute,
			steps: []stepSpec{
				{
					name:        "terminate_resource",
					description: "Terminate unused resource %s",
					rollback: []RollbackAction{
						{Order: 1, Description: "Recreate resource from backup snapshot"},
						{Order: 2, Description: "Restore resource tags and configuration"},
					},
				},
			},
		},
		&typeHandler{
			optType: OptimizationStorage,
			timeout: 30 * time.Minute,
			steps: []stepSpec{
				{
					name:        "migrate_storage_class",
					description: "Migrate %s to the recommended storage class",
					rollback: []RollbackAction{
						{Order: 1, Description: "Migrate data back to original storage class"},
						{Order: 2, Description: "Verify data integrity after migration"},
					},
				},
			},
		},
		&typeHandler{
			optType: OptimizationReservedInstances,
			timeout: 5 * time.Minute,
			steps: []stepSpec{
				{
					name:        "purchase_reservation",
					description: "Purchase reserved capacity covering %s",
					rollback: []RollbackAction{
						{Order: 1, Description: "Request reservation cancellation within the provider grace period"},
					},
				},
			},
		},
		&typeHandler{
			optType: OptimizationSpotInstances,
			timeout: 25 * time.Minute,
			steps: []stepSpec{
				{
					name:        "request_spot_capacity",
					description: "Request spot capacity replacing %s",
					rollback: []RollbackAction{
						{Order: 1, Description: "Launch on-demand replacement from backup"},
						{Order: 2, Description: "Terminate spot instance and reattach resources"},
					},
				},
				{
					name:        "confirm_spot_fulfillment",
					description: "Confirm spot capacity is serving for %s",
					apply:       confirmSpotFulfillment,
					rollback: []RollbackAction{
						{Order: 1, Description: "Cancel outstanding spot request"},
					},
				},
			},
		},
	}
}
