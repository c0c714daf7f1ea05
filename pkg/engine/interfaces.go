package engine

import (
	"context"
	"encoding/json"
)

// ResourceGateway is the engine's only door to the cloud provider. Every
// external effect of an execution flows through this interface, which makes
// executions testable against in-memory implementations.
type ResourceGateway interface {
	// GetResourceConfig reads the resource's current configuration.
	// Returns a NOT_FOUND error if the resource does not exist.
	GetResourceConfig(ctx context.Context, resourceID string) (Config, error)

	// CheckPrerequisite evaluates a named prerequisite condition against the
	// resource. It returns false with a nil error when the condition is
	// checkable but not met.
	CheckPrerequisite(ctx context.Context, resourceID, prerequisite string) (bool, error)

	// CreateBackup captures an opaque restorable snapshot of the resource.
	CreateBackup(ctx context.Context, resourceID string) (json.RawMessage, error)

	// RestoreBackup restores the resource from a previously captured snapshot.
	RestoreBackup(ctx context.Context, resourceID string, backup json.RawMessage) error

	// ApplyResourceConfig mutates the resource toward the target
	// configuration. Implementations translate the attribute delta into the
	// provider calls appropriate for the optimization type.
	ApplyResourceConfig(ctx context.Context, resourceID string, target Config, optimizationType OptimizationType) error

	// TagResource attaches tags to the resource.
	TagResource(ctx context.Context, resourceID string, tags map[string]string) error
}

// AuditStore persists the durable record of every execution. Writes are
// keyed by execution ID and upsert the full record.
type AuditStore interface {
	// SaveExecution inserts or updates an execution record.
	SaveExecution(ctx context.Context, rec *Record) error

	// GetExecution retrieves an execution record by ID.
	GetExecution(ctx context.Context, executionID string) (*Record, error)

	// ListExecutions retrieves execution records matching the filter,
	// most recent first.
	ListExecutions(ctx context.Context, filter RecordFilter) ([]*Record, error)

	// SaveEvent appends a lifecycle event to the audit trail.
	SaveEvent(ctx context.Context, event *Event) error

	// ListEvents retrieves events for an execution in chronological order.
	ListEvents(ctx context.Context, executionID string) ([]*Event, error)

	// Close releases store resources.
	Close() error
}

// RecordFilter narrows an execution record listing. Zero-valued fields
// match everything.
type RecordFilter struct {
	// OpportunityID filters by opportunity.
	OpportunityID string

	// ResourceID filters by resource.
	ResourceID string

	// Status filters by execution status.
	Status ExecutionStatus

	// OptimizationType filters by optimization type.
	OptimizationType OptimizationType

	// Limit caps the number of records returned; zero means no cap.
	Limit int
}

// EventPublisher receives lifecycle events as they happen. Implementations
// must not block; slow consumers should buffer or drop.
type EventPublisher interface {
	// Publish delivers an engine lifecycle event.
	Publish(event Event)
}

// Guard decides whether an execution may be admitted. The engine consults it
// once at submission, before any external effect.
type Guard interface {
	// Evaluate returns the guard decision for the given execution input.
	// A nil error with Allowed=false means the guard denied admission.
	Evaluate(ctx context.Context, input GuardInput) (GuardDecision, error)
}

// GuardInput is the data a Guard evaluates at submission time.
type GuardInput struct {
	// Opportunity is the approved opportunity being submitted.
	Opportunity *Opportunity `json:"opportunity"`

	// ExecutedBy is the approver submitting the execution.
	ExecutedBy string `json:"executed_by"`

	// CurrentConfig is the resource configuration read at submission.
	CurrentConfig Config `json:"current_config"`
}

// GuardDecision is the outcome of a Guard evaluation.
type GuardDecision struct {
	// Allowed is true when the execution may proceed.
	Allowed bool `json:"allowed"`

	// Reasons lists the denial reasons when Allowed is false.
	Reasons []string `json:"reasons,omitempty"`
}
