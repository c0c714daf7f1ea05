package engine

import (
	"encoding/json"
	"reflect"
	"time"
)

// Config is a cloud resource configuration snapshot, keyed by attribute name
// (e.g. "instance_type", "storage_class"). Values are JSON-compatible.
type Config map[string]interface{}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = deepCopyValue(v)
	}
	return out
}

// Equal reports whether two configurations are field-equal.
func (c Config) Equal(other Config) bool {
	if len(c) != len(other) {
		return false
	}
	return reflect.DeepEqual(map[string]interface{}(c), map[string]interface{}(other))
}

// Contains reports whether every key/value in want is present and equal in c.
// Verification uses this to check that the target attributes were applied
// without requiring the full config to match.
func (c Config) Contains(want Config) bool {
	for k, v := range want {
		got, ok := c[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// Opportunity is an approved cost-saving change produced by the discovery
// subsystem. It is read-only input to the engine and immutable once submitted.
type Opportunity struct {
	// ID is the unique identifier assigned by the discovery subsystem.
	ID string `json:"id" validate:"required"`

	// ServiceName is the cloud service the resource belongs to (e.g. "ec2").
	ServiceName string `json:"service_name"`

	// ResourceID identifies the cloud resource to optimize.
	ResourceID string `json:"resource_id" validate:"required"`

	// OptimizationType is the kind of change to apply.
	OptimizationType OptimizationType `json:"optimization_type" validate:"required"`

	// Provider is the cloud platform hosting the resource.
	Provider CloudProvider `json:"cloud_provider" validate:"required"`

	// Region is the cloud region hosting the resource.
	Region string `json:"region" validate:"required"`

	// CurrentCost is the resource's current monthly cost in USD.
	CurrentCost float64 `json:"current_cost"`

	// PotentialSavings is the estimated monthly savings in USD.
	PotentialSavings float64 `json:"potential_savings"`

	// RiskLevel classifies the blast radius of the change.
	RiskLevel RiskLevel `json:"risk_level"`

	// Description is a human-readable summary of the change.
	Description string `json:"description"`

	// Prerequisites are conditions that must hold before execution.
	Prerequisites []string `json:"prerequisites,omitempty"`

	// Recommendation contains the target attribute values computed by
	// discovery (e.g. {"instance_type": "t3.medium"}). Attributes not listed
	// fall back to per-type defaults.
	Recommendation Config `json:"recommendation,omitempty"`

	// EstimatedExecutionTime is the expected duration of the execution phase
	// in minutes, used as that phase's step timeout.
	EstimatedExecutionTime int `json:"estimated_execution_time" validate:"gte=0"`

	// Metadata contains additional opportunity metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RollbackAction describes one compensating operation for a step, in the
// order it must be performed during rollback.
type RollbackAction struct {
	// Order is the position of this action within the step's rollback sequence.
	Order int `json:"order"`

	// Description is the human-readable compensating operation.
	Description string `json:"description"`
}

// ExecutionStep is an atomic, retryable unit of work within a pipeline.
type ExecutionStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`

	// Name is the human-readable step name.
	Name string `json:"name"`

	// Description explains what the step does.
	Description string `json:"description"`

	// Phase is the pipeline phase this step belongs to.
	Phase Phase `json:"phase"`

	// Order defines the strict total order of steps within the pipeline.
	Order int `json:"order"`

	// Timeout bounds a single attempt of this step.
	Timeout time.Duration `json:"timeout"`

	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of failed attempts before the step
	// becomes Failed.
	MaxRetries int `json:"max_retries"`

	// Status is the current step status.
	Status StepStatus `json:"status"`

	// StartedAt is when the first attempt began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the step reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ErrorMessage holds the last attempt's error, if any.
	ErrorMessage string `json:"error_message,omitempty"`

	// RollbackActions describe the compensating operations for this step.
	RollbackActions []RollbackAction `json:"rollback_actions,omitempty"`

	// Metadata contains additional step metadata recorded during execution.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StepRecord is one append-only entry in the execution log, written at every
// terminal step transition.
type StepRecord struct {
	// StepID is the ID of the step this record belongs to.
	StepID string `json:"step_id"`

	// StepName is the step's human-readable name.
	StepName string `json:"step_name"`

	// Phase is the step's pipeline phase.
	Phase Phase `json:"phase"`

	// Status is the terminal status the step reached.
	Status StepStatus `json:"status"`

	// Attempts is the total number of attempts made (1 + retries).
	Attempts int `json:"attempts"`

	// Error is the failure message, if the step failed.
	Error string `json:"error,omitempty"`

	// StartedAt is when the step started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the step reached its terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is CompletedAt - StartedAt.
	Duration time.Duration `json:"duration"`
}

// ExecutionContext holds all state for one in-flight execution attempt.
// It is owned exclusively by that execution and never shared.
type ExecutionContext struct {
	// OpportunityID is the ID of the opportunity being executed.
	OpportunityID string `json:"opportunity_id"`

	// ExecutionID is unique per execution attempt.
	ExecutionID string `json:"execution_id"`

	// ResourceID identifies the cloud resource under change.
	ResourceID string `json:"resource_id"`

	// Provider is the cloud platform hosting the resource.
	Provider CloudProvider `json:"cloud_provider"`

	// Region is the cloud region hosting the resource.
	Region string `json:"region"`

	// OptimizationType is the kind of change being applied.
	OptimizationType OptimizationType `json:"optimization_type"`

	// CurrentConfig is the resource configuration snapshot read at submission.
	CurrentConfig Config `json:"current_config"`

	// TargetConfig is the desired configuration after the change.
	TargetConfig Config `json:"target_config"`

	// Backup is the opaque snapshot captured during the Backup phase; nil
	// until that phase completes.
	Backup json.RawMessage `json:"backup_data,omitempty"`

	// Log is the ordered, append-only list of step outcome records.
	Log []StepRecord `json:"execution_log"`

	// RollbackData contains data recorded for compensation purposes.
	RollbackData map[string]interface{} `json:"rollback_data,omitempty"`
}

// AppendLog appends a step outcome record to the execution log.
func (c *ExecutionContext) AppendLog(rec StepRecord) {
	c.Log = append(c.Log, rec)
}

// Record is the audit projection of an execution handed to the persistence
// collaborator. It outlives the in-memory context.
type Record struct {
	// ID is the execution ID.
	ID string `json:"id"`

	// OpportunityID is the opportunity this execution applies.
	OpportunityID string `json:"opportunity_id"`

	// ResourceID identifies the cloud resource under change.
	ResourceID string `json:"resource_id"`

	// OptimizationType is the kind of change applied.
	OptimizationType OptimizationType `json:"optimization_type"`

	// Status is the current execution status.
	Status ExecutionStatus `json:"status"`

	// StartedAt is when the execution was admitted.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the execution reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ActualSavings is the realized monthly savings in USD, recorded on success.
	ActualSavings float64 `json:"actual_savings"`

	// Log is a copy of the execution log at the last update.
	Log []StepRecord `json:"execution_log"`

	// ErrorMessage holds the failure reason for failed executions.
	ErrorMessage string `json:"error_message,omitempty"`

	// RollbackRequired indicates whether compensation was needed (a backup
	// had been captured before the failure).
	RollbackRequired bool `json:"rollback_required"`

	// RollbackCompleted indicates whether compensation verifiably succeeded.
	RollbackCompleted bool `json:"rollback_completed"`

	// ExecutedBy is the approver who authorized the execution.
	ExecutedBy string `json:"executed_by"`
}

// RollbackOutcome reports the result of a compensation attempt.
type RollbackOutcome struct {
	// Required is false when no backup existed, meaning nothing external had
	// changed and no restore was attempted.
	Required bool `json:"required"`

	// Completed is true when the restore succeeded and verification confirmed
	// the resource matches the pre-change snapshot.
	Completed bool `json:"completed"`

	// StepsRolledBack is the number of completed steps compensated, in
	// reverse order.
	StepsRolledBack int `json:"steps_rolled_back"`

	// VerifiedAt is when restoration was verified, if it was.
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// Error is the restore or verification failure, if any.
	Error string `json:"error,omitempty"`
}

// StatusView is a point-in-time snapshot of an execution's progress.
type StatusView struct {
	// ExecutionID is the execution being reported.
	ExecutionID string `json:"execution_id"`

	// OpportunityID is the opportunity being executed.
	OpportunityID string `json:"opportunity_id"`

	// ResourceID identifies the cloud resource under change.
	ResourceID string `json:"resource_id"`

	// Status is the overall execution status.
	Status ExecutionStatus `json:"status"`

	// CurrentStep is the name of the step in flight, if any.
	CurrentStep string `json:"current_step,omitempty"`

	// CurrentPhase is the phase of the step in flight, if any.
	CurrentPhase Phase `json:"current_phase,omitempty"`

	// StepsTotal is the number of steps in the pipeline.
	StepsTotal int `json:"steps_total"`

	// StepsCompleted is the number of steps that have completed.
	StepsCompleted int `json:"steps_completed"`

	// StartedAt is when the execution was admitted.
	StartedAt time.Time `json:"started_at"`
}

// Event represents a lifecycle event emitted by the engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the event type.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// ExecutionID is the execution this event belongs to.
	ExecutionID string `json:"execution_id,omitempty"`

	// StepID is the step this event belongs to, if applicable.
	StepID string `json:"step_id,omitempty"`

	// ResourceID is the resource under change, if applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`
}

// EventType represents the type of engine lifecycle event.
type EventType string

const (
	// EventTypeExecutionStarted indicates an execution was admitted and started.
	EventTypeExecutionStarted EventType = "execution.started"

	// EventTypeExecutionCompleted indicates all steps completed.
	EventTypeExecutionCompleted EventType = "execution.completed"

	// EventTypeExecutionFailed indicates the execution failed.
	EventTypeExecutionFailed EventType = "execution.failed"

	// EventTypeExecutionCancelled indicates the execution was cancelled.
	EventTypeExecutionCancelled EventType = "execution.cancelled"

	// EventTypeStepStarted indicates a step began executing.
	EventTypeStepStarted EventType = "step.started"

	// EventTypeStepCompleted indicates a step completed.
	EventTypeStepCompleted EventType = "step.completed"

	// EventTypeStepRetrying indicates a step attempt failed and will be retried.
	EventTypeStepRetrying EventType = "step.retrying"

	// EventTypeStepFailed indicates a step exhausted its retries.
	EventTypeStepFailed EventType = "step.failed"

	// EventTypeRollbackStarted indicates compensation began.
	EventTypeRollbackStarted EventType = "rollback.started"

	// EventTypeRollbackCompleted indicates compensation verifiably succeeded.
	EventTypeRollbackCompleted EventType = "rollback.completed"

	// EventTypeRollbackFailed indicates compensation failed; the resource may
	// be in an inconsistent state and requires escalation.
	EventTypeRollbackFailed EventType = "rollback.failed"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeExecutionFailed, EventTypeStepFailed, EventTypeRollbackFailed:
		return "error"
	case EventTypeStepRetrying, EventTypeExecutionCancelled:
		return "warning"
	default:
		return "info"
	}
}
