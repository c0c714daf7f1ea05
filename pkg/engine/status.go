package engine

import (
	"encoding/json"
	"fmt"
)

// ExecutionStatus represents the overall status of an optimization execution.
type ExecutionStatus string

const (
	// ExecutionStatusPending indicates the execution is admitted but not yet started.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning indicates the pipeline is currently executing.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusCompleted indicates all steps completed successfully.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed indicates the execution failed and could not be
	// (or was not) compensated.
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusRolledBack indicates the execution failed and the
	// resource was verifiably restored from backup.
	ExecutionStatusRolledBack ExecutionStatus = "rolled_back"

	// ExecutionStatusCancelled indicates the execution was cancelled by the
	// caller before completing.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true if the execution status represents a final state.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed ||
		s == ExecutionStatusRolledBack || s == ExecutionStatusCancelled
}

// IsActive returns true if the execution is currently active.
func (s ExecutionStatus) IsActive() bool {
	return s == ExecutionStatusPending || s == ExecutionStatusRunning
}

// Validate checks if the execution status is valid.
func (s ExecutionStatus) Validate() error {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusRolledBack, ExecutionStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid execution status: %s", s)
	}
}

// StepStatus represents the status of a single pipeline step.
type StepStatus string

const (
	// StepStatusPending indicates the step is waiting to execute.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted indicates the step completed successfully.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed indicates the step exhausted its retries or hit a
	// non-retryable error.
	StepStatusFailed StepStatus = "failed"

	// StepStatusRolledBack indicates a completed step was compensated after
	// a later step failed.
	StepStatusRolledBack StepStatus = "rolled_back"

	// StepStatusCancelled indicates the step never ran because the execution
	// was cancelled.
	StepStatusCancelled StepStatus = "cancelled"
)

// IsTerminal returns true if the step status represents a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed ||
		s == StepStatusRolledBack || s == StepStatusCancelled
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted,
		StepStatusFailed, StepStatusRolledBack, StepStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// Phase represents the pipeline phase a step belongs to.
type Phase string

const (
	// PhasePreparation verifies provider connectivity and resource existence.
	PhasePreparation Phase = "preparation"

	// PhaseValidation checks prerequisites and the target configuration.
	PhaseValidation Phase = "validation"

	// PhaseBackup captures the pre-change resource configuration.
	PhaseBackup Phase = "backup"

	// PhaseExecution applies the optimization change to the resource.
	PhaseExecution Phase = "execution"

	// PhaseVerification confirms the resource reached the target configuration.
	PhaseVerification Phase = "verification"

	// PhaseCompletion tags the resource and finishes the pipeline.
	PhaseCompletion Phase = "completion"

	// PhaseRollback compensates a partially applied change.
	PhaseRollback Phase = "rollback"
)

// Order returns the canonical pipeline position of the phase.
// Rollback is not part of the forward pipeline and returns 0.
func (p Phase) Order() int {
	switch p {
	case PhasePreparation:
		return 1
	case PhaseValidation:
		return 2
	case PhaseBackup:
		return 3
	case PhaseExecution:
		return 4
	case PhaseVerification:
		return 5
	case PhaseCompletion:
		return 6
	default:
		return 0
	}
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhasePreparation, PhaseValidation, PhaseBackup, PhaseExecution,
		PhaseVerification, PhaseCompletion, PhaseRollback:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// OptimizationType represents the kind of cost optimization being applied.
type OptimizationType string

const (
	// OptimizationRightsizing resizes an over-provisioned instance.
	OptimizationRightsizing OptimizationType = "rightsizing"

	// OptimizationScheduling configures automatic start/stop schedules.
	OptimizationScheduling OptimizationType = "scheduling"

	// OptimizationUnusedResources removes a resource that is no longer used.
	OptimizationUnusedResources OptimizationType = "unused_resources"

	// OptimizationStorage migrates data to a cheaper storage class.
	OptimizationStorage OptimizationType = "storage_optimization"

	// OptimizationReservedInstances purchases reserved capacity.
	OptimizationReservedInstances OptimizationType = "reserved_instances"

	// OptimizationSpotInstances migrates workloads to spot capacity.
	OptimizationSpotInstances OptimizationType = "spot_instances"
)

// Validate checks if the optimization type is valid.
func (o OptimizationType) Validate() error {
	switch o {
	case OptimizationRightsizing, OptimizationScheduling, OptimizationUnusedResources,
		OptimizationStorage, OptimizationReservedInstances, OptimizationSpotInstances:
		return nil
	default:
		return fmt.Errorf("invalid optimization type: %s", o)
	}
}

// IsDestructive returns true if the optimization removes or replaces the resource.
func (o OptimizationType) IsDestructive() bool {
	return o == OptimizationUnusedResources || o == OptimizationSpotInstances
}

// CloudProvider identifies the cloud platform a resource lives on.
type CloudProvider string

const (
	// ProviderAWS is Amazon Web Services.
	ProviderAWS CloudProvider = "aws"

	// ProviderAzure is Microsoft Azure.
	ProviderAzure CloudProvider = "azure"

	// ProviderGCP is Google Cloud Platform.
	ProviderGCP CloudProvider = "gcp"
)

// Validate checks if the cloud provider is valid.
func (p CloudProvider) Validate() error {
	switch p {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return nil
	default:
		return fmt.Errorf("invalid cloud provider: %s", p)
	}
}

// RiskLevel classifies how risky an optimization is to apply.
type RiskLevel string

const (
	// RiskLow is safe to apply with minimal impact.
	RiskLow RiskLevel = "low"

	// RiskMedium may cause a short interruption.
	RiskMedium RiskLevel = "medium"

	// RiskHigh can interrupt or degrade the workload.
	RiskHigh RiskLevel = "high"
)

// Validate checks if the risk level is valid.
func (r RiskLevel) Validate() error {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return nil
	default:
		return fmt.Errorf("invalid risk level: %s", r)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ExecutionStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StepStatus(str)
	return s.Validate()
}
