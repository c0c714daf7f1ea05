package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultMaxRetries is the per-step retry budget applied when a handler does
// not override it.
const defaultMaxRetries = 3

// BuildPipeline constructs the ordered step list for an execution. The
// pipeline always carries the six phases in their fixed order; the Execution
// phase expands into the one or more type-specific steps supplied by the
// registered handler, spliced in at the Execution position in handler order.
func BuildPipeline(ec *ExecutionContext, opp *Opportunity, handlers *HandlerSet) ([]*ExecutionStep, error) {
	handler, err := handlers.For(opp.OptimizationType)
	if err != nil {
		return nil, err
	}

	execTimeout := time.Duration(opp.EstimatedExecutionTime) * time.Minute
	if execTimeout <= 0 {
		execTimeout = handler.DefaultTimeout()
	}

	execSteps := handler.ExecutionSteps(ec, opp)
	if len(execSteps) == 0 {
		return nil, NewPermanentError(
			fmt.Sprintf("handler for %q produced no execution steps", opp.OptimizationType), nil).
			WithCode(ErrCodeUnsupportedOptimization).
			WithOperation("build_pipeline")
	}
	for _, s := range execSteps {
		s.ID = uuid.New().String()
		s.Phase = PhaseExecution
		if s.Timeout <= 0 {
			s.Timeout = execTimeout
		}
	}

	steps := []*ExecutionStep{
		{
			ID:          uuid.New().String(),
			Name:        "prepare_execution",
			Description: fmt.Sprintf("Prepare execution environment for %s", ec.ResourceID),
			Phase:       PhasePreparation,
			Timeout:     5 * time.Minute,
		},
		{
			ID:          uuid.New().String(),
			Name:        "validate_preconditions",
			Description: "Validate resource state and prerequisites",
			Phase:       PhaseValidation,
			Timeout:     10 * time.Minute,
		},
		{
			ID:          uuid.New().String(),
			Name:        "create_backup",
			Description: fmt.Sprintf("Create restorable backup of %s", ec.ResourceID),
			Phase:       PhaseBackup,
			Timeout:     15 * time.Minute,
		},
	}
	steps = append(steps, execSteps...)
	steps = append(steps,
		&ExecutionStep{
			ID:          uuid.New().String(),
			Name:        "verify_optimization",
			Description: "Verify the resource matches the target configuration",
			Phase:       PhaseVerification,
			Timeout:     10 * time.Minute,
		},
		&ExecutionStep{
			ID:          uuid.New().String(),
			Name:        "complete_execution",
			Description: "Tag the resource and finalize the execution record",
			Phase:       PhaseCompletion,
			Timeout:     5 * time.Minute,
		},
	)

	for _, s := range steps {
		s.Order = s.Phase.Order()
		s.Status = StepStatusPending
		if s.MaxRetries <= 0 {
			s.MaxRetries = defaultMaxRetries
		}
	}
	return steps, nil
}
