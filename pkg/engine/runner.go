package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StepRunner executes individual pipeline steps with per-attempt timeouts
// and a bounded retry loop. It owns no execution state; everything it needs
// is carried in the ExecutionContext.
type StepRunner struct {
	gateway  ResourceGateway
	handlers *HandlerSet
	backoff  BackoffPolicy
	logger   zerolog.Logger
	publish  func(Event)
}

// NewStepRunner creates a step runner. A nil backoff selects the per-type
// default policy; a nil publish drops events.
func NewStepRunner(gateway ResourceGateway, handlers *HandlerSet, backoff BackoffPolicy, logger zerolog.Logger, publish func(Event)) *StepRunner {
	if publish == nil {
		publish = func(Event) {}
	}
	return &StepRunner{
		gateway:  gateway,
		handlers: handlers,
		backoff:  backoff,
		logger:   logger.With().Str("component", "step_runner").Logger(),
		publish:  publish,
	}
}

// Run executes one step to a terminal status. Attempts are bounded by the
// step's timeout; failed attempts are retried up to MaxRetries as long as
// the error is retryable. The returned error is nil only when the step
// completed.
func (r *StepRunner) Run(ctx context.Context, ec *ExecutionContext, opp *Opportunity, step *ExecutionStep) error {
	now := time.Now().UTC()
	step.Status = StepStatusRunning
	step.StartedAt = &now

	policy := r.backoff
	if policy == nil {
		policy = backoffForType(ec.OptimizationType)
	}

	r.logger.Info().
		Str("execution_id", ec.ExecutionID).
		Str("step", step.Name).
		Str("phase", string(step.Phase)).
		Dur("timeout", step.Timeout).
		Msg("Step started")
	r.emit(EventTypeStepStarted, ec, step, fmt.Sprintf("Step %s started", step.Name))

	for {
		err := r.attempt(ctx, ec, opp, step)
		if err == nil {
			return r.finish(ec, step, StepStatusCompleted, nil)
		}

		if ctx.Err() != nil {
			cancelErr := NewPermanentError("execution cancelled", ctx.Err()).
				WithCode(ErrCodeCancelled).
				WithOperation(step.Name).
				WithResource(ec.ResourceID)
			return r.finish(ec, step, StepStatusCancelled, cancelErr)
		}

		if !IsRetryable(err) || step.RetryCount >= step.MaxRetries {
			return r.finish(ec, step, StepStatusFailed, err)
		}

		step.RetryCount++
		delay := policy.Delay(step.RetryCount)
		r.logger.Warn().
			Str("execution_id", ec.ExecutionID).
			Str("step", step.Name).
			Int("retry", step.RetryCount).
			Int("max_retries", step.MaxRetries).
			Dur("delay", delay).
			Err(err).
			Msg("Step attempt failed, retrying")
		r.emit(EventTypeStepRetrying, ec, step,
			fmt.Sprintf("Step %s attempt %d failed: %v", step.Name, step.RetryCount, err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cancelErr := NewPermanentError("execution cancelled while waiting to retry", ctx.Err()).
				WithCode(ErrCodeCancelled).
				WithOperation(step.Name).
				WithResource(ec.ResourceID)
			return r.finish(ec, step, StepStatusCancelled, cancelErr)
		}
	}
}

// attempt runs a single bounded attempt of the step's phase logic.
func (r *StepRunner) attempt(ctx context.Context, ec *ExecutionContext, opp *Opportunity, step *ExecutionStep) error {
	attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	err := r.executePhase(attemptCtx, ec, opp, step)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NewTransientError(fmt.Sprintf("step %s timed out after %s", step.Name, step.Timeout), err).
			WithCode(ErrCodeTimeout).
			WithOperation(step.Name).
			WithResource(ec.ResourceID)
	}
	return err
}

func (r *StepRunner) executePhase(ctx context.Context, ec *ExecutionContext, opp *Opportunity, step *ExecutionStep) error {
	switch step.Phase {
	case PhasePreparation:
		return r.prepare(ctx, ec)
	case PhaseValidation:
		return r.validate(ctx, ec, opp)
	case PhaseBackup:
		return r.backup(ctx, ec)
	case PhaseExecution:
		handler, err := r.handlers.For(ec.OptimizationType)
		if err != nil {
			return err
		}
		return handler.Apply(ctx, r.gateway, ec, step)
	case PhaseVerification:
		return r.verify(ctx, ec)
	case PhaseCompletion:
		return r.complete(ctx, ec)
	default:
		return NewPermanentError(fmt.Sprintf("unknown pipeline phase %q", step.Phase), nil).
			WithCode(ErrCodeInternal).
			WithOperation(step.Name)
	}
}

// prepare refreshes the resource configuration snapshot so later phases work
// against current state rather than the submission-time read.
func (r *StepRunner) prepare(ctx context.Context, ec *ExecutionContext) error {
	cfg, err := r.gateway.GetResourceConfig(ctx, ec.ResourceID)
	if err != nil {
		return err
	}
	ec.CurrentConfig = cfg
	if ec.RollbackData == nil {
		ec.RollbackData = make(map[string]interface{})
	}
	ec.RollbackData["original_config"] = map[string]interface{}(cfg.Clone())
	return nil
}

// validate checks every prerequisite named by the opportunity. An unmet
// prerequisite is permanent: retrying cannot make an unsatisfied condition
// hold.
func (r *StepRunner) validate(ctx context.Context, ec *ExecutionContext, opp *Opportunity) error {
	for _, prereq := range opp.Prerequisites {
		ok, err := r.gateway.CheckPrerequisite(ctx, ec.ResourceID, prereq)
		if err != nil {
			return err
		}
		if !ok {
			return NewPermanentError(fmt.Sprintf("prerequisite not met: %s", prereq), nil).
				WithCode(ErrCodePrerequisiteNotMet).
				WithOperation("validate_preconditions").
				WithResource(ec.ResourceID).
				WithDetail("prerequisite", prereq)
		}
	}
	return nil
}

func (r *StepRunner) backup(ctx context.Context, ec *ExecutionContext) error {
	backup, err := r.gateway.CreateBackup(ctx, ec.ResourceID)
	if err != nil {
		if IsRetryable(err) {
			return err
		}
		return NewPermanentError("backup creation failed", err).
			WithCode(ErrCodeBackupFailed).
			WithOperation("create_backup").
			WithResource(ec.ResourceID)
	}
	ec.Backup = backup
	return nil
}

// verify re-reads the resource and checks that every target attribute took
// effect. A mismatch is transient because provider reads can lag writes.
func (r *StepRunner) verify(ctx context.Context, ec *ExecutionContext) error {
	cfg, err := r.gateway.GetResourceConfig(ctx, ec.ResourceID)
	if err != nil {
		return err
	}
	want := verificationTarget(ec.TargetConfig)
	if !cfg.Contains(want) {
		return NewTransientError("resource configuration does not match target", nil).
			WithCode(ErrCodeVerificationFailed).
			WithOperation("verify_optimization").
			WithResource(ec.ResourceID)
	}
	return nil
}

func (r *StepRunner) complete(ctx context.Context, ec *ExecutionContext) error {
	tags := map[string]string{
		"optimized":         "true",
		"optimization_type": string(ec.OptimizationType),
		"optimized_at":      time.Now().UTC().Format(time.RFC3339),
		"execution_id":      ec.ExecutionID,
	}
	return r.gateway.TagResource(ctx, ec.ResourceID, tags)
}

// finish records the step's terminal status, appends the log record and
// emits the matching lifecycle event.
func (r *StepRunner) finish(ec *ExecutionContext, step *ExecutionStep, status StepStatus, cause error) error {
	now := time.Now().UTC()
	step.Status = status
	step.CompletedAt = &now
	if cause != nil {
		step.ErrorMessage = cause.Error()
	}

	rec := StepRecord{
		StepID:      step.ID,
		StepName:    step.Name,
		Phase:       step.Phase,
		Status:      status,
		Attempts:    step.RetryCount + 1,
		StartedAt:   step.StartedAt,
		CompletedAt: step.CompletedAt,
	}
	if step.StartedAt != nil {
		rec.Duration = now.Sub(*step.StartedAt)
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	ec.AppendLog(rec)

	switch status {
	case StepStatusCompleted:
		r.logger.Info().
			Str("execution_id", ec.ExecutionID).
			Str("step", step.Name).
			Int("retries", step.RetryCount).
			Dur("duration", rec.Duration).
			Msg("Step completed")
		r.emit(EventTypeStepCompleted, ec, step, fmt.Sprintf("Step %s completed", step.Name))
	case StepStatusCancelled:
		r.logger.Warn().
			Str("execution_id", ec.ExecutionID).
			Str("step", step.Name).
			Msg("Step cancelled")
	default:
		r.logger.Error().
			Str("execution_id", ec.ExecutionID).
			Str("step", step.Name).
			Int("attempts", rec.Attempts).
			Err(cause).
			Msg("Step failed")
		r.emit(EventTypeStepFailed, ec, step, fmt.Sprintf("Step %s failed: %v", step.Name, cause))
	}
	return cause
}

func (r *StepRunner) emit(t EventType, ec *ExecutionContext, step *ExecutionStep, msg string) {
	r.publish(Event{
		ID:          uuid.New().String(),
		Type:        t,
		Timestamp:   time.Now().UTC(),
		ExecutionID: ec.ExecutionID,
		StepID:      step.ID,
		ResourceID:  ec.ResourceID,
		Message:     msg,
		Level:       t.Severity(),
	})
}
