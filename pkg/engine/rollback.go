package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rollbackMaxAttempts bounds restore attempts during compensation. Rollback
// gets its own budget because it runs after the execution's retry budget is
// already spent.
const rollbackMaxAttempts = 3

// rollbackGrace bounds compensation that runs after the execution's own
// context is already cancelled.
const rollbackGrace = 5 * time.Minute

// RollbackCoordinator restores a resource to its pre-change snapshot after a
// failed execution and verifies that the restoration took effect.
type RollbackCoordinator struct {
	gateway ResourceGateway
	backoff BackoffPolicy
	logger  zerolog.Logger
	publish func(Event)
}

// NewRollbackCoordinator creates a rollback coordinator. A nil backoff uses
// the default fixed policy; a nil publish drops events.
func NewRollbackCoordinator(gateway ResourceGateway, backoff BackoffPolicy, logger zerolog.Logger, publish func(Event)) *RollbackCoordinator {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	if publish == nil {
		publish = func(Event) {}
	}
	return &RollbackCoordinator{
		gateway: gateway,
		backoff: backoff,
		logger:  logger.With().Str("component", "rollback").Logger(),
		publish: publish,
	}
}

// Rollback compensates a failed execution. When no backup was captured the
// resource was never mutated and the outcome reports Required=false with no
// error. Otherwise the backup is restored with bounded retries and the
// resource is re-read to verify it matches the pre-change snapshot. A restore
// or verification failure is returned as a RESTORE_FAILED error alongside the
// outcome; it is never swallowed.
func (rc *RollbackCoordinator) Rollback(ctx context.Context, ec *ExecutionContext, steps []*ExecutionStep) (RollbackOutcome, error) {
	if ec.Backup == nil {
		rc.logger.Info().
			Str("execution_id", ec.ExecutionID).
			Msg("No backup captured, rollback not required")
		return RollbackOutcome{Required: false}, nil
	}

	rc.logger.Warn().
		Str("execution_id", ec.ExecutionID).
		Str("resource_id", ec.ResourceID).
		Msg("Starting rollback")
	rc.emit(EventTypeRollbackStarted, ec, "Rollback started")

	outcome := RollbackOutcome{Required: true}

	if err := rc.restore(ctx, ec); err != nil {
		outcome.Error = err.Error()
		rc.logger.Error().
			Str("execution_id", ec.ExecutionID).
			Str("resource_id", ec.ResourceID).
			Err(err).
			Msg("Rollback failed, resource may be in an inconsistent state")
		rc.emit(EventTypeRollbackFailed, ec, fmt.Sprintf("Rollback failed: %v", err))
		return outcome, err
	}

	if err := rc.verifyRestore(ctx, ec); err != nil {
		outcome.Error = err.Error()
		rc.emit(EventTypeRollbackFailed, ec, fmt.Sprintf("Rollback verification failed: %v", err))
		return outcome, err
	}

	now := time.Now().UTC()
	outcome.Completed = true
	outcome.VerifiedAt = &now
	outcome.StepsRolledBack = markRolledBack(steps)

	rc.logger.Info().
		Str("execution_id", ec.ExecutionID).
		Int("steps_rolled_back", outcome.StepsRolledBack).
		Msg("Rollback completed and verified")
	rc.emit(EventTypeRollbackCompleted, ec, "Rollback completed and verified")
	return outcome, nil
}

// restore replays the backup with bounded retries on retryable failures.
func (rc *RollbackCoordinator) restore(ctx context.Context, ec *ExecutionContext) error {
	var lastErr error
	for attempt := 1; attempt <= rollbackMaxAttempts; attempt++ {
		lastErr = rc.gateway.RestoreBackup(ctx, ec.ResourceID, ec.Backup)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == rollbackMaxAttempts {
			break
		}
		select {
		case <-time.After(rc.backoff.Delay(attempt)):
		case <-ctx.Done():
			return NewPermanentError("rollback interrupted", ctx.Err()).
				WithCode(ErrCodeRestoreFailed).
				WithResource(ec.ResourceID).
				WithOperation("restore_backup")
		}
	}
	return NewPermanentError("failed to restore backup", lastErr).
		WithCode(ErrCodeRestoreFailed).
		WithResource(ec.ResourceID).
		WithOperation("restore_backup")
}

// verifyRestore re-reads the resource and checks it matches the snapshot
// taken before any mutation.
func (rc *RollbackCoordinator) verifyRestore(ctx context.Context, ec *ExecutionContext) error {
	cfg, err := rc.gateway.GetResourceConfig(ctx, ec.ResourceID)
	if err != nil {
		return NewPermanentError("failed to verify restored configuration", err).
			WithCode(ErrCodeRestoreFailed).
			WithResource(ec.ResourceID).
			WithOperation("verify_restore")
	}
	if !cfg.Equal(ec.CurrentConfig) {
		return NewPermanentError("restored configuration does not match pre-change snapshot", nil).
			WithCode(ErrCodeRestoreFailed).
			WithResource(ec.ResourceID).
			WithOperation("verify_restore")
	}
	return nil
}

// markRolledBack flips every completed step to RolledBack in reverse pipeline
// order and returns the count.
func markRolledBack(steps []*ExecutionStep) int {
	n := 0
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Status == StepStatusCompleted {
			steps[i].Status = StepStatusRolledBack
			n++
		}
	}
	return n
}

func (rc *RollbackCoordinator) emit(t EventType, ec *ExecutionContext, msg string) {
	rc.publish(Event{
		ID:          uuid.New().String(),
		Type:        t,
		Timestamp:   time.Now().UTC(),
		ExecutionID: ec.ExecutionID,
		ResourceID:  ec.ResourceID,
		Message:     msg,
		Level:       t.Severity(),
	})
}
