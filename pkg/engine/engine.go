package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

// Options configures an Engine.
type Options struct {
	// Gateway is the cloud provider gateway. Required.
	Gateway ResourceGateway

	// Store persists execution records and events. Required.
	Store AuditStore

	// Guard is consulted once per submission; nil admits everything.
	Guard Guard

	// Handlers is the optimization handler registry; nil uses the built-ins.
	Handlers *HandlerSet

	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher

	// Backoff overrides the per-type retry policy; nil keeps the defaults.
	Backoff BackoffPolicy

	// Metrics records engine metrics; nil disables them.
	Metrics *telemetry.Metrics

	// Logger is the parent logger for engine components.
	Logger zerolog.Logger
}

// Engine executes approved optimization opportunities. Each submission runs
// as an ordered pipeline in its own goroutine; at most one execution per
// resource is admitted at a time.
type Engine struct {
	gateway   ResourceGateway
	store     AuditStore
	guard     Guard
	handlers  *HandlerSet
	publisher EventPublisher
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	runner    *StepRunner
	rollback  *RollbackCoordinator
	validate  *validator.Validate
	tracer    trace.Tracer

	mu         sync.Mutex
	byResource map[string]*activeExecution
	byID       map[string]*activeExecution
	closed     bool
	wg         sync.WaitGroup
}

// activeExecution is the in-memory state of one in-flight execution. The
// view fields are guarded by mu; the driver goroutine is the only writer.
type activeExecution struct {
	ec     *ExecutionContext
	steps  []*ExecutionStep
	cancel context.CancelFunc

	cancelRequested atomic.Bool
	done            chan struct{}

	mu             sync.Mutex
	status         ExecutionStatus
	currentStep    string
	currentPhase   Phase
	stepsCompleted int
	startedAt      time.Time
	cancelReason   string
}

// requestCancel records the reason and raises the cancellation flag. The
// first reason wins. It returns false when cancellation was already
// requested.
func (a *activeExecution) requestCancel(reason string) bool {
	a.mu.Lock()
	if a.cancelReason == "" {
		a.cancelReason = reason
	}
	a.mu.Unlock()
	return !a.cancelRequested.Swap(true)
}

func (a *activeExecution) view() StatusView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return StatusView{
		ExecutionID:    a.ec.ExecutionID,
		OpportunityID:  a.ec.OpportunityID,
		ResourceID:     a.ec.ResourceID,
		Status:         a.status,
		CurrentStep:    a.currentStep,
		CurrentPhase:   a.currentPhase,
		StepsTotal:     len(a.steps),
		StepsCompleted: a.stepsCompleted,
		StartedAt:      a.startedAt,
	}
}

// New creates an engine from options. Gateway and Store are required.
func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("engine: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = DefaultHandlers()
	}

	e := &Engine{
		gateway:    opts.Gateway,
		store:      opts.Store,
		guard:      opts.Guard,
		handlers:   handlers,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "engine").Logger(),
		validate:   validator.New(),
		tracer:     otel.Tracer("github.com/cloudtrim/cloudtrim/pkg/engine"),
		byResource: make(map[string]*activeExecution),
		byID:       make(map[string]*activeExecution),
	}
	e.runner = NewStepRunner(opts.Gateway, handlers, opts.Backoff, opts.Logger, e.publishEvent)
	e.rollback = NewRollbackCoordinator(opts.Gateway, opts.Backoff, opts.Logger, e.publishEvent)
	return e, nil
}

// Submit admits an opportunity for execution and starts its pipeline in the
// background. It returns the execution ID on success. Submission fails
// without side effects when the opportunity is invalid, the resource already
// has an execution in flight, the resource cannot be read, or the guard
// denies admission.
func (e *Engine) Submit(ctx context.Context, opp *Opportunity, executedBy string) (string, error) {
	if err := e.validateOpportunity(opp); err != nil {
		return "", err
	}

	ax := &activeExecution{
		done:      make(chan struct{}),
		status:    ExecutionStatusPending,
		startedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", NewPermanentError("engine is shut down", nil).WithCode(ErrCodeInternal)
	}
	if _, busy := e.byResource[opp.ResourceID]; busy {
		e.mu.Unlock()
		return "", NewConflictError(
			fmt.Sprintf("resource %s already has an execution in flight", opp.ResourceID), nil).
			WithCode(ErrCodeResourceBusy).
			WithResource(opp.ResourceID).
			WithOperation("submit")
	}
	e.byResource[opp.ResourceID] = ax
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		delete(e.byResource, opp.ResourceID)
		if ax.ec != nil {
			delete(e.byID, ax.ec.ExecutionID)
		}
		e.mu.Unlock()
	}

	currentConfig, err := e.gateway.GetResourceConfig(ctx, opp.ResourceID)
	if err != nil {
		release()
		return "", err
	}

	if e.guard != nil {
		decision, err := e.guard.Evaluate(ctx, GuardInput{
			Opportunity:   opp,
			ExecutedBy:    executedBy,
			CurrentConfig: currentConfig,
		})
		if err != nil {
			release()
			return "", fmt.Errorf("guard evaluation failed: %w", err)
		}
		if !decision.Allowed {
			release()
			return "", NewPermanentError(
				fmt.Sprintf("execution denied by policy: %v", decision.Reasons), nil).
				WithCode(ErrCodePolicyDenied).
				WithResource(opp.ResourceID).
				WithOperation("submit").
				WithDetail("reasons", decision.Reasons)
		}
	}

	ec := &ExecutionContext{
		OpportunityID:    opp.ID,
		ExecutionID:      uuid.New().String(),
		ResourceID:       opp.ResourceID,
		Provider:         opp.Provider,
		Region:           opp.Region,
		OptimizationType: opp.OptimizationType,
		CurrentConfig:    currentConfig,
		TargetConfig:     BuildTargetConfig(currentConfig, opp),
	}

	steps, err := BuildPipeline(ec, opp, e.handlers)
	if err != nil {
		release()
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ax.ec = ec
	ax.steps = steps
	ax.cancel = cancel
	ax.status = ExecutionStatusRunning

	e.mu.Lock()
	e.byID[ec.ExecutionID] = ax
	e.mu.Unlock()

	rec := e.buildRecord(ax, opp, executedBy)
	if err := e.store.SaveExecution(ctx, rec); err != nil {
		cancel()
		release()
		return "", fmt.Errorf("failed to persist execution record: %w", err)
	}

	e.metrics.RecordExecutionStarted(string(opp.OptimizationType), string(opp.Provider))
	e.logger.Info().
		Str("execution_id", ec.ExecutionID).
		Str("opportunity_id", opp.ID).
		Str("resource_id", opp.ResourceID).
		Str("optimization_type", string(opp.OptimizationType)).
		Float64("potential_savings", opp.PotentialSavings).
		Msg("Execution admitted")
	e.publishEvent(Event{
		ID:          uuid.New().String(),
		Type:        EventTypeExecutionStarted,
		Timestamp:   time.Now().UTC(),
		ExecutionID: ec.ExecutionID,
		ResourceID:  ec.ResourceID,
		Message:     fmt.Sprintf("Execution started for opportunity %s", opp.ID),
		Level:       EventTypeExecutionStarted.Severity(),
	})

	e.wg.Add(1)
	go e.drive(runCtx, ax, opp, executedBy)

	return ec.ExecutionID, nil
}

// drive runs the pipeline to a terminal status. It is the only writer of the
// execution's state after admission.
func (e *Engine) drive(ctx context.Context, ax *activeExecution, opp *Opportunity, executedBy string) {
	defer e.wg.Done()
	defer ax.cancel()

	ec := ax.ec
	start := time.Now()

	execCtx, span := e.tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("execution.id", ec.ExecutionID),
			attribute.String("opportunity.id", ec.OpportunityID),
			attribute.String("resource.id", ec.ResourceID),
			attribute.String("optimization.type", string(ec.OptimizationType)),
		))
	defer span.End()

	var failure error
	for _, step := range ax.steps {
		if ax.cancelRequested.Load() || execCtx.Err() != nil {
			e.finalizeCancelled(ax, opp, executedBy)
			span.SetStatus(codes.Ok, "cancelled")
			return
		}

		ax.mu.Lock()
		ax.currentStep = step.Name
		ax.currentPhase = step.Phase
		ax.mu.Unlock()

		stepCtx, stepSpan := e.tracer.Start(execCtx, "engine.step",
			trace.WithAttributes(
				attribute.String("step.name", step.Name),
				attribute.String("step.phase", string(step.Phase)),
			))
		err := e.runner.Run(stepCtx, ec, opp, step)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
		}
		stepSpan.End()

		if step.RetryCount > 0 {
			e.metrics.RecordStepRetries(string(step.Phase), step.RetryCount)
		}
		e.saveRecord(ax, opp, executedBy)

		if err != nil {
			if step.Status == StepStatusCancelled {
				e.finalizeCancelled(ax, opp, executedBy)
				span.SetStatus(codes.Ok, "cancelled")
				return
			}
			failure = err
			break
		}

		ax.mu.Lock()
		ax.stepsCompleted++
		ax.mu.Unlock()
	}

	if failure != nil {
		e.finalizeFailed(execCtx, ax, opp, executedBy, failure)
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		e.metrics.RecordExecutionFinished(string(ec.OptimizationType), statusLabel(ax), time.Since(start))
		return
	}

	e.finalizeCompleted(ax, opp, executedBy)
	span.SetStatus(codes.Ok, "completed")
	e.metrics.RecordExecutionFinished(string(ec.OptimizationType), string(ExecutionStatusCompleted), time.Since(start))
}

func statusLabel(ax *activeExecution) string {
	ax.mu.Lock()
	defer ax.mu.Unlock()
	return string(ax.status)
}

func (e *Engine) finalizeCompleted(ax *activeExecution, opp *Opportunity, executedBy string) {
	e.setStatus(ax, ExecutionStatusCompleted)
	rec := e.buildRecord(ax, opp, executedBy)
	rec.ActualSavings = opp.PotentialSavings
	now := time.Now().UTC()
	rec.CompletedAt = &now
	e.persistFinal(rec)
	e.metrics.RecordSavings(string(ax.ec.OptimizationType), rec.ActualSavings)

	e.logger.Info().
		Str("execution_id", ax.ec.ExecutionID).
		Str("resource_id", ax.ec.ResourceID).
		Float64("actual_savings", rec.ActualSavings).
		Msg("Execution completed")
	e.publishEvent(Event{
		ID:          uuid.New().String(),
		Type:        EventTypeExecutionCompleted,
		Timestamp:   now,
		ExecutionID: ax.ec.ExecutionID,
		ResourceID:  ax.ec.ResourceID,
		Message:     "Execution completed successfully",
		Level:       EventTypeExecutionCompleted.Severity(),
	})
	e.remove(ax)
}

func (e *Engine) finalizeFailed(ctx context.Context, ax *activeExecution, opp *Opportunity, executedBy string, failure error) {
	outcome, rbErr := e.rollback.Rollback(ctx, ax.ec, ax.steps)
	e.metrics.RecordRollback(string(ax.ec.OptimizationType), outcome.Completed)

	status := ExecutionStatusFailed
	if outcome.Required && outcome.Completed {
		status = ExecutionStatusRolledBack
	}
	e.setStatus(ax, status)

	rec := e.buildRecord(ax, opp, executedBy)
	now := time.Now().UTC()
	rec.CompletedAt = &now
	rec.ErrorMessage = failure.Error()
	rec.RollbackRequired = outcome.Required
	rec.RollbackCompleted = outcome.Completed
	e.persistFinal(rec)

	evt := e.logger.Error().
		Str("execution_id", ax.ec.ExecutionID).
		Str("resource_id", ax.ec.ResourceID).
		Bool("rollback_required", outcome.Required).
		Bool("rollback_completed", outcome.Completed).
		Err(failure)
	if rbErr != nil {
		evt = evt.AnErr("rollback_error", rbErr)
	}
	evt.Msg("Execution failed")

	e.publishEvent(Event{
		ID:          uuid.New().String(),
		Type:        EventTypeExecutionFailed,
		Timestamp:   now,
		ExecutionID: ax.ec.ExecutionID,
		ResourceID:  ax.ec.ResourceID,
		Message:     fmt.Sprintf("Execution failed: %v", failure),
		Level:       EventTypeExecutionFailed.Severity(),
		Details: map[string]interface{}{
			"rollback_required":  outcome.Required,
			"rollback_completed": outcome.Completed,
		},
	})
	e.remove(ax)
}

func (e *Engine) finalizeCancelled(ax *activeExecution, opp *Opportunity, executedBy string) {
	for _, s := range ax.steps {
		if s.Status == StepStatusPending {
			s.Status = StepStatusCancelled
		}
	}

	// Completed steps are compensated before the execution transitions to
	// Cancelled. The execution context is already cancelled at this point,
	// so the restore runs under its own deadline.
	rbCtx, cancel := context.WithTimeout(context.Background(), rollbackGrace)
	defer cancel()
	outcome, rbErr := e.rollback.Rollback(rbCtx, ax.ec, ax.steps)
	e.metrics.RecordRollback(string(ax.ec.OptimizationType), outcome.Completed)

	ax.mu.Lock()
	reason := ax.cancelReason
	ax.mu.Unlock()

	e.setStatus(ax, ExecutionStatusCancelled)

	rec := e.buildRecord(ax, opp, executedBy)
	now := time.Now().UTC()
	rec.CompletedAt = &now
	rec.RollbackRequired = outcome.Required
	rec.RollbackCompleted = outcome.Completed
	if reason != "" {
		rec.ErrorMessage = fmt.Sprintf("Cancelled: %s", reason)
	}
	e.persistFinal(rec)

	evt := e.logger.Warn().
		Str("execution_id", ax.ec.ExecutionID).
		Str("resource_id", ax.ec.ResourceID).
		Str("reason", reason).
		Bool("rollback_required", outcome.Required).
		Bool("rollback_completed", outcome.Completed)
	if rbErr != nil {
		evt = evt.AnErr("rollback_error", rbErr)
	}
	evt.Msg("Execution cancelled")
	message := "Execution cancelled"
	if reason != "" {
		message = fmt.Sprintf("Execution cancelled: %s", reason)
	}
	e.publishEvent(Event{
		ID:          uuid.New().String(),
		Type:        EventTypeExecutionCancelled,
		Timestamp:   now,
		ExecutionID: ax.ec.ExecutionID,
		ResourceID:  ax.ec.ResourceID,
		Message:     message,
		Level:       EventTypeExecutionCancelled.Severity(),
	})
	e.metrics.RecordExecutionFinished(string(ax.ec.OptimizationType), string(ExecutionStatusCancelled), time.Since(ax.startedAt))
	e.remove(ax)
}

// Status returns the progress of an execution. Active executions are served
// from memory; terminal executions fall back to the audit store.
func (e *Engine) Status(ctx context.Context, executionID string) (StatusView, error) {
	e.mu.Lock()
	ax, ok := e.byID[executionID]
	e.mu.Unlock()
	if ok {
		return ax.view(), nil
	}

	rec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return StatusView{}, err
	}
	completed := 0
	for _, r := range rec.Log {
		if r.Status == StepStatusCompleted || r.Status == StepStatusRolledBack {
			completed++
		}
	}
	return StatusView{
		ExecutionID:    rec.ID,
		OpportunityID:  rec.OpportunityID,
		ResourceID:     rec.ResourceID,
		Status:         rec.Status,
		StepsTotal:     len(rec.Log),
		StepsCompleted: completed,
		StartedAt:      rec.StartedAt,
	}, nil
}

// Cancel requests cooperative cancellation of an active execution. The flag
// is observed between steps only: a step already mid-flight runs to
// completion or timeout first, then no further steps start and completed
// steps are compensated before the execution transitions to Cancelled. The
// reason is recorded on the execution record. Cancelling an execution that
// is not active returns a conflict error.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) error {
	e.mu.Lock()
	ax, ok := e.byID[executionID]
	e.mu.Unlock()
	if !ok {
		rec, err := e.store.GetExecution(ctx, executionID)
		if err != nil {
			return err
		}
		return NewConflictError(
			fmt.Sprintf("execution %s is already %s", executionID, rec.Status), nil).
			WithCode(ErrCodeExecutionFailed).
			WithOperation("cancel")
	}

	if !ax.requestCancel(reason) {
		return nil
	}
	e.logger.Warn().
		Str("execution_id", executionID).
		Str("reason", reason).
		Msg("Cancellation requested")
	return nil
}

// Wait blocks until the execution reaches a terminal status or the context
// expires. It is a test and CLI convenience; Status remains non-blocking.
func (e *Engine) Wait(ctx context.Context, executionID string) error {
	e.mu.Lock()
	ax, ok := e.byID[executionID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ax.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListExecutions returns audit records matching the filter.
func (e *Engine) ListExecutions(ctx context.Context, filter RecordFilter) ([]*Record, error) {
	return e.store.ListExecutions(ctx, filter)
}

// Events returns the audit trail of an execution in chronological order.
func (e *Engine) Events(ctx context.Context, executionID string) ([]*Event, error) {
	return e.store.ListEvents(ctx, executionID)
}

// Shutdown stops admitting new executions and waits for in-flight ones to
// finish. When the context expires, remaining executions are cancelled and
// waited for.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	active := make([]*activeExecution, 0, len(e.byID))
	for _, ax := range e.byID {
		active = append(active, ax)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	// Forced shutdown is the one path that preempts in-flight steps: the
	// process is going away, so waiting out a step timeout is not an option.
	for _, ax := range active {
		ax.requestCancel("engine shutdown")
		ax.cancel()
	}
	<-done
	return ctx.Err()
}

func (e *Engine) validateOpportunity(opp *Opportunity) error {
	if opp == nil {
		return NewPermanentError("opportunity is nil", nil).WithCode(ErrCodeValidation)
	}
	if err := e.validate.Struct(opp); err != nil {
		return NewPermanentError("invalid opportunity", err).
			WithCode(ErrCodeValidation).
			WithOperation("submit")
	}
	if err := opp.OptimizationType.Validate(); err != nil {
		return NewPermanentError(err.Error(), nil).
			WithCode(ErrCodeValidation).
			WithOperation("submit")
	}
	if err := opp.Provider.Validate(); err != nil {
		return NewPermanentError(err.Error(), nil).
			WithCode(ErrCodeValidation).
			WithOperation("submit")
	}
	if opp.RiskLevel != "" {
		if err := opp.RiskLevel.Validate(); err != nil {
			return NewPermanentError(err.Error(), nil).
				WithCode(ErrCodeValidation).
				WithOperation("submit")
		}
	}
	return nil
}

// buildRecord projects the current execution state into an audit record.
func (e *Engine) buildRecord(ax *activeExecution, opp *Opportunity, executedBy string) *Record {
	ax.mu.Lock()
	status := ax.status
	ax.mu.Unlock()

	logCopy := make([]StepRecord, len(ax.ec.Log))
	copy(logCopy, ax.ec.Log)

	return &Record{
		ID:               ax.ec.ExecutionID,
		OpportunityID:    opp.ID,
		ResourceID:       opp.ResourceID,
		OptimizationType: opp.OptimizationType,
		Status:           status,
		StartedAt:        ax.startedAt,
		Log:              logCopy,
		ExecutedBy:       executedBy,
	}
}

func (e *Engine) setStatus(ax *activeExecution, s ExecutionStatus) {
	ax.mu.Lock()
	ax.status = s
	ax.currentStep = ""
	ax.currentPhase = ""
	ax.mu.Unlock()
}

// saveRecord persists a progress snapshot; failures are logged, not fatal,
// because the in-memory state remains authoritative until finalization.
func (e *Engine) saveRecord(ax *activeExecution, opp *Opportunity, executedBy string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.SaveExecution(ctx, e.buildRecord(ax, opp, executedBy)); err != nil {
		e.logger.Error().
			Str("execution_id", ax.ec.ExecutionID).
			Err(err).
			Msg("Failed to persist execution progress")
	}
}

// persistFinal writes the terminal record with retries; losing the terminal
// audit entry is worse than a slow shutdown.
func (e *Engine) persistFinal(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = e.store.SaveExecution(ctx, rec); err == nil {
			return
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			attempt = 3
		}
	}
	e.logger.Error().
		Str("execution_id", rec.ID).
		Err(err).
		Msg("Failed to persist terminal execution record")
}

func (e *Engine) remove(ax *activeExecution) {
	e.mu.Lock()
	delete(e.byResource, ax.ec.ResourceID)
	delete(e.byID, ax.ec.ExecutionID)
	e.mu.Unlock()
	close(ax.done)
}

// publishEvent fans an event out to the audit store and the publisher.
func (e *Engine) publishEvent(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveEvent(ctx, &evt); err != nil {
		e.logger.Warn().
			Str("event_type", string(evt.Type)).
			Err(err).
			Msg("Failed to persist event")
	}
	if e.publisher != nil {
		e.publisher.Publish(evt)
	}
}
