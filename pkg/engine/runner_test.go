package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRunner(gateway ResourceGateway, handlers *HandlerSet, events *[]Event) *StepRunner {
	if handlers == nil {
		handlers = DefaultHandlers()
	}
	publish := func(Event) {}
	if events != nil {
		publish = func(e Event) { *events = append(*events, e) }
	}
	return NewStepRunner(gateway, handlers, FixedBackoff{Interval: time.Millisecond}, zerolog.Nop(), publish)
}

func testExecutionContext(optType OptimizationType, current Config) *ExecutionContext {
	return &ExecutionContext{
		OpportunityID:    "opp-1",
		ExecutionID:      "exec-1",
		ResourceID:       "i-0test",
		Provider:         ProviderAWS,
		Region:           "us-east-1",
		OptimizationType: optType,
		CurrentConfig:    current.Clone(),
		TargetConfig:     current.Clone(),
	}
}

func TestRunnerStepTimeout(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	gateway.applyFn = func(_ int, ctx context.Context, _ Config) error {
		<-ctx.Done()
		return ctx.Err()
	}
	runner := newTestRunner(gateway, nil, nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:         "step-1",
		Name:       "resize_resource",
		Phase:      PhaseExecution,
		Timeout:    10 * time.Millisecond,
		MaxRetries: 1,
	}

	err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step)
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if ErrCode(err) != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT code, got %s", ErrCode(err))
	}
	if step.Status != StepStatusFailed {
		t.Errorf("expected failed after exhausting retries, got %s", step.Status)
	}
	if step.RetryCount != 1 {
		t.Errorf("expected 1 retry, got %d", step.RetryCount)
	}
	if len(ec.Log) != 1 || ec.Log[0].Attempts != 2 {
		t.Errorf("expected log record with 2 attempts, got %+v", ec.Log)
	}
}

func TestRunnerPermanentErrorNotRetried(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	gateway.applyFn = func(_ int, _ context.Context, _ Config) error {
		return NewPermanentError("unsupported instance family", nil)
	}
	runner := newTestRunner(gateway, nil, nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:         "step-1",
		Name:       "resize_resource",
		Phase:      PhaseExecution,
		Timeout:    time.Minute,
		MaxRetries: 3,
	}

	err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step)
	if err == nil {
		t.Fatal("expected failure")
	}
	if step.RetryCount != 0 {
		t.Errorf("permanent errors must not be retried, got %d retries", step.RetryCount)
	}
	if gateway.applyCalls != 1 {
		t.Errorf("expected a single attempt, got %d", gateway.applyCalls)
	}
}

func TestRunnerVerificationMismatchIsTransient(t *testing.T) {
	// Gateway ignores the apply, so verification never matches
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	runner := newTestRunner(gateway, nil, nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	ec.TargetConfig = Config{"instance_type": "t3.medium"}
	step := &ExecutionStep{
		ID:         "step-5",
		Name:       "verify_optimization",
		Phase:      PhaseVerification,
		Timeout:    time.Minute,
		MaxRetries: 2,
	}

	err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if ErrCode(err) != ErrCodeVerificationFailed {
		t.Errorf("expected VERIFICATION_FAILED, got %s", ErrCode(err))
	}
	// Mismatches are retried because provider reads can lag writes
	if step.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", step.RetryCount)
	}
}

func TestRunnerPrepareRefreshesSnapshot(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.2xlarge", "state": "running"})
	runner := newTestRunner(gateway, nil, nil)

	// The submission-time snapshot is stale
	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:      "step-1",
		Name:    "prepare_execution",
		Phase:   PhasePreparation,
		Timeout: time.Minute,
	}

	if err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if ec.CurrentConfig["instance_type"] != "m5.2xlarge" {
		t.Errorf("expected refreshed snapshot, got %v", ec.CurrentConfig["instance_type"])
	}
	original, ok := ec.RollbackData["original_config"].(map[string]interface{})
	if !ok {
		t.Fatal("expected original config stashed for rollback")
	}
	if original["instance_type"] != "m5.2xlarge" {
		t.Errorf("expected stashed original config, got %v", original["instance_type"])
	}
}

func TestRunnerBackupFailureIsPermanent(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	gateway.backupErr = NewPermanentError("snapshot quota exceeded", nil)
	runner := newTestRunner(gateway, nil, nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:         "step-3",
		Name:       "create_backup",
		Phase:      PhaseBackup,
		Timeout:    time.Minute,
		MaxRetries: 3,
	}

	err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step)
	if ErrCode(err) != ErrCodeBackupFailed {
		t.Errorf("expected BACKUP_FAILED, got %v", err)
	}
	if step.RetryCount != 0 {
		t.Errorf("non-retryable backup failure must not be retried, got %d retries", step.RetryCount)
	}
	if ec.Backup != nil {
		t.Error("expected no backup captured")
	}
}

func TestRunnerCancellationDuringRetryWait(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	gateway.applyFn = func(_ int, _ context.Context, _ Config) error {
		return NewTransientError("throttled", nil)
	}
	// A long backoff so cancellation lands inside the retry wait
	runner := NewStepRunner(gateway, DefaultHandlers(), FixedBackoff{Interval: time.Hour}, zerolog.Nop(), nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:         "step-4",
		Name:       "resize_resource",
		Phase:      PhaseExecution,
		Timeout:    time.Minute,
		MaxRetries: 3,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := runner.Run(ctx, ec, testOpportunity(OptimizationRightsizing), step)
	if ErrCode(err) != ErrCodeCancelled {
		t.Errorf("expected CANCELLED, got %v", err)
	}
	if step.Status != StepStatusCancelled {
		t.Errorf("expected cancelled status, got %s", step.Status)
	}
}

func TestRunnerCompletionTagsResource(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "t3.medium"})
	runner := newTestRunner(gateway, nil, nil)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "t3.medium"})
	step := &ExecutionStep{
		ID:      "step-6",
		Name:    "complete_execution",
		Phase:   PhaseCompletion,
		Timeout: time.Minute,
	}

	if err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step); err != nil {
		t.Fatalf("completion failed: %v", err)
	}

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	if gateway.tags["optimized"] != "true" {
		t.Error("expected optimized tag")
	}
	if gateway.tags["execution_id"] != ec.ExecutionID {
		t.Errorf("expected execution_id tag, got %v", gateway.tags["execution_id"])
	}
	if _, err := time.Parse(time.RFC3339, gateway.tags["optimized_at"]); err != nil {
		t.Errorf("expected RFC3339 optimized_at tag, got %v", gateway.tags["optimized_at"])
	}
}

func TestRunnerEmitsStepEvents(t *testing.T) {
	gateway := newMockGateway(Config{"instance_type": "m5.xlarge"})
	gateway.applyFn = func(call int, _ context.Context, _ Config) error {
		if call == 1 {
			return NewTransientError("flaky", nil)
		}
		return nil
	}
	var events []Event
	runner := newTestRunner(gateway, nil, &events)

	ec := testExecutionContext(OptimizationRightsizing, Config{"instance_type": "m5.xlarge"})
	step := &ExecutionStep{
		ID:         "step-4",
		Name:       "resize_resource",
		Phase:      PhaseExecution,
		Timeout:    time.Minute,
		MaxRetries: 3,
	}

	if err := runner.Run(context.Background(), ec, testOpportunity(OptimizationRightsizing), step); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []EventType{EventTypeStepStarted, EventTypeStepRetrying, EventTypeStepCompleted}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		if events[i].Type != w {
			t.Errorf("event %d: expected %s, got %s", i, w, events[i].Type)
		}
		if events[i].StepID != step.ID {
			t.Errorf("event %d: expected step ID %s, got %s", i, step.ID, events[i].StepID)
		}
	}
}
