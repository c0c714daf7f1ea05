package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveExecution demonstrates persisting an execution record.
func ExampleSQLiteStore_SaveExecution() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Save an execution record
	rec := &engine.Record{
		ID:               "exec-001",
		OpportunityID:    "opp-001",
		ResourceID:       "i-0abc123def456",
		OptimizationType: engine.OptimizationRightsizing,
		Status:           engine.ExecutionStatusRunning,
		StartedAt:        time.Now().UTC(),
		ExecutedBy:       "admin@example.com",
	}

	if err := store.SaveExecution(ctx, rec); err != nil {
		log.Fatal(err)
	}

	// Retrieve the execution
	retrieved, err := store.GetExecution(ctx, "exec-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Execution: %s, Status: %s\n", retrieved.ID, retrieved.Status)
	// Output: Execution: exec-001, Status: running
}

// ExampleSQLiteStore_SaveEvent demonstrates recording lifecycle events.
func ExampleSQLiteStore_SaveEvent() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record a lifecycle event
	event := &engine.Event{
		ID:          "evt-001",
		Type:        engine.EventTypeExecutionStarted,
		Timestamp:   time.Now().UTC(),
		ExecutionID: "exec-002",
		ResourceID:  "i-0abc123def456",
		Message:     "Execution started",
		Level:       "info",
	}

	if err := store.SaveEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	// Retrieve events for the execution
	events, err := store.ListEvents(ctx, "exec-002")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: Execution started
}

// ExampleSQLiteStore_ListExecutions demonstrates filtering the audit trail.
func ExampleSQLiteStore_ListExecutions() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	completed := time.Now().UTC()
	rec := &engine.Record{
		ID:               "exec-003",
		OpportunityID:    "opp-003",
		ResourceID:       "vol-0aa11bb22",
		OptimizationType: engine.OptimizationStorage,
		Status:           engine.ExecutionStatusCompleted,
		StartedAt:        completed.Add(-10 * time.Minute),
		CompletedAt:      &completed,
		ActualSavings:    42.75,
		ExecutedBy:       "admin@example.com",
	}
	_ = store.SaveExecution(ctx, rec)

	// Filter by resource and status
	records, err := store.ListExecutions(ctx, engine.RecordFilter{
		ResourceID: "vol-0aa11bb22",
		Status:     engine.ExecutionStatusCompleted,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Matches: %d, Savings: %.2f\n", len(records), records[0].ActualSavings)
	// Output: Matches: 1, Savings: 42.75
}

// ExampleSQLiteStore_SummarizeSavings demonstrates the savings report.
func ExampleSQLiteStore_SummarizeSavings() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	for i, savings := range []float64{100, 50} {
		rec := &engine.Record{
			ID:               fmt.Sprintf("exec-sum-%d", i),
			OpportunityID:    fmt.Sprintf("opp-sum-%d", i),
			ResourceID:       fmt.Sprintf("i-%d", i),
			OptimizationType: engine.OptimizationRightsizing,
			Status:           engine.ExecutionStatusCompleted,
			StartedAt:        time.Now().UTC(),
			ActualSavings:    savings,
			ExecutedBy:       "admin@example.com",
		}
		_ = store.SaveExecution(ctx, rec)
	}

	summaries, err := store.SummarizeSavings(ctx)
	if err != nil {
		log.Fatal(err)
	}

	for _, s := range summaries {
		fmt.Printf("%s: %d executions, %.2f saved\n", s.OptimizationType, s.Executions, s.TotalSavings)
	}
	// Output: rightsizing: 2 executions, 150.00 saved
}
