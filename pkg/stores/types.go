package stores

import (
	"context"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

// SavingsSummary aggregates realized savings per optimization type.
type SavingsSummary struct {
	// OptimizationType is the optimization type the row aggregates.
	OptimizationType string `json:"optimization_type"`

	// Executions is the number of completed executions of this type.
	Executions int `json:"executions"`

	// TotalSavings is the summed realized monthly savings in USD.
	TotalSavings float64 `json:"total_savings"`
}

// Store is the full persistence contract: the engine's audit store plus the
// lifecycle and reporting operations the CLI needs.
type Store interface {
	engine.AuditStore

	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Reporting
	SummarizeSavings(ctx context.Context) ([]SavingsSummary, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
