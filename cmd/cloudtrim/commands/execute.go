package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/policy"
	"github.com/cloudtrim/cloudtrim/pkg/telemetry"
)

func newExecuteCommand() *cobra.Command {
	var (
		opportunityFile string
		resourcesFile   string
		executedBy      string
		checkOnly       bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute an approved optimization opportunity",
		Long: `Execute an approved optimization opportunity through the pipeline.

This command:
  - Loads the opportunity definition and the gateway inventory
  - Evaluates the OPA guardrails before any change
  - Runs the six-phase pipeline (prepare, validate, backup, execute,
    verify, complete) with bounded retries
  - Rolls the resource back from its backup if a post-backup step fails
  - Persists the execution record, step log, and events to the audit store

Interrupting the command (Ctrl-C) cancels the execution at the next step
boundary; steps already completed are compensated from the backup before
the execution transitions to cancelled.`,
		Example: `  # Execute an opportunity against a seeded inventory
  cloudtrim execute --opportunity opp.json --resources resources.json --executed-by finops@example.com

  # Evaluate the guardrails without executing
  cloudtrim execute --opportunity opp.json --resources resources.json --executed-by finops@example.com --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opp, err := loadOpportunity(opportunityFile)
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()
			logger := tel.Logger.Zerolog()

			guard, err := buildGuard(ctx, cfg, logger)
			if err != nil {
				return err
			}

			gateway, _, err := buildGateway(cfg, tel, logger, resourcesFile)
			if err != nil {
				return err
			}

			if checkOnly {
				if guard == nil {
					return fmt.Errorf("policy enforcement is disabled in the configuration")
				}
				return runGuardCheck(ctx, guard, gateway, opp, executedBy)
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			opts := engine.Options{
				Gateway:   gateway,
				Store:     store,
				Handlers:  engine.DefaultHandlers(),
				Publisher: &busPublisher{bus: tel.Events},
				Backoff:   backoffPolicy(cfg),
				Metrics:   tel.Metrics,
				Logger:    logger,
			}
			if guard != nil {
				opts.Guard = guard
			}

			eng, err := engine.New(opts)
			if err != nil {
				return err
			}

			executionID, err := eng.Submit(ctx, opp, executedBy)
			if err != nil {
				return fmt.Errorf("submission rejected: %w", err)
			}

			logger.Info().
				Str("execution_id", executionID).
				Str("resource_id", opp.ResourceID).
				Str("optimization_type", string(opp.OptimizationType)).
				Msg("Execution admitted")

			// Ctrl-C cancels the execution at the next step boundary; the
			// wait below then observes the terminal state.
			go func() {
				<-ctx.Done()
				_ = eng.Cancel(context.Background(), executionID, "interrupted by operator")
			}()

			if err := eng.Wait(context.Background(), executionID); err != nil {
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout.Std())
			defer cancel()
			if err := eng.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Engine shutdown incomplete")
			}

			rec, err := store.GetExecution(context.Background(), executionID)
			if err != nil {
				return fmt.Errorf("failed to read final record: %w", err)
			}

			if err := printRecord(rec); err != nil {
				return err
			}

			if rec.Status != engine.ExecutionStatusCompleted {
				return fmt.Errorf("execution %s finished with status %s", rec.ID, rec.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opportunityFile, "opportunity", "o", "", "opportunity definition file (JSON)")
	cmd.Flags().StringVarP(&resourcesFile, "resources", "r", "", "gateway inventory file (JSON)")
	cmd.Flags().StringVar(&executedBy, "executed-by", "", "operator identity recorded on the execution")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "evaluate guardrails without executing")
	_ = cmd.MarkFlagRequired("opportunity")
	_ = cmd.MarkFlagRequired("executed-by")

	return cmd
}

// runGuardCheck evaluates the guardrails against the submission and reports
// the decision without executing anything.
func runGuardCheck(ctx context.Context, guard *policy.Engine, gateway engine.ResourceGateway, opp *engine.Opportunity, executedBy string) error {
	currentConfig, err := gateway.GetResourceConfig(ctx, opp.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to read resource %s: %w", opp.ResourceID, err)
	}

	result, err := guard.EvaluateInput(ctx, engine.GuardInput{
		Opportunity:   opp,
		ExecutedBy:    executedBy,
		CurrentConfig: currentConfig,
	})
	if err != nil {
		return fmt.Errorf("guard evaluation failed: %w", err)
	}

	if jsonOutput {
		return printJSON(result)
	}

	if result.Allowed {
		fmt.Printf("ALLOWED: %d policies evaluated in %s\n", len(result.EvaluatedPolicies), result.Duration)
	} else {
		fmt.Printf("DENIED: %d policies evaluated in %s\n", len(result.EvaluatedPolicies), result.Duration)
	}
	for _, v := range result.Violations {
		fmt.Printf("  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	if !result.Allowed {
		return fmt.Errorf("submission would be denied")
	}
	return nil
}

// printRecord renders a final execution record.
func printRecord(rec *engine.Record) error {
	if jsonOutput {
		return printJSON(rec)
	}

	fmt.Printf("Execution:    %s\n", rec.ID)
	fmt.Printf("Opportunity:  %s\n", rec.OpportunityID)
	fmt.Printf("Resource:     %s\n", rec.ResourceID)
	fmt.Printf("Type:         %s\n", rec.OptimizationType)
	fmt.Printf("Status:       %s\n", rec.Status)
	fmt.Printf("Started:      %s\n", formatTime(rec.StartedAt))
	if rec.CompletedAt != nil {
		fmt.Printf("Completed:    %s\n", formatTime(*rec.CompletedAt))
	}
	if rec.Status == engine.ExecutionStatusCompleted {
		fmt.Printf("Savings:      $%.2f/month\n", rec.ActualSavings)
	}
	if rec.ErrorMessage != "" {
		fmt.Printf("Error:        %s\n", rec.ErrorMessage)
	}
	if rec.RollbackRequired {
		fmt.Printf("Rollback:     required, completed=%v\n", rec.RollbackCompleted)
	}

	if len(rec.Log) > 0 {
		fmt.Println("\nSteps:")
		for _, step := range rec.Log {
			line := fmt.Sprintf("  %-28s %-12s attempts=%d", step.StepName, step.Status, step.Attempts)
			if step.Error != "" {
				line += "  error: " + step.Error
			}
			fmt.Println(line)
		}
	}

	return nil
}
