package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

func newCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Mark a stale execution record as cancelled",
		Long: `Mark a stale execution record as cancelled in the audit store.

A record can be left in a non-terminal state when the process that ran
the execution crashed or was killed. This command closes such a record
so the history stays truthful. It does not touch cloud resources: any
change the interrupted run applied stays in place.

Executions belonging to a live process are cancelled by interrupting
that process, not by this command.`,
		Example: `  cloudtrim cancel 9f3c1a2e-5b7d-4e8f-a1c2-3d4e5f6a7b8c --reason "runner host lost"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			executionID := args[0]
			reason, _ := cmd.Flags().GetString("reason")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, err := store.GetExecution(ctx, executionID)
			if err != nil {
				return err
			}

			if rec.Status.IsTerminal() {
				fmt.Printf("Execution %s is already %s; nothing to do\n", rec.ID, rec.Status)
				return nil
			}

			now := time.Now().UTC()
			rec.Status = engine.ExecutionStatusCancelled
			rec.CompletedAt = &now
			if rec.ErrorMessage == "" {
				if reason != "" {
					rec.ErrorMessage = fmt.Sprintf("Cancelled: %s", reason)
				} else {
					rec.ErrorMessage = "record closed by operator after interrupted run"
				}
			}
			for i := range rec.Log {
				if !rec.Log[i].Status.IsTerminal() {
					rec.Log[i].Status = engine.StepStatusCancelled
				}
			}

			if err := store.SaveExecution(ctx, rec); err != nil {
				return fmt.Errorf("failed to update record: %w", err)
			}

			event := &engine.Event{
				ID:          uuid.NewString(),
				Type:        engine.EventTypeExecutionCancelled,
				Timestamp:   now,
				ExecutionID: rec.ID,
				ResourceID:  rec.ResourceID,
				Message:     "execution record closed by operator",
				Level:       "warning",
			}
			if err := store.SaveEvent(ctx, event); err != nil {
				return fmt.Errorf("record updated but event not saved: %w", err)
			}

			fmt.Printf("Execution %s marked cancelled\n", rec.ID)
			return nil
		},
	}

	cmd.Flags().String("reason", "", "reason recorded on the closed execution")

	return cmd
}
