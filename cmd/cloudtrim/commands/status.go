package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show the recorded state of an execution",
		Long: `Show the recorded state of an execution from the audit store.

Prints the execution record with its per-step log. With --events the
persisted lifecycle events are appended in chronological order.`,
		Example: `  cloudtrim status 9f3c1a2e-5b7d-4e8f-a1c2-3d4e5f6a7b8c
  cloudtrim status 9f3c1a2e-5b7d-4e8f-a1c2-3d4e5f6a7b8c --events --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			executionID := args[0]

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

			if jsonOutput && !showEvents {
				return printJSON(rec)
			}

			if !jsonOutput {
				if err := printRecord(rec); err != nil {
					return err
				}
			}

			if !showEvents {
				return nil
			}

			events, err := store.ListEvents(ctx, executionID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"execution": rec,
					"events":    events,
				})
			}

			fmt.Println("\nEvents:")
			for _, ev := range events {
				fmt.Printf("  %s  %-28s %s\n", formatTime(ev.Timestamp), ev.Type, ev.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showEvents, "events", "e", false, "include persisted lifecycle events")

	return cmd
}
