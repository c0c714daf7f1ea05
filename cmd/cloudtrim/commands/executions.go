package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cloudtrim/cloudtrim/pkg/engine"
)

func newExecutionsCommand() *cobra.Command {
	var (
		opportunityID string
		resourceID    string
		status        string
		optType       string
		limit         int
		summary       bool
	)

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recorded executions",
		Long: `List executions from the audit store, newest first.

Filters narrow the listing by opportunity, resource, status, or
optimization type. --summary instead aggregates realized savings per
optimization type across all completed executions.`,
		Example: `  # Recent executions for one resource
  cloudtrim executions --resource i-0a1b2c3d4e5f6a7b8

  # Everything that had to roll back
  cloudtrim executions --status rolled_back

  # Realized savings per optimization type
  cloudtrim executions --summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if summary {
				rows, err := store.SummarizeSavings(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(rows)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TYPE\tEXECUTIONS\tTOTAL SAVINGS")
				var total float64
				for _, row := range rows {
					fmt.Fprintf(w, "%s\t%d\t$%.2f\n", row.OptimizationType, row.Executions, row.TotalSavings)
					total += row.TotalSavings
				}
				fmt.Fprintf(w, "\t\t$%.2f\n", total)
				return w.Flush()
			}

			filter := engine.RecordFilter{
				OpportunityID:    opportunityID,
				ResourceID:       resourceID,
				Status:           engine.ExecutionStatus(status),
				OptimizationType: engine.OptimizationType(optType),
				Limit:            limit,
			}

			records, err := store.ListExecutions(ctx, filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}

			if len(records) == 0 {
				fmt.Println("No executions found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRESOURCE\tTYPE\tSTATUS\tSTARTED\tSAVINGS")
			for _, rec := range records {
				savings := "-"
				if rec.Status == engine.ExecutionStatusCompleted {
					savings = fmt.Sprintf("$%.2f", rec.ActualSavings)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.ResourceID, rec.OptimizationType, rec.Status,
					formatTime(rec.StartedAt), savings)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opportunityID, "opportunity", "", "filter by opportunity ID")
	cmd.Flags().StringVar(&resourceID, "resource", "", "filter by resource ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by execution status")
	cmd.Flags().StringVar(&optType, "type", "", "filter by optimization type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	cmd.Flags().BoolVar(&summary, "summary", false, "aggregate realized savings per optimization type")

	return cmd
}
