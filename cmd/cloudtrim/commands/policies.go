package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the active guardrail policies",
		Long: `List the guardrail policies the engine would enforce: the built-in
set plus any Rego or JSON policies loaded from the configured paths.

Use "execute --check" to evaluate the guardrails against a concrete
opportunity without executing it.`,
		Example: `  cloudtrim policies
  cloudtrim policies -c cloudtrim.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Policy.Enabled {
				return fmt.Errorf("policy enforcement is disabled in the configuration")
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			guard, err := buildGuard(ctx, cfg, logger)
			if err != nil {
				return err
			}

			policies := guard.ListPolicies()
			sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

			if jsonOutput {
				return printJSON(policies)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}
