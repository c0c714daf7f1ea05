package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudtrim/cloudtrim/pkg/config"
	"github.com/cloudtrim/cloudtrim/pkg/engine"
	"github.com/cloudtrim/cloudtrim/pkg/gateways"
)

func newInitCommand() *cobra.Command {
	var (
		dir     string
		force   bool
		samples bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a cloudtrim working directory",
		Long: `Scaffold a cloudtrim working directory.

Writes a commented default configuration file, and optionally a sample
gateway inventory and opportunity definition that exercise the full
pipeline end to end.`,
		Example: `  # Create cloudtrim.yaml in the current directory
  cloudtrim init

  # Scaffold everything, including sample inputs
  cloudtrim init --dir ./demo --samples`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}

			cfgPath := filepath.Join(dir, "cloudtrim.yaml")
			if err := checkClobber(cfgPath, force); err != nil {
				return err
			}
			if err := config.Default().Write(cfgPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", cfgPath)

			if !samples {
				return nil
			}

			resPath := filepath.Join(dir, "resources.json")
			if err := checkClobber(resPath, force); err != nil {
				return err
			}
			if err := writeSampleJSON(resPath, sampleResources()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", resPath)

			oppPath := filepath.Join(dir, "opportunity.json")
			if err := checkClobber(oppPath, force); err != nil {
				return err
			}
			if err := writeSampleJSON(oppPath, sampleOpportunity()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", oppPath)

			fmt.Println("\nTry it:")
			fmt.Printf("  cloudtrim execute -c %s -o %s -r %s --executed-by you@example.com\n", cfgPath, oppPath, resPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to scaffold into")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	cmd.Flags().BoolVar(&samples, "samples", false, "also write sample resources and opportunity files")

	return cmd
}

func checkClobber(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return nil
}

func writeSampleJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func sampleResources() []gateways.Resource {
	return []gateways.Resource{
		{
			ID:       "i-0a1b2c3d4e5f6a7b8",
			Provider: engine.ProviderAWS,
			Region:   "us-east-1",
			Config: engine.Config{
				"instance_type": "m5.2xlarge",
				"state":         "running",
			},
			Tags: map[string]string{
				"team": "analytics",
				"env":  "staging",
			},
		},
		{
			ID:       "vol-0f9e8d7c6b5a4f3e2",
			Provider: engine.ProviderAWS,
			Region:   "us-east-1",
			Config: engine.Config{
				"volume_type": "gp2",
				"size_gb":     float64(500),
				"state":       "in-use",
			},
			Tags: map[string]string{
				"team": "analytics",
			},
		},
	}
}

func sampleOpportunity() *engine.Opportunity {
	return &engine.Opportunity{
		ID:                     "opp-sample-rightsize",
		ServiceName:            "ec2",
		ResourceID:             "i-0a1b2c3d4e5f6a7b8",
		OptimizationType:       engine.OptimizationRightsizing,
		Provider:               engine.ProviderAWS,
		Region:                 "us-east-1",
		CurrentCost:            560.0,
		PotentialSavings:       280.0,
		RiskLevel:              engine.RiskLow,
		Description:            "Downsize underutilized m5.2xlarge to m5.xlarge",
		Prerequisites:          []string{"resource_exists", "resource_running"},
		Recommendation:         engine.Config{"instance_type": "m5.xlarge"},
		EstimatedExecutionTime: 15,
	}
}
