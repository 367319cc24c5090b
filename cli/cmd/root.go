// Package cmd contains CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/instantcocoa/minos/cli/internal/config"
)

var (
	cfg     *config.Config
	format  string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "minos",
	Short: "Minos CLI - LLM evaluation platform",
	Long: `Minos runs evaluation question sets against LLM endpoints and scores
the results, manually or with judge models.

Examples:
  # Register a model
  minos models create --name gpt-4o --endpoint https://api.openai.com/v1 --key-ref OPENAI_API_KEY

  # Create an eval and add questions
  minos evals create --name reasoning-v1
  minos evals add-question <eval-id> --text "What is 17 * 23?"

  # Run the eval against two models
  minos runs start --eval <eval-id> --model <model-a> --model <model-b>

  # Watch progress and inspect results
  minos runs status <run-id>
  minos runs results <run-id>

  # Score a run with a judge model
  minos runs score <run-id> --judge <judge-id> --rubric "Rate accuracy 0-1"
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.DefaultConfig()
		if format != "" {
			cfg.Format = format
		}
		cfg.Verbose = verbose
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(evalsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints version info.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("minos version 0.1.0")
	},
}
