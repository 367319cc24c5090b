package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/minos/cli/internal/output"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Model registry operations",
	Long:  "Commands for managing model configurations (endpoints, credentials, pricing).",
}

type modelPayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Endpoint        string   `json:"endpoint"`
	APIKeyRef       string   `json:"api_key_ref,omitempty"`
	InputTokenCost  *float64 `json:"input_token_cost,omitempty"`
	OutputTokenCost *float64 `json:"output_token_cost,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

var modelsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a model configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		keyRef, _ := cmd.Flags().GetString("key-ref")

		body := map[string]interface{}{
			"name":        name,
			"endpoint":    endpoint,
			"api_key_ref": keyRef,
		}
		if cmd.Flags().Changed("input-cost") {
			cost, _ := cmd.Flags().GetFloat64("input-cost")
			body["input_token_cost"] = cost
		}
		if cmd.Flags().Changed("output-cost") {
			cost, _ := cmd.Flags().GetFloat64("output-cost")
			body["output_token_cost"] = cost
		}

		var model modelPayload
		if err := apiPost("/v1/models", body, &model); err != nil {
			return err
		}

		output.Success("Registered model %s (ID: %s)", model.Name, model.ID)
		return nil
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Models []modelPayload `json:"models"`
		}
		if err := apiGet("/v1/models", &resp); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(resp.Models)
		}

		table := output.Table{
			Headers: []string{"ID", "NAME", "ENDPOINT", "INPUT $/TOK", "OUTPUT $/TOK"},
			Rows:    make([][]string, len(resp.Models)),
		}
		for i, m := range resp.Models {
			table.Rows[i] = []string{
				m.ID, m.Name, m.Endpoint,
				formatCost(m.InputTokenCost), formatCost(m.OutputTokenCost),
			}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var modelsGetCmd = &cobra.Command{
	Use:   "get <model-id>",
	Short: "Show a model configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var model modelPayload
		if err := apiGet("/v1/models/"+args[0], &model); err != nil {
			return err
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(model)
	},
}

func formatCost(cost *float64) string {
	if cost == nil {
		return "-"
	}
	return fmt.Sprintf("%.8f", *cost)
}

func init() {
	modelsCreateCmd.Flags().String("name", "", "Model name (required)")
	modelsCreateCmd.Flags().String("endpoint", "", "OpenAI-compatible base URL (required)")
	modelsCreateCmd.Flags().String("key-ref", "", "Credential reference (env var name on the server)")
	modelsCreateCmd.Flags().Float64("input-cost", 0, "USD per input token")
	modelsCreateCmd.Flags().Float64("output-cost", 0, "USD per output token")
	modelsCreateCmd.MarkFlagRequired("name")
	modelsCreateCmd.MarkFlagRequired("endpoint")

	modelsCmd.AddCommand(modelsCreateCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsGetCmd)
}
