package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/minos/cli/internal/output"
)

var evalsCmd = &cobra.Command{
	Use:   "evals",
	Short: "Eval and question operations",
	Long:  "Commands for managing evaluation question sets, generation, and judging.",
}

type questionPayload struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Version int    `json:"version"`
}

type evalPayload struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	GeneratorModelID string            `json:"generator_model_id,omitempty"`
	Difficulty       string            `json:"difficulty,omitempty"`
	CreatedAt        string            `json:"created_at"`
	Questions        []questionPayload `json:"questions,omitempty"`
}

var evalsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an eval",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		genPrompt, _ := cmd.Flags().GetString("generation-prompt")
		genModel, _ := cmd.Flags().GetString("generator-model")
		difficulty, _ := cmd.Flags().GetString("difficulty")

		var eval evalPayload
		err := apiPost("/v1/evals", map[string]string{
			"name":               name,
			"description":        description,
			"generation_prompt":  genPrompt,
			"generator_model_id": genModel,
			"difficulty":         difficulty,
		}, &eval)
		if err != nil {
			return err
		}

		output.Success("Created eval %s (ID: %s)", eval.Name, eval.ID)
		return nil
	},
}

var evalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Evals []evalPayload `json:"evals"`
		}
		if err := apiGet("/v1/evals", &resp); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(resp.Evals)
		}

		table := output.Table{
			Headers: []string{"ID", "NAME", "DIFFICULTY", "CREATED"},
			Rows:    make([][]string, len(resp.Evals)),
		}
		for i, e := range resp.Evals {
			table.Rows[i] = []string{e.ID, e.Name, e.Difficulty, e.CreatedAt}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var evalsGetCmd = &cobra.Command{
	Use:   "get <eval-id>",
	Short: "Show an eval and its questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var eval evalPayload
		if err := apiGet("/v1/evals/"+args[0], &eval); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(eval)
		}

		output.Info("Eval %s (%s)", eval.Name, eval.ID)
		table := output.Table{
			Headers: []string{"QUESTION ID", "VERSION", "TEXT"},
			Rows:    make([][]string, len(eval.Questions)),
		}
		for i, q := range eval.Questions {
			table.Rows[i] = []string{q.ID, fmt.Sprintf("%d", q.Version), q.Text}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var evalsAddQuestionCmd = &cobra.Command{
	Use:   "add-question <eval-id>",
	Short: "Add a question to an eval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")

		var question questionPayload
		err := apiPost("/v1/evals/"+args[0]+"/questions", map[string]string{"text": text}, &question)
		if err != nil {
			return err
		}

		output.Success("Added question %s", question.ID)
		return nil
	},
}

var evalsGenerateCmd = &cobra.Command{
	Use:   "generate <eval-id>",
	Short: "Generate questions with the eval's generator model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		var resp struct {
			Questions []questionPayload `json:"questions"`
		}
		err := apiPost("/v1/evals/"+args[0]+"/generate", map[string]int{"count": count}, &resp)
		if err != nil {
			return err
		}

		output.Success("Generated %d questions", len(resp.Questions))
		return nil
	},
}

var evalsJudgeCmd = &cobra.Command{
	Use:   "judge <eval-id>",
	Short: "Judge question quality with one or more judge models",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		judges, _ := cmd.Flags().GetStringSlice("judge")
		prompt, _ := cmd.Flags().GetString("prompt")

		err := apiPost("/v1/evals/"+args[0]+"/judgments", map[string]interface{}{
			"judge_model_ids": judges,
			"judging_prompt":  prompt,
		}, nil)
		if err != nil {
			return err
		}

		output.Success("Judging started for eval %s", args[0])
		output.Info("Fetch results with: minos evals judgments %s", args[0])
		return nil
	},
}

var evalsJudgmentsCmd = &cobra.Command{
	Use:   "judgments <eval-id>",
	Short: "Show question-quality judgments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			JudgmentsByQuestion map[string][]struct {
				JudgeModelID  string   `json:"judge_model_id"`
				OverallScore  *float64 `json:"overall_score,omitempty"`
				Justification string   `json:"justification,omitempty"`
				Error         string   `json:"error,omitempty"`
			} `json:"judgments_by_question"`
		}
		if err := apiGet("/v1/evals/"+args[0]+"/judgments", &resp); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(resp.JudgmentsByQuestion)
		}

		table := output.Table{Headers: []string{"QUESTION ID", "JUDGE", "OVERALL", "NOTES"}}
		for qid, judgments := range resp.JudgmentsByQuestion {
			for _, j := range judgments {
				overall := "-"
				if j.OverallScore != nil {
					overall = fmt.Sprintf("%.1f", *j.OverallScore)
				}
				notes := j.Justification
				if j.Error != "" {
					notes = "error: " + j.Error
				}
				table.Rows = append(table.Rows, []string{qid, j.JudgeModelID, overall, notes})
			}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

func init() {
	evalsCreateCmd.Flags().String("name", "", "Eval name (required)")
	evalsCreateCmd.Flags().String("description", "", "Eval description")
	evalsCreateCmd.Flags().String("generation-prompt", "", "Prompt used for question generation")
	evalsCreateCmd.Flags().String("generator-model", "", "Model ID used for question generation")
	evalsCreateCmd.Flags().String("difficulty", "", "Target difficulty")
	evalsCreateCmd.MarkFlagRequired("name")

	evalsAddQuestionCmd.Flags().String("text", "", "Question text (required)")
	evalsAddQuestionCmd.MarkFlagRequired("text")

	evalsGenerateCmd.Flags().Int("count", 10, "Number of questions to generate")

	evalsJudgeCmd.Flags().StringSlice("judge", nil, "Judge model ID (repeatable, required)")
	evalsJudgeCmd.Flags().String("prompt", "Assess the quality of this evaluation question.", "Judging prompt")
	evalsJudgeCmd.MarkFlagRequired("judge")

	evalsCmd.AddCommand(evalsCreateCmd)
	evalsCmd.AddCommand(evalsListCmd)
	evalsCmd.AddCommand(evalsGetCmd)
	evalsCmd.AddCommand(evalsAddQuestionCmd)
	evalsCmd.AddCommand(evalsGenerateCmd)
	evalsCmd.AddCommand(evalsJudgeCmd)
	evalsCmd.AddCommand(evalsJudgmentsCmd)
}
