package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/minos/cli/internal/output"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Eval run operations",
	Long:  "Commands for starting eval runs, polling progress, and scoring results.",
}

type runPayload struct {
	ID             string `json:"id"`
	EvalID         string `json:"eval_id"`
	Status         string `json:"status"`
	TotalCells     int    `json:"total_cells"`
	TotalQuestions int    `json:"total_questions"`
	CreatedAt      string `json:"created_at"`
}

type scorePayload struct {
	ID            string   `json:"id"`
	ScoreValue    *float64 `json:"score_value,omitempty"`
	Justification string   `json:"justification,omitempty"`
	ScorerType    string   `json:"scorer_type"`
	ScorerLLMID   string   `json:"scorer_llm_id,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type responsePayload struct {
	ID              string        `json:"id"`
	QuestionID      string        `json:"question_id"`
	ModelID         string        `json:"model_id"`
	ResponseText    string        `json:"response_text,omitempty"`
	Error           string        `json:"error,omitempty"`
	Cost            *float64      `json:"cost,omitempty"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	CurrentScore    *scorePayload `json:"current_score,omitempty"`
}

var runsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an eval run against one or more models",
	RunE: func(cmd *cobra.Command, args []string) error {
		evalID, _ := cmd.Flags().GetString("eval")
		models, _ := cmd.Flags().GetStringSlice("model")

		var run runPayload
		err := apiPost("/v1/runs", map[string]interface{}{
			"eval_id":   evalID,
			"model_ids": models,
		}, &run)
		if err != nil {
			return err
		}

		output.Success("Started run %s (%d questions x %d models = %d cells)",
			run.ID, run.TotalQuestions, len(models), run.TotalCells)
		output.Info("Poll progress with: minos runs status %s", run.ID)
		return nil
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List eval runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		evalID, _ := cmd.Flags().GetString("eval")

		path := "/v1/runs"
		if evalID != "" {
			path += "?eval_id=" + evalID
		}

		var resp struct {
			Runs []runPayload `json:"runs"`
		}
		if err := apiGet(path, &resp); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(resp.Runs)
		}

		table := output.Table{
			Headers: []string{"ID", "EVAL", "STATUS", "CELLS", "CREATED"},
			Rows:    make([][]string, len(resp.Runs)),
		}
		for i, r := range resp.Runs {
			table.Rows[i] = []string{
				r.ID, r.EvalID, r.Status,
				fmt.Sprintf("%d", r.TotalCells), r.CreatedAt,
			}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show run status and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var status struct {
			RunID    string `json:"run_id"`
			EvalID   string `json:"eval_id"`
			Status   string `json:"status"`
			Progress struct {
				Percentage          float64 `json:"percentage"`
				TotalQuestions      int     `json:"total_questions"`
				TotalResponses      int     `json:"total_responses"`
				SuccessfulResponses int     `json:"successful_responses"`
				FailedResponses     int     `json:"failed_responses"`
			} `json:"progress"`
		}
		if err := apiGet("/v1/runs/"+args[0]+"/status", &status); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(status)
		}

		output.Info("Run %s (eval %s): %s", status.RunID, status.EvalID, status.Status)
		table := output.Table{
			Headers: []string{"PROGRESS", "QUESTIONS", "RESPONSES", "OK", "FAILED"},
			Rows: [][]string{{
				fmt.Sprintf("%.1f%%", status.Progress.Percentage),
				fmt.Sprintf("%d", status.Progress.TotalQuestions),
				fmt.Sprintf("%d", status.Progress.TotalResponses),
				fmt.Sprintf("%d", status.Progress.SuccessfulResponses),
				fmt.Sprintf("%d", status.Progress.FailedResponses),
			}},
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var runsResultsCmd = &cobra.Command{
	Use:   "results <run-id>",
	Short: "Show run responses and scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var results struct {
			Run       runPayload        `json:"run"`
			EvalName  string            `json:"eval_name"`
			Responses []responsePayload `json:"responses"`
		}
		if err := apiGet("/v1/runs/"+args[0]+"/results", &results); err != nil {
			return err
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(results)
		}

		output.Info("Run %s for eval %q (%s)", results.Run.ID, results.EvalName, results.Run.Status)
		table := output.Table{
			Headers: []string{"RESPONSE ID", "QUESTION", "MODEL", "SCORE", "COST", "TIME (MS)", "STATUS"},
			Rows:    make([][]string, len(results.Responses)),
		}
		for i, r := range results.Responses {
			table.Rows[i] = []string{
				r.ID, r.QuestionID, r.ModelID,
				formatCurrentScore(r.CurrentScore),
				formatCost(r.Cost),
				fmt.Sprintf("%d", r.ExecutionTimeMs),
				responseStatus(r),
			}
		}
		w := output.NewWriter(cfg.Format)
		return w.Print(table)
	},
}

var runsScoreCmd = &cobra.Command{
	Use:   "score <run-id>",
	Short: "Score a run's responses with a judge model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		judge, _ := cmd.Flags().GetString("judge")
		rubric, _ := cmd.Flags().GetString("rubric")

		err := apiPost("/v1/runs/"+args[0]+"/scores", map[string]string{
			"judge_model_id": judge,
			"rubric_prompt":  rubric,
		}, nil)
		if err != nil {
			return err
		}

		output.Success("Scoring started for run %s", args[0])
		output.Info("Fetch scores with: minos runs results %s", args[0])
		return nil
	},
}

var responsesScoreSetCmd = &cobra.Command{
	Use:   "score-set <response-id>",
	Short: "Set a manual score on a response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetFloat64("value")
		justification, _ := cmd.Flags().GetString("justification")

		var score scorePayload
		err := apiPut("/v1/responses/"+args[0]+"/score", map[string]interface{}{
			"score_value":   value,
			"justification": justification,
		}, &score)
		if err != nil {
			return err
		}

		output.Success("Scored response %s: %.2f", args[0], value)
		return nil
	},
}

func formatCurrentScore(s *scorePayload) string {
	if s == nil || s.ScoreValue == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f (%s)", *s.ScoreValue, s.ScorerType)
}

func responseStatus(r responsePayload) string {
	if r.Error != "" {
		return "error: " + r.Error
	}
	return "ok"
}

func init() {
	runsStartCmd.Flags().String("eval", "", "Eval ID (required)")
	runsStartCmd.Flags().StringSlice("model", nil, "Model ID to run against (repeatable, required)")
	runsStartCmd.MarkFlagRequired("eval")
	runsStartCmd.MarkFlagRequired("model")

	runsListCmd.Flags().String("eval", "", "Filter by eval ID")

	runsScoreCmd.Flags().String("judge", "", "Judge model ID (required)")
	runsScoreCmd.Flags().String("rubric", "", "Rubric prompt for the judge (required)")
	runsScoreCmd.MarkFlagRequired("judge")
	runsScoreCmd.MarkFlagRequired("rubric")

	responsesScoreSetCmd.Flags().Float64("value", 0, "Score value (required)")
	responsesScoreSetCmd.Flags().String("justification", "", "Optional justification")
	responsesScoreSetCmd.MarkFlagRequired("value")

	runsCmd.AddCommand(runsStartCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsResultsCmd)
	runsCmd.AddCommand(runsScoreCmd)
	runsCmd.AddCommand(responsesScoreSetCmd)
}
