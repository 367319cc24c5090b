// Package evals provides evaluation question sets, LLM question generation,
// and question-quality judging.
package evals

import (
	"time"
)

// Eval represents a named set of evaluation questions.
type Eval struct {
	ID               string
	Name             string
	Description      string
	GenerationPrompt string
	GeneratorModelID string
	Difficulty       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Question is a single evaluation question owned by an Eval. Version
// increments on every edit.
type Question struct {
	ID        string
	EvalID    string
	Text      string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Judgment is a judge model's quality assessment of a single question,
// independent of any run. A nil criterion score means the judge did not
// produce one. Error records a failed judging attempt.
type Judgment struct {
	ID               string
	QuestionID       string
	JudgeModelID     string
	OverallScore     *float64
	ClarityScore     *float64
	DifficultyScore  *float64
	RelevanceScore   *float64
	OriginalityScore *float64
	Justification    string
	Error            string
	CreatedAt        time.Time
}

// CreateEvalInput contains input for creating an eval.
type CreateEvalInput struct {
	Name             string
	Description      string
	GenerationPrompt string
	GeneratorModelID string
	Difficulty       string
}

// AddQuestionInput contains input for adding a question to an eval.
type AddQuestionInput struct {
	EvalID string
	Text   string
}

// UpdateQuestionInput contains input for editing a question's text.
type UpdateQuestionInput struct {
	EvalID     string
	QuestionID string
	Text       string
}
