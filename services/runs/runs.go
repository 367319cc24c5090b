// Package runs provides the eval run orchestrator: it fans evaluation
// questions out against target models with bounded concurrency, persists one
// response per (question, model) cell, reports progress, and layers manual
// and LLM-judge scoring over the persisted result matrix.
package runs

import (
	"time"
)

// RunStatus represents the lifecycle state of an eval run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// EvalRun represents one execution of an eval against a set of target
// models. TotalCells and TotalQuestions are captured at creation time so
// progress reporting never depends on the current (possibly edited)
// question set.
type EvalRun struct {
	ID             string
	EvalID         string
	Status         RunStatus
	TotalCells     int
	TotalQuestions int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Response is the persisted outcome of one (question, model) cell. Error
// and ResponseText can coexist: a completion that succeeded but could not
// be priced keeps its text alongside a pricing error.
type Response struct {
	ID              string
	EvalRunID       string
	QuestionID      string
	ModelID         string
	ResponseText    string
	Error           string
	InputTokens     *int
	OutputTokens    *int
	Cost            *float64
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

// Succeeded reports whether the cell produced a completion. A legitimately
// empty completion still counts; so does a completion whose cost could not
// be priced. Invocation failures record an error and never token usage,
// which is what distinguishes them from a priced-out completion.
func (r *Response) Succeeded() bool {
	return r.Error == "" || r.InputTokens != nil
}

// ScorerType identifies who produced a score.
type ScorerType string

const (
	ScorerTypeManual ScorerType = "manual"
	ScorerTypeLLM    ScorerType = "llm"
)

// Score is a quality rating for one response. The manual lane holds at
// most one score per response, updated in place; llm scores are append
// only. Error records a failed judge attempt.
type Score struct {
	ID            string
	ResponseID    string
	ScoreValue    *float64
	Justification string
	ScorerType    ScorerType
	ScorerLLMID   string
	Error         string
	CreatedAt     time.Time
}

// Progress is a computed view over a run's persisted responses.
type Progress struct {
	Percentage          float64
	TotalQuestions      int
	TotalResponses      int
	SuccessfulResponses int
	FailedResponses     int
}

// RunStatusView is the pollable status of a run.
type RunStatusView struct {
	RunID    string
	EvalID   string
	Status   RunStatus
	Progress Progress
}

// ResponseResult pairs a response with its current score for display. The
// manual score wins when present, otherwise the most recent llm score.
type ResponseResult struct {
	Response     *Response
	CurrentScore *Score
	Scores       []*Score
}

// RunResults is the full result set for a run.
type RunResults struct {
	Run       *EvalRun
	EvalID    string
	EvalName  string
	Responses []*ResponseResult
}

// StartRunInput contains input for starting a run.
type StartRunInput struct {
	EvalID   string
	ModelIDs []string
}

// ValidationError rejects a request before any run record is created.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
