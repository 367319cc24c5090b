package runs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/instantcocoa/minos/pkg/database"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL run store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateRun persists a new run.
func (s *PostgresStore) CreateRun(ctx context.Context, run *EvalRun) error {
	query := `
		INSERT INTO eval_runs (id, eval_id, status, total_cells, total_questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.EvalID, string(run.Status),
		run.TotalCells, run.TotalQuestions,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*EvalRun, error) {
	query := `
		SELECT id, eval_id, status, total_cells, total_questions, created_at, updated_at
		FROM eval_runs
		WHERE id = $1
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// UpdateRun updates a run's mutable fields.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *EvalRun) error {
	query := `
		UPDATE eval_runs
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, run.ID, string(run.Status), run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

// ListRuns returns runs ordered by creation time.
func (s *PostgresStore) ListRuns(ctx context.Context, evalID string) ([]*EvalRun, error) {
	query := `
		SELECT id, eval_id, status, total_cells, total_questions, created_at, updated_at
		FROM eval_runs
		WHERE ($1 = '' OR eval_id = $1)
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CreateResponse persists a cell outcome.
func (s *PostgresStore) CreateResponse(ctx context.Context, response *Response) error {
	query := `
		INSERT INTO responses (id, eval_run_id, question_id, model_id, response_text, error, input_tokens, output_tokens, cost, execution_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		response.ID, response.EvalRunID, response.QuestionID, response.ModelID,
		response.ResponseText, response.Error,
		response.InputTokens, response.OutputTokens, response.Cost,
		response.ExecutionTimeMs, response.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID.
func (s *PostgresStore) GetResponse(ctx context.Context, id string) (*Response, error) {
	query := `
		SELECT id, eval_run_id, question_id, model_id, response_text, error, input_tokens, output_tokens, cost, execution_time_ms, created_at
		FROM responses
		WHERE id = $1
	`
	response, err := scanResponse(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query response: %w", err)
	}
	return response, nil
}

// ListResponses returns a run's responses ordered by creation time.
func (s *PostgresStore) ListResponses(ctx context.Context, runID string) ([]*Response, error) {
	query := `
		SELECT id, eval_run_id, question_id, model_id, response_text, error, input_tokens, output_tokens, cost, execution_time_ms, created_at
		FROM responses
		WHERE eval_run_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []*Response
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, response)
	}

	return responses, rows.Err()
}

// CreateScore persists a score.
func (s *PostgresStore) CreateScore(ctx context.Context, score *Score) error {
	query := `
		INSERT INTO scores (id, response_id, score_value, justification, scorer_type, scorer_llm_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		score.ID, score.ResponseID, score.ScoreValue, score.Justification,
		string(score.ScorerType), score.ScorerLLMID, score.Error, score.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	return nil
}

// UpsertManualScore writes the manual-lane score for a response in one
// statement against the partial unique index on (response_id) for manual
// scores, so concurrent writers cannot both insert.
func (s *PostgresStore) UpsertManualScore(ctx context.Context, score *Score) (*Score, error) {
	query := `
		INSERT INTO scores (id, response_id, score_value, justification, scorer_type, scorer_llm_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (response_id) WHERE scorer_type = 'manual'
		DO UPDATE SET score_value = EXCLUDED.score_value, justification = EXCLUDED.justification
		RETURNING id, response_id, score_value, justification, scorer_type, scorer_llm_id, error, created_at
	`
	stored, err := scanScore(s.db.QueryRowContext(ctx, query,
		score.ID, score.ResponseID, score.ScoreValue, score.Justification,
		string(score.ScorerType), score.ScorerLLMID, score.Error, score.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert manual score: %w", err)
	}
	return stored, nil
}

// GetManualScore returns the manual score for a response, or nil.
func (s *PostgresStore) GetManualScore(ctx context.Context, responseID string) (*Score, error) {
	query := `
		SELECT id, response_id, score_value, justification, scorer_type, scorer_llm_id, error, created_at
		FROM scores
		WHERE response_id = $1 AND scorer_type = 'manual'
	`
	score, err := scanScore(s.db.QueryRowContext(ctx, query, responseID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query manual score: %w", err)
	}
	return score, nil
}

// ListScoresByRunID returns all scores attached to a run's responses.
func (s *PostgresStore) ListScoresByRunID(ctx context.Context, runID string) ([]*Score, error) {
	query := `
		SELECT s.id, s.response_id, s.score_value, s.justification, s.scorer_type, s.scorer_llm_id, s.error, s.created_at
		FROM scores s
		JOIN responses r ON r.id = s.response_id
		WHERE r.eval_run_id = $1
		ORDER BY s.created_at, s.id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var scores []*Score
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}

	return scores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*EvalRun, error) {
	var run EvalRun
	var status string
	err := row.Scan(
		&run.ID, &run.EvalID, &status,
		&run.TotalCells, &run.TotalQuestions,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	return &run, nil
}

func scanResponse(row rowScanner) (*Response, error) {
	var response Response
	err := row.Scan(
		&response.ID, &response.EvalRunID, &response.QuestionID, &response.ModelID,
		&response.ResponseText, &response.Error,
		&response.InputTokens, &response.OutputTokens, &response.Cost,
		&response.ExecutionTimeMs, &response.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func scanScore(row rowScanner) (*Score, error) {
	var score Score
	var scorerType string
	err := row.Scan(
		&score.ID, &score.ResponseID, &score.ScoreValue, &score.Justification,
		&scorerType, &score.ScorerLLMID, &score.Error, &score.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	score.ScorerType = ScorerType(scorerType)
	return &score, nil
}
