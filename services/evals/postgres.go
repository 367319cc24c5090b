package evals

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

// NewPostgresStore creates a new PostgreSQL eval store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateEval creates a new eval.
func (s *PostgresStore) CreateEval(ctx context.Context, eval *Eval) error {
	query := `
		INSERT INTO evals (id, name, description, generation_prompt, generator_model_id, difficulty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		eval.ID, eval.Name, eval.Description,
		eval.GenerationPrompt, eval.GeneratorModelID, eval.Difficulty,
		eval.CreatedAt, eval.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert eval: %w", err)
	}
	return nil
}

// GetEval retrieves an eval by ID.
func (s *PostgresStore) GetEval(ctx context.Context, id string) (*Eval, error) {
	query := `
		SELECT id, name, description, generation_prompt, generator_model_id, difficulty, created_at, updated_at
		FROM evals
		WHERE id = $1
	`
	eval, err := scanEval(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query eval: %w", err)
	}
	return eval, nil
}

// UpdateEval updates an eval.
func (s *PostgresStore) UpdateEval(ctx context.Context, eval *Eval) error {
	query := `
		UPDATE evals
		SET name = $2, description = $3, generation_prompt = $4, generator_model_id = $5, difficulty = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		eval.ID, eval.Name, eval.Description,
		eval.GenerationPrompt, eval.GeneratorModelID, eval.Difficulty,
		eval.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update eval: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("eval not found: %s", eval.ID)
	}
	return nil
}

// DeleteEval removes an eval. Questions and judgments cascade via foreign
// keys.
func (s *PostgresStore) DeleteEval(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM evals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete eval: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("eval not found: %s", id)
	}
	return nil
}

// ListEvals returns all evals ordered by creation time.
func (s *PostgresStore) ListEvals(ctx context.Context) ([]*Eval, error) {
	query := `
		SELECT id, name, description, generation_prompt, generator_model_id, difficulty, created_at, updated_at
		FROM evals
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query evals: %w", err)
	}
	defer rows.Close()

	var evals []*Eval
	for rows.Next() {
		eval, err := scanEval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eval: %w", err)
		}
		evals = append(evals, eval)
	}

	return evals, rows.Err()
}

// CreateQuestion adds a question to an eval.
func (s *PostgresStore) CreateQuestion(ctx context.Context, question *Question) error {
	query := `
		INSERT INTO questions (id, eval_id, text, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		question.ID, question.EvalID, question.Text, question.Version,
		question.CreatedAt, question.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// GetQuestion retrieves a question by ID.
func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	query := `
		SELECT id, eval_id, text, version, created_at, updated_at
		FROM questions
		WHERE id = $1
	`
	var q Question
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&q.ID, &q.EvalID, &q.Text, &q.Version, &q.CreatedAt, &q.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	return &q, nil
}

// UpdateQuestion updates a question.
func (s *PostgresStore) UpdateQuestion(ctx context.Context, question *Question) error {
	query := `
		UPDATE questions
		SET text = $2, version = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		question.ID, question.Text, question.Version, question.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("question not found: %s", question.ID)
	}
	return nil
}

// ListQuestions returns an eval's questions ordered by creation time.
func (s *PostgresStore) ListQuestions(ctx context.Context, evalID string) ([]*Question, error) {
	query := `
		SELECT id, eval_id, text, version, created_at, updated_at
		FROM questions
		WHERE eval_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.EvalID, &q.Text, &q.Version, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, &q)
	}

	return questions, rows.Err()
}

// CreateJudgment persists a judgment.
func (s *PostgresStore) CreateJudgment(ctx context.Context, judgment *Judgment) error {
	query := `
		INSERT INTO judgments (id, question_id, judge_model_id, overall_score, clarity_score, difficulty_score, relevance_score, originality_score, justification, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		judgment.ID, judgment.QuestionID, judgment.JudgeModelID,
		judgment.OverallScore, judgment.ClarityScore, judgment.DifficultyScore,
		judgment.RelevanceScore, judgment.OriginalityScore,
		judgment.Justification, judgment.Error, judgment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert judgment: %w", err)
	}
	return nil
}

// ListJudgments returns all judgments for an eval's questions.
func (s *PostgresStore) ListJudgments(ctx context.Context, evalID string) ([]*Judgment, error) {
	query := `
		SELECT j.id, j.question_id, j.judge_model_id, j.overall_score, j.clarity_score, j.difficulty_score, j.relevance_score, j.originality_score, j.justification, j.error, j.created_at
		FROM judgments j
		JOIN questions q ON q.id = j.question_id
		WHERE q.eval_id = $1
		ORDER BY j.created_at, j.id
	`
	rows, err := s.db.QueryContext(ctx, query, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query judgments: %w", err)
	}
	defer rows.Close()

	var judgments []*Judgment
	for rows.Next() {
		var j Judgment
		err := rows.Scan(
			&j.ID, &j.QuestionID, &j.JudgeModelID,
			&j.OverallScore, &j.ClarityScore, &j.DifficultyScore,
			&j.RelevanceScore, &j.OriginalityScore,
			&j.Justification, &j.Error, &j.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan judgment: %w", err)
		}
		judgments = append(judgments, &j)
	}

	return judgments, rows.Err()
}

func scanEval(row interface {
	Scan(dest ...interface{}) error
}) (*Eval, error) {
	var eval Eval
	err := row.Scan(
		&eval.ID, &eval.Name, &eval.Description,
		&eval.GenerationPrompt, &eval.GeneratorModelID, &eval.Difficulty,
		&eval.CreatedAt, &eval.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &eval, nil
}
