package evals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/instantcocoa/minos/pkg/llm"
)

const generatorMaxTokens = 4096

// GenerateQuestions invokes the eval's generator model with its stored
// generation prompt and appends the parsed questions to the eval. The
// prompt and model are the eval's reproducibility key, so regeneration
// always uses what was configured at creation time.
func (s *EvalsService) GenerateQuestions(ctx context.Context, evalID string, count int) ([]*Question, error) {
	if count < 1 {
		return nil, fmt.Errorf("question count must be positive")
	}

	eval, err := s.store.GetEval(ctx, evalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval: %w", err)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: eval %s", ErrNotFound, evalID)
	}
	if eval.GenerationPrompt == "" || eval.GeneratorModelID == "" {
		return nil, fmt.Errorf("eval %s has no generation prompt or generator model", evalID)
	}

	generator, err := s.models.ResolveModel(ctx, eval.GeneratorModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve generator model: %w", err)
	}

	prompt := buildGenerationPrompt(eval, count)
	result, err := s.llm.Invoke(ctx, llm.Invocation{
		Endpoint:  generator.Endpoint,
		APIKey:    generator.APIKey,
		Model:     generator.Name,
		Prompt:    prompt,
		MaxTokens: generatorMaxTokens,
		Timeout:   s.invokeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("generator invocation failed: %w", err)
	}

	texts, err := parseGeneratedQuestions(result.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generator output: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("generator produced no questions")
	}

	now := time.Now()
	questions := make([]*Question, 0, len(texts))
	for _, text := range texts {
		question := &Question{
			ID:        uuid.New().String(),
			EvalID:    evalID,
			Text:      text,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateQuestion(ctx, question); err != nil {
			return nil, fmt.Errorf("failed to persist generated question: %w", err)
		}
		questions = append(questions, question)
	}

	s.logger.InfoContext(ctx, "generated questions",
		"eval_id", evalID,
		"generator_model_id", eval.GeneratorModelID,
		"count", len(questions))

	return questions, nil
}

func buildGenerationPrompt(eval *Eval, count int) string {
	prompt := fmt.Sprintf("%s\n\nGenerate exactly %d questions.", eval.GenerationPrompt, count)
	if eval.Difficulty != "" {
		prompt += fmt.Sprintf(" Target difficulty: %s.", eval.Difficulty)
	}
	prompt += "\nRespond with a JSON array of question strings and nothing else."
	return prompt
}

// parseGeneratedQuestions extracts a JSON array of strings from the
// generator's output, tolerating surrounding chatter and empty entries.
func parseGeneratedQuestions(raw string) ([]string, error) {
	extracted := llm.ExtractJSONArray(raw)

	var texts []string
	if err := json.Unmarshal([]byte(extracted), &texts); err != nil {
		return nil, fmt.Errorf("expected a JSON array of strings: %w", err)
	}

	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}
