package evals

import (
	"context"
	"testing"

	"github.com/instantcocoa/minos/pkg/testutil"
)

func newGeneratorEval(t *testing.T, env *testEnv) *Eval {
	t.Helper()

	generator := env.createModel(t, "generator-model")
	eval, err := env.service.CreateEval(context.Background(), CreateEvalInput{
		Name:             "generated-eval",
		GenerationPrompt: "Write trivia questions about Go",
		GeneratorModelID: generator.ID,
		Difficulty:       "hard",
	})
	if err != nil {
		t.Fatalf("CreateEval failed: %v", err)
	}
	return eval
}

func TestGenerateQuestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	eval := newGeneratorEval(t, env)

	env.mock.AddResponse(testutil.MockCompletionResponse(
		`["What is a goroutine?", "What does defer do?", "What is a channel?"]`, 100, 50))

	questions, err := env.service.GenerateQuestions(ctx, eval.ID, 3)
	if err != nil {
		t.Fatalf("GenerateQuestions failed: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if questions[1].Text != "What does defer do?" {
		t.Errorf("unexpected question text: %q", questions[1].Text)
	}

	stored, err := env.service.GetQuestions(ctx, eval.ID)
	if err != nil {
		t.Fatalf("GetQuestions failed: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("expected 3 persisted questions, got %d", len(stored))
	}
}

func TestGenerateQuestionsMarkdownFence(t *testing.T) {
	env := newTestEnv(t)
	eval := newGeneratorEval(t, env)

	env.mock.AddResponse(testutil.MockCompletionResponse(
		"Here are the questions:\n```json\n[\"q1\", \"q2\"]\n```\n", 100, 50))

	questions, err := env.service.GenerateQuestions(context.Background(), eval.ID, 2)
	if err != nil {
		t.Fatalf("GenerateQuestions failed: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("expected 2 questions, got %d", len(questions))
	}
}

func TestGenerateQuestionsMalformedOutput(t *testing.T) {
	env := newTestEnv(t)
	eval := newGeneratorEval(t, env)

	env.mock.AddResponse(testutil.MockCompletionResponse("sorry, I cannot do that", 10, 5))

	if _, err := env.service.GenerateQuestions(context.Background(), eval.ID, 3); err == nil {
		t.Error("expected error for non-JSON generator output")
	}
}

func TestGenerateQuestionsNoGeneratorConfigured(t *testing.T) {
	env := newTestEnv(t)

	eval, err := env.service.CreateEval(context.Background(), CreateEvalInput{Name: "manual-eval"})
	if err != nil {
		t.Fatalf("CreateEval failed: %v", err)
	}

	if _, err := env.service.GenerateQuestions(context.Background(), eval.ID, 3); err == nil {
		t.Error("expected error for eval without generator configuration")
	}
}

func TestParseGeneratedQuestionsSkipsEmpty(t *testing.T) {
	texts, err := parseGeneratedQuestions(`["a", "", "b"]`)
	if err != nil {
		t.Fatalf("parseGeneratedQuestions failed: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("expected 2 questions, got %d", len(texts))
	}
}
