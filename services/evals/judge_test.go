package evals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/instantcocoa/minos/pkg/testutil"
)

const verdictContent = `{"overall_score": 8, "clarity_score": 9, "difficulty_score": 6, "relevance_score": 8, "originality_score": 7, "justification": "clear and well scoped"}`

func waitForJudgments(t *testing.T, env *testEnv, evalID string, want int) []*Judgment {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		judgments, err := env.store.ListJudgments(context.Background(), evalID)
		if err != nil {
			t.Fatalf("ListJudgments failed: %v", err)
		}
		if len(judgments) >= want {
			return judgments
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d judgments, have %d", want, len(judgments))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartJudgingFanOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	judgeA := env.createModel(t, "judge-a")
	judgeB := env.createModel(t, "judge-b")
	eval := env.createEvalWithQuestions(t, "q1", "q2", "q3", "q4", "q5")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse(verdictContent, 60, 40))

	err := env.service.StartJudging(ctx, eval.ID, []string{judgeA.ID, judgeB.ID}, "Assess question quality")
	if err != nil {
		t.Fatalf("StartJudging failed: %v", err)
	}

	judgments := waitForJudgments(t, env, eval.ID, 10)
	if len(judgments) != 10 {
		t.Fatalf("expected 10 judgments, got %d", len(judgments))
	}

	// Every (question, judge) pair appears exactly once.
	seen := make(map[string]bool)
	for _, j := range judgments {
		key := j.QuestionID + "/" + j.JudgeModelID
		if seen[key] {
			t.Errorf("duplicate judgment for %s", key)
		}
		seen[key] = true

		if j.Error != "" {
			t.Errorf("unexpected judgment error: %s", j.Error)
		}
		if j.OverallScore == nil || *j.OverallScore != 8 {
			t.Errorf("unexpected overall score: %v", j.OverallScore)
		}
		if j.ClarityScore == nil || *j.ClarityScore != 9 {
			t.Errorf("unexpected clarity score: %v", j.ClarityScore)
		}
		if j.Justification != "clear and well scoped" {
			t.Errorf("unexpected justification: %q", j.Justification)
		}
	}
}

func TestStartJudgingMalformedVerdict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	judge := env.createModel(t, "judge-a")
	eval := env.createEvalWithQuestions(t, "q1", "q2", "q3")

	// One judge call returns prose with no JSON; the rest succeed.
	env.mock.AddResponse(testutil.MockCompletionResponse("this question looks fine to me", 20, 10))
	env.mock.SetDefaultResponse(testutil.MockCompletionResponse(verdictContent, 60, 40))

	if err := env.service.StartJudging(ctx, eval.ID, []string{judge.ID}, "Assess"); err != nil {
		t.Fatalf("StartJudging failed: %v", err)
	}

	judgments := waitForJudgments(t, env, eval.ID, 3)

	failed := 0
	for _, j := range judgments {
		if j.Error != "" {
			failed++
			if j.OverallScore != nil {
				t.Error("failed judgment should not carry scores")
			}
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed judgment, got %d", failed)
	}
}

func TestStartJudgingDeduplicatesJudges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	judge := env.createModel(t, "judge-a")
	eval := env.createEvalWithQuestions(t, "q1", "q2")

	env.mock.SetDefaultResponse(testutil.MockCompletionResponse(verdictContent, 60, 40))

	err := env.service.StartJudging(ctx, eval.ID, []string{judge.ID, judge.ID, ""}, "Assess")
	if err != nil {
		t.Fatalf("StartJudging failed: %v", err)
	}

	judgments := waitForJudgments(t, env, eval.ID, 2)
	if len(judgments) != 2 {
		t.Errorf("expected 2 judgments after dedup, got %d", len(judgments))
	}
}

func TestStartJudgingNoQuestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	judge := env.createModel(t, "judge-a")
	eval := env.createEvalWithQuestions(t)

	err := env.service.StartJudging(ctx, eval.ID, []string{judge.ID}, "Assess")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestStartJudgingNoJudges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eval := env.createEvalWithQuestions(t, "q1")

	err := env.service.StartJudging(ctx, eval.ID, nil, "Assess")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestStartJudgingUnknownJudgeModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eval := env.createEvalWithQuestions(t, "q1")

	err := env.service.StartJudging(ctx, eval.ID, []string{"no-such-model"}, "Assess")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	judgments, _ := env.store.ListJudgments(ctx, eval.ID)
	if len(judgments) != 0 {
		t.Errorf("expected no judgments after rejected request, got %d", len(judgments))
	}
}

func TestParseJudgeVerdictNoScores(t *testing.T) {
	if _, err := parseJudgeVerdict(`{"justification": "nice"}`); err == nil {
		t.Error("expected error for verdict with no scores")
	}
}

func TestParseJudgeVerdictPartialScores(t *testing.T) {
	verdict, err := parseJudgeVerdict(`{"overall_score": 5}`)
	if err != nil {
		t.Fatalf("parseJudgeVerdict failed: %v", err)
	}
	if verdict.OverallScore == nil || *verdict.OverallScore != 5 {
		t.Errorf("unexpected overall score: %v", verdict.OverallScore)
	}
	if verdict.ClarityScore != nil {
		t.Error("expected nil clarity score")
	}
}
