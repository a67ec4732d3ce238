package progress

import (
	"context"
	"testing"

	"github.com/BroWo1/fact-check/internal/store"
	"github.com/BroWo1/fact-check/models"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func TestApplyMergesStepsInPlace(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{
		Kind: KindProgress,
		Steps: []models.Step{
			{StepNumber: 1, StepType: "initial_web_search", Status: models.StepCompleted},
			{StepNumber: 3, StepType: "final_conclusion", Status: models.StepInProgress},
		},
	})
	r.Apply(context.Background(), Update{
		Kind: KindStep,
		Step: &models.Step{StepNumber: 3, Status: models.StepCompleted, Summary: "done"},
	})

	snap := r.Snapshot()
	if len(snap.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(snap.Steps))
	}
	if snap.Steps[1].StepNumber != 3 {
		t.Fatalf("expected step 3 in place, got %d", snap.Steps[1].StepNumber)
	}
	if snap.Steps[1].Status != models.StepCompleted || snap.Steps[1].Summary != "done" {
		t.Fatalf("expected merged step, got %+v", snap.Steps[1])
	}
	if snap.Steps[1].StepType != "final_conclusion" {
		t.Fatalf("merge should not drop existing fields, got %+v", snap.Steps[1])
	}
}

func TestApplySortsOutOfOrderSteps(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{
		Kind: KindProgress,
		Steps: []models.Step{
			{StepNumber: 2}, {StepNumber: 1}, {StepNumber: 3},
		},
	})
	snap := r.Snapshot()
	for i, want := range []int{1, 2, 3} {
		if snap.Steps[i].StepNumber != want {
			t.Fatalf("step %d: expected number %d, got %d", i, want, snap.Steps[i].StepNumber)
		}
	}
}

func TestExplicitPercentageIsAuthoritative(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{Kind: KindProgress, Percentage: fp(40)})

	// derived 1/4 = 25% must not pull an authoritative 40% down
	r.Apply(context.Background(), Update{Kind: KindProgress, CompletedSteps: ip(1), TotalSteps: ip(4)})
	if got := r.Snapshot().Percentage; got != 40 {
		t.Fatalf("expected 40, got %v", got)
	}

	// but a lower explicit percentage wins
	r.Apply(context.Background(), Update{Kind: KindProgress, Percentage: fp(30)})
	if got := r.Snapshot().Percentage; got != 30 {
		t.Fatalf("expected 30, got %v", got)
	}
}

func TestDerivedPercentageFillsGaps(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{Kind: KindProgress, CompletedSteps: ip(2), TotalSteps: ip(4)})
	if got := r.Snapshot().Percentage; got != 50 {
		t.Fatalf("expected derived 50, got %v", got)
	}
	// fewer completed steps later must not move it backwards
	r.Apply(context.Background(), Update{Kind: KindProgress, CompletedSteps: ip(1)})
	if got := r.Snapshot().Percentage; got != 50 {
		t.Fatalf("expected 50 to hold, got %v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	r := NewReconciler(nil, nil)
	u := Update{
		Kind:       KindProgress,
		Percentage: fp(60),
		Steps:      []models.Step{{StepNumber: 1, Status: models.StepCompleted}},
	}
	r.Apply(context.Background(), u)
	first := r.Snapshot()
	r.Apply(context.Background(), u)
	second := r.Snapshot()

	if first.Percentage != second.Percentage || len(first.Steps) != len(second.Steps) {
		t.Fatalf("reapplying the same update changed state: %+v vs %+v", first, second)
	}
}

func TestAbsentFieldsNeverReset(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{
		Kind:        KindProgress,
		Percentage:  fp(70),
		CurrentStep: "Evaluating source credibility...",
	})
	r.Apply(context.Background(), Update{Kind: KindProgress})
	snap := r.Snapshot()
	if snap.Percentage != 70 || snap.CurrentStep != "Evaluating source credibility..." {
		t.Fatalf("empty update reset state: %+v", snap)
	}
}

func TestStepUpdateDefaultsAndLabel(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{
		Kind: KindStep,
		Step: &models.Step{StepNumber: 1, StepType: "initial_web_search"},
	})
	snap := r.Snapshot()
	if snap.CurrentStep != "Searching for credible sources..." {
		t.Fatalf("expected step-type label, got %q", snap.CurrentStep)
	}
	if len(snap.Steps) != 1 {
		t.Fatalf("expected one step, got %d", len(snap.Steps))
	}
	if snap.Steps[0].Status != models.StepInProgress {
		t.Fatalf("expected default in_progress, got %q", snap.Steps[0].Status)
	}
	if snap.Steps[0].Timestamp.IsZero() {
		t.Fatalf("expected a timestamp default")
	}
	if snap.Steps[0].Description != "Searching for credible sources..." {
		t.Fatalf("expected label description fallback, got %q", snap.Steps[0].Description)
	}
}

func TestStatusTokenOnlyFillsEmptyLabel(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{Kind: KindProgress, StatusToken: "topic_analysis"})
	if got := r.Snapshot().CurrentStep; got != "Analyzing your topic..." {
		t.Fatalf("expected token label, got %q", got)
	}
	r.Apply(context.Background(), Update{Kind: KindProgress, CurrentStep: "Custom step"})
	r.Apply(context.Background(), Update{Kind: KindProgress, StatusToken: "topic_analysis"})
	if got := r.Snapshot().CurrentStep; got != "Custom step" {
		t.Fatalf("token must not overwrite an existing label, got %q", got)
	}
}

func TestApplyPersistsSnapshot(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()
	if err := st.SaveSession(ctx, store.SessionRecord{SessionID: "s1", Status: models.StatusInProgress}); err != nil {
		t.Fatalf("save: %v", err)
	}

	r := NewReconciler(nil, st)
	r.Bind("s1")
	r.Apply(ctx, Update{Kind: KindProgress, Percentage: fp(45), CurrentStep: "Exploring deeper..."})

	recs, err := st.ActiveSessions(ctx)
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Progress.Percentage != 45 || recs[0].Progress.CurrentStep != "Exploring deeper..." {
		t.Fatalf("snapshot not persisted: %+v", recs[0].Progress)
	}
}

func TestMarkCompleted(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.Apply(context.Background(), Update{
		Kind: KindProgress,
		Steps: []models.Step{
			{StepNumber: 1, Status: models.StepCompleted},
			{StepNumber: 2, Status: models.StepInProgress},
		},
		Percentage: fp(50),
	})
	r.MarkCompleted(context.Background(), "Analysis complete")
	snap := r.Snapshot()
	if snap.Percentage != 100 {
		t.Fatalf("expected 100%%, got %v", snap.Percentage)
	}
	if snap.CurrentStep != "Analysis complete" {
		t.Fatalf("expected completion label, got %q", snap.CurrentStep)
	}
	for _, s := range snap.Steps {
		if s.Status != models.StepCompleted {
			t.Fatalf("expected all steps completed, got %+v", s)
		}
	}
}

func TestLabelFallbacks(t *testing.T) {
	if got := currentStepLabel("initial_web_search", "ignored"); got != "Searching for credible sources..." {
		t.Fatalf("known type should win: %q", got)
	}
	if got := currentStepLabel("unknown_type", "desc"); got != "desc" {
		t.Fatalf("description should win over unknown type: %q", got)
	}
	if got := currentStepLabel("mystery_step", ""); got != "Processing mystery_step..." {
		t.Fatalf("expected synthesized label, got %q", got)
	}
	if got := stepDescription("", "", 7); got != "Step 7" {
		t.Fatalf("expected numbered fallback, got %q", got)
	}
}
