// Package progress folds partial, possibly out-of-order, possibly
// overlapping update payloads into one canonical progress model. Merges are
// commutative where the data allows it and idempotent for full snapshots,
// because the same update may arrive on both the polling and push channels.
package progress

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/BroWo1/fact-check/internal/store"
	"github.com/BroWo1/fact-check/models"
)

// DefaultExpectedSteps matches the backend's four-phase pipelines.
const DefaultExpectedSteps = 4

// Progress is the canonical reconciled state of one session.
type Progress struct {
	Percentage     float64
	CurrentStep    string
	StepNumber     int
	TotalSteps     int
	CompletedSteps int
	FailedSteps    int
	ExpectedSteps  int
	Steps          []models.Step
}

// Reconciler owns the progress model for one session. Apply is called from
// the lifecycle controller's run loop only, but Snapshot may be read from
// anywhere, so the model is guarded.
type Reconciler struct {
	mu        sync.Mutex
	logger    *log.Logger
	store     store.Store // optional; snapshots pushed for crash recovery
	sessionID string
	status    models.SessionStatus
	p         Progress
}

func NewReconciler(logger *log.Logger, st store.Store) *Reconciler {
	if logger == nil {
		logger = log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags)
	}
	return &Reconciler{
		logger: logger,
		store:  st,
		p:      Progress{ExpectedSteps: DefaultExpectedSteps},
	}
}

// Bind associates the reconciler with a session so snapshots persist.
func (r *Reconciler) Bind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
}

// Reset clears all reconciled state back to the initial model.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
	r.status = ""
	r.p = Progress{ExpectedSteps: DefaultExpectedSteps}
}

// Snapshot returns a copy of the current model safe for callers to keep.
func (r *Reconciler) Snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Reconciler) copyLocked() Progress {
	out := r.p
	out.Steps = append([]models.Step(nil), r.p.Steps...)
	return out
}

// Apply merges one normalized update into the model. Only fields present in
// the update overwrite model state; absent fields are left untouched.
// Malformed or missing fields are tolerated by omission, never an error.
func (r *Reconciler) Apply(ctx context.Context, u Update) {
	r.mu.Lock()
	switch u.Kind {
	case KindStep:
		r.applyStepLocked(u)
	default:
		r.applyProgressLocked(u)
	}
	snap := r.snapshotForStoreLocked()
	sessionID := r.sessionID
	r.mu.Unlock()

	if sessionID != "" && r.store != nil {
		if err := r.store.UpdateProgress(ctx, sessionID, snap); err != nil {
			r.logger.Printf("persist progress for %s: %v", sessionID, err)
		}
	}
}

func (r *Reconciler) applyProgressLocked(u Update) {
	if u.Percentage != nil {
		// explicit percentages are authoritative, even when lower
		r.p.Percentage = *u.Percentage
	}
	if u.CurrentStep != "" {
		r.p.CurrentStep = u.CurrentStep
	}
	if u.StepNumber != nil {
		r.p.StepNumber = *u.StepNumber
	}
	if u.Description != "" {
		r.p.CurrentStep = u.Description
	}
	if u.StatusToken != "" && r.p.CurrentStep == "" {
		if label, ok := StepLabel(u.StatusToken); ok {
			r.p.CurrentStep = label
		}
	}
	if u.CompletedSteps != nil {
		r.p.CompletedSteps = *u.CompletedSteps
	}
	if u.TotalSteps != nil {
		r.p.TotalSteps = *u.TotalSteps
	}
	if u.ExpectedSteps != nil {
		r.p.ExpectedSteps = *u.ExpectedSteps
	}
	if u.FailedSteps != nil {
		r.p.FailedSteps = *u.FailedSteps
	}
	if len(u.Steps) > 0 {
		for _, in := range u.Steps {
			r.mergeStepLocked(in)
		}
		r.sortStepsLocked()
	}
	// derived percentage is only a fallback: never below an authoritative
	// value, never used when this update carried its own percentage
	if u.Percentage == nil && r.p.TotalSteps > 0 {
		derived := float64(r.p.CompletedSteps) / float64(r.p.TotalSteps) * 100
		if derived > r.p.Percentage {
			r.p.Percentage = derived
		}
	}
}

func (r *Reconciler) applyStepLocked(u Update) {
	if u.Step == nil {
		return
	}
	in := *u.Step
	if in.StepNumber == 0 {
		// a step update without a number cannot be placed in the array but
		// may still move the current-step label
		if label := currentStepLabel(in.StepType, in.Description); label != "" {
			r.p.CurrentStep = label
		}
		if u.Percentage != nil {
			r.p.Percentage = *u.Percentage
		}
		return
	}
	if label := currentStepLabel(in.StepType, in.Description); label != "" {
		r.p.CurrentStep = label
	}
	if u.Percentage != nil {
		r.p.Percentage = *u.Percentage
	}
	in.Description = stepDescription(in.Description, in.StepType, in.StepNumber)
	if in.Status == "" {
		in.Status = models.StepInProgress
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	r.mergeStepLocked(in)
	r.sortStepsLocked()
}

// mergeStepLocked matches by step number: a match merges fields in place
// (incoming wins), no match appends.
func (r *Reconciler) mergeStepLocked(in models.Step) {
	if in.StepNumber == 0 {
		return
	}
	for i := range r.p.Steps {
		if r.p.Steps[i].StepNumber == in.StepNumber {
			r.p.Steps[i].Merge(in)
			return
		}
	}
	r.p.Steps = append(r.p.Steps, in)
}

func (r *Reconciler) sortStepsLocked() {
	sort.SliceStable(r.p.Steps, func(i, j int) bool {
		return r.p.Steps[i].StepNumber < r.p.Steps[j].StepNumber
	})
}

// MarkCompleted forces the terminal display state: full percentage, every
// step completed.
func (r *Reconciler) MarkCompleted(ctx context.Context, label string) {
	r.mu.Lock()
	r.p.Percentage = 100
	if label != "" {
		r.p.CurrentStep = label
	}
	for i := range r.p.Steps {
		r.p.Steps[i].Status = models.StepCompleted
	}
	r.p.CompletedSteps = len(r.p.Steps)
	r.status = models.StatusCompleted
	r.mu.Unlock()
}

// SetStatus records the derived session status embedded in persisted
// snapshots.
func (r *Reconciler) SetStatus(status models.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *Reconciler) snapshotForStoreLocked() store.ProgressSnapshot {
	status := r.status
	if status == "" {
		status = models.StatusInProgress
	}
	return store.ProgressSnapshot{
		Percentage:  r.p.Percentage,
		CurrentStep: r.p.CurrentStep,
		Steps:       append([]models.Step(nil), r.p.Steps...),
		Status:      status,
	}
}
