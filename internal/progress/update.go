package progress

import "github.com/BroWo1/fact-check/models"

// Kind tags a normalized update.
type Kind string

const (
	// KindProgress carries any subset of the progress fields.
	KindProgress Kind = "progress"
	// KindStep describes a single step update.
	KindStep Kind = "step"
	// KindCompleted, KindFailed and KindCancelled are terminal signals; the
	// lifecycle controller consumes them, not the reconciler.
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
)

// Update is the single normalized form every transport payload is reduced
// to before reconciliation. Every field is optional: nil pointers and empty
// strings mean "absent", and absent fields never reset model state.
type Update struct {
	Kind Kind

	Percentage     *float64
	CurrentStep    string // explicit current-step label
	StepNumber     *int   // number attached to the current-step descriptor
	Description    string // bare step-description string
	StatusToken    string // status keyword usable as a label fallback
	CompletedSteps *int
	TotalSteps     *int
	ExpectedSteps  *int
	FailedSteps    *int
	Steps          []models.Step // full or partial steps collection

	Step *models.Step // single-step update (KindStep)

	// Terminal details.
	Message string // failure message, empty for default
	Success bool   // completion succeeded (KindCompleted)
	Fault   string // error-kind token for taxonomized failures (KindFailed)
}

// Terminal reports whether the update ends the session.
func (u Update) Terminal() bool {
	return u.Kind == KindCompleted || u.Kind == KindFailed || u.Kind == KindCancelled
}
