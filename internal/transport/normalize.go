package transport

import (
	"encoding/json"
	"log"

	"github.com/BroWo1/fact-check/internal/progress"
	"github.com/BroWo1/fact-check/models"
)

// ProgressFromStatus reduces a polled status payload to the normalized
// update form. Terminal detection is separate; this only carries progress.
func ProgressFromStatus(p models.StatusPayload) progress.Update {
	u := progress.Update{
		Kind:           progress.KindProgress,
		Percentage:     p.ProgressPercentage,
		Description:    p.StepDescription,
		StatusToken:    string(p.Status),
		CompletedSteps: p.CompletedSteps,
		TotalSteps:     p.TotalSteps,
		ExpectedSteps:  p.ExpectedSteps,
		FailedSteps:    p.FailedSteps,
		Steps:          p.Steps,
	}
	if p.CurrentStep != nil {
		u.CurrentStep = p.CurrentStep.Description
		if p.CurrentStep.StepNumber != 0 {
			n := p.CurrentStep.StepNumber
			u.StepNumber = &n
		}
	}
	return u
}

// TerminalFromStatus maps a terminal status payload onto its terminal
// update, or reports false while the session is still running.
func TerminalFromStatus(p models.StatusPayload) (progress.Update, bool) {
	switch p.Status {
	case models.StatusCompleted:
		return progress.Update{Kind: progress.KindCompleted, Success: true}, true
	case models.StatusFailed:
		return progress.Update{Kind: progress.KindFailed, Message: p.Error}, true
	case models.StatusCancelled:
		return progress.Update{Kind: progress.KindCancelled}, true
	default:
		return progress.Update{}, false
	}
}

// FromPush decodes one push-channel frame and dispatches on its kind.
// Malformed frames and unknown kinds are logged and dropped; the push
// channel is best-effort and never surfaces errors.
func FromPush(data []byte, logger *log.Logger) (progress.Update, bool) {
	var msg models.PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Printf("drop unparseable push message: %v", err)
		return progress.Update{}, false
	}
	msg.Raw = data
	return fromPushMessage(msg, logger, true)
}

func fromPushMessage(msg models.PushMessage, logger *log.Logger, allowNested bool) (progress.Update, bool) {
	switch msg.Type {
	case models.PushInitialStatus:
		var status models.StatusPayload
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &status); err != nil {
				logger.Printf("drop malformed initial_status: %v", err)
				return progress.Update{}, false
			}
		}
		return ProgressFromStatus(status), true

	case models.PushStepUpdate:
		var step models.Step
		if len(msg.Raw) > 0 {
			trimmed, err := stripEnvelope(msg.Raw)
			if err == nil {
				err = json.Unmarshal(trimmed, &step)
			}
			if err != nil {
				logger.Printf("drop malformed step_update: %v", err)
				return progress.Update{}, false
			}
		}
		return progress.Update{
			Kind:       progress.KindStep,
			Step:       &step,
			Percentage: msg.ProgressPercentage,
		}, true

	case models.PushProgressUpdate:
		if msg.Progress == nil {
			return progress.Update{}, false
		}
		return ProgressFromStatus(*msg.Progress), true

	case models.PushComplete:
		u := progress.Update{Kind: progress.KindCompleted}
		if msg.Result != nil {
			u.Success = msg.Result.Success
			u.Message = msg.Result.Error
		} else {
			u.Success = true
		}
		return u, true

	case models.PushError:
		return progress.Update{Kind: progress.KindFailed, Message: msg.Error}, true

	case models.PushCancelled:
		return progress.Update{Kind: progress.KindCancelled}, true

	case models.PushUpdate:
		if !allowNested || len(msg.Data) == 0 {
			return progress.Update{}, false
		}
		var nested models.PushMessage
		if err := json.Unmarshal(msg.Data, &nested); err != nil {
			logger.Printf("drop malformed update envelope: %v", err)
			return progress.Update{}, false
		}
		nested.Raw = msg.Data
		return fromPushMessage(nested, logger, false)

	default:
		logger.Printf("drop push message with unknown type %q", msg.Type)
		return progress.Update{}, false
	}
}

// pushEnvelopeKeys are the PushMessage fields. step_update frames carry the
// step alongside them on the same object, so the envelope keys are removed
// before the step decode to keep them out of Step.Extra.
var pushEnvelopeKeys = [...]string{
	"type", "data", "progress", "result", "error", "progress_percentage",
}

func stripEnvelope(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, k := range pushEnvelopeKeys {
		delete(fields, k)
	}
	return json.Marshal(fields)
}
