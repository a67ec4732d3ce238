package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Mode selects the analysis pipeline on the backend.
type Mode string

const (
	ModeFactCheck Mode = "fact_check"
	ModeResearch  Mode = "research"
)

// Label returns the human-readable name of the mode.
func (m Mode) Label() string {
	if m == ModeResearch {
		return "Research"
	}
	return "Fact-Check"
}

// SessionStatus is the backend-reported status of an analysis session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further progress updates are expected.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the lifecycle state of a single processing step.
type StepStatus string

const (
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// CreateSessionResponse is returned by POST /fact-check/.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CurrentStep describes the step the backend is executing right now. Status
// payloads carry it either as a plain string or as an object, so it decodes
// both shapes.
type CurrentStep struct {
	StepNumber  int    `json:"step_number,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *CurrentStep) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		c.Description = s
		return nil
	}
	type alias CurrentStep
	var a alias
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return err
	}
	*c = CurrentStep(a)
	return nil
}

// Step is one discrete phase of server-side processing. Fields the backend
// sends beyond the known set are preserved in Extra so partial updates can
// be merged without data loss.
type Step struct {
	StepNumber  int                        `json:"step_number"`
	StepType    string                     `json:"step_type,omitempty"`
	Description string                     `json:"description,omitempty"`
	Status      StepStatus                 `json:"status,omitempty"`
	Timestamp   time.Time                  `json:"timestamp,omitempty"`
	Summary     string                     `json:"summary,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

var knownStepKeys = map[string]bool{
	"step_number": true, "step_type": true, "description": true,
	"status": true, "timestamp": true, "summary": true,
	// aliased field names seen on push messages
	"stepNumber": true, "stepType": true,
}

func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// tolerate camelCase aliases used by some push messages
	if a.StepNumber == 0 {
		if v, ok := raw["stepNumber"]; ok {
			_ = json.Unmarshal(v, &a.StepNumber)
		}
	}
	if a.StepType == "" {
		if v, ok := raw["stepType"]; ok {
			_ = json.Unmarshal(v, &a.StepType)
		}
	}
	for k, v := range raw {
		if knownStepKeys[k] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]json.RawMessage)
		}
		a.Extra[k] = v
	}
	*s = Step(a)
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	type alias Step
	base, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Merge overlays incoming fields onto the step, incoming wins. Zero-valued
// incoming fields leave the existing value untouched.
func (s *Step) Merge(in Step) {
	if in.StepNumber != 0 {
		s.StepNumber = in.StepNumber
	}
	if in.StepType != "" {
		s.StepType = in.StepType
	}
	if in.Description != "" {
		s.Description = in.Description
	}
	if in.Status != "" {
		s.Status = in.Status
	}
	if !in.Timestamp.IsZero() {
		s.Timestamp = in.Timestamp
	}
	if in.Summary != "" {
		s.Summary = in.Summary
	}
	for k, v := range in.Extra {
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[k] = v
	}
}

// StatusPayload is returned by GET /fact-check/{id}/status/. Every field is
// optional; pointers distinguish "absent" from zero.
type StatusPayload struct {
	Status             SessionStatus `json:"status,omitempty"`
	ProgressPercentage *float64      `json:"progress_percentage,omitempty"`
	CurrentStep        *CurrentStep  `json:"current_step,omitempty"`
	StepDescription    string        `json:"step_description,omitempty"`
	CompletedSteps     *int          `json:"completed_steps,omitempty"`
	TotalSteps         *int          `json:"total_steps,omitempty"`
	ExpectedSteps      *int          `json:"expected_steps,omitempty"`
	FailedSteps        *int          `json:"failed_steps,omitempty"`
	Steps              []Step        `json:"steps,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// Source is one citation backing a verdict.
type Source struct {
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url"`
	Domain      string  `json:"domain,omitempty"`
	Credibility float64 `json:"credibility,omitempty"`
}

// Results is the final payload from GET /fact-check/{id}/results/.
type Results struct {
	SessionID       string        `json:"session_id,omitempty"`
	Verdict         string        `json:"verdict,omitempty"`
	ConfidenceScore float64       `json:"confidence_score,omitempty"`
	OriginalClaim   string        `json:"original_claim,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	DetailedReport  string        `json:"detailed_report,omitempty"`
	Sources         []Source      `json:"sources,omitempty"`
	Mode            Mode          `json:"mode,omitempty"`
	Status          SessionStatus `json:"status,omitempty"`
	CreatedAt       time.Time     `json:"created_at,omitempty"`
}

// SessionSummary is one entry of GET /fact-check/list/.
type SessionSummary struct {
	SessionID string        `json:"session_id"`
	Claim     string        `json:"claim,omitempty"`
	Mode      Mode          `json:"mode,omitempty"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

// SessionList is the paginated response of GET /fact-check/list/.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
	Offset   int              `json:"offset"`
}

// Push message kinds delivered on the WebSocket channel.
const (
	PushInitialStatus  = "initial_status"
	PushStepUpdate     = "step_update"
	PushProgressUpdate = "progress_update"
	PushComplete       = "analysis_complete"
	PushError          = "analysis_error"
	PushCancelled      = "analysis_cancelled"
	PushUpdate         = "update"
)

// CompletionResult is the inline result attached to analysis_complete.
type CompletionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushMessage is the envelope for every message on the push channel. The
// generic "update" kind nests a second PushMessage in Data. step_update
// messages carry the step fields on the envelope itself, so the raw bytes
// are kept for a second decode into Step.
type PushMessage struct {
	Type     string            `json:"type"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Progress *StatusPayload    `json:"progress,omitempty"`
	Result   *CompletionResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`

	ProgressPercentage *float64 `json:"progress_percentage,omitempty"`

	Raw json.RawMessage `json:"-"`
}
