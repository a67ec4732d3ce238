package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCurrentStepDecodesBothShapes(t *testing.T) {
	var c CurrentStep
	if err := json.Unmarshal([]byte(`"Searching for sources"`), &c); err != nil {
		t.Fatalf("string shape: %v", err)
	}
	if c.Description != "Searching for sources" {
		t.Fatalf("wrong description %q", c.Description)
	}

	c = CurrentStep{}
	if err := json.Unmarshal([]byte(`{"step_number": 2, "description": "Evaluating"}`), &c); err != nil {
		t.Fatalf("object shape: %v", err)
	}
	if c.StepNumber != 2 || c.Description != "Evaluating" {
		t.Fatalf("wrong object decode %+v", c)
	}
}

func TestStepDecodesCamelCaseAliases(t *testing.T) {
	var s Step
	err := json.Unmarshal([]byte(`{"stepNumber": 3, "stepType": "synthesis", "status": "in_progress"}`), &s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.StepNumber != 3 || s.StepType != "synthesis" {
		t.Fatalf("aliases not applied %+v", s)
	}
	// snake_case wins when both are present
	s = Step{}
	_ = json.Unmarshal([]byte(`{"step_number": 1, "stepNumber": 9}`), &s)
	if s.StepNumber != 1 {
		t.Fatalf("snake_case should win, got %d", s.StepNumber)
	}
}

func TestStepPreservesUnknownFields(t *testing.T) {
	in := []byte(`{"step_number": 1, "status": "completed", "confidence": 0.93, "queries": ["a", "b"]}`)
	var s Step
	if err := json.Unmarshal(in, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(s.Extra) != 2 {
		t.Fatalf("unknown fields lost: %v", s.Extra)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var round map[string]json.RawMessage
	_ = json.Unmarshal(out, &round)
	if string(round["confidence"]) != "0.93" {
		t.Fatalf("extra field dropped on re-encode: %s", out)
	}
}

func TestStepMerge(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Step{StepNumber: 2, StepType: "deeper_exploration", Status: StepInProgress, Timestamp: ts}
	s.Merge(Step{StepNumber: 2, Status: StepCompleted, Summary: "found 4 sources"})

	if s.Status != StepCompleted || s.Summary != "found 4 sources" {
		t.Fatalf("incoming fields not applied %+v", s)
	}
	if s.StepType != "deeper_exploration" || !s.Timestamp.Equal(ts) {
		t.Fatalf("existing fields clobbered %+v", s)
	}
}

func TestPushMessageEnvelopeDecoding(t *testing.T) {
	frame := []byte(`{
		"type": "step_update",
		"step_number": 4,
		"progress_percentage": 80,
		"data": {"nested": true}
	}`)
	var msg PushMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != PushStepUpdate {
		t.Fatalf("wrong type %q", msg.Type)
	}
	if msg.ProgressPercentage == nil || *msg.ProgressPercentage != 80 {
		t.Fatalf("wrong percentage %v", msg.ProgressPercentage)
	}
	if len(msg.Data) == 0 {
		t.Fatalf("data payload lost")
	}
}

func TestTerminalHelpers(t *testing.T) {
	for _, s := range []SessionStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if StatusInProgress.Terminal() {
		t.Fatalf("in_progress is not terminal")
	}
}
