package progress

import "fmt"

// stepLabels maps backend step-type tokens to the labels shown while that
// phase runs. Unknown tokens fall back to the raw description or a
// synthesized label.
var stepLabels = map[string]string{
	// fact-check pipeline
	"submitting":                    "Submitting your request...",
	"initial_web_search":            "Searching for credible sources...",
	"deeper_exploration":            "Conducting detailed research...",
	"source_credibility_evaluation": "Evaluating source credibility...",
	"final_conclusion":              "Generating final verdict...",

	// research pipeline
	"topic_analysis":     "Analyzing your topic...",
	"research_gathering": "Gathering research data...",
	"source_analysis":    "Analyzing sources...",
	"synthesis":          "Synthesizing information...",
	"report_generation":  "Generating research report...",
}

// StepLabel resolves a step-type token to its display label.
func StepLabel(stepType string) (string, bool) {
	label, ok := stepLabels[stepType]
	return label, ok
}

// currentStepLabel picks the label for the step a session is executing:
// known step type first, then the raw description, then a synthesized one.
func currentStepLabel(stepType, description string) string {
	if label, ok := stepLabels[stepType]; ok {
		return label
	}
	if description != "" {
		return description
	}
	if stepType != "" {
		return fmt.Sprintf("Processing %s...", stepType)
	}
	return ""
}

// stepDescription picks the stored description for a step record: explicit
// description first, then the step-type label, then "Step {n}".
func stepDescription(description, stepType string, stepNumber int) string {
	if description != "" {
		return description
	}
	if label, ok := stepLabels[stepType]; ok {
		return label
	}
	return fmt.Sprintf("Step %d", stepNumber)
}
