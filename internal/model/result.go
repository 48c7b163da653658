package model

import "time"

// StepResult is the outcome record for one executed PlannedStep.
type StepResult struct {
	StepID               string          `json:"step_id"`
	Success              bool            `json:"success"`
	Duration             time.Duration   `json:"duration"`
	Strategy             LocatorStrategy `json:"strategy,omitempty"`
	SelectorUsed         string          `json:"selector_used,omitempty"`
	ErrorKind            string          `json:"error_kind,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	AttemptedAlternatives []string       `json:"attempted_alternatives,omitempty"`
}

// RunStatus is the terminal classification of an AdaptiveResult.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// AdaptiveResult summarizes an Adaptive Engine run (spec.md §4.8 step 5).
type AdaptiveResult struct {
	Status      RunStatus
	Framework   string
	Duration    time.Duration
	StepResults []StepResult
	Extracted   map[string]string
	FirstError  error
}

// Failed returns the number of step results that did not succeed. Status
// is set by the engine, not derived from this count: a failed optional
// step leaves Status at RunSucceeded.
func (r *AdaptiveResult) Failed() int {
	n := 0
	for _, sr := range r.StepResults {
		if !sr.Success {
			n++
		}
	}
	return n
}
