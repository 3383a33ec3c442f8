package model

import "strings"

// Step statuses reported by the backend. Clients compare case-insensitively.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// ScanRequest represents a request to submit a URL for testing.
type ScanRequest struct {
	// URL is the target to test. It is forwarded as-is.
	URL string `json:"url"`
}

// Summary holds cumulative pass/fail counts.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// TestStepResult is one completed test step.
type TestStepResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Passed reports whether the step status lowercases to "passed".
func (t TestStepResult) Passed() bool {
	return strings.ToLower(t.Status) == StatusPassed
}

// Details carries the per-step results of a scan in execution order.
// Everything except Tests is backend metadata that clients may ignore.
type Details struct {
	Tests  []TestStepResult `json:"tests"`
	URL    string           `json:"url,omitempty"`
	ScanID string           `json:"scan_id,omitempty"`
	Status string           `json:"status,omitempty"`
	Total  int              `json:"total,omitempty"`
}

// ResultSnapshot is the payload of GET /results at a point in time.
// Details is nil when the payload had no details field.
type ResultSnapshot struct {
	Summary Summary  `json:"summary"`
	Details *Details `json:"details,omitempty"`
}

// Completed returns the number of completed steps, or 0 without details.
func (r *ResultSnapshot) Completed() int {
	if r == nil || r.Details == nil {
		return 0
	}
	return len(r.Details.Tests)
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (r *ResultSnapshot) Clone() *ResultSnapshot {
	if r == nil {
		return nil
	}
	out := &ResultSnapshot{Summary: r.Summary}
	if r.Details != nil {
		d := *r.Details
		d.Tests = make([]TestStepResult, len(r.Details.Tests))
		copy(d.Tests, r.Details.Tests)
		out.Details = &d
	}
	return out
}

// Append adds a step and updates the summary counts.
func (r *ResultSnapshot) Append(step TestStepResult) {
	if r.Details == nil {
		r.Details = &Details{}
	}
	r.Details.Tests = append(r.Details.Tests, step)
	if step.Passed() {
		r.Summary.Passed++
	} else {
		r.Summary.Failed++
	}
}
