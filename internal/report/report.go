// Package report turns scan results into a summary paragraph, a diff
// against the previous scan, and a JSON report file.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raysh454/webaudit/internal/blobstore"
	"github.com/raysh454/webaudit/internal/model"
)

// DefaultPath is where the latest report is written.
const DefaultPath = "reports/scan_results.json"

// topFailures is how many failed steps the summary names.
const topFailures = 3

// Stats are the aggregate numbers behind a summary.
type Stats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// Compute counts the steps of snap. Counts come from the steps, not from
// the snapshot summary.
func Compute(snap *model.ResultSnapshot) Stats {
	var st Stats
	if snap == nil || snap.Details == nil {
		return st
	}
	st.Total = len(snap.Details.Tests)
	for _, t := range snap.Details.Tests {
		if t.Passed() {
			st.Passed++
		}
	}
	st.Failed = st.Total - st.Passed
	if st.Total > 0 {
		st.PassRate = math.Round(float64(st.Passed)/float64(st.Total)*1000) / 10
	}
	return st
}

// Summarize returns a plain-language paragraph about snap.
func Summarize(snap *model.ResultSnapshot) string {
	st := Compute(snap)
	if st.Total == 0 {
		return "No test results are available yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The website was tested for %d key functionalities. ", st.Total)
	fmt.Fprintf(&b, "Out of these, %d tests passed while %d tests failed, a pass rate of %s%%.",
		st.Passed, st.Failed, strconv.FormatFloat(st.PassRate, 'f', -1, 64))

	var failed []string
	for _, t := range snap.Details.Tests {
		if t.Passed() {
			continue
		}
		if t.Error != "" {
			failed = append(failed, fmt.Sprintf("%s (%s)", t.Name, t.Error))
		} else {
			failed = append(failed, t.Name)
		}
		if len(failed) == topFailures {
			break
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, " The main issues were with %s, which need attention to improve the site's performance.",
			strings.Join(failed, ", "))
	}
	return b.String()
}

// Document is the on-disk report.
type Document struct {
	Summary string                `json:"summary"`
	Stats   Stats                 `json:"stats"`
	Results *model.ResultSnapshot `json:"results"`
}

// Build assembles the report document for snap.
func Build(snap *model.ResultSnapshot) Document {
	return Document{Summary: Summarize(snap), Stats: Compute(snap), Results: snap}
}

// Marshal renders the report document as indented JSON.
func Marshal(snap *model.ResultSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(Build(snap), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON atomically writes the report for snap to path.
func WriteJSON(path string, snap *model.ResultSnapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}
	if err := blobstore.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
