package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/raysh454/webaudit/internal/model"
)

// Row classes.
const (
	ClassPassed = "test-step passed"
	ClassFailed = "test-step failed"
)

// StepRow is one rendered result row.
type StepRow struct {
	Class string
	Text  string
}

// Passed reports whether the row is classified as passed.
func (r StepRow) Passed() bool { return r.Class == ClassPassed }

// StepRowFor builds the row for a single step.
func StepRowFor(t model.TestStepResult) StepRow {
	row := StepRow{Class: ClassFailed}
	if t.Passed() {
		row.Class = ClassPassed
	}
	if t.Error != "" {
		row.Text = t.Name + " → " + t.Error
	} else {
		row.Text = t.Name + " → " + strings.ToUpper(t.Status)
	}
	return row
}

// StepList holds the rendered rows. Every Update rebuilds it from scratch.
type StepList struct {
	mu   sync.Mutex
	rows []StepRow
}

func NewStepList() *StepList {
	return &StepList{}
}

// Update clears the list and renders one row per step in input order.
func (l *StepList) Update(tests []model.TestStepResult) {
	rows := make([]StepRow, 0, len(tests))
	for _, t := range tests {
		rows = append(rows, StepRowFor(t))
	}

	l.mu.Lock()
	l.rows = rows
	l.mu.Unlock()
}

// Rows returns a copy of the current rows.
func (l *StepList) Rows() []StepRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StepRow(nil), l.rows...)
}

// Render writes one line per row, marking passed rows with a check.
func (l *StepList) Render(w io.Writer) error {
	for _, r := range l.Rows() {
		mark := "✗"
		if r.Passed() {
			mark = "✓"
		}
		if _, err := fmt.Fprintf(w, "  %s %s\n", mark, r.Text); err != nil {
			return err
		}
	}
	return nil
}
