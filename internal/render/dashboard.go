package render

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/raysh454/webaudit/internal/model"
)

// ErrMissingSurface is returned when a dashboard surface is used but absent.
var ErrMissingSurface = errors.New("render: dashboard surface is missing")

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// Dashboard binds the three result surfaces together. Any surface may be
// nil; using a nil surface is an error at first use.
type Dashboard struct {
	Progress *ProgressBar
	Canvas   Canvas
	Steps    *StepList

	// Out receives a text frame on every Flush when non-nil.
	Out io.Writer
	// Clear redraws frames in place on terminals.
	Clear bool

	mu    sync.Mutex
	chart *Chart
}

// NewDashboard returns a dashboard with every surface present.
func NewDashboard(canvas Canvas, out io.Writer) *Dashboard {
	return &Dashboard{
		Progress: NewProgressBar(DefaultBarCells),
		Canvas:   canvas,
		Steps:    NewStepList(),
		Out:      out,
	}
}

func (d *Dashboard) UpdateProgress(percent float64) error {
	if d.Progress == nil {
		return fmt.Errorf("progress bar: %w", ErrMissingSurface)
	}
	d.Progress.Update(percent)
	return nil
}

// UpdateChart creates the chart on first use and updates it afterwards.
func (d *Dashboard) UpdateChart(summary model.Summary) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.chart != nil {
		return d.chart.Update(summary)
	}
	c, err := NewChart(d.Canvas, summary)
	if err != nil {
		return err
	}
	d.chart = c
	return nil
}

func (d *Dashboard) UpdateSteps(tests []model.TestStepResult) error {
	if d.Steps == nil {
		return fmt.Errorf("step list: %w", ErrMissingSurface)
	}
	d.Steps.Update(tests)
	return nil
}

// Chart returns the chart handle, or nil before the first chart update.
func (d *Dashboard) Chart() *Chart {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chart
}

// Flush writes one text frame of every present surface to Out.
func (d *Dashboard) Flush() error {
	if d.Out == nil {
		return nil
	}
	if d.Clear {
		if _, err := io.WriteString(d.Out, clearScreen); err != nil {
			return err
		}
	}
	if d.Progress != nil {
		if err := d.Progress.Render(d.Out); err != nil {
			return err
		}
	}
	if c := d.Chart(); c != nil {
		if _, err := fmt.Fprintln(d.Out, c.Legend()); err != nil {
			return err
		}
	}
	if d.Steps != nil {
		return d.Steps.Render(d.Out)
	}
	return nil
}
