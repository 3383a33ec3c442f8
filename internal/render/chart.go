package render

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/raysh454/webaudit/internal/model"
)

// ErrNoCanvas is returned when a chart is initialized without a canvas.
var ErrNoCanvas = errors.New("render: chart canvas is missing")

// Chart labels and colors are fixed.
var (
	ChartLabels = [2]string{"Passed", "Failed"}

	passedColor = drawing.ColorFromHex("008000")
	failedColor = drawing.ColorFromHex("ff0000")
)

// Canvas receives every rendered chart frame as a PNG.
type Canvas interface {
	Paint(png []byte) error
}

// Chart is an owned handle to a single doughnut chart bound to one canvas.
// It is created once by NewChart and updated in place afterwards.
type Chart struct {
	mu      sync.Mutex
	canvas  Canvas
	data    [2]int
	updates int
	frames  int

	Width  int
	Height int
}

// NewChart binds a chart to canvas and draws the initial counts.
func NewChart(canvas Canvas, summary model.Summary) (*Chart, error) {
	if canvas == nil {
		return nil, ErrNoCanvas
	}
	c := &Chart{canvas: canvas, Width: 320, Height: 320}
	if err := c.Update(summary); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the data array with [passed, failed] and redraws.
func (c *Chart) Update(summary model.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = [2]int{summary.Passed, summary.Failed}
	c.updates++

	// A doughnut has nothing to draw until one slice is non-zero.
	if c.data[0] <= 0 && c.data[1] <= 0 {
		return nil
	}

	img, err := c.draw()
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if err := c.canvas.Paint(img); err != nil {
		return fmt.Errorf("paint chart: %w", err)
	}
	c.frames++
	return nil
}

func (c *Chart) draw() ([]byte, error) {
	dc := chart.DonutChart{
		Width:  c.Width,
		Height: c.Height,
		Values: []chart.Value{
			{
				Label: ChartLabels[0],
				Value: float64(max(c.data[0], 0)),
				Style: chart.Style{FillColor: passedColor, StrokeColor: drawing.ColorWhite},
			},
			{
				Label: ChartLabels[1],
				Value: float64(max(c.data[1], 0)),
				Style: chart.Style{FillColor: failedColor, StrokeColor: drawing.ColorWhite},
			},
		},
	}

	var buf bytes.Buffer
	if err := dc.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Data returns the current [passed, failed] array.
func (c *Chart) Data() [2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Updates returns how many times the data array was replaced.
func (c *Chart) Updates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

// Frames returns how many frames were painted onto the canvas.
func (c *Chart) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Legend returns a one-line text legend for terminals.
func (c *Chart) Legend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("%s: %d  %s: %d", ChartLabels[0], c.data[0], ChartLabels[1], c.data[1])
}
