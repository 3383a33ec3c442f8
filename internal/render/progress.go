package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultBarCells is the drawn width of a progress bar in terminal cells.
const DefaultBarCells = 40

// ProgressBar is the progress indicator. Width and Label mirror what the
// indicator shows; percent values are not clamped, only the drawn bar is.
type ProgressBar struct {
	mu      sync.Mutex
	cells   int
	percent float64
	width   string
	label   string
}

// NewProgressBar returns a bar at 0%. cells <= 0 uses DefaultBarCells.
func NewProgressBar(cells int) *ProgressBar {
	if cells <= 0 {
		cells = DefaultBarCells
	}
	p := &ProgressBar{cells: cells}
	p.Update(0)
	return p
}

// Update sets the indicator width to percent+"%" and the label to the
// rounded percentage.
func (p *ProgressBar) Update(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percent = percent
	p.width = formatNumber(percent) + "%"
	p.label = formatNumber(roundHalfUp(percent)) + "%"
}

// Width returns the visual width, e.g. "42.857142857142854%".
func (p *ProgressBar) Width() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width
}

// Label returns the text label, e.g. "43%".
func (p *ProgressBar) Label() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.label
}

// Percent returns the last value passed to Update.
func (p *ProgressBar) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// Render draws the bar as one terminal line.
func (p *ProgressBar) Render(w io.Writer) error {
	p.mu.Lock()
	filled := 0
	if !math.IsNaN(p.percent) {
		filled = int(math.Round(p.percent / 100 * float64(p.cells)))
	}
	filled = max(0, min(filled, p.cells))
	line := fmt.Sprintf("[%s%s] %5s", strings.Repeat("#", filled), strings.Repeat(".", p.cells-filled), p.label)
	p.mu.Unlock()

	_, err := fmt.Fprintln(w, line)
	return err
}

// roundHalfUp rounds .5 toward +Inf, so -2.5 becomes -2 and 2.5 becomes 3.
// Only exact halves round up; v+0.5 would round 0.49999999999999994 to 1.
func roundHalfUp(v float64) float64 {
	r := math.Floor(v)
	if v-r >= 0.5 {
		r++
	}
	return r
}

// formatNumber prints the shortest representation that round-trips and
// never prints a negative zero.
func formatNumber(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
