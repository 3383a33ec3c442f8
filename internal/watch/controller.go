// Package watch submits a scan to the backend and polls its results,
// feeding the progress bar, the chart and the step list until the
// expected number of steps has completed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/model"
)

// State of a controller or poll task.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrTimeout is the task error when MaxWait elapses before completion.
var ErrTimeout = errors.New("watch: gave up waiting for results")

const (
	DefaultInterval   = time.Second
	DefaultTotalSteps = 7
)

// Renderer receives every poll update. render.Dashboard implements it.
type Renderer interface {
	UpdateProgress(percent float64) error
	UpdateChart(summary model.Summary) error
	UpdateSteps(tests []model.TestStepResult) error
	Flush() error
}

// Config tunes the poll loop.
type Config struct {
	// Interval between polls. Zero means DefaultInterval.
	Interval time.Duration
	// TotalSteps is the step count at which polling stops. Zero means
	// DefaultTotalSteps.
	TotalSteps int
	// MaxWait fails the task once exceeded. Zero polls until completion.
	MaxWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.TotalSteps <= 0 {
		c.TotalSteps = DefaultTotalSteps
	}
	return c
}

// Controller runs one scan-and-poll cycle at a time.
type Controller struct {
	cfg       Config
	transport Transport
	renderer  Renderer
	clock     Clock
	logger    logging.Logger

	mu    sync.Mutex
	state State
	task  *Task
}

// NewController wires a controller. A nil clock uses the wall clock.
func NewController(cfg Config, transport Transport, renderer Renderer, clock Clock, logger logging.Logger) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Controller{
		cfg:       cfg.withDefaults(),
		transport: transport,
		renderer:  renderer,
		clock:     clock,
		logger:    logger.With(logging.Field{Key: "component", Value: "watch"}),
	}
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// StartScan cancels any running task, resets progress, submits url and
// starts polling. A submit failure is returned as-is and leaves the
// controller Failed.
func (c *Controller) StartScan(ctx context.Context, url string) (*Task, error) {
	// A running task must not outlive a failed restart and flip the state.
	c.mu.Lock()
	prev := c.task
	c.task = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	if err := c.renderer.UpdateProgress(0); err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("reset progress: %w", err)
	}

	c.logger.Info("submitting scan", logging.Field{Key: "url", Value: url})
	if err := c.transport.SubmitScan(ctx, model.ScanRequest{URL: url}); err != nil {
		c.logger.Error("scan submission failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		c.setState(StateFailed)
		return nil, err
	}

	return c.Poll(ctx), nil
}

// Poll starts the poll task, cancelling a task that is still running.
func (c *Controller) Poll(ctx context.Context) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StatePolling,
	}

	c.mu.Lock()
	prev := c.task
	c.task = t
	c.state = StatePolling
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	ticker := c.clock.NewTicker(c.cfg.Interval)
	var deadline time.Time
	if c.cfg.MaxWait > 0 {
		deadline = c.clock.Now().Add(c.cfg.MaxWait)
	}

	c.logger.Debug("polling started",
		logging.Field{Key: "interval", Value: c.cfg.Interval.String()},
		logging.Field{Key: "total_steps", Value: c.cfg.TotalSteps})

	go c.run(taskCtx, t, ticker, deadline)
	return t
}

func (c *Controller) run(ctx context.Context, t *Task, ticker Ticker, deadline time.Time) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finish(t, StateFailed, ctx.Err())
			return
		case now := <-ticker.C():
			complete := c.tick(ctx)
			t.addTick()
			if complete {
				c.finish(t, StateComplete, nil)
				return
			}
			if !deadline.IsZero() && !now.Before(deadline) {
				c.finish(t, StateFailed, ErrTimeout)
				return
			}
		}
	}
}

// tick runs one fetch-and-render cycle and reports whether the scan is
// complete. Errors are logged and end the tick early.
func (c *Controller) tick(ctx context.Context) bool {
	snap, err := c.transport.FetchResults(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("poll tick failed", logging.Field{Key: "error", Value: err.Error()})
		}
		return false
	}
	if snap == nil || snap.Details == nil {
		c.logger.Debug("results have no details yet")
		return false
	}

	completed := len(snap.Details.Tests)
	total := c.cfg.TotalSteps
	steps := []struct {
		name string
		fn   func() error
	}{
		{"progress", func() error { return c.renderer.UpdateProgress(float64(completed) / float64(total) * 100) }},
		{"chart", func() error { return c.renderer.UpdateChart(snap.Summary) }},
		{"steps", func() error { return c.renderer.UpdateSteps(snap.Details.Tests) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			c.logger.Error("render failed",
				logging.Field{Key: "surface", Value: s.name},
				logging.Field{Key: "error", Value: err.Error()})
			return false
		}
	}

	done := completed >= total
	if done {
		if err := c.renderer.UpdateProgress(100); err != nil {
			c.logger.Error("render failed",
				logging.Field{Key: "surface", Value: "progress"},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if err := c.renderer.Flush(); err != nil {
		c.logger.Warn("flushing dashboard", logging.Field{Key: "error", Value: err.Error()})
	}

	c.logger.Debug("poll tick",
		logging.Field{Key: "completed", Value: completed},
		logging.Field{Key: "passed", Value: snap.Summary.Passed},
		logging.Field{Key: "failed", Value: snap.Summary.Failed})
	return done
}

func (c *Controller) finish(t *Task, state State, err error) {
	t.setResult(state, err)

	c.mu.Lock()
	current := c.task == t
	if current {
		c.state = state
	}
	c.mu.Unlock()

	if state == StateComplete {
		c.logger.Info("scan complete", logging.Field{Key: "ticks", Value: t.Ticks()})
	} else if current {
		c.logger.Warn("polling stopped", logging.Field{Key: "error", Value: fmt.Sprint(err)})
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
