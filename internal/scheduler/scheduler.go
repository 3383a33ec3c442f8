// Package scheduler re-runs scans of fixed URLs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raysh454/webaudit/internal/logging"
)

// ScanFunc starts a scan of url.
type ScanFunc func(ctx context.Context, url string) error

// Entry describes one scheduled rescan.
type Entry struct {
	ID   cron.EntryID `json:"id"`
	Spec string       `json:"spec"`
	URL  string       `json:"url"`
	Next time.Time    `json:"next"`
}

// Scheduler manages scheduled rescans.
type Scheduler struct {
	c      *cron.Cron
	parser cron.Parser
	logger logging.Logger

	mu      sync.RWMutex
	running bool
	specs   map[cron.EntryID]Entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler accepting five-field specs and @descriptors.
func New(logger logging.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:      cron.New(cron.WithParser(parser)),
		parser: parser,
		logger: logger.With(logging.Field{Key: "component", Value: "scheduler"}),
		specs:  make(map[cron.EntryID]Entry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules fn for url on spec.
func (s *Scheduler) Add(spec, url string, fn ScanFunc) (cron.EntryID, error) {
	if url == "" {
		return 0, fmt.Errorf("rescan url is required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	id := s.c.Schedule(sched, cron.FuncJob(func() { s.run(url, fn) }))

	s.mu.Lock()
	s.specs[id] = Entry{ID: id, Spec: spec, URL: url}
	s.mu.Unlock()

	s.logger.Info("scheduled rescan",
		logging.Field{Key: "spec", Value: spec},
		logging.Field{Key: "url", Value: url})
	return id, nil
}

func (s *Scheduler) run(url string, fn ScanFunc) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("running scheduled rescan", logging.Field{Key: "url", Value: url})
	if err := fn(s.ctx, url); err != nil {
		s.logger.Error("scheduled rescan failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// Entries returns the scheduled rescans with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.specs))
	for _, ce := range s.c.Entries() {
		e, ok := s.specs[ce.ID]
		if !ok {
			continue
		}
		e.Next = ce.Next
		out = append(out, e)
	}
	return out
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
}

// Stop stops the scheduler and waits for running jobs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.c.Stop().Done()
}
