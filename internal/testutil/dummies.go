// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/watch"
	"github.com/raysh454/webaudit/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorCount is safe to call while the logger is in use.
func (l *DummyLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set Bodies[url] to serve a fixed body and FailURLs[url] = true to force
// an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	Bodies        map[string]string
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	body := "ok:" + req.URL
	if b, ok := d.Bodies[req.URL]; ok {
		body = b
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte(body),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestsSnapshot returns a copy of the recorded requests.
func (d *DummyWebClient) RequestsSnapshot() []*webclient.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*webclient.Request(nil), d.Requests...)
}

// ─── Clock ─────────────────────────────────────────────────────────────

// FakeClock implements watch.Clock. Ticks are fired by hand with Tick.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*FakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) NewTicker(d time.Duration) watch.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTicker{period: d, c: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick advances the clock by one period of the newest ticker and delivers
// the tick to it. It blocks until the tick is received or the ticker stops.
func (c *FakeClock) Tick() {
	c.mu.Lock()
	if len(c.tickers) == 0 {
		c.mu.Unlock()
		return
	}
	t := c.tickers[len(c.tickers)-1]
	c.now = c.now.Add(t.period)
	now := c.now
	c.mu.Unlock()

	select {
	case t.c <- now:
	case <-t.stopped:
	}
}

// FakeTicker is the watch.Ticker handed out by FakeClock.
type FakeTicker struct {
	period  time.Duration
	c       chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func (t *FakeTicker) C() <-chan time.Time { return t.c }
func (t *FakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

// ─── Transport ─────────────────────────────────────────────────────────

// FakeResult is one scripted FetchResults answer.
type FakeResult struct {
	Snapshot *model.ResultSnapshot
	Err      error
}

// FakeTransport implements watch.Transport. FetchResults pops Results in
// order and keeps returning the last one once the queue is exhausted.
type FakeTransport struct {
	SubmitErr error
	Results   []FakeResult

	mu        sync.Mutex
	Submitted []model.ScanRequest
	fetches   int
}

func (f *FakeTransport) SubmitScan(_ context.Context, req model.ScanRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submitted = append(f.Submitted, req)
	return f.SubmitErr
}

func (f *FakeTransport) FetchResults(ctx context.Context) (*model.ResultSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.Results) == 0 {
		return &model.ResultSnapshot{}, nil
	}
	r := f.Results[0]
	if len(f.Results) > 1 {
		f.Results = f.Results[1:]
	}
	return r.Snapshot, r.Err
}

func (f *FakeTransport) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// ─── Canvas ────────────────────────────────────────────────────────────

// RecordingCanvas implements render.Canvas and keeps every painted frame.
type RecordingCanvas struct {
	Err    error
	mu     sync.Mutex
	frames [][]byte
}

func (c *RecordingCanvas) Paint(png []byte) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), png...))
	return nil
}

func (c *RecordingCanvas) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
