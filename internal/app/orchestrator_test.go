package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/webaudit/internal/app"
	"github.com/raysh454/webaudit/internal/demoserver"
	"github.com/raysh454/webaudit/internal/report"
	"github.com/raysh454/webaudit/internal/store"
	"github.com/raysh454/webaudit/internal/testutil"
	"github.com/raysh454/webaudit/internal/webclient"
)

type archived struct {
	key  string
	data []byte
}

type recordingArchiver struct {
	puts chan archived
}

func (r *recordingArchiver) Put(_ context.Context, key string, data []byte, _ string) error {
	r.puts <- archived{key: key, data: data}
	return nil
}

// gatedClient blocks requests to Slow until the request is canceled.
type gatedClient struct {
	testutil.DummyWebClient
	Slow string
}

func (g *gatedClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	if url == g.Slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.DummyWebClient.Get(ctx, url)
}

type harness struct {
	orch     *app.Orchestrator
	store    *store.Store
	archiver *recordingArchiver
	cfg      *app.Config
	demo     *httptest.Server
}

func newHarness(t *testing.T, client webclient.WebClient) *harness {
	t.Helper()
	dir := t.TempDir()

	demo := httptest.NewServer(demoserver.NewDemoServer(demoserver.DefaultConfig()).Handler())
	t.Cleanup(demo.Close)

	if client == nil {
		wc, err := webclient.NewNetHTTPClient(webclient.Config{}, &testutil.DummyLogger{}, demo.Client())
		if err != nil {
			t.Fatalf("NewNetHTTPClient: %v", err)
		}
		client = wc
	}

	cfg := app.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "webaudit.db")
	cfg.ReportPath = filepath.Join(dir, "reports", "scan_results.json")

	st, err := store.Open(cfg.DBPath, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	arch := &recordingArchiver{puts: make(chan archived, 8)}
	orch, err := app.NewOrchestrator(cfg, client, st, arch, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(orch.Close)

	return &harness{orch: orch, store: st, archiver: arch, cfg: cfg, demo: demo}
}

func waitJob(t *testing.T, o *app.Orchestrator, jobID string) *app.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j := o.GetJob(jobID); j != nil && j.Status.Finished() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

// drain reads job events until the channel closes.
func drain(t *testing.T, events <-chan app.JobEvent) []app.JobEvent {
	t.Helper()
	var out []app.JobEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("job events were not closed")
		}
	}
}

// ─── Results ───────────────────────────────────────────────────────────

func TestOrchestrator_ResultsBeforeFirstScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	res := h.orch.Results()
	if res.Details != nil || res.Summary.Passed != 0 || res.Summary.Failed != 0 {
		t.Errorf("expected empty results, got %+v", res)
	}
	if got := h.orch.Summary(); got != "No test results are available yet." {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestOrchestrator_StartScan_EmptyURL(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if _, err := h.orch.StartScan(context.Background(), "   "); !errors.Is(err, app.ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

func TestOrchestrator_StartScan_CanceledContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.orch.StartScan(ctx, h.demo.URL+"/good"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if jobs := h.orch.ListJobs(); len(jobs) != 0 {
		t.Errorf("canceled submission created %d jobs", len(jobs))
	}
}

func TestOrchestrator_StartScan_RunsPlanAndPersists(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	target := h.demo.URL + "/good"

	job, err := h.orch.StartScan(context.Background(), target)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if job.Total != 7 || job.Plan != "functional" || job.URL != target {
		t.Errorf("unexpected job %+v", job)
	}

	events := drain(t, job.Events)
	done := waitJob(t, h.orch, job.ID)
	if done.Status != app.JobDone || done.Completed != 7 || done.EndedAt.IsZero() {
		t.Fatalf("unexpected finished job %+v", done)
	}

	progress := 0
	for _, ev := range events {
		if ev.Type == app.JobEventProgress {
			progress++
		}
	}
	if progress != 7 {
		t.Errorf("expected 7 progress events, got %d", progress)
	}

	res := h.orch.Results()
	if res.Completed() != 7 || res.Summary.Passed != 7 || res.Summary.Failed != 0 {
		t.Errorf("unexpected results %+v", res.Summary)
	}
	if res.Details.ScanID != job.ID || res.Details.Status != string(app.JobDone) {
		t.Errorf("unexpected details %+v", res.Details)
	}

	sc, err := h.orch.GetScan(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if sc.Passed != 7 || len(sc.Steps) != 7 || sc.CanonicalURL == "" {
		t.Errorf("unexpected stored scan %+v", sc)
	}

	data, err := os.ReadFile(h.cfg.ReportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.Stats.Passed != 7 {
		t.Errorf("unexpected report stats %+v", doc.Stats)
	}

	select {
	case put := <-h.archiver.puts:
		if put.key != "scans/"+job.ID+".json" || len(put.data) == 0 {
			t.Errorf("unexpected archive put %q", put.key)
		}
	case <-time.After(time.Second):
		t.Error("report was not archived")
	}
}

func TestOrchestrator_FailingPageSummary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	job, err := h.orch.StartScan(context.Background(), h.demo.URL+"/bad")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitJob(t, h.orch, job.ID)

	res := h.orch.Results()
	if res.Summary.Failed == 0 {
		t.Fatalf("expected failures, got %+v", res.Summary)
	}
	if s := h.orch.Summary(); !strings.Contains(s, "The main issues were with") {
		t.Errorf("summary does not name issues: %q", s)
	}
}

// ─── Cancellation ──────────────────────────────────────────────────────

func TestOrchestrator_CancelJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &gatedClient{Slow: "http://slow.example"})

	job, err := h.orch.StartScan(context.Background(), "http://slow.example")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if !h.orch.CancelJob(job.ID) {
		t.Fatal("expected running job to be cancelable")
	}

	done := waitJob(t, h.orch, job.ID)
	if done.Status != app.JobCanceled {
		t.Errorf("expected canceled, got %s", done.Status)
	}
	drain(t, job.Events)
	if h.orch.CancelJob(job.ID) {
		t.Error("finished job should not be cancelable")
	}
}

func TestOrchestrator_NewScanReplacesRunningScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &gatedClient{Slow: "http://slow.example"})

	first, err := h.orch.StartScan(context.Background(), "http://slow.example")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	second, err := h.orch.StartScan(context.Background(), "http://fast.example")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	if j := waitJob(t, h.orch, first.ID); j.Status != app.JobCanceled {
		t.Errorf("first job: expected canceled, got %s", j.Status)
	}
	waitJob(t, h.orch, second.ID)

	res := h.orch.Results()
	if res.Details.ScanID != second.ID || res.Details.URL != "http://fast.example" {
		t.Errorf("results belong to the wrong scan: %+v", res.Details)
	}
	if res.Completed() != 7 {
		t.Errorf("expected 7 steps from second scan, got %d", res.Completed())
	}
	if len(h.orch.ListJobs()) != 2 {
		t.Errorf("expected both jobs listed")
	}
}

// ─── Subscriptions ─────────────────────────────────────────────────────

func TestOrchestrator_SubscribeReceivesLatest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	id, ch := h.orch.Subscribe()
	defer h.orch.Unsubscribe(id)

	first := <-ch
	if first.Details != nil {
		t.Fatalf("expected initial empty results, got %+v", first)
	}

	job, err := h.orch.StartScan(context.Background(), h.demo.URL+"/good")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitJob(t, h.orch, job.ID)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Details != nil && snap.Details.Status == string(app.JobDone) {
				if snap.Completed() != 7 {
					t.Errorf("expected 7 steps, got %d", snap.Completed())
				}
				return
			}
		case <-timeout:
			t.Fatal("never saw the finished results")
		}
	}
}

func TestOrchestrator_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	id, ch := h.orch.Subscribe()
	<-ch
	h.orch.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestOrchestrator_SubscribeJobReplaysToEverySubscriber(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	job, err := h.orch.StartScan(context.Background(), h.demo.URL+"/good")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	_, live, ok := h.orch.SubscribeJob(job.ID)
	if !ok {
		t.Fatal("expected a stream for the new job")
	}
	waitJob(t, h.orch, job.ID)

	// pending, running, one per step, result, final status
	want := job.Total + 4
	first := drain(t, live)
	if len(first) != want {
		t.Fatalf("live subscriber got %d events, want %d", len(first), want)
	}
	for i := 0; i < 2; i++ {
		_, late, ok := h.orch.SubscribeJob(job.ID)
		if !ok {
			t.Fatal("finished job lost its stream")
		}
		got := drain(t, late)
		if len(got) != want {
			t.Fatalf("late subscriber %d got %d events, want %d", i, len(got), want)
		}
		if last := got[len(got)-1]; last.Type != app.JobEventStatus || last.Status != app.JobDone {
			t.Errorf("late subscriber %d: last event %+v, want done status", i, last)
		}
	}
}

func TestOrchestrator_SubscribeJobUnknown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if _, _, ok := h.orch.SubscribeJob("missing"); ok {
		t.Error("expected no stream for an unknown job")
	}
	h.orch.UnsubscribeJob("missing", 0)
}

func TestOrchestrator_UnsubscribeJobClosesChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &gatedClient{Slow: "http://slow.example"})

	job, err := h.orch.StartScan(context.Background(), "http://slow.example")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	id, events, ok := h.orch.SubscribeJob(job.ID)
	if !ok {
		t.Fatal("expected a stream")
	}
	h.orch.UnsubscribeJob(job.ID, id)
	drain(t, events)
	h.orch.CancelJob(job.ID)
}

// ─── History ───────────────────────────────────────────────────────────

func TestOrchestrator_DiffScan(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{Bodies: map[string]string{}}
	h := newHarness(t, client)
	target := "http://site.example/"

	client.Bodies[target] = `<html><head><title>Shop</title></head><body><h1>Shop</h1></body></html>`
	first, err := h.orch.StartScan(context.Background(), target)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitJob(t, h.orch, first.ID)

	d, err := h.orch.DiffScan(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("DiffScan: %v", err)
	}
	if d.BaseID != "" || !d.Changed {
		t.Errorf("first scan should diff against nothing: %+v", d)
	}

	client.Bodies[target] = `<html><head><title>Shop</title></head><body><h1>Shop</h1><img src="a.png"></body></html>`
	second, err := h.orch.StartScan(context.Background(), target)
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitJob(t, h.orch, second.ID)

	d, err = h.orch.DiffScan(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("DiffScan: %v", err)
	}
	if d.BaseID != first.ID || d.HeadID != second.ID {
		t.Errorf("unexpected ids %+v", d)
	}
	if !strings.Contains(d.Text, "- Images exist → No images found") ||
		!strings.Contains(d.Text, "+ Images exist → PASSED") {
		t.Errorf("unexpected diff:\n%s", d.Text)
	}

	scans, err := h.orch.ListScans(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(scans) != 2 || scans[0].ID != second.ID {
		t.Errorf("expected newest scan first, got %d scans", len(scans))
	}
}

func TestOrchestrator_GetScanNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if _, err := h.orch.GetScan(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrchestrator_NoStore(t *testing.T) {
	t.Parallel()
	cfg := app.DefaultConfig()
	cfg.ReportPath = ""
	o, err := app.NewOrchestrator(cfg, &testutil.DummyWebClient{}, nil, nil, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	defer o.Close()

	if _, err := o.ListScans(context.Background(), 10); !errors.Is(err, app.ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}

	job, err := o.StartScan(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if j := waitJob(t, o, job.ID); j.Status != app.JobDone {
		t.Errorf("expected done, got %s", j.Status)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────────

func TestOrchestrator_CloseRejectsNewScans(t *testing.T) {
	t.Parallel()
	cfg := app.DefaultConfig()
	cfg.ReportPath = ""
	o, err := app.NewOrchestrator(cfg, &gatedClient{Slow: "http://slow.example"}, nil, nil, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	job, err := o.StartScan(context.Background(), "http://slow.example")
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	o.Close()

	if j := o.GetJob(job.ID); j.Status != app.JobCanceled {
		t.Errorf("expected running job canceled by Close, got %s", j.Status)
	}
	if _, err := o.StartScan(context.Background(), "http://example.com"); !errors.Is(err, app.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewOrchestrator_UnknownPlan(t *testing.T) {
	t.Parallel()
	cfg := app.DefaultConfig()
	cfg.Plan = "nope"
	if _, err := app.NewOrchestrator(cfg, &testutil.DummyWebClient{}, nil, nil, &testutil.DummyLogger{}); err == nil {
		t.Error("expected error for unknown plan")
	}
}
