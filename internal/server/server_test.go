package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/webaudit/internal/app"
	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/server"
	"github.com/raysh454/webaudit/internal/store"
	"github.com/raysh454/webaudit/internal/testutil"
)

func newTestServer(t *testing.T, withStore bool) *server.Server {
	t.Helper()
	return newTestServerWithConfig(t, withStore, server.Config{ListenAddr: ":0"})
}

func newTestServerWithConfig(t *testing.T, withStore bool, scfg server.Config) *server.Server {
	t.Helper()

	logger := &testutil.DummyLogger{}
	cfg := app.DefaultConfig()
	cfg.ReportPath = ""

	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "webaudit.db"), logger)
		if err != nil {
			t.Fatalf("store.Open: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
	}

	orch, err := app.NewOrchestrator(cfg, &testutil.DummyWebClient{}, st, nil, logger)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(orch.Close)

	scfg.Logger = logger
	s, err := server.NewServer(scfg, &app.Application{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Orch:   orch,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func waitFinished(t *testing.T, s *server.Server, jobID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j := s.Orchestrator().GetJob(jobID); j != nil && j.Status.Finished() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "GET", "/results", "")

	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_CORS_Preflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "OPTIONS", "/run-tests", "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if m := rec.Header().Get("Access-Control-Allow-Methods"); m != "POST" {
		t.Errorf("unexpected allowed methods %q", m)
	}
}

func TestServer_CORS_AllowedOrigins(t *testing.T) {
	t.Parallel()
	s := newTestServerWithConfig(t, false, server.Config{AllowedOrigins: []string{"https://dash.example.com"}})

	for _, tc := range []struct {
		origin string
		want   string
	}{
		{"https://dash.example.com", "https://dash.example.com"},
		{"https://evil.example.com", ""},
		{"", ""},
	} {
		req := httptest.NewRequest("GET", "/results", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
			t.Errorf("origin %q: allow-origin = %q, want %q", tc.origin, got, tc.want)
		}
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestServer_Results_BeforeFirstScan(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "GET", "/results", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"summary":{"passed":0,"failed":0}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestServer_RunTests_InvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "POST", "/run-tests", `{invalid}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_RunTests_EmptyURL(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "POST", "/run-tests", `{"url":""}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var e server.ErrorResponse
	decodeJSON(t, rec, &e)
	if e.Error != app.ErrEmptyURL.Error() {
		t.Errorf("unexpected error %q", e.Error)
	}
}

func TestServer_RunTests_ThenResultsAndSummary(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	rec := doJSON(t, s, "POST", "/run-tests", `{"url":"http://example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job app.Job
	decodeJSON(t, rec, &job)
	if job.ID == "" || job.URL != "http://example.com" {
		t.Fatalf("unexpected job %+v", job)
	}
	waitFinished(t, s, job.ID)

	rec = doJSON(t, s, "GET", "/results", "")
	var snap model.ResultSnapshot
	decodeJSON(t, rec, &snap)
	if snap.Details == nil || len(snap.Details.Tests) != 7 {
		t.Fatalf("expected 7 steps, got %+v", snap)
	}
	if snap.Summary.Passed+snap.Summary.Failed != 7 {
		t.Errorf("summary does not add up: %+v", snap.Summary)
	}

	rec = doJSON(t, s, "GET", "/summary", "")
	var sum server.SummaryResponse
	decodeJSON(t, rec, &sum)
	if !strings.HasPrefix(sum.Summary, "The website was tested for 7 key functionalities.") {
		t.Errorf("unexpected summary %q", sum.Summary)
	}

	rec = doJSON(t, s, "GET", "/jobs/"+job.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for job, got %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/scans?limit=5", "")
	var scans []store.Scan
	decodeJSON(t, rec, &scans)
	if len(scans) != 1 || scans[0].ID != job.ID {
		t.Errorf("expected the scan in history, got %+v", scans)
	}

	rec = doJSON(t, s, "GET", "/scans/"+job.ID+"/diff", "")
	var d app.ScanDiff
	decodeJSON(t, rec, &d)
	if d.HeadID != job.ID || d.BaseID != "" || len(d.Chunks) != 7 {
		t.Errorf("unexpected diff %+v", d)
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func TestServer_GetJob_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "GET", "/jobs/nope", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_CancelJob_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "DELETE", "/jobs/nope", "")

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestServer_ListJobs_Empty(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "GET", "/jobs", "")

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected empty list, got %s", got)
	}
}

// ─── History ───────────────────────────────────────────────────────────

func TestServer_Scans_EmptyAndMissing(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	if got := strings.TrimSpace(doJSON(t, s, "GET", "/scans", "").Body.String()); got != "[]" {
		t.Errorf("expected empty list, got %s", got)
	}
	if rec := doJSON(t, s, "GET", "/scans/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "GET", "/scans/nope/diff", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for diff, got %d", rec.Code)
	}
}

func TestServer_Scans_HistoryDisabled(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	if rec := doJSON(t, s, "GET", "/scans", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_Schedules_None(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	if got := strings.TrimSpace(doJSON(t, s, "GET", "/schedules", "").Body.String()); got != "[]" {
		t.Errorf("expected empty list, got %s", got)
	}
}

// ─── Swagger ───────────────────────────────────────────────────────────

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := doJSON(t, s, "GET", "/swagger/doc.json", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"/run-tests"`) {
		t.Errorf("doc does not describe /run-tests")
	}
}

// ─── WebSockets ────────────────────────────────────────────────────────

func TestServer_ResultsWS_StreamsUntilDone(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/results", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first model.ResultSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial results: %v", err)
	}
	if first.Details != nil {
		t.Fatalf("expected empty initial results, got %+v", first)
	}

	resp, err := http.Post(ts.URL+"/run-tests", "application/json", strings.NewReader(`{"url":"http://example.com"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	for {
		var snap model.ResultSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read: %v", err)
		}
		if snap.Details != nil && snap.Details.Status == string(app.JobDone) {
			if len(snap.Details.Tests) != 7 {
				t.Errorf("expected 7 steps, got %d", len(snap.Details.Tests))
			}
			return
		}
	}
}

func TestServer_JobWS_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	if rec := doJSON(t, s, "GET", "/ws/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_JobWS_ReplaysEventsToEveryClient(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	rec := doJSON(t, s, "POST", "/run-tests", `{"url":"http://example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var job app.Job
	decodeJSON(t, rec, &job)
	waitFinished(t, s, job.ID)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/jobs/" + job.ID
	for client := 0; client < 2; client++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("client %d dial: %v", client, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var head app.Job
		if err := conn.ReadJSON(&head); err != nil {
			t.Fatalf("client %d read job: %v", client, err)
		}
		if head.ID != job.ID || head.Status != app.JobDone {
			t.Errorf("client %d: unexpected job %+v", client, head)
		}

		var events []app.JobEvent
		for {
			var ev app.JobEvent
			err := conn.ReadJSON(&ev)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			if err != nil {
				t.Fatalf("client %d read event: %v", client, err)
			}
			events = append(events, ev)
		}
		conn.Close()

		// pending, running, 7 steps, result, final status
		if len(events) != 11 {
			t.Fatalf("client %d got %d events, want 11", client, len(events))
		}
		if last := events[len(events)-1]; last.Status != app.JobDone {
			t.Errorf("client %d: last event %+v, want done", client, last)
		}
	}
}

func TestServer_WS_RejectsDisallowedOrigin(t *testing.T) {
	t.Parallel()
	s := newTestServerWithConfig(t, false, server.Config{AllowedOrigins: []string{"https://dash.example.com"}})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/results"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatal("expected handshake to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://dash.example.com"}})
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}
