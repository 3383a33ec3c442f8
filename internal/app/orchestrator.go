package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/webaudit/internal/archive"
	"github.com/raysh454/webaudit/internal/checks"
	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/report"
	"github.com/raysh454/webaudit/internal/store"
	"github.com/raysh454/webaudit/internal/utils"
	"github.com/raysh454/webaudit/internal/webclient"
)

var (
	ErrEmptyURL = errors.New("url is required")
	ErrClosed   = errors.New("orchestrator is closed")
	ErrNoStore  = errors.New("scan history is disabled")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int                   `json:"processed,omitempty"`
	Total     int                   `json:"total,omitempty"`
	Step      *model.TestStepResult `json:"step,omitempty"`

	// For results
	Summary *model.Summary `json:"summary,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

// Job is one scan run. The scan ID in history equals the job ID.
type Job struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	CanonicalURL string        `json:"canonical_url"`
	Plan         string        `json:"plan"`
	Status       JobStatus     `json:"status"`
	Error        string        `json:"error,omitempty"`
	Completed    int           `json:"completed"`
	Total        int           `json:"total"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at,omitzero"`
	Events       chan JobEvent `json:"-"`
}

// ScanDiff compares a stored scan with the previous scan of the same page.
type ScanDiff struct {
	BaseID  string         `json:"base_id,omitempty"`
	HeadID  string         `json:"head_id"`
	Changed bool           `json:"changed"`
	Chunks  []report.Chunk `json:"chunks"`
	Text    string         `json:"text"`
}

// Orchestrator runs scans one at a time and publishes the live results.
type Orchestrator struct {
	cfg      *Config
	plan     checks.Plan
	client   webclient.WebClient
	store    *store.Store
	archiver archive.Archiver
	logger   logging.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	streams    map[string]*jobStream
	current    string
	closed     bool

	snapMu   sync.Mutex
	snapshot *model.ResultSnapshot
	snapJob  string

	subsMu  sync.Mutex
	subs    map[int]chan *model.ResultSnapshot
	nextSub int
}

// NewOrchestrator ties together config, the scan web client, history and
// the archive. st and archiver may be nil.
func NewOrchestrator(cfg *Config, client webclient.WebClient, st *store.Store, archiver archive.Archiver, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if client == nil {
		return nil, fmt.Errorf("webclient is nil")
	}
	plan, err := checks.ByName(cfg.Plan)
	if err != nil {
		return nil, err
	}
	if archiver == nil {
		archiver = archive.NopArchiver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		plan:       plan,
		client:     client,
		store:      st,
		archiver:   archiver,
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		baseCtx:    ctx,
		baseCancel: cancel,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
		streams:    make(map[string]*jobStream),
		snapshot:   &model.ResultSnapshot{},
		subs:       make(map[int]chan *model.ResultSnapshot),
	}, nil
}

// Plan returns the plan every scan runs.
func (o *Orchestrator) Plan() checks.Plan { return o.plan }

// StartScan cancels the running scan, resets the live results and starts
// scanning rawURL in the background. rawURL is fetched as given. ctx only
// gates the submission; the scan itself runs until done, canceled or Close.
func (o *Orchestrator) StartScan(ctx context.Context, rawURL string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := strings.TrimSpace(rawURL)
	if target == "" {
		return nil, ErrEmptyURL
	}
	canonical, err := utils.Canonicalize(target, o.cfg.URLOpts)
	if err != nil {
		canonical = target
	}

	jobID := uuid.New().String()
	now := time.Now().UTC()
	job := &Job{
		ID:           jobID,
		URL:          target,
		CanonicalURL: canonical,
		Plan:         o.plan.Name,
		Status:       JobPending,
		Total:        o.plan.Len(),
		StartedAt:    now,
		Events:       make(chan JobEvent, 16),
	}

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return nil, ErrClosed
	}
	if cancel := o.jobCancels[o.current]; cancel != nil {
		cancel()
	}
	o.pruneJobsLocked(now)
	o.jobs[jobID] = job
	o.streams[jobID] = newJobStream(job.Total)
	jobCtx, cancel := context.WithCancel(o.baseCtx)
	o.jobCancels[jobID] = cancel
	o.current = jobID
	o.wg.Add(1)
	o.jobsMu.Unlock()

	o.resetSnapshot(job)
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	o.logger.Info("scan submitted",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "plan", Value: o.plan.Name})

	go o.runScan(jobCtx, job)
	return o.GetJob(jobID), nil
}

func (o *Orchestrator) runScan(ctx context.Context, job *Job) {
	jobID := job.ID
	defer func() {
		o.jobsMu.Lock()
		delete(o.jobCancels, jobID)
		if j, ok := o.jobs[jobID]; ok && j.Events != nil {
			close(j.Events)
		}
		if st, ok := o.streams[jobID]; ok {
			st.close()
		}
		o.jobsMu.Unlock()
		o.wg.Done()
	}()

	o.setStatus(jobID, JobRunning, "")
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobRunning})
	o.setSnapshotStatus(jobID, JobRunning)

	processed := 0
	steps, err := o.plan.Run(ctx, o.client, job.URL, func(step model.TestStepResult) {
		processed++
		o.appendStep(jobID, step)
		o.jobsMu.Lock()
		if j, ok := o.jobs[jobID]; ok {
			j.Completed = processed
		}
		o.jobsMu.Unlock()
		s := step
		o.emitJobEvent(jobID, JobEvent{
			JobID:     jobID,
			Type:      JobEventProgress,
			Processed: processed,
			Total:     job.Total,
			Step:      &s,
		})
	})

	status, errMsg := JobDone, ""
	if err != nil {
		status = JobCanceled
		if !errors.Is(err, context.Canceled) {
			status, errMsg = JobFailed, err.Error()
		}
	}
	o.setStatus(jobID, status, errMsg)
	o.setSnapshotStatus(jobID, status)

	final := o.persist(jobID, steps, status, errMsg)
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Summary: &final.Summary})
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})

	o.logger.Info("scan finished",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "status", Value: string(status)},
		logging.Field{Key: "passed", Value: final.Summary.Passed},
		logging.Field{Key: "failed", Value: final.Summary.Failed})
}

// persist writes the finished scan to history, the report file and the
// archive. Failures are logged; the scan result stands regardless.
func (o *Orchestrator) persist(jobID string, steps []model.TestStepResult, status JobStatus, errMsg string) *model.ResultSnapshot {
	job := o.GetJob(jobID)
	final := &model.ResultSnapshot{
		Details: &model.Details{
			Tests:  []model.TestStepResult{},
			URL:    job.URL,
			ScanID: jobID,
			Status: string(status),
			Total:  job.Total,
		},
	}
	for _, s := range steps {
		final.Append(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if o.store != nil {
		err := o.store.SaveScan(ctx, &store.Scan{
			ID:           jobID,
			URL:          job.URL,
			CanonicalURL: job.CanonicalURL,
			Plan:         job.Plan,
			Status:       string(status),
			Passed:       final.Summary.Passed,
			Failed:       final.Summary.Failed,
			Total:        job.Total,
			Error:        errMsg,
			StartedAt:    job.StartedAt,
			EndedAt:      job.EndedAt,
			Steps:        final.Details.Tests,
		})
		if err != nil {
			o.logger.Error("failed to save scan", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if o.cfg.ReportPath != "" {
		if err := report.WriteJSON(o.cfg.ReportPath, final); err != nil {
			o.logger.Warn("failed to write report", logging.Field{Key: "path", Value: o.cfg.ReportPath}, logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if data, err := report.Marshal(final); err == nil {
		if err := o.archiver.Put(ctx, "scans/"+jobID+".json", data, "application/json"); err != nil {
			o.logger.Warn("failed to archive report", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return final
}

// ─── live results ──────────────────────────────────────────────────────

// Results returns a copy of the live results. Before the first scan the
// copy has no details.
func (o *Orchestrator) Results() *model.ResultSnapshot {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	return o.snapshot.Clone()
}

// Summary describes the live results in one paragraph.
func (o *Orchestrator) Summary() string {
	return report.Summarize(o.Results())
}

func (o *Orchestrator) resetSnapshot(job *Job) {
	o.snapMu.Lock()
	o.snapJob = job.ID
	o.snapshot = &model.ResultSnapshot{
		Details: &model.Details{
			Tests:  []model.TestStepResult{},
			URL:    job.URL,
			ScanID: job.ID,
			Status: string(JobPending),
			Total:  job.Total,
		},
	}
	snap := o.snapshot.Clone()
	o.snapMu.Unlock()
	o.broadcast(snap)
}

// appendStep adds a step to the live results unless a newer scan owns them.
func (o *Orchestrator) appendStep(jobID string, step model.TestStepResult) {
	o.snapMu.Lock()
	if o.snapJob != jobID {
		o.snapMu.Unlock()
		return
	}
	o.snapshot.Append(step)
	snap := o.snapshot.Clone()
	o.snapMu.Unlock()
	o.broadcast(snap)
}

func (o *Orchestrator) setSnapshotStatus(jobID string, status JobStatus) {
	o.snapMu.Lock()
	if o.snapJob != jobID || o.snapshot.Details == nil {
		o.snapMu.Unlock()
		return
	}
	o.snapshot.Details.Status = string(status)
	snap := o.snapshot.Clone()
	o.snapMu.Unlock()
	o.broadcast(snap)
}

// Subscribe returns a channel receiving every live results change. The
// current results are delivered first. Slow subscribers only see the
// newest value.
func (o *Orchestrator) Subscribe() (int, <-chan *model.ResultSnapshot) {
	ch := make(chan *model.ResultSnapshot, 1)
	ch <- o.Results()

	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	return id, ch
}

// Unsubscribe closes the subscription channel.
func (o *Orchestrator) Unsubscribe(id int) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	if ch, ok := o.subs[id]; ok {
		delete(o.subs, id)
		close(ch)
	}
}

func (o *Orchestrator) broadcast(snap *model.ResultSnapshot) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// ─── jobs ──────────────────────────────────────────────────────────────

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if st, ok := o.streams[jobID]; ok {
		st.publish(ev)
	}
	job, ok := o.jobs[jobID]
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return
	}
	j.Status = status
	j.Error = errMsg
	if status.Finished() {
		j.EndedAt = time.Now().UTC()
		if o.current == jobID {
			o.current = ""
		}
	}
}

// pruneJobsLocked forgets finished jobs older than the retention window.
func (o *Orchestrator) pruneJobsLocked(now time.Time) {
	if o.cfg.JobRetention <= 0 {
		return
	}
	for id, j := range o.jobs {
		if j.Status.Finished() && now.Sub(j.EndedAt) > o.cfg.JobRetention {
			delete(o.jobs, id)
			delete(o.streams, id)
		}
	}
}

// SubscribeJob returns a channel replaying every event the job has emitted
// so far, followed by its live events. The channel is closed once the job
// has ended. ok is false for unknown jobs.
func (o *Orchestrator) SubscribeJob(jobID string) (id int, events <-chan JobEvent, ok bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	st, ok := o.streams[jobID]
	if !ok {
		return 0, nil, false
	}
	id, events = st.subscribe()
	return id, events, true
}

// UnsubscribeJob stops delivery to a job subscription.
func (o *Orchestrator) UnsubscribeJob(jobID string, id int) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if st, ok := o.streams[jobID]; ok {
		st.unsubscribe(id)
	}
}

// jobStream is the event log of one job with its subscribers. Callers hold
// jobsMu.
type jobStream struct {
	log    []JobEvent
	size   int
	subs   map[int]chan JobEvent
	nextID int
	closed bool
}

// newJobStream sizes subscriber buffers for every event a job of total
// steps can emit: pending, running, one per step, result and final status.
func newJobStream(total int) *jobStream {
	return &jobStream{size: total + 4, subs: make(map[int]chan JobEvent)}
}

func (st *jobStream) subscribe() (int, <-chan JobEvent) {
	ch := make(chan JobEvent, max(st.size, len(st.log)))
	for _, ev := range st.log {
		ch <- ev
	}
	id := st.nextID
	st.nextID++
	if st.closed {
		close(ch)
		return id, ch
	}
	st.subs[id] = ch
	return id, ch
}

func (st *jobStream) unsubscribe(id int) {
	if ch, ok := st.subs[id]; ok {
		delete(st.subs, id)
		close(ch)
	}
}

func (st *jobStream) publish(ev JobEvent) {
	if st.closed {
		return
	}
	st.log = append(st.log, ev)
	for _, ch := range st.subs {
		// Buffers hold a whole job; drop rather than block if that is wrong.
		select {
		case ch <- ev:
		default:
		}
	}
}

func (st *jobStream) close() {
	if st.closed {
		return
	}
	st.closed = true
	for id, ch := range st.subs {
		delete(st.subs, id)
		close(ch)
	}
}

// CancelJob cancels a running job. Unknown or finished jobs are ignored.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetJob returns a copy of the job, or nil.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ListJobs returns copies of all known jobs, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		cp := *j
		out = append(out, &cp)
	}
	o.jobsMu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// ─── history ───────────────────────────────────────────────────────────

func (o *Orchestrator) ListScans(ctx context.Context, limit int) ([]*store.Scan, error) {
	if o.store == nil {
		return nil, ErrNoStore
	}
	return o.store.ListScans(ctx, limit)
}

func (o *Orchestrator) GetScan(ctx context.Context, scanID string) (*store.Scan, error) {
	if o.store == nil {
		return nil, ErrNoStore
	}
	return o.store.GetScan(ctx, scanID)
}

// DiffScan compares a stored scan with the previous scan of the same
// canonical URL. Without a previous scan every row is an addition.
func (o *Orchestrator) DiffScan(ctx context.Context, scanID string) (*ScanDiff, error) {
	head, err := o.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	var baseID string
	var base []model.TestStepResult
	prev, err := o.store.PreviousScan(ctx, head.CanonicalURL, head.StartedAt)
	switch {
	case err == nil:
		baseID, base = prev.ID, prev.Steps
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	chunks := report.Diff(base, head.Steps)
	return &ScanDiff{
		BaseID:  baseID,
		HeadID:  head.ID,
		Changed: report.Changed(chunks),
		Chunks:  chunks,
		Text:    report.FormatDiff(chunks),
	}, nil
}

// ─── lifecycle ─────────────────────────────────────────────────────────

// Close cancels running scans, waits for them to finish and closes all
// subscriptions. The orchestrator rejects new scans afterwards.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return
	}
	o.closed = true
	o.jobsMu.Unlock()

	o.baseCancel()
	o.wg.Wait()

	o.subsMu.Lock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.subsMu.Unlock()
}
