package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/store"
	"github.com/raysh454/webaudit/internal/testutil"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data", "webaudit.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scanAt(id, canonical string, started time.Time, steps ...model.TestStepResult) *store.Scan {
	sc := &store.Scan{
		ID:           id,
		URL:          canonical,
		CanonicalURL: canonical,
		Plan:         "functional",
		Status:       "done",
		StartedAt:    started,
		EndedAt:      started.Add(time.Second),
		Steps:        steps,
		Total:        len(steps),
	}
	for _, st := range steps {
		if st.Passed() {
			sc.Passed++
		} else {
			sc.Failed++
		}
	}
	return sc
}

func TestStore_SaveAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	in := scanAt("a", "https://example.com/", start,
		model.TestStepResult{Name: "Page has title", Status: "passed"},
		model.TestStepResult{Name: "H1 tag exists", Status: "failed", Error: "No H1 tag found"},
	)
	if err := s.SaveScan(ctx, in); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}

	got, err := s.GetScan(ctx, "a")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Passed != 1 || got.Failed != 1 || got.Total != 2 || got.Plan != "functional" {
		t.Errorf("unexpected counts %+v", got)
	}
	if !got.StartedAt.Equal(start) || !got.EndedAt.Equal(start.Add(time.Second)) {
		t.Errorf("times not preserved: %v / %v", got.StartedAt, got.EndedAt)
	}
	if len(got.Steps) != 2 || got.Steps[1].Error != "No H1 tag found" {
		t.Errorf("steps not preserved: %+v", got.Steps)
	}

	snap := got.Snapshot()
	if snap.Details.ScanID != "a" || snap.Completed() != 2 || snap.Summary.Passed != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStore_SaveUpserts(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sc := scanAt("a", "u", time.Now())
	sc.Status = "running"
	sc.EndedAt = time.Time{}
	_ = s.SaveScan(ctx, sc)

	sc.Status = "failed"
	sc.Error = "boom"
	if err := s.SaveScan(ctx, sc); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	got, _ := s.GetScan(ctx, "a")
	if got.Status != "failed" || got.Error != "boom" || !got.EndedAt.IsZero() {
		t.Errorf("unexpected scan %+v", got)
	}
	if got.Steps == nil || len(got.Steps) != 0 {
		t.Errorf("expected empty non-nil steps, got %#v", got.Steps)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if _, err := s.GetScan(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.SaveScan(context.Background(), &store.Scan{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestStore_ListNewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1000, 0)
	for i, id := range []string{"a", "b", "c"} {
		_ = s.SaveScan(ctx, scanAt(id, "u", base.Add(time.Duration(i)*time.Minute)))
	}

	all, err := s.ListScans(ctx, 0)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order %v", ids(all))
	}

	two, _ := s.ListScans(ctx, 2)
	if len(two) != 2 || two[0].ID != "c" {
		t.Errorf("unexpected limited list %v", ids(two))
	}
}

func TestStore_PreviousScan(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1000, 0)

	_ = s.SaveScan(ctx, scanAt("old", "https://a.test/", base))
	_ = s.SaveScan(ctx, scanAt("mid", "https://a.test/", base.Add(time.Minute)))
	_ = s.SaveScan(ctx, scanAt("other", "https://b.test/", base.Add(2*time.Minute)))
	_ = s.SaveScan(ctx, scanAt("new", "https://a.test/", base.Add(3*time.Minute)))

	prev, err := s.PreviousScan(ctx, "https://a.test/", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("PreviousScan: %v", err)
	}
	if prev.ID != "mid" {
		t.Errorf("expected mid, got %s", prev.ID)
	}

	if _, err := s.PreviousScan(ctx, "https://a.test/", base); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound before the first scan, got %v", err)
	}
}

func ids(scans []*store.Scan) []string {
	out := make([]string, 0, len(scans))
	for _, s := range scans {
		out = append(out, s.ID)
	}
	return out
}
