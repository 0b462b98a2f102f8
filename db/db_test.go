package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nijaru/yt-transcript/config"
	"github.com/nijaru/yt-transcript/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "nested", "lookups.db"),
		MaxConnections: 1,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := Lookup{
		RequestID:     "req-1",
		VideoID:       "abc123",
		Language:      "en",
		TrackLanguage: "en",
		TrackKind:     "generated",
		Match:         "exact-generated",
		Source:        "watch",
		CueCount:      42,
		Outcome:       OutcomeOK,
		Duration:      1500 * time.Millisecond,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	second := Lookup{
		VideoID:   "def456",
		Language:  "de",
		Outcome:   "no_captions_available",
		Error:     "no captions available for this video",
		CreatedAt: time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC),
	}

	id1, err := s.Record(ctx, first)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	id2, err := s.Record(ctx, second)
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d then %d", id1, id2)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	first.ID, second.ID = id1, id2
	want := []Lookup{second, first}
	if diff := cmp.Diff(want, got, timeEqual()); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}

	got, err = s.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].VideoID != "def456" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

func timeEqual() cmp.Option {
	return cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
}

func TestRecordValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, Lookup{Outcome: OutcomeOK}); !errors.Is(err, errors.KindInvalidInput) {
		t.Errorf("missing video id error = %v", err)
	}
	if _, err := s.Record(ctx, Lookup{VideoID: "abc"}); !errors.Is(err, errors.KindInvalidInput) {
		t.Errorf("missing outcome error = %v", err)
	}
	if _, err := s.Recent(ctx, 0); !errors.Is(err, errors.KindInvalidInput) {
		t.Errorf("zero limit error = %v", err)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	outcomes := []string{OutcomeOK, OutcomeOK, OutcomeOK, "upstream_unavailable", "parse_error", "parse_error"}
	for i, o := range outcomes {
		if _, err := s.Record(ctx, Lookup{VideoID: "v", Outcome: o, CreatedAt: time.Unix(int64(i), 0)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	want := []OutcomeCount{
		{Outcome: OutcomeOK, Count: 3},
		{Outcome: "parse_error", Count: 2},
		{Outcome: "upstream_unavailable", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		if _, err := s.Record(ctx, Lookup{VideoID: "v", Outcome: OutcomeOK, CreatedAt: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
	left, _ := s.Recent(ctx, 10)
	if len(left) != 1 {
		t.Errorf("%d rows left, want 1", len(left))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{}); !errors.Is(err, errors.KindInvalidInput) {
		t.Errorf("Open() error = %v", err)
	}
}
