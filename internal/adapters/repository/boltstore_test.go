package repository

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "ratings.db"), WithOpenTimeout(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_LoadEmpty(t *testing.T) {
	s := newTestBolt(t)

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestBolt(t)
	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	snap := Snapshot{
		RunID:   "run-1",
		TakenAt: taken,
		Default: 2000,
		Ratings: map[string]float64{"A": 2030.25, "B": 1969.75, "C": -12.5},
		Applied: []int64{12, 3, 7, 300},
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", got.RunID)
	}
	if !got.TakenAt.Equal(taken) {
		t.Errorf("expected %v, got %v", taken, got.TakenAt)
	}
	if got.Default != 2000 {
		t.Errorf("expected default 2000, got %f", got.Default)
	}
	if len(got.Ratings) != 3 {
		t.Fatalf("expected 3 ratings, got %d", len(got.Ratings))
	}
	for id, want := range snap.Ratings {
		if got.Ratings[id] != want {
			t.Errorf("rating for %s: expected %f, got %f", id, want, got.Ratings[id])
		}
	}
	if !reflect.DeepEqual(got.Applied, snap.Applied) {
		t.Errorf("expected applied games %v in save order, got %v", snap.Applied, got.Applied)
	}
}

func TestBoltStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestBolt(t)

	first := Snapshot{RunID: "a", Default: 2000, Ratings: map[string]float64{"old": 1}, Applied: []int64{1, 2}}
	second := Snapshot{RunID: "b", Default: 1500, Ratings: map[string]float64{"new": 2}}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "b" || got.Default != 1500 {
		t.Errorf("expected second snapshot, got %+v", got)
	}
	if _, ok := got.Ratings["old"]; ok {
		t.Error("expected ratings from the first snapshot to be gone")
	}
	if len(got.Applied) != 0 {
		t.Errorf("expected no applied games, got %v", got.Applied)
	}
}

func TestBoltStore_RejectsInvalid(t *testing.T) {
	s := newTestBolt(t)

	err := s.Save(context.Background(), Snapshot{Ratings: map[string]float64{"A": math.NaN()}})
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, Snapshot{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, BackendNone, "", "")
	if err != nil || s != nil {
		t.Fatalf("expected no snapshotter, got %v, %v", s, err)
	}

	if _, err := Open(ctx, "s3", "", ""); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := Open(ctx, BackendBolt, "", ""); !errors.Is(err, ErrMissingLocation) {
		t.Errorf("expected ErrMissingLocation, got %v", err)
	}
	if _, err := Open(ctx, BackendPostgres, "", ""); !errors.Is(err, ErrMissingLocation) {
		t.Errorf("expected ErrMissingLocation, got %v", err)
	}

	b, err := Open(ctx, BackendBolt, filepath.Join(t.TempDir(), "x.db"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if b.Backend() != BackendBolt {
		t.Errorf("expected bolt backend, got %s", b.Backend())
	}
}
