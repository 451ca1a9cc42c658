package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSweeper struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeSweeper) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestJobRunUsesCurrentTimeAsCutoff(t *testing.T) {
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{deleted: 3}

	job := New(sweeper, nil)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", sweeper.calls)
	}
	if !sweeper.cutoff.Equal(fixed) {
		t.Fatalf("expected cutoff %v, got %v", fixed, sweeper.cutoff)
	}
}

func TestJobRunWrapsSweepError(t *testing.T) {
	sweepErr := errors.New("connection reset")
	job := New(&fakeSweeper{err: sweepErr}, nil)

	err := job.Run(context.Background())
	if !errors.Is(err, sweepErr) {
		t.Fatalf("expected wrapped sweep error, got %v", err)
	}
}

func TestJobRunWithoutSweeperIsNoop(t *testing.T) {
	job := New(nil, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
