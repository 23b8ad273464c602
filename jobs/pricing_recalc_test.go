package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/kitworth/kitworth/internal/pricing"
)

type fakeRecomputer struct {
	stats pricing.Stats
	err   error
	calls int
}

func (f *fakeRecomputer) Recompute(ctx context.Context, opts pricing.RecomputeOptions) (pricing.Stats, error) {
	f.calls++
	return f.stats, f.err
}

type fakeBumper struct {
	bumps int
}

func (f *fakeBumper) Bump(ctx context.Context) error {
	f.bumps++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecalculateHandlerRunsAndBumps(t *testing.T) {
	rec := &fakeRecomputer{stats: pricing.Stats{StandaloneUpdated: 2}}
	bumper := &fakeBumper{}
	handler := NewRecalculateHandler(rec, bumper, testLogger())

	task, err := NewRecalculateTask("test", time.Now())
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, rec.calls)
	require.Equal(t, 1, bumper.bumps)
}

func TestRecalculateHandlerDropsWhenBusy(t *testing.T) {
	rec := &fakeRecomputer{err: pricing.ErrBusy}
	bumper := &fakeBumper{}
	handler := NewRecalculateHandler(rec, bumper, testLogger())

	task, err := NewRecalculateTask("test", time.Now())
	require.NoError(t, err)

	// A busy engine is not a failure: the in-flight run covers this request.
	require.NoError(t, handler(context.Background(), task))
	require.Zero(t, bumper.bumps)
}

func TestRecalculateHandlerPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	handler := NewRecalculateHandler(&fakeRecomputer{err: boom}, nil, testLogger())

	task, err := NewRecalculateTask("test", time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, handler(context.Background(), task), boom)
}

func TestRecalculateHandlerRejectsBadPayload(t *testing.T) {
	handler := NewRecalculateHandler(&fakeRecomputer{}, nil, testLogger())
	task := asynq.NewTask(TaskPricingRecalculate, []byte("{not json"))
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}
