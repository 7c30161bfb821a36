package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsJobsUntilCanceled(t *testing.T) {
	sched := NewScheduler(time.UTC, testLogger())

	var runs atomic.Int32
	fired := make(chan struct{}, 1)
	err := sched.Add("tick", "@every 1s", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		select {
		case fired <- struct{}{}:
		default:
		}
		return errors.New("logged, not fatal")
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sched.Start(ctx)
	}()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	sched := NewScheduler(time.UTC, testLogger())

	err := sched.Add("broken", "not a cron", 0, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestScheduler_AcceptsFiveFieldSpecs(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	sched := NewScheduler(loc, testLogger())

	require.NoError(t, sched.Add("sync", "35 5,17 * * *", time.Hour, func(context.Context) error { return nil }))
	require.NoError(t, sched.Add("health", "0 9,21 * * *", time.Hour, func(context.Context) error { return nil }))
}
