package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSucceedsAndReportsProgress(t *testing.T) {
	r := New()

	script := `echo "frame=1 time=00:00:05.00 bitrate=100kbits/s" 1>&2; sleep 0.05; echo "frame=2 time=00:00:15.00 bitrate=100kbits/s" 1>&2; exit 0`

	var updates []Progress
	err := r.Run(context.Background(), "task-1", "/bin/sh", []string{"-c", script}, 30*time.Second, time.Second, func(p Progress) {
		updates = append(updates, p)
	})

	require.NoError(t, err)
	require.NotEmpty(t, updates)
	assert.Equal(t, 15*time.Second, updates[len(updates)-1].ElapsedMedia)
}

func TestRunReportsMissingBinary(t *testing.T) {
	r := New()

	err := r.Run(context.Background(), "task-2", "/definitely/not/a/real/binary", nil, 0, time.Second, nil)

	require.Error(t, err)
	var runnerErr *Error
	require.ErrorAs(t, err, &runnerErr)
	assert.Equal(t, KindMissing, runnerErr.Kind)
}

func TestRunReportsNonZeroExit(t *testing.T) {
	r := New()

	err := r.Run(context.Background(), "task-3", "/bin/sh", []string{"-c", "exit 1"}, 0, time.Second, nil)

	require.Error(t, err)
	var runnerErr *Error
	require.ErrorAs(t, err, &runnerErr)
	assert.Equal(t, KindFailed, runnerErr.Kind)
}

func TestRunDetectsStall(t *testing.T) {
	r := New()

	err := r.Run(context.Background(), "task-4", "/bin/sh", []string{"-c", "sleep 2"}, 0, 50*time.Millisecond, nil)

	require.Error(t, err)
	var runnerErr *Error
	require.ErrorAs(t, err, &runnerErr)
	assert.Equal(t, KindStalled, runnerErr.Kind)
}

// Cancellation has no method on Runner: the caller (internal/dispatch)
// cancels the context it handed to Run, and that's expected to kill the
// subprocess promptly.
func TestContextCancellationStopsInFlightProcess(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, "task-5", "/bin/sh", []string{"-c", "sleep 5"}, 0, 10*time.Second, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		var runnerErr *Error
		require.ErrorAs(t, err, &runnerErr)
		assert.Equal(t, KindCancelled, runnerErr.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
