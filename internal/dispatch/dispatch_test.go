package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRunsTaskExactlyOnce(t *testing.T) {
	d := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	var ran int32
	var mu sync.Mutex
	done := make(chan struct{})

	d.Enqueue(Task{ID: uuid.New(), OwnerID: uuid.New(), Run: func(ctx context.Context) {
		mu.Lock()
		ran++
		mu.Unlock()
		close(done)
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected task to run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), ran)
}

func TestSingleWorkerNeverRunsSameUserTwiceConcurrently(t *testing.T) {
	d := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	owner := uuid.New()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		n := i
		d.Enqueue(Task{ID: uuid.New(), OwnerID: owner, Run: func(ctx context.Context) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		}})
	}

	waitWithTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestFairnessAcrossUsersRoundRobins(t *testing.T) {
	d := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	userA := uuid.New()
	userB := uuid.New()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(4)

	block := make(chan struct{})
	d.Enqueue(Task{ID: uuid.New(), OwnerID: userA, Run: func(ctx context.Context) {
		<-block
		mu.Lock()
		order = append(order, "a1")
		mu.Unlock()
		wg.Done()
	}})

	// Give the worker a chance to pick up userA's first task before the
	// rest are enqueued, so it's genuinely occupied when userB shows up.
	time.Sleep(20 * time.Millisecond)

	d.Enqueue(Task{ID: uuid.New(), OwnerID: userA, Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "a2")
		mu.Unlock()
		wg.Done()
	}})
	d.Enqueue(Task{ID: uuid.New(), OwnerID: userB, Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "b1")
		mu.Unlock()
		wg.Done()
	}})
	d.Enqueue(Task{ID: uuid.New(), OwnerID: userB, Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "b2")
		mu.Unlock()
		wg.Done()
	}})

	close(block)
	waitWithTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)
	assert.Equal(t, []string{"a1", "b1", "a2", "b2"}, order)
}

func TestCancelRemovesQueuedTask(t *testing.T) {
	d := New(1)
	owner := uuid.New()
	blockID := uuid.New()
	cancelID := uuid.New()

	block := make(chan struct{})
	ran := make(chan uuid.UUID, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue(Task{ID: blockID, OwnerID: owner, Run: func(ctx context.Context) {
		ran <- blockID
		<-block
	}})
	time.Sleep(20 * time.Millisecond)

	d.Enqueue(Task{ID: cancelID, OwnerID: owner, Run: func(ctx context.Context) {
		ran <- cancelID
	}})

	require.True(t, d.Cancel(cancelID))
	close(block)

	select {
	case first := <-ran:
		assert.Equal(t, blockID, first)
	case <-time.After(time.Second):
		t.Fatal("expected blocking task to run")
	}

	select {
	case <-ran:
		t.Fatal("cancelled task should never have run")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelStopsRunningTaskViaContext(t *testing.T) {
	d := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	taskID := uuid.New()
	cancelled := make(chan struct{})

	d.Enqueue(Task{ID: taskID, OwnerID: uuid.New(), Run: func(taskCtx context.Context) {
		<-taskCtx.Done()
		close(cancelled)
	}})

	time.Sleep(20 * time.Millisecond)
	require.True(t, d.Cancel(taskID))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected running task's context to be cancelled")
	}
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks to complete")
	}
}
