// Package dispatch holds one FIFO queue per user and runs a fixed pool of
// workers over them in round-robin order, so no single user can starve
// another's tasks. It is grounded on the original Python service's worker.py
// (the defaultdict(asyncio.Queue) round-robin loop: snapshot the user list,
// run at most one task per user per pass, re-snapshot) and on the teacher's
// pkg/worker.WorkerPool for the wakeup-channel idiom used in place of
// worker.py's sleep(0.1)/sleep(0.01) polling.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work submitted to the dispatcher. Run is invoked with a
// context that is cancelled if Cancel(ID) is called while it's executing.
type Task struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Run     func(ctx context.Context)
}

const idlePollInterval = 100 * time.Millisecond

// Dispatcher fans out queued tasks across a fixed worker count, never
// letting one user occupy more than one worker slot at a time.
type Dispatcher struct {
	mu        sync.Mutex
	queues    map[uuid.UUID][]Task
	userOrder []uuid.UUID
	cursor    int
	busyUsers map[uuid.UUID]bool
	cancels   map[uuid.UUID]context.CancelFunc

	wakeup  chan struct{}
	workers int
	wg      sync.WaitGroup
	stop    chan struct{}
}

func New(workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		queues:    make(map[uuid.UUID][]Task),
		busyUsers: make(map[uuid.UUID]bool),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
		wakeup:    make(chan struct{}, 1),
		workers:   workers,
		stop:      make(chan struct{}),
	}
}

// Enqueue appends task to its owner's FIFO queue and wakes an idle worker.
func (d *Dispatcher) Enqueue(task Task) {
	d.mu.Lock()
	if _, ok := d.queues[task.OwnerID]; !ok {
		d.userOrder = append(d.userOrder, task.OwnerID)
	}
	d.queues[task.OwnerID] = append(d.queues[task.OwnerID], task)
	d.mu.Unlock()

	d.wake()
}

// Cancel stops a queued or running task. Queued tasks are removed outright;
// a running task's context is cancelled so its Run func can unwind.
// Reports whether a matching task was found.
func (d *Dispatcher) Cancel(taskID uuid.UUID) bool {
	d.mu.Lock()
	if cancel, ok := d.cancels[taskID]; ok {
		d.mu.Unlock()
		cancel()
		return true
	}

	for owner, queue := range d.queues {
		for i, t := range queue {
			if t.ID == taskID {
				d.queues[owner] = append(queue[:i:i], queue[i+1:]...)
				d.mu.Unlock()
				return true
			}
		}
	}
	d.mu.Unlock()
	return false
}

// Start launches the worker goroutines against parent. Call once.
func (d *Dispatcher) Start(parent context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(parent)
	}
}

// Stop signals every worker to exit once its current task (if any)
// finishes, and waits for them.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(parent context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		task, taskCtx, ok := d.next(parent)
		if !ok {
			select {
			case <-d.stop:
				return
			case <-d.wakeup:
			case <-time.After(idlePollInterval):
			}
			continue
		}

		task.Run(taskCtx)
		d.release(task.ID, task.OwnerID)
		d.wake()
	}
}

// next pops the next runnable task, skipping any user already occupying a
// worker slot, advancing the round-robin cursor past whichever user it
// picks (or leaving it untouched if nothing is runnable).
func (d *Dispatcher) next(parent context.Context) (Task, context.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.userOrder)
	for i := 0; i < n; i++ {
		idx := (d.cursor + i) % n
		owner := d.userOrder[idx]
		if d.busyUsers[owner] {
			continue
		}

		queue := d.queues[owner]
		if len(queue) == 0 {
			continue
		}

		task := queue[0]
		d.queues[owner] = queue[1:]
		d.busyUsers[owner] = true
		d.cursor = idx + 1

		taskCtx, cancel := context.WithCancel(parent)
		d.cancels[task.ID] = cancel
		return task, taskCtx, true
	}

	return Task{}, nil, false
}

func (d *Dispatcher) release(taskID, ownerID uuid.UUID) {
	d.mu.Lock()
	delete(d.busyUsers, ownerID)
	delete(d.cancels, taskID)
	d.mu.Unlock()
}

func (d *Dispatcher) wake() {
	select {
	case d.wakeup <- struct{}{}:
	default:
	}
}
