package appointment

import (
	"context"
	"sync"
)

// cycleRun is one reconciliation cycle that callers can wait on.
type cycleRun struct {
	done     chan struct{}
	err      error
	finished bool

	// next is queued to start once this run finishes.
	next *cycleRun
}

// cycleTracker coalesces refresh triggers per user. A plain trigger joins
// whatever cycle is current. A fresh trigger needs a cycle that starts after
// the trigger, so while a cycle is running it queues a single follow up run
// shared by every fresh trigger that arrives before the follow up starts.
// At most one run is current and one is queued behind it per user.
type cycleTracker struct {
	mu   sync.Mutex
	runs map[string]*cycleRun
}

func newCycleTracker() *cycleTracker {
	return &cycleTracker{runs: make(map[string]*cycleRun)}
}

// join returns the run the caller should wait on. When owner is true the
// caller must execute the run, after prev (if any) has finished, and then
// call finish.
func (t *cycleTracker) join(userID string, fresh bool) (run *cycleRun, prev *cycleRun, owner bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.runs[userID]
	if !ok {
		run = &cycleRun{done: make(chan struct{})}
		t.runs[userID] = run
		return run, nil, true
	}

	if !fresh {
		return cur, nil, false
	}
	if cur.next != nil && cur.next.finished {
		// Its owner gave up before the current run ended.
		cur.next = nil
	}
	if cur.next != nil {
		return cur.next, nil, false
	}

	run = &cycleRun{done: make(chan struct{})}
	cur.next = run
	return run, cur, true
}

// finish records the result, promotes any queued run and wakes waiters.
func (t *cycleTracker) finish(userID string, run *cycleRun, err error) {
	t.mu.Lock()
	run.err = err
	run.finished = true
	if run.next != nil && !run.next.finished {
		t.runs[userID] = run.next
	} else if t.runs[userID] == run {
		delete(t.runs, userID)
	}
	t.mu.Unlock()

	close(run.done)
}

// queued reports whether a follow up run is waiting for userID.
func (t *cycleTracker) queued(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.runs[userID]
	return ok && cur.next != nil
}

func wait(ctx context.Context, run *cycleRun) error {
	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
