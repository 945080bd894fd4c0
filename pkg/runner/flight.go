package runner

import (
	"context"
	"sync"
)

// flight is one execution shared by every caller that asked for the same
// code in the same session while it was running.
type flight struct {
	done    chan struct{}
	out     *Outcome
	waiters int
	cancel  context.CancelCauseFunc
}

// flights tracks in-progress executions by dedup key. The execution runs
// detached from any single caller: a caller that gives up only stops
// waiting, and the run is cancelled once nobody waits for it anymore.
type flights struct {
	mu sync.Mutex
	m  map[string]*flight
}

// join returns the flight for key, starting run in a new goroutine when
// none is in progress. started is true for the caller that started it.
// Every join must be paired with a leave.
func (fs *flights) join(ctx context.Context, key string, run func(context.Context) *Outcome) (f *flight, started bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if f, ok := fs.m[key]; ok {
		f.waiters++
		return f, false
	}
	if fs.m == nil {
		fs.m = make(map[string]*flight)
	}

	// Request values such as the tenant carry over, cancellation does not.
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	f = &flight{done: make(chan struct{}), waiters: 1, cancel: cancel}
	fs.m[key] = f

	go func() {
		out := run(runCtx)
		fs.forget(key, f)
		f.out = out
		close(f.done)
		cancel(nil)
	}()
	return f, true
}

// leave drops one waiter. When the last waiter leaves before the run is
// done, the run is cancelled with cause and later callers start afresh.
func (fs *flights) leave(key string, f *flight, cause error) {
	fs.mu.Lock()
	f.waiters--
	abandoned := f.waiters == 0
	if abandoned {
		select {
		case <-f.done:
			abandoned = false
		default:
			if fs.m[key] == f {
				delete(fs.m, key)
			}
		}
	}
	fs.mu.Unlock()

	if abandoned {
		f.cancel(cause)
	}
}

func (fs *flights) forget(key string, f *flight) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.m[key] == f {
		delete(fs.m, key)
	}
}
