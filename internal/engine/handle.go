package engine

import (
	"context"
	"sync"
)

const progressBuffer = 64

// JobHandle tracks one started job. Progress is closed after the terminal result is set.
type JobHandle struct {
	ID string

	progress chan ProgressEvent
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	state  State
	result Result
}

func newHandle(id string, cancel context.CancelFunc) *JobHandle {
	return &JobHandle{
		ID:       id,
		progress: make(chan ProgressEvent, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
		state:    Running,
	}
}

func (h *JobHandle) Progress() <-chan ProgressEvent { return h.progress }

func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Cancel requests termination. It is safe to call more than once and after completion.
func (h *JobHandle) Cancel() { h.cancel() }

func (h *JobHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Result returns the terminal result, or a Running placeholder before the job ends.
func (h *JobHandle) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Terminal() {
		return Result{JobID: h.ID, State: h.state}
	}
	return h.result
}

// Wait blocks until the job ends or ctx is done. Leaving early does not cancel the job.
func (h *JobHandle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// emit never blocks the progress reader; a full buffer drops the event.
func (h *JobHandle) emit(ev ProgressEvent) bool {
	select {
	case h.progress <- ev:
		return true
	default:
		return false
	}
}

func (h *JobHandle) finish(res Result) {
	h.mu.Lock()
	h.state = res.State
	h.result = res
	h.mu.Unlock()
	close(h.progress)
	close(h.done)
}
