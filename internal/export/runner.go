package export

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/san-kum/replayvis/internal/caseio"
)

// Callbacks receive the lifecycle of one job. They run on the job's
// goroutines while the runner lock is held, so they must not call back into
// the Runner. Callbacks of a superseded job are never invoked.
type Callbacks struct {
	OnProgress func(id uuid.UUID, percent float64)
	OnComplete func(id uuid.UUID, anim *Animation)
	OnError    func(id uuid.UUID, err error)
}

type job struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner runs at most one GIF export at a time. Each job works on its own
// copy of the case, so later edits never leak into a running export.
type Runner struct {
	animator *Animator

	mu      sync.Mutex
	current *job
}

func NewRunner(animator *Animator) *Runner {
	return &Runner{animator: animator}
}

// Start launches an export unless one is already running, in which case it
// returns ErrJobInFlight.
func (r *Runner) Start(ctx context.Context, c caseio.Case, maxTurn int, cb Callbacks) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return uuid.Nil, ErrJobInFlight
	}
	return r.launch(ctx, c, maxTurn, cb), nil
}

// Restart cancels the running export, if any, and launches a new one. The
// old job's callbacks are dropped from this point on.
func (r *Runner) Restart(ctx context.Context, c caseio.Case, maxTurn int, cb Callbacks) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.cancel()
		r.current = nil
	}
	return r.launch(ctx, c, maxTurn, cb)
}

// Cancel stops the running export without notifying its callbacks.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.cancel()
		r.current = nil
	}
}

// Busy reports whether an export is in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Current returns the id of the running export.
func (r *Runner) Current() (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return uuid.Nil, false
	}
	return r.current.id, true
}

// Wait blocks until the job with id has finished, or returns at once when no
// such job is running.
func (r *Runner) Wait(id uuid.UUID) {
	r.mu.Lock()
	j := r.current
	r.mu.Unlock()
	if j != nil && j.id == id {
		<-j.done
	}
}

// launch must be called with r.mu held.
func (r *Runner) launch(ctx context.Context, c caseio.Case, maxTurn int, cb Callbacks) uuid.UUID {
	jctx, cancel := context.WithCancel(ctx)
	j := &job{id: uuid.New(), cancel: cancel, done: make(chan struct{})}
	r.current = j
	snapshot := c

	go func() {
		defer close(j.done)
		defer cancel()

		anim, err := r.run(jctx, snapshot, maxTurn, func(p float64) {
			r.deliver(j, func() {
				if cb.OnProgress != nil {
					cb.OnProgress(j.id, p)
				}
			}, false)
		})

		r.deliver(j, func() {
			switch {
			case err != nil && cb.OnError != nil:
				cb.OnError(j.id, err)
			case err == nil && cb.OnComplete != nil:
				cb.OnComplete(j.id, anim)
			}
		}, true)
	}()
	return j.id
}

// run is Animator.Export with a panic reported as ErrPanic.
func (r *Runner) run(ctx context.Context, c caseio.Case, maxTurn int, progress func(float64)) (anim *Animation, err error) {
	defer func() {
		if v := recover(); v != nil {
			anim, err = nil, fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	return r.animator.Export(ctx, c, maxTurn, progress)
}

// deliver runs fn only while j is still the current job. A final delivery
// also retires the job so the trigger is available again.
func (r *Runner) deliver(j *job, fn func(), final bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != j {
		return
	}
	if final {
		r.current = nil
	}
	fn()
}
