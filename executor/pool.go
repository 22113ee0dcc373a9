// Package executor implements the single-consumer task runners each
// session is bound to for its lifetime, and the pool the ingress
// dispatcher draws them from.
//
// Each Executor owns exactly one goroutine; all state mutation on the
// session it is bound to happens there, mirroring the teacher engine's
// rule that every KCP operation runs exclusively on that connection's
// own loop goroutine.
package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/YuukiPS/grasskcpper-v2/session"
)

// ErrRejected is returned by Submit once an Executor has stopped
// accepting work, whether because it is draining, shut down, or
// terminated.
var ErrRejected = errors.New("executor: submit rejected")

// Executor is a single-consumer task runner. Tasks submitted to it run
// strictly in submission order on its own goroutine.
type Executor struct {
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	active  atomic.Bool
}

func newExecutor(queueDepth int) *Executor {
	e := &Executor{
		tasks:   make(chan func(), queueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	e.active.Store(true)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.stopped)
	for {
		select {
		case task := <-e.tasks:
			task()
		case <-e.done:
			// Drain whatever is already queued before exiting, so a
			// task submitted just before shutdown still runs.
			for {
				select {
				case task := <-e.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// IsActive reports whether the executor still accepts work.
func (e *Executor) IsActive() bool {
	return e.active.Load()
}

// Submit queues task to run on this executor's goroutine. It can race
// with stop: the active check and the channel send are not atomic
// together, so a caller that checked IsActive just before this call
// must still be ready to handle ErrRejected.
func (e *Executor) Submit(task func()) error {
	if !e.active.Load() {
		return ErrRejected
	}
	select {
	case e.tasks <- task:
		return nil
	case <-e.done:
		return ErrRejected
	}
}

// stop marks the executor inactive and signals its goroutine to drain
// and exit.
func (e *Executor) stop() {
	if e.active.CompareAndSwap(true, false) {
		close(e.done)
	}
}

var _ session.Executor = (*Executor)(nil)

// Pool hands out executors round-robin and coordinates their shutdown
// with an errgroup, so Close waits for every executor's goroutine to
// actually exit rather than just signaling them.
type Pool struct {
	mu         sync.Mutex
	executors  []*Executor
	next       int
	queueDepth int
}

// Config controls pool sizing.
type Config struct {
	// Size is the number of executors in the pool. Must be >= 1.
	Size int
	// QueueDepth bounds each executor's pending-task queue.
	QueueDepth int
}

// NewPool creates a Pool of cfg.Size executors, each immediately
// running its consumer goroutine.
func NewPool(cfg Config) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}

	p := &Pool{queueDepth: depth}
	p.executors = make([]*Executor, size)
	for i := range p.executors {
		p.executors[i] = newExecutor(depth)
	}
	return p
}

// Acquire returns the next executor in round-robin order. Multiple
// sessions share an executor; the only guarantee this core needs is
// that a given session is bound to exactly one executor for its
// lifetime, not that executors are exclusive to a single session.
func (p *Pool) Acquire() session.Executor {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.executors[p.next]
	p.next = (p.next + 1) % len(p.executors)
	return e
}

// Close stops every executor in the pool and waits for their consumer
// goroutines to drain and exit.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	executors := append([]*Executor(nil), p.executors...)
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range executors {
		e := e
		g.Go(func() error {
			e.stop()
			select {
			case <-e.stopped:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

var _ session.ExecutorPool = (*Pool)(nil)
