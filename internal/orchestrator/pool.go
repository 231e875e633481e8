package orchestrator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Go after Shutdown.
var ErrPoolClosed = errors.New("orchestrator: pool closed")

// Task is the body of a tracked job task. acquire blocks until the task holds a
// concurrency slot; it returns the context error if the task is cancelled first.
type Task func(ctx context.Context, acquire func() error)

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool runs one goroutine per job, bounded by a weighted semaphore. Every task
// is tracked so it can be joined or cancelled by id.
type Pool struct {
	sem  *semaphore.Weighted
	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*handle
	closed bool
	wg     sync.WaitGroup
}

// NewPool builds a pool admitting at most size concurrent slot holders.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &Pool{
		sem:   semaphore.NewWeighted(int64(size)),
		base:  base,
		stop:  stop,
		tasks: make(map[string]*handle),
	}
}

// Go starts fn for id right away. The task runs until fn returns; the slot is
// released automatically if fn acquired one. A second Go for a live id is
// rejected with false.
func (p *Pool) Go(id string, fn Task) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrPoolClosed
	}
	if _, ok := p.tasks[id]; ok {
		p.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(p.base)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	p.tasks[id] = h
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		held := false
		defer func() {
			if held {
				p.sem.Release(1)
			}
			cancel()
			p.mu.Lock()
			if p.tasks[id] == h {
				delete(p.tasks, id)
			}
			p.mu.Unlock()
			close(h.done)
			p.wg.Done()
		}()
		fn(ctx, func() error {
			if held {
				return nil
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			held = true
			return nil
		})
	}()
	return true, nil
}

// Wait blocks until the task for id finishes or ctx ends. Unknown ids return
// immediately.
func (p *Pool) Wait(ctx context.Context, id string) error {
	p.mu.Lock()
	h, ok := p.tasks[id]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the context of the task for id.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	h, ok := p.tasks[id]
	p.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

// Active returns the number of tracked tasks.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Shutdown rejects new tasks, cancels running ones and joins them all or
// returns ctx.Err() if ctx ends first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
