package pipeline

import (
	"context"
	"errors"
	"sync"

	apperrors "notebot/pkg/errors"
)

// Submit rejections. A rejected job was never handed to the run function.
var (
	ErrQueueFull   = errors.New("pipeline queue is full")
	ErrPoolStopped = errors.New("pipeline is shutting down")
)

// RunFunc executes one job.
type RunFunc func(context.Context, Job) (*Result, error)

type outcome struct {
	result *Result
	err    error
}

type task struct {
	job  Job
	done chan outcome
}

// Pool bounds the number of pipeline runs in flight. Runs execute under the
// pool's context, so a caller that stops waiting does not cancel the run.
type Pool struct {
	workers   int
	taskQueue chan *task
	run       RunFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, run RunFunc) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers:   workers,
		taskQueue: make(chan *task, queueSize),
		run:       run,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues job and waits for its outcome. It fails immediately when
// the queue is full or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, job Job) (*Result, error) {
	t := &task{job: job, done: make(chan outcome, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, apperrors.Wrap(ErrPoolStopped, apperrors.KindInternal, ErrPoolStopped.Error())
	}
	select {
	case p.taskQueue <- t:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		return nil, apperrors.Wrap(ErrQueueFull, apperrors.KindInternal, ErrQueueFull.Error())
	}

	select {
	case out := <-t.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.KindInternal, "stopped waiting for pipeline run")
	}
}

// Stop stops accepting jobs, lets queued jobs drain and waits for workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	// Jobs dequeued after ctx is cancelled still reach run, which fails them
	// at their first stage.
	for t := range p.taskQueue {
		result, err := p.run(ctx, t.job)
		t.done <- outcome{result: result, err: err}
	}
}
