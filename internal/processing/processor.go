// Package processing runs queue jobs on an in-process goroutine pool. It
// stands in for the asynq worker when no Redis is configured, executing the
// same handlers.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/queue"
)

// ErrQueueFull is returned when the buffer cannot take another job.
var ErrQueueFull = errors.New("processing queue full")

// ErrStopped is returned by Enqueue after the pool's context is done.
var ErrStopped = errors.New("processing pool stopped")

type item struct {
	job     queue.Job
	attempt int
}

// Pool consumes jobs with a fixed number of goroutines.
type Pool struct {
	queue   chan item
	workers int
	logger  *zap.Logger
	backoff time.Duration

	mu      sync.Mutex
	handler asynq.Handler
	ctx     context.Context
	timers  map[*time.Timer]struct{}
	pending int // queued or running
	wg      sync.WaitGroup
}

// New builds a Pool with queue capacity tied to worker count.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:   make(chan item, workers*64),
		workers: workers,
		logger:  logger,
		backoff: time.Second,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start launches worker goroutines that dispatch to handler until ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context, handler asynq.Handler) {
	p.mu.Lock()
	p.handler = handler
	p.ctx = ctx
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		for t := range p.timers {
			t.Stop()
		}
		p.timers = map[*time.Timer]struct{}{}
		p.mu.Unlock()
	}()
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Drain blocks until every queued job has run or ctx is done. It returns
// how many delayed jobs are still waiting on their timers.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		p.mu.Lock()
		pending, delayed := p.pending, len(p.timers)
		p.mu.Unlock()
		if pending == 0 {
			return delayed, nil
		}
		select {
		case <-ctx.Done():
			return delayed, ctx.Err()
		case <-tick.C:
		}
	}
}

// Enqueue queues a job, holding it in a timer until ProcessAt when that is
// in the future.
func (p *Pool) Enqueue(_ context.Context, job queue.Job) error {
	return p.schedule(item{job: job}, time.Until(job.ProcessAt))
}

func (p *Pool) schedule(it item, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil && p.ctx.Err() != nil {
		return ErrStopped
	}
	if delay > 0 {
		var t *time.Timer
		t = time.AfterFunc(delay, func() {
			p.mu.Lock()
			delete(p.timers, t)
			p.mu.Unlock()
			if err := p.submit(it); err != nil {
				p.logger.Warn("dropping delayed job", zap.String("task", it.job.Task.Type()), zap.Error(err))
			}
		})
		p.timers[t] = struct{}{}
		return nil
	}
	return p.submitLocked(it)
}

func (p *Pool) submit(it item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitLocked(it)
}

func (p *Pool) submitLocked(it item) error {
	select {
	case p.queue <- it:
		p.pending++
		return nil
	default:
		p.logger.Error("processor queue full", zap.String("task", it.job.Task.Type()))
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-p.queue:
			p.process(ctx, it)
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
		}
	}
}

func (p *Pool) process(ctx context.Context, it item) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	err := handler.ProcessTask(ctx, it.job.Task)
	if err == nil {
		return
	}
	log := p.logger.With(zap.String("task", it.job.Task.Type()), zap.Int("attempt", it.attempt+1), zap.Error(err))
	if errors.Is(err, asynq.SkipRetry) || it.attempt >= it.job.MaxRetry {
		log.Error("job failed")
		return
	}
	log.Warn("job failed, retrying")
	next := item{job: it.job, attempt: it.attempt + 1}
	if err := p.schedule(next, p.backoff*time.Duration(next.attempt)); err != nil {
		log.Error("requeue failed", zap.NamedError("requeue_error", err))
	}
}
