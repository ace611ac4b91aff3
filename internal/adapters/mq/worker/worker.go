// Package worker applies queued games to the ratings in the background.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/pkg/logger"
	"github.com/okian/teamelo/pkg/metrics"
)

// Applier applies one game to the ratings.
type Applier interface {
	ProcessGame(ctx context.Context, g model.Game) (elo.Result, error)
}

// Forgetter is implemented by appliers that remember game ids; a game that
// fails to apply is forgotten so it can be submitted again.
type Forgetter interface {
	Unrecord(ctx context.Context, id int64)
}

// Queue defines how workers receive games.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Game
}

// ClosableQueue is a Queue the pool can close on shutdown and empty when
// shutdown is cut short.
type ClosableQueue interface {
	Queue
	Close() error
	Drain() []model.Game
}

// abandonGrace bounds the wait for cancelled workers before leftover games
// are forgotten.
const abandonGrace = time.Second

// Worker drains a queue until it closes.
type Worker interface {
	// Run applies games until the queue is closed and drained or ctx is done.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	processed atomic.Int64
	failed    atomic.Int64

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	return newWorker(queue, applier, newSettings(opts))
}

func newWorker(queue Queue, applier Applier, s settings) *InMemoryWorker {
	return &InMemoryWorker{
		queue:   queue,
		applier: applier,
		name:    s.name,
		done:    make(chan struct{}),
		logger:  s.logger.With(logger.String("worker", s.name)),
	}
}

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for g := range w.queue.Dequeue(ctx) {
		if err := w.apply(ctx, g); err != nil {
			w.logger.Error(ctx, "error applying game", logger.Error(err))
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of games applied by this worker.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of games this worker could not apply.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) apply(ctx context.Context, g model.Game) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if _, err := w.applier.ProcessGame(ctx, g); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		if f, ok := w.applier.(Forgetter); ok {
			f.Unrecord(ctx, g.ID())
		}
		return fmt.Errorf("failed to apply game %d: %w", g.ID(), err)
	}
	w.processed.Add(1)
	return nil
}

// Pool runs workers over one queue. Games are applied in arrival order only
// when the pool has a single worker.
type Pool struct {
	workers []*InMemoryWorker
	queue   ClosableQueue
	forget  Forgetter
	cancel  context.CancelFunc

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers; counts below one mean one.
func NewPool(workerCount int, queue ClosableQueue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	s := newSettings(opts)

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		cancel:  func() {},
		logger:  s.logger.With(logger.String("component", "ingest")),
	}
	p.forget, _ = applier.(Forgetter)
	for i := range p.workers {
		ws := s
		ws.name = s.name + "-" + strconv.Itoa(i)
		p.workers[i] = newWorker(queue, applier, ws)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker until Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Processed returns the games applied by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns the games no worker could apply.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and waits for the workers to apply what is left.
// When ctx ends first the workers are cancelled and the games left behind
// are dropped; a Forgetter applier forgets their ids so they can be resent.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	defer metrics.UpdateWorkerActiveCount(0)

	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			p.abandon(context.WithoutCancel(ctx))
			return err
		}
	}
	p.cancel()
	return nil
}

func (p *Pool) abandon(ctx context.Context) {
	p.cancel()
	wait, stop := context.WithTimeout(ctx, abandonGrace)
	defer stop()
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-wait.Done():
		}
	}

	dropped := p.queue.Drain()
	if len(dropped) == 0 {
		return
	}
	if p.forget != nil {
		for _, g := range dropped {
			p.forget.Unrecord(ctx, g.ID())
		}
	}
	p.logger.Warn(ctx, "queued games dropped", logger.Int("games", len(dropped)))
}
