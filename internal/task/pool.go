package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Workers is the number of concurrent workers; values below 1 mean 1.
	Workers int
}

// Pool runs tasks taken from a Source on a fixed number of goroutines.
type Pool struct {
	source  Source
	workers int
	logger  *slog.Logger

	// ctx is passed to every task and canceled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onError func(Task, error)

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a pool. Nothing runs until Start.
func NewPool(source Source, cfg PoolConfig, logger *slog.Logger) *Pool {
	workers := cfg.Workers
	if workers < 1 {
		logger.Warn("invalid worker count, using 1", slog.Int("configured", cfg.Workers))
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		source:  source,
		workers: workers,
		logger:  logger.With(slog.String("component", "worker_pool")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnError registers fn to be called with every failed or panicking task.
// It must be called before Start.
func (p *Pool) OnError(fn func(Task, error)) {
	p.onError = fn
}

// Start launches the workers. Later calls have no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", slog.Int("workers", p.workers))
		for i := range p.workers {
			p.wg.Add(1)
			go p.work(i)
		}
	})
}

// Stop cancels running tasks and waits for every worker to return. Tasks
// still waiting in the source are left there.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		t, ok := p.source.Next(p.ctx)
		if !ok {
			return
		}
		p.run(t, id)
	}
}

// run executes t, turning a panic into an error so one bad task cannot take
// a worker down.
func (p *Pool) run(t Task, workerID int) {
	log := p.logger.With(
		slog.String("task_id", t.ID().String()),
		slog.String("task_type", t.Type()),
		slog.Int("worker_id", workerID),
	)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		return t.Execute(p.ctx)
	}()

	if err != nil {
		log.Error("task failed", slog.String("error", err.Error()))
		if p.onError != nil {
			p.onError(t, err)
		}
		return
	}
	log.Debug("task finished")
}
