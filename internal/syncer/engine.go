package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/events"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/task"
)

// Config tunes an Engine.
type Config struct {
	Strategy Strategy
	// Interval between periodic passes while online.
	Interval time.Duration
	// TickInterval is how often Start drives Tick.
	TickInterval time.Duration
	// RetryBaseDelay is the wait before the first retry; every further
	// retry waits twice as long.
	RetryBaseDelay   time.Duration
	MaxRetryAttempts int
	// Concurrency bounds how many users an all-user pass syncs at once.
	Concurrency int
	Workers     int
	QueueSize   int
	HistorySize int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyMerge,
		Interval:         5 * time.Minute,
		TickInterval:     5 * time.Second,
		RetryBaseDelay:   time.Second,
		MaxRetryAttempts: 5,
		Concurrency:      4,
		Workers:          2,
		QueueSize:        64,
		HistorySize:      50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	return c
}

// Deps are the collaborators of an Engine. Cache and Remote are required.
type Deps struct {
	Cache  *cache.Cache
	Remote store.RemoteStore
	Clock  clock.Clock
	// Connectivity defaults to a switch that is always online.
	Connectivity clock.Connectivity
	Emitter      *events.InMemoryEventEmitter
	Logger       *slog.Logger
}

// Engine synchronizes the local cache with the remote store.
type Engine struct {
	cfg     Config
	cache   *cache.Cache
	remote  store.RemoteStore
	clock   clock.Clock
	conn    clock.Connectivity
	emitter *events.InMemoryEventEmitter
	logger  *slog.Logger
	retries *RetryQueue
	queue   *task.Queue
	pool    *task.Pool

	mu           sync.Mutex
	inflight     map[string]struct{}
	rerun        map[string]struct{}
	active       int
	nextPeriodic time.Time
	history      []Session
	conflicts    map[cache.Ref]Conflict

	statusMu  sync.Mutex
	status    Status
	statusSeq uint64

	publishMu    sync.Mutex
	publishedSeq uint64

	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	scheduler   *gocron.Scheduler
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates an Engine. The persisted status, if any, seeds the last sync
// time and error.
func New(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	if deps.Cache == nil {
		return nil, errors.New("sync engine requires a cache")
	}
	if deps.Remote == nil {
		return nil, errors.New("sync engine requires a remote store")
	}
	if cfg.Strategy != "" {
		if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Connectivity == nil {
		deps.Connectivity = clock.NewSwitch(true)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewInMemoryEventEmitter(deps.Logger)
	}

	log := deps.Logger.With(slog.String("component", "sync_engine"))
	queue := task.NewQueue(cfg.QueueSize, log)
	e := &Engine{
		cfg:          cfg,
		cache:        deps.Cache,
		remote:       deps.Remote,
		clock:        deps.Clock,
		conn:         deps.Connectivity,
		emitter:      deps.Emitter,
		logger:       log,
		retries:      NewRetryQueue(cfg.RetryBaseDelay, cfg.MaxRetryAttempts),
		queue:        queue,
		pool:         task.NewPool(queue, task.PoolConfig{Workers: cfg.Workers}, log),
		inflight:     make(map[string]struct{}),
		rerun:        make(map[string]struct{}),
		conflicts:    make(map[cache.Ref]Conflict),
		nextPeriodic: deps.Clock.Now().Add(cfg.Interval),
	}
	e.pool.OnError(func(t task.Task, err error) {
		e.logger.Warn("background sync failed",
			slog.String("task_id", t.ID().String()),
			slog.String("error", err.Error()))
	})

	var persisted Status
	found, err := e.cache.LoadStatus(ctx, &persisted)
	if err != nil {
		e.logger.Warn("could not load persisted sync status", slog.String("error", err.Error()))
	}
	if found {
		e.status.LastSyncTimestamp = persisted.LastSyncTimestamp
		e.status.LastSyncError = persisted.LastSyncError
	}
	e.status.IsOnline = e.conn.Online()
	e.status.PendingChanges = e.cache.PendingCount("")
	return e, nil
}

// Start launches the background workers, the connectivity watcher and the
// periodic Tick driver. When online it also schedules an immediate pass.
func (e *Engine) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel

		e.pool.Start()

		changes, unsubscribe := e.conn.Subscribe()
		e.unsubscribe = unsubscribe
		e.wg.Add(1)
		go e.watchConnectivity(runCtx, changes)

		e.scheduler = gocron.NewScheduler(time.UTC)
		_, err = e.scheduler.Every(e.cfg.TickInterval).SingletonMode().Do(func() {
			if tickErr := e.Tick(runCtx); tickErr != nil && !errors.Is(tickErr, context.Canceled) {
				e.logger.Warn("sync tick failed", slog.String("error", tickErr.Error()))
			}
		})
		if err != nil {
			err = fmt.Errorf("failed to schedule sync tick: %w", err)
			return
		}
		e.scheduler.StartAsync()

		e.logger.Info("sync engine started",
			slog.String("strategy", string(e.cfg.Strategy)),
			slog.Duration("interval", e.cfg.Interval),
			slog.Duration("tick_interval", e.cfg.TickInterval))

		if e.conn.Online() {
			if syncErr := e.ForceSync(""); syncErr != nil {
				e.logger.Warn("could not schedule initial sync", slog.String("error", syncErr.Error()))
			}
		}
	})
	return err
}

// Stop cancels the periodic driver, the connectivity watcher and every
// background pass, and waits for them to return.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		if e.scheduler != nil {
			e.scheduler.Stop()
		}
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		e.wg.Wait()
		e.pool.Stop()
		e.queue.Close()
		e.logger.Info("sync engine stopped")
	})
}

func (e *Engine) watchConnectivity(ctx context.Context, changes <-chan bool) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-changes:
			if !ok {
				return
			}
			e.logger.Info("connectivity changed", slog.Bool("online", online))
			e.updateStatus(ctx, nil)
			if online {
				if err := e.ForceSync(""); err != nil {
					e.logger.Warn("could not schedule sync after reconnect", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Tick runs one iteration of the scheduler loop at the clock's current
// time: the periodic pass when it is due, then every due retry. It does
// nothing while offline.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.clock.Now()
	if !e.conn.Online() {
		e.updateStatus(ctx, nil)
		return nil
	}

	e.mu.Lock()
	periodic := !now.Before(e.nextPeriodic)
	if periodic {
		e.nextPeriodic = now.Add(e.cfg.Interval)
	}
	e.mu.Unlock()

	var err error
	if periodic {
		_, err = e.PerformSync(ctx, "")
	}
	e.drainRetries(ctx, now)
	return err
}

// ForceSync schedules a background pass for userID, or for every user when
// userID is empty, and returns without waiting for it. A pass already
// queued for the same scope absorbs the request.
func (e *Engine) ForceSync(userID string) error {
	t, err := task.NewSyncTask(userID, e.runTask)
	if err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	if err := e.queue.Enqueue(t); err != nil {
		if errors.Is(err, task.ErrAlreadyQueued) {
			return nil
		}
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	return nil
}

func (e *Engine) runTask(ctx context.Context, userID string) error {
	_, err := e.PerformSync(ctx, userID)
	if errors.Is(err, ErrOffline) {
		return nil
	}
	return err
}

// NotifyLocalChange is called after every local write for userID. It
// refreshes the pending count and, when online, schedules a background
// pass. A write that lands during a running pass schedules a follow-up pass.
func (e *Engine) NotifyLocalChange(ctx context.Context, userID string) {
	e.updateStatus(ctx, nil)
	if !e.conn.Online() {
		return
	}

	e.mu.Lock()
	if _, running := e.inflight[userID]; running {
		e.rerun[userID] = struct{}{}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.ForceSync(userID); err != nil {
		e.logger.Debug("could not schedule sync for local change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}

// acquire marks a pass for userID as running. It reports false when one
// already is.
func (e *Engine) acquire(ctx context.Context, userID string) bool {
	e.mu.Lock()
	if _, running := e.inflight[userID]; running {
		e.mu.Unlock()
		return false
	}
	e.inflight[userID] = struct{}{}
	e.active++
	e.mu.Unlock()

	e.updateStatus(ctx, nil)
	return true
}

func (e *Engine) release(ctx context.Context, userID string) {
	e.mu.Lock()
	delete(e.inflight, userID)
	e.active--
	_, rerun := e.rerun[userID]
	delete(e.rerun, userID)
	e.mu.Unlock()

	e.updateStatus(ctx, nil)
	if rerun && e.conn.Online() {
		if err := e.ForceSync(userID); err != nil {
			e.logger.Debug("could not schedule follow-up sync",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}
}

// History returns the most recent sync sessions, oldest first.
func (e *Engine) History() []Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Session, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) recordSession(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, s)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append([]Session(nil), e.history[over:]...)
	}
}

// RetryEntries returns the documents waiting for a retry.
func (e *Engine) RetryEntries() []RetryEntry {
	return e.retries.Entries()
}

// Exhausted returns the documents that stopped being retried, either after
// MaxRetryAttempts or because the failure was permanent. They stay dirty
// and are retried again after the next local write.
func (e *Engine) Exhausted() []RetryEntry {
	return e.retries.Exhausted()
}

// Strategy returns the configured conflict strategy.
func (e *Engine) Strategy() Strategy {
	return e.cfg.Strategy
}
