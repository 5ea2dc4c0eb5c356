package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/scry-sync/internal/events"
)

// updateStatus applies mutate to the status, recomputes the derived fields
// and publishes the result when anything changed.
func (e *Engine) updateStatus(ctx context.Context, mutate func(*Status)) {
	e.statusMu.Lock()
	prev := e.status.clone()
	if mutate != nil {
		mutate(&e.status)
	}
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	e.status.SyncInProgress = active > 0
	e.status.IsOnline = e.conn.Online()
	e.status.PendingChanges = e.cache.PendingCount("")
	e.status.RetryCount = e.retries.Len()

	changed := !e.status.equal(prev)
	var (
		seq      uint64
		snapshot Status
	)
	if changed {
		e.statusSeq++
		seq = e.statusSeq
		snapshot = e.status.clone()
	}
	e.statusMu.Unlock()

	if changed {
		e.publishStatus(ctx, seq, snapshot)
	}
}

// publishStatus persists and emits snapshot unless a newer one went out
// already.
func (e *Engine) publishStatus(ctx context.Context, seq uint64, snapshot Status) {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	if seq <= e.publishedSeq {
		return
	}
	e.publishedSeq = seq

	if err := e.cache.SaveStatus(ctx, snapshot); err != nil {
		e.logger.Warn("failed to persist sync status", slog.String("error", err.Error()))
	}
	e.emit(ctx, events.TypeStatusChanged, snapshot)
}

// Status returns the current aggregate status.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status.clone()
}

// Subscribe returns a channel that receives the current status at once and
// every change after it. A slow reader only misses intermediate values; the
// latest status is always delivered. The returned function ends the
// subscription and closes the channel.
func (e *Engine) Subscribe() (<-chan Status, func()) {
	h, unregister := e.Events(events.TypeStatusChanged)
	out := make(chan Status, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		deliverLatest(out, e.Status())
		for {
			select {
			case <-done:
				return
			case ev, ok := <-h.Events():
				if !ok {
					return
				}
				var s Status
				if err := ev.UnmarshalPayload(&s); err != nil {
					e.logger.Warn("dropping undecodable status event", slog.String("error", err.Error()))
					continue
				}
				deliverLatest(out, s)
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unregister()
			close(done)
		})
	}
}

// deliverLatest sends s, replacing an unread older value.
func deliverLatest(out chan Status, s Status) {
	for {
		select {
		case out <- s:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// Events registers a non-blocking handler for the given event types, or all
// of them when none are given. The returned function unregisters it and
// closes its channel.
func (e *Engine) Events(types ...events.Type) (*events.ChannelHandler, func()) {
	h := events.NewChannelHandler(64, types...)
	unregister := e.emitter.RegisterHandler(h)
	return h, func() {
		unregister()
		h.Close()
	}
}

func (e *Engine) emit(ctx context.Context, eventType events.Type, payload any) {
	ev, err := events.NewEvent(eventType, payload, e.clock.Now())
	if err != nil {
		e.logger.Error("failed to build event",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()))
		return
	}
	if err := e.emitter.EmitEvent(ctx, ev); err != nil {
		e.logger.Debug("event handler failed",
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()))
	}
}
