package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter is a simple implementation of the EventEmitter interface
// that stores registered handlers in memory and dispatches events to them
// synchronously, in registration order.
type InMemoryEventEmitter struct {
	handlers map[int]EventHandler
	order    []int
	nextID   int
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		handlers: make(map[int]EventHandler),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events and returns a
// function that removes it again.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	e.order = append(e.order, id)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.handlers[id]; !ok {
			return
		}
		delete(e.handlers, id)
		for i, registered := range e.order {
			if registered == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// EmitEvent publishes the given event to all registered handlers.
// If any handler returns an error, the event will still be sent to all other handlers,
// and the first error encountered will be returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.order))
	for _, id := range e.order {
		handlers = append(handlers, e.handlers[id])
	}
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// ChannelHandler delivers events to a buffered channel without ever blocking
// the emitter. When the buffer is full the oldest pending event is dropped,
// so a slow reader always ends up with the most recent events.
type ChannelHandler struct {
	mu     sync.Mutex
	ch     chan *Event
	types  map[Type]struct{}
	closed bool
}

// NewChannelHandler creates a handler with the given buffer size that only
// forwards the listed event types, or every type when none are listed.
func NewChannelHandler(buffer int, types ...Type) *ChannelHandler {
	if buffer < 1 {
		buffer = 1
	}
	h := &ChannelHandler{ch: make(chan *Event, buffer)}
	if len(types) > 0 {
		h.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			h.types[t] = struct{}{}
		}
	}
	return h
}

// Events returns the receive side of the handler's channel.
func (h *ChannelHandler) Events() <-chan *Event {
	return h.ch
}

// HandleEvent implements EventHandler.
func (h *ChannelHandler) HandleEvent(_ context.Context, event *Event) error {
	if h.types != nil {
		if _, ok := h.types[event.Type]; !ok {
			return nil
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for {
		select {
		case h.ch <- event:
			return nil
		default:
		}
		select {
		case <-h.ch:
		default:
		}
	}
}

// Close closes the channel. Later events are discarded.
func (h *ChannelHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.ch)
	}
}
