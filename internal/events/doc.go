// Package events provides types and interfaces for an event-driven architecture.
//
// The sync engine publishes status changes, finished passes, conflicts and
// exhausted retries as events; subscribers register handlers with an emitter
// and never depend on the engine's types directly.
//
// The primary components are:
//   - Event: a typed notification with a JSON payload
//   - EventHandler / EventEmitter: the publish and subscribe interfaces
//   - ChannelHandler: a non-blocking handler that forwards events to a channel
package events
