// Package task runs background work on a bounded pool of workers fed by an
// in-memory queue. The sync engine uses it to run forced sync passes without
// blocking the caller. Queued tasks are not persisted: dirty documents stay
// dirty in the local cache until a pass confirms them, so a lost task only
// delays work.
//
// Every task carries a key. While a task waits in the queue, another task
// with the same key is rejected with ErrAlreadyQueued, which collapses bursts
// of requests for the same user into one pass.
package task
