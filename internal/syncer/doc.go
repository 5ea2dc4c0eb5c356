// Package syncer reconciles the local cache with the remote store.
//
// An Engine pushes dirty documents, pulls remote changes and resolves
// conflicts according to its Strategy. Failed pushes wait in a RetryQueue
// with exponential backoff. A single Tick drives both the periodic pass and
// the retry queue from the injected clock, so tests can run every timing
// path without waiting on the wall clock.
//
// Local writes never wait for the engine: the cache is the source of truth,
// and the engine only moves a document's dirty flag downward once the remote
// store has accepted the exact revision it pushed.
package syncer
