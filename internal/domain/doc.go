// Package domain contains the core flashcard entities: cards with their
// spaced-repetition fields, finalized study session records and per-user
// study profiles. Entities validate themselves once at the cache and remote
// boundaries; nothing in this package performs I/O.
package domain
