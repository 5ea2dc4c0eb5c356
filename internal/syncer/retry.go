package syncer

import (
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/scry-sync/internal/cache"
)

// RetryEntry is a document waiting to be pushed again.
type RetryEntry struct {
	Ref cache.Ref `json:"ref"`
	// Attempt counts the retries already scheduled; the next retry waits
	// base * 2^Attempt.
	Attempt     int       `json:"attempt"`
	NextRetryAt time.Time `json:"next_retry_at"`
	LastError   string    `json:"last_error"`
	// Revision is the local revision that failed. A later local write
	// re-arms an exhausted document.
	Revision int64 `json:"revision"`
}

// RetryQueue schedules failed pushes with exponential backoff. It is safe
// for concurrent use.
type RetryQueue struct {
	mu          sync.Mutex
	base        time.Duration
	maxAttempts int
	entries     map[cache.Ref]*RetryEntry
	exhausted   map[cache.Ref]RetryEntry
}

// NewRetryQueue creates a queue whose first retry waits base and which gives
// up after maxAttempts retries.
func NewRetryQueue(base time.Duration, maxAttempts int) *RetryQueue {
	if base <= 0 {
		base = time.Second
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryQueue{
		base:        base,
		maxAttempts: maxAttempts,
		entries:     make(map[cache.Ref]*RetryEntry),
		exhausted:   make(map[cache.Ref]RetryEntry),
	}
}

// Delay returns the backoff before retry number attempt (0-based).
func (q *RetryQueue) Delay(attempt int) time.Duration {
	return q.base << uint(attempt)
}

// Fail records a failed push of ref at revision. It returns the scheduled
// entry, or reports exhausted when the document has used up its attempts;
// an exhausted document leaves the queue and is parked until its revision
// changes.
func (q *RetryQueue) Fail(ref cache.Ref, revision int64, cause error, now time.Time) (RetryEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[ref]
	if !ok {
		e = &RetryEntry{Ref: ref}
		q.entries[ref] = e
	} else {
		e.Attempt++
	}
	e.Revision = revision
	e.LastError = cause.Error()

	if e.Attempt >= q.maxAttempts {
		delete(q.entries, ref)
		parked := *e
		parked.NextRetryAt = time.Time{}
		q.exhausted[ref] = parked
		return parked, true
	}
	e.NextRetryAt = now.Add(q.Delay(e.Attempt))
	return *e, false
}

// Park marks ref as failed without retrying, for permanent failures.
func (q *RetryQueue) Park(ref cache.Ref, revision int64, cause error) RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, ref)
	e := RetryEntry{Ref: ref, Revision: revision, LastError: cause.Error()}
	q.exhausted[ref] = e
	return e
}

// Succeed forgets every record of ref.
func (q *RetryQueue) Succeed(ref cache.Ref) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, ref)
	delete(q.exhausted, ref)
}

// Waiting reports whether ref has a retry scheduled after now.
func (q *RetryQueue) Waiting(ref cache.Ref, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[ref]
	return ok && e.NextRetryAt.After(now)
}

// Parked reports whether ref is parked at revision. A parked document whose
// revision has moved on is released.
func (q *RetryQueue) Parked(ref cache.Ref, revision int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.exhausted[ref]
	if !ok {
		return false
	}
	if e.Revision != revision {
		delete(q.exhausted, ref)
		return false
	}
	return true
}

// Due returns the entries whose retry time has come, oldest first.
func (q *RetryQueue) Due(now time.Time) []RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []RetryEntry
	for _, e := range q.entries {
		if !e.NextRetryAt.After(now) {
			due = append(due, *e)
		}
	}
	sortEntries(due)
	return due
}

// Entries returns every scheduled entry.
func (q *RetryQueue) Entries() []RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]RetryEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

// Exhausted returns the parked entries.
func (q *RetryQueue) Exhausted() []RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]RetryEntry, 0, len(q.exhausted))
	for _, e := range q.exhausted {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Len returns the number of scheduled entries.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func sortEntries(entries []RetryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].NextRetryAt.Equal(entries[j].NextRetryAt) {
			return entries[i].NextRetryAt.Before(entries[j].NextRetryAt)
		}
		return entries[i].Ref.String() < entries[j].Ref.String()
	})
}
