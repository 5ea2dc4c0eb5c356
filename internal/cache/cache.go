package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/store"
)

// ErrPersist is returned when a mutation could not be written to the backend.
// The in-memory state keeps the mutation, so reads still observe it.
var ErrPersist = errors.New("failed to persist cache entry")

// Cache is the local store of every user's documents. It is safe for
// concurrent use by foreground callers and the sync engine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	backend Backend
	clock   clock.Clock
	logger  *slog.Logger
}

// Open loads every entry from backend. Entries that cannot be parsed are
// dropped from the backend and logged; they never fail the open.
func Open(ctx context.Context, backend Backend, clk clock.Clock, logger *slog.Logger) (*Cache, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache backend cannot be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		entries: make(map[string]*Entry),
		backend: backend,
		clock:   clk,
		logger:  logger.With(slog.String("component", "cache")),
	}

	raw, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	for key, value := range raw {
		if key == StatusKey {
			continue
		}
		if _, _, ok := parseKey(key); !ok {
			c.dropCorrupt(ctx, key, errors.New("unrecognized key"))
			continue
		}
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			c.dropCorrupt(ctx, key, err)
			continue
		}
		if entry.Docs == nil {
			entry.Docs = make(map[string]*Doc)
		}
		if entry.Version < 1 {
			entry.Version = 1
		}
		entry.IsDirty = false
		for _, d := range entry.Docs {
			if d.Dirty {
				entry.IsDirty = true
				break
			}
		}
		c.entries[key] = &entry
	}

	c.logger.Debug("cache opened", slog.Int("entries", len(c.entries)))
	return c, nil
}

func (c *Cache) dropCorrupt(ctx context.Context, key string, cause error) {
	c.logger.Warn("dropping corrupt cache entry",
		slog.String("key", key),
		slog.String("error", cause.Error()))
	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Error("failed to delete corrupt cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// persist writes the entry for key. Callers hold c.mu.
func (c *Cache) persist(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, key, err)
	}
	if err := c.backend.Save(ctx, key, data); err != nil {
		c.logger.Error("failed to persist cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s: %w", ErrPersist, key, err)
	}
	return nil
}

// entry returns the entry for collection and owner, creating it when create
// is set. Callers hold c.mu for writing when create is set.
func (c *Cache) entry(collection store.Collection, owner string, create bool) (string, *Entry) {
	key := Key(collection, owner)
	e, ok := c.entries[key]
	if !ok && create {
		e = newEntry(c.clock.Now())
		c.entries[key] = e
	}
	return key, e
}

// Get returns a copy of the entry for collection and owner.
func (c *Cache) Get(collection store.Collection, owner string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, e := c.entry(collection, owner, false)
	if e == nil {
		return Entry{}, false
	}
	return e.clone(), true
}

// Put replaces the entry's documents wholesale. Every document takes the
// given dirty flag; revisions continue from the previous entry so that an
// in-flight confirmation of a replaced document is rejected.
func (c *Cache) Put(ctx context.Context, collection store.Collection, owner string, docs map[string]Doc, isDirty bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(collection, owner, true)
	next := make(map[string]*Doc, len(docs))
	for id, d := range docs {
		d.Dirty = isDirty
		if prev, ok := e.Docs[id]; ok && d.Revision <= prev.Revision {
			d.Revision = prev.Revision + 1
		}
		next[id] = &d
	}
	e.Docs = next
	e.Timestamp = c.clock.Now()
	e.refreshDirty()
	return c.persist(ctx, key, e)
}

// MarkClean clears the dirty flag of every document in the entry, drops
// tombstones and bumps the entry version.
func (c *Cache) MarkClean(ctx context.Context, collection store.Collection, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(collection, owner, false)
	if e == nil {
		return nil
	}
	for id, d := range e.Docs {
		if d.Deleted {
			delete(e.Docs, id)
			continue
		}
		d.Dirty = false
	}
	e.refreshDirty()
	return c.persist(ctx, key, e)
}

// IsExpired reports whether entry is older than ttl.
func (c *Cache) IsExpired(entry Entry, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return c.clock.Now().Sub(entry.Timestamp) > ttl
}

// UpsertDoc writes a document locally and marks it dirty.
func (c *Cache) UpsertDoc(ctx context.Context, ref Ref, data json.RawMessage, updatedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(ref.Collection, ref.Owner, true)
	d, ok := e.Docs[ref.ID]
	if !ok {
		d = &Doc{}
		e.Docs[ref.ID] = d
	}
	d.Data = append(json.RawMessage(nil), data...)
	d.UpdatedAt = updatedAt
	d.Dirty = true
	d.Deleted = false
	d.Revision++
	e.IsDirty = true
	e.Timestamp = c.clock.Now()
	return c.persist(ctx, key, e)
}

// DeleteDoc tombstones a document so the deletion is pushed on the next
// sync. Deleting an unknown document is a no-op.
func (c *Cache) DeleteDoc(ctx context.Context, ref Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(ref.Collection, ref.Owner, false)
	if e == nil {
		return nil
	}
	d, ok := e.Docs[ref.ID]
	if !ok || d.Deleted {
		return nil
	}
	d.Deleted = true
	d.Dirty = true
	d.UpdatedAt = c.clock.Now()
	d.Revision++
	e.IsDirty = true
	e.Timestamp = c.clock.Now()
	return c.persist(ctx, key, e)
}

// ConfirmDoc records that the remote store now holds revision of the
// document at remoteVersion. The dirty flag is cleared only if no local write
// happened since that revision was read; a confirmed tombstone is removed.
// It reports whether the document became clean.
func (c *Cache) ConfirmDoc(ctx context.Context, ref Ref, revision int64, remoteVersion int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(ref.Collection, ref.Owner, false)
	if e == nil {
		return false, nil
	}
	d, ok := e.Docs[ref.ID]
	if !ok {
		return false, nil
	}

	d.RemoteVersion = remoteVersion
	clean := d.Revision == revision
	if clean {
		if d.Deleted {
			delete(e.Docs, ref.ID)
		} else {
			d.Dirty = false
		}
	}
	e.refreshDirty()
	return clean, c.persist(ctx, key, e)
}

// AcceptRemote overwrites the local copy with the remote document and marks
// it clean, unless a local write happened since revision was read.
func (c *Cache) AcceptRemote(ctx context.Context, ref Ref, remote store.Document, revision int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(ref.Collection, ref.Owner, true)
	d, ok := e.Docs[ref.ID]
	if ok && d.Revision != revision {
		return false, nil
	}
	if !ok {
		d = &Doc{}
		e.Docs[ref.ID] = d
	}
	d.Data = append(json.RawMessage(nil), remote.Data...)
	d.UpdatedAt = remote.UpdatedAt
	d.RemoteVersion = remote.Version
	d.Dirty = false
	d.Deleted = false
	d.Revision++
	e.refreshDirty()
	return true, c.persist(ctx, key, e)
}

// ForgetDoc removes a document from the cache without recording a deletion,
// unless a local write happened since revision was read. A negative revision
// forgets unconditionally.
func (c *Cache) ForgetDoc(ctx context.Context, ref Ref, revision int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(ref.Collection, ref.Owner, false)
	if e == nil {
		return false, nil
	}
	d, ok := e.Docs[ref.ID]
	if !ok {
		return false, nil
	}
	if revision >= 0 && d.Revision != revision {
		return false, nil
	}
	delete(e.Docs, ref.ID)
	e.refreshDirty()
	return true, c.persist(ctx, key, e)
}

// ApplyRemote merges documents pulled from the remote store. Dirty local
// documents are never overwritten. With prune set, the pull is taken as the
// complete remote collection: clean local documents that were confirmed
// before but are missing remotely are removed. It returns the number of
// documents changed.
func (c *Cache) ApplyRemote(ctx context.Context, collection store.Collection, owner string, docs []store.Document, prune bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, e := c.entry(collection, owner, true)
	changed := 0
	seen := make(map[string]struct{}, len(docs))

	for _, remote := range docs {
		seen[remote.ID] = struct{}{}
		d, ok := e.Docs[remote.ID]
		switch {
		case !ok:
			e.Docs[remote.ID] = &Doc{
				Data:          append(json.RawMessage(nil), remote.Data...),
				UpdatedAt:     remote.UpdatedAt,
				RemoteVersion: remote.Version,
				Revision:      1,
			}
			changed++
		case d.Dirty:
			continue
		case d.RemoteVersion != remote.Version:
			d.Data = append(json.RawMessage(nil), remote.Data...)
			d.UpdatedAt = remote.UpdatedAt
			d.RemoteVersion = remote.Version
			d.Revision++
			changed++
		}
	}

	if prune {
		for id, d := range e.Docs {
			if _, ok := seen[id]; ok || d.Dirty || d.RemoteVersion == 0 {
				continue
			}
			delete(e.Docs, id)
			changed++
		}
	}

	e.Timestamp = c.clock.Now()
	e.refreshDirty()
	return changed, c.persist(ctx, key, e)
}

// Touch refreshes the entry timestamp, marking its contents as fresh.
func (c *Cache) Touch(ctx context.Context, collection store.Collection, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, e := c.entry(collection, owner, true)
	e.Timestamp = c.clock.Now()
	return c.persist(ctx, key, e)
}

// DirtyDocs returns snapshots of every dirty document of owner, or of every
// owner when owner is empty, in a stable order.
func (c *Cache) DirtyDocs(owner string) []DirtyDoc {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []DirtyDoc
	for key, e := range c.entries {
		if !e.IsDirty {
			continue
		}
		collection, entryOwner, _ := parseKey(key)
		if owner != "" && entryOwner != owner {
			continue
		}
		for id, d := range e.Docs {
			if d.Dirty {
				out = append(out, DirtyDoc{
					Ref: Ref{Collection: collection, Owner: entryOwner, ID: id},
					Doc: *d.clone(),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out
}

// Doc returns a snapshot of a single document.
func (c *Cache) Doc(ref Ref) (Doc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, e := c.entry(ref.Collection, ref.Owner, false)
	if e == nil {
		return Doc{}, false
	}
	d, ok := e.Docs[ref.ID]
	if !ok {
		return Doc{}, false
	}
	return *d.clone(), true
}

// PendingCount returns the number of dirty documents of owner, or of every
// owner when owner is empty.
func (c *Cache) PendingCount(owner string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for key, e := range c.entries {
		if !e.IsDirty {
			continue
		}
		if owner != "" {
			if _, entryOwner, _ := parseKey(key); entryOwner != owner {
				continue
			}
		}
		for _, d := range e.Docs {
			if d.Dirty {
				n++
			}
		}
	}
	return n
}

// Owners returns every owner with at least one entry, sorted.
func (c *Cache) Owners() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[string]struct{})
	for key := range c.entries {
		if _, owner, ok := parseKey(key); ok {
			set[owner] = struct{}{}
		}
	}
	owners := make([]string, 0, len(set))
	for owner := range set {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// SaveStatus persists v as JSON under StatusKey.
func (c *Cache) SaveStatus(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, StatusKey, err)
	}
	if err := c.backend.Save(ctx, StatusKey, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, StatusKey, err)
	}
	return nil
}

// LoadStatus decodes the persisted status into v. It reports false when no
// status was saved or the saved value is unreadable.
func (c *Cache) LoadStatus(ctx context.Context, v any) (bool, error) {
	data, ok, err := c.backend.Get(ctx, StatusKey)
	if err != nil {
		return false, fmt.Errorf("failed to load sync status: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("ignoring unreadable sync status", slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}
