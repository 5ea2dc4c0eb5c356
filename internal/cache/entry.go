package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/scry-sync/internal/store"
)

const keyPrefix = "scry"

// StatusKey is the durable key holding the aggregate sync status.
const StatusKey = keyPrefix + ":sync_status"

// DefaultTTL is how long a cached entry counts as fresh.
const DefaultTTL = 30 * time.Minute

// Doc is one cached document.
type Doc struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
	// RemoteVersion is the remote version the local copy is based on; 0 means
	// the document has never been confirmed by the remote store.
	RemoteVersion int   `json:"remote_version"`
	Dirty         bool  `json:"dirty"`
	Deleted       bool  `json:"deleted"`
	Revision      int64 `json:"revision"`
}

func (d *Doc) clone() *Doc {
	c := *d
	if d.Data != nil {
		c.Data = append(json.RawMessage(nil), d.Data...)
	}
	return &c
}

// Entry holds every cached document of one collection for one owner.
type Entry struct {
	Docs      map[string]*Doc `json:"docs"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
	IsDirty   bool            `json:"is_dirty"`
}

func newEntry(now time.Time) *Entry {
	return &Entry{Docs: make(map[string]*Doc), Timestamp: now, Version: 1}
}

func (e *Entry) clone() Entry {
	c := *e
	c.Docs = make(map[string]*Doc, len(e.Docs))
	for id, d := range e.Docs {
		c.Docs[id] = d.clone()
	}
	return c
}

// refreshDirty recomputes IsDirty and bumps Version when the entry becomes clean.
func (e *Entry) refreshDirty() {
	wasDirty := e.IsDirty
	e.IsDirty = false
	for _, d := range e.Docs {
		if d.Dirty {
			e.IsDirty = true
			return
		}
	}
	if wasDirty {
		e.Version++
	}
}

// LiveIDs returns the IDs of documents that are not deleted, sorted.
func (e Entry) LiveIDs() []string {
	ids := make([]string, 0, len(e.Docs))
	for id, d := range e.Docs {
		if !d.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Decode unmarshals every live document of entry into T, ordered by ID.
func Decode[T any](entry Entry) ([]T, error) {
	ids := entry.LiveIDs()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := json.Unmarshal(entry.Docs[id].Data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Ref addresses one document.
type Ref struct {
	Collection store.Collection
	Owner      string
	ID         string
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Collection, r.Owner, r.ID)
}

// DirtyDoc is a snapshot of a document awaiting sync.
type DirtyDoc struct {
	Ref
	Doc Doc
}

// Key returns the durable key of the entry for collection and owner.
func Key(collection store.Collection, owner string) string {
	return keyPrefix + ":" + string(collection) + ":" + owner
}

// parseKey splits an entry key. It reports false for keys that are not entry
// keys, including StatusKey.
func parseKey(key string) (store.Collection, string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return "", "", false
	}
	collection := store.Collection(parts[1])
	if !collection.Valid() || parts[2] == "" {
		return "", "", false
	}
	return collection, parts[2], true
}
