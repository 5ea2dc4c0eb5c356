package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/store"
)

// Op names a RemoteStore method for failure injection and call counting.
type Op string

// RemoteStore operations.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpFind   Op = "find"
	OpQuery  Op = "query"
)

type injectedFailure struct {
	op        Op
	id        string
	err       error
	remaining int // <= 0 means forever
}

// RemoteStore is an in-memory store.RemoteStore. Failures can be injected
// per operation and every call is counted, so tests can assert that a code
// path never reached the network.
type RemoteStore struct {
	mu       sync.Mutex
	docs     map[store.Collection]map[string]store.Document
	calls    map[Op]int
	failures []*injectedFailure
	clock    clock.Clock

	// Hook, if set, runs before every call with the store unlocked. A non-nil
	// error fails the call. Tests use it to interleave local writes with an
	// in-flight sync.
	Hook func(op Op, collection store.Collection, id string) error
}

var _ store.RemoteStore = (*RemoteStore)(nil)

// NewRemoteStore creates an empty store. A nil clock uses the system clock.
func NewRemoteStore(clk clock.Clock) *RemoteStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &RemoteStore{
		docs:  make(map[store.Collection]map[string]store.Document),
		calls: make(map[Op]int),
		clock: clk,
	}
}

// FailNext makes the next n calls of op fail with err. An empty id matches
// every document; n <= 0 fails forever.
func (m *RemoteStore) FailNext(op Op, id string, err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, &injectedFailure{op: op, id: id, err: err, remaining: n})
}

// ClearFailures removes every injected failure.
func (m *RemoteStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// Calls returns how often op was called, failed calls included.
func (m *RemoteStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of calls across every operation.
func (m *RemoteStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes the call counters.
func (m *RemoteStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[Op]int)
}

// Seed stores doc as if another client had created it. A zero version
// becomes 1 and a zero UpdatedAt becomes now.
func (m *RemoteStore) Seed(collection store.Collection, doc store.Document) store.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Version < 1 {
		doc.Version = 1
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = m.clock.Now()
	}
	m.collection(collection)[doc.ID] = cloneDoc(doc)
	return doc
}

// Edit changes a stored document as if another device had updated it.
func (m *RemoteStore) Edit(collection store.Collection, id string, data json.RawMessage, updatedAt time.Time) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collection(collection)[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	doc.Data = append(json.RawMessage(nil), data...)
	doc.UpdatedAt = updatedAt
	doc.Version++
	m.collection(collection)[id] = doc
	return cloneDoc(doc), nil
}

// Remove deletes a stored document as if another device had deleted it.
func (m *RemoteStore) Remove(collection store.Collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collection(collection), id)
}

// Get returns a stored document without counting a call.
func (m *RemoteStore) Get(collection store.Collection, id string) (store.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collection(collection)[id]
	return cloneDoc(doc), ok
}

// Len returns the number of documents stored in collection.
func (m *RemoteStore) Len(collection store.Collection) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collection(collection))
}

// CreateEntity implements store.RemoteStore.
func (m *RemoteStore) CreateEntity(ctx context.Context, collection store.Collection, doc store.Document) (string, int, error) {
	if err := m.begin(ctx, OpCreate, collection, doc.ID); err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	docs := m.collection(collection)
	if _, exists := docs[doc.ID]; exists {
		return "", 0, store.NewStoreError(string(collection), "create", "id "+doc.ID, store.ErrDuplicate)
	}
	doc.Version = 1
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = m.clock.Now()
	}
	docs[doc.ID] = cloneDoc(doc)
	return doc.ID, doc.Version, nil
}

// UpdateEntity implements store.RemoteStore.
func (m *RemoteStore) UpdateEntity(ctx context.Context, collection store.Collection, id string, patch store.Document) (store.Document, error) {
	if err := m.begin(ctx, OpUpdate, collection, id); err != nil {
		return store.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collection(collection)
	doc, ok := docs[id]
	if !ok {
		return store.Document{}, store.NewStoreError(string(collection), "update", "id "+id, store.ErrNotFound)
	}
	if patch.OwnerID != "" && patch.OwnerID != doc.OwnerID {
		return store.Document{}, store.NewStoreError(string(collection), "update", "id "+id+" belongs to another owner", store.ErrDuplicate)
	}
	doc.Data = append(json.RawMessage(nil), patch.Data...)
	doc.UpdatedAt = patch.UpdatedAt
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = m.clock.Now()
	}
	doc.Version++
	docs[id] = doc
	return cloneDoc(doc), nil
}

// DeleteEntity implements store.RemoteStore.
func (m *RemoteStore) DeleteEntity(ctx context.Context, collection store.Collection, id string) error {
	if err := m.begin(ctx, OpDelete, collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collection(collection)
	if _, ok := docs[id]; !ok {
		return store.NewStoreError(string(collection), "delete", "id "+id, store.ErrNotFound)
	}
	delete(docs, id)
	return nil
}

// FindEntity implements store.RemoteStore.
func (m *RemoteStore) FindEntity(ctx context.Context, collection store.Collection, id string) (store.Document, error) {
	if err := m.begin(ctx, OpFind, collection, id); err != nil {
		return store.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collection(collection)[id]
	if !ok {
		return store.Document{}, store.NewStoreError(string(collection), "find", "id "+id, store.ErrNotFound)
	}
	return cloneDoc(doc), nil
}

// QueryEntities implements store.RemoteStore.
func (m *RemoteStore) QueryEntities(ctx context.Context, collection store.Collection, filter store.Filter, opts store.QueryOptions) ([]store.Document, error) {
	if err := m.begin(ctx, OpQuery, collection, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]store.Document, 0)
	for _, doc := range m.collection(collection) {
		if filter.OwnerID != "" && doc.OwnerID != filter.OwnerID {
			continue
		}
		if !filter.UpdatedSince.IsZero() && doc.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		out = append(out, cloneDoc(doc))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if opts.Sort == store.SortUpdatedDesc {
			a, b = b, a
		}
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.ID < b.ID
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// begin counts the call, runs the hook and applies any injected failure.
func (m *RemoteStore) begin(ctx context.Context, op Op, collection store.Collection, id string) error {
	m.mu.Lock()
	m.calls[op]++
	hook := m.Hook
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(op, collection, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.failures {
		if f.op != op || (f.id != "" && f.id != id) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				m.failures = append(m.failures[:i], m.failures[i+1:]...)
			}
		}
		return fmt.Errorf("%s %s/%s: %w", op, collection, id, f.err)
	}
	return nil
}

func (m *RemoteStore) collection(c store.Collection) map[string]store.Document {
	docs, ok := m.docs[c]
	if !ok {
		docs = make(map[string]store.Document)
		m.docs[c] = docs
	}
	return docs
}

func cloneDoc(d store.Document) store.Document {
	if d.Data != nil {
		d.Data = append(json.RawMessage(nil), d.Data...)
	}
	return d
}
