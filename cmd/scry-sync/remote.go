package main

import (
	"context"
	"fmt"

	"github.com/phrazzld/scry-sync/internal/store"
)

// errNoRemote is returned by every call on unavailableRemote. It wraps
// store.ErrTransient so anything that reaches it is kept for retry.
var errNoRemote = fmt.Errorf("%w: no remote store configured", store.ErrTransient)

// unavailableRemote stands in for the remote store when no database URL is
// configured. The engine runs permanently offline, so local changes stay
// pending until the service is restarted with a database.
type unavailableRemote struct{}

var _ store.RemoteStore = unavailableRemote{}

func (unavailableRemote) CreateEntity(context.Context, store.Collection, store.Document) (string, int, error) {
	return "", 0, errNoRemote
}

func (unavailableRemote) UpdateEntity(context.Context, store.Collection, string, store.Document) (store.Document, error) {
	return store.Document{}, errNoRemote
}

func (unavailableRemote) DeleteEntity(context.Context, store.Collection, string) error {
	return errNoRemote
}

func (unavailableRemote) FindEntity(context.Context, store.Collection, string) (store.Document, error) {
	return store.Document{}, errNoRemote
}

func (unavailableRemote) QueryEntities(context.Context, store.Collection, store.Filter, store.QueryOptions) ([]store.Document, error) {
	return nil, errNoRemote
}
