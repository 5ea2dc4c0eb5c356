// Package mocks provides in-memory implementations of the remote store
// contract for testing.
//
// RemoteStore behaves like the Postgres store but keeps everything in memory,
// counts every call and can be told to fail:
//
//	remote := mocks.NewRemoteStore(clk)
//	remote.FailNext(mocks.OpCreate, "", store.ErrTransient, 2)
//
//	// ... run a sync pass ...
//
//	assert.Equal(t, 1, remote.Calls(mocks.OpCreate))
//
// Seed, Edit and Remove change the store as another device would, without
// counting as calls.
package mocks
