// Package service is the public surface of the study core. It combines the
// scheduler, the deck builder, the session tracker, the local cache and the
// sync engine into the operations the HTTP layer and other collaborators call.
//
// Every write lands in the local cache first and succeeds whether or not the
// remote store is reachable; the sync engine is only notified. Reads are
// served from the cache and reach the network only when the cache has never
// been filled for the user or the caller forces a refresh. A stale entry is
// returned as is and refreshed in the background.
package service
