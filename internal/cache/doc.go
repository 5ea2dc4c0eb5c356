// Package cache is the durable local copy of every user's documents. All
// foreground reads and writes go through it and never wait on the network.
//
// Documents are grouped in one Entry per (collection, owner). Each document
// carries its own dirty flag and a revision that increases with every local
// write; the sync engine confirms a pushed document by revision, so a write
// that lands while a push is in flight keeps the document dirty.
package cache
