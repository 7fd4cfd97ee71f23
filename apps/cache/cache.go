// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache defines the storage supplier that persists accounts and credentials.

The cache engine keeps every record in one flat string key/value namespace. Keys and
values are opaque to implementers: keys are composite identity tuples and values are JSON
documents. Implementations in the sub-packages cover a plain in-memory map (memory), a
bounded memory layer over another store (memcache), SQLite (sqlite) and encryption at
rest over another store (encrypted).
*/
package cache

import "context"

// Storage is a case-preserving string key/value store. Implementations must be safe for
// concurrent use. Concurrent writes of the same key are last-write-wins.
type Storage interface {
	// Get returns the value stored for key. ok is false when there is none.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// GetAll returns a snapshot of every entry.
	GetAll(ctx context.Context) (map[string]string, error)
	// Clear deletes every entry.
	Clear(ctx context.Context) error
}
