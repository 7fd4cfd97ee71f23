// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package memcache puts a bounded in-memory tier in front of another cache.Storage.
// Reads are served from memory when possible, writes go to the backing store first.
package memcache

import (
	"context"
	"sync"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"golang.org/x/sync/singleflight"
)

// DefaultMaximumSize is used when New is given a non-positive size.
const DefaultMaximumSize = 1000

// Stats reports how the memory tier has been used.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Storage is a read-through, write-through cache.Storage.
type Storage struct {
	backing cache.Storage
	mem     *otter.Cache[string, string]
	counter *stats.Counter
	loads   singleflight.Group

	// mu orders memory fills against writes. epoch counts writes; a load only fills memory if
	// no write completed while it read the backing store.
	mu    sync.Mutex
	epoch uint64
}

// New wraps backing. At most maxSize values are held in memory.
func New(backing cache.Storage, maxSize int) *Storage {
	if maxSize <= 0 {
		maxSize = DefaultMaximumSize
	}
	counter := stats.NewCounter()
	mem := otter.Must(&otter.Options[string, string]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
	})
	return &Storage{backing: backing, mem: mem, counter: counter}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if entry, ok := s.mem.GetEntry(key); ok {
		return entry.Value, true, nil
	}
	// concurrent misses for a key share one backing read, which no single caller can cancel
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.loads.Do(key, func() (any, error) {
		s.mu.Lock()
		start := s.epoch
		s.mu.Unlock()

		value, ok, err := s.backing.Get(loadCtx, key)
		if err != nil || !ok {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != start {
			return value, nil
		}
		value, _ = s.mem.SetIfAbsent(key, value)
		return value, nil
	})
	if err != nil || v == nil {
		return "", false, err
	}
	return v.(string), true, nil
}

func (s *Storage) Put(ctx context.Context, key, value string) error {
	err := s.backing.Put(ctx, key, value)
	s.wrote(key, func() {
		if err != nil {
			s.mem.Invalidate(key)
			return
		}
		s.mem.Set(key, value)
	})
	return err
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	err := s.backing.Remove(ctx, key)
	s.wrote(key, func() { s.mem.Invalidate(key) })
	return err
}

// GetAll always reads the backing store, which holds every entry.
func (s *Storage) GetAll(ctx context.Context) (map[string]string, error) {
	return s.backing.GetAll(ctx)
}

func (s *Storage) Clear(ctx context.Context) error {
	err := s.backing.Clear(ctx)
	s.wrote("", s.mem.InvalidateAll)
	return err
}

// wrote records a completed backing write and applies update to memory. Loads already in
// flight will not fill memory, and later Gets of key start a new load.
func (s *Storage) wrote(key string, update func()) {
	s.mu.Lock()
	s.epoch++
	update()
	s.mu.Unlock()
	if key != "" {
		s.loads.Forget(key)
	}
}

// Stats returns a snapshot of the memory tier counters.
func (s *Storage) Stats() Stats {
	snap := s.counter.Snapshot()
	return Stats{Hits: snap.Hits, Misses: snap.Misses, Evictions: snap.Evictions}
}
