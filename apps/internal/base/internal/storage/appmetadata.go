// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
)

// AppMetadataKey is the key under which the metadata list is stored.
const AppMetadataKey = "app-meta-cache"

// BrokerApplicationMetadata identifies an application that shares the cache. It is unique
// by (ClientID, Environment, UID).
type BrokerApplicationMetadata struct {
	ClientID     string `json:"client_id"`
	Environment  string `json:"environment"`
	UID          int    `json:"application_uid"`
	FociFamilyID string `json:"family_id,omitempty"`
}

func (m BrokerApplicationMetadata) sameApp(o BrokerApplicationMetadata) bool {
	return shared.EqualFoldTrim(m.ClientID, o.ClientID) && shared.EqualFoldTrim(m.Environment, o.Environment) && m.UID == o.UID
}

// IsFoci reports whether the application belongs to a family of client ids.
func (m BrokerApplicationMetadata) IsFoci() bool {
	return strings.TrimSpace(m.FociFamilyID) != ""
}

// AppMetadataCache persists BrokerApplicationMetadata as one JSON list. It should be given a
// store, or a cache.Namespace, of its own.
type AppMetadataCache struct {
	store  cache.Storage
	logger logger.LoggerInterface

	// mu serializes read-modify-write of the list.
	mu sync.Mutex
}

// NewAppMetadataCache is the constructor for AppMetadataCache.
func NewAppMetadataCache(store cache.Storage, log logger.LoggerInterface) *AppMetadataCache {
	return &AppMetadataCache{store: store, logger: logger.OrDiscard(log)}
}

// Insert adds metadata, replacing the entry for the same application in place.
func (c *AppMetadataCache) Insert(ctx context.Context, metadata BrokerApplicationMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].sameApp(metadata) {
			list[i] = metadata
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, metadata)
	}
	return c.save(ctx, list)
}

// Remove deletes the entry for the same application as metadata. It reports whether one existed.
func (c *AppMetadataCache) Remove(ctx context.Context, metadata BrokerApplicationMetadata) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	kept := list[:0]
	for _, m := range list {
		if !m.sameApp(metadata) {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	return true, c.save(ctx, kept)
}

// GetAll returns every entry.
func (c *AppMetadataCache) GetAll(ctx context.Context) ([]BrokerApplicationMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// GetMetadata returns the entry for the application, or nil.
func (c *AppMetadataCache) GetMetadata(ctx context.Context, clientID, environment string, uid int) (*BrokerApplicationMetadata, error) {
	list, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	want := BrokerApplicationMetadata{ClientID: clientID, Environment: environment, UID: uid}
	for _, m := range list {
		if m.sameApp(want) {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

// GetAllClientIDs returns the distinct client ids, sorted.
func (c *AppMetadataCache) GetAllClientIDs(ctx context.Context) ([]string, error) {
	return c.clientIDs(ctx, func(BrokerApplicationMetadata) bool { return true })
}

// GetAllFociClientIDs returns the distinct client ids of family members, sorted.
func (c *AppMetadataCache) GetAllFociClientIDs(ctx context.Context) ([]string, error) {
	return c.clientIDs(ctx, BrokerApplicationMetadata.IsFoci)
}

// GetAllNonFociClientIDs returns the distinct client ids outside any family, sorted.
func (c *AppMetadataCache) GetAllNonFociClientIDs(ctx context.Context) ([]string, error) {
	return c.clientIDs(ctx, func(m BrokerApplicationMetadata) bool { return !m.IsFoci() })
}

// FamilyOf returns the family id recorded for clientID in environment. known is false when
// the application was never recorded.
func (c *AppMetadataCache) FamilyOf(ctx context.Context, clientID, environment string) (familyID string, known bool, err error) {
	list, err := c.GetAll(ctx)
	if err != nil {
		return "", false, err
	}
	for _, m := range list {
		if !shared.EqualFoldTrim(m.ClientID, clientID) || (environment != "" && !shared.EqualFoldTrim(m.Environment, environment)) {
			continue
		}
		known = true
		if m.IsFoci() {
			return m.FociFamilyID, true, nil
		}
	}
	return "", known, nil
}

// Clear deletes every entry.
func (c *AppMetadataCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Remove(ctx, AppMetadataKey)
}

func (c *AppMetadataCache) clientIDs(ctx context.Context, keep func(BrokerApplicationMetadata) bool) ([]string, error) {
	list, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, m := range list {
		if keep(m) && !seen[m.ClientID] {
			seen[m.ClientID] = true
			ids = append(ids, m.ClientID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *AppMetadataCache) load(ctx context.Context) ([]BrokerApplicationMetadata, error) {
	value, ok, err := c.store.Get(ctx, AppMetadataKey)
	if err != nil || !ok {
		return nil, err
	}
	var list []BrokerApplicationMetadata
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		c.logger.Log(ctx, logger.Warn, "removing malformed application metadata", logger.Field("error", err.Error()))
		if err := c.store.Remove(ctx, AppMetadataKey); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return list, nil
}

func (c *AppMetadataCache) save(ctx context.Context, list []BrokerApplicationMetadata) error {
	if len(list) == 0 {
		return c.store.Remove(ctx, AppMetadataKey)
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, AppMetadataKey, string(b))
}
