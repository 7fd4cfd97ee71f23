// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package storage is the account and credential cache. Every record lives in a single
// flat cache.Storage namespace under a key derived from its identity fields; accounts and
// credentials are told apart by the credential type marker embedded in credential keys.
//
// Reads never fail on bad data: a value that cannot be decoded, or that decodes to an
// empty record, is logged, deleted from the store and treated as a miss. Errors returned
// by this package come from the underlying store only.
//
// The cache adds no locking of its own. Concurrent writes to different keys are safe when
// the store is; concurrent writes to the same key are last-write-wins.
package storage

import (
	"context"
	"sort"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
)

// Manager reads and writes accounts and credentials in a cache.Storage.
type Manager struct {
	store  cache.Storage
	logger logger.LoggerInterface
}

// New is the constructor for Manager. A nil logger discards.
func New(store cache.Storage, log logger.LoggerInterface) *Manager {
	return &Manager{store: store, logger: logger.OrDiscard(log)}
}

// SaveAccount upserts account. Additional fields already stored for the same key and not
// present on account are kept.
func (m *Manager) SaveAccount(ctx context.Context, account Account) error {
	key := account.Key()
	if existing, err := m.GetAccount(ctx, key); err != nil {
		return err
	} else if existing != nil {
		account.AdditionalFields = mergeAdditional(existing.AdditionalFields, account.AdditionalFields)
	}
	value, err := CacheValue(account)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, key, value)
}

// SaveCredential upserts cred, merging additional fields like SaveAccount.
func (m *Manager) SaveCredential(ctx context.Context, cred Credential) error {
	key := cred.Key()
	existing, err := m.GetCredential(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		// the caller's record is not modified
		extra := mergeAdditional(*existing.additional(), *cred.additional())
		cred = withAdditional(cred, extra)
	}
	value, err := CacheValue(cred)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, key, value)
}

// GetAccount returns the account stored under key, or nil.
func (m *Manager) GetAccount(ctx context.Context, key string) (*Account, error) {
	value, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	acc, err := accountFromValue(value)
	if err != nil {
		m.heal(ctx, key, err)
		return nil, nil
	}
	return acc, nil
}

// GetCredential returns the credential stored under key, or nil.
func (m *Manager) GetCredential(ctx context.Context, key string) (Credential, error) {
	if IsAccountKey(key) {
		m.logger.Log(ctx, logger.Warn, "credential type could not be resolved from key", logger.Field("key", key))
		return nil, nil
	}
	value, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	cred, err := credentialFromValue(key, value)
	if err != nil {
		m.heal(ctx, key, err)
		return nil, nil
	}
	return cred, nil
}

// GetAccounts returns every well-formed account, ordered by key.
func (m *Manager) GetAccounts(ctx context.Context) ([]Account, error) {
	all, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	for _, key := range sortedKeys(all) {
		if !IsAccountKey(key) {
			continue
		}
		acc, err := accountFromValue(all[key])
		if err != nil {
			m.heal(ctx, key, err)
			continue
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// GetCredentials returns every well-formed credential, ordered by key.
func (m *Manager) GetCredentials(ctx context.Context) ([]Credential, error) {
	return m.GetCredentialsFilteredBy(ctx, CredentialFilter{})
}

// GetAccountsFilteredBy returns the accounts matching every non-empty argument, compared
// without regard to case. Empty arguments match anything.
func (m *Manager) GetAccountsFilteredBy(ctx context.Context, homeAccountID, environment, realm string) ([]Account, error) {
	accounts, err := m.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAccounts(accounts, homeAccountID, environment, realm), nil
}

// GetCredentialsFilteredBy returns the credentials matching f. Types are checked on the
// key before a value is decoded.
func (m *Manager) GetCredentialsFilteredBy(ctx context.Context, f CredentialFilter) ([]Credential, error) {
	all, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var creds []Credential
	for _, key := range sortedKeys(all) {
		t, ok := CredentialTypeForKey(key)
		if !ok || !f.matchesType(t) {
			continue
		}
		cred, err := credentialFromValue(key, all[key])
		if err != nil {
			m.heal(ctx, key, err)
			continue
		}
		if f.Matches(cred) {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

// RemoveAccount deletes account. It reports whether anything was stored under its key.
func (m *Manager) RemoveAccount(ctx context.Context, account Account) (bool, error) {
	return m.remove(ctx, account.Key())
}

// RemoveCredential deletes cred. It reports whether anything was stored under its key.
func (m *Manager) RemoveCredential(ctx context.Context, cred Credential) (bool, error) {
	if cred == nil {
		return false, nil
	}
	return m.remove(ctx, cred.Key())
}

// ClearAccounts deletes every account and leaves credentials alone.
func (m *Manager) ClearAccounts(ctx context.Context) error {
	return m.clearWhere(ctx, IsAccountKey)
}

// ClearCredentials deletes every credential and leaves accounts alone.
func (m *Manager) ClearCredentials(ctx context.Context) error {
	return m.clearWhere(ctx, func(key string) bool { return !IsAccountKey(key) })
}

// ClearAll deletes everything in the store.
func (m *Manager) ClearAll(ctx context.Context) error {
	return m.store.Clear(ctx)
}

func (m *Manager) remove(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := m.store.Remove(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) clearWhere(ctx context.Context, match func(key string) bool) error {
	all, err := m.store.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(all) {
		if !match(key) {
			continue
		}
		if err := m.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// heal drops a value that could not be read back.
func (m *Manager) heal(ctx context.Context, key string, cause error) {
	m.logger.Log(ctx, logger.Warn, "removing malformed cache entry", logger.Field("key", key), logger.Field("error", cause.Error()))
	if err := m.store.Remove(ctx, key); err != nil {
		m.logger.Log(ctx, logger.Err, "failed to remove malformed cache entry", logger.Field("key", key), logger.Field("error", err.Error()))
	}
}

func withAdditional(cred Credential, extra map[string]interface{}) Credential {
	switch c := cred.(type) {
	case *AccessToken:
		cp := *c
		cp.AdditionalFields = extra
		return &cp
	case *RefreshToken:
		cp := *c
		cp.AdditionalFields = extra
		return &cp
	case *IDToken:
		cp := *c
		cp.AdditionalFields = extra
		return &cp
	}
	return cred
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
