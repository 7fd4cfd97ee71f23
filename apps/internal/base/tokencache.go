// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package base

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/base/internal/storage"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
	"golang.org/x/oauth2"
)

// CacheRecord is the account and the credentials resolved for it by one save or load.
// Any credential may be nil.
type CacheRecord struct {
	Account      Account
	AccessToken  *AccessToken
	RefreshToken *RefreshToken
	IDToken      *IDToken
	V1IDToken    *IDToken
}

// AccountDeletionRecord lists what a removal deleted.
type AccountDeletionRecord struct {
	Accounts      []Account
	AccessTokens  int
	RefreshTokens int
	IDTokens      int
}

// Len returns the number of accounts removed.
func (r AccountDeletionRecord) Len() int {
	return len(r.Accounts)
}

// TokenCache stores and loads the account and credentials of token responses as a unit.
type TokenCache struct {
	manager  *storage.Manager
	metadata *storage.AppMetadataCache
	adapter  Adapter
	logger   logger.LoggerInterface
}

// TokenCacheOption is an optional argument to NewTokenCache.
type TokenCacheOption func(t *TokenCache)

// WithAppMetadata records every saved application in c and restricts the family refresh
// token fallback to applications c knows to be in a family.
func WithAppMetadata(c *storage.AppMetadataCache) TokenCacheOption {
	return func(t *TokenCache) {
		t.metadata = c
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l logger.LoggerInterface) TokenCacheOption {
	return func(t *TokenCache) {
		t.logger = logger.OrDiscard(l)
	}
}

// NewTokenCache is the constructor for TokenCache. A nil adapter is DefaultAdapter.
func NewTokenCache(m *storage.Manager, adapter Adapter, options ...TokenCacheOption) *TokenCache {
	if adapter == nil {
		adapter = DefaultAdapter{}
	}
	t := &TokenCache{manager: m, adapter: adapter, logger: logger.Discard()}
	for _, o := range options {
		o(t)
	}
	return t
}

// Manager returns the underlying account and credential cache.
func (t *TokenCache) Manager() *storage.Manager {
	return t.manager
}

// SaveTokens turns a token response into cache records and stores them. Cached access tokens
// for the same account, client and realm whose scopes are a subset of the new token's are
// removed first, so they cannot shadow it.
func (t *TokenCache) SaveTokens(ctx context.Context, params AuthParams, token *oauth2.Token) (CacheRecord, error) {
	if token == nil {
		return CacheRecord{}, errors.NewClientError(errors.NullObject, "token response is nil", nil)
	}
	account, err := t.adapter.CreateAccount(params, token)
	if err != nil {
		return CacheRecord{}, err
	}
	at, err := t.adapter.CreateAccessToken(params, token)
	if err != nil {
		return CacheRecord{}, err
	}
	rt, err := t.adapter.CreateRefreshToken(params, token)
	if err != nil {
		return CacheRecord{}, err
	}
	id, err := t.adapter.CreateIDToken(params, token)
	if err != nil {
		return CacheRecord{}, err
	}
	if err := validateCacheArtifacts(account, at, rt, id); err != nil {
		t.logger.Log(ctx, logger.Warn, "token response is not schema compliant", logger.Field("error", err.Error()))
		return CacheRecord{}, err
	}

	if err := t.manager.SaveAccount(ctx, account); err != nil {
		return CacheRecord{}, err
	}
	if at != nil {
		if err := t.deleteAccessTokensWithSubsetScopes(ctx, at); err != nil {
			return CacheRecord{}, err
		}
		if err := t.manager.SaveCredential(ctx, at); err != nil {
			return CacheRecord{}, err
		}
	}
	if rt.IsFamily() || strings.EqualFold(account.AuthorityType, shared.AuthorityTypeMSSTS) {
		if err := t.removeAllRefreshTokensExcept(ctx, rt); err != nil {
			return CacheRecord{}, err
		}
	}
	if err := t.manager.SaveCredential(ctx, rt); err != nil {
		return CacheRecord{}, err
	}

	record := CacheRecord{Account: account, AccessToken: at, RefreshToken: rt}
	if id != nil {
		if err := t.manager.SaveCredential(ctx, id); err != nil {
			return CacheRecord{}, err
		}
		if id.CredentialType == storage.V1IDTokenType {
			record.V1IDToken = id
		} else {
			record.IDToken = id
		}
	}

	if t.metadata != nil {
		err := t.metadata.Insert(ctx, storage.BrokerApplicationMetadata{
			ClientID:     params.ClientID,
			Environment:  account.Environment,
			UID:          params.ApplicationUID,
			FociFamilyID: rt.FamilyID,
		})
		if err != nil {
			return CacheRecord{}, err
		}
	}
	return record, nil
}

// Load resolves the cache record for params.Account. When the client holds no refresh token
// of its own, a family refresh token is used if the client may use one.
func (t *TokenCache) Load(ctx context.Context, params AuthParams) (CacheRecord, error) {
	if params.Account == nil {
		return CacheRecord{}, errors.NewClientError(errors.InvalidParameter, "an account is required to load from the cache", nil)
	}
	account := *params.Account
	if stored, err := t.manager.GetAccount(ctx, account.Key()); err != nil {
		return CacheRecord{}, err
	} else if stored != nil {
		account = *stored
	}
	realm := account.Realm
	if params.Realm != "" && !isCommonRealm(params.Realm) {
		realm = params.Realm
	}
	env := account.Environment

	record := CacheRecord{Account: account}

	atType := storage.AccessTokenType
	if params.AuthScheme != "" && !strings.EqualFold(params.AuthScheme, "bearer") {
		atType = storage.AccessTokenWithAuthSchemeType
	}
	ats, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		HomeAccountID:           account.HomeAccountID,
		Environment:             env,
		Types:                   []storage.CredentialType{atType},
		ClientID:                params.ClientID,
		Realm:                   realm,
		Target:                  strings.Join(params.Scopes, " "),
		AuthScheme:              params.AuthScheme,
		RequestedClaims:         params.Claims,
		ApplicationIdentifier:   params.ApplicationIdentifier,
		MamEnrollmentIdentifier: params.MamEnrollmentIdentifier,
	})
	if err != nil {
		return CacheRecord{}, err
	}
	record.AccessToken = latestAccessToken(ats)

	rts, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		HomeAccountID: account.HomeAccountID,
		Environment:   env,
		Types:         []storage.CredentialType{storage.RefreshTokenType},
		ClientID:      params.ClientID,
	})
	if err != nil {
		return CacheRecord{}, err
	}
	if len(rts) > 0 {
		record.RefreshToken = rts[0].(*RefreshToken)
	} else {
		eligible, err := t.fociEligible(ctx, params.ClientID, env)
		if err != nil {
			return CacheRecord{}, err
		}
		if eligible {
			record.RefreshToken, err = t.GetFamilyRefreshTokenForHomeAccountID(ctx, account.HomeAccountID, env)
			if err != nil {
				return CacheRecord{}, err
			}
		}
	}

	record.IDToken, record.V1IDToken, err = t.idTokens(ctx, account.HomeAccountID, env, params.ClientID, realm)
	if err != nil {
		return CacheRecord{}, err
	}
	return record, nil
}

// LoadWithAggregatedAccountData returns the record Load resolves first, followed by one record
// per other tenant profile of the same account, each carrying that tenant's id tokens.
func (t *TokenCache) LoadWithAggregatedAccountData(ctx context.Context, params AuthParams) ([]CacheRecord, error) {
	primary, err := t.Load(ctx, params)
	if err != nil {
		return nil, err
	}
	records := []CacheRecord{primary}

	profiles, err := t.manager.GetAccountsFilteredBy(ctx, primary.Account.HomeAccountID, primary.Account.Environment, "")
	if err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		if profile.Key() == primary.Account.Key() {
			continue
		}
		id, v1, err := t.idTokens(ctx, profile.HomeAccountID, profile.Environment, params.ClientID, profile.Realm)
		if err != nil {
			return nil, err
		}
		records = append(records, CacheRecord{Account: profile, IDToken: id, V1IDToken: v1})
	}
	return records, nil
}

// GetAccounts returns the accounts in environment that clientID holds a refresh token or an
// id token for. An empty environment matches all.
func (t *TokenCache) GetAccounts(ctx context.Context, environment, clientID string) ([]Account, error) {
	accounts, err := t.manager.GetAccountsFilteredBy(ctx, "", environment, "")
	if err != nil {
		return nil, err
	}
	creds, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		Environment: environment,
		Types:       []storage.CredentialType{storage.RefreshTokenType, storage.IDTokenType, storage.V1IDTokenType},
		ClientID:    clientID,
	})
	if err != nil {
		return nil, err
	}

	var out []Account
	for _, a := range accounts {
		if accountHasToken(a, creds) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetAccount returns the account of clientID with homeAccountID, or nil. An empty realm
// matches any tenant profile, in which case the first by key is returned.
func (t *TokenCache) GetAccount(ctx context.Context, environment, clientID, homeAccountID, realm string) (*Account, error) {
	accounts, err := t.GetAccounts(ctx, environment, clientID)
	if err != nil {
		return nil, err
	}
	matches := storage.FilterAccounts(accounts, homeAccountID, "", realm)
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// GetAccountsWithAggregatedAccountData returns a record for each account GetAccounts finds,
// carrying the account's id tokens for clientID.
func (t *TokenCache) GetAccountsWithAggregatedAccountData(ctx context.Context, environment, clientID string) ([]CacheRecord, error) {
	accounts, err := t.GetAccounts(ctx, environment, clientID)
	if err != nil {
		return nil, err
	}
	var records []CacheRecord
	for _, a := range accounts {
		id, v1, err := t.idTokens(ctx, a.HomeAccountID, a.Environment, clientID, a.Realm)
		if err != nil {
			return nil, err
		}
		records = append(records, CacheRecord{Account: a, IDToken: id, V1IDToken: v1})
	}
	return records, nil
}

// RemoveAccount removes the account and the credentials clientID holds for it, but only if
// clientID holds a refresh token or id token for it. An empty realm removes every tenant
// profile of the account.
func (t *TokenCache) RemoveAccount(ctx context.Context, environment, clientID, homeAccountID, realm string) (AccountDeletionRecord, error) {
	if environment == "" || clientID == "" || homeAccountID == "" {
		return AccountDeletionRecord{}, nil
	}
	accounts, err := t.GetAccounts(ctx, environment, clientID)
	if err != nil {
		return AccountDeletionRecord{}, err
	}
	return t.removeAccounts(ctx, clientID, storage.FilterAccounts(accounts, homeAccountID, "", realm))
}

// ForceRemoveAccount is RemoveAccount without the requirement that clientID hold tokens for
// the account.
func (t *TokenCache) ForceRemoveAccount(ctx context.Context, environment, clientID, homeAccountID, realm string) (AccountDeletionRecord, error) {
	if homeAccountID == "" {
		return AccountDeletionRecord{}, nil
	}
	accounts, err := t.manager.GetAccountsFilteredBy(ctx, homeAccountID, environment, realm)
	if err != nil {
		return AccountDeletionRecord{}, err
	}
	return t.removeAccounts(ctx, clientID, accounts)
}

// RemoveCredential deletes cred. It reports whether it was stored.
func (t *TokenCache) RemoveCredential(ctx context.Context, cred Credential) (bool, error) {
	return t.manager.RemoveCredential(ctx, cred)
}

// ClearAll deletes every account, credential and application record.
func (t *TokenCache) ClearAll(ctx context.Context) error {
	if err := t.manager.ClearAll(ctx); err != nil {
		return err
	}
	if t.metadata != nil {
		return t.metadata.Clear(ctx)
	}
	return nil
}

// GetFamilyRefreshTokenForHomeAccountID returns a family refresh token of the account, or nil.
// An empty environment matches all.
func (t *TokenCache) GetFamilyRefreshTokenForHomeAccountID(ctx context.Context, homeAccountID, environment string) (*RefreshToken, error) {
	rts, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		HomeAccountID: homeAccountID,
		Environment:   environment,
		Types:         []storage.CredentialType{storage.RefreshTokenType},
	})
	if err != nil {
		return nil, err
	}
	for _, c := range rts {
		if rt := c.(*RefreshToken); rt.IsFamily() {
			return rt, nil
		}
	}
	return nil, nil
}

func (t *TokenCache) removeAccounts(ctx context.Context, clientID string, accounts []Account) (AccountDeletionRecord, error) {
	var record AccountDeletionRecord
	for _, a := range accounts {
		base := storage.CredentialFilter{HomeAccountID: a.HomeAccountID, Environment: a.Environment, ClientID: clientID}

		f := base
		f.Types = []storage.CredentialType{storage.AccessTokenType, storage.AccessTokenWithAuthSchemeType}
		f.Realm = a.Realm
		n, err := t.removeCredentials(ctx, f)
		if err != nil {
			return record, err
		}
		record.AccessTokens += n

		f = base
		f.Types = []storage.CredentialType{storage.RefreshTokenType}
		if n, err = t.removeCredentials(ctx, f); err != nil {
			return record, err
		}
		record.RefreshTokens += n

		f = base
		f.Types = []storage.CredentialType{storage.IDTokenType, storage.V1IDTokenType}
		f.Realm = a.Realm
		if n, err = t.removeCredentials(ctx, f); err != nil {
			return record, err
		}
		record.IDTokens += n

		removed, err := t.manager.RemoveAccount(ctx, a)
		if err != nil {
			return record, err
		}
		if removed {
			record.Accounts = append(record.Accounts, a)
		}
	}
	t.logger.Log(ctx, logger.Info, "accounts removed",
		logger.Field("accounts", len(record.Accounts)),
		logger.Field("access_tokens", record.AccessTokens),
		logger.Field("refresh_tokens", record.RefreshTokens),
		logger.Field("id_tokens", record.IDTokens),
	)
	return record, nil
}

func (t *TokenCache) removeCredentials(ctx context.Context, f storage.CredentialFilter) (int, error) {
	creds, err := t.manager.GetCredentialsFilteredBy(ctx, f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range creds {
		removed, err := t.manager.RemoveCredential(ctx, c)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}

// deleteAccessTokensWithSubsetScopes removes the access tokens of the same account, client,
// realm, application, MAM enrollment, auth scheme and claims whose scopes are all included in the
// reference token's.
func (t *TokenCache) deleteAccessTokensWithSubsetScopes(ctx context.Context, reference *AccessToken) error {
	f := storage.CredentialFilter{
		HomeAccountID:           reference.HomeAccountID,
		Environment:             reference.Environment,
		Types:                   []storage.CredentialType{reference.CredentialType},
		ClientID:                reference.ClientID,
		Realm:                   reference.Realm,
		RequestedClaims:         reference.RequestedClaims,
		ApplicationIdentifier:   reference.ApplicationIdentifier,
		MamEnrollmentIdentifier: reference.MamEnrollmentIdentifier,
	}
	if reference.CredentialType == storage.AccessTokenWithAuthSchemeType {
		f.AuthScheme = reference.TokenType
	}
	ats, err := t.manager.GetCredentialsFilteredBy(ctx, f)
	if err != nil {
		return err
	}
	t.logger.Log(ctx, logger.Debug, "inspecting access tokens for scope overlap", logger.Field("count", len(ats)))

	refScopes := shared.Scopes(reference.Target)
	for _, c := range ats {
		at := c.(*AccessToken)
		// empty filter fields are wildcards, so an unset field on the reference must not reach
		// tokens that set it
		if at.Key() == reference.Key() || !sameAccessTokenSlot(at, reference) || !shared.ContainsAll(refScopes, shared.Scopes(at.Target)) {
			continue
		}
		if _, err := t.manager.RemoveCredential(ctx, at); err != nil {
			return err
		}
	}
	return nil
}

// removeAllRefreshTokensExcept removes the other refresh tokens of keep's account that belong
// to the same client or, for a family token, to the same family.
func (t *TokenCache) removeAllRefreshTokensExcept(ctx context.Context, keep *RefreshToken) error {
	rts, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		HomeAccountID: keep.HomeAccountID,
		Environment:   keep.Environment,
		Types:         []storage.CredentialType{storage.RefreshTokenType},
	})
	if err != nil {
		return err
	}
	keepFamily := shared.StripFociPrefix(strings.TrimSpace(keep.FamilyID))
	for _, c := range rts {
		rt := c.(*RefreshToken)
		if rt.Key() == keep.Key() {
			continue
		}
		sameClient := shared.EqualFoldTrim(rt.ClientID, keep.ClientID)
		sameFamily := keepFamily != "" && shared.EqualFoldTrim(shared.StripFociPrefix(strings.TrimSpace(rt.FamilyID)), keepFamily)
		if !sameClient && !sameFamily {
			continue
		}
		if _, err := t.manager.RemoveCredential(ctx, rt); err != nil {
			return err
		}
	}
	return nil
}

func (t *TokenCache) fociEligible(ctx context.Context, clientID, environment string) (bool, error) {
	if t.metadata == nil {
		return true, nil
	}
	family, known, err := t.metadata.FamilyOf(ctx, clientID, environment)
	if err != nil {
		return false, err
	}
	return known && family != "", nil
}

func (t *TokenCache) idTokens(ctx context.Context, homeAccountID, environment, clientID, realm string) (id, v1 *IDToken, err error) {
	creds, err := t.manager.GetCredentialsFilteredBy(ctx, storage.CredentialFilter{
		HomeAccountID: homeAccountID,
		Environment:   environment,
		Types:         []storage.CredentialType{storage.IDTokenType, storage.V1IDTokenType},
		ClientID:      clientID,
		Realm:         realm,
	})
	if err != nil {
		return nil, nil, err
	}
	for _, c := range creds {
		tok := c.(*IDToken)
		switch {
		case tok.CredentialType == storage.V1IDTokenType && v1 == nil:
			v1 = tok
		case tok.CredentialType == storage.IDTokenType && id == nil:
			id = tok
		}
	}
	return id, v1, nil
}

// sameAccessTokenSlot reports whether a and b differ at most in their scopes.
func sameAccessTokenSlot(a, b *AccessToken) bool {
	if a.CredentialType == storage.AccessTokenWithAuthSchemeType && !shared.EqualFoldTrim(a.TokenType, b.TokenType) {
		return false
	}
	return shared.EqualFoldTrim(a.ApplicationIdentifier, b.ApplicationIdentifier) &&
		shared.EqualFoldTrim(a.MamEnrollmentIdentifier, b.MamEnrollmentIdentifier) &&
		strings.TrimSpace(a.RequestedClaims) == strings.TrimSpace(b.RequestedClaims)
}

func accountHasToken(a Account, creds []Credential) bool {
	for _, c := range creds {
		b := c.Base()
		if shared.EqualFoldTrim(a.HomeAccountID, b.HomeAccountID) && shared.EqualFoldTrim(a.Environment, b.Environment) {
			return true
		}
	}
	return false
}

// latestAccessToken returns the token that expires last.
func latestAccessToken(creds []Credential) *AccessToken {
	if len(creds) == 0 {
		return nil
	}
	ats := make([]*AccessToken, 0, len(creds))
	for _, c := range creds {
		ats = append(ats, c.(*AccessToken))
	}
	sort.SliceStable(ats, func(i, j int) bool {
		return ats[j].ExpiresOn.T.Before(ats[i].ExpiresOn.T)
	})
	return ats[0]
}

func isCommonRealm(realm string) bool {
	switch strings.ToLower(strings.TrimSpace(realm)) {
	case "common", "organizations", "consumers":
		return true
	}
	return false
}

// validateCacheArtifacts checks the fields every record needs before anything is written.
// The access token and id token may be absent; the account and refresh token may not.
func validateCacheArtifacts(account Account, at *AccessToken, rt *RefreshToken, id *IDToken) error {
	if missing := missingFields(
		"home_account_id", account.HomeAccountID,
		"environment", account.Environment,
		"realm", account.Realm,
		"local_account_id", account.LocalAccountID,
		"username", account.Username,
		"authority_type", account.AuthorityType,
	); missing != "" {
		return errors.NewClientError(errors.SchemaNoncompliant, "account is missing "+missing, nil)
	}

	var bad []string
	if at != nil {
		if missing := missingFields(
			"credential_type", string(at.CredentialType),
			"home_account_id", at.HomeAccountID,
			"realm", at.Realm,
			"environment", at.Environment,
			"client_id", at.ClientID,
			"target", at.Target,
			"secret", at.Secret,
		); missing != "" || at.CachedAt.IsZero() || at.ExpiresOn.IsZero() {
			bad = append(bad, "(AT)")
		}
	}
	if rt == nil || missingFields(
		"credential_type", string(rt.CredentialType),
		"environment", rt.Environment,
		"home_account_id", rt.HomeAccountID,
		"client_id", rt.ClientID,
		"secret", rt.Secret,
	) != "" {
		bad = append(bad, "(RT)")
	}
	if id != nil && missingFields(
		"home_account_id", id.HomeAccountID,
		"environment", id.Environment,
		"realm", id.Realm,
		"credential_type", string(id.CredentialType),
		"client_id", id.ClientID,
		"secret", id.Secret,
	) != "" {
		bad = append(bad, "(ID)")
	}
	if len(bad) > 0 {
		return errors.NewClientError(errors.SchemaNoncompliant, fmt.Sprintf("credentials are not schema compliant: [%s]", strings.Join(bad, "")), nil)
	}
	return nil
}

// missingFields takes name, value pairs and returns the names of blank values.
func missingFields(pairs ...string) string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return strings.Join(missing, ", ")
}
