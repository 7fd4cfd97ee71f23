// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package base holds the token cache orchestration and the Client that acquires tokens
// silently on top of it. Commands run by the dispatcher call into Client.
package base

import (
	"context"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/base/internal/storage"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
)

// Cache record types, re-exported for packages outside base.
type (
	Account          = storage.Account
	Credential       = storage.Credential
	AccessToken      = storage.AccessToken
	RefreshToken     = storage.RefreshToken
	IDToken          = storage.IDToken
	CredentialType   = storage.CredentialType
	CredentialFilter = storage.CredentialFilter
	Manager          = storage.Manager
	AppMetadataCache = storage.AppMetadataCache

	BrokerApplicationMetadata = storage.BrokerApplicationMetadata
)

// NewManager returns the account and credential cache over store.
func NewManager(store cache.Storage, l logger.LoggerInterface) *Manager {
	return storage.New(store, l)
}

// NewAppMetadataCache returns the application metadata cache over store. store must not
// hold accounts or credentials.
func NewAppMetadataCache(store cache.Storage, l logger.LoggerInterface) *AppMetadataCache {
	return storage.NewAppMetadataCache(store, l)
}

// AuthParams are the parameters of a token request.
type AuthParams struct {
	ClientID string
	// Environment is the authority host, such as login.microsoftonline.com.
	Environment string
	// Realm is the tenant. "common", "organizations" and "consumers" defer to the account's tenant.
	Realm  string
	Scopes []string
	// Account is the account the token is for. Silent requests require it.
	Account                 *Account
	ApplicationIdentifier   string
	MamEnrollmentIdentifier string
	// AuthScheme is the token type requested. Empty or "Bearer" requests a bearer token.
	AuthScheme string
	// Claims is the claims request, as JSON.
	Claims string
	// ApplicationUID identifies the calling application in the application metadata cache.
	ApplicationUID int
	// V1IDToken stores the id token of the response as a V1IdToken.
	V1IDToken     bool
	ForceRefresh  bool
	CorrelationID string
}

// AuthResult is the outcome of one token acquisition.
type AuthResult struct {
	Account       Account
	AccessToken   string
	TokenType     string
	ExpiresOn     time.Time
	GrantedScopes []string
	IDToken       string
	// FromCache is true when no token request was made.
	FromCache     bool
	CorrelationID string
}

func authResultFromRecord(record CacheRecord, fromCache bool, correlationID string) (AuthResult, error) {
	at := record.AccessToken
	if at == nil {
		return AuthResult{}, errors.NewClientError(errors.NoTokensFound, "no access token in the cache record", nil)
	}
	result := AuthResult{
		Account:       record.Account,
		AccessToken:   at.Secret,
		TokenType:     at.TokenType,
		ExpiresOn:     at.ExpiresOn.T,
		GrantedScopes: strings.Fields(at.Target),
		FromCache:     fromCache,
		CorrelationID: correlationID,
	}
	switch {
	case record.IDToken != nil:
		result.IDToken = record.IDToken.Secret
	case record.V1IDToken != nil:
		result.IDToken = record.V1IDToken.Secret
	}
	return result, nil
}

// Client acquires tokens from the cache, refreshing them when needed.
type Client struct {
	cache     *TokenCache
	refresher Refresher
	logger    logger.LoggerInterface
}

// Option is an optional argument to the New constructor.
type Option func(c *Client)

// WithClientLogger sets the logger. The default discards.
func WithClientLogger(l logger.LoggerInterface) Option {
	return func(c *Client) {
		c.logger = logger.OrDiscard(l)
	}
}

// New is the constructor for Client.
func New(cache *TokenCache, refresher Refresher, options ...Option) *Client {
	c := &Client{cache: cache, refresher: refresher, logger: logger.Discard()}
	for _, o := range options {
		o(c)
	}
	return c
}

// TokenCache returns the cache the client reads and writes.
func (c *Client) TokenCache() *TokenCache {
	return c.cache
}

// AcquireTokenSilent returns a cached access token for params, or redeems the cached refresh
// token for a new one when the cached token is missing, due for refresh or params.ForceRefresh
// is set.
//
// A refresh token the service rejects as an invalid grant is removed from the cache. When the
// service is unavailable, a cached access token that is still within its extended lifetime is
// returned instead of the error.
func (c *Client) AcquireTokenSilent(ctx context.Context, params AuthParams) (AuthResult, error) {
	if params.Account == nil {
		return AuthResult{}, errors.NewClientError(errors.InvalidParameter, "account is required for silent token acquisition", nil)
	}
	record, err := c.cache.Load(ctx, params)
	if err != nil {
		return AuthResult{}, err
	}
	if !params.ForceRefresh && record.AccessToken != nil && !record.AccessToken.ShouldRefresh() {
		c.logger.Log(ctx, logger.Info, "returning cached access token", logger.Field("correlation_id", params.CorrelationID))
		return authResultFromRecord(record, true, params.CorrelationID)
	}
	return c.renew(ctx, params, record)
}

// RenewAccessToken redeems the cached refresh token for params regardless of the state of
// any cached access token.
func (c *Client) RenewAccessToken(ctx context.Context, params AuthParams) (AuthResult, error) {
	if params.Account == nil {
		return AuthResult{}, errors.NewClientError(errors.InvalidParameter, "account is required to renew an access token", nil)
	}
	record, err := c.cache.Load(ctx, params)
	if err != nil {
		return AuthResult{}, err
	}
	return c.renew(ctx, params, record)
}

func (c *Client) renew(ctx context.Context, params AuthParams, record CacheRecord) (AuthResult, error) {
	if record.RefreshToken == nil {
		return AuthResult{}, errors.NewClientError(errors.NoTokensFound, "no refresh token found for the account", nil)
	}
	if c.refresher == nil {
		return AuthResult{}, errors.NewClientError(errors.NullObject, "no refresher configured", nil)
	}
	if params.Environment == "" {
		params.Environment = record.Account.Environment
	}
	if params.Realm == "" || isCommonRealm(params.Realm) {
		params.Realm = record.Account.Realm
	}

	token, err := c.refresher.Refresh(ctx, params, record.RefreshToken.Secret)
	if err != nil {
		switch {
		case errors.IsInvalidGrant(err):
			c.logger.Log(ctx, logger.Warn, "refresh token rejected, removing it", logger.Field("correlation_id", params.CorrelationID))
			if _, rmErr := c.cache.RemoveCredential(ctx, record.RefreshToken); rmErr != nil {
				c.logger.Log(ctx, logger.Err, "failed to remove refresh token", logger.Field("error", rmErr.Error()))
			}
		case errors.IsServiceUnavailable(err) && record.AccessToken != nil && !record.AccessToken.IsExtendedExpired():
			c.logger.Log(ctx, logger.Warn, "token service unavailable, returning cached access token", logger.Field("correlation_id", params.CorrelationID))
			return authResultFromRecord(record, true, params.CorrelationID)
		}
		return AuthResult{}, err
	}

	if token.RefreshToken == "" {
		token.RefreshToken = record.RefreshToken.Secret
	}
	saved, err := c.cache.SaveTokens(ctx, params, token)
	if err != nil {
		return AuthResult{}, err
	}
	return authResultFromRecord(saved, false, params.CorrelationID)
}
