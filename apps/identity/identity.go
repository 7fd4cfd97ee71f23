// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package identity provides a Client that caches accounts and tokens and acquires access tokens
silently, refreshing them when needed.

Concurrent silent requests for the same account, scopes and parameters share one execution:

	client, err := identity.New(memory.New(), identity.WithLogger(slog.Default()))
	if err != nil {
		// TODO: handle error
	}
	defer client.Close(ctx)

	result, err := client.AcquireTokenSilent(ctx, identity.AuthParams{
		ClientID:    clientID,
		Environment: "login.microsoftonline.com",
		Realm:       "common",
		Scopes:      []string{"user.read"},
		Account:     &account,
	})
*/
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/encrypted"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memcache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/sqlite"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/command"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/config"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/dispatcher"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/base"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
	"golang.org/x/oauth2"
)

// Cache record and request types.
type (
	Account               = base.Account
	Credential            = base.Credential
	AccessToken           = base.AccessToken
	RefreshToken          = base.RefreshToken
	IDToken               = base.IDToken
	AuthParams            = base.AuthParams
	AuthResult            = base.AuthResult
	CacheRecord           = base.CacheRecord
	AccountDeletionRecord = base.AccountDeletionRecord
	Adapter               = base.Adapter
	Refresher             = base.Refresher
)

// Key prefixes separating the token cache from the application metadata in a shared store.
const (
	tokensNamespace   = "tokens/"
	metadataNamespace = "metadata/"
)

type clientOptions struct {
	logger     *slog.Logger
	refresher  Refresher
	adapter    Adapter
	dispatcher config.DispatcherConfig
}

// Option is an optional argument to New and Open.
type Option func(o *clientOptions)

// WithLogger enables logging. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithRefresher sets how refresh tokens are redeemed. The default is a base.OAuth2Refresher
// using the v2 token endpoint of the request's environment and realm.
func WithRefresher(r Refresher) Option {
	return func(o *clientOptions) {
		o.refresher = r
	}
}

// WithAdapter sets how token responses become cache records.
func WithAdapter(a Adapter) Option {
	return func(o *clientOptions) {
		o.adapter = a
	}
}

// WithDispatcherConfig sizes the pools and sets the silent request timeout.
func WithDispatcherConfig(c config.DispatcherConfig) Option {
	return func(o *clientOptions) {
		o.dispatcher = c
	}
}

// Client is the entry point of the package. It is safe for concurrent use.
type Client struct {
	tokens     *base.TokenCache
	controller *base.Client
	dispatcher *dispatcher.Dispatcher
	logger     logger.LoggerInterface

	// closeStore releases a store opened by Open.
	closeStore func() error
}

// New returns a Client keeping its cache in store. Several clients may share a store.
func New(store cache.Storage, options ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.NewClientError(errors.NullObject, "store is nil", nil)
	}
	opts := clientOptions{
		refresher: base.OAuth2Refresher{},
		dispatcher: config.DispatcherConfig{
			SilentPoolSize:     dispatcher.DefaultSchedulerConfig().SilentPoolSize,
			DeviceCodePoolSize: dispatcher.DefaultSchedulerConfig().DeviceCodePoolSize,
			SilentTimeout:      dispatcher.DefaultSilentTimeout,
			ShutdownGrace:      dispatcher.DefaultSchedulerConfig().ShutdownGrace,
		},
	}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.dispatcher.Validate(); err != nil {
		return nil, errors.NewClientError(errors.InvalidParameter, err.Error(), err)
	}

	log := logger.Discard()
	if opts.logger != nil {
		log = logger.New(opts.logger)
	}
	manager := base.NewManager(cache.Namespace(store, tokensNamespace), log)
	metadata := base.NewAppMetadataCache(cache.Namespace(store, metadataNamespace), log)
	tokens := base.NewTokenCache(manager, opts.adapter, base.WithAppMetadata(metadata), base.WithLogger(log))

	scheduler := dispatcher.NewScheduler(dispatcher.SchedulerConfig{
		SilentPoolSize:     opts.dispatcher.SilentPoolSize,
		DeviceCodePoolSize: opts.dispatcher.DeviceCodePoolSize,
		ShutdownGrace:      opts.dispatcher.ShutdownGrace,
	})
	return &Client{
		tokens:     tokens,
		controller: base.New(tokens, opts.refresher, base.WithClientLogger(log)),
		dispatcher: dispatcher.New(scheduler, dispatcher.WithLogger(log), dispatcher.WithSilentTimeout(opts.dispatcher.SilentTimeout)),
		logger:     log,
	}, nil
}

// Open returns a Client whose store is described by cfg: SQLite when cfg.Cache.DSN is set,
// behind a memory layer unless cfg.Cache.MemoryCacheSize is 0, otherwise memory. Values are
// encrypted when cfg.Cache.Passphrase is set. cfg.Dispatcher applies unless an option
// overrides it.
func Open(ctx context.Context, cfg config.Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewClientError(errors.InvalidParameter, err.Error(), err)
	}

	var (
		store      cache.Storage
		closeStore func() error
	)
	if cfg.Cache.DSN == "" {
		store = memory.New()
	} else {
		db, err := sqlite.Open(ctx, cfg.Cache.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening the cache: %w", err)
		}
		store, closeStore = db, db.Close
		if cfg.Cache.MemoryCacheSize > 0 {
			store = memcache.New(store, cfg.Cache.MemoryCacheSize)
		}
	}
	if cfg.Cache.Passphrase != "" {
		key, err := encrypted.KeyFromPassphrase(cfg.Cache.Passphrase, []byte(cfg.Cache.Salt))
		if err != nil {
			if closeStore != nil {
				_ = closeStore()
			}
			return nil, err
		}
		store = encrypted.New(store, key)
	}

	opts := []Option{WithDispatcherConfig(cfg.Dispatcher)}
	if cfg.Cache.TokenURL != "" {
		opts = append(opts, WithRefresher(base.OAuth2Refresher{TokenURL: cfg.Cache.TokenURL}))
	}
	c, err := New(store, append(opts, options...)...)
	if err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		return nil, err
	}
	c.closeStore = closeStore
	return c, nil
}

// AcquireTokenSilent returns an access token for params.Account from the cache, refreshing it
// when it is missing or due for refresh. It waits at most the silent timeout.
func (c *Client) AcquireTokenSilent(ctx context.Context, params AuthParams) (AuthResult, error) {
	return c.silentSync(ctx, params, false)
}

// RenewAccessToken redeems the cached refresh token for params.Account.
func (c *Client) RenewAccessToken(ctx context.Context, params AuthParams) (AuthResult, error) {
	return c.silentSync(ctx, params, true)
}

func (c *Client) silentSync(ctx context.Context, params AuthParams, renew bool) (AuthResult, error) {
	cmd := command.NewSilentTokenCommand(c.controller, params, nil)
	cmd.Renew = renew
	v, err := c.dispatcher.SubmitAcquireTokenSilentSync(ctx, cmd)
	if err != nil {
		return AuthResult{}, err
	}
	result, ok := v.(AuthResult)
	if !ok {
		return AuthResult{}, errors.NewClientError(errors.UnknownError, fmt.Sprintf("silent request returned %T", v), nil)
	}
	return result, nil
}

// AcquireTokenSilentAsync submits a silent request. The value passed to the callback's
// OnTaskCompleted is an AuthResult.
func (c *Client) AcquireTokenSilentAsync(params AuthParams, callback command.Callback) (*dispatcher.Future, error) {
	return c.dispatcher.SubmitSilentReturningFuture(command.NewSilentTokenCommand(c.controller, params, callback))
}

// SaveTokens stores the account and tokens of a token response obtained for params, such as
// the response of an interactive or device code sign-in.
func (c *Client) SaveTokens(ctx context.Context, params AuthParams, token *oauth2.Token) (CacheRecord, error) {
	return c.tokens.SaveTokens(ctx, params, token)
}

// Accounts returns the accounts environment holds a refresh token or id token for clientID for.
func (c *Client) Accounts(ctx context.Context, environment, clientID string) ([]Account, error) {
	return c.tokens.GetAccounts(ctx, environment, clientID)
}

// AccountsWithAggregatedAccountData returns a record per account of clientID, with the id
// token of every tenant profile the account has.
func (c *Client) AccountsWithAggregatedAccountData(ctx context.Context, environment, clientID string) ([]CacheRecord, error) {
	return c.tokens.GetAccountsWithAggregatedAccountData(ctx, environment, clientID)
}

// AllAccounts returns every cached account, whatever client it belongs to.
func (c *Client) AllAccounts(ctx context.Context) ([]Account, error) {
	return c.tokens.Manager().GetAccounts(ctx)
}

// Credentials returns every cached credential.
func (c *Client) Credentials(ctx context.Context) ([]Credential, error) {
	return c.tokens.Manager().GetCredentials(ctx)
}

// RemoveAccount removes the account and the credentials clientID holds for it. Nothing is
// removed when clientID holds no refresh token or id token for the account. An empty realm
// removes every tenant profile of the account.
func (c *Client) RemoveAccount(ctx context.Context, environment, clientID, homeAccountID, realm string) (AccountDeletionRecord, error) {
	return c.tokens.RemoveAccount(ctx, environment, clientID, homeAccountID, realm)
}

// ForceRemoveAccount is RemoveAccount without the refresh token or id token requirement.
func (c *Client) ForceRemoveAccount(ctx context.Context, environment, clientID, homeAccountID, realm string) (AccountDeletionRecord, error) {
	return c.tokens.ForceRemoveAccount(ctx, environment, clientID, homeAccountID, realm)
}

// SignOutAll stops silent requests, clears the cache and resumes silent requests. Silent
// requests in flight complete with an error.
func (c *Client) SignOutAll(ctx context.Context) error {
	c.dispatcher.StopSilentRequestExecutor(ctx)
	defer c.dispatcher.ResetSilentRequestExecutor()
	if err := c.tokens.ClearAll(ctx); err != nil {
		return err
	}
	c.logger.Log(ctx, logger.Info, "signed out all accounts")
	return nil
}

// Dispatcher returns the dispatcher silent requests run on, for submitting other commands.
func (c *Client) Dispatcher() *dispatcher.Dispatcher {
	return c.dispatcher
}

// Close stops every pool, waiting up to the shutdown grace, then releases a store opened by
// Open. The Client must not be used afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.dispatcher.Scheduler().Stop(ctx)
	if c.closeStore != nil {
		return c.closeStore()
	}
	return nil
}
