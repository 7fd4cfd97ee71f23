// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command identitycache inspects and edits a SQLite token cache.
//
// The cache is configured through the IDENTITY_* environment variables of the config package;
// --dsn overrides IDENTITY_CACHE_DSN.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/config"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/identity"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

const redacted = "<redacted>"

type rootOptions struct {
	dsn     string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "identitycache",
		Short:         "Inspect and edit a token cache",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "SQLite data source name of the cache (default $IDENTITY_CACHE_DSN)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log cache operations to stderr")

	root.AddCommand(
		newAccountsCmd(opts),
		newCredentialsCmd(opts),
		newRemoveAccountCmd(opts),
		newClearCmd(opts),
	)
	return root
}

// open opens the configured cache. Callers close the client.
func (o *rootOptions) open(cmd *cobra.Command) (*identity.Client, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	if o.dsn != "" {
		cfg.Cache.DSN = o.dsn
	}
	if cfg.Cache.DSN == "" {
		return nil, fmt.Errorf("no cache: set --dsn or IDENTITY_CACHE_DSN")
	}
	var options []identity.Option
	if o.verbose {
		options = append(options, identity.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	return identity.Open(cmd.Context(), cfg, options...)
}

// withClient runs fn with a client for the configured cache and closes it afterwards.
func (o *rootOptions) withClient(cmd *cobra.Command, fn func(c *identity.Client) error) error {
	c, err := o.open(cmd)
	if err != nil {
		return err
	}
	err = fn(c)
	if cerr := c.Close(cmd.Context()); err == nil {
		err = cerr
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	var environment, clientID string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List cached accounts",
		Long: `Lists cached accounts as JSON. With --client only accounts the client holds a
refresh token or id token for are listed.`,
		Example: `  identitycache accounts --dsn cache.db
  identitycache accounts --dsn cache.db --env login.microsoftonline.com --client <client-id>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *identity.Client) error {
				var (
					accounts []identity.Account
					err      error
				)
				if clientID != "" {
					accounts, err = c.Accounts(cmd.Context(), environment, clientID)
				} else {
					accounts, err = c.AllAccounts(cmd.Context())
				}
				if err != nil {
					return err
				}
				if accounts == nil {
					accounts = []identity.Account{}
				}
				return printJSON(cmd.OutOrStdout(), accounts)
			})
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment the accounts belong to")
	cmd.Flags().StringVar(&clientID, "client", "", "Client id holding the accounts' tokens")
	return cmd
}

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "List cached credentials",
		Long:  `Lists cached credentials as JSON. Secrets are redacted unless --show-secrets is given.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *identity.Client) error {
				creds, err := c.Credentials(cmd.Context())
				if err != nil {
					return err
				}
				if creds == nil {
					creds = []identity.Credential{}
				}
				if !showSecrets {
					for _, cred := range creds {
						cred.Base().Secret = redacted
					}
				}
				return printJSON(cmd.OutOrStdout(), creds)
			})
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print token values")
	return cmd
}

func newRemoveAccountCmd(opts *rootOptions) *cobra.Command {
	var environment, clientID, homeAccountID, realm string
	var force bool
	cmd := &cobra.Command{
		Use:   "remove-account",
		Short: "Remove an account and its credentials",
		Long: `Removes an account and the credentials the client holds for it, and prints what was
removed. Without --force nothing is removed unless the client holds a refresh token or id
token for the account. An empty --realm removes every tenant profile of the account.`,
		Example: `  identitycache remove-account --dsn cache.db --env login.microsoftonline.com --client <client-id> --home <uid>.<utid>`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *identity.Client) error {
				remove := c.RemoveAccount
				if force {
					remove = c.ForceRemoveAccount
				}
				removed, err := remove(cmd.Context(), environment, clientID, homeAccountID, realm)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), removed)
			})
		},
	}
	cmd.Flags().StringVar(&environment, "env", "", "Environment of the account")
	cmd.Flags().StringVar(&clientID, "client", "", "Client id whose credentials are removed")
	cmd.Flags().StringVar(&homeAccountID, "home", "", "Home account id, <uid>.<utid>")
	cmd.Flags().StringVar(&realm, "realm", "", "Tenant profile to remove")
	cmd.Flags().BoolVar(&force, "force", false, "Remove the account even if the client holds no token for it")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("home")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every account and credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *identity.Client) error {
				return c.SignOutAll(cmd.Context())
			})
		},
	}
}
