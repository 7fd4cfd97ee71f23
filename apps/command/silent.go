// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/base"
)

// Controller acquires tokens. *base.Client is the local implementation.
type Controller interface {
	AcquireTokenSilent(ctx context.Context, params base.AuthParams) (base.AuthResult, error)
	RenewAccessToken(ctx context.Context, params base.AuthParams) (base.AuthResult, error)
}

// SilentTokenCommand acquires a token without user interaction. Its value is a base.AuthResult.
type SilentTokenCommand struct {
	// Params may be changed after submission. The dispatcher keys the command by the
	// DedupKey computed when it was submitted.
	Params     base.AuthParams
	Controller Controller
	// Renew forces a refresh through Controller.RenewAccessToken.
	Renew bool

	callback Callback
}

// NewSilentTokenCommand returns a command acquiring a token for params through c.
func NewSilentTokenCommand(c Controller, params base.AuthParams, callback Callback) *SilentTokenCommand {
	return &SilentTokenCommand{Params: params, Controller: c, callback: callback}
}

// Execute implements Command.
func (s *SilentTokenCommand) Execute(ctx context.Context) (any, error) {
	params := s.Params
	if params.CorrelationID == "" {
		params.CorrelationID = CorrelationIDFrom(ctx)
	}
	if s.Renew {
		return s.Controller.RenewAccessToken(ctx, params)
	}
	return s.Controller.AcquireTokenSilent(ctx, params)
}

func (s *SilentTokenCommand) Callback() Callback { return s.callback }

// EligibleForCaching implements Command. Silent requests are always deduplicated.
func (s *SilentTokenCommand) EligibleForCaching() bool { return true }

func (s *SilentTokenCommand) CorrelationID() string { return s.Params.CorrelationID }

// DedupKey is a SHA-256 over the normalized parameters. Case, scope order and duplicate
// scopes do not change it, and neither does the correlation id.
func (s *SilentTokenCommand) DedupKey() string {
	p := s.Params
	kind := "silent"
	if s.Renew {
		kind = "renew"
	}
	// the cache takes the environment, and the realm of an unscoped request, from the account
	var home, accountEnv, accountRealm string
	if p.Account != nil {
		home = p.Account.HomeAccountID
		accountEnv = p.Account.Environment
		accountRealm = p.Account.Realm
	}

	h := sha256.New()
	for _, field := range []string{
		kind,
		strings.ToLower(p.ClientID),
		strings.ToLower(p.Environment),
		strings.ToLower(p.Realm),
		strings.ToLower(home),
		strings.ToLower(accountEnv),
		strings.ToLower(accountRealm),
		normalizedScopes(p.Scopes),
		strings.ToLower(p.ApplicationIdentifier),
		strings.ToLower(p.MamEnrollmentIdentifier),
		strings.ToLower(p.AuthScheme),
		p.Claims,
		strconv.Itoa(p.ApplicationUID),
		strconv.FormatBool(p.V1IDToken),
		strconv.FormatBool(p.ForceRefresh),
	} {
		h.Write([]byte(strings.TrimSpace(field)))
		// field separator that cannot appear in the fields
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizedScopes(scopes []string) string {
	set := map[string]bool{}
	for _, s := range scopes {
		for _, f := range strings.Fields(s) {
			set[strings.ToLower(f)] = true
		}
	}
	sorted := make([]string, 0, len(set))
	for s := range set {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
