// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"strings"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
)

// CredentialFilter selects credentials. Every empty field is a wildcard; set fields are
// compared without regard to case or surrounding whitespace.
type CredentialFilter struct {
	HomeAccountID string
	Environment   string
	// Types matches any of the listed types.
	Types    []CredentialType
	ClientID string
	// FamilyID only matches refresh tokens of that family. The "foci-" prefix is ignored.
	FamilyID string
	// Realm applies to access tokens and id tokens.
	Realm string
	// Target applies to access tokens and refresh tokens. A credential matches when its
	// scopes are a superset of the requested ones, in any order. The default OIDC scopes
	// are ignored on both sides.
	Target string
	// AuthScheme is compared with the token type of AccessToken_With_AuthScheme tokens.
	AuthScheme              string
	RequestedClaims         string
	ApplicationIdentifier   string
	MamEnrollmentIdentifier string
}

func (f CredentialFilter) matchesType(t CredentialType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if strings.EqualFold(string(want), string(t)) {
			return true
		}
	}
	return false
}

// Matches reports whether cred satisfies f. Cheap, discriminating fields are checked first.
func (f CredentialFilter) Matches(cred Credential) bool {
	if cred == nil {
		return false
	}
	b := cred.Base()
	switch {
	case !f.matchesType(b.CredentialType):
		return false
	case !fieldMatches(f.Environment, b.Environment):
		return false
	case !fieldMatches(f.HomeAccountID, b.HomeAccountID):
		return false
	case !fieldMatches(f.ClientID, b.ClientID):
		return false
	}

	switch c := cred.(type) {
	case *AccessToken:
		return fieldMatches(f.Realm, c.Realm) &&
			targetMatches(f.Target, c.Target) &&
			fieldMatches(f.RequestedClaims, c.RequestedClaims) &&
			fieldMatches(f.ApplicationIdentifier, c.ApplicationIdentifier) &&
			fieldMatches(f.MamEnrollmentIdentifier, c.MamEnrollmentIdentifier) &&
			(c.CredentialType != AccessTokenWithAuthSchemeType || fieldMatches(f.AuthScheme, c.TokenType)) &&
			f.FamilyID == ""
	case *RefreshToken:
		if f.FamilyID != "" && !shared.EqualFoldTrim(shared.StripFociPrefix(strings.TrimSpace(f.FamilyID)), shared.StripFociPrefix(strings.TrimSpace(c.FamilyID))) {
			return false
		}
		return targetMatches(f.Target, c.Target)
	case *IDToken:
		return fieldMatches(f.Realm, c.Realm) && f.FamilyID == ""
	}
	return true
}

// FilterCredentials returns the members of creds matching f, keeping their order.
func FilterCredentials(creds []Credential, f CredentialFilter) []Credential {
	var out []Credential
	for _, c := range creds {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// FilterAccounts returns the members of accounts matching every non-empty argument.
func FilterAccounts(accounts []Account, homeAccountID, environment, realm string) []Account {
	var out []Account
	for _, a := range accounts {
		if fieldMatches(environment, a.Environment) &&
			fieldMatches(homeAccountID, a.HomeAccountID) &&
			fieldMatches(realm, a.Realm) {
			out = append(out, a)
		}
	}
	return out
}

func fieldMatches(want, have string) bool {
	if strings.TrimSpace(want) == "" {
		return true
	}
	return shared.EqualFoldTrim(want, have)
}

func targetMatches(want, have string) bool {
	requested := shared.WithoutDefaultScopes(shared.Scopes(want))
	if len(requested) == 0 {
		return true
	}
	return shared.ContainsAll(shared.WithoutDefaultScopes(shared.Scopes(have)), requested)
}
