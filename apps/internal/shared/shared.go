// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package shared holds constants and scope helpers used by both the cache engine and
// the token cache orchestration.
package shared

import (
	"sort"
	"strings"
)

const (
	// CacheKeySeparator is used in creating the keys of the cache.
	CacheKeySeparator = "-"

	// FociPrefix is stripped from family ids before they are used in a cache key.
	FociPrefix = "foci-"

	// AuthorityTypeMSSTS marks accounts from the v2 endpoint, whose refresh tokens are multi-resource.
	AuthorityTypeMSSTS = "MSSTS"
	// AuthorityTypeAAD marks v1 endpoint accounts.
	AuthorityTypeAAD = "AAD"
)

// DefaultScopes are the OIDC scopes requested with every token. They never discriminate
// between cached tokens.
var DefaultScopes = map[string]bool{
	"openid":         true,
	"profile":        true,
	"offline_access": true,
}

// Scopes splits a space-delimited target into a lowercased set.
func Scopes(target string) map[string]bool {
	set := map[string]bool{}
	for _, s := range strings.Fields(target) {
		set[strings.ToLower(s)] = true
	}
	return set
}

// WithoutDefaultScopes returns set minus DefaultScopes.
func WithoutDefaultScopes(set map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for s := range set {
		if !DefaultScopes[s] {
			out[s] = true
		}
	}
	return out
}

// ContainsAll reports whether every scope in want is also in have.
func ContainsAll(have, want map[string]bool) bool {
	for s := range want {
		if !have[s] {
			return false
		}
	}
	return true
}

// Intersects reports whether a and b share at least one scope.
func Intersects(a, b map[string]bool) bool {
	for s := range a {
		if b[s] {
			return true
		}
	}
	return false
}

// JoinScopes renders a scope set in a stable order.
func JoinScopes(set map[string]bool) string {
	l := make([]string, 0, len(set))
	for s := range set {
		l = append(l, s)
	}
	sort.Strings(l)
	return strings.Join(l, " ")
}

// EqualFoldTrim compares two values ignoring case and surrounding whitespace.
func EqualFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// StripFociPrefix removes a leading "foci-" from a family id.
func StripFociPrefix(familyID string) string {
	if len(familyID) >= len(FociPrefix) && strings.EqualFold(familyID[:len(FociPrefix)], FociPrefix) {
		return familyID[len(FociPrefix):]
	}
	return familyID
}
