// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/json"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
)

// errEmptyRecord is returned when a stored value decodes to a record with no fields set.
var errEmptyRecord = errors.New("cache value decoded to an empty record")

// CacheKey generates the key for an Account, *Account or Credential.
func CacheKey(record interface{}) (string, error) {
	switch r := record.(type) {
	case Account:
		return r.Key(), nil
	case *Account:
		return r.Key(), nil
	case Credential:
		return r.Key(), nil
	}
	return "", fmt.Errorf("cannot generate a cache key for %T", record)
}

// CacheValue serializes an Account, *Account or Credential to its stored JSON form,
// including any additional fields.
func CacheValue(record interface{}) (string, error) {
	switch record.(type) {
	case Account, *Account, Credential:
	default:
		return "", fmt.Errorf("cannot generate a cache value for %T", record)
	}
	b, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CredentialTypeForKey returns the credential type marker embedded in key. ok is false for
// account keys.
func CredentialTypeForKey(key string) (t CredentialType, ok bool) {
	lower := strings.ToLower(key)
	for _, ct := range CredentialTypes {
		if strings.Contains(lower, shared.CacheKeySeparator+strings.ToLower(string(ct))+shared.CacheKeySeparator) {
			return ct, true
		}
	}
	return "", false
}

// IsAccountKey reports whether key addresses an account rather than a credential.
func IsAccountKey(key string) bool {
	_, ok := CredentialTypeForKey(key)
	return !ok
}

// newCredential returns an empty record able to hold a credential of type t.
func newCredential(t CredentialType) Credential {
	switch t {
	case AccessTokenType, AccessTokenWithAuthSchemeType:
		return &AccessToken{}
	case RefreshTokenType, PrimaryRefreshTokenType:
		return &RefreshToken{}
	case IDTokenType, V1IDTokenType:
		return &IDToken{}
	}
	return nil
}

// accountFromValue decodes value. An empty record is reported as errEmptyRecord.
func accountFromValue(value string) (*Account, error) {
	acc := &Account{}
	if err := json.Unmarshal([]byte(value), acc); err != nil {
		return nil, err
	}
	if reflect.ValueOf(*acc).IsZero() {
		return nil, errEmptyRecord
	}
	return acc, nil
}

// credentialFromValue decodes value into the credential type named by key.
func credentialFromValue(key, value string) (Credential, error) {
	t, ok := CredentialTypeForKey(key)
	if !ok {
		return nil, fmt.Errorf("key %q has no credential type", key)
	}
	cred := newCredential(t)
	if err := json.Unmarshal([]byte(value), cred); err != nil {
		return nil, err
	}
	if reflect.ValueOf(cred).Elem().IsZero() {
		return nil, errEmptyRecord
	}
	return cred, nil
}

// mergeAdditional returns next with the entries of prev it does not define itself.
func mergeAdditional(prev, next map[string]interface{}) map[string]interface{} {
	if len(prev) == 0 {
		return next
	}
	merged := make(map[string]interface{}, len(prev)+len(next))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range next {
		merged[k] = v
	}
	return merged
}

// KeyComponents are the fields recovered from a cache key by ParseKey.
type KeyComponents struct {
	HomeAccountID  string
	Environment    string
	Realm          string
	CredentialType CredentialType
	ClientID       string
	Target         string
}

// IsAccount reports whether the key addressed an account.
func (k KeyComponents) IsAccount() bool {
	return k.CredentialType == ""
}

// ParseKey splits a cache key into its fields on a best effort basis. Home account ids,
// client ids and tenant ids are commonly GUIDs, which contain the separator, so GUID shaped
// segments are kept whole. Fields that cannot be recovered are left empty; ParseKey never fails.
func ParseKey(key string) KeyComponents {
	var kc KeyComponents
	lower := strings.ToLower(key)

	if t, ok := CredentialTypeForKey(key); ok {
		marker := shared.CacheKeySeparator + strings.ToLower(string(t)) + shared.CacheKeySeparator
		i := strings.Index(lower, marker)
		kc.CredentialType = t
		kc.HomeAccountID, kc.Environment = cutLastSegment(lower[:i])
		rest := lower[i+len(marker):]
		kc.ClientID, rest = cutSegment(rest)
		kc.Realm, rest = cutSegment(rest)
		kc.Target = rest
		return kc
	}

	head, realm := cutLastSegment(lower)
	kc.Realm = realm
	kc.HomeAccountID, kc.Environment = cutLastSegment(head)
	return kc
}

const guidLen = 36

func isGUID(s string) bool {
	if len(s) != guidLen {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !strings.ContainsRune("0123456789abcdef", c) {
				return false
			}
		}
	}
	return true
}

// cutSegment returns the first segment of s and the remainder after its separator.
func cutSegment(s string) (seg, rest string) {
	if len(s) >= guidLen && isGUID(s[:guidLen]) && (len(s) == guidLen || strings.HasPrefix(s[guidLen:], shared.CacheKeySeparator)) {
		return s[:guidLen], strings.TrimPrefix(s[guidLen:], shared.CacheKeySeparator)
	}
	seg, rest, _ = strings.Cut(s, shared.CacheKeySeparator)
	return seg, rest
}

// cutLastSegment returns s without its last segment, and that segment.
func cutLastSegment(s string) (head, last string) {
	if len(s) >= guidLen && isGUID(s[len(s)-guidLen:]) {
		h := s[:len(s)-guidLen]
		if h == "" || strings.HasSuffix(h, shared.CacheKeySeparator) {
			return strings.TrimSuffix(h, shared.CacheKeySeparator), s[len(s)-guidLen:]
		}
	}
	i := strings.LastIndex(s, shared.CacheKeySeparator)
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+1:]
}
