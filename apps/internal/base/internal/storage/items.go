// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	internalTime "github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/json/types/time"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
)

// CredentialType is the credential_type marker of a credential. Its lowercased form is
// embedded in every credential key.
type CredentialType string

const (
	AccessTokenType               CredentialType = "AccessToken"
	AccessTokenWithAuthSchemeType CredentialType = "AccessToken_With_AuthScheme"
	RefreshTokenType              CredentialType = "RefreshToken"
	IDTokenType                   CredentialType = "IdToken"
	V1IDTokenType                 CredentialType = "V1IdToken"
	PrimaryRefreshTokenType       CredentialType = "PrimaryRefreshToken"
)

// CredentialTypes lists every known credential type.
var CredentialTypes = []CredentialType{
	AccessTokenType,
	AccessTokenWithAuthSchemeType,
	RefreshTokenType,
	IDTokenType,
	V1IDTokenType,
	PrimaryRefreshTokenType,
}

// ParseCredentialType matches s against the known types, ignoring case.
func ParseCredentialType(s string) (CredentialType, bool) {
	for _, t := range CredentialTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, true
		}
	}
	return "", false
}

// IsAccessToken reports whether t is either access token flavour.
func (t CredentialType) IsAccessToken() bool {
	return t == AccessTokenType || t == AccessTokenWithAuthSchemeType
}

// IsIDToken reports whether t is either id token flavour.
func (t CredentialType) IsIDToken() bool {
	return t == IDTokenType || t == V1IDTokenType
}

// Account is the JSON representation of a signed-in user within an environment and tenant.
type Account struct {
	HomeAccountID        string `json:"home_account_id,omitempty"`
	Environment          string `json:"environment,omitempty"`
	Realm                string `json:"realm,omitempty"`
	LocalAccountID       string `json:"local_account_id,omitempty"`
	Username             string `json:"username,omitempty"`
	AuthorityType        string `json:"authority_type,omitempty"`
	AlternativeAccountID string `json:"alternative_account_id,omitempty"`
	FirstName            string `json:"first_name,omitempty"`
	FamilyName           string `json:"family_name,omitempty"`
	MiddleName           string `json:"middle_name,omitempty"`
	Name                 string `json:"name,omitempty"`
	AvatarURL            string `json:"avatar_url,omitempty"`
	ClientInfo           string `json:"client_info,omitempty"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a Account) Key() string {
	return joinKey(a.HomeAccountID, a.Environment, a.Realm)
}

// Credential is implemented by *AccessToken, *RefreshToken and *IDToken.
type Credential interface {
	// Base returns the fields every credential shares.
	Base() *CredentialBase
	// Key outputs the key that can be used to uniquely look up this entry in a map.
	Key() string

	additional() *map[string]interface{}
}

// CredentialBase holds the fields common to all credentials.
type CredentialBase struct {
	HomeAccountID  string            `json:"home_account_id,omitempty"`
	Environment    string            `json:"environment,omitempty"`
	CredentialType CredentialType    `json:"credential_type,omitempty"`
	ClientID       string            `json:"client_id,omitempty"`
	Secret         string            `json:"secret,omitempty"`
	CachedAt       internalTime.Unix `json:"cached_at,omitzero"`
	ExpiresOn      internalTime.Unix `json:"expires_on,omitzero"`
}

// Base implements Credential.
func (b *CredentialBase) Base() *CredentialBase {
	return b
}

// AccessToken is the JSON representation of an access token for encoding to storage.
type AccessToken struct {
	CredentialBase
	Realm                   string            `json:"realm,omitempty"`
	Target                  string            `json:"target,omitempty"`
	ExtendedExpiresOn       internalTime.Unix `json:"extended_expires_on,omitzero"`
	RefreshOn               internalTime.Unix `json:"refresh_on,omitzero"`
	TokenType               string            `json:"token_type,omitempty"`
	Authority               string            `json:"authority,omitempty"`
	KID                     string            `json:"kid,omitempty"`
	RequestedClaims         string            `json:"requested_claims,omitempty"`
	ApplicationIdentifier   string            `json:"application_identifier,omitempty"`
	MamEnrollmentIdentifier string            `json:"mam_enrollment_identifier,omitempty"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// NewAccessToken is the constructor for AccessToken.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, target, token string) *AccessToken {
	return &AccessToken{
		CredentialBase: CredentialBase{
			HomeAccountID:  homeID,
			Environment:    env,
			CredentialType: AccessTokenType,
			ClientID:       clientID,
			Secret:         token,
			CachedAt:       internalTime.At(cachedAt),
			ExpiresOn:      internalTime.At(expiresOn),
		},
		Realm:             realm,
		Target:            target,
		ExtendedExpiresOn: internalTime.At(extendedExpiresOn),
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
// Application and MAM identifiers, the auth scheme and a digest of requested claims are
// appended when present so tokens that differ in them do not collide.
func (a AccessToken) Key() string {
	key := joinKey(a.HomeAccountID, a.Environment, string(a.CredentialType), a.ClientID, a.Realm, a.Target)
	var suffix []string
	if s := normalize(a.ApplicationIdentifier); s != "" {
		suffix = append(suffix, s)
	}
	if s := normalize(a.MamEnrollmentIdentifier); s != "" {
		suffix = append(suffix, s)
	}
	if a.CredentialType == AccessTokenWithAuthSchemeType {
		if s := normalize(a.TokenType); s != "" {
			suffix = append(suffix, s)
		}
	}
	if strings.TrimSpace(a.RequestedClaims) != "" {
		sum := sha256.Sum256([]byte(a.RequestedClaims))
		suffix = append(suffix, hex.EncodeToString(sum[:]))
	}
	if len(suffix) == 0 {
		return key
	}
	return key + shared.CacheKeySeparator + strings.Join(suffix, shared.CacheKeySeparator)
}

// IsExpired reports whether expires_on has passed.
func (a *AccessToken) IsExpired() bool {
	return a.ExpiresOn.Before(time.Now())
}

// IsExtendedExpired reports whether the token is past its extended lifetime. Without an
// extended expiry this is IsExpired.
func (a *AccessToken) IsExtendedExpired() bool {
	if a.ExtendedExpiresOn.IsZero() {
		return a.IsExpired()
	}
	return a.ExtendedExpiresOn.Before(time.Now())
}

// ShouldRefresh reports whether the service recommended refresh time, or failing that
// the expiry, has passed.
func (a *AccessToken) ShouldRefresh() bool {
	if !a.RefreshOn.IsZero() {
		return a.RefreshOn.Before(time.Now())
	}
	return a.IsExpired()
}

func (a *AccessToken) additional() *map[string]interface{} { return &a.AdditionalFields }

// RefreshToken is the JSON representation of a refresh token for encoding to storage.
type RefreshToken struct {
	CredentialBase
	Target   string `json:"target,omitempty"`
	FamilyID string `json:"family_id,omitempty"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// NewRefreshToken is the constructor for RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) *RefreshToken {
	return &RefreshToken{
		CredentialBase: CredentialBase{
			HomeAccountID:  homeID,
			Environment:    env,
			CredentialType: RefreshTokenType,
			ClientID:       clientID,
			Secret:         refreshToken,
		},
		FamilyID: familyID,
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
// Refresh tokens are not tenant bound, so the realm segment is always empty. A family
// refresh token is keyed by its family id so every client in the family shares it.
func (r RefreshToken) Key() string {
	client := r.ClientID
	if r.FamilyID != "" {
		client = shared.StripFociPrefix(strings.TrimSpace(r.FamilyID))
	}
	return joinKey(r.HomeAccountID, r.Environment, string(r.CredentialType), client, "", r.Target)
}

// IsFamily reports whether the token is a family-of-client-ids refresh token.
func (r *RefreshToken) IsFamily() bool {
	return strings.TrimSpace(r.FamilyID) != ""
}

func (r *RefreshToken) additional() *map[string]interface{} { return &r.AdditionalFields }

// IDToken is the JSON representation of an id token for encoding to storage.
type IDToken struct {
	CredentialBase
	Realm     string `json:"realm,omitempty"`
	Authority string `json:"authority,omitempty"`

	AdditionalFields map[string]interface{} `json:"-"`
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) *IDToken {
	return &IDToken{
		CredentialBase: CredentialBase{
			HomeAccountID:  homeID,
			Environment:    env,
			CredentialType: IDTokenType,
			ClientID:       clientID,
			Secret:         idToken,
		},
		Realm: realm,
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (id IDToken) Key() string {
	return joinKey(id.HomeAccountID, id.Environment, string(id.CredentialType), id.ClientID, id.Realm, "")
}

func (id *IDToken) additional() *map[string]interface{} { return &id.AdditionalFields }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func joinKey(fields ...string) string {
	for i, f := range fields {
		fields[i] = normalize(f)
	}
	return strings.Join(fields, shared.CacheKeySeparator)
}
