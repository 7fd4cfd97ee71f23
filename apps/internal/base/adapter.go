// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package base

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/base/internal/storage"
	internalTime "github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/json/types/time"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Adapter turns a token response into cache records. Implementations may return a nil access
// token or id token when the response carries none.
type Adapter interface {
	CreateAccount(params AuthParams, token *oauth2.Token) (Account, error)
	CreateAccessToken(params AuthParams, token *oauth2.Token) (*AccessToken, error)
	CreateRefreshToken(params AuthParams, token *oauth2.Token) (*RefreshToken, error)
	CreateIDToken(params AuthParams, token *oauth2.Token) (*IDToken, error)
}

// ClientInfo is the decoded client_info of a token response.
type ClientInfo struct {
	UID  string `json:"uid"`
	UTID string `json:"utid"`
}

// HomeAccountID returns "<uid>.<utid>", or "" when either part is missing.
func (c ClientInfo) HomeAccountID() string {
	if c.UID == "" || c.UTID == "" {
		return ""
	}
	return c.UID + "." + c.UTID
}

// DecodeClientInfo decodes a base64url client_info value. Padding is optional.
func DecodeClientInfo(raw string) (ClientInfo, error) {
	var ci ClientInfo
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return ci, fmt.Errorf("client_info is not base64url: %w", err)
	}
	if err := json.Unmarshal(b, &ci); err != nil {
		return ci, fmt.Errorf("client_info is not JSON: %w", err)
	}
	return ci, nil
}

// DefaultAdapter builds records from the fields the v2 endpoint returns. Beyond the standard
// oauth2.Token fields it reads id_token, client_info, scope, foci, ext_expires_in and
// refresh_in from the token's extras.
type DefaultAdapter struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (d DefaultAdapter) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// CreateAccount implements Adapter. Without an id token the account is taken from
// params.Account, which is the case when a refresh response omits one.
func (d DefaultAdapter) CreateAccount(params AuthParams, token *oauth2.Token) (Account, error) {
	claims, err := idTokenClaims(token)
	if err != nil {
		return Account{}, err
	}
	if claims == nil {
		if params.Account == nil {
			return Account{}, errors.NewClientError(errors.SchemaNoncompliant, "token response has no id_token and no account was given", nil)
		}
		return *params.Account, nil
	}

	homeID, err := homeAccountID(params, token, claims)
	if err != nil {
		return Account{}, err
	}
	account := Account{
		HomeAccountID:  homeID,
		Environment:    params.Environment,
		Realm:          firstNonEmpty(claimString(claims, "tid"), params.Realm),
		LocalAccountID: firstNonEmpty(claimString(claims, "oid"), claimString(claims, "sub")),
		Username:       firstNonEmpty(claimString(claims, "preferred_username"), claimString(claims, "upn"), claimString(claims, "email")),
		AuthorityType:  shared.AuthorityTypeMSSTS,
		Name:           claimString(claims, "name"),
		FirstName:      claimString(claims, "given_name"),
		FamilyName:     claimString(claims, "family_name"),
		MiddleName:     claimString(claims, "middle_name"),
	}
	if raw, ok := token.Extra("client_info").(string); ok {
		account.ClientInfo = raw
	}
	if params.Account != nil && account.AlternativeAccountID == "" {
		account.AlternativeAccountID = params.Account.AlternativeAccountID
	}
	return account, nil
}

// CreateAccessToken implements Adapter.
func (d DefaultAdapter) CreateAccessToken(params AuthParams, token *oauth2.Token) (*AccessToken, error) {
	if token.AccessToken == "" {
		return nil, nil
	}
	account, err := d.CreateAccount(params, token)
	if err != nil {
		return nil, err
	}
	now := d.now()
	expiresOn := token.Expiry
	if expiresOn.IsZero() {
		if s, ok := extraSeconds(token, "expires_in"); ok {
			expiresOn = now.Add(s)
		}
	}
	var extExpiresOn time.Time
	if s, ok := extraSeconds(token, "ext_expires_in"); ok {
		extExpiresOn = now.Add(s)
	}

	at := storage.NewAccessToken(account.HomeAccountID, account.Environment, account.Realm, params.ClientID, now, expiresOn, extExpiresOn, grantedScopes(params, token), token.AccessToken)
	if s, ok := extraSeconds(token, "refresh_in"); ok {
		at.RefreshOn = internalTime.At(now.Add(s))
	}
	at.TokenType = token.TokenType
	if params.AuthScheme != "" && !strings.EqualFold(params.AuthScheme, "bearer") {
		at.CredentialType = storage.AccessTokenWithAuthSchemeType
		at.TokenType = params.AuthScheme
	}
	at.Authority = authorityURL(account.Environment, account.Realm)
	at.RequestedClaims = params.Claims
	at.ApplicationIdentifier = params.ApplicationIdentifier
	at.MamEnrollmentIdentifier = params.MamEnrollmentIdentifier
	return at, nil
}

// CreateRefreshToken implements Adapter.
func (d DefaultAdapter) CreateRefreshToken(params AuthParams, token *oauth2.Token) (*RefreshToken, error) {
	if token.RefreshToken == "" {
		return nil, nil
	}
	account, err := d.CreateAccount(params, token)
	if err != nil {
		return nil, err
	}
	familyID, _ := token.Extra("foci").(string)
	rt := storage.NewRefreshToken(account.HomeAccountID, account.Environment, params.ClientID, token.RefreshToken, familyID)
	rt.Target = grantedScopes(params, token)
	rt.CachedAt = internalTime.At(d.now())
	return rt, nil
}

// CreateIDToken implements Adapter.
func (d DefaultAdapter) CreateIDToken(params AuthParams, token *oauth2.Token) (*IDToken, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, nil
	}
	account, err := d.CreateAccount(params, token)
	if err != nil {
		return nil, err
	}
	id := storage.NewIDToken(account.HomeAccountID, account.Environment, account.Realm, params.ClientID, raw)
	id.Authority = authorityURL(account.Environment, account.Realm)
	if params.V1IDToken {
		id.CredentialType = storage.V1IDTokenType
	}
	return id, nil
}

// idTokenClaims parses the id_token extra without verifying it. The token endpoint is trusted
// and the token is only read for display and cache-key fields. Nil means no id token.
func idTokenClaims(token *oauth2.Token) (jwt.MapClaims, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, errors.NewClientError(errors.MalformedCacheRecord, "id_token could not be parsed", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewClientError(errors.MalformedCacheRecord, "id_token has no claims", nil)
	}
	return claims, nil
}

func homeAccountID(params AuthParams, token *oauth2.Token, claims jwt.MapClaims) (string, error) {
	if raw, ok := token.Extra("client_info").(string); ok && raw != "" {
		ci, err := DecodeClientInfo(raw)
		if err != nil {
			return "", errors.NewClientError(errors.MalformedCacheRecord, "client_info could not be decoded", err)
		}
		if id := ci.HomeAccountID(); id != "" {
			return id, nil
		}
	}
	if params.Account != nil && params.Account.HomeAccountID != "" {
		return params.Account.HomeAccountID, nil
	}
	if oid, tid := claimString(claims, "oid"), claimString(claims, "tid"); oid != "" && tid != "" {
		return oid + "." + tid, nil
	}
	return claimString(claims, "sub"), nil
}

func grantedScopes(params AuthParams, token *oauth2.Token) string {
	if s, ok := token.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	// no scope in the response means every requested scope was granted
	return strings.ToLower(strings.Join(params.Scopes, " "))
}

func extraSeconds(token *oauth2.Token, key string) (time.Duration, bool) {
	var secs int64
	switch v := token.Extra(key).(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		secs = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		secs = n
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func claimString(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func authorityURL(environment, realm string) string {
	if environment == "" {
		return ""
	}
	return "https://" + environment + "/" + realm
}
