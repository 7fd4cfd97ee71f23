// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package base

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	identityErrors "github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"golang.org/x/oauth2"
)

// Refresher redeems a refresh token at the token endpoint.
type Refresher interface {
	Refresh(ctx context.Context, params AuthParams, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Refresher is a Refresher on golang.org/x/oauth2.
type OAuth2Refresher struct {
	// TokenURL overrides the v2 token endpoint derived from the request's environment and realm.
	TokenURL string
	// HTTPClient is used for the token request when set.
	HTTPClient *http.Client
}

// Refresh implements Refresher. Token endpoint errors are returned as *errors.ServiceError.
func (r OAuth2Refresher) Refresh(ctx context.Context, params AuthParams, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, identityErrors.NewClientError(identityErrors.NoTokensFound, "no refresh token to redeem", nil)
	}
	conf := oauth2.Config{
		ClientID: params.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.tokenURL(params),
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: params.Scopes,
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, serviceError(err)
	}
	return token, nil
}

func (r OAuth2Refresher) tokenURL(params AuthParams) string {
	if r.TokenURL != "" {
		return r.TokenURL
	}
	realm := params.Realm
	if realm == "" {
		realm = "common"
	}
	return "https://" + params.Environment + "/" + realm + "/oauth2/v2.0/token"
}

// serviceError converts an *oauth2.RetrieveError. Other errors are returned as they are.
func serviceError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	se := &identityErrors.ServiceError{
		Code:    re.ErrorCode,
		Message: re.ErrorDescription,
		Err:     err,
	}
	if re.Response != nil {
		se.StatusCode = re.Response.StatusCode
	}
	var body struct {
		Error    string `json:"error"`
		SubError string `json:"suberror"`
	}
	if json.Unmarshal(re.Body, &body) == nil {
		se.SubCode = body.SubError
		if se.Code == "" {
			se.Code = body.Error
		}
	}
	if se.Code == "" {
		se.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(se.StatusCode), " ", "_"))
	}
	return se
}
