// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package base

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
)

func TestOAuth2Refresher(t *testing.T) {
	tests := []struct {
		desc            string
		status          int
		body            string
		wantCode        string
		wantSubCode     string
		wantInvalid     bool
		wantUnavailable bool
	}{
		{
			desc:   "success",
			status: http.StatusOK,
			body:   `{"access_token":"new-at","token_type":"Bearer","expires_in":3600,"refresh_token":"new-rt","foci":"1"}`,
		},
		{
			desc:        "invalid grant",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid_grant","error_description":"AADSTS70000","suberror":"bad_token"}`,
			wantCode:    errors.InvalidGrant,
			wantSubCode: errors.BadToken,
			wantInvalid: true,
		},
		{
			desc:            "service unavailable",
			status:          http.StatusServiceUnavailable,
			body:            ``,
			wantCode:        "service_unavailable",
			wantUnavailable: true,
		},
	}

	for _, test := range tests {
		var form map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("TestOAuth2Refresher(%s): %s", test.desc, err)
			}
			form = map[string]string{
				"grant_type":    r.PostForm.Get("grant_type"),
				"refresh_token": r.PostForm.Get("refresh_token"),
				"client_id":     r.PostForm.Get("client_id"),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(test.status)
			_, _ = w.Write([]byte(test.body))
		}))

		r := OAuth2Refresher{TokenURL: srv.URL, HTTPClient: srv.Client()}
		token, err := r.Refresh(context.Background(), testParams("user.read"), "old-rt")
		srv.Close()

		if form["grant_type"] != "refresh_token" || form["refresh_token"] != "old-rt" || form["client_id"] != testClientID {
			t.Errorf("TestOAuth2Refresher(%s): unexpected request form %v", test.desc, form)
		}
		if test.wantCode == "" {
			if err != nil {
				t.Fatalf("TestOAuth2Refresher(%s): got error %s", test.desc, err)
			}
			if token.AccessToken != "new-at" || token.RefreshToken != "new-rt" || token.Extra("foci") != "1" {
				t.Errorf("TestOAuth2Refresher(%s): got token %+v", test.desc, token)
			}
			continue
		}

		se, ok := err.(*errors.ServiceError)
		if !ok {
			t.Fatalf("TestOAuth2Refresher(%s): got %T %v, want *errors.ServiceError", test.desc, err, err)
		}
		if se.Code != test.wantCode || se.SubCode != test.wantSubCode || se.StatusCode != test.status {
			t.Errorf("TestOAuth2Refresher(%s): got %+v", test.desc, se)
		}
		if errors.IsInvalidGrant(err) != test.wantInvalid {
			t.Errorf("TestOAuth2Refresher(%s): IsInvalidGrant got %v", test.desc, !test.wantInvalid)
		}
		if errors.IsServiceUnavailable(err) != test.wantUnavailable {
			t.Errorf("TestOAuth2Refresher(%s): IsServiceUnavailable got %v", test.desc, !test.wantUnavailable)
		}
	}
}

func TestOAuth2RefresherTokenURL(t *testing.T) {
	params := testParams()
	params.Realm = "contoso"
	if got := (OAuth2Refresher{}).tokenURL(params); got != "https://login.microsoftonline.com/contoso/oauth2/v2.0/token" {
		t.Errorf("tokenURL: got %s", got)
	}
	params.Realm = ""
	if got := (OAuth2Refresher{}).tokenURL(params); got != "https://login.microsoftonline.com/common/oauth2/v2.0/token" {
		t.Errorf("tokenURL(no realm): got %s", got)
	}
	if _, err := (OAuth2Refresher{}).Refresh(context.Background(), params, ""); errors.Code(err) != errors.NoTokensFound {
		t.Errorf("Refresh(no refresh token): got %v", err)
	}
}
