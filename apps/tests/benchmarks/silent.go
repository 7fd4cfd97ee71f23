// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/identity"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	accessToken = "fake_token"
	environment = "fake_authority"
	clientID    = "fake_client_id"
)

type testParams struct {
	// the number of goroutines to use
	Concurrency int

	// the number of tokens in the cache
	// must be divisible by Concurrency
	TokenCount int
}

func signInResponse(scope string) *oauth2.Token {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tid": "fake", "oid": "fake_uid"}).SignedString([]byte("fake"))
	if err != nil {
		panic(err)
	}
	return (&oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: "fake_refresh_token",
		Expiry:       time.Now().Add(time.Hour),
	}).WithExtra(map[string]interface{}{
		"id_token":    idToken,
		"client_info": base64.RawURLEncoding.EncodeToString([]byte(`{"uid":"fake_uid","utid":"fake"}`)),
		"scope":       scope,
	})
}

type execTime struct {
	start time.Time
	end   time.Time
}

func populateTokenCache(client *identity.Client, params testParams) (identity.Account, execTime) {
	if r := params.TokenCount % params.Concurrency; r != 0 {
		panic("TokenCount must be divisible by Concurrency")
	}
	parts := params.TokenCount / params.Concurrency
	authParams := identity.AuthParams{ClientID: clientID, Environment: environment, Realm: "fake"}

	var (
		wg      sync.WaitGroup
		once    sync.Once
		account identity.Account
	)
	fmt.Printf("Populating token cache with %d tokens...", params.TokenCount)
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func(chunk int) {
			defer wg.Done()
			for i := parts * chunk; i < parts*(chunk+1); i++ {
				// each token has a different scope which is what makes them unique
				record, err := client.SaveTokens(context.Background(), authParams, signInResponse(strconv.Itoa(i)))
				if err != nil {
					panic(err)
				}
				once.Do(func() { account = record.Account })
			}
		}(n)
	}
	wg.Wait()
	return account, execTime{start: start, end: time.Now()}
}

func executeTest(client *identity.Client, account identity.Account, params testParams) execTime {
	wg := &sync.WaitGroup{}
	fmt.Printf("Begin token retrieval.....")
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// retrieve each token once per goroutine; equal requests in flight share one execution
			for tk := 0; tk < params.TokenCount; tk++ {
				_, err := client.AcquireTokenSilent(context.Background(), identity.AuthParams{
					ClientID:    clientID,
					Environment: environment,
					Realm:       "fake",
					Scopes:      []string{strconv.Itoa(tk)},
					Account:     &account,
				})
				if err != nil {
					panic(err)
				}
			}
		}()
	}
	wg.Wait()
	return execTime{start: start, end: time.Now()}
}

// Stats is used with statsTemplText for reporting purposes
type Stats struct {
	popExec     execTime
	retExec     execTime
	Concurrency int
	Count       int64
}

// PopDur returns the total duration for populating the cache.
func (s *Stats) PopDur() time.Duration {
	return s.popExec.end.Sub(s.popExec.start)
}

// RetDur returns the total duration for retrieving tokens.
func (s *Stats) RetDur() time.Duration {
	return s.retExec.end.Sub(s.retExec.start)
}

// PopAvg returns the mean average of caching a token.
func (s *Stats) PopAvg() time.Duration {
	return s.PopDur() / time.Duration(s.Count)
}

// RetAvg returns the mean average of retrieving a token.
func (s *Stats) RetAvg() time.Duration {
	return s.RetDur() / time.Duration(s.Count*int64(s.Concurrency))
}

var statsTemplText = `
Test Results:
[{{.Concurrency}} goroutines][{{.Count}} tokens] [population: total {{.PopDur}}, avg {{.PopAvg}}] [retrieval: total {{.RetDur}}, avg {{.RetAvg}}]
==========================================================================
`
var statsTempl = template.Must(template.New("stats").Parse(statsTemplText))

func main() {
	tests := []testParams{
		{Concurrency: runtime.NumCPU(), TokenCount: 100},
		{Concurrency: runtime.NumCPU(), TokenCount: 1000},
		{Concurrency: runtime.NumCPU(), TokenCount: 5000},
	}

	for _, t := range tests {
		// keep the token count divisible by the goroutine count
		t.TokenCount -= t.TokenCount % t.Concurrency
		client, err := identity.New(memory.New())
		if err != nil {
			panic(err)
		}
		fmt.Printf("Test Params: %#v\n", t)
		account, ptime := populateTokenCache(client, t)
		ttime := executeTest(client, account, t)
		if err := statsTempl.Execute(os.Stdout, &Stats{
			popExec:     ptime,
			retExec:     ttime,
			Concurrency: t.Concurrency,
			Count:       int64(t.TokenCount),
		}); err != nil {
			panic(err)
		}
		_ = client.Close(context.Background())
	}
}
