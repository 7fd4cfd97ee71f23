// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package performance

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/montanaflynn/stats"
	"golang.org/x/oauth2"
)

const (
	environment = "fake_authority"
	clientID    = "fake_client_id"
)

func signIn(client *identity.Client, user, token int) (identity.Account, error) {
	utid := fmt.Sprintf("%dmy_utid", user)
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tid": utid, "oid": "my_uid"}).SignedString([]byte("fake"))
	if err != nil {
		return identity.Account{}, err
	}
	response := (&oauth2.Token{
		AccessToken:  fmt.Sprintf("fake_access_token%d", user),
		RefreshToken: "fake_refresh_token",
		Expiry:       time.Now().Add(time.Hour),
	}).WithExtra(map[string]interface{}{
		"id_token":    idToken,
		"client_info": base64.RawURLEncoding.EncodeToString([]byte(`{"uid":"my_uid","utid":"` + utid + `"}`)),
		"scope":       fmt.Sprintf("scope%d", token),
	})
	record, err := client.SaveTokens(context.Background(), identity.AuthParams{ClientID: clientID, Environment: environment, Realm: utid}, response)
	return record.Account, err
}

func populateCache(users int, tokens int, client *identity.Client) []identity.Account {
	accounts := make([]identity.Account, users)
	for user := 0; user < users; user++ {
		for token := 0; token < tokens; token++ {
			account, err := signIn(client, user, token)
			if err != nil {
				panic(err)
			}
			accounts[user] = account
		}
	}
	return accounts
}

func calculateStats(users, tokens int, duration []float64) {
	fmt.Printf("No of users: %d, No of tokens per user: %d \n", users, tokens)

	for _, s := range []struct {
		name string
		f    func(stats.Float64Data) (float64, error)
	}{
		{"Mean", stats.Mean},
		{"Median", stats.Median},
		{"Standard Deviation", stats.StandardDeviation},
		{"Min Time", stats.Min},
		{"Max Time", stats.Max},
	} {
		v, err := s.f(duration)
		if err != nil {
			panic(err)
		}
		fmt.Println(s.name)
		fmt.Println(v / float64(time.Microsecond))
	}
	p99, err := stats.Percentile(duration, 99)
	if err != nil {
		panic(err)
	}
	fmt.Println("99th Percentile")
	fmt.Println(p99 / float64(time.Microsecond))
}

func benchmarkSilent(users, tokens int, accounts []identity.Account, client *identity.Client) {
	var duration []float64
	for start := time.Now(); time.Since(start) < 10*time.Second; {
		s := time.Now()
		querySilent(tokens, accounts, client)
		duration = append(duration, float64(time.Since(s)))
	}
	calculateStats(users, tokens, duration)
}

func querySilent(tokens int, accounts []identity.Account, client *identity.Client) {
	account := accounts[rand.Intn(len(accounts))]
	_, err := client.AcquireTokenSilent(context.Background(), identity.AuthParams{
		ClientID:    clientID,
		Environment: environment,
		Realm:       account.Realm,
		Scopes:      []string{fmt.Sprintf("scope%d", rand.Intn(tokens))},
		Account:     &account,
	})
	if err != nil {
		panic(err)
	}
}

func TestSilentCacheTests(t *testing.T) {
	if os.Getenv("CI") != "" || testing.Short() {
		t.Skip("Skipping performance test")
	}
	tests := []struct {
		Users  int
		Tokens int
	}{
		{1, 100},
		{1, 1000},
		{100, 10},
		{1000, 1},
	}

	for _, test := range tests {
		client, err := identity.New(memory.New())
		if err != nil {
			panic(err)
		}
		accounts := populateCache(test.Users, test.Tokens, client)
		benchmarkSilent(test.Users, test.Tokens, accounts, client)
		_ = client.Close(context.Background())
	}
}
