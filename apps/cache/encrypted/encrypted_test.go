// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package encrypted

import (
	"context"
	"strings"
	"testing"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/kylelemons/godebug/pretty"
)

func testKey(b byte) [KeySize]byte {
	var k [KeySize]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	s := New(backing, testKey(1))

	const value = `{"secret":"refresh-token-value"}`
	if err := s.Put(ctx, "uid.utid-login.windows.net-refreshtoken-cid--", value); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "uid.utid-login.windows.net-refreshtoken-cid--")
	if err != nil || !ok || got != value {
		t.Fatalf("Get: got %q %v %v, want %q true nil", got, ok, err, value)
	}

	raw, _, _ := backing.Get(ctx, "uid.utid-login.windows.net-refreshtoken-cid--")
	if strings.Contains(raw, "refresh-token-value") {
		t.Errorf("backing store holds the value in the clear: %s", raw)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(map[string]string{"uid.utid-login.windows.net-refreshtoken-cid--": value}, all); diff != "" {
		t.Errorf("GetAll: -want/+got:\n%s", diff)
	}
}

func TestUnreadableValuesAreAbsent(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	writer := New(backing, testKey(1))
	_ = writer.Put(ctx, "a", "1")
	_ = writer.Put(ctx, "b", "2")

	// moved to another key
	sealed, _, _ := backing.Get(ctx, "a")
	_ = backing.Put(ctx, "moved", sealed)
	_ = backing.Put(ctx, "garbage", "not base64 !")
	_ = backing.Put(ctx, "short", "AAAA")

	for _, key := range []string{"moved", "garbage", "short"} {
		if _, ok, err := writer.Get(ctx, key); ok || err != nil {
			t.Errorf("Get(%s): got %v %v, want false nil", key, ok, err)
		}
	}

	otherKey := New(backing, testKey(2))
	if _, ok, _ := otherKey.Get(ctx, "a"); ok {
		t.Errorf("Get with the wrong key reported a value")
	}
	all, err := otherKey.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("GetAll with the wrong key: got %v, want empty", all)
	}

	all, _ = writer.GetAll(ctx)
	if diff := pretty.Compare(map[string]string{"a": "1", "b": "2"}, all); diff != "" {
		t.Errorf("GetAll: -want/+got:\n%s", diff)
	}
}

func TestKeyFromPassphrase(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := KeyFromPassphrase("correct horse", salt)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeyFromPassphrase("correct horse", salt)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("KeyFromPassphrase is not deterministic")
	}
	if k3, _ := KeyFromPassphrase("battery staple", salt); k3 == k1 {
		t.Errorf("different passphrases produced the same key")
	}

	if _, err := KeyFromPassphrase("", salt); err == nil {
		t.Errorf("KeyFromPassphrase(empty passphrase): got nil error")
	}
	if _, err := KeyFromPassphrase("p", []byte("short")); err == nil {
		t.Errorf("KeyFromPassphrase(short salt): got nil error")
	}
}
