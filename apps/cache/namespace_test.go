// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache_test

import (
	"context"
	"testing"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/kylelemons/godebug/pretty"
)

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	a := cache.Namespace(backing, "a/")
	b := cache.Namespace(backing, "b/")

	if err := a.Put(ctx, "k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(ctx, "k", "2"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := a.Get(ctx, "k"); !ok || v != "1" {
		t.Errorf("a.Get(k): got %q %v, want 1 true", v, ok)
	}

	got, err := b.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(map[string]string{"k": "2"}, got); diff != "" {
		t.Errorf("b.GetAll: -want/+got:\n%s", diff)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Errorf("a.Clear left its entry behind")
	}
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Errorf("a.Clear removed an entry of another namespace")
	}
	if backing.Len() != 1 {
		t.Errorf("backing store: got %d entries, want 1", backing.Len())
	}
}
