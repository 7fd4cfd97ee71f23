// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"context"
	"testing"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/memory"
	"github.com/kylelemons/godebug/pretty"
)

func TestAppMetadataInsert(t *testing.T) {
	ctx := context.Background()
	c := NewAppMetadataCache(memory.New(), nil)

	a := BrokerApplicationMetadata{ClientID: "client_a", Environment: defaultEnvironment, UID: 10}
	b := BrokerApplicationMetadata{ClientID: "client_b", Environment: defaultEnvironment, UID: 11, FociFamilyID: "1"}
	for _, m := range []BrokerApplicationMetadata{a, b} {
		if err := c.Insert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	// same application, now in the family
	a2 := a
	a2.FociFamilyID = "1"
	if err := c.Insert(ctx, a2); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare([]BrokerApplicationMetadata{a2, b}, got); diff != "" {
		t.Errorf("TestAppMetadataInsert: -want/+got:\n%s", diff)
	}

	m, err := c.GetMetadata(ctx, "CLIENT_A", defaultEnvironment, 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(&a2, m); diff != "" {
		t.Errorf("TestAppMetadataInsert(GetMetadata): -want/+got:\n%s", diff)
	}
	if m, _ := c.GetMetadata(ctx, "client_a", defaultEnvironment, 99); m != nil {
		t.Errorf("TestAppMetadataInsert: GetMetadata with another uid returned %+v", m)
	}
}

func TestAppMetadataClientIDs(t *testing.T) {
	ctx := context.Background()
	c := NewAppMetadataCache(memory.New(), nil)

	for _, m := range []BrokerApplicationMetadata{
		{ClientID: "zeta", Environment: defaultEnvironment, UID: 1},
		{ClientID: "alpha", Environment: defaultEnvironment, UID: 2, FociFamilyID: "1"},
		{ClientID: "alpha", Environment: "login.microsoftonline.com", UID: 2, FociFamilyID: "1"},
		{ClientID: "beta", Environment: defaultEnvironment, UID: 3},
	} {
		if err := c.Insert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		desc string
		get  func(context.Context) ([]string, error)
		want []string
	}{
		{"all", c.GetAllClientIDs, []string{"alpha", "beta", "zeta"}},
		{"foci", c.GetAllFociClientIDs, []string{"alpha"}},
		{"non foci", c.GetAllNonFociClientIDs, []string{"beta", "zeta"}},
	}
	for _, test := range tests {
		got, err := test.get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestAppMetadataClientIDs(%s): -want/+got:\n%s", test.desc, diff)
		}
	}

	fam, known, err := c.FamilyOf(ctx, "alpha", defaultEnvironment)
	if err != nil || !known || fam != "1" {
		t.Errorf("FamilyOf(alpha): got %q %v %v, want \"1\" true nil", fam, known, err)
	}
	fam, known, _ = c.FamilyOf(ctx, "beta", "")
	if !known || fam != "" {
		t.Errorf("FamilyOf(beta): got %q %v, want \"\" true", fam, known)
	}
	if _, known, _ = c.FamilyOf(ctx, "unknown", ""); known {
		t.Errorf("FamilyOf(unknown): reported as known")
	}
}

func TestAppMetadataRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := NewAppMetadataCache(store, nil)

	a := BrokerApplicationMetadata{ClientID: "client_a", Environment: defaultEnvironment, UID: 10}
	b := BrokerApplicationMetadata{ClientID: "client_b", Environment: defaultEnvironment, UID: 11}
	_ = c.Insert(ctx, a)
	_ = c.Insert(ctx, b)

	if removed, err := c.Remove(ctx, a); err != nil || !removed {
		t.Errorf("Remove(a): got %v %v, want true nil", removed, err)
	}
	if removed, _ := c.Remove(ctx, a); removed {
		t.Errorf("second Remove(a) reported a removal")
	}
	if got, _ := c.GetAll(ctx); len(got) != 1 || got[0].ClientID != "client_b" {
		t.Errorf("after Remove: got %+v", got)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("Clear left %d entries", store.Len())
	}
}

func TestAppMetadataMalformed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Put(ctx, AppMetadataKey, "{not a list")
	c := NewAppMetadataCache(store, nil)

	got, err := c.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("malformed list: got %+v, want empty", got)
	}
	if _, ok, _ := store.Get(ctx, AppMetadataKey); ok {
		t.Errorf("malformed list was not removed")
	}
	if err := c.Insert(ctx, BrokerApplicationMetadata{ClientID: "c", Environment: "e"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.GetAll(ctx); len(got) != 1 {
		t.Errorf("Insert after heal: got %+v", got)
	}
}
