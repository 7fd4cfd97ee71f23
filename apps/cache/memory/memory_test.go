// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestStorage(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing): got ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if err := s.Put(ctx, "Key", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "Key", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s.Get(ctx, "Key"); !ok || v != "v2" {
		t.Errorf("Get(Key): got %q %v, want v2 true", v, ok)
	}
	if _, ok, _ := s.Get(ctx, "key"); ok {
		t.Errorf("keys must be case-preserving")
	}

	all, _ := s.GetAll(ctx)
	all["Other"] = "mutated"
	if diff := pretty.Compare(map[string]string{"Key": "v2"}, mustAll(t, s)); diff != "" {
		t.Errorf("GetAll must return a snapshot: -want/+got:\n%s", diff)
	}

	if err := s.Remove(ctx, "absent"); err != nil {
		t.Errorf("Remove(absent): %s", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("Clear: %d entries left", s.Len())
	}
}

func TestStorageConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			_ = s.Put(ctx, key, "v")
			_, _, _ = s.Get(ctx, key)
			_, _ = s.GetAll(ctx)
		}(i)
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("got %d entries, want 50", s.Len())
	}
}

func mustAll(t *testing.T, s *Storage) map[string]string {
	t.Helper()
	all, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return all
}
