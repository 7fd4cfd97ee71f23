// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"
	"strings"
)

// Namespace returns a Storage that keeps its entries in s under prefix. GetAll and Clear
// only see the namespace's own entries, so several caches can share one backing store.
func Namespace(s Storage, prefix string) Storage {
	return &namespace{store: s, prefix: prefix}
}

type namespace struct {
	store  Storage
	prefix string
}

func (n *namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespace) Put(ctx context.Context, key, value string) error {
	return n.store.Put(ctx, n.prefix+key, value)
}

func (n *namespace) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}

func (n *namespace) GetAll(ctx context.Context) (map[string]string, error) {
	all, err := n.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for k, v := range all {
		if strings.HasPrefix(k, n.prefix) {
			out[strings.TrimPrefix(k, n.prefix)] = v
		}
	}
	return out, nil
}

func (n *namespace) Clear(ctx context.Context) error {
	all, err := n.store.GetAll(ctx)
	if err != nil {
		return err
	}
	for k := range all {
		if !strings.HasPrefix(k, n.prefix) {
			continue
		}
		if err := n.store.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
