// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package config

import (
	"context"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Dispatcher: DispatcherConfig{
			SilentPoolSize:     5,
			DeviceCodePoolSize: 5,
			SilentTimeout:      30 * time.Second,
			ShutdownGrace:      time.Second,
		},
		Cache: CacheConfig{MemoryCacheSize: 1000},
	}
	if diff := pretty.Compare(want, cfg); diff != "" {
		t.Errorf("TestLoadDefaults: -want/+got:\n%s", diff)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("IDENTITY_SILENT_POOL_SIZE", "8")
	t.Setenv("IDENTITY_SILENT_TIMEOUT", "5s")
	t.Setenv("IDENTITY_CACHE_DSN", "file:cache.db")
	t.Setenv("IDENTITY_CACHE_PASSPHRASE", "secret")
	t.Setenv("IDENTITY_CACHE_SALT", "0123456789abcdef")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dispatcher.SilentPoolSize != 8 || cfg.Dispatcher.SilentTimeout != 5*time.Second {
		t.Errorf("TestLoadFromEnvironment: got dispatcher config %+v", cfg.Dispatcher)
	}
	if cfg.Cache.DSN != "file:cache.db" || cfg.Cache.Passphrase != "secret" {
		t.Errorf("TestLoadFromEnvironment: got cache config %+v", cfg.Cache)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		desc string
		env  map[string]string
	}{
		{desc: "zero silent pool", env: map[string]string{"IDENTITY_SILENT_POOL_SIZE": "0"}},
		{desc: "negative device code pool", env: map[string]string{"IDENTITY_DEVICE_CODE_POOL_SIZE": "-1"}},
		{desc: "zero timeout", env: map[string]string{"IDENTITY_SILENT_TIMEOUT": "0s"}},
		{desc: "negative grace", env: map[string]string{"IDENTITY_SHUTDOWN_GRACE": "-1s"}},
		{desc: "negative memory cache", env: map[string]string{"IDENTITY_MEMORY_CACHE_SIZE": "-5"}},
		{desc: "passphrase without salt", env: map[string]string{"IDENTITY_CACHE_PASSPHRASE": "secret"}},
		{desc: "short salt", env: map[string]string{"IDENTITY_CACHE_PASSPHRASE": "secret", "IDENTITY_CACHE_SALT": "abc"}},
		{desc: "not a number", env: map[string]string{"IDENTITY_SILENT_POOL_SIZE": "many"}},
	}
	for _, test := range tests {
		if _, err := LoadFrom(context.Background(), envconfig.MapLookuper(test.env)); err == nil {
			t.Errorf("TestLoadInvalid(%s): got nil error", test.desc)
		}
	}
}
