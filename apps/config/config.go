// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package config reads the dispatcher and cache settings from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache/encrypted"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Dispatcher DispatcherConfig
	Cache      CacheConfig
}

type DispatcherConfig struct {
	SilentPoolSize     int           `env:"IDENTITY_SILENT_POOL_SIZE, default=5"`
	DeviceCodePoolSize int           `env:"IDENTITY_DEVICE_CODE_POOL_SIZE, default=5"`
	SilentTimeout      time.Duration `env:"IDENTITY_SILENT_TIMEOUT, default=30s"`
	ShutdownGrace      time.Duration `env:"IDENTITY_SHUTDOWN_GRACE, default=1s"`
}

// CacheConfig selects the storage behind the token cache.
type CacheConfig struct {
	// DSN is a SQLite data source name. Empty keeps the cache in memory.
	DSN string `env:"IDENTITY_CACHE_DSN"`

	// MemoryCacheSize bounds the in-memory layer in front of a SQLite cache. 0 disables it.
	MemoryCacheSize int `env:"IDENTITY_MEMORY_CACHE_SIZE, default=1000"`

	// Passphrase turns on encryption of cached values. Requires Salt.
	Passphrase string `env:"IDENTITY_CACHE_PASSPHRASE"`
	Salt       string `env:"IDENTITY_CACHE_SALT"`

	// TokenURL overrides the token endpoint used to refresh tokens.
	TokenURL string `env:"IDENTITY_TOKEN_URL"`
}

func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, nil) // load from OS environment
}

// LoadFrom reads the configuration through lookup. A nil lookup reads the OS environment.
func LoadFrom(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup,
	})
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Dispatcher.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

func (d DispatcherConfig) Validate() error {
	if d.SilentPoolSize < 1 {
		return fmt.Errorf("IDENTITY_SILENT_POOL_SIZE must be positive, got %d", d.SilentPoolSize)
	}
	if d.DeviceCodePoolSize < 1 {
		return fmt.Errorf("IDENTITY_DEVICE_CODE_POOL_SIZE must be positive, got %d", d.DeviceCodePoolSize)
	}
	if d.SilentTimeout <= 0 {
		return fmt.Errorf("IDENTITY_SILENT_TIMEOUT must be positive, got %s", d.SilentTimeout)
	}
	if d.ShutdownGrace <= 0 {
		return fmt.Errorf("IDENTITY_SHUTDOWN_GRACE must be positive, got %s", d.ShutdownGrace)
	}
	return nil
}

func (c CacheConfig) Validate() error {
	if c.MemoryCacheSize < 0 {
		return fmt.Errorf("IDENTITY_MEMORY_CACHE_SIZE must not be negative, got %d", c.MemoryCacheSize)
	}
	if c.Passphrase != "" && len(c.Salt) < encrypted.MinSaltSize {
		return fmt.Errorf("IDENTITY_CACHE_SALT of at least %d bytes required when IDENTITY_CACHE_PASSPHRASE is set", encrypted.MinSaltSize)
	}
	return nil
}
