// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package encrypted seals the values of another cache.Storage with NaCl secretbox. Keys are
stored in the clear so that the token cache can still select records by key.

Each stored value is the unpadded base64url encoding of:

	24 bytes: nonce
	N bytes:  secretbox(entry)

where entry binds the value to the key it was written under. A value that cannot be opened
with the current key, or that was moved to another key, reads as absent.
*/
package encrypted

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/cache"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the size of the secret key.
	KeySize   = 32
	nonceSize = 24
	// MinSaltSize is the shortest salt KeyFromPassphrase accepts.
	MinSaltSize = 8
)

// KeyFromPassphrase derives a secret key from passphrase. The same salt must be supplied
// every time the cache is opened.
func KeyFromPassphrase(passphrase string, salt []byte) ([KeySize]byte, error) {
	var akey [KeySize]byte
	if passphrase == "" {
		return akey, errors.New("passphrase must not be empty")
	}
	if len(salt) < MinSaltSize {
		return akey, fmt.Errorf("salt must be at least %d bytes", MinSaltSize)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, KeySize)
	if err != nil {
		return akey, err
	}
	copy(akey[:], key)
	return akey, nil
}

// entry is what gets sealed.
type entry struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Storage encrypts values on the way into the backing store and decrypts them on the way out.
type Storage struct {
	backing cache.Storage
	key     [KeySize]byte
}

// New wraps backing.
func New(backing cache.Storage, key [KeySize]byte) *Storage {
	return &Storage{backing: backing, key: key}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.backing.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	value, ok := s.open(key, sealed)
	return value, ok, nil
}

func (s *Storage) Put(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.backing.Put(ctx, key, sealed)
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	return s.backing.Remove(ctx, key)
}

// GetAll returns every entry that could be decrypted.
func (s *Storage) GetAll(ctx context.Context) (map[string]string, error) {
	all, err := s.backing.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for k, sealed := range all {
		if v, ok := s.open(k, sealed); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	return s.backing.Clear(ctx)
}

func (s *Storage) seal(key, value string) (string, error) {
	plaintext, err := json.Marshal(entry{Key: key, Value: value})
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Storage) open(key, sealed string) (string, bool) {
	contents, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(contents) < nonceSize+secretbox.Overhead {
		return "", false
	}
	var nonce [nonceSize]byte
	copy(nonce[:], contents)
	plaintext, ok := secretbox.Open(nil, contents[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", false
	}
	var e entry
	if err := json.Unmarshal(plaintext, &e); err != nil || e.Key != key {
		return "", false
	}
	return e.Value, true
}
