// Package kv defines the minimal key-value contract the service persists
// through, plus Redis and SQL backends for it.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/contentoor/pkg/config"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the storage contract every backend must provide.
type Store interface {
	// GetText returns the raw value stored under key.
	GetText(ctx context.Context, key string) (string, error)

	// GetJSON decodes the value stored under key into dest.
	GetJSON(ctx context.Context, key string, dest any) error

	// Put stores value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Replace overwrites an existing key and keeps its expiry. It returns
	// ErrNotFound when the key is absent or has expired.
	Replace(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Backend is a Store with a lifecycle.
type Backend interface {
	Store

	Start(ctx context.Context) error
	Stop() error
}

// PutJSON encodes value as JSON and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return s.Put(ctx, key, string(data), ttl)
}

// ReplaceJSON encodes value as JSON and overwrites the existing key.
func ReplaceJSON(ctx context.Context, s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return s.Replace(ctx, key, string(data))
}

func decodeJSON(key, raw string, dest any) error {
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}

	return nil
}

// NewBackend creates the backend selected by cfg.Driver.
func NewBackend(log logrus.FieldLogger, cfg *config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisStore(log, &cfg.Redis), nil
	case "sqlite", "postgres":
		return NewSQLStore(log, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
