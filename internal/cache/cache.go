// Package cache provides a small key/value cache with in-memory and Redis backends.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a byte-oriented cache. A ttl of zero or less means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes a cached JSON value into dest.
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) (bool, error) {
	b, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		// Treat undecodable entries as misses so callers recompute.
		_ = s.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON encodes value as JSON and stores it.
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	return s.Set(ctx, key, b, ttl)
}

// ProfileKey is the cache key of a trader profile.
func ProfileKey(userID string) string {
	return "profile:" + userID
}

// SummaryKey is the cache key of a user's analytics summary.
func SummaryKey(userID, accountID string) string {
	if accountID == "" {
		accountID = "all"
	}
	return "summary:" + userID + ":" + accountID
}

// Invalidate deletes keys, returning the first error.
func Invalidate(ctx context.Context, s Store, keys ...string) error {
	var first error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}
