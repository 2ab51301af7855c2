package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReadSet decodes the dataset stored under key into a T. A missing key, a
// read error or a value that does not parse all yield fallback.
//
// String datasets are returned verbatim since they are stored bare.
//
// Example:
//
//	goals := store.ReadSet(ctx, s, store.KeyGoals, []model.Goal{})
func ReadSet[T any](ctx context.Context, s *Store, key string, fallback T) T {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}

	var out T
	if sp, isString := any(&out).(*string); isString {
		*sp = raw
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

// WriteSet serializes value and stores it under key as a local edit.
// Empty collections, nil and empty strings remove the key instead.
func WriteSet[T any](ctx context.Context, s *Store, key string, value T) error {
	return WriteSetFrom(ctx, s, key, value, OriginLocal)
}

// WriteSetFrom is WriteSet with an explicit change origin.
func WriteSetFrom[T any](ctx context.Context, s *Store, key string, value T, origin Origin) error {
	if str, isString := any(value).(string); isString {
		return s.Set(ctx, key, str, origin)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data), origin)
}
