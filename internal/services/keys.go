package services

import (
	"context"
	"encoding/json"
	"fmt"
)

// Storage keys, one logical namespace per key. Values are JSON.
const (
	KeyUser             = "user"
	KeySurveyData       = "surveyData"
	KeyFootprint        = "footprint"
	KeyInsights         = "insights"
	KeyLikedInsights    = "likedInsights"
	KeyDislikedInsights = "dislikedInsights"
	KeySavedInsights    = "savedInsights"
)

// KVStore is the durable key-value storage the services persist into.
// Get returns nil, nil for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, key string) error
}

// getJSON decodes key into out and reports whether the key existed.
func getJSON(ctx context.Context, kv KVStore, key string, out any) (bool, error) {
	b, err := kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, kv KVStore, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, b); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// setManyJSON encodes every value first so nothing is written on an encode error.
func setManyJSON(ctx context.Context, kv KVStore, values map[string]any) error {
	enc := make(map[string][]byte, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		enc[k] = b
	}
	if err := kv.SetMany(ctx, enc); err != nil {
		return fmt.Errorf("persist %d keys: %w", len(enc), err)
	}
	return nil
}

// LoadSurvey returns the persisted survey, or nil when none was submitted.
func LoadSurvey(ctx context.Context, kv KVStore) (*Survey, error) {
	var s Survey
	ok, err := getJSON(ctx, kv, KeySurveyData, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// LoadFootprint returns the persisted footprint, or nil when none was computed.
func LoadFootprint(ctx context.Context, kv KVStore) (*Footprint, error) {
	var f Footprint
	ok, err := getJSON(ctx, kv, KeyFootprint, &f)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}
