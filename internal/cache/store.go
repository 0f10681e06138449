// Package cache is the session key-value store shared by the extraction
// and delivery halves of an analysis cycle.
//
// Every write is atomic per key only. Readers may observe a state between
// two Put calls, so writers order their keys so that any intermediate state
// is harmless (see Bridge.StoreRecord).
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"stockbrief/internal/config"
)

// Cache keys.
const (
	KeyStockData       = "growwStockData"
	KeyAnalysisRequest = "growwAnalysisRequest"
	KeyLastExtracted   = "lastExtracted"
	KeyAutoSubmit      = "autoSubmit"
	KeyTempChat        = "tempChat"
	KeyExtractCharts   = "extractFinancials"
	KeyInstallDate     = "installDate"
	KeyVersion         = "version"
)

// Store is a flat JSON key-value namespace.
type Store interface {
	// Put writes each entry. Values are JSON encoded.
	Put(ctx context.Context, entries map[string]any) error
	// Get returns the raw values of the keys that exist.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Remove deletes the keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Open returns the store selected by the cache configuration.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}

func encode(entries map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(entries))
	for k, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		out[k] = data
	}
	return out, nil
}
