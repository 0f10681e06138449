package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockbrief/internal/logging"
	"stockbrief/internal/stock"
)

// ErrUnknownPreference is returned by SetPreference for keys that are not toggles.
var ErrUnknownPreference = errors.New("unknown preference")

// Preferences are the user toggles persisted across cycles.
type Preferences struct {
	AutoSubmit    bool `json:"autoSubmit"`
	TempChat      bool `json:"tempChat"`
	ExtractCharts bool `json:"extractFinancials"`
}

// DefaultPreferences apply to keys that were never written.
func DefaultPreferences() Preferences {
	return Preferences{AutoSubmit: true}
}

// PreferenceKeys lists the keys accepted by SetPreference.
var PreferenceKeys = []string{KeyAutoSubmit, KeyTempChat, KeyExtractCharts}

// Pending is the record waiting for delivery.
type Pending struct {
	Record    *stock.StockRecord
	Requested bool
	// ExtractedAt is zero when no timestamp was stored.
	ExtractedAt time.Time
}

// Bridge gives typed access to the cache keys used by an analysis cycle.
type Bridge struct {
	store Store
	now   func() time.Time
}

// NewBridge wraps store.
func NewBridge(store Store) *Bridge {
	return &Bridge{store: store, now: time.Now}
}

// Store returns the underlying store.
func (b *Bridge) Store() Store { return b.store }

// ClearPending removes the previous record and its analysis flag.
func (b *Bridge) ClearPending(ctx context.Context) error {
	if err := b.store.Remove(ctx, KeyStockData, KeyAnalysisRequest); err != nil {
		return fmt.Errorf("failed to clear pending record: %w", err)
	}
	logging.Cache("Cleared pending record")
	return nil
}

// StoreRecord writes rec, then the extraction timestamp, then the analysis
// flag. A reader that sees the flag always finds the record.
func (b *Bridge) StoreRecord(ctx context.Context, rec *stock.StockRecord, requested bool) error {
	if rec == nil {
		return fmt.Errorf("no record to store")
	}
	steps := []map[string]any{
		{KeyStockData: rec},
		{KeyLastExtracted: b.now().UnixMilli()},
	}
	if requested {
		steps = append(steps, map[string]any{KeyAnalysisRequest: true})
	}
	for _, entries := range steps {
		if err := b.store.Put(ctx, entries); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
	}
	logging.Cache("Stored record for %s (analysis requested: %v)", rec.StockName, requested)
	return nil
}

// LoadPending returns the cached record, or nil when none is stored.
func (b *Bridge) LoadPending(ctx context.Context) (*Pending, error) {
	vals, err := b.store.Get(ctx, KeyStockData, KeyAnalysisRequest, KeyLastExtracted)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending record: %w", err)
	}
	raw, ok := vals[KeyStockData]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var rec stock.StockRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached record: %w", err)
	}
	p := &Pending{Record: &rec}
	decodeInto(vals, KeyAnalysisRequest, &p.Requested)

	var ms int64
	if decodeInto(vals, KeyLastExtracted, &ms) && ms > 0 {
		p.ExtractedAt = time.UnixMilli(ms)
	}
	return p, nil
}

// MarkDelivered clears the analysis flag once the prompt has been handed off.
func (b *Bridge) MarkDelivered(ctx context.Context) error {
	if err := b.store.Put(ctx, map[string]any{KeyAnalysisRequest: false}); err != nil {
		return fmt.Errorf("failed to clear analysis flag: %w", err)
	}
	return nil
}

// Preferences reads the toggles, falling back to defaults for unset keys.
func (b *Bridge) Preferences(ctx context.Context) (Preferences, error) {
	prefs := DefaultPreferences()
	vals, err := b.store.Get(ctx, PreferenceKeys...)
	if err != nil {
		return prefs, fmt.Errorf("failed to read preferences: %w", err)
	}
	decodeInto(vals, KeyAutoSubmit, &prefs.AutoSubmit)
	decodeInto(vals, KeyTempChat, &prefs.TempChat)
	decodeInto(vals, KeyExtractCharts, &prefs.ExtractCharts)
	return prefs, nil
}

// SetPreference persists one toggle.
func (b *Bridge) SetPreference(ctx context.Context, key string, value bool) error {
	if !isPreferenceKey(key) {
		return fmt.Errorf("%w: %s (valid: %v)", ErrUnknownPreference, key, PreferenceKeys)
	}
	if err := b.store.Put(ctx, map[string]any{key: value}); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	logging.Cache("Preference %s set to %v", key, value)
	return nil
}

// LastExtracted returns when the last record was stored, or the zero time.
func (b *Bridge) LastExtracted(ctx context.Context) (time.Time, error) {
	vals, err := b.store.Get(ctx, KeyLastExtracted)
	if err != nil {
		return time.Time{}, err
	}
	var ms int64
	if !decodeInto(vals, KeyLastExtracted, &ms) || ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// Init writes the install metadata and default preferences on first run.
// It reports whether this was the first run.
func (b *Bridge) Init(ctx context.Context, version string) (bool, error) {
	vals, err := b.store.Get(ctx, KeyInstallDate)
	if err != nil {
		return false, err
	}
	if _, ok := vals[KeyInstallDate]; ok {
		return false, b.store.Put(ctx, map[string]any{KeyVersion: version})
	}

	defaults := DefaultPreferences()
	err = b.store.Put(ctx, map[string]any{
		KeyInstallDate:   b.now().UTC().Format(time.RFC3339),
		KeyVersion:       version,
		KeyAutoSubmit:    defaults.AutoSubmit,
		KeyTempChat:      defaults.TempChat,
		KeyExtractCharts: defaults.ExtractCharts,
	})
	if err != nil {
		return false, fmt.Errorf("failed to write install metadata: %w", err)
	}
	logging.Cache("Initialized cache for version %s", version)
	return true, nil
}

func decodeInto(vals map[string]json.RawMessage, key string, dst any) bool {
	raw, ok := vals[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logging.CacheDebug("ignoring malformed %s: %v", key, err)
		return false
	}
	return true
}

func isPreferenceKey(key string) bool {
	for _, k := range PreferenceKeys {
		if k == key {
			return true
		}
	}
	return false
}
