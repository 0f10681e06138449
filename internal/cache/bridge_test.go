package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stockbrief/internal/config"
	"stockbrief/internal/stock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func record(name string) *stock.StockRecord {
	r := stock.New("https://groww.in/stocks/"+name, time.Date(2026, 5, 1, 9, 15, 0, 0, time.UTC))
	r.StockName = name
	r.CurrentPrice = "₹100.00"
	r.Pros = []string{"Debt free company"}
	r.ShareholdingPattern = map[string]string{"Promoters": "50.00%"}
	return r
}

func TestStore_PutGetRemove(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, map[string]any{"a": 1, "b": "two", "c": []string{"x"}}))

			vals, err := s.Get(ctx, "a", "b", "c", "missing")
			require.NoError(t, err)
			assert.JSONEq(t, `1`, string(vals["a"]))
			assert.JSONEq(t, `"two"`, string(vals["b"]))
			assert.JSONEq(t, `["x"]`, string(vals["c"]))
			assert.NotContains(t, vals, "missing")

			require.NoError(t, s.Put(ctx, map[string]any{"a": 2}))
			require.NoError(t, s.Remove(ctx, "b", "never-set"))

			vals, err = s.Get(ctx, "a", "b")
			require.NoError(t, err)
			assert.JSONEq(t, `2`, string(vals["a"]))
			assert.NotContains(t, vals, "b")

			empty, err := s.Get(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestBridge_StoreAndLoad(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			b := NewBridge(s)
			fixed := time.UnixMilli(1_700_000_000_000)
			b.now = func() time.Time { return fixed }

			p, err := b.LoadPending(ctx)
			require.NoError(t, err)
			assert.Nil(t, p)

			rec := record("acme")
			require.NoError(t, b.StoreRecord(ctx, rec, true))

			p, err = b.LoadPending(ctx)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, rec, p.Record)
			assert.True(t, p.Requested)
			assert.True(t, fixed.Equal(p.ExtractedAt))

			require.NoError(t, b.MarkDelivered(ctx))
			p, err = b.LoadPending(ctx)
			require.NoError(t, err)
			assert.False(t, p.Requested)
			assert.Equal(t, "acme", p.Record.StockName)

			last, err := b.LastExtracted(ctx)
			require.NoError(t, err)
			assert.True(t, fixed.Equal(last))

			require.NoError(t, b.ClearPending(ctx))
			p, err = b.LoadPending(ctx)
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestBridge_StoreWithoutRequestLeavesFlagUnset(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(NewMemoryStore())
	require.NoError(t, b.StoreRecord(ctx, record("acme"), false))

	p, err := b.LoadPending(ctx)
	require.NoError(t, err)
	assert.False(t, p.Requested)

	assert.Error(t, b.StoreRecord(ctx, nil, true))
}

// A reader polling between writes must never see a flag without a record,
// nor the previous cycle's record next to the new timestamp.
func TestBridge_ClearThenWriteOrdering(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	b := NewBridge(mem)

	oldTime := time.UnixMilli(1_000)
	newTime := time.UnixMilli(2_000)

	b.now = func() time.Time { return oldTime }
	require.NoError(t, b.StoreRecord(ctx, record("old"), true))

	type observation struct {
		name      string
		hasRecord bool
		flag      bool
		ts        int64
	}
	var seen []observation
	observe := func() {
		vals, err := mem.Get(ctx, KeyStockData, KeyAnalysisRequest, KeyLastExtracted)
		require.NoError(t, err)
		var o observation
		if raw, ok := vals[KeyStockData]; ok {
			var r stock.StockRecord
			require.NoError(t, json.Unmarshal(raw, &r))
			o.hasRecord, o.name = true, r.StockName
		}
		decodeInto(vals, KeyAnalysisRequest, &o.flag)
		decodeInto(vals, KeyLastExtracted, &o.ts)
		seen = append(seen, o)
	}
	mem.onPut = func(string) { observe() }

	b.now = func() time.Time { return newTime }
	require.NoError(t, b.ClearPending(ctx))
	observe()
	require.NoError(t, b.StoreRecord(ctx, record("new"), true))

	require.NotEmpty(t, seen)
	for _, o := range seen {
		if o.flag {
			assert.True(t, o.hasRecord, "flag observed without a record: %+v", o)
		}
		if o.hasRecord && o.name == "old" {
			assert.NotEqual(t, newTime.UnixMilli(), o.ts, "old record paired with new timestamp")
		}
	}
	last := seen[len(seen)-1]
	assert.Equal(t, observation{name: "new", hasRecord: true, flag: true, ts: newTime.UnixMilli()}, last)
}

func TestBridge_Preferences(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			b := NewBridge(s)

			prefs, err := b.Preferences(ctx)
			require.NoError(t, err)
			assert.Equal(t, Preferences{AutoSubmit: true}, prefs)

			require.NoError(t, b.SetPreference(ctx, KeyAutoSubmit, false))
			require.NoError(t, b.SetPreference(ctx, KeyTempChat, true))
			require.NoError(t, b.SetPreference(ctx, KeyExtractCharts, true))
			assert.Error(t, b.SetPreference(ctx, "darkMode", true))

			prefs, err = b.Preferences(ctx)
			require.NoError(t, err)
			assert.Equal(t, Preferences{AutoSubmit: false, TempChat: true, ExtractCharts: true}, prefs)
		})
	}
}

func TestBridge_PreferencesIgnoreMalformedValues(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	require.NoError(t, mem.Put(ctx, map[string]any{KeyAutoSubmit: "yes"}))

	prefs, err := NewBridge(mem).Preferences(ctx)
	require.NoError(t, err)
	assert.True(t, prefs.AutoSubmit)
}

func TestBridge_InitOnlyOnFirstRun(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	b := NewBridge(mem)

	first, err := b.Init(ctx, "1.2.0")
	require.NoError(t, err)
	assert.True(t, first)

	require.NoError(t, b.SetPreference(ctx, KeyAutoSubmit, false))

	first, err = b.Init(ctx, "1.3.0")
	require.NoError(t, err)
	assert.False(t, first)

	prefs, err := b.Preferences(ctx)
	require.NoError(t, err)
	assert.False(t, prefs.AutoSubmit, "preferences survive a later init")

	vals, err := mem.Get(ctx, KeyVersion, KeyInstallDate)
	require.NoError(t, err)
	assert.JSONEq(t, `"1.3.0"`, string(vals[KeyVersion]))
	assert.Contains(t, vals, KeyInstallDate)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.CacheConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.CacheConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x", "c.db")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(config.CacheConfig{Driver: "redis"})
	assert.Error(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(ctx, map[string]any{"a": 1}))
		})
	}
}
