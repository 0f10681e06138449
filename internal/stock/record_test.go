package stock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := New("https://groww.in/stocks/acme", at)

	assert.Equal(t, "2026-01-02T03:04:05Z", r.Timestamp)
	assert.Equal(t, "https://groww.in/stocks/acme", r.URL)
	assert.Equal(t, NotAvailable, r.StockName)
	assert.Equal(t, NotAvailable, r.CurrentPrice)
	assert.Equal(t, NotAvailable, r.About)
	assert.Empty(t, r.Pros)
	assert.NotNil(t, r.Pros)
	assert.NotNil(t, r.AllTables)
	assert.Nil(t, r.ShareholdingPattern)
	assert.Nil(t, r.FinancialCharts)

	assert.Equal(t, NotAvailable, New("", at).URL)
}

func TestGetSet(t *testing.T) {
	r := New("", time.Now())
	require.True(t, r.Set("peRatio", "21.4"))
	v, ok := r.Get("peRatio")
	require.True(t, ok)
	assert.Equal(t, "21.4", v)
	assert.Equal(t, "21.4", r.PERatio)

	assert.False(t, r.Set("nope", "x"))
	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestMissing(t *testing.T) {
	r := New("", time.Now())
	required := []string{"stockName", "currentPrice"}
	assert.Equal(t, required, r.Missing(required))

	r.StockName = "Acme Corp"
	assert.Equal(t, []string{"currentPrice"}, r.Missing(required))

	r.CurrentPrice = "  "
	assert.Equal(t, []string{"currentPrice"}, r.Missing(required))

	r.CurrentPrice = "₹1,234.50"
	assert.Empty(t, r.Missing(required))
	assert.Equal(t, []string{"unknownField"}, r.Missing([]string{"unknownField"}))
}

func TestFieldsOrder(t *testing.T) {
	r := New("u", time.Now())
	fields := r.Fields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	assert.Equal(t, "timestamp", keys[0])
	assert.Equal(t, []string{"about", "pros", "cons", "allTables"}, keys[len(keys)-4:])

	r.ShareholdingPattern = map[string]string{"FII": "1%"}
	r.FinancialCharts = &FinancialCharts{}
	fields = r.Fields()
	assert.Equal(t, "shareholdingPattern", fields[len(fields)-2].Key)
	assert.Equal(t, "financialCharts", fields[len(fields)-1].Key)
}

func TestJSONShape(t *testing.T) {
	r := New("u", time.Now())
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, NotAvailable, m["stockName"])
	assert.Equal(t, []any{}, m["pros"])
	assert.NotContains(t, m, "shareholdingPattern")
	assert.NotContains(t, m, "financialCharts")
}

func TestExtractionFailureMessage(t *testing.T) {
	both := NewExtractionFailure([]string{"stockName", "currentPrice"}, nil)
	assert.Equal(t,
		"Could not extract stock name and current price. Make sure you are on a stock detail page and it has fully loaded.",
		both.Error())

	one := NewExtractionFailure([]string{"currentPrice"}, New("", time.Now()))
	assert.Contains(t, one.Error(), "Could not extract current price.")
	assert.NotNil(t, one.Partial)

	var err error = one
	var target *ExtractionFailure
	assert.ErrorAs(t, err, &target)

	three := NewExtractionFailure([]string{"stockName", "currentPrice", "symbol"}, nil)
	assert.Contains(t, three.Error(), "stock name, current price and symbol")
}
