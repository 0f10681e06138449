// Package stock defines the structured result of one extraction cycle.
package stock

import (
	"fmt"
	"strings"
	"time"
)

// NotAvailable is the sentinel for a field no strategy could resolve.
const NotAvailable = "N/A"

// Table is one captured HTML table.
type Table struct {
	TableIndex int        `json:"tableIndex"`
	Rows       [][]string `json:"rows"`
}

// ChartSeries is one financial chart as parallel date/value sequences.
type ChartSeries struct {
	Dates  []string `json:"dates"`
	Values []string `json:"values"`
}

// ChartMetadata describes how the chart series were captured.
type ChartMetadata struct {
	Unit        string `json:"unit"`
	PeriodMode  string `json:"periodMode"`
	ExtractedAt string `json:"extractedAt"`
}

// FinancialCharts holds the interactive chart series keyed by series name
// (revenue, profit, netWorth).
type FinancialCharts struct {
	Series   map[string]ChartSeries `json:"series"`
	Metadata ChartMetadata          `json:"metadata"`
}

// StockRecord is the structured extraction result.
type StockRecord struct {
	Timestamp   string `json:"timestamp"`
	URL         string `json:"url"`
	ExtractedAt string `json:"extractedAt"`

	StockName string `json:"stockName"`
	Symbol    string `json:"symbol"`

	CurrentPrice     string `json:"currentPrice"`
	DayChange        string `json:"dayChange"`
	Open             string `json:"open"`
	PreviousClose    string `json:"previousClose"`
	Volume           string `json:"volume"`
	TotalTradedValue string `json:"totalTradedValue"`
	UpperCircuit     string `json:"upperCircuit"`
	LowerCircuit     string `json:"lowerCircuit"`

	MarketCap       string `json:"marketCap"`
	PERatio         string `json:"peRatio"`
	BookValue       string `json:"bookValue"`
	DividendYield   string `json:"dividendYield"`
	ROE             string `json:"roe"`
	ROCE            string `json:"roce"`
	EPS             string `json:"eps"`
	FaceValue       string `json:"faceValue"`
	Week52High      string `json:"week52High"`
	Week52Low       string `json:"week52Low"`
	AvgVolume       string `json:"avgVolume"`
	DebtToEquity    string `json:"debtToEquity"`
	CurrentRatio    string `json:"currentRatio"`
	PromoterHolding string `json:"promoterHolding"`
	Industry        string `json:"industry"`

	Revenue string `json:"revenue"`
	Profit  string `json:"profit"`
	Sales   string `json:"sales"`

	About string   `json:"about"`
	Pros  []string `json:"pros"`
	Cons  []string `json:"cons"`

	AllTables []Table `json:"allTables"`

	ShareholdingPattern map[string]string `json:"shareholdingPattern,omitempty"`
	FinancialCharts     *FinancialCharts  `json:"financialCharts,omitempty"`
}

// New returns a record with every field at its default: string fields hold
// the sentinel, sequences are empty, optional blocks are absent.
func New(url string, capturedAt time.Time) *StockRecord {
	r := &StockRecord{
		Pros:      []string{},
		Cons:      []string{},
		AllTables: []Table{},
	}
	for _, f := range r.stringFields() {
		*f.ptr = NotAvailable
	}
	r.Timestamp = capturedAt.UTC().Format(time.RFC3339)
	r.ExtractedAt = capturedAt.Local().Format("02/01/2006, 15:04:05")
	if url != "" {
		r.URL = url
	}
	return r
}

type stringField struct {
	key string
	ptr *string
}

// stringFields lists the scalar fields in declaration order.
func (r *StockRecord) stringFields() []stringField {
	return []stringField{
		{"timestamp", &r.Timestamp},
		{"url", &r.URL},
		{"extractedAt", &r.ExtractedAt},
		{"stockName", &r.StockName},
		{"symbol", &r.Symbol},
		{"currentPrice", &r.CurrentPrice},
		{"dayChange", &r.DayChange},
		{"open", &r.Open},
		{"previousClose", &r.PreviousClose},
		{"volume", &r.Volume},
		{"totalTradedValue", &r.TotalTradedValue},
		{"upperCircuit", &r.UpperCircuit},
		{"lowerCircuit", &r.LowerCircuit},
		{"marketCap", &r.MarketCap},
		{"peRatio", &r.PERatio},
		{"bookValue", &r.BookValue},
		{"dividendYield", &r.DividendYield},
		{"roe", &r.ROE},
		{"roce", &r.ROCE},
		{"eps", &r.EPS},
		{"faceValue", &r.FaceValue},
		{"week52High", &r.Week52High},
		{"week52Low", &r.Week52Low},
		{"avgVolume", &r.AvgVolume},
		{"debtToEquity", &r.DebtToEquity},
		{"currentRatio", &r.CurrentRatio},
		{"promoterHolding", &r.PromoterHolding},
		{"industry", &r.Industry},
		{"revenue", &r.Revenue},
		{"profit", &r.Profit},
		{"sales", &r.Sales},
		{"about", &r.About},
	}
}

// Get returns the value of a scalar field by its JSON name.
func (r *StockRecord) Get(key string) (string, bool) {
	for _, f := range r.stringFields() {
		if f.key == key {
			return *f.ptr, true
		}
	}
	return "", false
}

// Set assigns a scalar field by its JSON name.
func (r *StockRecord) Set(key, value string) bool {
	for _, f := range r.stringFields() {
		if f.key == key {
			*f.ptr = value
			return true
		}
	}
	return false
}

// IsMissing reports whether a value is unresolved.
func IsMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == NotAvailable
}

// Missing returns the required fields that are unresolved, in the order given.
func (r *StockRecord) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		v, ok := r.Get(key)
		if !ok || IsMissing(v) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Field is one key/value pair of a record in declaration order.
type Field struct {
	Key   string
	Value any
}

// Fields returns the record as an ordered key/value list. Optional blocks
// are included only when present.
func (r *StockRecord) Fields() []Field {
	scalars := r.stringFields()
	out := make([]Field, 0, len(scalars)+5)
	for _, f := range scalars {
		if f.key == "about" {
			break
		}
		out = append(out, Field{f.key, *f.ptr})
	}
	out = append(out,
		Field{"about", r.About},
		Field{"pros", r.Pros},
		Field{"cons", r.Cons},
		Field{"allTables", r.AllTables},
	)
	if r.ShareholdingPattern != nil {
		out = append(out, Field{"shareholdingPattern", r.ShareholdingPattern})
	}
	if r.FinancialCharts != nil {
		out = append(out, Field{"financialCharts", r.FinancialCharts})
	}
	return out
}

// ExtractionFailure is returned instead of a record when mandatory fields
// could not be resolved. It carries the partial record.
type ExtractionFailure struct {
	Message string       `json:"message"`
	Missing []string     `json:"missingFields"`
	Partial *StockRecord `json:"partial,omitempty"`
}

// NewExtractionFailure builds the user-facing failure for the missing fields.
func NewExtractionFailure(missing []string, partial *StockRecord) *ExtractionFailure {
	return &ExtractionFailure{
		Message: fmt.Sprintf("Could not extract %s. Make sure you are on a stock detail page and it has fully loaded.",
			describeFields(missing)),
		Missing: missing,
		Partial: partial,
	}
}

func (e *ExtractionFailure) Error() string {
	return e.Message
}

var fieldLabels = map[string]string{
	"stockName":    "stock name",
	"currentPrice": "current price",
	"symbol":       "symbol",
}

func describeFields(fields []string) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		if label, ok := fieldLabels[f]; ok {
			names[i] = label
		} else {
			names[i] = f
		}
	}
	switch len(names) {
	case 0:
		return "required fields"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
