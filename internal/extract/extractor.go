// Package extract builds a StockRecord from a stock detail page using
// ordered chains of heuristic strategies over an HTML snapshot.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockbrief/internal/config"
	"stockbrief/internal/logging"
	"stockbrief/internal/stock"
)

// PageSource supplies the document to extract from.
type PageSource interface {
	URL() string
	HTML(ctx context.Context) (string, error)
}

// StaticSource serves a saved HTML document.
type StaticSource struct {
	Address string
	Markup  string
}

func (s StaticSource) URL() string                          { return s.Address }
func (s StaticSource) HTML(context.Context) (string, error) { return s.Markup, nil }

// Options control one extraction cycle.
type Options struct {
	// IncludeCharts runs the interactive chart pass when the source
	// implements ChartDriver.
	IncludeCharts bool
	// RequestID correlates log lines; one is generated when empty.
	RequestID string
}

type field struct {
	key      string
	strategy Strategy
}

// Extractor assembles and validates StockRecords.
type Extractor struct {
	required    []string
	chartSettle time.Duration
	fields      []field
	now         func() time.Time
}

// New creates an Extractor from the extract configuration.
func New(cfg config.ExtractConfig) *Extractor {
	required := cfg.RequiredFields
	if len(required) == 0 {
		required = []string{"stockName", "currentPrice"}
	}
	return &Extractor{
		required:    required,
		chartSettle: cfg.GetChartSettle(),
		fields:      defaultFields(cfg.PriceTextWindow, cfg.ScanLimit),
		now:         time.Now,
	}
}

func defaultFields(window, limit int) []field {
	return []field{
		{"stockName", Name()},
		{"symbol", Symbol()},
		{"currentPrice", Price(window, limit)},
		{"dayChange", Change(limit)},
		{"open", KeyValue("Open")},
		{"previousClose", KeyValue("Prev. Close", "Previous Close", "Prev Close")},
		{"volume", KeyValue("Volume")},
		{"totalTradedValue", KeyValue("Total traded value", "Traded Value")},
		{"upperCircuit", KeyValue("Upper Circuit")},
		{"lowerCircuit", KeyValue("Lower Circuit")},
		{"marketCap", KeyValue("Market Cap", "Mkt cap")},
		{"peRatio", KeyValue("P/E Ratio", "PE Ratio", "P/E")},
		{"bookValue", KeyValue("Book Value", "Book Val")},
		{"dividendYield", KeyValue("Dividend Yield", "Div Yield")},
		{"roe", KeyValue("ROE", "Return on Equity")},
		{"roce", KeyValue("ROCE", "Return on Capital")},
		{"eps", KeyValue("EPS", "Earnings Per Share")},
		{"faceValue", KeyValue("Face Value")},
		{"week52High", KeyValue("52W High", "52 Week High")},
		{"week52Low", KeyValue("52W Low", "52 Week Low")},
		{"avgVolume", KeyValue("Avg Volume", "Average Volume")},
		{"debtToEquity", KeyValue("Debt to Equity", "D/E Ratio")},
		{"currentRatio", KeyValue("Current Ratio")},
		{"promoterHolding", KeyValue("Promoter Holding", "Promoters")},
		{"industry", KeyValue("Industry", "Sector")},
		{"revenue", TableSeries("Revenue", "Total Revenue")},
		{"profit", TableSeries("Net Profit", "Profit")},
		{"sales", TableSeries("Sales")},
		{"about", About()},
	}
}

// Extract snapshots src and builds a record from it. When mandatory fields
// stay unresolved it returns a *stock.ExtractionFailure carrying the
// partial record. Snapshot errors are returned as is.
func (e *Extractor) Extract(ctx context.Context, src PageSource, opts Options) (*stock.StockRecord, error) {
	log := e.requestLogger(opts)
	timer := logging.StartTimer(logging.CategoryExtract, "extract "+src.URL())
	defer timer.StopWithThreshold(5 * time.Second)

	html, err := src.HTML(ctx)
	if err != nil {
		log.Error("snapshot failed: %v", err)
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	page, err := NewPage(src.URL(), html)
	if err != nil {
		return nil, err
	}

	rec := e.build(page, log)

	if opts.IncludeCharts {
		if drv, ok := src.(ChartDriver); ok {
			charts, err := chartPass(ctx, drv, src.URL(), e.chartSettle, log)
			switch {
			case err == nil:
				rec.FinancialCharts = charts
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				log.Warn("chart pass skipped: %v", err)
			}
		} else {
			log.Debug("source cannot drive charts, skipping chart pass")
		}
	}

	return e.validate(rec, log)
}

// ExtractHTML runs the extraction pipeline over a static document. The
// chart pass never runs.
func (e *Extractor) ExtractHTML(html, url string, opts Options) (*stock.StockRecord, error) {
	log := e.requestLogger(opts)
	page, err := NewPage(url, html)
	if err != nil {
		return nil, err
	}
	return e.validate(e.build(page, log), log)
}

func (e *Extractor) requestLogger(opts Options) *logging.RequestLogger {
	id := opts.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	return logging.WithRequestID(logging.CategoryExtract, id)
}

func (e *Extractor) build(p *Page, log *logging.RequestLogger) *stock.StockRecord {
	rec := stock.New(p.URL, e.now())

	for _, f := range e.fields {
		v := run(f.strategy, p)
		rec.Set(f.key, v)
		if stock.IsMissing(v) {
			log.Debug("field %s: not found", f.key)
		}
	}

	rec.Pros = guarded(func() []string { return List("pros")(p) }, []string{})
	rec.Cons = guarded(func() []string { return List("cons")(p) }, []string{})
	rec.AllTables = guarded(func() []stock.Table { return AllTables(p) }, []stock.Table{})
	rec.ShareholdingPattern = guarded(func() map[string]string { return Shareholding(p) }, nil)

	log.Info("extracted %s (%s): price=%s tables=%d pros=%d cons=%d",
		rec.StockName, rec.Symbol, rec.CurrentPrice, len(rec.AllTables), len(rec.Pros), len(rec.Cons))
	return rec
}

func (e *Extractor) validate(rec *stock.StockRecord, log *logging.RequestLogger) (*stock.StockRecord, error) {
	if missing := rec.Missing(e.required); len(missing) > 0 {
		log.Warn("validation failed, missing: %s", strings.Join(missing, ", "))
		return nil, stock.NewExtractionFailure(missing, rec)
	}
	return rec, nil
}

// BasicInfo is the quick look shown before a full extraction.
type BasicInfo struct {
	Name      string `json:"name"`
	Price     string `json:"price"`
	Change    string `json:"change"`
	Direction string `json:"direction,omitempty"`
}

// BasicInfo reads the name, price and change without running the full
// strategy set.
func (e *Extractor) BasicInfo(ctx context.Context, src PageSource) (BasicInfo, error) {
	html, err := src.HTML(ctx)
	if err != nil {
		return BasicInfo{}, fmt.Errorf("failed to read page: %w", err)
	}
	p, err := NewPage(src.URL(), html)
	if err != nil {
		return BasicInfo{}, err
	}

	info := BasicInfo{
		Name:   run(Selector(`h1[class*="stock"]`, `h1`, `.stock-name`, `[data-testid="stock-name"]`), p),
		Price:  firstLine(run(Selector(`[class*="price"]`, `[data-testid="current-price"]`), p)),
		Change: firstLine(run(Selector(`[class*="change"]`, `[data-testid="day-change"]`), p)),
	}
	if stock.IsMissing(info.Name) {
		info.Name = "Stock"
	}
	for _, v := range []*string{&info.Price, &info.Change} {
		if stock.IsMissing(*v) {
			*v = ""
		}
	}
	switch {
	case strings.ContainsAny(info.Change, "+▲"):
		info.Direction = "positive"
	case strings.ContainsAny(info.Change, "-−▼"):
		info.Direction = "negative"
	}
	return info, nil
}
