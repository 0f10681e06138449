package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"stockbrief/internal/logging"
	"stockbrief/internal/stock"
)

// ChartDriver is implemented by live page sources whose financial chart
// tabs can be clicked.
type ChartDriver interface {
	// ActivateTab clicks the chart tab carrying label.
	ActivateTab(ctx context.Context, label string) error
	// Snapshot returns the page's current outer HTML.
	Snapshot(ctx context.Context) (string, error)
}

// ChartTab pairs a visible tab label with its series key.
type ChartTab struct {
	Label string
	Key   string
}

// ChartTabs are visited in order during the chart pass.
var ChartTabs = []ChartTab{
	{Label: "Revenue", Key: "revenue"},
	{Label: "Profit", Key: "profit"},
	{Label: "Net Worth", Key: "netWorth"},
}

var errNoChartData = errors.New("no chart series found")

var (
	chartValue = regexp.MustCompile(`^[+\-−]?[₹$]?\s?\d[\d,]*(?:\.\d+)?$`)
	chartDate  = regexp.MustCompile(`(?i)^(?:` +
		`(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*(?:'\d{2}|\d{4})` +
		`|(?:q[1-4]\s*)?fy\s*'?\d{2,4}` +
		`)$`)
	unitPattern = regexp.MustCompile(`(?i)(₹\s*in\s*(?:cr|crores?|lakhs?)\b|\bin\s+cr\b|\bcrores\b|\blakhs\b)`)
)

// chartPass visits each chart tab on a live page and reads its series.
// Clicking tabs changes the page's visible state.
func chartPass(ctx context.Context, drv ChartDriver, url string, settle time.Duration, log *logging.RequestLogger) (*stock.FinancialCharts, error) {
	charts := &stock.FinancialCharts{Series: make(map[string]stock.ChartSeries)}
	var last *Page

	for _, tab := range ChartTabs {
		page, err := snapshot(ctx, drv, url)
		if err != nil {
			return nil, err
		}
		if !tabActive(page, tab.Label) {
			if err := drv.ActivateTab(ctx, tab.Label); err != nil {
				log.Warn("chart tab %q not activated: %v", tab.Label, err)
				continue
			}
			if err := sleep(ctx, settle); err != nil {
				return nil, err
			}
			if page, err = snapshot(ctx, drv, url); err != nil {
				return nil, err
			}
		}
		last = page

		series := guarded(func() stock.ChartSeries { return ChartSeriesOf(page) }, stock.ChartSeries{})
		if len(series.Values) == 0 {
			log.Debug("chart tab %q has no readable series", tab.Label)
			continue
		}
		charts.Series[tab.Key] = series
		log.Debug("chart tab %q: %d points", tab.Label, len(series.Values))
	}

	if len(charts.Series) == 0 {
		return nil, errNoChartData
	}
	charts.Metadata = stock.ChartMetadata{
		Unit:        ChartUnit(last),
		PeriodMode:  ActivePeriod(last),
		ExtractedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return charts, nil
}

func snapshot(ctx context.Context, drv ChartDriver, url string) (*Page, error) {
	html, err := drv.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return NewPage(url, html)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChartSeriesOf reads the chart currently drawn on the page: numeric
// labels from svg text nodes zipped with the axis date labels. The shorter
// of the two sequences bounds the result.
func ChartSeriesOf(p *Page) stock.ChartSeries {
	var dates, values []string
	p.Doc.Find("svg text").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		switch {
		case text == "":
		case chartDate.MatchString(text):
			dates = append(dates, text)
		case chartValue.MatchString(text):
			values = append(values, text)
		}
	})
	n := min(len(dates), len(values))
	return stock.ChartSeries{Dates: dates[:n:n], Values: values[:n:n]}
}

// ChartUnit returns the currency unit annotation near the charts.
func ChartUnit(p *Page) string {
	if p == nil {
		return stock.NotAvailable
	}
	if m := unitPattern.FindString(p.Text()); m != "" {
		return m
	}
	return stock.NotAvailable
}

// ActivePeriod returns the selected aggregation period, Quarterly or Yearly.
func ActivePeriod(p *Page) string {
	if p == nil {
		return stock.NotAvailable
	}
	for _, label := range []string{"Quarterly", "Yearly"} {
		if tabActive(p, label) {
			return label
		}
	}
	return stock.NotAvailable
}

// tabActive reports whether a control labelled label, or its parent,
// carries an active marker.
func tabActive(p *Page, label string) bool {
	active := false
	p.each(`[role="tab"], button, li, div, span, a`, func(s *goquery.Selection) bool {
		if !strings.EqualFold(p.TextOf(s), label) {
			return true
		}
		for cur, i := s, 0; i < 2 && cur.Length() > 0; cur, i = cur.Parent(), i+1 {
			if isActive(cur) {
				active = true
				return false
			}
		}
		return true
	})
	return active
}

func isActive(s *goquery.Selection) bool {
	if v, _ := s.Attr("aria-selected"); v == "true" {
		return true
	}
	if v, _ := s.Attr("aria-pressed"); v == "true" {
		return true
	}
	for _, c := range strings.Fields(strings.ToLower(s.AttrOr("class", ""))) {
		if strings.Contains(c, "inactive") || strings.Contains(c, "unselected") {
			continue
		}
		if strings.Contains(c, "active") || strings.Contains(c, "selected") {
			return true
		}
	}
	return false
}
