package config

import "time"

// ExtractConfig configures the field extraction heuristics.
type ExtractConfig struct {
	// Pages outside this pattern are rejected before extraction.
	StockPagePattern string `yaml:"stock_page_pattern"`

	// Fields that must resolve for a record to be valid.
	RequiredFields []string `yaml:"required_fields"`

	ChartSettle     string `yaml:"chart_settle"`
	PriceTextWindow int    `yaml:"price_text_window"`
	ScanLimit       int    `yaml:"scan_limit"`

	// A quick look re-caches the page when the stored record is older than
	// this. "off" disables it.
	AutoCacheInterval string `yaml:"auto_cache_interval"`
}

// GetChartSettle returns the wait after activating a chart tab.
func (c ExtractConfig) GetChartSettle() time.Duration {
	return parseDuration(c.ChartSettle, 1500*time.Millisecond)
}

// GetAutoCacheInterval returns the age after which a quick look re-caches
// the page, or 0 when auto-caching is off.
func (c ExtractConfig) GetAutoCacheInterval() time.Duration {
	if c.AutoCacheInterval == "off" {
		return 0
	}
	return parseDuration(c.AutoCacheInterval, 5*time.Minute)
}
