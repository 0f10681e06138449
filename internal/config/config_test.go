package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "stockbrief" {
		t.Errorf("expected Name=stockbrief, got %s", cfg.Name)
	}
	if cfg.Deliver.Mode != "browser" {
		t.Errorf("expected Mode=browser, got %s", cfg.Deliver.Mode)
	}
	if len(cfg.Extract.RequiredFields) != 2 {
		t.Errorf("expected 2 required fields, got %v", cfg.Extract.RequiredFields)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("STOCKBRIEF_DESTINATION", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Deliver.Destination = "https://chat.example.com/"
	cfg.Extract.RequiredFields = []string{"stockName", "currentPrice", "symbol"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Deliver.Destination != "https://chat.example.com/" {
		t.Errorf("expected destination to round-trip, got %s", loaded.Deliver.Destination)
	}
	if len(loaded.Extract.RequiredFields) != 3 {
		t.Errorf("expected 3 required fields, got %v", loaded.Extract.RequiredFields)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Cache.Driver)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("deliver: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Deliver.Mode = "carrier-pigeon" }, true},
		{"gemini without key", func(c *Config) { c.Deliver.Mode = "gemini" }, true},
		{"gemini with key", func(c *Config) { c.Deliver.Mode = "gemini"; c.Gemini.APIKey = "k" }, false},
		{"empty destination", func(c *Config) { c.Deliver.Destination = "" }, true},
		{"bad driver", func(c *Config) { c.Cache.Driver = "redis" }, true},
		{"sqlite without path", func(c *Config) { c.Cache.Path = "" }, true},
		{"memory without path", func(c *Config) { c.Cache.Driver = "memory"; c.Cache.Path = "" }, false},
		{"bad pattern", func(c *Config) { c.Extract.StockPagePattern = "([" }, true},
		{"no required fields", func(c *Config) { c.Extract.RequiredFields = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Deliver.GetInputTimeout(); got != 15*time.Second {
		t.Errorf("input timeout = %v", got)
	}
	if got := cfg.Deliver.GetFillSettle(); got != time.Second {
		t.Errorf("fill settle = %v", got)
	}
	if got := cfg.Extract.GetChartSettle(); got != 1500*time.Millisecond {
		t.Errorf("chart settle = %v", got)
	}

	if got := cfg.Extract.GetAutoCacheInterval(); got != 5*time.Minute {
		t.Errorf("auto cache interval = %v", got)
	}
	cfg.Extract.AutoCacheInterval = "off"
	if got := cfg.Extract.GetAutoCacheInterval(); got != 0 {
		t.Errorf("disabled auto cache interval = %v", got)
	}

	cfg.Deliver.InputTimeout = "garbage"
	if got := cfg.Deliver.GetInputTimeout(); got != 15*time.Second {
		t.Errorf("fallback input timeout = %v", got)
	}
	cfg.Browser.NavigationTimeout = "-5s"
	if got := cfg.Browser.GetNavigationTimeout(); got != 30*time.Second {
		t.Errorf("fallback navigation timeout = %v", got)
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	c := LoggingConfig{}
	if c.IsCategoryEnabled("extract") {
		t.Error("disabled debug mode must disable all categories")
	}
	c.DebugMode = true
	if !c.IsCategoryEnabled("extract") {
		t.Error("unlisted category should default to enabled")
	}
	c.Categories = map[string]bool{"extract": false}
	if c.IsCategoryEnabled("extract") {
		t.Error("explicitly disabled category should be disabled")
	}
}
