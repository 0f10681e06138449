package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace directory holding config, cache and logs.
const DirName = ".stockbrief"

// Config holds all stockbrief configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Browser BrowserConfig `yaml:"browser"`
	Extract ExtractConfig `yaml:"extract"`
	Deliver DeliverConfig `yaml:"deliver"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "stockbrief",
		Version: "1.2.0",

		Browser: BrowserConfig{
			Headless:          false,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
			StablePageTimeout: "10s",
			SessionStore:      filepath.Join(DirName, "browser", "sessions.json"),
			ControlFile:       filepath.Join(DirName, "browser", "control.txt"),
		},

		Extract: ExtractConfig{
			StockPagePattern: `^https://groww\.in/stocks/.+`,
			RequiredFields:   []string{"stockName", "currentPrice"},
			ChartSettle:      "1500ms",
			PriceTextWindow:  2000,
			ScanLimit:        300,

			AutoCacheInterval: "5m",
		},

		Deliver: DeliverConfig{
			Mode:         "browser",
			Destination:  "https://chatgpt.com/",
			InputTimeout: "15s",
			FillSettle:   "1s",
			SubmitSettle: "500ms",
		},

		Cache: CacheConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DirName, "cache.db"),
		},

		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},

		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "120s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("STOCKBRIEF_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if dest := os.Getenv("STOCKBRIEF_DESTINATION"); dest != "" {
		c.Deliver.Destination = dest
	}
	if path := os.Getenv("STOCKBRIEF_CACHE_DB"); path != "" {
		c.Cache.Path = path
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
}

// ValidDeliverModes lists the supported delivery modes.
var ValidDeliverModes = []string{"browser", "gemini"}

// ValidCacheDrivers lists the supported cache backends.
var ValidCacheDrivers = []string{"sqlite", "memory"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidDeliverModes, c.Deliver.Mode) {
		return fmt.Errorf("invalid deliver mode: %s (valid: %v)", c.Deliver.Mode, ValidDeliverModes)
	}
	if c.Deliver.Mode == "gemini" && c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini delivery requires an API key (set GEMINI_API_KEY)")
	}
	if c.Deliver.Destination == "" {
		return fmt.Errorf("deliver destination cannot be empty")
	}
	if !contains(ValidCacheDrivers, c.Cache.Driver) {
		return fmt.Errorf("invalid cache driver: %s (valid: %v)", c.Cache.Driver, ValidCacheDrivers)
	}
	if c.Cache.Driver == "sqlite" && c.Cache.Path == "" {
		return fmt.Errorf("cache path cannot be empty for sqlite")
	}
	if _, err := regexp.Compile(c.Extract.StockPagePattern); err != nil {
		return fmt.Errorf("invalid stock page pattern: %w", err)
	}
	if len(c.Extract.RequiredFields) == 0 {
		return fmt.Errorf("extract.required_fields cannot be empty")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
