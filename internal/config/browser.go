package config

import "time"

// BrowserConfig configures the rod-driven Chrome instance.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"`
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	StablePageTimeout string   `yaml:"stable_page_timeout"`
	SessionStore      string   `yaml:"session_store"`
	ControlFile       string   `yaml:"control_file"`
}

// GetNavigationTimeout returns the navigation timeout as a duration.
func (c BrowserConfig) GetNavigationTimeout() time.Duration {
	return parseDuration(c.NavigationTimeout, 30*time.Second)
}

// GetStablePageTimeout returns how long to wait for a page to settle before snapshotting.
func (c BrowserConfig) GetStablePageTimeout() time.Duration {
	return parseDuration(c.StablePageTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
