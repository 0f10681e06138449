package config

import "time"

// DeliverConfig configures hand-off to the chat assistant.
type DeliverConfig struct {
	Mode         string `yaml:"mode"` // browser, gemini
	Destination  string `yaml:"destination"`
	InputTimeout string `yaml:"input_timeout"`
	FillSettle   string `yaml:"fill_settle"`
	SubmitSettle string `yaml:"submit_settle"`
	Preprompt    string `yaml:"preprompt"`
}

// GetInputTimeout returns the bound on waiting for the destination input.
func (c DeliverConfig) GetInputTimeout() time.Duration {
	return parseDuration(c.InputTimeout, 15*time.Second)
}

// GetFillSettle returns the wait after injecting the prompt.
func (c DeliverConfig) GetFillSettle() time.Duration {
	return parseDuration(c.FillSettle, time.Second)
}

// GetSubmitSettle returns the wait before looking for a submit control.
func (c DeliverConfig) GetSubmitSettle() time.Duration {
	return parseDuration(c.SubmitSettle, 500*time.Millisecond)
}

// GeminiConfig configures direct API delivery.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the Gemini request timeout.
func (c GeminiConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 120*time.Second)
}
