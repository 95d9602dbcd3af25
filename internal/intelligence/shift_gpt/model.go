// Package shift_gpt asks a hosted language model for chemical-shift
// predictions and returns its free-text answer.
package shift_gpt

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds settings for the language-model back-end.
type Config struct {
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`
}

// NewConfig creates a configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   2048,
		Temperature: 0.1,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api key is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.MaxTokens <= 0 || c.MaxTokens > 64000 {
		return errors.New("max tokens must be between 1 and 64000")
	}
	if c.Temperature < 0 || c.Temperature > 1.0 {
		return errors.New("temperature must be between 0 and 1.0")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("base url must be absolute")
		}
	}
	return nil
}
