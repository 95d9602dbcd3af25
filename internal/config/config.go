// Package config defines the configuration structures for ShiftScope
// together with defaults, validation and the viper-based loader.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sections
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	// RateLimitRPS is the per-client sustained request rate; 0 disables limiting.
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig configures the language-model stage.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// WebServiceConfig configures the remote ¹H/¹³C prediction service.
type WebServiceConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// LocalDBConfig configures the offline shift-statistics dataset. An empty
// Path means the embedded seed dataset is used.
type LocalDBConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures the optional prediction result cache.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Mode          string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr          string        `mapstructure:"addr"`
	Addrs         []string      `mapstructure:"addrs"`
	MasterName    string        `mapstructure:"master_name"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PredictionTTL time.Duration `mapstructure:"prediction_ttl"`
}

// MetricsConfig configures Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// NucleusOverride replaces individual catalog values for one nucleus. Nil
// fields keep the built-in value.
type NucleusOverride struct {
	Tolerance *float64 `mapstructure:"tolerance"`
	MinShift  *float64 `mapstructure:"min_shift"`
	MaxShift  *float64 `mapstructure:"max_shift"`
}

// NMRConfig holds prediction-pipeline settings.
type NMRConfig struct {
	MaxSMILESLength int                        `mapstructure:"max_smiles_length"`
	Nuclei          map[string]NucleusOverride `mapstructure:"nuclei"`
}

// Override looks up the override for a nucleus key. Viper lower-cases map
// keys, so the lookup ignores case.
func (c NMRConfig) Override(key string) (NucleusOverride, bool) {
	for k, o := range c.Nuclei {
		if strings.EqualFold(k, key) {
			return o, true
		}
	}
	return NucleusOverride{}, false
}

// Config is the root configuration object.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        logging.LogConfig `mapstructure:"log"`
	LLM        LLMConfig         `mapstructure:"llm"`
	WebService WebServiceConfig  `mapstructure:"web_service"`
	LocalDB    LocalDBConfig     `mapstructure:"local_db"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	NMR        NMRConfig         `mapstructure:"nmr"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

var knownNuclei = map[string]bool{"1H": true, "13C": true, "15N": true, "31P": true, "19F": true}

// Validate performs semantic validation of a fully populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must be ≥ 0")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server.rate_limit_burst must be ≥ 1 when rate limiting is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.LLM.Enabled {
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when the llm stage is enabled")
		}
		if c.LLM.MaxTokens < 1 {
			return fmt.Errorf("llm.max_tokens must be ≥ 1, got %d", c.LLM.MaxTokens)
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
			return fmt.Errorf("llm.temperature %.2f is out of range [0, 1]", c.LLM.Temperature)
		}
		if c.LLM.Timeout <= 0 {
			return fmt.Errorf("llm.timeout must be positive")
		}
	}

	if c.WebService.Enabled {
		u, err := url.Parse(c.WebService.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("web_service.base_url %q is not an absolute URL", c.WebService.BaseURL)
		}
		if c.WebService.Timeout <= 0 {
			return fmt.Errorf("web_service.timeout must be positive")
		}
		if c.WebService.MaxRetries < 0 {
			return fmt.Errorf("web_service.max_retries must be ≥ 0, got %d", c.WebService.MaxRetries)
		}
	}

	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "standalone":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is required in standalone mode")
			}
		case "sentinel":
			if c.Redis.MasterName == "" || len(c.Redis.Addrs) == 0 {
				return fmt.Errorf("redis.master_name and redis.addrs are required in sentinel mode")
			}
		case "cluster":
			if len(c.Redis.Addrs) == 0 {
				return fmt.Errorf("redis.addrs is required in cluster mode")
			}
		default:
			return fmt.Errorf("redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis.db must be ≥ 0, got %d", c.Redis.DB)
		}
	}

	if c.NMR.MaxSMILESLength < 1 {
		return fmt.Errorf("nmr.max_smiles_length must be ≥ 1, got %d", c.NMR.MaxSMILESLength)
	}
	for key, o := range c.NMR.Nuclei {
		if !knownNuclei[strings.ToUpper(key)] {
			return fmt.Errorf("nmr.nuclei: unknown nucleus %q", key)
		}
		if o.Tolerance != nil && *o.Tolerance <= 0 {
			return fmt.Errorf("nmr.nuclei.%s.tolerance must be positive", key)
		}
		if o.MinShift != nil && o.MaxShift != nil && *o.MinShift >= *o.MaxShift {
			return fmt.Errorf("nmr.nuclei.%s: min_shift must be below max_shift", key)
		}
	}

	return nil
}
