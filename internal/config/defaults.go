package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default values
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLLMModel       = "claude-sonnet-4-20250514"
	DefaultLLMMaxTokens   = 2048
	DefaultLLMTimeout     = 60 * time.Second
	DefaultLLMMaxRetries  = 2
	DefaultWebTimeout     = 20 * time.Second
	DefaultWebMaxRetries  = 2
	DefaultWebServiceURL  = "https://nmr-predict.example.org/api"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisMode      = "standalone"
	DefaultRedisKeyPrefix = "shiftscope:"
	DefaultPredictionTTL  = 6 * time.Hour

	DefaultMetricsNamespace = "shiftscope"
	DefaultMetricsPath      = "/metrics"

	DefaultMaxSMILESLength = 400
)

// Default returns a Config populated entirely with defaults.
func Default() *Config {
	cfg := &Config{
		LLM:        LLMConfig{Enabled: true},
		WebService: WebServiceConfig{Enabled: true},
		Metrics:    MetricsConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-value fields in cfg. Explicitly set values are
// left alone. Booleans are not touched here; their defaults come from
// setViperDefaults or Default.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS*2) + 1
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Service == "" {
		cfg.Log.Service = "shiftscope"
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = DefaultLLMMaxRetries
	}

	// ── Web service ───────────────────────────────────────────────────────────
	if cfg.WebService.BaseURL == "" {
		cfg.WebService.BaseURL = DefaultWebServiceURL
	}
	if cfg.WebService.Timeout == 0 {
		cfg.WebService.Timeout = DefaultWebTimeout
	}
	if cfg.WebService.MaxRetries == 0 {
		cfg.WebService.MaxRetries = DefaultWebMaxRetries
	}
	if cfg.WebService.UserAgent == "" {
		cfg.WebService.UserAgent = "shiftscope/1.0"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.PredictionTTL == 0 {
		cfg.Redis.PredictionTTL = DefaultPredictionTTL
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── NMR ───────────────────────────────────────────────────────────────────
	if cfg.NMR.MaxSMILESLength == 0 {
		cfg.NMR.MaxSMILESLength = DefaultMaxSMILESLength
	}
}

// setViperDefaults registers every key with viper. Registration is what lets
// AutomaticEnv resolve SHIFTSCOPE_* variables when no config file mentions a
// key, and it is the only place boolean defaults live.
func setViperDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.service", d.Log.Service)

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("web_service.enabled", true)
	v.SetDefault("web_service.base_url", d.WebService.BaseURL)
	v.SetDefault("web_service.timeout", d.WebService.Timeout)
	v.SetDefault("web_service.max_retries", d.WebService.MaxRetries)
	v.SetDefault("web_service.user_agent", d.WebService.UserAgent)

	v.SetDefault("local_db.path", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", d.Redis.Mode)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.prediction_ttl", d.Redis.PredictionTTL)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("nmr.max_smiles_length", d.NMR.MaxSMILESLength)
}
