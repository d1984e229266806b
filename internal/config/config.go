package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka" mapstructure:"kafka"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	ScoringModel      string  `yaml:"scoring_model" mapstructure:"scoring_model"`
	ChatModel         string  `yaml:"chat_model" mapstructure:"chat_model"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	ScoreMaxTokens    int64   `yaml:"score_max_tokens" mapstructure:"score_max_tokens"`
	MessageMaxTokens  int64   `yaml:"message_max_tokens" mapstructure:"message_max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
}

// ScoringConfig configures the customer interest fan-out.
type ScoringConfig struct {
	MaxConcurrency    int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	BatchTimeoutSecs  int    `yaml:"batch_timeout_secs" mapstructure:"batch_timeout_secs"`
	UnparseablePolicy string `yaml:"unparseable_policy" mapstructure:"unparseable_policy"`
}

// RetryConfig configures retries for outbound LLM calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the LLM circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AuthConfig configures bearer token verification. Exactly one of
// HMACSecret or PublicKeyPath must be set for the serve command.
type AuthConfig struct {
	HMACSecret    string `yaml:"hmac_secret" mapstructure:"hmac_secret"`
	PublicKeyPath string `yaml:"public_key_path" mapstructure:"public_key_path"`
	Issuer        string `yaml:"issuer" mapstructure:"issuer"`
	Audience      string `yaml:"audience" mapstructure:"audience"`
	LeewaySecs    int    `yaml:"leeway_secs" mapstructure:"leeway_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// RedisConfig configures the optional distributed run lock.
type RedisConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	Password    string `yaml:"password" mapstructure:"password"`
	DB          int    `yaml:"db" mapstructure:"db"`
	LockTTLSecs int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// KafkaConfig configures the optional domain event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TAILOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default still need registering so AutomaticEnv sees them.
	for _, key := range []string{
		"store.database_url", "anthropic.key", "anthropic.base_url",
		"auth.hmac_secret", "auth.public_key_path", "auth.issuer", "auth.audience",
		"redis.addr", "redis.password",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 180)
	v.SetDefault("anthropic.scoring_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.chat_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.requests_per_second", 5.0)
	v.SetDefault("anthropic.burst", 5)
	v.SetDefault("anthropic.score_max_tokens", 200)
	v.SetDefault("anthropic.message_max_tokens", 500)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("scoring.max_concurrency", 8)
	v.SetDefault("scoring.batch_timeout_secs", 120)
	v.SetDefault("scoring.unparseable_policy", "error")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("auth.leeway_secs", 30)
	v.SetDefault("redis.lock_ttl_secs", 300)
	v.SetDefault("kafka.topic", "tailorreach.events")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Scoring.UnparseablePolicy = normalizePolicy(cfg.Scoring.UnparseablePolicy)

	return &cfg, nil
}

// Validate checks the fields required by the given command mode.
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
		}
	}
	requireLLM := func() {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Scoring.MaxConcurrency < 1 || c.Scoring.MaxConcurrency > 64 {
			errs = append(errs, "scoring.max_concurrency must be between 1 and 64")
		}
		switch normalizePolicy(c.Scoring.UnparseablePolicy) {
		case "", "error", "random":
		default:
			errs = append(errs, fmt.Sprintf("scoring.unparseable_policy must be error or random, got %q", c.Scoring.UnparseablePolicy))
		}
	}

	switch mode {
	case "serve":
		requireStore()
		requireLLM()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Auth.HMACSecret == "" && c.Auth.PublicKeyPath == "" {
			errs = append(errs, "auth.hmac_secret or auth.public_key_path is required")
		}
		if c.Auth.HMACSecret != "" && c.Auth.PublicKeyPath != "" {
			errs = append(errs, "auth.hmac_secret and auth.public_key_path are mutually exclusive")
		}
	case "score":
		requireStore()
		requireLLM()
	case "migrate", "import", "runs":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// normalizePolicy folds an unparseable policy name the same way
// scoring.ParsePolicy reads it.
func normalizePolicy(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Anthropic.Key = mask(c.Anthropic.Key)
	c.Auth.HMACSecret = mask(c.Auth.HMACSecret)
	c.Redis.Password = mask(c.Redis.Password)
	c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
