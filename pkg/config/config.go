package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Pipeline   PipelineConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Validation ValidationConfig
	Builds     BuildsConfig
	Redis      RedisConfig
	SQLite     SQLiteConfig
	Sectors    SectorsConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type LLMConfig struct {
	// Provider is one of openai, gemini or none.
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float32
	MaxTokens         int
	RequestsPerMinute int
	RetryMaxAttempts  int
	BreakerMinRequest uint32
	BreakerOpenSec    int
}

type PipelineConfig struct {
	LLMTimeoutSec int
}

func (p PipelineConfig) LLMTimeout() time.Duration {
	return time.Duration(p.LLMTimeoutSec) * time.Second
}

type AuthConfig struct {
	Disabled    bool
	JWTSecret   string
	CookieName  string
	OwnerUserID string
	OwnerEmail  string
}

type RateLimitConfig struct {
	MaxRequests int
	WindowSec   int
}

type ValidationConfig struct {
	MaxTextLength int
}

type BuildsConfig struct {
	// Store is memory or redis.
	Store      string
	MaxEntries int
	TTLMinutes int
}

func (b BuildsConfig) TTL() time.Duration {
	return time.Duration(b.TTLMinutes) * time.Minute
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
	// RetentionDays bounds the audit trail; zero keeps everything.
	RetentionDays int
}

type SectorsConfig struct {
	// ProfilesPath overrides the embedded sector profile data when set.
	ProfilesPath string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/platform-factory")

	v.SetEnvPrefix("PLATFORM_FACTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.Builds.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported builds store %q", c.Builds.Store)
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required unless auth.disabled is set")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSec <= 0 {
		return fmt.Errorf("rateLimit.maxRequests and rateLimit.windowSec must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 90)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 4096)
	v.SetDefault("llm.requestsPerMinute", 60)
	v.SetDefault("llm.retryMaxAttempts", 2)
	v.SetDefault("llm.breakerMinRequest", 5)
	v.SetDefault("llm.breakerOpenSec", 30)

	v.SetDefault("pipeline.llmTimeoutSec", 20)

	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.cookieName", "session")
	v.SetDefault("auth.ownerUserId", "")
	v.SetDefault("auth.ownerEmail", "")

	v.SetDefault("rateLimit.maxRequests", 30)
	v.SetDefault("rateLimit.windowSec", 60)

	v.SetDefault("validation.maxTextLength", 10000)

	v.SetDefault("builds.store", "memory")
	v.SetDefault("builds.maxEntries", 512)
	v.SetDefault("builds.ttlMinutes", 120)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sqlite.enabled", false)
	v.SetDefault("sqlite.path", "./data/audit.db")
	v.SetDefault("sqlite.retentionDays", 30)

	v.SetDefault("sectors.profilesPath", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
}
