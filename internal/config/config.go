// Package config loads configuration for the API server and CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/llm"
	"github.com/clarify-edu/clarify-api/internal/service"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Search    SearchConfig    `mapstructure:"search"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
	UseInMemory     bool          `mapstructure:"use_in_memory"`
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	Token    string `mapstructure:"token"`
}

// AuthConfig configures Supabase bearer token checks. With VerifyRemote the
// token is also checked against the Supabase auth server.
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	SupabaseURL  string `mapstructure:"supabase_url"`
	SupabaseKey  string `mapstructure:"supabase_key"`
	VerifyRemote bool   `mapstructure:"verify_remote"`
}

type LLMConfig struct {
	Provider        string            `mapstructure:"provider"`
	OpenAIAPIKey    string            `mapstructure:"openai_api_key"`
	AnthropicAPIKey string            `mapstructure:"anthropic_api_key"`
	Model           string            `mapstructure:"model"`
	EmbeddingModel  string            `mapstructure:"embedding_model"`
	MaxTokens       int               `mapstructure:"max_tokens"`
	Breaker         llm.BreakerConfig `mapstructure:"breaker"`
}

// GraphConfig embeds the builder thresholds.
type GraphConfig struct {
	graph.Config     `mapstructure:",squash"`
	Timeout          time.Duration            `mapstructure:"timeout"`
	SimilaritySource service.SimilaritySource `mapstructure:"similarity_source"`
}

type SummaryConfig struct {
	MaxAge time.Duration `mapstructure:"max_age"`
}

type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
}

// RateLimitConfig bounds requests per client address and, once
// authenticated, per user. Zero disables a limit.
type RateLimitConfig struct {
	Requests     int           `mapstructure:"requests"`
	UserRequests int           `mapstructure:"user_requests"`
	Window       time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "clarify")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.ca_file", "")
	v.SetDefault("nats.cert_file", "")
	v.SetDefault("nats.key_file", "")
	v.SetDefault("nats.token", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.supabase_url", "")
	v.SetDefault("auth.supabase_key", "")
	v.SetDefault("auth.verify_remote", false)

	breaker := llm.DefaultBreakerConfig()
	v.SetDefault("llm.provider", string(llm.ProviderOpenAI))
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.breaker.max_requests", breaker.MaxRequests)
	v.SetDefault("llm.breaker.interval", breaker.Interval)
	v.SetDefault("llm.breaker.timeout", breaker.Timeout)
	v.SetDefault("llm.breaker.failure_threshold", breaker.FailureThreshold)
	v.SetDefault("llm.breaker.min_requests", breaker.MinRequests)

	v.SetDefault("graph.cluster_threshold", graph.DefaultClusterThreshold)
	v.SetDefault("graph.link_threshold", graph.DefaultLinkThreshold)
	v.SetDefault("graph.timeout", 30*time.Second)
	v.SetDefault("graph.similarity_source", string(service.SimilarityLocal))

	v.SetDefault("summary.max_age", 24*time.Hour)

	v.SetDefault("search.threshold", 0.3)
	v.SetDefault("search.limit", 20)

	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.user_requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "clarify-api")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads defaults, then an optional config file, then the environment.
// With an empty path it looks for config.yaml in the working directory and
// /etc/clarify, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLARIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names the deployment already exports.
	for key, env := range map[string]string{
		"database.url":          "DATABASE_URL",
		"llm.openai_api_key":    "OPENAI_API_KEY",
		"llm.anthropic_api_key": "ANTHROPIC_API_KEY",
		"auth.jwt_secret":       "SUPABASE_JWT_SECRET",
		"auth.supabase_url":     "SUPABASE_URL",
		"auth.supabase_key":     "SUPABASE_ANON_KEY",
		"nats.url":              "NATS_URL",
		"server.port":           "PORT",
	} {
		prefixed := "CLARIFY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/clarify")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Database.URL != "" {
		if err := cfg.Database.applyURL(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
		}
	}

	return &cfg, nil
}

func (d *DatabaseConfig) applyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	d.Host = u.Hostname()
	d.Port = 5432
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		d.Port = port
	}
	d.User = u.User.Username()
	d.Password, _ = u.User.Password()
	d.DBName = strings.TrimPrefix(u.Path, "/")
	if mode := u.Query().Get("sslmode"); mode != "" {
		d.SSLMode = mode
	}
	return nil
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is required", ErrInvalid)
	}
	if err := c.Graph.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Graph.SimilaritySource {
	case service.SimilarityLocal, service.SimilarityStore:
	default:
		return fmt.Errorf("%w: graph.similarity_source must be %q or %q", ErrInvalid, service.SimilarityLocal, service.SimilarityStore)
	}
	if c.Graph.Timeout <= 0 {
		return fmt.Errorf("%w: graph.timeout must be positive", ErrInvalid)
	}
	if c.Auth.JWTSecret == "" && !c.Auth.VerifyRemote {
		return fmt.Errorf("%w: auth.jwt_secret or auth.verify_remote is required", ErrInvalid)
	}
	if c.Auth.VerifyRemote && (c.Auth.SupabaseURL == "" || c.Auth.SupabaseKey == "") {
		return fmt.Errorf("%w: auth.verify_remote needs supabase_url and supabase_key", ErrInvalid)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("%w: search.limit must be positive", ErrInvalid)
	}
	return nil
}
