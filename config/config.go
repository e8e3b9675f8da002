package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/lifedrop/lifedrop-api/internal/email"
	"github.com/lifedrop/lifedrop-api/internal/geocode"
	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/router"
	"github.com/lifedrop/lifedrop-api/internal/service/notification"
	"github.com/lifedrop/lifedrop-api/internal/store/remote"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	redisbroker "github.com/lifedrop/lifedrop-api/pkg/messaging/redis"
)

// EnvPrefix namespaces every environment override, e.g. LIFEDROP_SERVER_PORT.
const EnvPrefix = "LIFEDROP"

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" split_words:"true"`
	TLS             bool          `mapstructure:"tls"`
}

// BackendConfig picks the persistence strategy. Remote is tried only when
// a database host is configured; local is always available as fallback.
type BackendConfig struct {
	ForceLocal bool   `mapstructure:"force_local" split_words:"true"`
	LocalPath  string `mapstructure:"local_path" split_words:"true"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests" split_words:"true"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures" split_words:"true"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type MailConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	SkipVerify bool   `mapstructure:"skip_verify" split_words:"true"`
}

type GeocodeConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url" split_words:"true"`
	UserAgent string        `mapstructure:"user_agent" split_words:"true"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" split_words:"true"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins" split_words:"true"`
	AllowCredentials bool          `mapstructure:"allow_credentials" split_words:"true"`
	MaxAge           time.Duration `mapstructure:"max_age" split_words:"true"`
}

type NotificationConfig struct {
	MaxRecipients int           `mapstructure:"max_recipients" split_words:"true"`
	OTPTTL        time.Duration `mapstructure:"otp_ttl" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type WorkerConfig struct {
	HealthPort  int           `mapstructure:"health_port" split_words:"true"`
	Concurrency int           `mapstructure:"concurrency"`
	SendTimeout time.Duration `mapstructure:"send_timeout" split_words:"true"`
}

type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Backend       BackendConfig      `mapstructure:"backend"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Breaker       BreakerConfig      `mapstructure:"breaker"`
	JWT           JWTConfig          `mapstructure:"jwt"`
	Mail          MailConfig         `mapstructure:"mail"`
	Geocode       GeocodeConfig      `mapstructure:"geocode"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit" split_words:"true"`
	CORS          CORSConfig         `mapstructure:"cors"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Log           LogConfig          `mapstructure:"log"`
	Worker        WorkerConfig       `mapstructure:"worker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("backend.local_path", "lifedrop.db")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.consecutive_failures", 5)

	v.SetDefault("jwt.issuer", "lifedrop")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("mail.port", 587)

	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.timeout", 5*time.Second)
	v.SetDefault("geocode.cache_ttl", time.Hour)

	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("notifications.otp_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")

	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.send_timeout", 30*time.Second)
}

// Load reads .env (if present), then config.yml from path or the usual
// locations, then applies LIFEDROP_* environment overrides. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate reports settings the API cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt.secret is required")
	}
	if len(c.JWT.Secret) < 16 {
		return errors.New("jwt.secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}

// RemoteEnabled reports whether startup should try the remote backend.
func (c *Config) RemoteEnabled() bool {
	return !c.Backend.ForceLocal && c.Database.Host != ""
}

func (c *Config) ToRemoteConfig() remote.Config {
	return remote.Config{
		Database: remote.DatabaseConfig{
			Host:            c.Database.Host,
			Port:            c.Database.Port,
			User:            c.Database.User,
			Password:        c.Database.Password,
			Name:            c.Database.Name,
			SSLMode:         c.Database.SSLMode,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Redis: c.ToBrokerConfig(),
		Breaker: remote.BreakerConfig{
			MaxRequests:         c.Breaker.MaxRequests,
			Interval:            c.Breaker.Interval,
			Timeout:             c.Breaker.Timeout,
			ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
		},
		OTPTTL: c.Notifications.OTPTTL,
	}
}

func (c *Config) ToBrokerConfig() redisbroker.Config {
	return redisbroker.Config{
		URL:          c.Redis.URL,
		MaxRetries:   c.Redis.MaxRetries,
		RetryBackoff: c.Redis.RetryBackoff,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
	}
}

func (c *Config) ToJWTConfig() auth.Config {
	return auth.Config{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
	}
}

func (c *Config) ToMailConfig() email.Config {
	return email.Config{
		Host:       c.Mail.Host,
		Port:       c.Mail.Port,
		Username:   c.Mail.Username,
		Password:   c.Mail.Password,
		From:       c.Mail.From,
		SkipVerify: c.Mail.SkipVerify,
	}
}

func (c *Config) ToGeocodeConfig() geocode.Config {
	return geocode.Config{
		BaseURL:   c.Geocode.BaseURL,
		UserAgent: c.Geocode.UserAgent,
		Timeout:   c.Geocode.Timeout,
		CacheTTL:  c.Geocode.CacheTTL,
	}
}

func (c *Config) ToNotificationConfig() notification.Config {
	return notification.Config{MaxRecipients: c.Notifications.MaxRecipients}
}

func (c *Config) ToRouterConfig() router.RouterConfig {
	return router.RouterConfig{
		RateLimit:   c.RateLimit.RequestsPerSecond,
		RateBurst:   c.RateLimit.Burst,
		MaxBodySize: c.Server.MaxBodyBytes,
		CORSConfig: middleware.CORSConfig{
			AllowOrigins:     c.CORS.AllowedOrigins,
			AllowCredentials: c.CORS.AllowCredentials,
			MaxAge:           c.CORS.MaxAge,
		},
		Security: middleware.SecurityConfig{
			HSTS:       c.Server.TLS,
			HSTSMaxAge: middleware.DefaultSecurityConfig().HSTSMaxAge,
		},
	}
}
