package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Duration is a time.Duration written as "15s" or "1m30s" in both the TOML
// file and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	CORS       CORSConfig       `toml:"cors"`
	YouTube    YouTubeConfig    `toml:"youtube"`
	Transcript TranscriptConfig `toml:"transcript"`
}

type ServerConfig struct {
	Host              string   `toml:"host" env:"SERVER_HOST"`
	Port              string   `toml:"port" env:"SERVER_PORT"`
	ReadTimeout       Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       Duration `toml:"idle_timeout" env:"IDLE_TIMEOUT"`
	RequestTimeout    Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	EnableCompression bool     `toml:"enable_compression" env:"ENABLE_COMPRESSION"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LogConfig struct {
	Level      string `toml:"level" env:"LOG_LEVEL"`
	Format     string `toml:"format" env:"LOG_FORMAT"`
	File       string `toml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `toml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `toml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `toml:"compress" env:"LOG_COMPRESS"`
}

// DatabaseConfig configures the lookup log. An empty Path disables it.
type DatabaseConfig struct {
	Path               string   `toml:"path" env:"DB_PATH"`
	MaxConnections     int      `toml:"max_connections" env:"DB_MAX_CONNECTIONS"`
	MaxIdleConnections int      `toml:"max_idle_connections" env:"DB_MAX_IDLE_CONNECTIONS"`
	ConnMaxLifetime    Duration `toml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
}

// RateLimitConfig allows Burst requests at once, refilled one every Interval.
type RateLimitConfig struct {
	Enabled  bool     `toml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Burst    int      `toml:"burst" env:"RATE_LIMIT"`
	Interval Duration `toml:"interval" env:"RATE_LIMIT_INTERVAL"`
}

type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxAge         int      `toml:"max_age" env:"CORS_MAX_AGE"`
}

type YouTubeConfig struct {
	BaseURL           string   `toml:"base_url" env:"YOUTUBE_BASE_URL"`
	Strategy          string   `toml:"metadata_strategy" env:"YOUTUBE_METADATA_STRATEGY"`
	FetchTimeout      Duration `toml:"fetch_timeout" env:"YOUTUBE_FETCH_TIMEOUT"`
	UserAgent         string   `toml:"user_agent" env:"YOUTUBE_USER_AGENT"`
	AcceptLanguage    string   `toml:"accept_language" env:"YOUTUBE_ACCEPT_LANGUAGE"`
	InnertubeKey      string   `toml:"innertube_key" env:"YOUTUBE_INNERTUBE_KEY"`
	ClientName        string   `toml:"client_name" env:"YOUTUBE_CLIENT_NAME"`
	ClientVersion     string   `toml:"client_version" env:"YOUTUBE_CLIENT_VERSION"`
	MaxBodyBytes      int64    `toml:"max_body_bytes" env:"YOUTUBE_MAX_BODY_BYTES"`
	RequestsPerSecond float64  `toml:"requests_per_second" env:"YOUTUBE_REQUESTS_PER_SECOND"`
	Burst             int      `toml:"burst" env:"YOUTUBE_BURST"`
}

type TranscriptConfig struct {
	DefaultLanguage  string `toml:"default_language" env:"TRANSCRIPT_DEFAULT_LANGUAGE"`
	AnyTrackFallback bool   `toml:"any_track_fallback" env:"TRANSCRIPT_ANY_TRACK_FALLBACK"`
	StripMarkup      bool   `toml:"strip_markup" env:"TRANSCRIPT_STRIP_MARKUP"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "3000",
			ReadTimeout:       Duration(30 * time.Second),
			WriteTimeout:      Duration(60 * time.Second),
			IdleTimeout:       Duration(120 * time.Second),
			RequestTimeout:    Duration(45 * time.Second),
			ShutdownTimeout:   Duration(15 * time.Second),
			EnableCompression: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Database: DatabaseConfig{
			Path:               "./data/lookups.db",
			MaxConnections:     10,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    Duration(time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Burst:    5,
			Interval: Duration(time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         300,
		},
		YouTube: YouTubeConfig{
			BaseURL:           "https://www.youtube.com",
			Strategy:          "watch",
			FetchTimeout:      Duration(15 * time.Second),
			MaxBodyBytes:      8 << 20,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Transcript: TranscriptConfig{
			DefaultLanguage:  "en",
			AnyTrackFallback: true,
		},
	}
}

// Load layers configuration: built-in defaults, then the TOML file at path
// (if any), then a .env file in the working directory (if any), then the
// process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	// PORT is what most hosting platforms set.
	if _, ok := os.LookupEnv("SERVER_PORT"); !ok {
		if port, ok := os.LookupEnv("PORT"); ok && port != "" {
			cfg.Server.Port = port
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.ReadTimeout <= 0 {
		return errors.New("read timeout must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		return errors.New("idle timeout must be greater than 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("request timeout must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be greater than 0")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation limits must not be negative")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Burst <= 0 {
			return errors.New("rate limit must be greater than 0")
		}
		if c.RateLimit.Interval <= 0 {
			return errors.New("rate limit interval must be greater than 0")
		}
	}
	switch strings.ToLower(c.YouTube.Strategy) {
	case "watch", "player", "auto":
	default:
		return errors.Errorf("unknown metadata strategy %q (want watch, player or auto)", c.YouTube.Strategy)
	}
	if c.YouTube.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be greater than 0")
	}
	if c.YouTube.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be greater than 0")
	}
	if c.YouTube.RequestsPerSecond < 0 || c.YouTube.Burst < 0 {
		return errors.New("upstream rate limit must not be negative")
	}
	if strings.TrimSpace(c.Transcript.DefaultLanguage) == "" {
		return errors.New("default transcript language is required")
	}
	return nil
}
