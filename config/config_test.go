package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.Addr() != ":3000" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = "8080"
request_timeout = "20s"

[youtube]
metadata_strategy = "auto"
fetch_timeout = "5s"

[transcript]
default_language = "de"
any_track_fallback = false

[cors]
allowed_origins = ["https://a.example", "https://b.example"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("YOUTUBE_FETCH_TIMEOUT", "7s")
	t.Setenv("TRANSCRIPT_STRIP_MARKUP", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, env should win over file", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout.Std() != 20*time.Second {
		t.Errorf("request timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.YouTube.Strategy != "auto" {
		t.Errorf("strategy = %q", cfg.YouTube.Strategy)
	}
	if cfg.YouTube.FetchTimeout.Std() != 7*time.Second {
		t.Errorf("fetch timeout = %v", cfg.YouTube.FetchTimeout)
	}
	if cfg.Transcript.DefaultLanguage != "de" || cfg.Transcript.AnyTrackFallback {
		t.Errorf("transcript = %+v", cfg.Transcript)
	}
	if !cfg.Transcript.StripMarkup {
		t.Error("strip markup should be enabled from env")
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
	// Untouched values keep their defaults.
	if cfg.Database.MaxConnections != 10 {
		t.Errorf("max connections = %d", cfg.Database.MaxConnections)
	}
}

func TestLoadPortFallback(t *testing.T) {
	t.Setenv("PORT", "4000")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "4000" {
		t.Errorf("port = %q, want 4000", cfg.Server.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("bad toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		os.WriteFile(path, []byte("[server\nport="), 0o600)
		if _, err := Load(path); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("bad duration env", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT", "soon")
		if _, err := Load(""); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("bad strategy env", func(t *testing.T) {
		t.Setenv("YOUTUBE_METADATA_STRATEGY", "scrape")
		if _, err := Load(""); err == nil {
			t.Error("expected error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Server.Port = "" }, true},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"negative backups", func(c *Config) { c.Log.MaxBackups = -1 }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, true},
		{"rate limit disabled", func(c *Config) { c.RateLimit.Enabled = false; c.RateLimit.Burst = 0 }, false},
		{"unknown strategy", func(c *Config) { c.YouTube.Strategy = "magic" }, true},
		{"zero fetch timeout", func(c *Config) { c.YouTube.FetchTimeout = 0 }, true},
		{"negative rps", func(c *Config) { c.YouTube.RequestsPerSecond = -1 }, true},
		{"empty language", func(c *Config) { c.Transcript.DefaultLanguage = " " }, true},
		{"empty db path disables history", func(c *Config) { c.Database.Path = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("got %v", d)
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("MarshalText() = %s", b)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("expected error")
	}
}
