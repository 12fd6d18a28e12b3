// Package config loads sift settings from defaults, an optional sift.yaml,
// SIFT_* environment variables and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/serp"
)

// Config is the full sift configuration.
type Config struct {
	Engines        []string        `mapstructure:"engines"`
	Page           uint            `mapstructure:"page"`
	SafeSearch     uint8           `mapstructure:"safe_search"`
	UserAgent      string          `mapstructure:"user_agent"`
	AcceptLanguage string          `mapstructure:"accept_language"`
	Output         string          `mapstructure:"output"`
	Fetch          FetchConfig     `mapstructure:"fetch"`
	Fanout         FanoutConfig    `mapstructure:"fanout"`
	Startpage      StartpageConfig `mapstructure:"startpage"`
	LibreX         LibreXConfig    `mapstructure:"librex"`
	Metrics        MetricsConfig   `mapstructure:"metrics"`
	Log            LogConfig       `mapstructure:"log"`
}

// FetchConfig holds transport settings.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	CookieJar         bool          `mapstructure:"cookie_jar"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
}

// FanoutConfig holds pipeline settings.
type FanoutConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// StartpageConfig holds Startpage adapter settings.
type StartpageConfig struct {
	Scheme string `mapstructure:"scheme"`
}

// LibreXConfig points the LibreX adapter at an instance.
type LibreXConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// MetricsConfig holds metrics server settings. Port 0 disables the server.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"engines":          "engines",
	"page":             "page",
	"safe-search":      "safe_search",
	"user-agent":       "user_agent",
	"accept-language":  "accept_language",
	"output":           "output",
	"timeout":          "fetch.timeout",
	"fingerprint":      "fetch.fingerprint",
	"proxy-file":       "fetch.proxy_file",
	"rps":              "fetch.requests_per_second",
	"concurrency":      "fanout.concurrency",
	"startpage-scheme": "startpage.scheme",
	"librex-url":       "librex.base_url",
	"metrics-port":     "metrics.port",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// Load builds a Config. path names an explicit config file; empty searches
// for sift.yaml in the working directory and $HOME/.config/sift. Flags in fs
// that the user set override every other source.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sift"))
		}
	}

	// Environment
	v.SetEnvPrefix("SIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engines", serp.Names())
	v.SetDefault("page", 0)
	v.SetDefault("safe_search", 0)
	v.SetDefault("user_agent", "")
	v.SetDefault("accept_language", "")
	v.SetDefault("output", report.FormatText)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.cookie_jar", false)
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.jitter", 0.3)
	v.SetDefault("fanout.concurrency", 0)
	v.SetDefault("startpage.scheme", string(serp.StartpageOffset))
	v.SetDefault("librex.base_url", "")
	v.SetDefault("metrics.port", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Engines = normalizeEngines(cfg.Engines)

	return &cfg, nil
}

func normalizeEngines(in []string) []string {
	var out []string
	for _, raw := range in {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" && !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Engines) == 0 {
		errs = append(errs, errors.New("no engines selected"))
	}
	known := serp.Names()
	for _, e := range c.Engines {
		if !slices.Contains(known, e) {
			errs = append(errs, fmt.Errorf("unknown engine %q (have %s)", e, strings.Join(known, ", ")))
		}
	}
	if _, err := fingerprint.ParseProfile(c.Fetch.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	switch serp.StartpageScheme(c.Startpage.Scheme) {
	case serp.StartpageOffset, serp.StartpagePageIndex:
	default:
		errs = append(errs, fmt.Errorf("unknown startpage scheme %q", c.Startpage.Scheme))
	}
	if !slices.Contains(report.Formats(), c.Output) {
		errs = append(errs, fmt.Errorf("unknown output format %q (have %s)", c.Output, strings.Join(report.Formats(), ", ")))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("fetch.requests_per_second must not be negative"))
	}
	if c.Fetch.Jitter < 0 || c.Fetch.Jitter > 1 {
		errs = append(errs, fmt.Errorf("fetch.jitter must be within [0, 1], got %v", c.Fetch.Jitter))
	}
	if c.Fanout.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("fanout.concurrency must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// NewLogger builds the root slog logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", cfg.Format)
	}
}
