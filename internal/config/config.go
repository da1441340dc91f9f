// Package config loads service settings from an optional YAML file and
// PASSWATCH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PASSWATCH_"

// Duration is a time.Duration written as "90s" or "24h" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full service configuration. Zero values are not meaningful;
// start from Default.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	Auth AuthConfig `yaml:"auth"`
	TLE  TLEConfig  `yaml:"tle"`
	Scan ScanConfig `yaml:"scan"`
	Log  LogConfig  `yaml:"log"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	TrustProxy     bool     `yaml:"trust_proxy"`     // honor X-Forwarded-For / X-Real-IP
	RequestTimeout Duration `yaml:"request_timeout"` // per-scan deadline
}

// AuthConfig enables Bearer token checks on the write endpoints.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// TLEConfig controls where element sets come from and how long they stay
// current. MaxAge and RefreshInterval must be positive.
type TLEConfig struct {
	FetchEnabled    bool     `yaml:"fetch_enabled"`
	SourceURL       string   `yaml:"source_url"`
	ExtraURLs       []string `yaml:"extra_urls"`
	CacheDir        string   `yaml:"cache_dir"`
	MaxFiles        int      `yaml:"max_files"`
	MaxAge          Duration `yaml:"max_age"`
	RefreshInterval Duration `yaml:"refresh_interval"` // how often dataset age is checked
}

// ScanConfig sizes the prediction engine and the API result cache.
type ScanConfig struct {
	Workers      int      `yaml:"workers"`
	MaxPerClient int      `yaml:"max_per_client"` // concurrent scans per client IP
	CacheSize    int      `yaml:"cache_size"`     // result cache entries, 0 disables
	CacheTTL     Duration `yaml:"cache_ttl"`
}

// LogConfig selects the log level and an optional rotated log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // optional rotated log file, in addition to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080", RequestTimeout: Duration(60 * time.Second)},
		TLE: TLEConfig{
			FetchEnabled: true,
			CacheDir:     "/tmp/passwatch/tle",
			MaxFiles:     5,
			MaxAge:       Duration(24 * time.Hour),
			ExtraURLs: []string{
				// ISS (NORAD 25544), a well-documented reference satellite.
				"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
			},
			RefreshInterval: Duration(10 * time.Minute),
		},
		Scan: ScanConfig{
			Workers:      runtime.NumCPU(),
			MaxPerClient: 4,
			CacheSize:    256,
			CacheTTL:     Duration(time.Minute),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 3,
		},
	}
}

// FromEnvironment loads a .env file from the working directory if present,
// then the YAML file named by PASSWATCH_CONFIG, then environment overrides.
func FromEnvironment(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}
	return Load(os.Getenv(envPrefix+"CONFIG"), logger)
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logger.Info("loaded config file", "path", path)
	}

	applyEnv(cfg, logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http addr must not be empty")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http request_timeout must be positive, got %s", c.HTTP.RequestTimeout.Std())
	}
	if c.TLE.MaxAge <= 0 {
		return fmt.Errorf("tle max_age must be positive, got %s", c.TLE.MaxAge.Std())
	}
	if c.TLE.RefreshInterval <= 0 {
		return fmt.Errorf("tle refresh_interval must be positive, got %s", c.TLE.RefreshInterval.Std())
	}
	if c.Scan.CacheTTL < 0 {
		return fmt.Errorf("scan cache_ttl must not be negative, got %s", c.Scan.CacheTTL.Std())
	}
	if c.TLE.MaxFiles < 1 {
		return fmt.Errorf("tle max_files must be at least 1, got %d", c.TLE.MaxFiles)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", c.Scan.Workers)
	}
	if c.Scan.MaxPerClient < 1 {
		return fmt.Errorf("scan max_per_client must be at least 1, got %d", c.Scan.MaxPerClient)
	}
	return nil
}

func applyEnv(cfg *Config, logger *slog.Logger) {
	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	envBool(logger, "TRUST_PROXY", &cfg.HTTP.TrustProxy)
	envSeconds(logger, "REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout)

	envBool(logger, "AUTH_ENABLED", &cfg.Auth.Enabled)
	if v := getenv("AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}

	envBool(logger, "ENABLE_TLE_FETCH", &cfg.TLE.FetchEnabled)
	if v := getenv("TLE_SOURCE_URL"); v != "" {
		cfg.TLE.SourceURL = v
	}
	if v := getenv("TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.TLE.ExtraURLs = urls
	}
	if v := getenv("TLE_CACHE_DIR"); v != "" {
		cfg.TLE.CacheDir = v
	}
	envInt(logger, "TLE_MAX_FILES", &cfg.TLE.MaxFiles)
	envSeconds(logger, "TLE_MAX_AGE", &cfg.TLE.MaxAge)
	envSeconds(logger, "TLE_REFRESH_INTERVAL", &cfg.TLE.RefreshInterval)

	envInt(logger, "SCAN_WORKERS", &cfg.Scan.Workers)
	envInt(logger, "SCAN_MAX_PER_CLIENT", &cfg.Scan.MaxPerClient)
	if v := getenv("SCAN_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid "+envPrefix+"SCAN_CACHE_SIZE value, using default", "value", v, "default", cfg.Scan.CacheSize)
		} else {
			cfg.Scan.CacheSize = n
		}
	}
	envSeconds(logger, "SCAN_CACHE_TTL", &cfg.Scan.CacheTTL)

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func envBool(logger *slog.Logger, key string, dst *bool) {
	v := getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+envPrefix+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = b
}

// envInt accepts positive integers only.
func envInt(logger *slog.Logger, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+envPrefix+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

// envSeconds reads a positive whole number of seconds.
func envSeconds(logger *slog.Logger, key string, dst *Duration) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+envPrefix+key+" value, using default", "value", v, "default_seconds", dst.Std().Seconds())
		return
	}
	*dst = Duration(time.Duration(n) * time.Second)
}
