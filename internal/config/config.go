package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/geoweather-gateway/internal/client"
)

// EnvPrefix prefixes every environment override, e.g. GEOWEATHER_SERVER_PORT.
const EnvPrefix = "GEOWEATHER"

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	TestingMode bool

	ServerPort     string
	RequestTimeout time.Duration

	GeocodingURL    string
	ForecastURL     string
	UpstreamTimeout time.Duration

	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	BreakerFailures int
	BreakerTimeout  time.Duration

	GeocodeCacheSize     int
	GeocodeCacheTTL      time.Duration
	ForecastCacheSize    int
	ForecastCacheTTL     time.Duration
	CacheCleanupInterval time.Duration
	WarmPlaces           []string
	WarmInterval         time.Duration // 0 warms once at startup only

	GazetteerPath        string
	GazetteerCountryName string
	GazetteerPreload     bool

	PrimaryLanguage   string
	SecondaryLanguage string
	ForecastHourly    bool

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Upstream struct {
		GeocodingURL string `yaml:"geocoding_url"`
		ForecastURL  string `yaml:"forecast_url"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"upstream"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		BreakerFailures  int    `yaml:"breaker_failures"`
		BreakerTimeout   string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Cache struct {
		GeocodeMaxSize  int      `yaml:"geocode_max_size"`
		GeocodeTTL      string   `yaml:"geocode_ttl"`
		ForecastMaxSize int      `yaml:"forecast_max_size"`
		ForecastTTL     string   `yaml:"forecast_ttl"`
		CleanupInterval string   `yaml:"cleanup_interval"`
		WarmPlaces      []string `yaml:"warm_places"`
		WarmInterval    string   `yaml:"warm_interval"`
	} `yaml:"cache"`

	Gazetteer struct {
		Path        string `yaml:"path"`
		CountryName string `yaml:"country_name"`
		Preload     *bool  `yaml:"preload"`
	} `yaml:"gazetteer"`

	Geocode struct {
		PrimaryLanguage   string `yaml:"primary_language"`
		SecondaryLanguage string `yaml:"secondary_language"`
	} `yaml:"geocode"`

	Forecast struct {
		Hourly *bool `yaml:"hourly"`
	} `yaml:"forecast"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

// envOverrides are read with envconfig under EnvPrefix. Unset variables leave
// the file value in place.
type envOverrides struct {
	TestingMode     *bool          `envconfig:"TESTING_MODE"`
	ServerPort      string         `envconfig:"SERVER_PORT"`
	RequestTimeout  *time.Duration `envconfig:"REQUEST_TIMEOUT"`
	GeocodingURL    string         `envconfig:"UPSTREAM_GEOCODING_URL"`
	ForecastURL     string         `envconfig:"UPSTREAM_FORECAST_URL"`
	UpstreamTimeout *time.Duration `envconfig:"UPSTREAM_TIMEOUT"`
	RateLimitRPS    *int           `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst  *int           `envconfig:"RATE_LIMIT_BURST"`
	WarmPlaces      []string       `envconfig:"CACHE_WARM_PLACES"`
	GazetteerPath   string         `envconfig:"GAZETTEER_PATH"`
	GazetteerLoad   *bool          `envconfig:"GAZETTEER_PRELOAD"`
	ForecastHourly  *bool          `envconfig:"FORECAST_HOURLY"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) relative to the working
// directory, then .env, then GEOWEATHER_* environment overrides. A missing
// YAML or .env file is not an error. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	// godotenv never overwrites variables already set in the process.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := fromFile(&fc)

	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	applyOverrides(cfg, &ov)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 40*time.Second)

	cfg.GeocodingURL = orDefault(fc.Upstream.GeocodingURL, "https://geocoding-api.open-meteo.com/v1/search")
	cfg.ForecastURL = orDefault(fc.Upstream.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstream.Timeout, 10*time.Second)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 50)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 100)
	cfg.BreakerFailures = positiveOr(fc.Reliability.BreakerFailures, 5)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.GeocodeCacheSize = positiveOr(fc.Cache.GeocodeMaxSize, 100)
	cfg.GeocodeCacheTTL = parseDuration(fc.Cache.GeocodeTTL, 24*time.Hour)
	cfg.ForecastCacheSize = positiveOr(fc.Cache.ForecastMaxSize, 200)
	cfg.ForecastCacheTTL = parseDuration(fc.Cache.ForecastTTL, time.Hour)
	cfg.CacheCleanupInterval = parseDuration(fc.Cache.CleanupInterval, 10*time.Minute)
	cfg.WarmPlaces = trimAll(fc.Cache.WarmPlaces)
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.GazetteerPath = orDefault(fc.Gazetteer.Path, filepath.Join("JP", "JP.txt"))
	cfg.GazetteerCountryName = orDefault(fc.Gazetteer.CountryName, "日本")
	if fc.Gazetteer.Preload != nil {
		cfg.GazetteerPreload = *fc.Gazetteer.Preload
	}

	cfg.PrimaryLanguage = orDefault(fc.Geocode.PrimaryLanguage, "ja")
	cfg.SecondaryLanguage = orDefault(fc.Geocode.SecondaryLanguage, "en")
	cfg.ForecastHourly = true
	if fc.Forecast.Hourly != nil {
		cfg.ForecastHourly = *fc.Forecast.Hourly
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, time.Minute)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 50)
	return cfg
}

func applyOverrides(cfg *Config, ov *envOverrides) {
	if ov.TestingMode != nil {
		cfg.TestingMode = *ov.TestingMode
	}
	if ov.ServerPort != "" {
		cfg.ServerPort = ov.ServerPort
	}
	if ov.RequestTimeout != nil {
		cfg.RequestTimeout = *ov.RequestTimeout
	}
	if ov.GeocodingURL != "" {
		cfg.GeocodingURL = ov.GeocodingURL
	}
	if ov.ForecastURL != "" {
		cfg.ForecastURL = ov.ForecastURL
	}
	if ov.UpstreamTimeout != nil {
		cfg.UpstreamTimeout = *ov.UpstreamTimeout
	}
	if ov.RateLimitRPS != nil {
		cfg.RateLimitRPS = *ov.RateLimitRPS
	}
	if ov.RateLimitBurst != nil {
		cfg.RateLimitBurst = *ov.RateLimitBurst
	}
	if len(ov.WarmPlaces) > 0 {
		cfg.WarmPlaces = trimAll(ov.WarmPlaces)
	}
	if ov.GazetteerPath != "" {
		cfg.GazetteerPath = ov.GazetteerPath
	}
	if ov.GazetteerLoad != nil {
		cfg.GazetteerPreload = *ov.GazetteerLoad
	}
	if ov.ForecastHourly != nil {
		cfg.ForecastHourly = *ov.ForecastHourly
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// UpstreamBudget is the longest one upstream call can take including retries
// and backoff.
func (c *Config) UpstreamBudget() time.Duration {
	return client.RetryBudget(c.RetryAttempts, c.UpstreamTimeout, c.RetryMaxDelay)
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above UpstreamBudget when it would cut a retrying
// upstream call short.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if budget := cfg.UpstreamBudget(); cfg.RequestTimeout <= budget {
		cfg.RequestTimeout = budget + time.Second
	}
	for name, raw := range map[string]string{
		"upstream.geocoding_url": cfg.GeocodingURL,
		"upstream.forecast_url":  cfg.ForecastURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("reliability.rate_limit_rps and rate_limit_burst must not be negative")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.PrimaryLanguage == cfg.SecondaryLanguage {
		return fmt.Errorf("geocode.primary_language and secondary_language must differ, both %q", cfg.PrimaryLanguage)
	}
	return nil
}
