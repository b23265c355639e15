// Package config loads and validates all environment variables at startup.
// Every other package receives typed values; nothing reads os.Getenv directly.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port     string // default "8080"
	Env      string // "development" | "staging" | "production"
	GRPCPort string // empty: gRPC health shares Port through cmux

	// ── Database ──────────────────────────────────────────────────────────────
	// Optional. Without it saved locations live in memory.
	DatabaseURL string

	// ── AI providers ──────────────────────────────────────────────────────────
	// None is required at startup: a missing key surfaces per analysis as a
	// configuration error. Preference order is OpenAI, DeepSeek, Anthropic;
	// the first two configured become primary and fallback.
	OpenAIAPIKey    string
	OpenAIModel     string // default "gpt-4o-mini"
	OpenAIBaseURL   string // default https://api.openai.com/v1
	DeepSeekAPIKey  string
	DeepSeekModel   string // default "deepseek-chat"
	AnthropicAPIKey string
	AnthropicModel  string // default "claude-sonnet-4-5"

	// ── Geodata upstreams ─────────────────────────────────────────────────────
	// Empty values select the public endpoints.
	NominatimURL      string
	OverpassEndpoints []string // comma separated, tried in order
	ElevationURL      string
	WeatherURL        string
	AirQualityURL     string
	OpenAQAPIKey      string
	UserAgent         string

	// ── Analysis ──────────────────────────────────────────────────────────────
	MaxIterations   int           // default 10
	CacheSize       int           // default 256
	AnalysisTimeout time.Duration // default 3m
}

// Load reads all environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; real
// environment variables always take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load(".env") // missing file is fine

	c := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		GRPCPort:          os.Getenv("GRPC_PORT"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		DeepSeekAPIKey:    os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekModel:     getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		NominatimURL:      os.Getenv("NOMINATIM_URL"),
		OverpassEndpoints: getEnvAsList("OVERPASS_ENDPOINTS"),
		ElevationURL:      os.Getenv("ELEVATION_URL"),
		WeatherURL:        os.Getenv("WEATHER_URL"),
		AirQualityURL:     os.Getenv("AIR_QUALITY_URL"),
		OpenAQAPIKey:      os.Getenv("OPENAQ_API_KEY"),
		UserAgent:         getEnv("USER_AGENT", "geoanalyzer/1.0 (+https://github.com/nyashahama/geoanalyzer)"),
		MaxIterations:     getEnvAsInt("MAX_ITERATIONS", 10),
		CacheSize:         getEnvAsInt("CACHE_SIZE", 256),
		AnalysisTimeout:   getEnvAsDuration("ANALYSIS_TIMEOUT", 3*time.Minute),
	}

	return c, c.validate()
}

// HasAIProvider reports whether any LLM key is configured.
func (c *Config) HasAIProvider() bool {
	return c.OpenAIAPIKey != "" || c.DeepSeekAPIKey != "" || c.AnthropicAPIKey != ""
}

// IsProduction selects the JSON log handler and info level.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// GeodataOptions maps the upstream settings onto geodata.Options. Empty
// values are filled with public endpoints by geodata.New.
func (c *Config) GeodataOptions() geodata.Options {
	return geodata.Options{
		NominatimURL:      c.NominatimURL,
		OverpassEndpoints: c.OverpassEndpoints,
		ElevationURL:      c.ElevationURL,
		WeatherURL:        c.WeatherURL,
		AirQualityURL:     c.AirQualityURL,
		AirQualityKey:     c.OpenAQAPIKey,
		UserAgent:         c.UserAgent,
		CacheSize:         c.CacheSize,
	}
}

func (c *Config) validate() error {
	var errs []error

	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		errs = append(errs, fmt.Errorf("ENV must be development, staging, production or test, got %q", c.Env))
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	if c.GRPCPort != "" {
		if _, err := strconv.Atoi(c.GRPCPort); err != nil {
			errs = append(errs, fmt.Errorf("GRPC_PORT must be numeric, got %q", c.GRPCPort))
		}
	}

	if c.MaxIterations < 1 || c.MaxIterations > 50 {
		errs = append(errs, fmt.Errorf("MAX_ITERATIONS must be between 1 and 50, got %d", c.MaxIterations))
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("CACHE_SIZE must be positive, got %d", c.CacheSize))
	}
	if c.AnalysisTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ANALYSIS_TIMEOUT must be positive"))
	}

	urls := map[string]string{
		"OPENAI_BASE_URL": c.OpenAIBaseURL,
		"NOMINATIM_URL":   c.NominatimURL,
		"ELEVATION_URL":   c.ElevationURL,
		"WEATHER_URL":     c.WeatherURL,
		"AIR_QUALITY_URL": c.AirQualityURL,
	}
	for i, ep := range c.OverpassEndpoints {
		urls[fmt.Sprintf("OVERPASS_ENDPOINTS[%d]", i)] = ep
	}
	for name, val := range urls {
		if val == "" {
			continue
		}
		if u, err := url.Parse(val); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, val))
		}
	}

	return errors.Join(errs...)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// A plain integer is read as seconds.
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Second
	}
	// Fall back to Go duration syntax: "30s", "5m", "1h", etc.
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
