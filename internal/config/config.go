package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/shelfarr/shelfbrowse/internal/openlibrary"
)

const envPrefix = "SHELFBROWSE_"

// Config holds runtime settings
type Config struct {
	ListenAddr        string
	DatabasePath      string
	OpenLibraryURL    string
	UserAgent         string
	Topics            []catalog.Topic
	DefaultTopic      catalog.Topic
	RequestTimeout    time.Duration
	RateLimit         float64
	RateBurst         int
	LogLevel          string
	LogFormat         string
	ActivityRetention time.Duration
	EnableMetrics     bool
}

// Load reads the optional env files and then the environment.
// Missing env files are ignored; variables already set win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		DatabasePath:   getenv("DB_PATH", "shelfbrowse.db"),
		OpenLibraryURL: getenv("OPENLIBRARY_URL", openlibrary.BaseURL),
		UserAgent:      getenv("USER_AGENT", openlibrary.UserAgent),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
		Topics:         slices.Clone(catalog.DefaultTopics),
	}

	var err error
	if raw := getenv("TOPICS", ""); raw != "" {
		cfg.Topics = parseTopics(raw)
	}
	cfg.DefaultTopic = catalog.Topic(getenv("DEFAULT_TOPIC", ""))
	if cfg.DefaultTopic == "" && len(cfg.Topics) > 0 {
		cfg.DefaultTopic = cfg.Topics[0]
	}
	if cfg.RequestTimeout, err = duration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ActivityRetention, err = duration("ACTIVITY_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = strconv.ParseFloat(getenv("RATE_LIMIT", "1"), 64); err != nil {
		return nil, fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err)
	}
	if cfg.RateBurst, err = strconv.Atoi(getenv("RATE_BURST", "3")); err != nil {
		return nil, fmt.Errorf("%sRATE_BURST: %w", envPrefix, err)
	}
	if cfg.EnableMetrics, err = strconv.ParseBool(getenv("METRICS", "true")); err != nil {
		return nil, fmt.Errorf("%sMETRICS: %w", envPrefix, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency
func (c *Config) Validate() error {
	switch {
	case len(c.Topics) == 0:
		return errors.New("config: at least one topic is required")
	case !slices.Contains(c.Topics, c.DefaultTopic):
		return fmt.Errorf("config: default topic %q is not in the topic set", c.DefaultTopic)
	case c.RequestTimeout <= 0:
		return errors.New("config: request timeout must be positive")
	case c.RateLimit < 0:
		return errors.New("config: rate limit must not be negative")
	case c.ActivityRetention <= 0:
		return errors.New("config: activity retention must be positive")
	}
	return nil
}

// OpenLibraryOptions maps the settings onto client options
func (c *Config) OpenLibraryOptions() openlibrary.Options {
	return openlibrary.Options{
		BaseURL:   c.OpenLibraryURL,
		UserAgent: c.UserAgent,
		Timeout:   c.RequestTimeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
	}
}

func parseTopics(raw string) []catalog.Topic {
	var topics []catalog.Topic
	for _, part := range strings.Split(raw, ",") {
		t := catalog.Topic(strings.ToLower(strings.TrimSpace(part)))
		if t != "" && !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

func duration(key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}
