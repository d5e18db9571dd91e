package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Filesystem layout.
	DataDir     string
	MapsDir     string
	CatalogPath string

	// Remote sources.
	HTTPTimeout     time.Duration
	GitHubAPIURL    string
	GitHubRawURL    string
	GitHubToken     string
	SocrataAppToken string

	HistoryDB string

	// Artifact events; disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	RunOnStart        bool
	BoundaryCacheSize int
}

// KafkaEnabled reports whether artifact events should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("HTTP_TIMEOUT", "30s"))
	if err != nil || httpTimeout <= 0 {
		return nil, errors.New("invalid HTTP_TIMEOUT")
	}

	runOnStart, err := strconv.ParseBool(sharedcfg.EnvOrDefault("RUN_ON_START", "true"))
	if err != nil {
		return nil, errors.New("invalid RUN_ON_START: must be a boolean")
	}

	cacheSize, err := parseBoundaryCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:     sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		MapsDir:     sharedcfg.EnvOrDefault("MAPS_DIR", "maps"),
		CatalogPath: os.Getenv("CATALOG_PATH"),

		HTTPTimeout:     httpTimeout,
		GitHubAPIURL:    sharedcfg.EnvOrDefault("GITHUB_API_URL", "https://api.github.com"),
		GitHubRawURL:    sharedcfg.EnvOrDefault("GITHUB_RAW_URL", "https://raw.githubusercontent.com"),
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		SocrataAppToken: os.Getenv("SOCRATA_APP_TOKEN"),

		HistoryDB: sharedcfg.EnvOrDefault("HISTORY_DB", "mapviz.db"),

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "map-artifacts"),

		RunOnStart:        runOnStart,
		BoundaryCacheSize: cacheSize,
	}

	if cfg.DataDir == cfg.MapsDir {
		return nil, errors.New("DATA_DIR and MAPS_DIR must differ")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseBoundaryCacheSize() (int, error) {
	s := os.Getenv("BOUNDARY_CACHE_SIZE")
	if s == "" {
		return 8, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid BOUNDARY_CACHE_SIZE %q: must be a positive integer", s)
	}
	return n, nil
}
