package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "maps", cfg.MapsDir)
	assert.Empty(t, cfg.CatalogPath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.Equal(t, "https://raw.githubusercontent.com", cfg.GitHubRawURL)
	assert.Equal(t, "mapviz.db", cfg.HistoryDB)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "map-artifacts", cfg.KafkaTopic)
	assert.True(t, cfg.RunOnStart)
	assert.Equal(t, 8, cfg.BoundaryCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATA_DIR", "/srv/data")
	t.Setenv("MAPS_DIR", "/srv/maps")
	t.Setenv("CATALOG_PATH", "/etc/mapviz/catalog.yaml")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("SOCRATA_APP_TOKEN", "app-token")
	t.Setenv("HISTORY_DB", ":memory:")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-artifacts")
	t.Setenv("RUN_ON_START", "false")
	t.Setenv("BOUNDARY_CACHE_SIZE", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/srv/data", cfg.DataDir)
	assert.Equal(t, "/srv/maps", cfg.MapsDir)
	assert.Equal(t, "/etc/mapviz/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, "app-token", cfg.SocrataAppToken)
	assert.Equal(t, ":memory:", cfg.HistoryDB)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "custom-artifacts", cfg.KafkaTopic)
	assert.False(t, cfg.RunOnStart)
	assert.Equal(t, 2, cfg.BoundaryCacheSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidHTTPTimeout(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
}

func TestLoad_InvalidRunOnStart(t *testing.T) {
	t.Setenv("RUN_ON_START", "sometimes")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUN_ON_START")
}

func TestLoad_InvalidBoundaryCacheSize(t *testing.T) {
	t.Setenv("BOUNDARY_CACHE_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOUNDARY_CACHE_SIZE")
}

func TestLoad_SameDataAndMapsDir(t *testing.T) {
	t.Setenv("DATA_DIR", "shared")
	t.Setenv("MAPS_DIR", "shared")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPS_DIR")
}
