package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.Ranking.K1)
	assert.Equal(t, 0.75, cfg.Ranking.B)
	assert.Equal(t, 10, cfg.Ranking.PerPage)
	assert.InDelta(t, 1.0, cfg.Ranking.DefaultAlpha+cfg.Ranking.DefaultBeta+cfg.Ranking.DefaultGamma, 1e-9)
	assert.Equal(t, 0.85, cfg.Graph.Damping)
	assert.Equal(t, 1000, cfg.Graph.MaxIterations)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
ranking:
  perPage: 25
  k1: 1.2
graph:
  timeout: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("SP_RANKING_B", "0.5")
	t.Setenv("SP_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Ranking.PerPage)
	assert.Equal(t, 1.2, cfg.Ranking.K1)
	assert.Equal(t, 0.5, cfg.Ranking.B)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.85, cfg.Graph.Damping)
}

func TestLoadRejectsInvalidRanking(t *testing.T) {
	t.Setenv("SP_RANKING_PER_PAGE", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
