package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MKT_CONFIG", "")
	c := Load()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, []string{"reviews"}, c.Pipelines)
	assert.Equal(t, 60*time.Second, c.Poll.Interval)
	assert.Equal(t, []string{"Failed", "Stopped", "Error"}, c.Poll.FailedStatuses)
	assert.Equal(t, "all", c.BrightLocal.ReviewsLimit)
	assert.Len(t, c.Profiles.Metrics, len(DefaultProfileMetrics))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MKT_CONFIG", "")
	t.Setenv("INGEST_PIPELINES", "reviews, leads ,,analytics")
	t.Setenv("POLL_INTERVAL", "15s")
	t.Setenv("POLL_MAX_ATTEMPTS", "7")
	t.Setenv("CACHE_TTL_SECONDS", "30")
	t.Setenv("BRIGHTLOCAL_PLACE_IDS", "A,B")
	t.Setenv("REDIS_DB", "not-a-number")

	c := Load()
	assert.Equal(t, []string{"reviews", "leads", "analytics"}, c.Pipelines)
	assert.Equal(t, 15*time.Second, c.Poll.Interval)
	assert.Equal(t, 7, c.Poll.MaxAttempts)
	assert.Equal(t, 30*time.Second, c.CacheTTL)
	assert.Equal(t, []string{"A", "B"}, c.BrightLocal.PlaceIDs)
	assert.Equal(t, 0, c.RedisDB, "unparsable ints keep the default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 2
brightLocal:
  country: GBR
  placeIds: [X]
leads:
  perPage: 100
`), 0o600))
	t.Setenv("MKT_CONFIG", path)
	t.Setenv("BRIGHTLOCAL_PLACE_IDS", "Y")

	c := Load()
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, "GBR", c.BrightLocal.Country)
	assert.Equal(t, []string{"Y"}, c.BrightLocal.PlaceIDs, "env wins over file")
	assert.Equal(t, 100, c.Leads.PerPage)
	assert.Equal(t, "reviews_summary", c.BrightLocal.SummaryTable, "absent keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("MKT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	c := Load()
	assert.Equal(t, 4, c.Workers)
}
