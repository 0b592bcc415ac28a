package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_sync/internal/shared"
)

func testConfig() shared.Config {
	var c shared.Config
	c.BrightLocal.Dataset = "brightlocal"
	c.BrightLocal.SummaryTable = "reviews_summary"
	c.BrightLocal.DetailedTable = "reviews_detailed"
	c.BrightLocal.PlacesTable = "place_reviews_detailed"
	c.BrightLocal.ProfileURL = "https://search.google.com/local/writereview?placeid=P0"
	c.BrightLocal.PlaceIDs = []string{"A", "B"}
	c.Profiles.Metrics = []string{"CALL_CLICKS"}
	return c
}

func TestPipelineConfig(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	pc, err := pipelineConfig(testConfig(), now)
	require.NoError(t, err)

	assert.Equal(t, "P0", pc.Profile.EntityID)
	require.Len(t, pc.Places, 2)
	assert.Equal(t, "B", pc.Places[1].EntityID)
	assert.Equal(t, "brightlocal.place_reviews_detailed", pc.PlacesTable.String())
	assert.NotEmpty(t, pc.PlacesTable.Schema)
	assert.Equal(t, "2026-10-17", pc.AnalyticsRange.Start.Format("2006-01-02"))
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), pc.LeadsSince)
}

func TestPipelineConfig_BadDates(t *testing.T) {
	c := testConfig()
	c.Analytics.StartDate = "17/10/2026"
	_, err := pipelineConfig(c, time.Now())
	assert.Error(t, err)

	c = testConfig()
	c.Leads.StartDate = "soon"
	_, err = pipelineConfig(c, time.Now())
	assert.Error(t, err)
}

func TestLeadsSince(t *testing.T) {
	got, err := leadsSince("2026-04-14T00:00:00Z", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	got, err = leadsSince("2026-04-14", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 14, got.Day())
}

func TestValidatePipelines(t *testing.T) {
	assert.NoError(t, validatePipelines([]string{"reviews", "leads"}))
	assert.Error(t, validatePipelines([]string{"reviews", "bogus"}))
	assert.Error(t, validatePipelines(nil))
}
