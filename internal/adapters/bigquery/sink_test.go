package bigqueryad

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"marketing_sync/internal/domain"
)

func TestToSchema(t *testing.T) {
	s := toSchema(domain.PlaceReviewSchema)
	require.Len(t, s, len(domain.PlaceReviewSchema))
	assert.Equal(t, "rating", s[1].Name)
	assert.Equal(t, bigquery.FloatFieldType, s[1].Type)
	assert.Equal(t, bigquery.DateFieldType, s[2].Type)
	assert.Equal(t, bigquery.StringFieldType, s[6].Type)

	lead := toSchema(domain.LeadSchema)
	assert.True(t, lead[0].Required)
	assert.Equal(t, bigquery.IntegerFieldType, lead[1].Type)

	sum := toSchema(domain.SummarySchema)
	assert.Equal(t, bigquery.TimestampFieldType, sum[len(sum)-1].Type)
}

func TestEncodeNDJSON(t *testing.T) {
	ts := "2026-09-01T00:00:00Z"
	rows := []domain.Row{
		domain.ReviewRow{Author: "a", Rating: 5, Timestamp: &ts, Text: "ok"}.Row(),
		domain.ReviewRow{Author: "b", Rating: 1}.Row(),
	}
	b, err := encodeNDJSON(rows)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, ts, first["timestamp"])
	assert.Contains(t, second, "timestamp")
	assert.Nil(t, second["timestamp"])
}

func TestEncodeNDJSON_BadValue(t *testing.T) {
	_, err := encodeNDJSON([]domain.Row{{"x": math.Inf(1)}})
	assert.Error(t, err)
}

func TestDisposition(t *testing.T) {
	assert.Equal(t, bigquery.WriteAppend, disposition(domain.WriteAppend))
	assert.Equal(t, bigquery.WriteTruncate, disposition(domain.WriteTruncate))
}

func TestIsStatus(t *testing.T) {
	nf := fmt.Errorf("wrap: %w", &googleapi.Error{Code: http.StatusNotFound})
	assert.True(t, isStatus(nf, http.StatusNotFound))
	assert.False(t, isStatus(nf, http.StatusConflict))
	assert.False(t, isStatus(errors.New("plain"), http.StatusNotFound))
	assert.Equal(t, http.StatusNotFound, statusOf(nf))
	assert.Equal(t, http.StatusOK, statusOf(nil))
}
