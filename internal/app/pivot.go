package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"marketing_sync/internal/domain"
)

type pivotKey struct {
	date, location string
}

// MetricPivot turns per-metric time series into one row per (date, location).
type MetricPivot struct {
	rows    map[pivotKey]*domain.ProfileMetricRow
	metrics map[string]struct{}
}

func NewMetricPivot() *MetricPivot {
	return &MetricPivot{
		rows:    make(map[pivotKey]*domain.ProfileMetricRow),
		metrics: make(map[string]struct{}),
	}
}

// Add merges one location's series. A later value for the same
// (date, location, metric) overwrites the earlier one.
func (p *MetricPivot) Add(locationID string, series []domain.DailyMetricSeries) {
	for _, s := range series {
		p.metrics[s.Metric] = struct{}{}
		for _, dv := range s.Values {
			k := pivotKey{date: fmt.Sprintf("%04d-%02d-%02d", dv.Year, dv.Month, dv.Day), location: locationID}
			row, ok := p.rows[k]
			if !ok {
				row = &domain.ProfileMetricRow{Date: k.date, ProfileID: locationID, Values: map[string]*int64{}}
				p.rows[k] = row
			}
			row.Values[s.Metric] = metricValue(locationID, s.Metric, dv.Value)
		}
	}
}

func metricValue(location, metric string, v *string) *int64 {
	if v == nil {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*v), 10, 64)
	if err != nil {
		log.Debug().Str("location", location).Str("metric", metric).Str("value", *v).Msg("non-integer metric value dropped")
		return nil
	}
	return &n
}

// Rows returns the pivoted rows ordered by date, then location.
func (p *MetricPivot) Rows() []domain.ProfileMetricRow {
	keys := make([]pivotKey, 0, len(p.rows))
	for k := range p.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].location < keys[j].location
	})
	out := make([]domain.ProfileMetricRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, *p.rows[k])
	}
	return out
}

// Metrics returns every metric name seen, sorted.
func (p *MetricPivot) Metrics() []string {
	out := make([]string, 0, len(p.metrics))
	for m := range p.metrics {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
