package gbp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marketing_sync/internal/adapters/httpx"
	"marketing_sync/internal/domain"
)

const service = "gbp"

// Client reads daily performance metrics. hc must carry OAuth credentials
// for the business.manage scope.
type Client struct {
	base string
	get  *httpx.Getter
}

var _ domain.ProfileClient = (*Client)(nil)

func New(base string, hc *http.Client, rps int) *Client {
	return &Client{base: strings.TrimRight(base, "/"), get: httpx.NewGetter(service, hc, rps)}
}

type seriesResponse struct {
	MultiDailyMetricTimeSeries []struct {
		DailyMetricTimeSeries []struct {
			DailyMetric string `json:"dailyMetric"`
			TimeSeries  struct {
				DatedValues []datedValue `json:"datedValues"`
			} `json:"timeSeries"`
		} `json:"dailyMetricTimeSeries"`
	} `json:"multiDailyMetricTimeSeries"`
}

type datedValue struct {
	Date struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Day   int `json:"day"`
	} `json:"date"`
	// Value is a decimal string; absent when the API has no data for the day.
	Value json.RawMessage `json:"value"`
}

// DailyMetrics fetches one location's series. Only the first
// multiDailyMetricTimeSeries entry is read; the API returns one per request.
func (c *Client) DailyMetrics(ctx context.Context, locationID string, metrics []string, r domain.DateRange) ([]domain.DailyMetricSeries, error) {
	q := url.Values{}
	for _, m := range metrics {
		q.Add("dailyMetrics", m)
	}
	setDate(q, "dailyRange.start_date", r.Start.Year(), int(r.Start.Month()), r.Start.Day())
	setDate(q, "dailyRange.end_date", r.End.Year(), int(r.End.Month()), r.End.Day())

	u := c.base + "/locations/" + url.PathEscape(locationID) + ":fetchMultiDailyMetricsTimeSeries?" + q.Encode()
	var resp seriesResponse
	if _, err := c.get.GetJSON(ctx, "daily metrics "+locationID, "fetchMultiDailyMetricsTimeSeries", u, &resp); err != nil {
		return nil, err
	}
	if len(resp.MultiDailyMetricTimeSeries) == 0 {
		return nil, nil
	}

	var out []domain.DailyMetricSeries
	for _, s := range resp.MultiDailyMetricTimeSeries[0].DailyMetricTimeSeries {
		ds := domain.DailyMetricSeries{Metric: s.DailyMetric}
		for _, dv := range s.TimeSeries.DatedValues {
			ds.Values = append(ds.Values, domain.DatedValue{
				Year:  dv.Date.Year,
				Month: dv.Date.Month,
				Day:   dv.Date.Day,
				Value: valueText(dv.Value),
			})
		}
		out = append(out, ds)
	}
	return out, nil
}

func setDate(q url.Values, prefix string, y, m, d int) {
	q.Set(prefix+".year", strconv.Itoa(y))
	q.Set(prefix+".month", strconv.Itoa(m))
	q.Set(prefix+".day", strconv.Itoa(d))
}

// valueText accepts the value as a JSON string or number.
func valueText(raw json.RawMessage) *string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return &s
}
