package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const service = "analytics"

// reportMetrics are read positionally from each report row.
var reportMetrics = []string{"sessions", "engagedSessions", "eventCount", "keyEvents"}

type Client struct {
	svc *analyticsdata.Service
}

var _ domain.AnalyticsClient = (*Client)(nil)

// New builds a Data API client. Without options it uses application default credentials.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("analytics data service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func (c *Client) RunReport(ctx context.Context, propertyID string, r domain.DateRange) ([]domain.AnalyticsRow, error) {
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{
			StartDate: r.Start.Format("2006-01-02"),
			EndDate:   r.End.Format("2006-01-02"),
		}},
		Dimensions: []*analyticsdata.Dimension{{Name: "date"}},
	}
	for _, m := range reportMetrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}

	start := time.Now()
	resp, err := c.svc.Properties.RunReport("properties/"+propertyID, req).Context(ctx).Do()
	observability.ObserveExternal(service, "runReport", statusOf(err), time.Since(start))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			te := &domain.TransportError{Op: "run report " + propertyID, Status: gerr.Code, Body: gerr.Message, Err: err}
			if gerr.Code == 401 || gerr.Code == 403 {
				te.Err = domain.ErrUnauthorized
			}
			return nil, te
		}
		return nil, &domain.TransportError{Op: "run report " + propertyID, Err: err}
	}

	out := make([]domain.AnalyticsRow, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.DimensionValues) == 0 {
			continue
		}
		ar := domain.AnalyticsRow{PropertyID: propertyID, Date: row.DimensionValues[0].Value}
		vals := make([]int64, len(reportMetrics))
		for i := range vals {
			if i < len(row.MetricValues) {
				vals[i] = metricInt(row.MetricValues[i].Value)
			}
		}
		ar.Sessions, ar.EngagedSessions, ar.EventCount, ar.KeyEvents = vals[0], vals[1], vals[2], vals[3]
		out = append(out, ar)
	}
	return out, nil
}

// metricInt reads a metric value; empty or non-numeric values count as 0.
func metricInt(v string) int64 {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	return 0
}

func statusOf(err error) int {
	if err == nil {
		return 200
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
