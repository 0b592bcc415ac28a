package domain

import (
	"context"
	"time"
)

// ReviewsAPI is the batch protocol of the reviews provider.
type ReviewsAPI interface {
	CreateBatch(ctx context.Context) (BatchID, error)
	AttachFetchJob(ctx context.Context, batch BatchID, req FetchRequest) (JobID, error)
	CommitBatch(ctx context.Context, batch BatchID) error
	BatchStatus(ctx context.Context, batch BatchID) (BatchStatus, error)
}

type AnalyticsClient interface {
	// RunReport returns one row per reported date for the property.
	RunReport(ctx context.Context, propertyID string, r DateRange) ([]AnalyticsRow, error)
}

type ProfileClient interface {
	DailyMetrics(ctx context.Context, locationID string, metrics []string, r DateRange) ([]DailyMetricSeries, error)
}

type LeadsClient interface {
	Leads(ctx context.Context, since time.Time, perPage int) ([]Lead, error)
}

// Warehouse loads rows into a table, creating dataset and table when missing.
type Warehouse interface {
	Load(ctx context.Context, t Table, rows []Row, mode WriteMode) (int64, error)
}

// Archive stores raw payloads for later inspection.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
}

type RunRepository interface {
	// Write paths
	StartRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, rows int64, errText string) error
	LogMiss(ctx context.Context, m Miss) error
	SaveSummary(ctx context.Context, runID string, s ReviewSummary) error

	// Read paths
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, q RunsQuery) ([]Run, error)
	ListMisses(ctx context.Context, runID string) ([]Miss, error)
	LatestSummary(ctx context.Context) (StoredSummary, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type DateRange struct {
	Start, End time.Time
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

type Run struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Status     RunStatus  `json:"status"`
	RowsLoaded int64      `json:"rows_loaded"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Miss records an entity left out of a run.
type Miss struct {
	RunID    string `json:"run_id"`
	EntityID string `json:"entity_id"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

type RunsQuery struct {
	Pipeline *string
	Status   *RunStatus
	Limit    int
}

type StoredSummary struct {
	RunID          string    `json:"run_id"`
	TotalReviews   int       `json:"total_reviews"`
	AverageRating  float64   `json:"average_rating"`
	RatingCounts   [6]int    `json:"rating_counts"`
	BatchTimestamp time.Time `json:"batch_timestamp"`
}
