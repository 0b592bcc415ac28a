package domain

import "time"

type BatchID string

type JobID string

type JobStatus string

const (
	StatusPending    JobStatus = "Pending"
	StatusProcessing JobStatus = "Processing"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
)

// RawReview is one review as returned by the reviews API. Fields are optional
// and loosely typed (ratings as strings or numbers, dates with or without time).
type RawReview = map[string]any

// FetchRequest is the parameter set for one fetch-reviews job.
type FetchRequest struct {
	ProfileURL   string
	Country      string
	ReviewsLimit string // "" omits the parameter; "all" or a number otherwise
}

// FetchJob is one job entry from the batch status payload.
type FetchJob struct {
	ID         JobID
	Status     JobStatus
	ProfileURL string // echoed from the submission payload
	Results    []JobResult
}

type JobResult struct {
	Reviews []RawReview
}

// BatchStatus is a decoded GET /batch response.
type BatchStatus struct {
	Jobs []FetchJob
	Raw  []byte
}

// ReviewRow is the detailed-table row for a single-profile run.
type ReviewRow struct {
	Author       string
	Rating       float64
	Timestamp    *string
	Text         string
	RID          string
	AuthorAvatar string
}

// PlaceReviewRow is the detailed-table row for a multi-place run. Date is a
// calendar date (YYYY-MM-DD) and PlaceID comes from the owning job.
type PlaceReviewRow struct {
	Author       string
	Rating       float64
	Date         *string
	Text         string
	RID          string
	AuthorAvatar string
	PlaceID      string
}

type ReviewSummary struct {
	TotalReviews   int
	AverageRating  float64
	RatingCounts   [6]int // index = integer rating 0..5
	BatchTimestamp time.Time
}

// TaggedReview is a raw review plus the entity id recovered from its job.
type TaggedReview struct {
	PlaceID string
	Review  RawReview
}
