package app

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"marketing_sync/internal/domain"
)

const (
	defaultAuthor = "Unknown"
	defaultText   = "No review text provided"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05Z"
)

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the string at path or "".
func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return s
	}
	return ""
}

func strOr(m map[string]any, key, def string) string {
	if s := lookupStr(m, key); s != "" {
		return s
	}
	return def
}

// toFloat coerces JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toInt64 coerces JSON numbers and integer strings.
func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
}

/********** reviews **********/

// NormalizeReview maps a raw review onto the single-profile detailed schema.
func NormalizeReview(r domain.RawReview) domain.ReviewRow {
	rating, _ := toFloat(r["rating"])
	return domain.ReviewRow{
		Author:       strOr(r, "author", defaultAuthor),
		Rating:       rating,
		Timestamp:    normalizeTimestamp(r["timestamp"]),
		Text:         strOr(r, "text", defaultText),
		RID:          lookupStr(r, "rid"),
		AuthorAvatar: lookupStr(r, "author_avatar"),
	}
}

// NormalizePlaceReview maps a tagged review onto the multi-place schema,
// where the review date is stored as a DATE column.
func NormalizePlaceReview(t domain.TaggedReview) domain.PlaceReviewRow {
	r := t.Review
	rating, _ := toFloat(r["rating"])
	return domain.PlaceReviewRow{
		Author:       strOr(r, "author", defaultAuthor),
		Rating:       rating,
		Date:         normalizeDate(r["timestamp"]),
		Text:         strOr(r, "text", defaultText),
		RID:          lookupStr(r, "rid"),
		AuthorAvatar: lookupStr(r, "author_avatar"),
		PlaceID:      t.PlaceID,
	}
}

// normalizeTimestamp passes values with a time component through and turns a
// bare date into midnight UTC. Anything else is nil.
func normalizeTimestamp(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	if strings.Contains(s, "T") {
		return &s
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	out := d.Format(timestampLayout)
	return &out
}

// normalizeDate reduces a bare date or an RFC 3339 timestamp to YYYY-MM-DD.
func normalizeDate(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var d time.Time
	var err error
	if strings.Contains(s, "T") {
		d, err = time.Parse(time.RFC3339, s)
	} else {
		d, err = time.Parse(dateLayout, s)
	}
	if err != nil {
		return nil
	}
	out := d.Format(dateLayout)
	return &out
}

/********** summary **********/

// Summarize counts reviews, averages the ratings that are present and
// buckets integer ratings 0..5. Other ratings are not bucketed.
func Summarize(reviews []domain.RawReview, now time.Time) domain.ReviewSummary {
	s := domain.ReviewSummary{
		TotalReviews:   len(reviews),
		BatchTimestamp: now.UTC().Truncate(time.Second),
	}
	var sum float64
	var rated int
	for _, r := range reviews {
		f, ok := toFloat(r["rating"])
		if !ok {
			continue
		}
		sum += f
		rated++
		if f == math.Trunc(f) && f >= 0 && f <= 5 {
			s.RatingCounts[int(f)]++
		}
	}
	if rated > 0 {
		s.AverageRating = sum / float64(rated)
	}
	return s
}
