package domain

// Row is one warehouse row keyed by column name. Nil values load as NULL.
type Row map[string]any

type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeDate      FieldType = "DATE"
)

type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

type Schema []Field

// WriteMode is the load write disposition.
type WriteMode string

const (
	WriteTruncate WriteMode = "WRITE_TRUNCATE"
	WriteAppend   WriteMode = "WRITE_APPEND"
)

// Table names a warehouse target and the schema used to create it.
type Table struct {
	Dataset string
	Name    string
	Schema  Schema
}

func (t Table) String() string { return t.Dataset + "." + t.Name }

var SummarySchema = Schema{
	{Name: "total_reviews", Type: TypeInteger},
	{Name: "average_rating", Type: TypeFloat},
	{Name: "rating_0", Type: TypeInteger},
	{Name: "rating_1", Type: TypeInteger},
	{Name: "rating_2", Type: TypeInteger},
	{Name: "rating_3", Type: TypeInteger},
	{Name: "rating_4", Type: TypeInteger},
	{Name: "rating_5", Type: TypeInteger},
	{Name: "batch_timestamp", Type: TypeTimestamp},
}

var ReviewSchema = Schema{
	{Name: "author", Type: TypeString},
	{Name: "rating", Type: TypeFloat},
	{Name: "timestamp", Type: TypeTimestamp},
	{Name: "text", Type: TypeString},
	{Name: "rid", Type: TypeString},
	{Name: "author_avatar", Type: TypeString},
}

var PlaceReviewSchema = Schema{
	{Name: "author", Type: TypeString},
	{Name: "rating", Type: TypeFloat},
	{Name: "date", Type: TypeDate},
	{Name: "text", Type: TypeString},
	{Name: "rid", Type: TypeString},
	{Name: "author_avatar", Type: TypeString},
	{Name: "place_id", Type: TypeString},
}

var AnalyticsSchema = Schema{
	{Name: "property_id", Type: TypeString, Required: true},
	{Name: "date", Type: TypeString, Required: true},
	{Name: "sessions", Type: TypeInteger},
	{Name: "engaged_sessions", Type: TypeInteger},
	{Name: "event_count", Type: TypeInteger},
	{Name: "key_events", Type: TypeInteger},
}

var LeadSchema = Schema{
	{Name: "date", Type: TypeDate, Required: true},
	{Name: "account_id", Type: TypeInteger, Required: true},
	{Name: "account", Type: TypeString, Required: true},
	{Name: "phone_call", Type: TypeInteger},
	{Name: "web_form", Type: TypeInteger},
}

// ProfileMetricSchema builds the performance table schema: date and
// profile_id followed by one nullable integer column per metric, in the
// order given.
func ProfileMetricSchema(metrics []string) Schema {
	s := Schema{
		{Name: "date", Type: TypeDate},
		{Name: "profile_id", Type: TypeString},
	}
	for _, m := range metrics {
		s = append(s, Field{Name: m, Type: TypeInteger})
	}
	return s
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r ReviewRow) Row() Row {
	return Row{
		"author":        r.Author,
		"rating":        r.Rating,
		"timestamp":     optString(r.Timestamp),
		"text":          r.Text,
		"rid":           r.RID,
		"author_avatar": r.AuthorAvatar,
	}
}

func (r PlaceReviewRow) Row() Row {
	return Row{
		"author":        r.Author,
		"rating":        r.Rating,
		"date":          optString(r.Date),
		"text":          r.Text,
		"rid":           r.RID,
		"author_avatar": r.AuthorAvatar,
		"place_id":      r.PlaceID,
	}
}

func (s ReviewSummary) Row() Row {
	return Row{
		"total_reviews":   s.TotalReviews,
		"average_rating":  s.AverageRating,
		"rating_0":        s.RatingCounts[0],
		"rating_1":        s.RatingCounts[1],
		"rating_2":        s.RatingCounts[2],
		"rating_3":        s.RatingCounts[3],
		"rating_4":        s.RatingCounts[4],
		"rating_5":        s.RatingCounts[5],
		"batch_timestamp": s.BatchTimestamp.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
