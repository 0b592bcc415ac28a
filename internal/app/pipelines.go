package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const (
	PipelineReviews      = "reviews"
	PipelinePlaceReviews = "place-reviews"
	PipelineAnalytics    = "analytics"
	PipelineProfiles     = "profiles"
	PipelineLeads        = "leads"
)

var Pipelines = []string{PipelineReviews, PipelinePlaceReviews, PipelineAnalytics, PipelineProfiles, PipelineLeads}

// PipelineConfig is everything the pipelines need besides their clients.
type PipelineConfig struct {
	Profile       Target   // single-profile review target
	Places        []Target // multi-place review targets
	SummaryTable  domain.Table
	DetailedTable domain.Table
	PlacesTable   domain.Table

	Properties     []string
	AnalyticsRange domain.DateRange
	AnalyticsTable domain.Table

	Locations      []string
	Metrics        []string
	ProfileRange   domain.DateRange
	ProfileDataset string
	ProfileTable   string

	LeadsSince   time.Time
	LeadsPerPage int
	LeadsTable   domain.Table
}

// Deps are the collaborators of IngestionService. Clients for pipelines that
// are never run may be nil.
type Deps struct {
	Submitter *BatchSubmitter
	Poller    *Poller
	Analytics domain.AnalyticsClient
	Profiles  domain.ProfileClient
	Leads     domain.LeadsClient
	Warehouse domain.Warehouse
	Runs      domain.RunRepository
	Archive   domain.Archive
}

type IngestionService struct {
	d   Deps
	cfg PipelineConfig
	now func() time.Time
}

func NewIngestionService(d Deps, cfg PipelineConfig) *IngestionService {
	return &IngestionService{d: d, cfg: cfg, now: time.Now}
}

// Run executes the named pipeline and records it in the run ledger.
func (s *IngestionService) Run(ctx context.Context, pipeline string) error {
	var fn func(context.Context, *runCtx) (int64, error)
	switch pipeline {
	case PipelineReviews:
		fn = s.reviews
	case PipelinePlaceReviews:
		fn = s.placeReviews
	case PipelineAnalytics:
		fn = s.analytics
	case PipelineProfiles:
		fn = s.profiles
	case PipelineLeads:
		fn = s.leads
	default:
		return fmt.Errorf("unknown pipeline %q", pipeline)
	}
	return s.track(ctx, pipeline, fn)
}

// runCtx carries the ledger id of the run in progress.
type runCtx struct {
	id       string
	pipeline string
	runs     domain.RunRepository
}

func (rc *runCtx) miss(ctx context.Context, entity, stage, reason string) {
	log.Warn().Str("pipeline", rc.pipeline).Str("entity", entity).Str("stage", stage).Str("reason", reason).Msg("entity skipped")
	if rc.runs == nil {
		return
	}
	if err := rc.runs.LogMiss(ctx, domain.Miss{RunID: rc.id, EntityID: entity, Stage: stage, Reason: reason}); err != nil {
		log.Error().Err(err).Str("run", rc.id).Msg("log miss failed")
	}
}

func (s *IngestionService) track(ctx context.Context, pipeline string, fn func(context.Context, *runCtx) (int64, error)) error {
	rc := &runCtx{id: uuid.NewString(), pipeline: pipeline, runs: s.d.Runs}
	logger := log.With().Str("pipeline", pipeline).Str("run", rc.id).Logger()

	if s.d.Runs != nil {
		err := s.d.Runs.StartRun(ctx, domain.Run{ID: rc.id, Pipeline: pipeline, Status: domain.RunRunning, StartedAt: s.now().UTC()})
		if err != nil {
			logger.Error().Err(err).Msg("start run failed")
		}
	}
	logger.Info().Msg("pipeline starting")

	rows, err := fn(ctx, rc)

	status, errText := domain.RunSucceeded, ""
	if err != nil {
		status, errText = domain.RunFailed, err.Error()
	}
	if s.d.Runs != nil {
		// the ledger entry is closed even when ctx was cancelled
		if ferr := s.d.Runs.FinishRun(context.WithoutCancel(ctx), rc.id, status, rows, errText); ferr != nil {
			logger.Error().Err(ferr).Msg("finish run failed")
		}
	}
	observability.ObserveRun(pipeline, string(status))
	if err != nil {
		logger.Error().Err(err).Int64("rows", rows).Msg("pipeline failed")
		return fmt.Errorf("%s: %w", pipeline, err)
	}
	logger.Info().Int64("rows", rows).Msg("pipeline finished")
	return nil
}

func (s *IngestionService) load(ctx context.Context, t domain.Table, rows []domain.Row, mode domain.WriteMode) (int64, error) {
	n, err := s.d.Warehouse.Load(ctx, t, rows, mode)
	if err != nil {
		return n, err
	}
	observability.ObserveLoad(t.String(), string(mode), n)
	log.Info().Str("table", t.String()).Str("mode", string(mode)).Int64("rows", n).Msg("rows loaded")
	return n, nil
}

/********** reviews **********/

func (s *IngestionService) reviews(ctx context.Context, rc *runCtx) (int64, error) {
	if s.cfg.Profile.ProfileURL == "" {
		return 0, errors.New("no review profile URL configured")
	}
	sub, err := s.d.Submitter.Submit(ctx, []Target{s.cfg.Profile}, rc.attachMiss(ctx))
	if err != nil {
		return 0, err
	}
	agg, err := s.d.Poller.Await(ctx, sub, SingleEntity)
	if err != nil {
		return 0, err
	}
	rc.skipped(ctx, agg.Skipped)

	sum := *agg.Summary
	log.Info().Int("total", sum.TotalReviews).Float64("average", sum.AverageRating).
		Ints("by_rating", sum.RatingCounts[:]).Msg("review summary")

	if _, err := s.load(ctx, s.cfg.SummaryTable, []domain.Row{sum.Row()}, domain.WriteTruncate); err != nil {
		return 0, err
	}
	if s.d.Runs != nil {
		if err := s.d.Runs.SaveSummary(ctx, rc.id, sum); err != nil {
			log.Error().Err(err).Str("run", rc.id).Msg("save summary failed")
		}
	}

	rows := make([]domain.Row, 0, len(agg.Reviews))
	for _, r := range agg.RawReviews() {
		rows = append(rows, NormalizeReview(r).Row())
	}
	return s.load(ctx, s.cfg.DetailedTable, rows, domain.WriteTruncate)
}

func (s *IngestionService) placeReviews(ctx context.Context, rc *runCtx) (int64, error) {
	if len(s.cfg.Places) == 0 {
		return 0, errors.New("no place ids configured")
	}
	sub, err := s.d.Submitter.Submit(ctx, s.cfg.Places, rc.attachMiss(ctx))
	if err != nil {
		return 0, err
	}
	agg, err := s.d.Poller.Await(ctx, sub, MultiEntity)
	if err != nil {
		return 0, err
	}
	rc.skipped(ctx, agg.Skipped)

	if len(agg.Reviews) == 0 {
		// truncating with nothing would wipe the table
		log.Warn().Str("batch", string(agg.BatchID)).Msg("no reviews to load")
		return 0, nil
	}
	rows := make([]domain.Row, 0, len(agg.Reviews))
	for _, t := range agg.Reviews {
		rows = append(rows, NormalizePlaceReview(t).Row())
	}
	return s.load(ctx, s.cfg.PlacesTable, rows, domain.WriteTruncate)
}

func (rc *runCtx) attachMiss(ctx context.Context) MissFunc {
	return func(entity string, err error) { rc.miss(ctx, entity, "attach", err.Error()) }
}

func (rc *runCtx) skipped(ctx context.Context, jobs []JobOutcome) {
	for _, j := range jobs {
		rc.miss(ctx, j.PlaceID, "results", fmt.Sprintf("job %s: %s", j.JobID, j.Reason))
	}
}

/********** analytics **********/

func (s *IngestionService) analytics(ctx context.Context, rc *runCtx) (int64, error) {
	var rows []domain.Row
	for _, prop := range s.cfg.Properties {
		log.Info().Str("property", prop).Str("start", s.cfg.AnalyticsRange.Start.Format(dateLayout)).Msg("fetching report")
		got, err := s.d.Analytics.RunReport(ctx, prop, s.cfg.AnalyticsRange)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			rc.miss(ctx, prop, "report", err.Error())
			continue
		}
		for _, r := range got {
			rows = append(rows, r.Row())
		}
		log.Info().Str("property", prop).Int("rows", len(got)).Msg("report collected")
	}
	if len(rows) == 0 {
		log.Info().Msg("no analytics data to load")
		return 0, nil
	}
	return s.load(ctx, s.cfg.AnalyticsTable, rows, domain.WriteAppend)
}

/********** business profile performance **********/

func (s *IngestionService) profiles(ctx context.Context, rc *runCtx) (int64, error) {
	pivot := NewMetricPivot()
	for _, loc := range s.cfg.Locations {
		series, err := s.d.Profiles.DailyMetrics(ctx, loc, s.cfg.Metrics, s.cfg.ProfileRange)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			rc.miss(ctx, loc, "metrics", err.Error())
			continue
		}
		if len(series) == 0 {
			rc.miss(ctx, loc, "metrics", "no time series data")
			continue
		}
		pivot.Add(loc, series)
	}

	out := pivot.Rows()
	if len(out) == 0 {
		log.Warn().Msg("no performance data to load")
		return 0, nil
	}
	rows := make([]domain.Row, 0, len(out))
	for _, r := range out {
		rows = append(rows, r.Row())
	}
	t := domain.Table{
		Dataset: s.cfg.ProfileDataset,
		Name:    s.cfg.ProfileTable,
		Schema:  domain.ProfileMetricSchema(pivot.Metrics()),
	}
	return s.load(ctx, t, rows, domain.WriteTruncate)
}

/********** leads **********/

func (s *IngestionService) leads(ctx context.Context, _ *runCtx) (int64, error) {
	leads, err := s.d.Leads.Leads(ctx, s.cfg.LeadsSince, s.cfg.LeadsPerPage)
	if err != nil {
		return 0, err
	}
	if len(leads) == 0 {
		log.Info().Msg("no leads found")
		return 0, nil
	}
	daily := AggregateLeads(leads)
	log.Info().Int("leads", len(leads)).Int("rows", len(daily)).Msg("leads aggregated")

	rows := make([]domain.Row, 0, len(daily))
	for _, r := range daily {
		rows = append(rows, r.Row())
	}
	return s.load(ctx, s.cfg.LeadsTable, rows, domain.WriteAppend)
}

/********** dates **********/

// ResolveRange parses YYYY-MM-DD bounds; an empty start means yesterday and
// an empty end means the start date.
func ResolveRange(start, end string, now time.Time) (domain.DateRange, error) {
	y := now.UTC().AddDate(0, 0, -1)
	r := domain.DateRange{Start: time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)}
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("start date: %w", err)
		}
		r.Start = t
	}
	r.End = r.Start
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("end date: %w", err)
		}
		r.End = t
	}
	if r.End.Before(r.Start) {
		return domain.DateRange{}, fmt.Errorf("end date %s before start date %s", r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return r, nil
}
