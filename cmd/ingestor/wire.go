package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"marketing_sync/internal/adapters/analytics"
	bigqueryad "marketing_sync/internal/adapters/bigquery"
	"marketing_sync/internal/adapters/brightlocal"
	"marketing_sync/internal/adapters/gauth"
	"marketing_sync/internal/adapters/gbp"
	"marketing_sync/internal/adapters/s3archive"
	"marketing_sync/internal/adapters/whatconverts"
	"marketing_sync/internal/app"
	"marketing_sync/internal/domain"
	"marketing_sync/internal/shared"
)

// pipelineConfig translates the loaded config into pipeline inputs.
func pipelineConfig(cfg shared.Config, now time.Time) (app.PipelineConfig, error) {
	bl := cfg.BrightLocal
	pc := app.PipelineConfig{
		SummaryTable:  domain.Table{Dataset: bl.Dataset, Name: bl.SummaryTable, Schema: domain.SummarySchema},
		DetailedTable: domain.Table{Dataset: bl.Dataset, Name: bl.DetailedTable, Schema: domain.ReviewSchema},
		PlacesTable:   domain.Table{Dataset: bl.Dataset, Name: bl.PlacesTable, Schema: domain.PlaceReviewSchema},

		Properties:     cfg.Analytics.PropertyIDs,
		AnalyticsTable: domain.Table{Dataset: cfg.Analytics.Dataset, Name: cfg.Analytics.Table, Schema: domain.AnalyticsSchema},

		Locations:      cfg.Profiles.LocationIDs,
		Metrics:        cfg.Profiles.Metrics,
		ProfileDataset: cfg.Profiles.Dataset,
		ProfileTable:   cfg.Profiles.Table,

		LeadsPerPage: cfg.Leads.PerPage,
		LeadsTable:   domain.Table{Dataset: cfg.Leads.Dataset, Name: cfg.Leads.Table, Schema: domain.LeadSchema},
	}
	if bl.ProfileURL != "" {
		pc.Profile = app.ProfileTarget(bl.ProfileURL)
	}
	for _, id := range bl.PlaceIDs {
		pc.Places = append(pc.Places, app.PlaceTarget(id))
	}

	var err error
	if pc.AnalyticsRange, err = app.ResolveRange(cfg.Analytics.StartDate, cfg.Analytics.EndDate, now); err != nil {
		return app.PipelineConfig{}, fmt.Errorf("analytics range: %w", err)
	}
	if pc.ProfileRange, err = app.ResolveRange(cfg.Profiles.StartDate, cfg.Profiles.EndDate, now); err != nil {
		return app.PipelineConfig{}, fmt.Errorf("profiles range: %w", err)
	}
	if pc.LeadsSince, err = leadsSince(cfg.Leads.StartDate, now); err != nil {
		return app.PipelineConfig{}, err
	}
	return pc, nil
}

// leadsSince accepts RFC 3339 or a bare date; empty means yesterday 00:00 UTC.
func leadsSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		r, _ := app.ResolveRange("", "", now)
		return r.Start, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("leads start date %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func selected(names []string, want ...string) bool {
	for _, n := range names {
		for _, w := range want {
			if n == w {
				return true
			}
		}
	}
	return false
}

// validatePipelines rejects unknown names before anything is started.
func validatePipelines(names []string) error {
	var bad []string
	for _, n := range names {
		if !selected(app.Pipelines, n) {
			bad = append(bad, n)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unknown pipelines %s (known: %s)", strings.Join(bad, ","), strings.Join(app.Pipelines, ","))
	}
	if len(names) == 0 {
		return errors.New("no pipelines selected")
	}
	return nil
}

// buildDeps constructs only the clients the selected pipelines need.
func buildDeps(ctx context.Context, cfg shared.Config, runs domain.RunRepository) (app.Deps, func(), error) {
	d := app.Deps{Runs: runs}
	closers := []func(){}
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	var bqOpts []option.ClientOption
	if cfg.Warehouse.CredentialsFile != "" {
		bqOpts = append(bqOpts, option.WithCredentialsFile(cfg.Warehouse.CredentialsFile))
	}
	sink, err := bigqueryad.New(ctx, cfg.Warehouse.Project, cfg.Warehouse.Location, bqOpts...)
	if err != nil {
		return d, cleanup, err
	}
	closers = append(closers, func() { _ = sink.Close() })
	d.Warehouse = sink

	if cfg.Archive.Bucket != "" {
		arch, err := s3archive.New(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
		if err != nil {
			return d, cleanup, err
		}
		d.Archive = arch
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("raw payload archive enabled")
	}

	if selected(cfg.Pipelines, app.PipelineReviews, app.PipelinePlaceReviews) {
		bl, err := brightlocal.New(cfg.BrightLocal.BaseURL, cfg.BrightLocal.APIKey, cfg.BrightLocal.RPS)
		if err != nil {
			return d, cleanup, fmt.Errorf("brightlocal client: %w", err)
		}
		d.Submitter = app.NewBatchSubmitter(bl, cfg.BrightLocal.Country, cfg.BrightLocal.ReviewsLimit)
		d.Poller = app.NewPoller(bl, app.NewPollPolicy(cfg.Poll), d.Archive)
	}

	if selected(cfg.Pipelines, app.PipelineAnalytics) {
		opts := []option.ClientOption{option.WithEndpoint(cfg.Analytics.Endpoint)}
		if cfg.Warehouse.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Warehouse.CredentialsFile))
		}
		ga, err := analytics.New(ctx, opts...)
		if err != nil {
			return d, cleanup, err
		}
		d.Analytics = ga
	}

	if selected(cfg.Pipelines, app.PipelineProfiles) {
		oc, err := gauth.ConfigFromFile(cfg.Profiles.ClientSecretFile, gauth.BusinessManageScope)
		if err != nil {
			return d, cleanup, err
		}
		hc, err := gauth.HTTPClient(ctx, oc, gauth.TokenStore{Path: cfg.Profiles.TokenFile})
		if errors.Is(err, gauth.ErrNoToken) {
			return d, cleanup, fmt.Errorf("%w: run the authorize command first", err)
		}
		if err != nil {
			return d, cleanup, err
		}
		d.Profiles = gbp.New(cfg.Profiles.BaseURL, hc, cfg.Profiles.RPS)
	}

	if selected(cfg.Pipelines, app.PipelineLeads) {
		wc, err := whatconverts.New(cfg.Leads.URL, cfg.Leads.Username, cfg.Leads.Password, cfg.Leads.RPS)
		if err != nil {
			return d, cleanup, err
		}
		d.Leads = wc
	}
	return d, cleanup, nil
}
