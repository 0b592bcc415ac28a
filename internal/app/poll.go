package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
	"marketing_sync/internal/shared"
)

const unknownPlace = "Unknown"

type Mode int

const (
	// SingleEntity yields the raw reviews plus a summary; no reviews is an error.
	SingleEntity Mode = iota
	// MultiEntity yields place-tagged reviews; empty jobs are tolerated.
	MultiEntity
)

// PollPolicy bounds the status loop and classifies job statuses.
type PollPolicy struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	MaxAttempts int
	MaxWait     time.Duration
	Completed   map[domain.JobStatus]bool
	Failed      map[domain.JobStatus]bool
}

func NewPollPolicy(c shared.PollConfig) PollPolicy {
	p := PollPolicy{
		Interval:    c.Interval,
		Multiplier:  c.Multiplier,
		MaxInterval: c.MaxInterval,
		MaxAttempts: c.MaxAttempts,
		MaxWait:     c.MaxWait,
		Completed:   statusSet(c.CompletedStatuses),
		Failed:      statusSet(c.FailedStatuses),
	}
	if len(p.Completed) == 0 {
		p.Completed = map[domain.JobStatus]bool{domain.StatusCompleted: true}
	}
	if p.Interval <= 0 {
		p.Interval = time.Minute
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

func statusSet(in []string) map[domain.JobStatus]bool {
	out := make(map[domain.JobStatus]bool, len(in))
	for _, s := range in {
		out[domain.JobStatus(s)] = true
	}
	return out
}

func (p PollPolicy) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		return p.MaxInterval
	}
	return n
}

// JobOutcome describes a terminal job that contributed no reviews.
type JobOutcome struct {
	JobID   domain.JobID
	PlaceID string
	Reason  string
}

type Aggregate struct {
	BatchID domain.BatchID
	Reviews []domain.TaggedReview
	Summary *domain.ReviewSummary // SingleEntity only
	Skipped []JobOutcome
	Raw     []byte
}

// RawReviews returns the untagged review payloads.
func (a Aggregate) RawReviews() []domain.RawReview {
	out := make([]domain.RawReview, len(a.Reviews))
	for i, t := range a.Reviews {
		out[i] = t.Review
	}
	return out
}

// pendingError reports a batch that is not terminal yet.
type pendingError struct {
	reported, expected int
	pending            map[domain.JobID]domain.JobStatus
}

func (e *pendingError) Error() string {
	if len(e.pending) == 0 {
		return fmt.Sprintf("%d of %d jobs reported", e.reported, e.expected)
	}
	ids := make([]string, 0, len(e.pending))
	for id, st := range e.pending {
		ids = append(ids, fmt.Sprintf("%s=%s", id, st))
	}
	sort.Strings(ids)
	return "pending jobs: " + strings.Join(ids, ", ")
}

func (e *pendingError) Unwrap() error { return domain.ErrNotReady }

// Evaluate inspects one status snapshot. It returns an error wrapping
// domain.ErrNotReady until every attached job is terminal, then extracts
// each completed job's reviews tagged with the place id of its profile URL.
func Evaluate(st domain.BatchStatus, sub Submission, mode Mode, p PollPolicy, now time.Time) (Aggregate, error) {
	if len(st.Jobs) < sub.Expected() {
		return Aggregate{}, &pendingError{reported: len(st.Jobs), expected: sub.Expected()}
	}
	pending := map[domain.JobID]domain.JobStatus{}
	for _, j := range st.Jobs {
		if !p.Completed[j.Status] && !p.Failed[j.Status] {
			pending[j.ID] = j.Status
		}
	}
	if len(pending) > 0 {
		return Aggregate{}, &pendingError{reported: len(st.Jobs), expected: sub.Expected(), pending: pending}
	}

	agg := Aggregate{BatchID: sub.BatchID, Raw: st.Raw}
	for _, j := range st.Jobs {
		place := placeIDFromURL(j.ProfileURL)
		switch {
		case p.Failed[j.Status]:
			agg.Skipped = append(agg.Skipped, JobOutcome{JobID: j.ID, PlaceID: place, Reason: "job " + string(j.Status)})
			continue
		case len(j.Results) == 0:
			agg.Skipped = append(agg.Skipped, JobOutcome{JobID: j.ID, PlaceID: place, Reason: "no results container"})
			continue
		case len(j.Results[0].Reviews) == 0:
			agg.Skipped = append(agg.Skipped, JobOutcome{JobID: j.ID, PlaceID: place, Reason: "no reviews"})
			continue
		}
		for _, r := range j.Results[0].Reviews {
			agg.Reviews = append(agg.Reviews, domain.TaggedReview{PlaceID: place, Review: r})
		}
	}

	if mode == SingleEntity {
		if len(agg.Reviews) == 0 {
			reason := "no reviews"
			if len(agg.Skipped) > 0 {
				reason = agg.Skipped[0].Reason
			}
			return Aggregate{}, &domain.DataAbsentError{BatchID: sub.BatchID, Reason: reason}
		}
		s := Summarize(agg.RawReviews(), now)
		agg.Summary = &s
	}
	return agg, nil
}

// placeIDFromURL recovers the placeid query parameter of a profile URL.
func placeIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return unknownPlace
	}
	if id := u.Query().Get("placeid"); id != "" {
		return id
	}
	return unknownPlace
}

// Poller waits for a committed batch to finish.
type Poller struct {
	api     domain.ReviewsAPI
	policy  PollPolicy
	archive domain.Archive
	now     func() time.Time
	sleep   func(context.Context, time.Duration) bool
}

func NewPoller(api domain.ReviewsAPI, policy PollPolicy, archive domain.Archive) *Poller {
	return &Poller{api: api, policy: policy, archive: archive, now: time.Now, sleep: sleepCtx}
}

// Await sleeps, checks the batch status and repeats with a growing interval
// until Evaluate succeeds, a terminal error occurs, the policy budget runs
// out (domain.ErrPollTimeout) or ctx is cancelled.
func (p *Poller) Await(ctx context.Context, sub Submission, mode Mode) (Aggregate, error) {
	start := p.now()
	wait := p.policy.Interval
	batch := string(sub.BatchID)

	for attempt := 1; ; attempt++ {
		if !p.sleep(ctx, wait) {
			return Aggregate{}, ctx.Err()
		}

		st, err := p.api.BatchStatus(ctx, sub.BatchID)
		if err != nil {
			if ctx.Err() != nil {
				return Aggregate{}, ctx.Err()
			}
			observability.ObservePoll("error")
			log.Warn().Err(err).Str("batch", batch).Int("attempt", attempt).Msg("batch status check failed")
		} else {
			agg, err := Evaluate(st, sub, mode, p.policy, p.now())
			switch {
			case err == nil:
				observability.ObservePoll("ready")
				log.Info().Str("batch", batch).Int("attempt", attempt).Int("reviews", len(agg.Reviews)).
					Int("skipped", len(agg.Skipped)).Msg("batch completed")
				p.archiveRaw(ctx, sub.BatchID, agg.Raw)
				return agg, nil
			case errors.Is(err, domain.ErrNotReady):
				observability.ObservePoll("not_ready")
				log.Info().Str("batch", batch).Int("attempt", attempt).Str("detail", err.Error()).Msg("waiting for jobs")
			default:
				observability.ObservePoll("absent")
				p.archiveRaw(ctx, sub.BatchID, st.Raw)
				return Aggregate{}, err
			}
		}

		if p.policy.MaxAttempts > 0 && attempt >= p.policy.MaxAttempts {
			return Aggregate{}, fmt.Errorf("batch %s: %w after %d attempts", batch, domain.ErrPollTimeout, attempt)
		}
		if p.policy.MaxWait > 0 && p.now().Sub(start) >= p.policy.MaxWait {
			return Aggregate{}, fmt.Errorf("batch %s: %w after %s", batch, domain.ErrPollTimeout, p.policy.MaxWait)
		}
		wait = p.policy.next(wait)
	}
}

func (p *Poller) archiveRaw(ctx context.Context, id domain.BatchID, raw []byte) {
	if p.archive == nil || len(raw) == 0 {
		return
	}
	key := fmt.Sprintf("brightlocal/batch-%s.json", id)
	if err := p.archive.Put(ctx, key, raw); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("archive batch payload failed")
	}
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
