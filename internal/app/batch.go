package app

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"marketing_sync/internal/domain"
)

const placeProfileURL = "https://search.google.com/local/writereview"

// Target is one entity to fetch reviews for.
type Target struct {
	EntityID   string
	ProfileURL string
}

// PlaceTarget builds the review-profile target for a Google place id.
func PlaceTarget(placeID string) Target {
	return Target{
		EntityID:   placeID,
		ProfileURL: placeProfileURL + "?" + url.Values{"placeid": {placeID}}.Encode(),
	}
}

// ProfileTarget wraps an arbitrary review-profile URL. The entity id is the
// place id when the URL carries one, else the URL itself.
func ProfileTarget(profileURL string) Target {
	id := placeIDFromURL(profileURL)
	if id == unknownPlace {
		id = profileURL
	}
	return Target{EntityID: id, ProfileURL: profileURL}
}

// Submission is a committed batch and the entity each attached job was created for.
type Submission struct {
	BatchID domain.BatchID
	Jobs    map[domain.JobID]string
}

func (s Submission) Expected() int { return len(s.Jobs) }

// MissFunc is told about every entity that could not be attached.
type MissFunc func(entityID string, err error)

type BatchSubmitter struct {
	api     domain.ReviewsAPI
	country string
	limit   string
}

func NewBatchSubmitter(api domain.ReviewsAPI, country, reviewsLimit string) *BatchSubmitter {
	return &BatchSubmitter{api: api, country: country, limit: reviewsLimit}
}

// Submit creates a batch, attaches one fetch job per target and commits it.
// Attach failures are reported through onMiss and skipped; the batch is only
// committed when at least one job was attached.
func (b *BatchSubmitter) Submit(ctx context.Context, targets []Target, onMiss MissFunc) (Submission, error) {
	id, err := b.api.CreateBatch(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("create batch: %w", err)
	}
	log.Info().Str("batch", string(id)).Int("targets", len(targets)).Msg("batch created")

	sub := Submission{BatchID: id, Jobs: make(map[domain.JobID]string, len(targets))}
	for _, t := range targets {
		jobID, err := b.api.AttachFetchJob(ctx, id, domain.FetchRequest{
			ProfileURL:   t.ProfileURL,
			Country:      b.country,
			ReviewsLimit: b.limit,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Submission{}, ctx.Err()
			}
			log.Warn().Err(err).Str("batch", string(id)).Str("entity", t.EntityID).Msg("job not created")
			if onMiss != nil {
				onMiss(t.EntityID, err)
			}
			continue
		}
		sub.Jobs[jobID] = t.EntityID
		log.Info().Str("batch", string(id)).Str("job", string(jobID)).Str("entity", t.EntityID).Msg("job created")
	}

	if len(sub.Jobs) == 0 {
		return Submission{}, &domain.DataAbsentError{BatchID: id, Reason: "no fetch jobs attached"}
	}
	if err := b.api.CommitBatch(ctx, id); err != nil {
		return Submission{}, fmt.Errorf("commit batch %s: %w", id, err)
	}
	log.Info().Str("batch", string(id)).Int("jobs", len(sub.Jobs)).Msg("batch committed")
	return sub, nil
}
