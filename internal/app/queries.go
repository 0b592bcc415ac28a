package app

import (
	"context"
	"fmt"
	"time"

	"marketing_sync/internal/domain"
)

const maxRunsLimit = 200

type QueryService struct {
	repo     domain.RunRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.RunRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// RunDetail is a ledger entry plus the entities the run skipped.
type RunDetail struct {
	domain.Run
	Misses []domain.Miss `json:"misses"`
}

func (s *QueryService) GetRun(ctx context.Context, id string) (RunDetail, error) {
	key := "run:" + id
	var out RunDetail
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	r, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	ms, err := s.repo.ListMisses(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	out = RunDetail{Run: r, Misses: ms}
	if out.Misses == nil {
		out.Misses = []domain.Miss{}
	}
	// running entries still change
	if r.Status != domain.RunRunning {
		_ = s.cache.Set(ctx, key, out, s.cacheTTL)
	}
	return out, nil
}

// ListRuns is never cached; it backs the operator's view of live runs.
func (s *QueryService) ListRuns(ctx context.Context, q domain.RunsQuery) ([]domain.Run, error) {
	if q.Limit <= 0 || q.Limit > maxRunsLimit {
		q.Limit = 50
	}
	rs, err := s.repo.ListRuns(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if rs == nil {
		rs = []domain.Run{}
	}
	return rs, nil
}

func (s *QueryService) LatestSummary(ctx context.Context) (domain.StoredSummary, error) {
	const key = "summary:latest"
	var out domain.StoredSummary
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	out, err := s.repo.LatestSummary(ctx)
	if err != nil {
		return domain.StoredSummary{}, err
	}
	_ = s.cache.Set(ctx, key, out, s.cacheTTL)
	return out, nil
}
