package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_sync/internal/app"
	"marketing_sync/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	runs    map[string]domain.Run
	misses  map[string][]domain.Miss
	summary *domain.StoredSummary
	lastQ   domain.RunsQuery
	saved   []domain.ReviewSummary
	logged  []domain.Miss
	status  map[string]domain.RunStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		runs:   map[string]domain.Run{},
		misses: map[string][]domain.Miss{},
		status: map[string]domain.RunStatus{},
	}
}

func (f *fakeRepo) StartRun(_ context.Context, r domain.Run) error {
	f.runs[r.ID] = r
	f.status[r.ID] = r.Status
	return nil
}
func (f *fakeRepo) FinishRun(_ context.Context, id string, st domain.RunStatus, rows int64, errText string) error {
	r := f.runs[id]
	r.Status, r.RowsLoaded, r.Error = st, rows, errText
	f.runs[id] = r
	f.status[id] = st
	return nil
}
func (f *fakeRepo) LogMiss(_ context.Context, m domain.Miss) error {
	f.logged = append(f.logged, m)
	f.misses[m.RunID] = append(f.misses[m.RunID], m)
	return nil
}
func (f *fakeRepo) SaveSummary(_ context.Context, _ string, s domain.ReviewSummary) error {
	f.saved = append(f.saved, s)
	return nil
}
func (f *fakeRepo) GetRun(_ context.Context, id string) (domain.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return r, nil
}
func (f *fakeRepo) ListRuns(_ context.Context, q domain.RunsQuery) ([]domain.Run, error) {
	f.lastQ = q
	var out []domain.Run
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeRepo) ListMisses(_ context.Context, id string) ([]domain.Miss, error) {
	return f.misses[id], nil
}
func (f *fakeRepo) LatestSummary(context.Context) (domain.StoredSummary, error) {
	if f.summary == nil {
		return domain.StoredSummary{}, domain.ErrNotFound
	}
	return *f.summary, nil
}

type fakeCache struct {
	store map[string]any
	sets  int
}

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *app.RunDetail:
		*d = v.(app.RunDetail)
	case *domain.StoredSummary:
		*d = v.(domain.StoredSummary)
	}
	return true, nil
}
func (c *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.sets++
	c.store[key] = v
	return nil
}
func (c *fakeCache) Del(_ context.Context, key string) error {
	delete(c.store, key)
	return nil
}

// ---- tests ----

func TestGetRun_CacheMissThenHit(t *testing.T) {
	repo := newFakeRepo()
	repo.runs["r1"] = domain.Run{ID: "r1", Pipeline: "reviews", Status: domain.RunSucceeded, RowsLoaded: 3}
	repo.misses["r1"] = []domain.Miss{{RunID: "r1", EntityID: "A", Stage: "attach", Reason: "boom"}}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, 10*time.Minute)

	d, err := q.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.RowsLoaded)
	require.Len(t, d.Misses, 1)

	// second read must come from cache
	repo.runs["r1"] = domain.Run{ID: "r1", RowsLoaded: 99, Status: domain.RunSucceeded}
	d2, err := q.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), d2.RowsLoaded)
}

func TestGetRun_RunningNotCached(t *testing.T) {
	repo := newFakeRepo()
	repo.runs["r2"] = domain.Run{ID: "r2", Status: domain.RunRunning}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, time.Minute)

	d, err := q.GetRun(context.Background(), "r2")
	require.NoError(t, err)
	assert.NotNil(t, d.Misses)
	assert.Zero(t, cache.sets)
}

func TestGetRun_NotFound(t *testing.T) {
	q := app.NewQueryService(newFakeRepo(), &fakeCache{}, time.Minute)
	_, err := q.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRuns_ClampsLimit(t *testing.T) {
	repo := newFakeRepo()
	q := app.NewQueryService(repo, &fakeCache{}, time.Minute)

	rs, err := q.ListRuns(context.Background(), domain.RunsQuery{Limit: 10_000})
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Equal(t, 50, repo.lastQ.Limit)
}

func TestLatestSummary_Cache(t *testing.T) {
	repo := newFakeRepo()
	repo.summary = &domain.StoredSummary{RunID: "r1", TotalReviews: 3, AverageRating: 3.67}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, time.Minute)

	s, err := q.LatestSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalReviews)

	repo.summary.TotalReviews = 100
	s2, _ := q.LatestSummary(context.Background())
	assert.Equal(t, 3, s2.TotalReviews)
}
