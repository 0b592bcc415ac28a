package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketing_sync/internal/domain"
)

// fakeReviewsAPI scripts the batch protocol. Status snapshots are handed out
// in order; the last one repeats.
type fakeReviewsAPI struct {
	mu         sync.Mutex
	batchID    domain.BatchID
	createErr  error
	attachErrs map[string]error // by profile URL
	commitErr  error
	statuses   []domain.BatchStatus
	statusErrs []error

	attached  []domain.FetchRequest
	committed bool
	checks    int
}

func (f *fakeReviewsAPI) CreateBatch(context.Context) (domain.BatchID, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.batchID == "" {
		return "b1", nil
	}
	return f.batchID, nil
}

func (f *fakeReviewsAPI) AttachFetchJob(_ context.Context, _ domain.BatchID, req domain.FetchRequest) (domain.JobID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.attachErrs[req.ProfileURL]; err != nil {
		return "", err
	}
	f.attached = append(f.attached, req)
	return domain.JobID("j" + string(rune('0'+len(f.attached)))), nil
}

func (f *fakeReviewsAPI) CommitBatch(context.Context, domain.BatchID) error {
	f.committed = f.commitErr == nil
	return f.commitErr
}

func (f *fakeReviewsAPI) BatchStatus(context.Context, domain.BatchID) (domain.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.checks
	f.checks++
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return domain.BatchStatus{}, f.statusErrs[i]
	}
	if len(f.statuses) == 0 {
		return domain.BatchStatus{}, errors.New("no status scripted")
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

type memArchive struct {
	puts map[string][]byte
}

func (a *memArchive) Put(_ context.Context, key string, body []byte) error {
	if a.puts == nil {
		a.puts = map[string][]byte{}
	}
	a.puts[key] = body
	return nil
}

// fakeClock advances on every sleep so MaxWait can be exercised without waiting.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return true
}

func job(id string, st domain.JobStatus, placeID string, reviews ...domain.RawReview) domain.FetchJob {
	j := domain.FetchJob{ID: domain.JobID(id), Status: st, ProfileURL: PlaceTarget(placeID).ProfileURL}
	if st == domain.StatusCompleted {
		j.Results = []domain.JobResult{{Reviews: reviews}}
	}
	return j
}

func testPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		Multiplier:  2,
		MaxInterval: 4 * time.Second,
		MaxAttempts: 10,
		Completed:   map[domain.JobStatus]bool{domain.StatusCompleted: true},
		Failed:      map[domain.JobStatus]bool{domain.StatusFailed: true, "Stopped": true},
	}
}

func newTestPoller(api domain.ReviewsAPI, p PollPolicy, arch domain.Archive) (*Poller, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	pl := NewPoller(api, p, arch)
	pl.now = clk.now
	pl.sleep = clk.sleep
	return pl, clk
}

type memWarehouse struct {
	loads []whLoad
	err   error
}

type whLoad struct {
	table domain.Table
	rows  []domain.Row
	mode  domain.WriteMode
}

func (w *memWarehouse) Load(_ context.Context, t domain.Table, rows []domain.Row, mode domain.WriteMode) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.loads = append(w.loads, whLoad{table: t, rows: rows, mode: mode})
	return int64(len(rows)), nil
}

type memLedger struct {
	runs      map[string]domain.Run
	misses    []domain.Miss
	summaries []domain.ReviewSummary
}

func newMemLedger() *memLedger { return &memLedger{runs: map[string]domain.Run{}} }

func (l *memLedger) StartRun(_ context.Context, r domain.Run) error { l.runs[r.ID] = r; return nil }
func (l *memLedger) FinishRun(_ context.Context, id string, st domain.RunStatus, rows int64, errText string) error {
	r := l.runs[id]
	r.Status, r.RowsLoaded, r.Error = st, rows, errText
	l.runs[id] = r
	return nil
}
func (l *memLedger) LogMiss(_ context.Context, m domain.Miss) error {
	l.misses = append(l.misses, m)
	return nil
}
func (l *memLedger) SaveSummary(_ context.Context, _ string, s domain.ReviewSummary) error {
	l.summaries = append(l.summaries, s)
	return nil
}
func (l *memLedger) GetRun(_ context.Context, id string) (domain.Run, error) { return l.runs[id], nil }
func (l *memLedger) ListRuns(context.Context, domain.RunsQuery) ([]domain.Run, error) {
	return nil, nil
}
func (l *memLedger) ListMisses(context.Context, string) ([]domain.Miss, error) { return l.misses, nil }
func (l *memLedger) LatestSummary(context.Context) (domain.StoredSummary, error) {
	return domain.StoredSummary{}, domain.ErrNotFound
}

// only returns the single run recorded.
func (l *memLedger) only() domain.Run {
	for _, r := range l.runs {
		return r
	}
	return domain.Run{}
}
