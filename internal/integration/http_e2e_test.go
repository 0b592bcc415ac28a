//go:build integration || !unit

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	httpserver "marketing_sync/internal/adapters/http_server"
	redisad "marketing_sync/internal/adapters/redis"
	"marketing_sync/internal/app"
	"marketing_sync/internal/domain"
	mysqlrepo "marketing_sync/internal/storage/mysql"
	"marketing_sync/internal/testutil/mysqltest"
)

// memWarehouse stands in for the warehouse; the ledger and API are real.
type memWarehouse struct{ rows map[string]int }

func (w *memWarehouse) Load(_ context.Context, t domain.Table, rows []domain.Row, _ domain.WriteMode) (int64, error) {
	w.rows[t.String()] += len(rows)
	return int64(len(rows)), nil
}

type leads []domain.Lead

func (l leads) Leads(context.Context, time.Time, int) ([]domain.Lead, error) { return l, nil }

func TestHTTP_EndToEnd_LeadsRun(t *testing.T) {
	repo := mysqlrepo.New(mysqltest.Start(t))
	ctx := context.Background()

	wh := &memWarehouse{rows: map[string]int{}}
	svc := app.NewIngestionService(app.Deps{
		Leads: leads{
			{"date_created": "2026-09-01T09:00:00Z", "account_id": 5.0, "account": "Acme", "lead_type": "Phone Call"},
			{"date_created": "2026-09-02T09:00:00Z", "account_id": 5.0, "account": "Acme", "lead_type": "Web Form"},
		},
		Warehouse: wh,
		Runs:      repo,
	}, app.PipelineConfig{LeadsTable: domain.Table{Dataset: "whatconverts", Name: "leads", Schema: domain.LeadSchema}})
	if err := svc.Run(ctx, app.PipelineLeads); err != nil {
		t.Fatalf("run leads: %v", err)
	}
	if wh.rows["whatconverts.leads"] != 2 {
		t.Fatalf("unexpected loads: %+v", wh.rows)
	}

	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Q:      app.NewQueryService(repo, cache, time.Minute),
		Checks: map[string]func(context.Context) error{"mysql": repo.Ping, "redis": cache.Ping},
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/runs?pipeline=leads")
	if err != nil {
		t.Fatalf("GET runs: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var list struct {
		Items []domain.Run `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Status != domain.RunSucceeded || list.Items[0].RowsLoaded != 2 {
		t.Fatalf("unexpected runs: %+v", list.Items)
	}

	res2, err := http.Get(fmt.Sprintf("%s/v1/runs/%s", ts.URL, list.Items[0].ID))
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res2.StatusCode)
	}
	if !mr.Exists("mktsync:run:" + list.Items[0].ID) {
		t.Fatalf("finished run was not cached")
	}

	hz, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	hz.Body.Close()
	if hz.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", hz.StatusCode)
	}
}
