// internal/adapters/brightlocal/client.go
package brightlocal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketing_sync/internal/adapters/httpx"
	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const service = "brightlocal"

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

var _ domain.ReviewsAPI = (*Client)(nil)

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// envelope is the common response shape. Ids arrive as numbers or strings.
type envelope struct {
	Success bool            `json:"success"`
	BatchID json.RawMessage `json:"batch-id"`
	JobID   json.RawMessage `json:"job-id"`
	Errors  json.RawMessage `json:"errors"`
	Results struct {
		LdFetchReviews []statusJob `json:"LdFetchReviews"`
	} `json:"results"`
}

type statusJob struct {
	JobID   json.RawMessage `json:"job-id"`
	Status  string          `json:"status"`
	Payload struct {
		ProfileURL string `json:"profile-url"`
	} `json:"payload"`
	Results []struct {
		Reviews []map[string]any `json:"reviews"`
	} `json:"results"`
}

// ---- Batch protocol ----

func (c *Client) CreateBatch(ctx context.Context) (domain.BatchID, error) {
	form := url.Values{"api-key": {c.key}}
	env, _, err := c.do(ctx, "create batch", http.MethodPost, "/batch", form)
	if err != nil {
		return "", err
	}
	id := rawID(env.BatchID)
	if id == "" {
		return "", &domain.ProtocolError{Op: "create batch", Detail: "response has no batch-id"}
	}
	return domain.BatchID(id), nil
}

func (c *Client) AttachFetchJob(ctx context.Context, batch domain.BatchID, req domain.FetchRequest) (domain.JobID, error) {
	form := url.Values{
		"batch-id":    {string(batch)},
		"api-key":     {c.key},
		"profile-url": {req.ProfileURL},
		"country":     {req.Country},
	}
	if req.ReviewsLimit != "" {
		form.Set("reviews-limit", req.ReviewsLimit)
	}
	env, _, err := c.do(ctx, "fetch reviews", http.MethodPost, "/ld/fetch-reviews", form)
	if err != nil {
		return "", err
	}
	id := rawID(env.JobID)
	if id == "" {
		return "", &domain.ProtocolError{Op: "fetch reviews", Detail: "response has no job-id"}
	}
	return domain.JobID(id), nil
}

func (c *Client) CommitBatch(ctx context.Context, batch domain.BatchID) error {
	form := url.Values{"batch-id": {string(batch)}, "api-key": {c.key}}
	_, _, err := c.do(ctx, "commit batch", http.MethodPut, "/batch", form)
	return err
}

func (c *Client) BatchStatus(ctx context.Context, batch domain.BatchID) (domain.BatchStatus, error) {
	q := url.Values{"batch-id": {string(batch)}, "api-key": {c.key}}
	env, raw, err := c.do(ctx, "batch status", http.MethodGet, "/batch", q)
	if err != nil {
		return domain.BatchStatus{}, err
	}
	out := domain.BatchStatus{Raw: raw, Jobs: make([]domain.FetchJob, 0, len(env.Results.LdFetchReviews))}
	for _, j := range env.Results.LdFetchReviews {
		fj := domain.FetchJob{
			ID:         domain.JobID(rawID(j.JobID)),
			Status:     domain.JobStatus(j.Status),
			ProfileURL: j.Payload.ProfileURL,
		}
		for _, r := range j.Results {
			fj.Results = append(fj.Results, domain.JobResult{Reviews: r.Reviews})
		}
		out.Jobs = append(out.Jobs, fj)
	}
	return out, nil
}

// ---- Internals ----

// do sends one form request (query string for GET) and decodes the envelope.
// 429 and transient 5xx are retried with backoff; for non-GET requests only
// 429 and 503 are retried since the server did not accept the work.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) (envelope, []byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return envelope{}, nil, err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := c.newRequest(ctx, method, path, form)
		if err != nil {
			return envelope{}, nil, err
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, path, 0, time.Since(start))
			if ctx.Err() != nil {
				return envelope{}, nil, ctx.Err()
			}
			lastErr = &domain.TransportError{Op: op, Err: err}
			if method == http.MethodGet && i < 3 && httpx.SleepCtx(ctx, httpx.Backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return envelope{}, nil, ctx.Err()
			}
			return envelope{}, nil, lastErr
		}
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		resp.Body.Close()
		observability.ObserveExternal(service, path, resp.StatusCode, time.Since(start))
		if rerr != nil {
			return envelope{}, nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Err: rerr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var env envelope
			if err := json.Unmarshal(body, &env); err != nil {
				return envelope{}, nil, &domain.ProtocolError{Op: op, Detail: "malformed envelope: " + err.Error()}
			}
			if !env.Success {
				return envelope{}, nil, &domain.ProtocolError{Op: op, Detail: "success=false: " + snippet(env.Errors, body)}
			}
			return env, body, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return envelope{}, nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Body: snippet(nil, body), Err: domain.ErrUnauthorized}

		case retryable(method, resp.StatusCode):
			wait := httpx.RetryAfter(resp)
			if wait == 0 {
				wait = httpx.Backoff(i)
			}
			lastErr = &domain.TransportError{Op: op, Status: resp.StatusCode, Body: snippet(nil, body)}
			if i < 3 && httpx.SleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return envelope{}, nil, ctx.Err()
			}
			return envelope{}, nil, lastErr

		default:
			return envelope{}, nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Body: snippet(nil, body)}
		}
	}
	return envelope{}, nil, lastErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	u := c.base + path
	var body io.Reader
	if method == http.MethodGet {
		u += "?" + form.Encode()
	} else {
		body = bytes.NewBufferString(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "marketing-sync/1.0")
	return req, nil
}

func retryable(method string, status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return method == http.MethodGet
	}
	return false
}

// rawID turns a JSON number or string into its text form.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}

func snippet(errs json.RawMessage, body []byte) string {
	b := body
	if len(errs) > 0 && string(errs) != "null" {
		b = errs
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
