// Package httpx holds the rate-limited, retrying JSON GET shared by the
// simple request/response API clients.
package httpx

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/domain"
)

const maxAttempts = 4

// Getter issues GETs through one http.Client and limiter.
type Getter struct {
	Service string
	HC      *http.Client
	RL      *rate.Limiter
	// Decorate adds auth or headers to each attempt.
	Decorate func(*http.Request)
}

func NewGetter(service string, hc *http.Client, rps int) *Getter {
	if rps <= 0 {
		rps = 2
	}
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Getter{Service: service, HC: hc, RL: rate.NewLimiter(rate.Limit(rps), rps)}
}

// GetJSON decodes a 2xx body into dst and returns the raw body. 429 and 5xx
// are retried with backoff, honouring Retry-After.
func (g *Getter) GetJSON(ctx context.Context, op, endpoint, rawURL string, dst any) ([]byte, error) {
	if err := g.RL.Wait(ctx); err != nil {
		return nil, err
	}
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "marketing-sync/1.0")
		if g.Decorate != nil {
			g.Decorate(req)
		}

		start := time.Now()
		resp, err := g.HC.Do(req)
		if err != nil {
			observability.ObserveExternal(g.Service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &domain.TransportError{Op: op, Err: err}
			if i < maxAttempts-1 && SleepCtx(ctx, Backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		observability.ObserveExternal(g.Service, endpoint, resp.StatusCode, time.Since(start))
		if rerr != nil {
			return nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Err: rerr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if err := json.Unmarshal(body, dst); err != nil {
				return nil, &domain.ProtocolError{Op: op, Detail: "malformed body: " + err.Error()}
			}
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Body: Snippet(body), Err: domain.ErrUnauthorized}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			wait := RetryAfter(resp)
			if wait == 0 {
				wait = Backoff(i)
			}
			lastErr = &domain.TransportError{Op: op, Status: resp.StatusCode, Body: Snippet(body)}
			if i < maxAttempts-1 && SleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		default:
			return nil, &domain.TransportError{Op: op, Status: resp.StatusCode, Body: Snippet(body)}
		}
	}
	return nil, lastErr
}

func Snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}

// SleepCtx waits for d or returns false early if ctx is done.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func RetryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Backoff doubles from 250ms per attempt with up to +50% jitter.
func Backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 250 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	return base + time.Duration(0.5*float64(b[0])/255.0*float64(base))
}
