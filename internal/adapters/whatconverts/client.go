package whatconverts

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketing_sync/internal/adapters/httpx"
	"marketing_sync/internal/domain"
)

const service = "whatconverts"

type Client struct {
	url string
	get *httpx.Getter
}

var _ domain.LeadsClient = (*Client)(nil)

// New returns a client using HTTP basic auth with the API token and secret.
func New(endpoint, username, password string, rps int) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("leads endpoint is required")
	}
	if username == "" || password == "" {
		return nil, errors.New("leads credentials are required")
	}
	g := httpx.NewGetter(service, nil, rps)
	g.Decorate = func(r *http.Request) { r.SetBasicAuth(username, password) }
	return &Client{url: endpoint, get: g}, nil
}

type leadsResponse struct {
	Leads []domain.Lead `json:"leads"`
}

// Leads returns the leads created since the given instant, one page of up
// to perPage entries.
func (c *Client) Leads(ctx context.Context, since time.Time, perPage int) ([]domain.Lead, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("start_date", since.UTC().Format("2006-01-02T15:04:05Z"))
	if perPage > 0 {
		q.Set("leads_per_page", strconv.Itoa(perPage))
	}
	u.RawQuery = q.Encode()

	var resp leadsResponse
	if _, err := c.get.GetJSON(ctx, "list leads", "leads", u.String(), &resp); err != nil {
		return nil, err
	}
	return resp.Leads, nil
}
