package gauth

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// BusinessManageScope is the scope the performance API requires.
const BusinessManageScope = "https://www.googleapis.com/auth/business.manage"

// ErrNoToken means no cached token exists and consent must be run first.
var ErrNoToken = errors.New("no cached oauth token")

// ConfigFromFile reads an installed-app client secret file.
func ConfigFromFile(path string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return cfg, nil
}

// TokenStore keeps one token as JSON on disk.
type TokenStore struct {
	Path string
}

func (s TokenStore) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	var t oauth2.Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.Path, err)
	}
	return &t, nil
}

// Save writes the token atomically with owner-only permissions.
func (s TokenStore) Save(t *oauth2.Token) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".token-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// persistingSource saves every newly minted token back to the store.
type persistingSource struct {
	mu    sync.Mutex
	src   oauth2.TokenSource
	store TokenStore
	last  string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	t, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.AccessToken != p.last {
		p.last = t.AccessToken
		if err := p.store.Save(t); err != nil {
			log.Warn().Err(err).Str("path", p.store.Path).Msg("token not persisted")
		} else {
			log.Debug().Str("path", p.store.Path).Time("expiry", t.Expiry).Msg("token persisted")
		}
	}
	return t, nil
}

// TokenSource refreshes the cached token as needed and writes refreshed
// tokens back to the store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &persistingSource{src: cfg.TokenSource(ctx, tok), store: store, last: tok.AccessToken}, nil
}

// HTTPClient returns a client authorised with the cached token.
func HTTPClient(ctx context.Context, cfg *oauth2.Config, store TokenStore) (*http.Client, error) {
	ts, err := TokenSource(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Authorize runs the installed-app consent flow on a loopback redirect.
// open is handed the consent URL, typically printing it for the operator.
func Authorize(ctx context.Context, cfg *oauth2.Config, open func(authURL string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	c := *cfg
	c.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch {
			case q.Get("state") != state:
				http.Error(w, "state mismatch", http.StatusBadRequest)
				return
			case q.Get("error") != "":
				http.Error(w, "authorization denied", http.StatusForbidden)
				done <- result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))}
				return
			}
			_, _ = w.Write([]byte("Authorization complete. You can close this window.\n"))
			done <- result{code: q.Get("code")}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	open(c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := c.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchange code: %w", err)
		}
		return tok, nil
	}
}

func randomState() (string, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
