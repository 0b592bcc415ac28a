package gauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)

	exp := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: exp}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, exp.Equal(got.Expiry))

	fi, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

type seqSource struct {
	toks []*oauth2.Token
	i    int
}

func (s *seqSource) Token() (*oauth2.Token, error) {
	if s.i >= len(s.toks) {
		return nil, errors.New("exhausted")
	}
	t := s.toks[s.i]
	s.i++
	return t, nil
}

func TestPersistingSource_SavesOnChange(t *testing.T) {
	store := TokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
	src := &seqSource{toks: []*oauth2.Token{{AccessToken: "old"}, {AccessToken: "new", RefreshToken: "r"}}}
	p := &persistingSource{src: src, store: store, last: "old"}

	_, err := p.Token()
	require.NoError(t, err)
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoToken, "unchanged token is not rewritten")

	_, err = p.Token()
	require.NoError(t, err)
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"installed":{
		"client_id":"cid","client_secret":"sec",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth",
		"token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`), 0o600))

	cfg, err := ConfigFromFile(path, BusinessManageScope)
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, []string{BusinessManageScope}, cfg.Scopes)

	_, err = ConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAuthorize_LoopbackFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"acc","refresh_token":"ref","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "sec",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://auth.example.com/auth", TokenURL: tokenSrv.URL},
		Scopes:       []string{BusinessManageScope},
	}

	// the "browser" follows the redirect straight back with a code
	open := func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "offline", q.Get("access_type"))
		cb := q.Get("redirect_uri") + "?" + url.Values{"code": {"the-code"}, "state": {q.Get("state")}}.Encode()
		go func() {
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tok, err := Authorize(ctx, cfg, open)
	require.NoError(t, err)
	assert.Equal(t, "acc", tok.AccessToken)
	assert.Equal(t, "ref", tok.RefreshToken)
}
