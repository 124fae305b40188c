package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the token exchange and /user endpoints.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_secret") != "shh" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer","scope":"read:user"}`))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"login":"octocat","name":"","avatar_url":"https://avatars/42"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAuthAPI(t *testing.T) (*api, *memStore, *http.ServeMux) {
	t.Helper()
	gh := fakeGitHub(t)
	cfg := defaultConfig()
	cfg.GitHub.ClientSecret = "shh"
	cfg.GitHub.AuthURL = gh.URL + "/login/oauth/authorize"
	cfg.GitHub.TokenURL = gh.URL + "/login/oauth/access_token"
	cfg.GitHub.APIURL = gh.URL
	store := newMemStore()
	a := newAPI(&cfg, store, quietLogger())
	mux := http.NewServeMux()
	a.routes(mux)
	return a, store, mux
}

func TestGithubStartRedirects(t *testing.T) {
	_, _, mux := newAuthAPI(t)
	req := httptest.NewRequest(http.MethodGet, "http://radar.test/api/auth/oauth/github/start", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", loc.Path)
	q := loc.Query()
	assert.Equal(t, defaultGitHubClientID, q.Get("client_id"))
	assert.Equal(t, "http://radar.test/api/auth/oauth/github/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read:user", q.Get("scope"))

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Equal(t, state.Value, q.Get("state"))
}

func TestGithubDisabledWithoutSecret(t *testing.T) {
	cfg := defaultConfig()
	a := newAPI(&cfg, newMemStore(), quietLogger())
	mux := http.NewServeMux()
	a.routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/start", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func callback(mux *http.ServeMux, code, state, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://radar.test/api/auth/oauth/github/callback?code="+code+"&state="+state, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: cookie})
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGithubCallback(t *testing.T) {
	t.Run("creates user and session", func(t *testing.T) {
		_, store, mux := newAuthAPI(t)
		rec := callback(mux, "good-code", "s1", "s1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out struct {
			OK       bool   `json:"ok"`
			ID       string `json:"id"`
			Username string `json:"username"`
			Token    string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.True(t, out.OK)
		assert.Equal(t, "octocat", out.Username)
		require.NotEmpty(t, out.Token)

		u, err := store.UserBySession(context.Background(), out.Token)
		require.NoError(t, err)
		assert.Equal(t, "octocat", u.Name, "empty name falls back to login")
		assert.Equal(t, "https://avatars/42", u.AvatarURL)

		var sess bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == "pkgradar_sess" && c.Value == out.Token {
				sess = true
			}
		}
		assert.True(t, sess)
	})
	t.Run("state mismatch", func(t *testing.T) {
		_, _, mux := newAuthAPI(t)
		rec := callback(mux, "good-code", "s1", "other")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing state cookie", func(t *testing.T) {
		_, _, mux := newAuthAPI(t)
		rec := callback(mux, "good-code", "s1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("exchange failure", func(t *testing.T) {
		_, store, mux := newAuthAPI(t)
		rec := callback(mux, "bad-code", "s1", "s1")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Empty(t, store.users)
	})
}

func TestLogoutDeletesSession(t *testing.T) {
	_, store, mux := newAuthAPI(t)
	u := store.addUser("octocat")
	store.addSession(u.ID, "tok")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.UserBySession(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthRateLimit(t *testing.T) {
	a, _, mux := newAuthAPI(t)
	a.cfg.AuthRateLimit = 2
	// routes captured the old limit; rebuild
	mux = http.NewServeMux()
	a.routes(mux)

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/oauth/github/start", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}, codes)
}

func TestEventsRequireSession(t *testing.T) {
	_, _, mux := newAuthAPI(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
