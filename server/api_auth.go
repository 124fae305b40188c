package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const stateCookie = "oauth_state"

func githubOAuthConfig(gh GitHubConfig) *oauth2.Config {
	ep := github.Endpoint
	if gh.AuthURL != "" {
		ep.AuthURL = gh.AuthURL
	}
	if gh.TokenURL != "" {
		ep.TokenURL = gh.TokenURL
	}
	ep.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     gh.ClientID,
		ClientSecret: gh.ClientSecret,
		Endpoint:     ep,
		Scopes:       []string{"read:user"},
	}
}

func (a *api) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.Cookie.Secure,
		SameSite: a.cfg.sameSite(),
		Expires:  time.Now().Add(5 * time.Minute),
		MaxAge:   300,
	})
}

func (a *api) readStateCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(stateCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// redirectURL prefers the configured callback unless it points at another
// host, which would lose the state cookie.
func (a *api) redirectURL(r *http.Request) string {
	scheme := "http"
	if r.Header.Get("X-Forwarded-Proto") == "https" || r.TLS != nil {
		scheme = "https"
	}
	own := scheme + "://" + r.Host + "/api/auth/oauth/github/callback"
	ru := a.cfg.GitHub.RedirectURL
	if ru == "" {
		return own
	}
	if u, err := url.Parse(ru); err == nil && !strings.EqualFold(u.Host, r.Host) {
		a.log.Info("oauth redirect host adjusted to request host", "from", u.Host, "to", r.Host)
		return own
	}
	return ru
}

func (a *api) oauthFor(r *http.Request) *oauth2.Config {
	conf := *a.oauth
	conf.RedirectURL = a.redirectURL(r)
	return &conf
}

// GET /api/auth/oauth/github/start
func (a *api) handleGithubStart(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.githubEnabled() {
		writeError(w, 404, "provider not configured")
		return
	}
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	state := base64.RawURLEncoding.EncodeToString(b)
	a.setStateCookie(w, state)
	http.Redirect(w, r, a.oauthFor(r).AuthCodeURL(state), http.StatusFound)
}

// GET /api/auth/oauth/github/callback
//
// The response carries the session token so a terminal client can store it
// alongside the username.
func (a *api) handleGithubCallback(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.githubEnabled() {
		writeError(w, 404, "provider not configured")
		return
	}
	qs := r.URL.Query()
	code := qs.Get("code")
	st := qs.Get("state")
	if code == "" || st == "" {
		writeError(w, 400, "bad oauth response")
		return
	}
	if have, err := a.readStateCookie(r); err != nil || have == "" || have != st {
		writeError(w, 400, "state mismatch")
		return
	}
	a.clearCookie(w, stateCookie)

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, a.httpClient)
	conf := a.oauthFor(r)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		a.log.Error("oauth token", "err", err)
		writeError(w, 502, "oauth error")
		return
	}
	p, err := a.githubFetchUser(ctx, conf.Client(ctx, tok))
	if err != nil {
		a.log.Error("oauth user", "err", err)
		writeError(w, 502, "oauth error")
		return
	}
	u, err := a.store.EnsureOAuthUser(r.Context(), "github", p)
	if err != nil {
		a.log.Error("ensure oauth user", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	session, exp, err := a.store.CreateSession(r.Context(), u.ID, a.cfg.SessionTTL)
	if err != nil {
		a.log.Error("create session", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	a.setSessionCookie(w, session, exp)
	a.log.Info("login", "user", u.ID, "username", u.Username)
	writeJSON(w, 200, map[string]any{
		"ok":         true,
		"id":         strconv.FormatInt(u.ID, 10),
		"username":   u.Username,
		"token":      session,
		"expires_at": exp.UTC(),
	})
}

func (a *api) githubFetchUser(ctx context.Context, client *http.Client) (Profile, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.cfg.GitHub.APIURL, "/")+"/user", nil)
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("github /user: %s", resp.Status)
	}
	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return Profile{}, err
	}
	if gh.ID == 0 || gh.Login == "" {
		return Profile{}, fmt.Errorf("github /user: incomplete profile")
	}
	name := strings.TrimSpace(gh.Name)
	if name == "" {
		name = gh.Login
	}
	return Profile{
		ProviderUserID: strconv.FormatInt(gh.ID, 10),
		Username:       gh.Login,
		Name:           name,
		AvatarURL:      gh.AvatarURL,
	}, nil
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := a.sessionToken(r); tok != "" {
		if err := a.store.DeleteSession(r.Context(), tok); err != nil {
			a.log.Error("delete session", "err", err)
		}
	}
	a.clearCookie(w, a.cfg.Cookie.Name)
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.currentUser(r)
	if err != nil {
		// anonymous callers get user: null rather than a 401
		writeJSON(w, 200, map[string]any{"user": nil})
		return
	}
	writeJSON(w, 200, map[string]any{"user": u})
}
