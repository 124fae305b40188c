package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"pkgradar/search"
)

var ErrUnauthorized = errors.New("unauthorized")

// suggester is the search index as the proxy sees it.
type suggester interface {
	Suggest(ctx context.Context, input string) ([]search.Suggestion, error)
}

type api struct {
	cfg    *Config
	store  userStore
	search suggester   // nil when no index is configured
	snaps  snapshotter // nil when snapshots are off
	log    *slog.Logger
	bus    *EventBus
	schema *graphql.Schema
	oauth  *oauth2.Config
	// client for the GitHub API; token exchange goes through the context
	httpClient *http.Client

	// rate limiters per IP:key
	rlMu sync.Mutex
	rl   map[string]*rate.Limiter
}

func newAPI(cfg *Config, store userStore, log *slog.Logger) *api {
	a := &api{
		cfg:        cfg,
		store:      store,
		log:        log,
		bus:        NewEventBus(),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		rl:         map[string]*rate.Limiter{},
	}
	a.oauth = githubOAuthConfig(cfg.GitHub)
	a.schema = graphql.MustParseSchema(schemaSDL, &rootResolver{api: a})
	return a
}

func (a *api) routes(mux *http.ServeMux) {
	authLimit := a.cfg.AuthRateLimit

	mux.Handle("POST /graphql", a.withUser(a.graphqlHandler()))
	mux.HandleFunc("GET /api/search", a.handleSearch)

	mux.HandleFunc("GET /api/auth/oauth/github/start", a.withRateLimit("oauth", authLimit, time.Minute, a.handleGithubStart))
	mux.HandleFunc("GET /api/auth/oauth/github/callback", a.withRateLimit("oauth", authLimit, time.Minute, a.handleGithubCallback))
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/me", a.handleMe)
	mux.HandleFunc("GET /api/me/events", a.requireAuth(a.handleEvents))

	mux.HandleFunc("GET /api/health", a.handleHealth)
}

func (a *api) limiter(key string, max int, window time.Duration) *rate.Limiter {
	a.rlMu.Lock()
	defer a.rlMu.Unlock()
	l, ok := a.rl[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(window/time.Duration(max)), max)
		a.rl[key] = l
	}
	return l
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if max > 0 && !a.limiter(clientIP(r)+":"+name, max, window).Allow() {
			writeError(w, 429, "too many requests")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// cookie/session helpers
func (a *api) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.Cookie.Secure,
		SameSite: a.cfg.sameSite(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func (a *api) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.Cookie.Secure,
		SameSite: a.cfg.sameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// sessionToken reads a bearer token, falling back to the session cookie.
func (a *api) sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(a.cfg.Cookie.Name); err == nil {
		return c.Value
	}
	return ""
}

func (a *api) currentUser(r *http.Request) (*User, error) {
	if u, ok := userFrom(r.Context()); ok {
		return u, nil
	}
	token := a.sessionToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}
	u, err := a.store.UserBySession(r.Context(), token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type ctxKey int

const userKey ctxKey = iota

func withUserContext(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func userFrom(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok && u != nil
}

// withUser attaches the session user, if any, to the request context.
// Anonymous requests pass through.
func (a *api) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.currentUser(r)
		switch {
		case err == nil:
			r = r.WithContext(withUserContext(r.Context(), u))
		case !errors.Is(err, ErrUnauthorized):
			a.log.Error("session lookup", "err", err)
			writeError(w, 500, "internal error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth wraps a handler and enforces a valid session
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.currentUser(r)
		if err != nil {
			writeError(w, 401, "unauthorized")
			return
		}
		next(w, r.WithContext(withUserContext(r.Context(), u)))
	}
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	a.bus.ServeSSE(w, r, u.ID)
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "request_id", id, "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Implement http.Flusher if underlying writer supports it (needed for SSE)
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
