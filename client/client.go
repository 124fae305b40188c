// Package client talks to the pkgradar server: the GraphQL boundary for
// users and their lists, the search proxy, and the auth routes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"pkgradar/kanban"
	"pkgradar/search"
)

// ErrNotLoggedIn is returned when the server does not recognize the
// session.
var ErrNotLoggedIn = errors.New("not logged in")

type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Name         string       `json:"name"`
	Avatar       string       `json:"avatar"`
	KanbanBoards []string     `json:"kanbanBoards"`
	Packages     kanban.Cards `json:"packages"`
}

// Client implements kanban.Saver against the server.
type Client struct {
	base    string
	session Session
	http    *http.Client
	gql     *graphql.Client
}

func New(baseURL string, s Session) *Client {
	base := strings.TrimRight(baseURL, "/")
	hc := &http.Client{Timeout: 15 * time.Second}
	return &Client{
		base:    base,
		session: s,
		http:    hc,
		gql:     graphql.NewClient(base+"/graphql", graphql.WithHTTPClient(hc)),
	}
}

func (c *Client) Session() Session { return c.session }

const userFields = `id username name avatar kanbanBoards packages { id name avatar description stars status board }`

func (c *Client) request(q string) *graphql.Request {
	req := graphql.NewRequest(q)
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	return req
}

// CurrentUser loads the session's user with its boards and packages.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	req := c.request(`query($username: String, $token: String) { currentUser(username: $username, token: $token) { ` + userFields + ` } }`)
	req.Var("username", c.session.Username)
	req.Var("token", c.session.Token)
	var resp struct {
		CurrentUser *User `json:"currentUser"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	if resp.CurrentUser == nil {
		return nil, ErrNotLoggedIn
	}
	return resp.CurrentUser, nil
}

// User loads any user by id; nil when there is none.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	req := c.request(`query($id: ID!) { user(id: $id) { ` + userFields + ` } }`)
	req.Var("id", id)
	var resp struct {
		User *User `json:"user"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return resp.User, nil
}

func (c *Client) SavePackages(ctx context.Context, userID string, cards kanban.Cards) (kanban.Cards, error) {
	if cards == nil {
		cards = kanban.Cards{}
	}
	req := c.request(`mutation($id: ID!, $packages: [PackageInput!]!) { updateUserPackages(id: $id, packages: $packages) { ` + userFields + ` } }`)
	req.Var("id", userID)
	req.Var("packages", cards)
	var resp struct {
		UpdateUserPackages *User `json:"updateUserPackages"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("update user packages: %w", err)
	}
	if resp.UpdateUserPackages == nil {
		return nil, ErrNotLoggedIn
	}
	return resp.UpdateUserPackages.Packages, nil
}

func (c *Client) SaveBoards(ctx context.Context, userID string, boards []string) ([]string, error) {
	if boards == nil {
		boards = []string{}
	}
	req := c.request(`mutation($id: ID!, $boards: [String!]!) { updateUserBoards(id: $id, kanbanBoards: $boards) { id kanbanBoards } }`)
	req.Var("id", userID)
	req.Var("boards", boards)
	var resp struct {
		UpdateUserBoards *User `json:"updateUserBoards"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("update user boards: %w", err)
	}
	if resp.UpdateUserBoards == nil {
		return nil, ErrNotLoggedIn
	}
	return resp.UpdateUserBoards.KanbanBoards, nil
}

// Search asks the server's search proxy for typeahead suggestions.
func (c *Client) Search(ctx context.Context, input string) ([]search.Suggestion, error) {
	var out struct {
		Suggestions []search.Suggestion `json:"suggestions"`
	}
	if err := c.getJSON(ctx, "/api/search?q="+url.QueryEscape(input), &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return out.Suggestions, nil
}

// LoginURL is where a browser starts the GitHub sign-in.
func (c *Client) LoginURL() string { return c.base + "/api/auth/oauth/github/start" }

// Logout ends the session on the server. The local credentials file is
// left to the caller.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/auth/logout", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 4<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = res.Status
		}
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, e.Error)
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dst)
}
