package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

var ErrNotConfigured = errors.New("search index not configured")

type Config struct {
	Endpoint string `yaml:"endpoint"`
	Index    string `yaml:"index"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
}

// Client issues typeahead queries. There is no caching or cancellation;
// every call is a new request.
type Client struct {
	es      *elasticsearch.Client
	indexes []string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Index == "" {
		return nil, ErrNotConfigured
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Endpoint},
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("search client: %w", err)
	}
	var indexes []string
	for _, ix := range strings.Split(cfg.Index, ",") {
		if ix = strings.TrimSpace(ix); ix != "" {
			indexes = append(indexes, ix)
		}
	}
	return &Client{es: es, indexes: indexes}, nil
}

type hit struct {
	ID     string          `json:"_id"`
	Index  string          `json:"_index"`
	Type   string          `json:"_type"`
	Source json.RawMessage `json:"_source"`
}

type response struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

// Suggest returns the literal suggestion for input followed by the ranked
// hits, in index order.
func (c *Client) Suggest(ctx context.Context, input string) ([]Suggestion, error) {
	body, err := Body(input)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexes...),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("search: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return suggestions(input, out.Hits.Hits), nil
}

// suggestions projects raw hits. Hits whose kind cannot be determined are
// skipped.
func suggestions(input string, hits []hit) []Suggestion {
	query := strings.TrimSpace(input)
	out := []Suggestion{Literal(Normalize(input))}
	for _, h := range hits {
		switch kindOf(h) {
		case KindPackages:
			var p Package
			if err := json.Unmarshal(h.Source, &p); err != nil {
				continue
			}
			if p.ID == "" {
				p.ID = h.ID
			}
			out = append(out, PackageSuggestion(p, query))
		case KindUsers:
			var u User
			if err := json.Unmarshal(h.Source, &u); err != nil {
				continue
			}
			if u.ID == "" {
				u.ID = h.ID
			}
			out = append(out, UserSuggestion(u, query))
		}
	}
	return out
}

// kindOf reads _type, falling back to the index name and then to the
// source shape for clusters that no longer report mapping types.
func kindOf(h hit) Kind {
	switch Kind(h.Type) {
	case KindPackages, KindUsers:
		return Kind(h.Type)
	}
	switch {
	case strings.HasPrefix(h.Index, "package"):
		return KindPackages
	case strings.HasPrefix(h.Index, "user"):
		return KindUsers
	}
	var probe struct {
		PackageName *string `json:"package_name"`
		Username    *string `json:"username"`
	}
	if json.Unmarshal(h.Source, &probe) == nil {
		switch {
		case probe.PackageName != nil:
			return KindPackages
		case probe.Username != nil:
			return KindUsers
		}
	}
	return ""
}
