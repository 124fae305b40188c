package search

import (
	"strings"
	"unicode"
)

// Kind discriminates suggestion records.
type Kind string

const (
	KindLiteral  Kind = "literal"
	KindPackages Kind = "packages"
	KindUsers    Kind = "users"
)

// MaxTags is how many package tags a suggestion displays.
const MaxTags = 4

// Package is the _source of a package hit.
type Package struct {
	ID          string   `json:"id"`
	PackageName string   `json:"package_name"`
	OwnerName   string   `json:"owner_name"`
	OwnerAvatar string   `json:"owner_avatar"`
	Description string   `json:"description"`
	Stars       int      `json:"stars"`
	Issues      int      `json:"issues,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// User is the _source of a user hit.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// Highlights holds the matched parts of the displayed fields. Title is the
// package name or username, Subtitle a user's display name.
type Highlights struct {
	Title    []Part   `json:"title,omitempty"`
	Subtitle []Part   `json:"subtitle,omitempty"`
	Tags     [][]Part `json:"tags,omitempty"`
}

// Suggestion is a read-only typeahead entry: either the literal typed
// input or a projection of an index hit.
type Suggestion struct {
	Kind       Kind        `json:"kind"`
	Input      string      `json:"input,omitempty"`
	Package    *Package    `json:"package,omitempty"`
	User       *User       `json:"user,omitempty"`
	Highlights *Highlights `json:"highlights,omitempty"`
	Route      string      `json:"route"`
}

func Literal(input string) Suggestion {
	return Suggestion{Kind: KindLiteral, Input: input, Route: LiteralRoute(input)}
}

func PackageSuggestion(p Package, query string) Suggestion {
	h := &Highlights{Title: Highlight(p.PackageName, query)}
	for i, tag := range p.Tags {
		if i >= MaxTags {
			break
		}
		h.Tags = append(h.Tags, Highlight(tag, query))
	}
	return Suggestion{
		Kind:       KindPackages,
		Package:    &p,
		Highlights: h,
		Route:      "/" + p.OwnerName + "/" + p.PackageName,
	}
}

func UserSuggestion(u User, query string) Suggestion {
	return Suggestion{
		Kind: KindUsers,
		User: &u,
		Highlights: &Highlights{
			Title:    Highlight(u.Username, query),
			Subtitle: Highlight(u.Name, query),
		},
		Route: "/@" + u.Username,
	}
}

// Value is the text placed in the input when the suggestion is chosen.
func (s Suggestion) Value() string {
	switch {
	case s.Kind == KindPackages && s.Package != nil:
		return s.Package.PackageName
	case s.Kind == KindUsers && s.User != nil:
		return s.User.Username
	}
	return s.Input
}

// LiteralRoute is the generic results route for typed text; every
// whitespace character becomes '+'.
func LiteralRoute(input string) string {
	q := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '+'
		}
		return r
	}, input)
	return "/search?q=" + q
}
