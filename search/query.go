// Package search queries the hosted package/user index and turns hits into
// typeahead suggestions.
package search

import (
	"encoding/json"
	"strings"
)

// Fields searched by the typeahead, package_name weighted highest.
var Fields = []string{"package_name^2", "owner_name", "tags.keyword", "username", "name"}

// SortField is the popularity metric results are ordered by, descending.
const SortField = "stars"

type queryString struct {
	Fields          []string `json:"fields"`
	DefaultOperator string   `json:"default_operator"`
	Query           string   `json:"query"`
}

type sortSpec struct {
	Order        string `json:"order"`
	UnmappedType string `json:"unmapped_type"`
}

type requestBody struct {
	Query struct {
		QueryString queryString `json:"query_string"`
	} `json:"query"`
	Sort []map[string]sortSpec `json:"sort"`
}

// Normalize trims and lowercases typed input the way the request expects.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// Body builds the prefix query for input.
func Body(input string) ([]byte, error) {
	var b requestBody
	b.Query.QueryString = queryString{
		Fields:          Fields,
		DefaultOperator: "AND",
		Query:           Normalize(input) + "*",
	}
	b.Sort = []map[string]sortSpec{{SortField: {Order: "desc", UnmappedType: "long"}}}
	return json.Marshal(b)
}
