package builder

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/xcono/gridbase/apperr"
	"github.com/xcono/gridbase/schema"
)

// MaxLimit caps a single page of records to bound response size.
const MaxLimit = 1000

// DefaultLimit applies when the caller does not set one.
const DefaultLimit = 50

// ListOptions are the parsed listing query parameters.
type ListOptions struct {
	Page           int
	Limit          int
	Search         string
	ViewID         string
	IncludeDeleted bool
	Filters        []schema.FilterClause
	Sorts          []schema.SortKey
}

// Offset returns the row offset for the page.
func (o ListOptions) Offset() int { return (o.Page - 1) * o.Limit }

// ParseListParams parses the listing query parameters:
//
//	page, limit    pagination (limit clamped to MaxLimit)
//	search         free text over TEXT-like properties
//	filters        JSON array of filter clauses
//	sort           compact "property.asc,other.desc" form
//	view           saved view id
//	includeDeleted include soft-deleted records
func ParseListParams(params url.Values) (ListOptions, error) {
	opts := ListOptions{Page: 1, Limit: DefaultLimit}

	if v := params.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return opts, apperr.Validation("invalid page '%s'", v)
		}
		opts.Page = page
	}
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return opts, apperr.Validation("invalid limit '%s'", v)
		}
		opts.Limit = limit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	opts.Search = params.Get("search")
	opts.ViewID = params.Get("view")
	opts.IncludeDeleted = params.Get("includeDeleted") == "true"

	filters, err := ParseFilterParam(params.Get("filters"))
	if err != nil {
		return opts, err
	}
	opts.Filters = filters

	sorts, err := ParseSortParam(params.Get("sort"))
	if err != nil {
		return opts, err
	}
	opts.Sorts = sorts

	return opts, nil
}

// ParseFilterParam decodes the serialized clause list. The wire form is a
// JSON array: [{"propertyId":"status","operator":"eq","value":"todo"}].
func ParseFilterParam(raw string) ([]schema.FilterClause, error) {
	if raw == "" {
		return nil, nil
	}
	var clauses []schema.FilterClause
	if err := json.Unmarshal([]byte(raw), &clauses); err != nil {
		return nil, apperr.Validation("failed to parse filters: %v", err)
	}
	return clauses, nil
}

// ParseSortParam parses the compact sort form "dueDate.asc,priority.desc".
// A bare property name sorts ascending.
func ParseSortParam(raw string) ([]schema.SortKey, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	sorts := make([]schema.SortKey, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := schema.SortKey{PropertyID: part, Direction: "asc"}
		if idx := strings.LastIndex(part, "."); idx > 0 {
			dir := strings.ToLower(part[idx+1:])
			if dir == "asc" || dir == "desc" {
				key.PropertyID = part[:idx]
				key.Direction = dir
			}
		}
		sorts = append(sorts, key)
	}
	return sorts, nil
}
