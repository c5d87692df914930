// Package query builds file event search requests in the vendor's structured
// query format.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Operator is a filter comparison understood by the file event search API.
type Operator string

const (
	Is         Operator = "IS"
	Exists     Operator = "EXISTS"
	OnOrAfter  Operator = "ON_OR_AFTER"
	OnOrBefore Operator = "ON_OR_BEFORE"
)

// Clause combines filters inside a group, or groups inside a query.
type Clause string

const (
	And Clause = "AND"
	Or  Clause = "OR"
)

// Search terms used by the CLI.
const (
	TermEventTimestamp     = "eventTimestamp"
	TermInsertionTimestamp = "insertionTimestamp"
	TermExposure           = "exposure"
	TermDeviceUsername     = "deviceUserName"
	TermActor              = "actor"
	TermMD5                = "md5Checksum"
	TermSHA256             = "sha256Checksum"
	TermSource             = "source"
	TermFileName           = "fileName"
	TermFilePath           = "filePath"
	TermFileCategory       = "fileCategory"
	TermProcessOwner       = "processOwner"
	TermTabURL             = "tabUrl"
)

const (
	// DefaultPageSize is the largest page the search API returns.
	DefaultPageSize = 10000

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Filter is a single term comparison. A nil Value serialises as null, as
// required by EXISTS and DOES_NOT_EXIST.
type Filter struct {
	Operator Operator `json:"operator"`
	Term     string   `json:"term"`
	Value    *string  `json:"value"`
}

// FilterGroup joins filters with a single clause.
type FilterGroup struct {
	FilterClause Clause   `json:"filterClause"`
	Filters      []Filter `json:"filters"`
}

// Query is a complete file event search request.
type Query struct {
	GroupClause Clause        `json:"groupClause"`
	Groups      []FilterGroup `json:"groups"`
	PgNum       int           `json:"pgNum"`
	PgSize      int           `json:"pgSize"`
	SrtDir      string        `json:"srtDir"`
	SrtKey      string        `json:"srtKey"`
}

// New returns an empty AND query sorted ascending by insertion time.
func New(groups ...FilterGroup) *Query {
	if groups == nil {
		groups = []FilterGroup{}
	}
	return &Query{
		GroupClause: And,
		Groups:      groups,
		PgNum:       1,
		PgSize:      DefaultPageSize,
		SrtDir:      "asc",
		SrtKey:      TermInsertionTimestamp,
	}
}

// String renders the query as JSON.
func (q *Query) String() string {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("<invalid query: %v>", err)
	}
	return string(b)
}

// Page returns the request body for page n (1-based).
func (q *Query) Page(n int) ([]byte, error) {
	cp := *q
	cp.PgNum = n
	if cp.PgSize <= 0 {
		cp.PgSize = DefaultPageSize
	}
	return json.Marshal(&cp)
}

// PageSize returns the number of events requested per page.
func (q *Query) PageSize() int {
	if q.PgSize <= 0 {
		return DefaultPageSize
	}
	return q.PgSize
}

// Payload is anything the extraction engine can page through.
type Payload interface {
	Page(n int) ([]byte, error)
	PageSize() int
}

// ErrMalformedQuery is returned for an advanced query that is not a JSON object.
var ErrMalformedQuery = errors.New("malformed advanced query")

// Raw is a pre-built query passed verbatim with --advanced-query. Only the
// paging fields are rewritten.
type Raw struct {
	fields map[string]json.RawMessage
	size   int
}

// ParseRaw validates that s is a JSON object and wraps it.
func ParseRaw(s string) (*Raw, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedQuery)
	}
	r := &Raw{fields: fields, size: DefaultPageSize}
	if v, ok := fields["pgSize"]; ok {
		var size int
		if err := json.Unmarshal(v, &size); err == nil && size > 0 {
			r.size = size
		}
	}
	return r, nil
}

// Page returns the raw query with pgNum set to n.
func (r *Raw) Page(n int) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.fields)+2)
	for k, v := range r.fields {
		out[k] = v
	}
	out["pgNum"] = json.RawMessage(fmt.Sprint(n))
	out["pgSize"] = json.RawMessage(fmt.Sprint(r.size))
	return json.Marshal(out)
}

// PageSize returns the page size of the raw query, DefaultPageSize if unset.
func (r *Raw) PageSize() int {
	return r.size
}

// FormatTimestamp renders t the way the search API expects.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func value(s string) *string {
	return &s
}

// IsIn matches any of values. Each value becomes an IS filter in an OR group.
func IsIn(term string, values ...string) FilterGroup {
	g := FilterGroup{FilterClause: Or}
	for _, v := range values {
		g.Filters = append(g.Filters, Filter{Operator: Is, Term: term, Value: value(v)})
	}
	return g
}

// ExistsFilter requires term to be present.
func ExistsFilter(term string) Filter {
	return Filter{Operator: Exists, Term: term}
}

// TimeRange bounds term by begin and end, both inclusive. A zero bound is
// omitted. It returns nil when both are zero.
func TimeRange(term string, begin, end time.Time) []Filter {
	var filters []Filter
	if !begin.IsZero() {
		filters = append(filters, Filter{Operator: OnOrAfter, Term: term, Value: value(FormatTimestamp(begin))})
	}
	if !end.IsZero() {
		filters = append(filters, Filter{Operator: OnOrBefore, Term: term, Value: value(FormatTimestamp(end))})
	}
	return filters
}
