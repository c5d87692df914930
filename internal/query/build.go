package query

import (
	"context"
	"fmt"

	"github.com/code42/code42cli/internal/timerange"
)

// SavedSearchSource fetches the stored query of a saved search.
type SavedSearchSource interface {
	SavedSearchQuery(ctx context.Context, id string) (*Query, error)
}

// Build turns validated options and a resolved time range into a payload.
// src is only consulted in saved search mode and may be nil otherwise.
func Build(ctx context.Context, opts Options, r timerange.Range, src SavedSearchSource) (Payload, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch {
	case opts.AdvancedQuery != "":
		raw, err := ParseRaw(opts.AdvancedQuery)
		if err != nil {
			return nil, err
		}
		return raw, nil

	case opts.SavedSearch != "":
		if src == nil {
			return nil, fmt.Errorf("saved search %q: no saved search source configured", opts.SavedSearch)
		}
		q, err := src.SavedSearchQuery(ctx, opts.SavedSearch)
		if err != nil {
			return nil, fmt.Errorf("fetching saved search %q: %w", opts.SavedSearch, err)
		}
		return q, nil
	}

	return Literal(opts, r), nil
}

// Literal builds a query from the individual filter flags. Without
// OrQuery every filter is its own group and groups are ANDed. With OrQuery the
// exposure and time filters stay in an AND group and every flag filter is
// collected into a single OR group.
func Literal(opts Options, r timerange.Range) *Query {
	var base []Filter
	if !opts.IncludeNonExposure {
		base = append(base, ExistsFilter(TermExposure))
	}

	term := TermEventTimestamp
	if r.FromCheckpoint {
		term = TermInsertionTimestamp
	}
	timeFilters := TimeRange(term, r.Begin, r.End)

	var literals []FilterGroup
	for _, l := range opts.literals() {
		if len(l.values) > 0 {
			literals = append(literals, IsIn(l.term, l.values...))
		}
	}

	q := New()
	if opts.PageSize > 0 {
		q.PgSize = opts.PageSize
	}

	if opts.OrQuery {
		if first := append(base, timeFilters...); len(first) > 0 {
			q.Groups = append(q.Groups, FilterGroup{FilterClause: And, Filters: first})
		}
		var ored []Filter
		for _, g := range literals {
			ored = append(ored, g.Filters...)
		}
		if len(ored) > 0 {
			q.Groups = append(q.Groups, FilterGroup{FilterClause: Or, Filters: ored})
		}
		return q
	}

	for _, f := range base {
		q.Groups = append(q.Groups, FilterGroup{FilterClause: And, Filters: []Filter{f}})
	}
	if len(timeFilters) > 0 {
		q.Groups = append(q.Groups, FilterGroup{FilterClause: And, Filters: timeFilters})
	}
	q.Groups = append(q.Groups, literals...)
	return q
}
