package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/code42/code42cli/internal/query"
)

const (
	fileEventPath   = "/forensic-search/queryservice/api/v1/fileevent"
	savedSearchPath = "/forensic-search/queryservice/api/v1/saved"
)

// ErrQueryProblems is returned when the search service rejects parts of a query.
var ErrQueryProblems = errors.New("query problems")

// QueryProblem is a complaint the search service raises about a filter.
type QueryProblem struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FileEventResponse is one page of file event search results. Events are kept
// as raw JSON so they can be forwarded unchanged.
type FileEventResponse struct {
	FileEvents []json.RawMessage `json:"fileEvents"`
	TotalCount int               `json:"totalCount"`
	Problems   []QueryProblem    `json:"problems"`
}

// SearchFileEvents runs one page of a file event query. body is the encoded
// query as produced by query.Payload.
func (c *Client) SearchFileEvents(ctx context.Context, body []byte) (*FileEventResponse, error) {
	var resp FileEventResponse
	if err := c.do(ctx, http.MethodPost, fileEventPath, body, &resp); err != nil {
		return nil, fmt.Errorf("searching file events: %w", err)
	}
	if len(resp.Problems) > 0 {
		msgs := make([]string, len(resp.Problems))
		for i, p := range resp.Problems {
			msgs[i] = p.Type
			if p.Description != "" {
				msgs[i] += ": " + p.Description
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrQueryProblems, strings.Join(msgs, "; "))
	}
	return &resp, nil
}

// SavedSearch is a query stored on the server.
type SavedSearch struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Notes       string              `json:"notes"`
	GroupClause query.Clause        `json:"groupClause"`
	Groups      []query.FilterGroup `json:"groups"`
	SrtDir      string              `json:"srtDir"`
	SrtKey      string              `json:"srtKey"`
	CreatedBy   string              `json:"createdByUsername,omitempty"`
	Modified    string              `json:"modifiedTimestamp,omitempty"`
}

type savedSearchResponse struct {
	Searches []SavedSearch `json:"searches"`
}

// SavedSearches lists the saved searches visible to the user.
func (c *Client) SavedSearches(ctx context.Context) ([]SavedSearch, error) {
	var resp savedSearchResponse
	if err := c.do(ctx, http.MethodGet, savedSearchPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing saved searches: %w", err)
	}
	return resp.Searches, nil
}

// SavedSearch returns the saved search with the given id.
func (c *Client) SavedSearch(ctx context.Context, id string) (*SavedSearch, error) {
	var resp savedSearchResponse
	if err := c.do(ctx, http.MethodGet, savedSearchPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("getting saved search %s: %w", id, err)
	}
	if len(resp.Searches) == 0 {
		return nil, fmt.Errorf("getting saved search %s: %w", id, ErrNotFound)
	}
	return &resp.Searches[0], nil
}

// SavedSearchQuery returns the query of a saved search, ready to execute.
func (c *Client) SavedSearchQuery(ctx context.Context, id string) (*query.Query, error) {
	s, err := c.SavedSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Query(), nil
}

// Query converts the saved search into an executable query.
func (s *SavedSearch) Query() *query.Query {
	q := query.New(s.Groups...)
	if s.GroupClause != "" {
		q.GroupClause = s.GroupClause
	}
	if s.SrtDir != "" {
		q.SrtDir = s.SrtDir
	}
	if s.SrtKey != "" {
		q.SrtKey = s.SrtKey
	}
	return q
}
