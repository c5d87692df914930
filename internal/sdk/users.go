package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrUserNotFound is returned when no user matches a username.
var ErrUserNotFound = errors.New("user not found")

// ErrAlreadyOnList is returned when adding a user already on a detection list.
var ErrAlreadyOnList = errors.New("user already on list")

// User is a Code42 user account.
type User struct {
	UserUID  string `json:"userUid"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Active   bool   `json:"active"`
}

type usersResponse struct {
	Data struct {
		TotalCount int    `json:"totalCount"`
		Users      []User `json:"users"`
	} `json:"data"`
}

// UserByUsername looks up a user. Usernames are matched exactly.
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	var resp usersResponse
	path := "/api/User?username=" + url.QueryEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("looking up user %s: %w", username, err)
	}
	for _, u := range resp.Data.Users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
}

// DetectionList names a server side watch list.
type DetectionList string

const (
	DepartingEmployee DetectionList = "departingemployee"
	HighRiskEmployee  DetectionList = "highriskemployee"
)

type listMember struct {
	TenantID      string `json:"tenantId"`
	UserID        string `json:"userId"`
	DepartureDate string `json:"departureDate,omitempty"`
}

// AddToList puts userID on list. departureDate (YYYY-MM-DD) only applies to
// the departing employee list and may be empty.
func (c *Client) AddToList(ctx context.Context, list DetectionList, userID, departureDate string) error {
	tenant, err := c.TenantID(ctx)
	if err != nil {
		return err
	}
	body := listMember{TenantID: tenant, UserID: userID}
	if list == DepartingEmployee {
		body.DepartureDate = departureDate
	}
	err = c.do(ctx, http.MethodPost, "/svc/api/v2/"+string(list)+"/add", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(apiErr.Body, "User already on list") {
		return fmt.Errorf("%w: %s", ErrAlreadyOnList, userID)
	}
	if err != nil {
		return fmt.Errorf("adding %s to %s: %w", userID, list, err)
	}
	return nil
}

// RemoveFromList takes userID off list.
func (c *Client) RemoveFromList(ctx context.Context, list DetectionList, userID string) error {
	tenant, err := c.TenantID(ctx)
	if err != nil {
		return err
	}
	body := listMember{TenantID: tenant, UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/svc/api/v2/"+string(list)+"/remove", body, nil); err != nil {
		return fmt.Errorf("removing %s from %s: %w", userID, list, err)
	}
	return nil
}

// AddCloudAliases attaches alternate cloud usernames to a detection list user.
func (c *Client) AddCloudAliases(ctx context.Context, userID string, aliases ...string) error {
	return c.updateDetectionUser(ctx, "addcloudusernames", map[string]any{"userId": userID, "cloudUsernames": aliases})
}

// AddRiskFactors attaches risk tags to a detection list user.
func (c *Client) AddRiskFactors(ctx context.Context, userID string, tags ...string) error {
	return c.updateDetectionUser(ctx, "addriskfactors", map[string]any{"userId": userID, "riskFactors": tags})
}

// UpdateNotes replaces the notes of a detection list user.
func (c *Client) UpdateNotes(ctx context.Context, userID, notes string) error {
	return c.updateDetectionUser(ctx, "updatenotes", map[string]any{"userId": userID, "notes": notes})
}

func (c *Client) updateDetectionUser(ctx context.Context, action string, body map[string]any) error {
	tenant, err := c.TenantID(ctx)
	if err != nil {
		return err
	}
	body["tenantId"] = tenant
	if err := c.do(ctx, http.MethodPost, "/svc/api/v2/user/"+action, body, nil); err != nil {
		return fmt.Errorf("detection list user %s: %w", action, err)
	}
	return nil
}
