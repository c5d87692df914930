// Package detectionlist adds and removes users on the departing employee and
// high risk employee detection lists, one at a time or in bulk.
package detectionlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/code42/code42cli/internal/bulk"
	"github.com/code42/code42cli/internal/sdk"
)

// Client is the subset of the API client the lists need.
type Client interface {
	UserByUsername(ctx context.Context, username string) (*sdk.User, error)
	AddToList(ctx context.Context, list sdk.DetectionList, userID, departureDate string) error
	RemoveFromList(ctx context.Context, list sdk.DetectionList, userID string) error
	AddCloudAliases(ctx context.Context, userID string, aliases ...string) error
	AddRiskFactors(ctx context.Context, userID string, tags ...string) error
	UpdateNotes(ctx context.Context, userID, notes string) error
}

// UserNotFoundError is returned when a username does not resolve to a user.
type UserNotFoundError struct {
	Username string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("User '%s' does not exist.", e.Username)
}

func (e *UserNotFoundError) Unwrap() error { return sdk.ErrUserNotFound }

// AlreadyOnListError is returned when adding a user that is already listed.
type AlreadyOnListError struct {
	Username string
	List     string
}

func (e *AlreadyOnListError) Error() string {
	return fmt.Sprintf("'%s' is already on the %s.", e.Username, e.List)
}

func (e *AlreadyOnListError) Unwrap() error { return sdk.ErrAlreadyOnList }

// ValueError reports an invalid value supplied for a flag.
type ValueError struct {
	Flag   string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid value for '%s' (%q): %s", e.Flag, e.Value, e.Reason)
}

// Usage marks the error as a command line usage problem.
func (e *ValueError) Usage() bool { return true }

// list holds what both detection lists share.
type list struct {
	client  Client
	kind    sdk.DetectionList
	display string
	logger  *slog.Logger
}

func (l *list) userID(ctx context.Context, username string) (string, error) {
	u, err := l.client.UserByUsername(ctx, username)
	if errors.Is(err, sdk.ErrUserNotFound) {
		return "", &UserNotFoundError{Username: username}
	}
	if err != nil {
		return "", err
	}
	return u.UserUID, nil
}

func (l *list) add(ctx context.Context, username, userID, departureDate string) error {
	err := l.client.AddToList(ctx, l.kind, userID, departureDate)
	if errors.Is(err, sdk.ErrAlreadyOnList) {
		return &AlreadyOnListError{Username: username, List: l.display}
	}
	return err
}

// Remove takes username off the list.
func (l *list) Remove(ctx context.Context, username string) error {
	id, err := l.userID(ctx, username)
	if err != nil {
		return err
	}
	if err := l.client.RemoveFromList(ctx, l.kind, id); err != nil {
		return err
	}
	l.logger.Debug("removed from detection list", "list", l.kind, "username", username)
	return nil
}

// BulkRemove removes every username on p.
func (l *list) BulkRemove(ctx context.Context, p *bulk.Processor, usernames []string) *bulk.Report {
	return bulk.Run(ctx, p, usernames, func(u string) string { return u }, l.Remove)
}

func (l *list) updateUser(ctx context.Context, userID, cloudAlias string, riskTags []string, notes string) error {
	if cloudAlias != "" {
		if err := l.client.AddCloudAliases(ctx, userID, cloudAlias); err != nil {
			return err
		}
	}
	if len(riskTags) > 0 {
		if err := l.client.AddRiskFactors(ctx, userID, riskTags...); err != nil {
			return err
		}
	}
	if notes != "" {
		if err := l.client.UpdateNotes(ctx, userID, notes); err != nil {
			return err
		}
	}
	return nil
}

const departureDateLayout = "2006-01-02"

// ParseDepartureDate returns s normalised to YYYY-MM-DD, or false when s is
// empty or not a real calendar date.
func ParseDepartureDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	t, err := time.Parse(departureDateLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(departureDateLayout), true
}

// RiskTags are the accepted high risk employee tags.
var RiskTags = []string{
	"HIGH_IMPACT_EMPLOYEE",
	"ELEVATED_ACCESS_PRIVILEGES",
	"PERFORMANCE_CONCERNS",
	"FLIGHT_RISK",
	"SUSPICIOUS_SYSTEM_ACTIVITY",
	"POOR_SECURITY_PRACTICES",
	"CONTRACT_EMPLOYEE",
}

// ValidateRiskTags checks that every tag is one of RiskTags.
func ValidateRiskTags(tags []string) error {
	for _, t := range tags {
		if !slices.Contains(RiskTags, t) {
			return &ValueError{
				Flag:   "--risk-tag",
				Value:  t,
				Reason: "invalid choice (choose from " + strings.Join(RiskTags, ", ") + ")",
			}
		}
	}
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
