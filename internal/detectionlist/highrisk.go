package detectionlist

import (
	"context"
	"log/slog"
	"strings"

	"github.com/code42/code42cli/internal/bulk"
	"github.com/code42/code42cli/internal/sdk"
)

// HighRiskEmployeeHeaders are the columns of a high risk employee bulk add
// file. risk_tag holds space separated tags.
var HighRiskEmployeeHeaders = []string{"username", "cloud_alias", "risk_tag", "notes"}

// HighRiskEmployee is a high risk employee to add.
type HighRiskEmployee struct {
	Username   string
	CloudAlias string
	RiskTags   []string
	Notes      string
}

// HighRiskEmployees manages the high risk employee list.
type HighRiskEmployees struct {
	list
}

// NewHighRiskEmployees returns the high risk employee list backed by c.
func NewHighRiskEmployees(c Client, logger *slog.Logger) *HighRiskEmployees {
	return &HighRiskEmployees{list{
		client:  c,
		kind:    sdk.HighRiskEmployee,
		display: "high-risk-employee list",
		logger:  loggerOrDefault(logger),
	}}
}

// Add updates the detection profile of e and then puts it on the list.
func (h *HighRiskEmployees) Add(ctx context.Context, e HighRiskEmployee) error {
	if err := ValidateRiskTags(e.RiskTags); err != nil {
		return err
	}
	id, err := h.userID(ctx, e.Username)
	if err != nil {
		return err
	}
	if err := h.updateUser(ctx, id, e.CloudAlias, e.RiskTags, e.Notes); err != nil {
		return err
	}
	if err := h.list.add(ctx, e.Username, id, ""); err != nil {
		return err
	}
	h.logger.Debug("added high risk employee", "username", e.Username, "risk_tags", e.RiskTags)
	return nil
}

// FromRow converts a bulk file row.
func (h *HighRiskEmployees) FromRow(row bulk.Row) HighRiskEmployee {
	return HighRiskEmployee{
		Username:   row["username"],
		CloudAlias: row["cloud_alias"],
		RiskTags:   strings.Fields(row["risk_tag"]),
		Notes:      row["notes"],
	}
}

// BulkAdd adds every row on p. Rows with unknown risk tags fail individually.
func (h *HighRiskEmployees) BulkAdd(ctx context.Context, p *bulk.Processor, rows []bulk.Row) *bulk.Report {
	employees := make([]HighRiskEmployee, len(rows))
	for i, r := range rows {
		employees[i] = h.FromRow(r)
	}
	return bulk.Run(ctx, p, employees, func(e HighRiskEmployee) string { return e.Username }, h.Add)
}
