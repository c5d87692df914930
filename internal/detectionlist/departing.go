package detectionlist

import (
	"context"
	"log/slog"

	"github.com/code42/code42cli/internal/bulk"
	"github.com/code42/code42cli/internal/sdk"
)

// DepartingEmployeeHeaders are the columns of a departing employee bulk add file.
var DepartingEmployeeHeaders = []string{"username", "cloud_alias", "departure_date", "notes"}

// DepartingEmployee is a departing employee to add.
type DepartingEmployee struct {
	Username      string
	CloudAlias    string
	DepartureDate string
	Notes         string
}

// DepartingEmployees manages the departing employee list.
type DepartingEmployees struct {
	list
}

// NewDepartingEmployees returns the departing employee list backed by c.
func NewDepartingEmployees(c Client, logger *slog.Logger) *DepartingEmployees {
	return &DepartingEmployees{list{
		client:  c,
		kind:    sdk.DepartingEmployee,
		display: "departing-employee list",
		logger:  loggerOrDefault(logger),
	}}
}

// Add puts e on the list. An invalid departure date is a usage error.
func (d *DepartingEmployees) Add(ctx context.Context, e DepartingEmployee) error {
	if e.DepartureDate != "" {
		date, ok := ParseDepartureDate(e.DepartureDate)
		if !ok {
			return &ValueError{Flag: "--departure-date", Value: e.DepartureDate, Reason: "expected format yyyy-MM-dd"}
		}
		e.DepartureDate = date
	}
	return d.add(ctx, e)
}

func (d *DepartingEmployees) add(ctx context.Context, e DepartingEmployee) error {
	id, err := d.userID(ctx, e.Username)
	if err != nil {
		return err
	}
	if err := d.list.add(ctx, e.Username, id, e.DepartureDate); err != nil {
		return err
	}
	if err := d.updateUser(ctx, id, e.CloudAlias, nil, e.Notes); err != nil {
		return err
	}
	d.logger.Debug("added departing employee", "username", e.Username, "departure_date", e.DepartureDate)
	return nil
}

// FromRow converts a bulk file row. A departure date that does not parse is
// dropped rather than rejected.
func (d *DepartingEmployees) FromRow(row bulk.Row) DepartingEmployee {
	date, ok := ParseDepartureDate(row["departure_date"])
	if !ok && row["departure_date"] != "" {
		d.logger.Warn("ignoring unparseable departure date",
			"username", row["username"], "departure_date", row["departure_date"])
	}
	return DepartingEmployee{
		Username:      row["username"],
		CloudAlias:    row["cloud_alias"],
		DepartureDate: date,
		Notes:         row["notes"],
	}
}

// BulkAdd adds every row on p.
func (d *DepartingEmployees) BulkAdd(ctx context.Context, p *bulk.Processor, rows []bulk.Row) *bulk.Report {
	employees := make([]DepartingEmployee, len(rows))
	for i, r := range rows {
		employees[i] = d.FromRow(r)
	}
	return bulk.Run(ctx, p, employees, func(e DepartingEmployee) string { return e.Username }, d.add)
}
