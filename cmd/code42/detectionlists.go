package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code42/code42cli/internal/bulk"
	"github.com/code42/code42cli/internal/detectionlist"
	"github.com/code42/code42cli/internal/sdk"
)

// listClient opens the environment and returns an API client for the current
// profile. The returned func releases the environment.
func listClient() (*sdk.Client, *env, func(), error) {
	e, err := openEnv()
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := e.profile()
	if err != nil {
		e.Close()
		return nil, nil, nil, err
	}
	c, err := e.client(p)
	if err != nil {
		e.Close()
		return nil, nil, nil, err
	}
	return c, e, func() { e.Close() }, nil
}

// runBulk reports a finished batch and fails when any row failed.
func runBulk(ctx context.Context, e *env, rows int, run func(context.Context, *bulk.Processor) *bulk.Report) error {
	p := bulk.NewProcessor(e.cfg.Bulk.Workers)
	printStep("Processing %d rows with %d workers...", rows, e.cfg.Bulk.Workers)
	report := run(ctx, p)
	for _, re := range report.Errors {
		printError("%v", re)
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%d of %d rows failed", report.Failed(), report.Total)
	}
	printSuccess("Processed %d rows", report.Succeeded)
	return nil
}

func generateTemplate(cmd string, list string, path string) error {
	var (
		headers []string
		name    string
	)
	switch cmd {
	case "add":
		if list == "departing-employee" {
			headers = detectionlist.DepartingEmployeeHeaders
		} else {
			headers = detectionlist.HighRiskEmployeeHeaders
		}
		name = list + "_bulk_add"
	case "remove":
		headers = []string{"username"}
		name = list + "_bulk_remove"
	default:
		return usagef("invalid choice: %s. (choose from add, remove)", cmd)
	}
	out, err := bulk.GenerateTemplate(path, name, headers)
	if err != nil {
		return err
	}
	printSuccess("Template written to %s", out)
	return nil
}

// --- departing-employee ---

var departingEmployeeCmd = &cobra.Command{
	Use:   "departing-employee",
	Short: "Add and remove employees from the departing employees detection list",
}

var (
	deCloudAlias    string
	deDepartureDate string
	deNotes         string
	deTemplatePath  string
)

var departingEmployeeAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a user to the departing employees detection list",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		err = detectionlist.NewDepartingEmployees(client, e.logger).Add(cmd.Context(), detectionlist.DepartingEmployee{
			Username:      args[0],
			CloudAlias:    deCloudAlias,
			DepartureDate: deDepartureDate,
			Notes:         deNotes,
		})
		if err != nil {
			return err
		}
		printSuccess("Added %s to the departing employees list", args[0])
		return nil
	},
}

var departingEmployeeRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a user from the departing employees detection list",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		if err := detectionlist.NewDepartingEmployees(client, e.logger).Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Removed %s from the departing employees list", args[0])
		return nil
	},
}

var departingEmployeeBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Tools for managing departing employees in bulk",
}

var departingEmployeeBulkAddCmd = &cobra.Command{
	Use:   "add <csv-file>",
	Short: "Add users from a CSV file (username,cloud_alias,departure_date,notes)",
	Long: `Add users from a CSV file with the columns username, cloud_alias,
departure_date and notes. A header row is optional. Rows with a malformed
departure date are added without one.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := bulk.ReadCSVFile(args[0], detectionlist.DepartingEmployeeHeaders)
		if err != nil {
			return err
		}
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		de := detectionlist.NewDepartingEmployees(client, e.logger)
		return runBulk(cmd.Context(), e, len(rows), func(ctx context.Context, p *bulk.Processor) *bulk.Report {
			return de.BulkAdd(ctx, p, rows)
		})
	},
}

var departingEmployeeBulkRemoveCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Remove users listed one per line in a file",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		usernames, err := bulk.ReadFlatFileAt(args[0], "username")
		if err != nil {
			return err
		}
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		de := detectionlist.NewDepartingEmployees(client, e.logger)
		return runBulk(cmd.Context(), e, len(usernames), func(ctx context.Context, p *bulk.Processor) *bulk.Report {
			return de.BulkRemove(ctx, p, usernames)
		})
	},
}

var departingEmployeeTemplateCmd = &cobra.Command{
	Use:   "generate-template <add|remove>",
	Short: "Write a template file for a bulk command",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateTemplate(args[0], "departing-employee", deTemplatePath)
	},
}

// --- high-risk-employee ---

var highRiskEmployeeCmd = &cobra.Command{
	Use:   "high-risk-employee",
	Short: "Add and remove employees from the high risk employees detection list",
}

var (
	hrCloudAlias   string
	hrRiskTags     []string
	hrNotes        string
	hrTemplatePath string
)

var highRiskEmployeeAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a user to the high risk employees detection list",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := detectionlist.ValidateRiskTags(hrRiskTags); err != nil {
			return err
		}
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		err = detectionlist.NewHighRiskEmployees(client, e.logger).Add(cmd.Context(), detectionlist.HighRiskEmployee{
			Username:   args[0],
			CloudAlias: hrCloudAlias,
			RiskTags:   hrRiskTags,
			Notes:      hrNotes,
		})
		if err != nil {
			return err
		}
		printSuccess("Added %s to the high risk employees list", args[0])
		return nil
	},
}

var highRiskEmployeeRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a user from the high risk employees detection list",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		if err := detectionlist.NewHighRiskEmployees(client, e.logger).Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Removed %s from the high risk employees list", args[0])
		return nil
	},
}

var highRiskEmployeeBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Tools for managing high risk employees in bulk",
}

var highRiskEmployeeBulkAddCmd = &cobra.Command{
	Use:   "add <csv-file>",
	Short: "Add users from a CSV file (username,cloud_alias,risk_tag,notes)",
	Long: `Add users from a CSV file with the columns username, cloud_alias,
risk_tag and notes. risk_tag holds space separated tags. A header row is
optional.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := bulk.ReadCSVFile(args[0], detectionlist.HighRiskEmployeeHeaders)
		if err != nil {
			return err
		}
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		hr := detectionlist.NewHighRiskEmployees(client, e.logger)
		return runBulk(cmd.Context(), e, len(rows), func(ctx context.Context, p *bulk.Processor) *bulk.Report {
			return hr.BulkAdd(ctx, p, rows)
		})
	},
}

var highRiskEmployeeBulkRemoveCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Remove users listed one per line in a file",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		usernames, err := bulk.ReadFlatFileAt(args[0], "username")
		if err != nil {
			return err
		}
		client, e, done, err := listClient()
		if err != nil {
			return err
		}
		defer done()

		hr := detectionlist.NewHighRiskEmployees(client, e.logger)
		return runBulk(cmd.Context(), e, len(usernames), func(ctx context.Context, p *bulk.Processor) *bulk.Report {
			return hr.BulkRemove(ctx, p, usernames)
		})
	},
}

var highRiskEmployeeTemplateCmd = &cobra.Command{
	Use:   "generate-template <add|remove>",
	Short: "Write a template file for a bulk command",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateTemplate(args[0], "high-risk-employee", hrTemplatePath)
	},
}

func init() {
	departingEmployeeAddCmd.Flags().StringVar(&deCloudAlias, "cloud-alias", "", "alternative cloud username, such as a personal email")
	departingEmployeeAddCmd.Flags().StringVar(&deDepartureDate, "departure-date", "", "departure date, yyyy-MM-dd")
	departingEmployeeAddCmd.Flags().StringVar(&deNotes, "notes", "", "notes about the employee")
	departingEmployeeTemplateCmd.Flags().StringVarP(&deTemplatePath, "path", "p", ".", "directory to write the template to")

	departingEmployeeBulkCmd.AddCommand(departingEmployeeBulkAddCmd)
	departingEmployeeBulkCmd.AddCommand(departingEmployeeBulkRemoveCmd)
	departingEmployeeBulkCmd.AddCommand(departingEmployeeTemplateCmd)
	departingEmployeeCmd.AddCommand(departingEmployeeAddCmd)
	departingEmployeeCmd.AddCommand(departingEmployeeRemoveCmd)
	departingEmployeeCmd.AddCommand(departingEmployeeBulkCmd)

	highRiskEmployeeAddCmd.Flags().StringVar(&hrCloudAlias, "cloud-alias", "", "alternative cloud username, such as a personal email")
	highRiskEmployeeAddCmd.Flags().StringArrayVarP(&hrRiskTags, "risk-tag", "t", nil, "risk tag, repeatable")
	highRiskEmployeeAddCmd.Flags().StringVar(&hrNotes, "notes", "", "notes about the employee")
	highRiskEmployeeTemplateCmd.Flags().StringVarP(&hrTemplatePath, "path", "p", ".", "directory to write the template to")

	highRiskEmployeeBulkCmd.AddCommand(highRiskEmployeeBulkAddCmd)
	highRiskEmployeeBulkCmd.AddCommand(highRiskEmployeeBulkRemoveCmd)
	highRiskEmployeeBulkCmd.AddCommand(highRiskEmployeeTemplateCmd)
	highRiskEmployeeCmd.AddCommand(highRiskEmployeeAddCmd)
	highRiskEmployeeCmd.AddCommand(highRiskEmployeeRemoveCmd)
	highRiskEmployeeCmd.AddCommand(highRiskEmployeeBulkCmd)
}
