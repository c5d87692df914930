package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/code42/code42cli/internal/cursor"
	"github.com/code42/code42cli/internal/extraction"
	"github.com/code42/code42cli/internal/output"
	"github.com/code42/code42cli/internal/query"
	"github.com/code42/code42cli/internal/timerange"
)

// searchFlags collects the flags shared by search, write-to and send-to.
type searchFlags struct {
	opts   query.Options
	format string
}

func addSearchFlags(cmd *cobra.Command, f *searchFlags) {
	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", string(output.JSON), "output format: "+formatNames())

	fl.StringVarP(&f.opts.Begin, "begin", "b", "", "only events on or after this time: yyyy-MM-dd, 'yyyy-MM-dd HH:MM[:SS]', or a relative value such as 3d, 12h or 15m (UTC)")
	fl.StringVarP(&f.opts.End, "end", "e", "", "only events on or before this time, same formats as --begin")
	fl.StringVarP(&f.opts.UseCheckpoint, "use-checkpoint", "c", "", "resume from and update the named checkpoint")
	fl.StringVar(&f.opts.AdvancedQuery, "advanced-query", "", "raw JSON query; cannot be combined with any filter flag")
	fl.StringVar(&f.opts.SavedSearch, "saved-search", "", "run the saved search with this ID")
	fl.BoolVar(&f.opts.OrQuery, "or-query", false, "combine filter flags with OR instead of AND")
	fl.BoolVar(&f.opts.IncludeNonExposure, "include-non-exposure", false, "include events that have no exposure type")

	fl.StringArrayVarP(&f.opts.Types, "type", "t", nil, "exposure type: "+strings.Join(query.ExposureTypes, ", "))
	fl.StringArrayVar(&f.opts.Usernames, "c42-username", nil, "Code42 username of the device user")
	fl.StringArrayVar(&f.opts.Actors, "actor", nil, "cloud user that caused the event")
	fl.StringArrayVar(&f.opts.MD5s, "md5", nil, "MD5 hash of the file")
	fl.StringArrayVar(&f.opts.SHA256s, "sha256", nil, "SHA256 hash of the file")
	fl.StringArrayVar(&f.opts.Sources, "source", nil, "source of the event, such as Gmail or Office 365")
	fl.StringArrayVar(&f.opts.FileNames, "file-name", nil, "name of the file")
	fl.StringArrayVar(&f.opts.FilePaths, "file-path", nil, "path of the file")
	fl.StringArrayVar(&f.opts.FileCategories, "file-category", nil, "category of the file, such as Document or Image")
	fl.StringArrayVar(&f.opts.ProcessOwners, "process-owner", nil, "user that owned the process that moved the file")
	fl.StringArrayVar(&f.opts.TabURLs, "tab-url", nil, "URL of the active browser tab")
}

func formatNames() string {
	names := make([]string, len(output.Formats))
	for i, f := range output.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

const checkpointNote = `
Checkpoints are stored per profile. Running two extractions with the same
--use-checkpoint name at the same time is not supported; the last one to
finish wins.`

// --- security-data ---

var securityDataCmd = &cobra.Command{
	Use:   "security-data",
	Short: "Search and export file exposure events",
}

var (
	searchCmdFlags  searchFlags
	writeToCmdFlags searchFlags
	sendToCmdFlags  searchFlags
	sendToProtocol  string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Print file exposure events to stdout",
	Long: `Print file exposure events to stdout.

Examples:
  code42 security-data search --begin 3d -t ApplicationRead
  code42 security-data search --use-checkpoint daily --begin 2020-01-20
  code42 security-data search --saved-search 4d2c-1a9e` + checkpointNote,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtraction(cmd, &searchCmdFlags, func(format output.Format) (output.Sink, error) {
			return output.NewWriterSink(cmd.OutOrStdout(), format), nil
		})
	},
}

var writeToCmd = &cobra.Command{
	Use:   "write-to <file>",
	Short: "Append file exposure events to a local file",
	Long:  "Append file exposure events to a local file, one event per line." + checkpointNote,
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtraction(cmd, &writeToCmdFlags, func(format output.Format) (output.Sink, error) {
			return output.OpenFile(args[0], format)
		})
	},
}

var sendToCmd = &cobra.Command{
	Use:   "send-to <host[:port]>",
	Short: "Forward file exposure events to a syslog server",
	Long:  "Forward file exposure events to a syslog server. The port defaults to 514." + checkpointNote,
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := output.ParseProtocol(sendToProtocol)
		if err != nil {
			return usagef("invalid value for '--protocol': %v", err)
		}
		if _, err := output.ServerAddress(args[0]); err != nil {
			return &usageError{err: err}
		}
		return runExtraction(cmd, &sendToCmdFlags, func(format output.Format) (output.Sink, error) {
			s, err := output.DialServer(args[0], protocol, format, 10*time.Second)
			if err != nil {
				return nil, err
			}
			printStep("Sending events to %s over %s", s.Addr(), protocol)
			return s, nil
		})
	},
}

// runExtraction validates flags, resolves the time range, builds the query and
// streams every matching event into the sink returned by openSink.
func runExtraction(cmd *cobra.Command, f *searchFlags, openSink func(output.Format) (output.Sink, error)) error {
	format, err := output.ParseFormat(f.format)
	if err != nil {
		return usagef("invalid value for '-f' / '--format': %v", err)
	}
	if err := f.opts.Validate(); err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.profile()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	checkpoints := cursor.New(e.store, p.Name)

	var r timerange.Range
	if f.opts.AdvancedQuery == "" && f.opts.SavedSearch == "" {
		r, err = timerange.Resolve(ctx, timerange.Options{
			Begin:         f.opts.Begin,
			End:           f.opts.End,
			Checkpoint:    f.opts.UseCheckpoint,
			Lookup:        checkpoints.Get,
			RetentionDays: e.cfg.Search.RetentionDays,
			Logger:        e.logger,
		})
		if err != nil {
			return err
		}
		if r.Notice != "" {
			printStep("%s", r.Notice)
		}
	}

	client, err := e.client(p)
	if err != nil {
		return err
	}

	f.opts.PageSize = e.cfg.Search.PageSize
	payload, err := query.Build(ctx, f.opts, r, client)
	if errors.Is(err, query.ErrMalformedQuery) {
		return usagef("invalid value for '--advanced-query': %v", err)
	}
	if err != nil {
		return err
	}

	sink, err := openSink(format)
	if err != nil {
		return err
	}

	engOpts := extraction.Options{
		Source: client,
		Sink:   sink,
		Logger: e.logger,
	}
	if f.opts.UseCheckpoint != "" {
		engOpts.Checkpoints = checkpoints
		engOpts.CheckpointName = f.opts.UseCheckpoint
	}

	res, runErr := extraction.New(engOpts).Run(ctx, payload)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing output: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	if res.Events == 0 {
		printWarning("No results found.")
	}
	return nil
}

// --- checkpoints ---

var clearCheckpointCmd = &cobra.Command{
	Use:   "clear-checkpoint <name>",
	Short: "Remove a stored checkpoint so the next run starts from --begin",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.profile()
		if err != nil {
			return err
		}
		if err := cursor.New(e.store, p.Name).Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Cleared checkpoint %s for profile %s", args[0], p.Name)
		return nil
	},
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list-checkpoints",
	Short: "Show the stored checkpoints of the current profile",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.profile()
		if err != nil {
			return err
		}
		entries, err := cursor.New(e.store, p.Name).List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			printWarning("No checkpoints stored for profile %s.", p.Name)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCHECKPOINT\tUPDATED")
		for _, c := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Time().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// --- saved searches ---

var savedSearchCmd = &cobra.Command{
	Use:   "saved-search",
	Short: "Inspect saved searches stored on the server",
}

var savedSearchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.profile()
		if err != nil {
			return err
		}
		client, err := e.client(p)
		if err != nil {
			return err
		}
		searches, err := client.SavedSearches(cmd.Context())
		if err != nil {
			return err
		}
		if len(searches) == 0 {
			printWarning("No saved searches found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tNOTES")
		for _, s := range searches {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Notes)
		}
		return w.Flush()
	},
}

var savedSearchShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved search as JSON",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.profile()
		if err != nil {
			return err
		}
		client, err := e.client(p)
		if err != nil {
			return err
		}
		s, err := client.SavedSearch(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

func init() {
	addSearchFlags(searchCmd, &searchCmdFlags)
	addSearchFlags(writeToCmd, &writeToCmdFlags)
	addSearchFlags(sendToCmd, &sendToCmdFlags)
	sendToCmd.Flags().StringVarP(&sendToProtocol, "protocol", "p", string(output.UDP), "transport: TCP or UDP")

	savedSearchCmd.AddCommand(savedSearchListCmd)
	savedSearchCmd.AddCommand(savedSearchShowCmd)

	securityDataCmd.AddCommand(searchCmd)
	securityDataCmd.AddCommand(writeToCmd)
	securityDataCmd.AddCommand(sendToCmd)
	securityDataCmd.AddCommand(clearCheckpointCmd)
	securityDataCmd.AddCommand(listCheckpointsCmd)
	securityDataCmd.AddCommand(savedSearchCmd)
}
