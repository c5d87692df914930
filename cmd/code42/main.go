package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor     bool
	debug       bool
	profileName string
)

var rootCmd = &cobra.Command{
	Use:           "code42",
	Short:         "Manage detection lists and extract file exposure events",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "profile to use (default: the default profile)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", colorDefault(), "disable colored output")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(securityDataCmd)
	rootCmd.AddCommand(departingEmployeeCmd)
	rootCmd.AddCommand(highRiskEmployeeCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	return exitCode(rootCmd.ExecuteContext(ctx))
}

// usageError marks bad invocations: unknown flags, missing arguments and
// invalid flag values.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) Usage() bool   { return true }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// maximumArgs is cobra.MaximumNArgs reporting a usage error.
func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func isUsage(err error) bool {
	var u interface{ Usage() bool }
	if errors.As(err, &u) && u.Usage() {
		return true
	}
	// cobra reports unknown subcommands as plain errors.
	return strings.HasPrefix(err.Error(), "unknown command")
}

// exitCode reports err to the user and maps it to 0, 1 (runtime) or 2 (usage).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if isUsage(err) {
		printError("%v", err)
		fmt.Fprintln(stderr, "Run 'code42 --help' for usage.")
		return 2
	}
	if errors.Is(err, context.Canceled) {
		printWarning("Interrupted.")
		return 1
	}
	slog.Error("command failed", "error", err)
	printError("%v", err)
	return 1
}

// setupLogging installs the default slog handler on stderr. --debug wins
// over the configured level.
func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	if debug {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
