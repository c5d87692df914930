package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/code42/code42cli/internal/config"
	"github.com/code42/code42cli/internal/profile"
	"github.com/code42/code42cli/internal/storage"
)

// readPassword prompts on stderr. A terminal is read with echo off; piped
// input is read up to the first newline.
func readPassword(in io.Reader) (string, error) {
	fmt.Fprint(stderr, "Password: ")
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printProfile(p storage.Profile) {
	name := p.Name
	if p.IsDefault {
		name += " (default)"
	}
	printStatus("Profile", "%s", name)
	printStatus("Server", "%s", p.ServerURL)
	printStatus("Username", "%s", p.Username)
	printStatus("Ignore SSL errors", "%t", p.IgnoreSSLErrors)
	printStatus("Created", "%s", p.CreatedAt.Format(time.RFC3339))
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var (
	profileCreateName     string
	profileCreateServer   string
	profileCreateUsername string
	profileCreatePassword string
	profileCreateInsecure bool
)

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a profile",
	Long: `Create a profile. The first profile becomes the default.

The password is read from --password, or prompted for. It is kept in the
platform secret store, never in the profile database. CODE42_PASSWORD
overrides it at run time.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		spec := profile.Spec{
			Name:            profileCreateName,
			ServerURL:       profileCreateServer,
			Username:        profileCreateUsername,
			Password:        profileCreatePassword,
			IgnoreSSLErrors: profileCreateInsecure,
		}
		if err := e.profiles.Validate(spec); err != nil {
			return err
		}
		if spec.Password == "" && os.Getenv(config.PasswordEnv) == "" {
			if spec.Password, err = readPassword(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		p, err := e.profiles.Create(spec)
		if err != nil {
			return err
		}
		if spec.Password == "" {
			printWarning("No password stored for profile %s.", p.Name)
		}
		printSuccess("Created profile %s", p.Name)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a profile (default: the current profile)",
	Args:  maximumArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		name := profileName
		if len(args) == 1 {
			name = args[0]
		}
		p, err := e.profiles.Get(name)
		if err != nil {
			return err
		}
		printProfile(p)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		profiles, err := e.profiles.List()
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			printWarning("No profiles found. Create one with 'code42 profile create'.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSERVER\tUSERNAME\tDEFAULT")
		for _, p := range profiles {
			def := ""
			if p.IsDefault {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.ServerURL, p.Username, def)
		}
		return w.Flush()
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the default",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.profiles.Use(args[0]); err != nil {
			return err
		}
		printSuccess("%s is now the default profile", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile together with its checkpoints and password",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.profiles.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted profile %s", args[0])
		return nil
	},
}

var profileResetPasswordCmd = &cobra.Command{
	Use:   "reset-pw [name]",
	Short: "Change the stored password of a profile",
	Args:  maximumArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		name := profileName
		if len(args) == 1 {
			name = args[0]
		}
		p, err := e.profiles.Get(name)
		if err != nil {
			return err
		}
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if password == "" {
			return usagef("password must not be empty")
		}
		if err := e.profiles.SetPassword(p.Name, password); err != nil {
			return err
		}
		printSuccess("Password updated for profile %s", p.Name)
		return nil
	},
}

var profileVerifyCmd = &cobra.Command{
	Use:   "verify [name]",
	Short: "Check that a profile can sign in to its server",
	Args:  maximumArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		name := profileName
		if len(args) == 1 {
			name = args[0]
		}
		p, err := e.profiles.Get(name)
		if err != nil {
			return err
		}
		client, err := e.client(p)
		if err != nil {
			return err
		}
		if err := client.Authenticate(cmd.Context()); err != nil {
			return fmt.Errorf("signing in to %s as %s: %w", p.ServerURL, p.Username, err)
		}
		printSuccess("Signed in to %s as %s", p.ServerURL, p.Username)
		return nil
	},
}

func init() {
	f := profileCreateCmd.Flags()
	f.StringVarP(&profileCreateName, "name", "n", "", "profile name")
	f.StringVarP(&profileCreateServer, "server", "s", "", "Code42 server URL or host")
	f.StringVarP(&profileCreateUsername, "username", "u", "", "Code42 username")
	f.StringVar(&profileCreatePassword, "password", "", "password (prompted for when omitted)")
	f.BoolVar(&profileCreateInsecure, "disable-ssl-errors", false, "do not verify the server certificate")

	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileResetPasswordCmd)
	profileCmd.AddCommand(profileVerifyCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return &usageError{err: err}
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return &usageError{err: err}
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
