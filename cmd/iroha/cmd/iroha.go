package cmd

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"iroha/backend/session"
	"iroha/internal/cache"
	"iroha/internal/client"
	"iroha/internal/config"
	"iroha/internal/credentials"
	"iroha/internal/ratelimit"
	"iroha/internal/render"
	"iroha/internal/shell"
	"iroha/internal/shutdown"
	"iroha/internal/tui"
	"iroha/internal/utils"
)

// Version and Commit are set at build time
var (
	Version = "dev"
	Commit  = "unknown"
)

const cleanupTimeout = 5 * time.Second

// Config holds invocation settings that tests override.
type Config struct {
	ConfigPath string              // empty uses the XDG default
	Verbose    bool                // set by -V/--verbose
	RootCAs    *x509.CertPool      // nil uses the system pool
	Keyring    credentials.Keyring // nil uses the OS keyring
	EnvFile    string              // empty uses .env in the working directory
	Getenv     func(string) string // nil uses os.Getenv
}

// Execute runs the CLI with the given arguments and IO streams
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewIroha(stdin, stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewIroha creates the root command with injectable IO
func NewIroha(stdin io.Reader, stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:   "iroha",
		Short: "An interactive Trello client",
		Long: `iroha browses and edits Trello boards, lists and cards.

Run without a command for the line-based shell (type 'help' at the prompt),
or 'iroha browse' for the full-screen browser.`,
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Verbose = true
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.ConfigPath = path
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), stdin, stdout, cfg)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().String("config", "", "Path to config file (default $XDG_CONFIG_HOME/iroha/config.yaml)")

	cmd.AddCommand(newBrowseCmd(stdin, stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdin, stdout, stderr, cfg))
	cmd.AddCommand(newConfigCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// loadConfig reads and validates the config file and applies its logging settings.
func loadConfig(cfg *Config) (*config.Config, error) {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := appCfg.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Fix the value in "+configPath(cfg)+" or run 'iroha config init --force'")
	}
	utils.SetVerboseMode(cfg.Verbose || appCfg.Logging.Verbose)
	return appCfg, nil
}

func configPath(cfg *Config) string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}
	return config.DefaultPath()
}

func newCredentialManager(cfg *Config) *credentials.Manager {
	var opts []credentials.ManagerOption
	if cfg.Keyring != nil {
		opts = append(opts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.EnvFile != "" {
		opts = append(opts, credentials.WithEnvFile(cfg.EnvFile))
	}
	if cfg.Getenv != nil {
		opts = append(opts, credentials.WithGetenv(cfg.Getenv))
	}
	return credentials.NewManager(opts...)
}

// openClient resolves credentials, dials the API and builds the client.
func openClient(ctx context.Context, appCfg *config.Config, cfg *Config) (*client.Client, error) {
	info, err := newCredentialManager(cfg).Resolve(ctx, appCfg.GetKey(), appCfg.GetToken(), appCfg.IsKeyringEnabled())
	if err != nil {
		return nil, err
	}
	if !info.Found {
		return nil, utils.ErrCredentialsNotFound()
	}
	utils.Debugf("Using credentials from %s", info.Source)

	sess, err := session.Dial(ctx, session.Config{
		Host:      appCfg.GetHost(),
		Port:      appCfg.GetPort(),
		Timeout:   appCfg.GetTimeout(),
		RootCAs:   cfg.RootCAs,
		UserAgent: "iroha/" + Version,
	}, session.Secret{Key: info.Key, Token: info.Token})
	if err != nil {
		if errors.Is(err, utils.ErrTransport) {
			return nil, utils.ErrHostUnreachable(appCfg.GetHost(), err)
		}
		return nil, err
	}

	store, err := cache.New(appCfg.GetCacheDriver())
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	pacer := ratelimit.Wrap(sess, ratelimit.Config{MinInterval: appCfg.GetMinInterval()})
	return client.New(pacer, store), nil
}

// withClient runs fn with a connected client under a shutdown manager that
// cancels on SIGINT/SIGTERM and closes the client afterwards.
func withClient(parent context.Context, cfg *Config, fn func(ctx context.Context, appCfg *config.Config, c *client.Client) error) error {
	appCfg, err := loadConfig(cfg)
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager(parent)
	mgr.ListenForSignals()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_ = mgr.Wait(ctx)
	}()

	c, err := openClient(mgr.Context(), appCfg, cfg)
	if err != nil {
		return err
	}
	mgr.RegisterCloser("client", c)

	err = fn(mgr.Context(), appCfg, c)
	if err != nil && mgr.IsShutdown() && errors.Is(err, context.Canceled) {
		utils.Infof("Interrupted, closing the connection")
		return nil
	}
	return err
}

func runShell(parent context.Context, stdin io.Reader, stdout io.Writer, cfg *Config) error {
	return withClient(parent, cfg, func(ctx context.Context, appCfg *config.Config, c *client.Client) error {
		renderer := render.New(stdout, appCfg.GetNameWidth(), appCfg.GetDescWidth())
		sh := shell.New(c, utils.NewLineReader(stdin, stdout), renderer)
		return sh.Run(ctx)
	})
}

func newBrowseCmd(stdin io.Reader, stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse boards, lists and cards in a full-screen view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The browser owns the terminal; log lines go to a file instead.
			logFile, err := utils.RedirectToFile(config.GetStateDir())
			if err != nil {
				utils.Warnf("Could not open log file: %v", err)
			} else {
				defer logFile.Close()
			}

			return withClient(cmd.Context(), cfg, func(ctx context.Context, appCfg *config.Config, c *client.Client) error {
				model := tui.New(ctx, c)
				model.SetDescWidth(appCfg.GetDescWidth())
				p := tea.NewProgram(model,
					tea.WithAltScreen(),
					tea.WithContext(ctx),
					tea.WithInput(stdin),
					tea.WithOutput(stdout),
				)
				_, err := p.Run()
				if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newCredentialsCmd(stdin io.Reader, stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the Trello API key and token",
		Long:  "Store, inspect and remove the Trello API key and token held in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the key and token in the system keyring",
		Long: `Store the key and token in the system keyring (macOS Keychain, Windows
Credential Manager, or Linux Secret Service). Values not given as flags are
prompted for with hidden input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			token, _ := cmd.Flags().GetString("token")
			handler := credentials.NewCLIHandler(newCredentialManager(cfg), stdin, stdout, stderr)
			return handler.Set(cmd.Context(), key, token)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	setCmd.Flags().String("key", "", "Trello API key")
	setCmd.Flags().String("token", "", "Trello token (prefer the prompt; flags end up in shell history)")

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show where credentials are read from",
		Long:  "Resolve credentials (config file > keyring > environment) and display the source. The token is never shown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(newCredentialManager(cfg), stdin, stdout, stderr)
			return handler.Get(cmd.Context(), appCfg.GetKey(), appCfg.GetToken(), appCfg.IsKeyringEnabled())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the key and token from the system keyring",
		Long:  "Remove the stored key and token from the system keyring. The config file and environment are not affected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := credentials.NewCLIHandler(newCredentialManager(cfg), stdin, stdout, stderr)
			return handler.Delete(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	credentialsCmd.AddCommand(setCmd, getCmd, deleteCmd)
	return credentialsCmd
}

func newConfigCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintln(stdout, configPath(cfg))
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the sample config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cfg)
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return utils.WrapWithSuggestion(
					fmt.Errorf("config file already exists: %s", path),
					"Use --force to overwrite it")
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets hidden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cfg)
			if err != nil {
				return err
			}
			shown := *appCfg
			shown.API.Host = appCfg.GetHost()
			shown.API.Port = appCfg.GetPort()
			shown.API.Timeout = appCfg.GetTimeout().String()
			shown.API.MinInterval = appCfg.GetMinInterval().String()
			shown.Cache.Driver = appCfg.GetCacheDriver()
			shown.UI.NameWidth = appCfg.GetNameWidth()
			shown.UI.DescWidth = appCfg.GetDescWidth()
			shown.Trello.Key = redact(appCfg.GetKey())
			shown.Trello.Token = redact(appCfg.GetToken())
			shown.LegacyKey, shown.LegacyToken = "", ""

			data, err := shown.Marshal()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(stdout, string(data))
			return nil
		},
	}

	configCmd.AddCommand(pathCmd, initCmd, showCmd)
	return configCmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "iroha\nVersion: %s\nCommit: %s\n", Version, Commit)
			return nil
		},
	}
}
