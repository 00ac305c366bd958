package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/config"
	"github.com/Mindburn-Labs/tradegate/pkg/identity"
	"github.com/Mindburn-Labs/tradegate/pkg/logging"
	"github.com/Mindburn-Labs/tradegate/pkg/observability"
)

// cli carries the flags and dependency constructors shared by every command.
type cli struct {
	configPath string
	home       string
	stdout     io.Writer
	stderr     io.Writer

	cfg    *config.Config
	logger *slog.Logger

	newProvider   func(cfg *config.Config) (identity.Provider, error)
	newCalculator func(cfg *config.Config, logger *slog.Logger, obs *observability.Provider) (calculator.Calculator, error)
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:        stdout,
		stderr:        stderr,
		newProvider:   remoteProvider,
		newCalculator: httpCalculator,
	}
}

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	return runWith(newCLI(stdout, stderr), args)
}

func runWith(c *cli, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(c.stderr, "Error:", err)
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tradegate",
		Short:         "Tariff calculator console and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logging.New(c.stderr, cfg.LogLevel, cfg.LogFormat)

			if c.home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				c.home = filepath.Join(dir, ".tradegate")
			}
			return os.MkdirAll(c.home, 0o700)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.FileEnv+")")
	root.PersistentFlags().StringVar(&c.home, "home", "", "local state dir (default ~/.tradegate)")

	root.AddCommand(
		c.serveCmd(),
		c.signupCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.countryCmd(),
		c.calcCmd(),
		c.historyCmd(),
	)
	return root
}

var errNoProvider = errors.New("no identity provider configured: set AUTH_PROVIDER_URL and AUTH_PUBLIC_KEY")

// remoteProvider connects to the configured GoTrue instance. The in-memory
// provider would forget every account between invocations, so the terminal
// client refuses to run without a real one.
func remoteProvider(cfg *config.Config) (identity.Provider, error) {
	if cfg.DevAuth() {
		return nil, errNoProvider
	}
	return identity.NewGoTrueClient(cfg.AuthProviderURL, cfg.AuthPublicKey), nil
}

func httpCalculator(cfg *config.Config, logger *slog.Logger, obs *observability.Provider) (calculator.Calculator, error) {
	return calculator.New(cfg.CalcServiceURL,
		calculator.WithTimeout(cfg.CalcTimeout),
		calculator.WithLogger(logger),
		calculator.WithObservability(obs),
	)
}
