// Command deskctl is the staff command line client of the service desk.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/deskapi"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/keyring"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        cliConfig
	logger     *slog.Logger

	// openTokens is swapped in tests.
	openTokens func(cfg cliConfig) (ports.TokenStore, error)
}

func newApp() *app {
	return &app{openTokens: openKeyringTokens}
}

func openKeyringTokens(cfg cliConfig) (ports.TokenStore, error) {
	ring, err := keyring.Open(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return keyring.NewTokenStore(ring, cfg.profile()), nil
}

func (a *app) tokens() (ports.TokenStore, error) {
	return a.openTokens(a.cfg)
}

func (a *app) api() (*deskapi.Client, error) {
	tokens, err := a.tokens()
	if err != nil {
		return nil, err
	}
	return deskapi.NewClient(a.cfg.Server, tokens, nil)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Staff client for the service desk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.LogLevel
			logCfg.Format = "text"
			logCfg.Output = cmd.ErrOrStderr()
			logCfg.ServiceName = appName
			a.logger = logging.NewLogger(logCfg)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", defaultConfigPath(), "config file")
	flags.String("server", "", "service desk base URL")
	flags.String("state-dir", "", "directory for local state and the credential file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newTokenCmd(a),
		newWhoamiCmd(a),
		newWatchCmd(a),
		newTicketCmd(a),
		newNotificationsCmd(a),
	)
	return root
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(newApp())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
