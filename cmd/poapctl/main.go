// Command poapctl performs operator tasks against a poapgate deployment:
// schema migrations, milestone seeding, reconcile passes, account
// re-evaluation and artwork uploads.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/poapgate/internal/flagx"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server"
	"github.com/dmitrijs2005/poapgate/internal/server/config"
	"github.com/spf13/cobra"
)

const programName = "poapctl"

var globalFlags = struct {
	configFile string
	dsn        string
	debug      bool
}{}

// open loads configuration and wires the components. The caller closes them.
func open(cmd *cobra.Command, migrate bool) (*server.Components, error) {
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("dsn") {
		cfg.DatabaseDSN = globalFlags.dsn
	}
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	logger := logging.NewJSON(cmd.ErrOrStderr(), level).With("component", programName)
	return server.Open(cmd.Context(), cfg, logger, migrate)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Operate a poapgate deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", os.Getenv(flagx.ConfigEnvVar), "path to config file")
	root.PersistentFlags().StringVar(&globalFlags.dsn, "dsn", "", "database DSN (overrides config)")
	root.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	root.AddCommand(migrateCommand())
	root.AddCommand(milestonesCommand())
	root.AddCommand(reconcileCommand())
	root.AddCommand(evaluateCommand())
	root.AddCommand(artworkCommand())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		stop()
		os.Exit(1)
	}
}
