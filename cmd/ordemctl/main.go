// ordemctl runs operator tasks against the ordem database: migrations,
// account bootstrap, credits, subscriptions, finance recomputation and
// following a conversation on a running server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ordem/internal/cli"
	"ordem/internal/config"
	"ordem/internal/log"
	"ordem/internal/storage"
)

// app carries what every subcommand needs. The store is opened on first use.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	out    io.Writer
	dbPath string

	st *storage.Store
}

func (a *app) store() (*storage.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := cli.OpenStore(a.logger, a.dbPath)
	if err != nil {
		return nil, err
	}
	a.st = st
	return st, nil
}

func (a *app) close() {
	if a.st != nil {
		_ = a.st.Close()
		a.st = nil
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ordemctl",
		Short:         "Operator tasks for Ordem Essencial",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.dbPath, "db", a.cfg.SQLiteDBPath, "path to the SQLite database")

	root.AddCommand(
		newMigrateCmd(a),
		newUserCmd(a),
		newCreditsCmd(a),
		newSubscriptionCmd(a),
		newPlansCmd(a),
		newRecomputeCmd(a),
		newMessagesCmd(a),
	)
	return root
}

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg)

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		logger.Error("Command failed", log.FieldError, err)
		a.close()
		os.Exit(1)
	}
}
