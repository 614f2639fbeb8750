package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"matchpredict/internal/config"
	"matchpredict/internal/ledger"
	"matchpredict/internal/pipeline"
	"matchpredict/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "matchpredict",
	Short:         "matchpredict trains and compares match-outcome classifiers.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		log, err := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
		if err != nil {
			return err
		}
		cmd.SetContext(setGlobals(cmd.Context(), &globals{cfg: cfg, log: log}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $MATCHPREDICT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so long searches stop between jobs.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		stop()
		os.Exit(1)
	}
}

// newRunner builds a pipeline runner from the command globals. With
// record set the run is written to the ledger; the returned close func
// must be called either way.
func newRunner(cmd *cobra.Command, record bool) (*pipeline.Runner, func(), error) {
	g := getGlobals(cmd.Context())
	var (
		opts    []pipeline.Option
		closeFn = func() {}
	)
	if record && g.cfg.LedgerPath != "" {
		l, err := ledger.Open(cmd.Context(), g.cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithLedger(l))
		closeFn = func() { l.Close() }
	}
	r, err := pipeline.NewRunner(g.cfg, g.log, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return r, closeFn, nil
}

// rosterArgs returns args, or the configured roster when args is empty.
func rosterArgs(cmd *cobra.Command, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return getGlobals(cmd.Context()).cfg.Models
}
