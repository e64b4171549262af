// Package cmd defines the guideline-archiver command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/guideline-archiver/internal/config"
	"github.com/JakeFAU/guideline-archiver/internal/logging"
)

// ErrNothingToProcess signals a run that completed without archiving anything.
var ErrNothingToProcess = errors.New("nothing fetched or eligible to process")

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitNothing = 3
)

// envKeyType is the key for storing the loaded env in the command context.
type envKeyType string

const envKey envKeyType = "env"

// env holds what every subcommand needs once configuration is loaded.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "guideline-archiver",
		Short: "Archives EBPNet clinical guidelines into a resumable local dataset.",
		Long: `guideline-archiver pages through the EBPNet guideline search API, keeps the
publicly accessible guidelines that have not been archived yet, captures each one as
a PDF and appends its metadata to a CSV record store.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(envKey).(*env); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newArchiveCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	rt, ok := ctx.Value(envKey).(*env)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM stop
// dispatch of new work.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNothingToProcess):
		return ExitNothing
	default:
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitFatal
	}
}
