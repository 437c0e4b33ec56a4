package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core"
	"github.com/agenthands/hvaudit/internal/core/audit"
)

var (
	// Global flags
	configPath string
	verbose    bool
	nonStrict  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hvaudit",
	Short: "Fail-closed audit pipeline for the HVT-A blinded comparison study",
	Long: `hvaudit extracts comparison records from an HV evidence tree, joins them
against the blinding authority documents, and verifies every dataset it writes.

Every stage is fail-closed: by default it stops at the first problem and writes
nothing. Pass --non-strict to enumerate every problem instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return usageError{err}
		}
		cfg.ApplyEnv()

		zc := zap.NewProductionConfig()
		level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return usageError{fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)}
		}
		zc.Level = level
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file (defaults are built in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonStrict, "non-strict", false, "collect every problem instead of stopping at the first")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(extractCmd, blindCmd, verifyReadyCmd, verifyBlindingCmd, resolveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hvaudit:", err)
		os.Exit(exitCode(err))
	}
}

// usageError marks errors caused by how the command was invoked: bad flags,
// bad config, or missing input files.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var u usageError
	if errors.As(err, &u) {
		return 2
	}
	return 1
}

func policy() audit.Policy {
	if nonStrict {
		return audit.CollectAll
	}
	return audit.StopAtFirst
}

// requireFiles fails with a usage error when any named input is missing.
func requireFiles(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return usageError{fmt.Errorf("missing input: %w", err)}
		}
	}
	return nil
}

func newAuditor() (*core.Auditor, error) {
	return core.NewAuditor(cfg, nil, logger)
}
