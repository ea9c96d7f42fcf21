// Package cmd defines and implements the CLI commands for the techscan
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/app"
	"github.com/JakeFAU/techscan/internal/config"
	"github.com/JakeFAU/techscan/internal/logging"
)

// Service is what subcommands need from the application container. It lets
// tests inject a fake.
type Service interface {
	Scan(ctx context.Context, urls []string) (Outcome, error)
	Names() []string
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newService is the application factory, replaced in tests.
var newService = func(ctx context.Context, cfg config.Config) (Service, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return appService{App: a}, nil
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "techscan",
		Short: "Capture web pages and detect the technologies they use",
		Long: `techscan fetches a list of pages, captures each page together with the
stylesheets and scripts it references, and classifies the captured bytes
against a table of technology signatures (frameworks, analytics, CMSs).

Pages are split into contiguous chunks, one worker per chunk. Results are
written once, after every worker has reported.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./techscan.yaml or $XDG_CONFIG_HOME/techscan/techscan.yaml)")

	cmd.AddCommand(newScanCmd(&cfgFile))
	cmd.AddCommand(newSignaturesCmd(&cfgFile))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "techscan:", err)
		os.Exit(1)
	}
}
