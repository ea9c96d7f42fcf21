package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/app"
	"github.com/JakeFAU/techscan/internal/config"
)

type scanFlags struct {
	workers  int
	urls     string
	out      string
	results  string
	markdown string
	render   bool
	auto     bool
}

// newScanCmd creates the 'scan' subcommand.
func newScanCmd(cfgFile *string) *cobra.Command {
	flags := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Capture and classify a list of pages",
		Long: `Capture every page in the URL list and write [url, [technology...]] pairs
to the results file. URLs come from positional arguments or from --urls
(a JSON array or one URL per line).`,
		Example: `  techscan scan https://example.com https://example.org
  techscan scan --urls urls.json --workers 4 --results out/result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, *cfgFile, flags, args)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&flags.workers, "workers", "w", 0, "number of workers (default: number of CPUs)")
	f.StringVarP(&flags.urls, "urls", "u", "", "file with the URL list")
	f.StringVarP(&flags.out, "out", "o", "", "directory for per-page capture files")
	f.StringVarP(&flags.results, "results", "r", "", "results file path")
	f.StringVar(&flags.markdown, "markdown", "", "also write a Markdown summary to this path")
	f.BoolVar(&flags.render, "render", false, "render pages in headless Chrome")
	f.BoolVar(&flags.auto, "render-auto", false, "render only pages that look like client-side shells")
	return cmd
}

func scanOverrides(cmd *cobra.Command, flags *scanFlags) []config.Option {
	var opts []config.Option
	changed := cmd.Flags().Changed
	if changed("workers") {
		opts = append(opts, config.WithOverride("scan.workers", flags.workers))
	}
	if changed("urls") {
		opts = append(opts, config.WithOverride("scan.urls_file", flags.urls))
	}
	if changed("out") {
		opts = append(opts, config.WithOverride("capture.dir", flags.out))
	}
	if changed("results") {
		opts = append(opts, config.WithOverride("scan.results_path", flags.results))
	}
	if changed("markdown") {
		opts = append(opts, config.WithOverride("scan.markdown_path", flags.markdown))
	}
	if changed("render") {
		opts = append(opts, config.WithOverride("fetch.render", flags.render))
	}
	if changed("render-auto") {
		opts = append(opts, config.WithOverride("fetch.render_auto", flags.auto))
	}
	return opts
}

func runScan(cmd *cobra.Command, cfgFile string, flags *scanFlags, args []string) error {
	cfg, err := config.Load(cfgFile, scanOverrides(cmd, flags)...)
	if err != nil {
		return err
	}
	urls, err := resolveURLs(cfg, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := newService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := svc.Close(closeCtx); cerr != nil {
			svc.Logger().Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	outcome, err := svc.Scan(ctx, urls)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("scan interrupted; no results written: %w", err)
		}
		return fmt.Errorf("scan: %w", err)
	}

	s := outcome.Summary
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d pages classified by %d workers in %s; results in %s\n",
		s.Captured, s.URLs, s.Workers, s.Duration.Round(time.Millisecond), s.ResultPath)
	return nil
}

// resolveURLs prefers positional arguments over the configured URL file.
func resolveURLs(cfg config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if cfg.Scan.URLsFile == "" {
		return nil, fmt.Errorf("%w: pass URLs as arguments or set --urls", config.ErrNoURLs)
	}
	return app.ReadURLs(cfg.Scan.URLsFile)
}
