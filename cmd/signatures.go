package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/techscan/internal/config"
)

// newSignaturesCmd creates the 'signatures' subcommand.
func newSignaturesCmd(cfgFile *string) *cobra.Command {
	var source, path string
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "List the technology signatures a scan would use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []config.Option
			if cmd.Flags().Changed("source") {
				opts = append(opts, config.WithOverride("signatures.source", source))
			}
			if cmd.Flags().Changed("path") {
				opts = append(opts, config.WithOverride("signatures.path", path))
			}
			// Listing needs no capture backend or result stores.
			opts = append(opts,
				config.WithOverride("capture.backend", config.BackendMemory),
				config.WithOverride("results.sqlite_path", ""),
				config.WithOverride("results.postgres_dsn", ""),
				config.WithOverride("notify.pubsub_topic", ""),
				config.WithOverride("server.addr", ""),
			)
			cfg, err := config.Load(*cfgFile, opts...)
			if err != nil {
				return err
			}
			svc, err := newService(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer func() { _ = svc.Close(cmd.Context()) }()

			out := cmd.OutOrStdout()
			names := svc.Names()
			if len(names) == 0 {
				fmt.Fprintf(out, "signature source %q does not enumerate its entries\n", cfg.Signatures.Source)
				return nil
			}
			for i, name := range names {
				fmt.Fprintf(out, "%3d  %s\n", i+1, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "signature source: builtin, file or wappalyzer")
	cmd.Flags().StringVar(&path, "path", "", "signature file for --source file")
	return cmd
}
