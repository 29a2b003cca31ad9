package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/arbengine/internal/app"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			applied, err := app.New(cfg, logger).Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", m)
			}
			return nil
		},
	}
}

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export aged records to object storage once",
		Long: `Runs a single archive pass: records older than the retention window
are written to the configured S3 bucket as JSON lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			rep, err := app.New(cfg, logger).ArchiveOnce(cmd.Context())
			logger.Info("archive finished",
				slog.Time("cutoff", rep.Cutoff),
				slog.Int64("quotes", rep.Quotes),
				slog.Int64("opportunities", rep.Opportunities),
				slog.Int64("trades", rep.Trades),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d quotes, %d opportunities, %d trades before %s\n",
				rep.Quotes, rep.Opportunities, rep.Trades, rep.Cutoff.Format("2006-01-02"))
			return nil
		},
	}
	cmd.AddCommand(newArchiveListCmd(opts), newArchiveGetCmd(opts))
	return cmd
}

func newArchiveListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "list [quotes|opportunities|trades]",
		Short:     "List archived objects",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"quotes", "opportunities", "trades"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			var kind string
			if len(args) == 1 {
				kind = args[0]
			}
			infos, err := app.New(cfg, logger).ListArchive(cmd.Context(), kind)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\n", info.Path, info.Size, info.LastModified.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newArchiveGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Write an archived object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := opts.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			_, err = app.New(cfg, logger).CopyArchive(cmd.Context(), args[0], cmd.OutOrStdout())
			return err
		},
	}
}
