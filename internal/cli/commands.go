package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/dedupe"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/query"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

// ErrNotConfirmed is returned by destructive commands run without --yes.
var ErrNotConfirmed = errors.New("refusing to continue without --yes")

func newCountCmd(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored trade records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int64
			err := env().DB.WithContext(cmd.Context()).Model(&model.TradeRecord{}).Count(&n).Error
			if err != nil {
				return fmt.Errorf("failed to count records: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records\n", n)
			return nil
		},
	}
}

func newClearCmd(env func() *Env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored trade record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return ErrNotConfirmed
			}
			deleted, err := query.NewService(env().DB, 0).ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", deleted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion of all records")
	return cmd
}

func newImportCmd(env func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Ingest one or more .xlsx, .xlsm or .csv files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := env()
			ingestor := ingest.NewIngestor(
				ingest.NewGormSink(e.DB, e.ChunkSize),
				ingest.NewPool(e.ReadWorkers),
				nil,
				e.Ingest,
			)

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				report := ingestor.IngestFile(cmd.Context(), path)
				fmt.Fprintf(out, "%s: %s (eligible %d, rejected %d, %.2fs)\n",
					path, report.Message, report.EligibleRecords, report.RejectedRecords, report.ProcessTimeSeconds)
				for _, f := range report.FailedBatches {
					fmt.Fprintf(out, "  batch %d (%d records): %s\n", f.Batch, f.Size, f.Error)
				}
				if !report.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newDuplicatesCmd(env func() *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Inspect or remove duplicate trade records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Report duplicate groups without modifying data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := dedupe.NewResolver(env().DB, nil, nil).Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total %d, unique %d, duplicate groups %d, duplicates %d\n",
				stats.TotalRecords, stats.UniqueRecords, stats.DuplicateGroups, stats.TotalDuplicates)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Delete every duplicate except the earliest stored copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := dedupe.NewResolver(env().DB, nil, nil).Remove(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d duplicates\n", removed)
			return nil
		},
	})

	return cmd
}
