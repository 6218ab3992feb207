package main

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/lyallcooper/shuttle/internal/db"
	"github.com/lyallcooper/shuttle/internal/output"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "List past transfers, or show what one run deleted and kept",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		out := cmd.OutOrStdout()

		if len(args) == 0 {
			runs, err := a.Database.ListTransferRuns(historyLimit, historyOffset)
			if err != nil {
				return errors.Errorf("listing transfers: %w", err)
			}
			output.History(out, runs)
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Errorf("invalid run id %q", args[0])
		}
		run, err := a.Database.GetTransferRun(id)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Errorf("no transfer with id %d", id)
		} else if err != nil {
			return err
		}
		records, err := a.Database.ListDeletionRecords(id)
		if err != nil {
			return err
		}
		failures, err := a.Database.ListFailureLines(id)
		if err != nil {
			return err
		}

		output.History(out, []*db.TransferRun{run})
		if run.LogPath != "" {
			fmt.Fprintf(out, "  log: %s\n", run.LogPath)
		}
		if len(records)+len(failures) > 0 {
			fmt.Fprintln(out)
			output.Legend(out)
			output.Records(out, records, failures)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of runs to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of runs to skip")
	rootCmd.AddCommand(historyCmd)
}
