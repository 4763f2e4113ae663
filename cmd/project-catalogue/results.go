// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/project-catalogue/internal/aggregate"
	"github.com/pdiddy/project-catalogue/internal/store"
	"github.com/pdiddy/project-catalogue/internal/tabular"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect and export journaled runs",
	Long: `Results reads the SQLite journal in the output directory. Every run
journals its entries as they complete, so an interrupted run can still be
exported.`,
}

var resultsExportCmd = &cobra.Command{
	Use:   "export <file>...",
	Short: "Write the entries of a journaled run to output files",
	Long: `Export writes the entries of one run (the latest by default) in batch
order. With --latest it instead combines every run, writing the most recent
successful result of each project. The extension of each file selects its
format (.csv, .psv, .txt, .xlsx, .json, .yaml, .md).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResultsExport,
}

var resultsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runResultsRuns,
}

func init() {
	resultsCmd.PersistentFlags().String("output-dir", "", "directory holding catalogue.db (default from config, output)")
	resultsExportCmd.Flags().String("run", "", "run id to export (default: latest)")
	resultsExportCmd.Flags().Bool("latest", false, "combine all runs, keeping each project's most recent success")
	resultsExportCmd.MarkFlagsMutuallyExclusive("run", "latest")

	resultsCmd.AddCommand(resultsExportCmd, resultsRunsCmd)
	rootCmd.AddCommand(resultsCmd)
}

func openJournal(cmd *cobra.Command, dir string) (*store.Store, error) {
	if d, _ := cmd.Flags().GetString("output-dir"); d != "" {
		dir = d
	}
	return store.Open(dir)
}

func runResultsExport(cmd *cobra.Command, args []string) error {
	b, err := loadBundle()
	if err != nil {
		return err
	}
	st, err := openJournal(cmd, b.Config.Output.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := exportEntries(cmd, st)
	if err != nil {
		return err
	}

	batch := aggregate.Batch{Entries: entries}
	if err := tabular.WriteAll(args, batch, b.Schema); err != nil {
		return err
	}
	for _, path := range args {
		fmt.Fprintf(os.Stdout, "wrote:   %s (%d entries, %d failed)\n", path, len(entries), batch.Failed())
	}
	return nil
}

// exportEntries reads the entries selected by --latest or --run.
func exportEntries(cmd *cobra.Command, st *store.Store) ([]types.Entry, error) {
	ctx := cmd.Context()
	if latest, _ := cmd.Flags().GetBool("latest"); latest {
		return st.ExportLatest(ctx)
	}
	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		var err error
		if runID, err = st.LatestRun(ctx); err != nil {
			return nil, err
		}
	}
	return st.Export(ctx, runID)
}

func runResultsRuns(cmd *cobra.Command, args []string) error {
	b, err := loadBundle()
	if err != nil {
		return err
	}
	st, err := openJournal(cmd, b.Config.Output.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range runs {
		finished := "unfinished"
		if !r.FinishedAt.IsZero() {
			finished = "finished " + r.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(os.Stdout, "%s  %s  %s: %d ok, %d failed (total: %d), %s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Input, r.Succeeded, r.Failed, r.Total, finished)
	}
	return nil
}
