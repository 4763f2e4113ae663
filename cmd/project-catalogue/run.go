// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/internal/store"
	"github.com/pdiddy/project-catalogue/internal/tabular"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <identifiers.csv|identifiers.xlsx>",
	Short: "Catalogue every project listed in an identifier table",
	Long: `Run reads project identifiers (and optional programme hints) from a CSV or
XLSX table and processes each project: fetch, normalize, cross-reference,
prompt, invoke, validate. Failures are isolated per project and recorded with
a reason code. Each finished project is journaled to {output-dir}/catalogue.db
as soon as it completes; the ordered batch is written to the output files at
the end. With --resume, projects that already have a stored result are
reused without calling the registry or the model.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("workers", 0, "number of concurrent workers (default from config, 4)")
	runCmd.Flags().Bool("resume", false, "reuse stored successful results")
	runCmd.Flags().Bool("no-cache", false, "do not reuse cached model replies")
	runCmd.Flags().String("output-dir", "", "directory for the journal and relative output files (default from config, output)")
	runCmd.Flags().StringSlice("out", nil, "output files; the extension selects the format (.csv, .psv, .txt, .xlsx, .json, .yaml, .md)")
	runCmd.Flags().String("programme", "", "programme for rows without a hint: fp7, h2020 or heu")
	runCmd.Flags().String("records-dir", "", "read records from saved files instead of the registry")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	b, err := loadBundle()
	if err != nil {
		return err
	}
	cfg := &b.Config

	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
		if cfg.Workers < 1 {
			return &types.ConfigurationError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Workers)}
		}
	}
	if resume, _ := cmd.Flags().GetBool("resume"); resume {
		cfg.Resume = true
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Model.Cache = false
	}
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		cfg.Output.Dir = dir
	}
	if out, _ := cmd.Flags().GetStringSlice("out"); len(out) > 0 {
		cfg.Output.Files = out
	}
	if dir, _ := cmd.Flags().GetString("records-dir"); dir != "" {
		cfg.Registry.RecordsDir = dir
	}
	hint, _ := cmd.Flags().GetString("programme")
	defaultProgramme, err := types.ParseProgramme(hint)
	if err != nil {
		return err
	}

	paths := outputPaths(cfg.Output.Dir, cfg.Output.Files)
	for _, p := range paths {
		if _, err := tabular.FormatFor(p); err != nil {
			return err
		}
	}

	inputs, err := readInputs(args[0], cfg.Input, defaultProgramme)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no project identifiers in %s", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	p, runID, err := startRun(ctx, b, st, args[0], len(inputs))
	if err != nil {
		return err
	}
	p.Progress = os.Stdout

	logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("input", args[0]),
		zap.Int("projects", len(inputs)),
		zap.Int("workers", cfg.Workers))

	batch, summary, runErr := p.Run(ctx, inputs)
	if types.IsConfiguration(runErr) {
		return runErr
	}

	// The batch is complete even when the run was interrupted.
	finishCtx := context.WithoutCancel(ctx)
	if err := tabular.WriteAll(paths, batch, b.Schema); err != nil {
		return err
	}
	if err := st.FinishRun(finishCtx, runID, batch.Succeeded(), batch.Failed()); err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintf(os.Stdout, "wrote:   %s\n", path)
	}
	fmt.Fprintf(os.Stdout, "run:     %s\n", runID)

	if runErr != nil {
		return runErr
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d project(s) failed", summary.Failed)
	}
	return nil
}
