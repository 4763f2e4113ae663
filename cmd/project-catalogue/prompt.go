// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <project-id>",
	Short: "Render the model prompt of one project",
	Long: `Prompt fetches and normalizes one project record, joins its publications
from the configured cross-reference tables and prints the rendered prompt.
The model is not called. The prompt hash printed to stderr keys the reply
cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().String("programme", "", "programme of the record: fp7, h2020 or heu (default: detect)")
	promptCmd.Flags().String("records-dir", "", "read the record from saved files instead of the registry")

	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	b, err := loadBundle()
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("records-dir"); dir != "" {
		b.Config.Registry.RecordsDir = dir
	}
	hint, _ := cmd.Flags().GetString("programme")
	programme, err := types.ParseProgramme(hint)
	if err != nil {
		return err
	}
	id := types.NewProjectID(args[0])

	s, err := newStages(b)
	if err != nil {
		return err
	}
	resolver, err := newResolver(b.Config.Xref)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, record, err := fetchProject(ctx, b, s.normalizer, id, programme)
	if err != nil {
		return err
	}
	ref, err := resolver.Resolve(ctx, id, record.Programme)
	if err != nil {
		return err
	}
	p, err := s.prompts.Generate(record, ref)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, p.Text)
	fmt.Fprintf(os.Stderr, "prompt hash: %s (%d publications)\n", p.Hash, len(ref.Publications))
	return nil
}
