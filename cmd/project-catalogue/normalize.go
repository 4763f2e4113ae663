// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/project-catalogue/internal/config"
	"github.com/pdiddy/project-catalogue/internal/normalize"
	"github.com/pdiddy/project-catalogue/internal/registry"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <project-id>",
	Short: "Fetch one project record and print its canonical form",
	Long: `Normalize fetches the registry record of one project, maps it onto the
canonical record of its programme and prints the result as YAML. The
programme is detected from the record unless --programme is given. With
--save, the raw record is also written to a records directory that run
--records-dir can read back.`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	normalizeCmd.Flags().String("programme", "", "programme of the record: fp7, h2020 or heu (default: detect)")
	normalizeCmd.Flags().String("records-dir", "", "read the record from saved files instead of the registry")
	normalizeCmd.Flags().String("save", "", "also save the raw record as YAML in this directory")

	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
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

	n, err := normalize.New(b.Mappings)
	if err != nil {
		return err
	}
	raw, record, err := fetchProject(cmd.Context(), b, n, id, programme)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("save"); dir != "" {
		if err := registry.SaveRecord(dir, id, raw); err != nil {
			return fmt.Errorf("saving record %s: %w", id, err)
		}
		fmt.Fprintf(os.Stderr, "saved:   %s\n", id)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(record); err != nil {
		return err
	}
	return enc.Close()
}

// fetchProject fetches and normalizes one record, detecting its programme
// when none is given.
func fetchProject(ctx context.Context, b config.Bundle, n *normalize.Normalizer, id types.ProjectID, programme types.Programme) (types.RawRecord, types.Project, error) {
	raw, err := newFetcher(b.Config.Registry).Fetch(ctx, id, programme)
	if err != nil {
		return nil, types.Project{}, err
	}
	if programme == "" {
		if programme, err = n.DetectProgramme(raw); err != nil {
			return nil, types.Project{}, err
		}
	}
	record, err := n.Normalize(raw, programme)
	if err != nil {
		return nil, types.Project{}, err
	}
	if record.ID == "" {
		record.ID = id
	}
	return raw, record, nil
}
