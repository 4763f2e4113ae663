// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/project-catalogue/internal/validate"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate <project-id> [reply-file]",
	Short: "Check a model reply against the result schema",
	Long: `Validate parses a saved model reply (a file, or stdin when no file is
given) for one project and checks it against the result schema. A valid
reply is printed as typed YAML fields; otherwise every problem is listed and
the command fails.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	b, err := loadBundle()
	if err != nil {
		return err
	}
	v, err := validate.New(b.Schema)
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 2 && args[1] != "-" {
		data, err = os.ReadFile(args[1])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}

	result, err := v.Validate(types.NewProjectID(args[0]), string(data))
	var schemaErr *types.SchemaViolationError
	if errors.As(err, &schemaErr) {
		for _, p := range schemaErr.Problems {
			fmt.Fprintf(os.Stdout, "problem: %s\n", p)
		}
		return fmt.Errorf("%d schema problem(s)", len(schemaErr.Problems))
	}
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(result.Fields))
	for _, f := range result.Fields {
		if d, ok := f.Value.(types.Date); ok {
			fields[f.Name] = d.String()
			continue
		}
		fields[f.Name] = f.Value
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(fields); err != nil {
		return err
	}
	return enc.Close()
}
