// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/internal/config"
	"github.com/pdiddy/project-catalogue/internal/invoke"
	"github.com/pdiddy/project-catalogue/internal/normalize"
	"github.com/pdiddy/project-catalogue/internal/pipeline"
	"github.com/pdiddy/project-catalogue/internal/prompt"
	"github.com/pdiddy/project-catalogue/internal/registry"
	"github.com/pdiddy/project-catalogue/internal/retry"
	"github.com/pdiddy/project-catalogue/internal/secrets"
	"github.com/pdiddy/project-catalogue/internal/store"
	"github.com/pdiddy/project-catalogue/internal/tabular"
	"github.com/pdiddy/project-catalogue/internal/validate"
	"github.com/pdiddy/project-catalogue/internal/xref"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// newFetcher returns the directory fetcher when records_dir is set and the
// CORDIS client otherwise.
func newFetcher(cfg types.RegistryConfig) registry.Fetcher {
	if cfg.RecordsDir != "" {
		return registry.DirFetcher{Dir: cfg.RecordsDir}
	}
	return registry.NewCordisClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// newResolver loads the configured publication tables and wires the
// optional OpenAlex fallback and CrossRef enrichment.
func newResolver(cfg types.XrefConfig) (*xref.Resolver, error) {
	tables := make([]*xref.Table, 0, len(cfg.Tables))
	for _, t := range cfg.Tables {
		table, err := xref.LoadTable(t.Path, t.Programme)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded publication table",
			zap.String("programme", string(t.Programme)),
			zap.String("path", t.Path),
			zap.Int("projects", table.Projects()))
		tables = append(tables, table)
	}

	mailto := secrets.Lookup(loadedSecrets, secrets.CrossrefMailto, cfg.Mailto)
	client := &http.Client{Timeout: cfg.Timeout}
	r := &xref.Resolver{
		Index:           xref.NewIndex(cfg.Policy, tables...),
		MaxPublications: cfg.MaxPublications,
		Logger:          logger,
	}
	if cfg.OpenAlex {
		r.Fallback = &xref.OpenAlexSource{
			Client:     client,
			UserAgent:  cfg.UserAgent,
			Mailto:     mailto,
			MaxRetries: cfg.MaxRetries,
		}
	}
	if cfg.Enrich {
		r.Enricher = &xref.Enricher{
			Client:     client,
			UserAgent:  cfg.UserAgent,
			Mailto:     mailto,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}
	}
	return r, nil
}

// newInvoker builds the model invoker, taking the API key from the secrets
// directory or the environment when the configuration leaves it empty.
func newInvoker(ctx context.Context, cfg types.ModelConfig) (invoke.Invoker, error) {
	key := secrets.GeminiAPIKey
	if cfg.Backend == types.BackendClaude {
		key = secrets.AnthropicAPIKey
	}
	cfg.APIKey = secrets.Lookup(loadedSecrets, key, cfg.APIKey)
	return invoke.New(ctx, cfg, &http.Client{Timeout: cfg.Timeout})
}

// stages holds the pure pipeline stages built from a bundle.
type stages struct {
	normalizer *normalize.Normalizer
	prompts    *prompt.Generator
	validator  *validate.Validator
}

func newStages(b config.Bundle) (stages, error) {
	n, err := normalize.New(b.Mappings)
	if err != nil {
		return stages{}, err
	}
	g, err := prompt.New(b.Template, b.Schema)
	if err != nil {
		return stages{}, err
	}
	v, err := validate.New(b.Schema)
	if err != nil {
		return stages{}, err
	}
	return stages{normalizer: n, prompts: g, validator: v}, nil
}

// newPipeline assembles a pipeline over st, resuming from st when cfg.Resume
// is set. The journal sink is attached by startRun.
func newPipeline(ctx context.Context, b config.Bundle, st *store.Store) (*pipeline.Pipeline, error) {
	cfg := b.Config
	s, err := newStages(b)
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(cfg.Xref)
	if err != nil {
		return nil, err
	}
	inv, err := newInvoker(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.Model.Cache {
		inv = invoke.Cached(inv, st, logger)
	}

	p := &pipeline.Pipeline{
		Fetcher:    newFetcher(cfg.Registry),
		Normalizer: s.normalizer,
		Xref:       resolver,
		Prompts:    s.prompts,
		Invoker:    inv,
		Validator:  s.validator,
		Retry:      retry.Policy(cfg.Retry),
		Workers:    cfg.Workers,
		Duplicates: cfg.Output.Duplicates,
		Logger:     logger,
	}
	if cfg.Resume {
		p.Resume = st
	}
	return p, nil
}

// startRun builds the pipeline and only then records the run, so a
// configuration error leaves no empty run behind. The returned pipeline
// journals to the new run.
func startRun(ctx context.Context, b config.Bundle, st *store.Store, input string, total int) (*pipeline.Pipeline, string, error) {
	p, err := newPipeline(ctx, b, st)
	if err != nil {
		return nil, "", err
	}
	runID, err := st.BeginRun(ctx, input, total)
	if err != nil {
		return nil, "", err
	}
	p.Sinks = append(p.Sinks, st.Journal(runID))
	return p, runID, nil
}

// readInputs reads the identifier table and resolves each programme hint.
// defaultProgramme applies to rows without a hint.
func readInputs(path string, cfg types.InputConfig, defaultProgramme types.Programme) ([]pipeline.Input, error) {
	ids, err := tabular.ReadIdentifiers(path, cfg.IDColumn, cfg.ProgrammeColumn)
	if err != nil {
		return nil, err
	}
	inputs := make([]pipeline.Input, 0, len(ids))
	for _, id := range ids {
		programme, err := types.ParseProgramme(id.Programme)
		if err != nil {
			return nil, &types.ConfigurationError{Field: "input.programme_column", Reason: fmt.Sprintf("project %s", id.ID), Cause: err}
		}
		if programme == "" {
			programme = defaultProgramme
		}
		inputs = append(inputs, pipeline.Input{ID: id.ID, Programme: programme})
	}
	return inputs, nil
}

// outputPaths resolves relative output file names against dir.
func outputPaths(dir string, files []string) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		if filepath.IsAbs(f) {
			paths[i] = f
			continue
		}
		paths[i] = filepath.Join(dir, f)
	}
	return paths
}
