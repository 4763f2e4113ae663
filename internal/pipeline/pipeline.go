// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the per-project stages (fetch, normalize,
// cross-reference, prompt, invoke, validate) over a batch of identifiers on a
// bounded worker pool and aggregates the outcomes in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/project-catalogue/internal/aggregate"
	"github.com/pdiddy/project-catalogue/internal/invoke"
	"github.com/pdiddy/project-catalogue/internal/normalize"
	"github.com/pdiddy/project-catalogue/internal/prompt"
	"github.com/pdiddy/project-catalogue/internal/registry"
	"github.com/pdiddy/project-catalogue/internal/retry"
	"github.com/pdiddy/project-catalogue/internal/validate"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// DefaultWorkers is used when Pipeline.Workers is not positive.
const DefaultWorkers = 4

// Input is one submitted identifier with its optional programme hint.
type Input struct {
	ID        types.ProjectID
	Programme types.Programme
}

// IDs returns the identifiers of inputs in order.
func IDs(inputs []Input) []types.ProjectID {
	ids := make([]types.ProjectID, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
	}
	return ids
}

// Summary counts the entries of a finished batch.
type Summary struct {
	Succeeded int
	Failed    int
	Reused    int
}

// Total returns the number of entries in the batch.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Reused
}

// HasFailures reports whether any entry failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// CrossReferencer joins publications to a project.
type CrossReferencer interface {
	Resolve(ctx context.Context, id types.ProjectID, programme types.Programme) (types.CrossReference, error)
}

// Resumer returns a stored successful entry for a project, if there is one.
type Resumer interface {
	Lookup(ctx context.Context, id types.ProjectID) (types.Entry, bool, error)
}

// Pipeline holds the stage components of a run. Xref, Resume, Sinks,
// Progress and Logger are optional.
type Pipeline struct {
	Fetcher    registry.Fetcher
	Normalizer *normalize.Normalizer
	Xref       CrossReferencer
	Prompts    *prompt.Generator
	Invoker    invoke.Invoker
	Validator  *validate.Validator

	Retry      retry.Policy
	Workers    int
	Duplicates types.DuplicatePolicy

	// Sinks receive every entry as soon as it is aggregated.
	Sinks  []aggregate.Sink
	Resume Resumer

	// Progress receives one status line per entry and a closing summary.
	Progress io.Writer
	Logger   *zap.Logger
}

type outcome struct {
	index  int // position in the submitted inputs
	entry  types.Entry
	reused bool
}

// Run processes inputs and returns the batch in input order. Per-project
// failures become failed entries; the returned error is a ConfigurationError
// raised before any fetch, or the first sink failure. Cancelling ctx marks
// every unfinished identifier canceled.
func (p *Pipeline) Run(ctx context.Context, inputs []Input) (aggregate.Batch, Summary, error) {
	if err := p.check(inputs); err != nil {
		return aggregate.Batch{}, Summary{}, err
	}
	log := p.logger()
	w := p.Progress
	if w == nil {
		w = io.Discard
	}

	opts := []aggregate.Option{aggregate.WithPolicy(p.Duplicates), aggregate.WithLogger(log)}
	for _, s := range p.Sinks {
		opts = append(opts, aggregate.WithSink(s))
	}
	agg := aggregate.New(IDs(inputs), opts...)

	// Sinks keep persisting after cancellation so canceled entries reach the journal.
	flushCtx := context.WithoutCancel(ctx)

	results := make(chan outcome, len(inputs))
	reused := make(map[types.ProjectID]bool)
	var flushErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			kept, err := agg.AddAt(flushCtx, r.index, r.entry)
			if err != nil && flushErr == nil {
				flushErr = err
			}
			if kept {
				reused[r.entry.ProjectID] = r.reused
			}
			report(w, r)
		}
	}()

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		if ctx.Err() != nil {
			results <- outcome{index: i, entry: canceled(in, ctx.Err())}
			continue
		}
		g.Go(func() error {
			r := p.process(ctx, in)
			r.index = i
			results <- r
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	batch, err := agg.Finish(flushCtx)
	if err != nil && flushErr == nil {
		flushErr = err
	}

	var sum Summary
	for _, e := range batch.Entries {
		switch {
		case !e.OK():
			sum.Failed++
		case reused[e.ProjectID]:
			sum.Reused++
		default:
			sum.Succeeded++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d succeeded, %d reused, %d failed (total: %d)\n",
		sum.Succeeded, sum.Reused, sum.Failed, sum.Total())
	log.Info("batch finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("reused", sum.Reused),
		zap.Int("failed", sum.Failed))
	return batch, sum, flushErr
}

func (p *Pipeline) check(inputs []Input) error {
	switch {
	case p.Fetcher == nil:
		return &types.ConfigurationError{Field: "registry", Reason: "no record fetcher configured"}
	case p.Normalizer == nil:
		return &types.ConfigurationError{Field: "mappings", Reason: "no mapping table configured"}
	case p.Prompts == nil:
		return &types.ConfigurationError{Field: "prompt", Reason: "no prompt template configured"}
	case p.Invoker == nil:
		return &types.ConfigurationError{Field: "model", Reason: "no model invoker configured"}
	case p.Validator == nil:
		return &types.ConfigurationError{Field: "schema", Reason: "no result schema configured"}
	}
	switch p.Duplicates {
	case "", types.DuplicateLastWins, types.DuplicateFirstWins:
	default:
		return &types.ConfigurationError{Field: "output.duplicates", Reason: fmt.Sprintf("unknown duplicate policy %q", p.Duplicates)}
	}
	for _, in := range inputs {
		if in.ID == "" {
			return &types.ConfigurationError{Field: "input", Reason: "empty project identifier"}
		}
		if in.Programme != "" && !in.Programme.IsKnown() {
			return &types.ConfigurationError{Field: "programme", Reason: fmt.Sprintf("unknown programme %q for project %s", in.Programme, in.ID)}
		}
	}
	return nil
}

// process runs every stage for one identifier. It never returns an error:
// failures become failed entries.
func (p *Pipeline) process(ctx context.Context, in Input) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{entry: canceled(in, err)}
	}
	log := p.logger().With(zap.String("project_id", in.ID.String()))

	if p.Resume != nil {
		e, ok, err := p.Resume.Lookup(ctx, in.ID)
		switch {
		case err != nil:
			log.Warn("resume lookup failed", zap.Error(err))
		case ok:
			e.ProjectID = in.ID
			return outcome{entry: e, reused: true}
		}
	}

	var raw types.RawRecord
	attempts, err := retry.Do(ctx, p.Retry, func(ctx context.Context) error {
		var err error
		raw, err = p.Fetcher.Fetch(ctx, in.ID, in.Programme)
		return err
	})
	if err != nil {
		return failed(in.ID, in.Programme, err, attempts)
	}

	programme := in.Programme
	if programme == "" {
		if programme, err = p.Normalizer.DetectProgramme(raw); err != nil {
			return failed(in.ID, "", err, 1)
		}
	}

	record, err := p.Normalizer.Normalize(raw, programme)
	if err != nil {
		return failed(in.ID, programme, err, 1)
	}
	switch got := types.NewProjectID(string(record.ID)); {
	case got == "":
		record.ID = in.ID
	case got != in.ID:
		log.Warn("record carries a different project id", zap.String("record_id", string(record.ID)))
		record.ID = in.ID
	}
	for _, msg := range record.Warnings {
		log.Debug("normalize warning", zap.String("warning", msg))
	}

	var ref types.CrossReference
	if p.Xref != nil {
		if ref, err = p.Xref.Resolve(ctx, in.ID, programme); err != nil {
			return failed(in.ID, programme, err, 1)
		}
	}
	ref.ProjectID = in.ID

	pr, err := p.Prompts.Generate(record, ref)
	if err != nil {
		return failed(in.ID, programme, err, 1)
	}

	// A cached reply is only trusted on the first attempt; retries go to the model.
	cache, _ := p.Invoker.(invoke.Refresher)
	call := p.Invoker.Invoke
	var result types.ValidatedResult
	attempts, err = retry.Do(ctx, p.Retry, func(ctx context.Context) error {
		reply, err := call(ctx, pr.Text)
		if cache != nil {
			call = cache.Refresh
		}
		if err != nil {
			return err
		}
		result, err = p.Validator.Validate(in.ID, reply)
		if err != nil {
			log.Debug("reply rejected", zap.Error(err))
			return err
		}
		if cache != nil {
			cache.Accept(ctx, pr.Text, reply)
		}
		return nil
	})
	if err != nil {
		return failed(in.ID, programme, err, attempts)
	}
	log.Debug("project processed", zap.String("programme", string(programme)), zap.Int("attempts", attempts))
	return outcome{entry: types.Succeeded(programme, result, pr.Hash)}
}

func failed(id types.ProjectID, programme types.Programme, err error, attempts int) outcome {
	var mal *types.MalformedRecordError
	if errors.As(err, &mal) && mal.ProjectID == "" {
		mal.ProjectID = id
	}
	return outcome{entry: types.Failed(id, programme, types.FailureFrom(err, attempts))}
}

func canceled(in Input, err error) types.Entry {
	return types.Failed(in.ID, in.Programme, types.FailureFrom(err, 0))
}

func report(w io.Writer, r outcome) {
	e := r.entry
	switch {
	case r.reused:
		fmt.Fprintf(w, "reused:  %s (stored result)\n", e.ProjectID)
	case e.OK():
		fmt.Fprintf(w, "ok:      %s (%s)\n", e.ProjectID, e.Programme)
	default:
		fmt.Fprintf(w, "failed:  %s (%s: %s)\n", e.ProjectID, e.Failure.Reason(), e.Failure.Message)
	}
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
