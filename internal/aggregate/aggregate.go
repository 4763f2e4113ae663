// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate collects per-project entries into an ordered batch. The
// batch has exactly one entry per distinct submitted identifier, in the order
// the identifiers were first submitted, whatever order the entries arrive in.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Sink receives every accepted entry as soon as the aggregator takes it.
type Sink interface {
	Flush(ctx context.Context, position int, entry types.Entry) error
}

// Batch is the ordered outcome of a run.
type Batch struct {
	Entries []types.Entry
}

// Succeeded returns the number of ok entries.
func (b Batch) Succeeded() int {
	n := 0
	for _, e := range b.Entries {
		if e.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed entries.
func (b Batch) Failed() int { return len(b.Entries) - b.Succeeded() }

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPolicy selects how a second entry for the same identifier is treated.
func WithPolicy(p types.DuplicatePolicy) Option {
	return func(a *Aggregator) { a.policy = p }
}

// WithSink registers a sink. Sinks are flushed in registration order.
func WithSink(s Sink) Option {
	return func(a *Aggregator) { a.sinks = append(a.sinks, s) }
}

// WithLogger sets the logger used for duplicate warnings.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// Aggregator is safe for concurrent use; Add calls are serialised.
type Aggregator struct {
	mu       sync.Mutex
	order    []types.ProjectID
	position map[types.ProjectID]int
	slots    []*types.Entry
	seq      []int // submission index of the entry in each slot
	next     int
	policy   types.DuplicatePolicy
	sinks    []Sink
	logger   *zap.Logger
}

// New returns an aggregator with one slot per distinct identifier of order.
// Repeated identifiers share the slot of their first occurrence.
func New(order []types.ProjectID, opts ...Option) *Aggregator {
	a := &Aggregator{
		position: make(map[types.ProjectID]int, len(order)),
		policy:   types.DuplicateLastWins,
		logger:   zap.NewNop(),
	}
	for _, id := range order {
		if _, dup := a.position[id]; dup {
			continue
		}
		a.position[id] = len(a.order)
		a.order = append(a.order, id)
	}
	a.slots = make([]*types.Entry, len(a.order))
	a.seq = make([]int, len(a.order))
	a.next = len(order)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Len returns the number of slots.
func (a *Aggregator) Len() int { return len(a.order) }

// Position returns the batch position of id.
func (a *Aggregator) Position(id types.ProjectID) (int, bool) {
	p, ok := a.position[id]
	return p, ok
}

// Add records entry as submitted after every entry seen so far. See AddAt.
func (a *Aggregator) Add(ctx context.Context, entry types.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.add(ctx, a.next, entry)
	return err
}

// AddAt records entry, the result of the submission-th input, and flushes it
// to every sink. When a slot already holds an entry the policy compares
// submission indexes, not arrival order: last-write-wins keeps the latest
// submission and first-write-wins the earliest. A losing entry is dropped
// without flushing. AddAt reports whether entry was kept. An entry for an
// identifier that was never submitted is a programming error.
func (a *Aggregator) AddAt(ctx context.Context, submission int, entry types.Entry) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.add(ctx, submission, entry)
}

func (a *Aggregator) add(ctx context.Context, submission int, entry types.Entry) (bool, error) {
	pos, ok := a.position[entry.ProjectID]
	if !ok {
		return false, fmt.Errorf("entry for project %q which is not part of the batch", entry.ProjectID)
	}
	if submission >= a.next {
		a.next = submission + 1
	}

	if prev := a.slots[pos]; prev != nil {
		keep := submission > a.seq[pos]
		if a.policy == types.DuplicateFirstWins {
			keep = submission < a.seq[pos]
		}
		if !keep {
			a.logger.Warn("duplicate entry ignored",
				zap.String("project_id", entry.ProjectID.String()),
				zap.String("policy", string(a.policy)),
				zap.String("kept", string(prev.Status)),
				zap.String("dropped", string(entry.Status)))
			return false, nil
		}
		a.logger.Warn("duplicate entry replaces earlier result",
			zap.String("project_id", entry.ProjectID.String()),
			zap.String("policy", string(a.policy)),
			zap.String("replaced", string(prev.Status)),
			zap.String("status", string(entry.Status)))
	}

	e := entry
	a.slots[pos] = &e
	a.seq[pos] = submission
	for _, s := range a.sinks {
		if err := s.Flush(ctx, pos, e); err != nil {
			return true, fmt.Errorf("flushing project %s: %w", entry.ProjectID, err)
		}
	}
	return true, nil
}

// Missing returns the identifiers with no entry yet, in batch order.
func (a *Aggregator) Missing() []types.ProjectID {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []types.ProjectID
	for i, s := range a.slots {
		if s == nil {
			ids = append(ids, a.order[i])
		}
	}
	return ids
}

// Batch returns the ordered batch. Identifiers with no entry appear as
// not_processed failures.
func (a *Aggregator) Batch() Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]types.Entry, len(a.slots))
	for i, s := range a.slots {
		if s == nil {
			entries[i] = notProcessed(a.order[i])
			continue
		}
		entries[i] = *s
	}
	return Batch{Entries: entries}
}

// Finish fills every empty slot with a not_processed entry, flushing those
// to the sinks, and returns the batch.
func (a *Aggregator) Finish(ctx context.Context) (Batch, error) {
	for _, id := range a.Missing() {
		if err := a.Add(ctx, notProcessed(id)); err != nil {
			return a.Batch(), err
		}
	}
	return a.Batch(), nil
}

func notProcessed(id types.ProjectID) types.Entry {
	return types.Failed(id, "", &types.Failure{
		Kind:    types.KindNotProcessed,
		Message: "project was not processed",
	})
}
