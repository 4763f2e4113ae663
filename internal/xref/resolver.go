// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package xref

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

// Resolver produces the cross-reference of one project: the index lookup,
// then the fallback source when the index has nothing, then abstract
// enrichment. Fallback and enrichment failures are logged, not returned:
// publications are auxiliary prompt context.
type Resolver struct {
	Index    *Index
	Fallback Source
	Enricher *Enricher

	// MaxPublications caps the publications kept (0 keeps all).
	MaxPublications int

	Logger *zap.Logger
}

// Resolve returns the cross-reference of id. Only context cancellation is
// returned as an error.
func (r *Resolver) Resolve(ctx context.Context, id types.ProjectID, programme types.Programme) (types.CrossReference, error) {
	ref := r.Index.Lookup(id, programme)

	if ref.IsEmpty() && r.Fallback != nil {
		pubs, err := r.Fallback.Publications(ctx, id)
		switch {
		case ctx.Err() != nil:
			return types.CrossReference{}, ctx.Err()
		case err != nil:
			r.logger().Warn("publication fallback failed", zap.String("project_id", id.String()), zap.Error(err))
		case len(pubs) > 0:
			ref.Publications = dedupe(pubs)
			ref.Sources = nil
		}
	}

	if r.MaxPublications > 0 && len(ref.Publications) > r.MaxPublications {
		ref.Publications = ref.Publications[:r.MaxPublications]
	}

	if r.Enricher != nil && len(ref.Publications) > 0 {
		pubs, err := r.Enricher.Enrich(ctx, ref.Publications)
		if err != nil {
			return types.CrossReference{}, err
		}
		ref.Publications = pubs
	}
	return ref, nil
}

func dedupe(pubs []types.Publication) []types.Publication {
	seen := make(map[string]bool, len(pubs))
	out := make([]types.Publication, 0, len(pubs))
	for _, p := range pubs {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	return out
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
