// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package xref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/internal/httputil"
	"github.com/pdiddy/project-catalogue/internal/normalize"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// crossrefAPIBase is the CrossRef works endpoint. Declared as a var so tests
// can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works/"

// Enricher fills missing publication abstracts from CrossRef.
type Enricher struct {
	Client     *http.Client
	UserAgent  string
	Mailto     string
	MaxRetries int
	Logger     *zap.Logger
}

type crossrefResponse struct {
	Message struct {
		Abstract string `json:"abstract"`
	} `json:"message"`
}

// Enrich returns a copy of pubs in which publications with a DOI but no
// abstract carry the CrossRef abstract, JATS markup removed. Lookup failures
// leave the abstract empty and are logged; only context cancellation is
// returned as an error.
func (e *Enricher) Enrich(ctx context.Context, pubs []types.Publication) ([]types.Publication, error) {
	out := make([]types.Publication, len(pubs))
	copy(out, pubs)
	for i := range out {
		if out[i].Abstract != "" || out[i].DOI == "" {
			continue
		}
		abstract, err := e.FetchAbstract(ctx, out[i].DOI)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger().Debug("crossref abstract unavailable", zap.String("doi", out[i].DOI), zap.Error(err))
			continue
		}
		out[i].Abstract = abstract
	}
	return out, nil
}

// FetchAbstract returns the plain-text CrossRef abstract of doi, or "" when
// CrossRef has none.
func (e *Enricher) FetchAbstract(ctx context.Context, doi string) (string, error) {
	doi = strings.TrimPrefix(strings.TrimSpace(doi), "https://doi.org/")
	apiURL := crossrefAPIBase + doi
	if e.Mailto != "" {
		apiURL += "?" + url.Values{"mailto": {e.Mailto}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, e.Client, req, e.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("CrossRef API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("CrossRef API returned HTTP %d", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("parsing CrossRef response: %w", err)
	}
	return normalize.CleanText(cr.Message.Abstract), nil
}

func (e *Enricher) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
