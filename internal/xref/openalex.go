// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package xref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/project-catalogue/internal/httputil"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// openAlexWorksBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexWorksBase = "https://api.openalex.org/works"

// openAlexPerPage bounds the works requested for one project.
const openAlexPerPage = 50

// Source finds publications for a project outside the local tables.
type Source interface {
	Publications(ctx context.Context, id types.ProjectID) ([]types.Publication, error)
}

// OpenAlexSource finds works that acknowledge a grant by its award ID.
type OpenAlexSource struct {
	Client     *http.Client
	UserAgent  string
	Mailto     string
	MaxRetries int
}

// Publications queries OpenAlex for works filtered by grants.award_id.
func (s *OpenAlexSource) Publications(ctx context.Context, id types.ProjectID) ([]types.Publication, error) {
	params := url.Values{
		"filter":   {"grants.award_id:" + string(id)},
		"per_page": {fmt.Sprintf("%d", openAlexPerPage)},
		"sort":     {"publication_date:asc"},
	}
	if s.Mailto != "" {
		params.Set("mailto", s.Mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexWorksBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, s.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	pubs := make([]types.Publication, 0, len(oar.Results))
	for _, work := range oar.Results {
		if work.Title == "" {
			continue
		}
		var authors []string
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}
		pubs = append(pubs, types.Publication{
			Title:    work.Title,
			DOI:      strings.TrimPrefix(work.DOI, "https://doi.org/"),
			Authors:  strings.Join(authors, ", "),
			Journal:  work.PrimaryLocation.Source.DisplayName,
			Abstract: reconstructAbstract(work.AbstractInvertedIndex),
		})
	}
	return pubs, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where it
// appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos != pairs[j].pos {
			return pairs[i].pos < pairs[j].pos
		}
		return pairs[i].word < pairs[j].word
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	PrimaryLocation       struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}
