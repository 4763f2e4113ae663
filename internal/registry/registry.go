// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry fetches raw project records, either from the CORDIS
// registry over HTTP or from a directory of previously saved records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/project-catalogue/internal/httputil"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

// maxRecordBytes bounds the size of a fetched record.
const maxRecordBytes = 16 << 20

// Fetcher retrieves the raw record of one project. The programme is a hint;
// fetchers that cannot use it ignore it.
type Fetcher interface {
	Fetch(ctx context.Context, id types.ProjectID, programme types.Programme) (types.RawRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id types.ProjectID, programme types.Programme) (types.RawRecord, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id types.ProjectID, programme types.Programme) (types.RawRecord, error) {
	return f(ctx, id, programme)
}

// CordisClient fetches project records from the CORDIS XML endpoint
// ({BaseURL}/project/id/{id}?format=xml).
type CordisClient struct {
	BaseURL    string
	UserAgent  string
	MaxRetries int
	Client     *http.Client
	Logger     *zap.Logger
}

// NewCordisClient returns a client configured from cfg.
func NewCordisClient(cfg types.RegistryConfig, client *http.Client, logger *zap.Logger) *CordisClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CordisClient{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Client:     client,
		Logger:     logger,
	}
}

// RecordURL returns the XML record URL of id.
func (c *CordisClient) RecordURL(id types.ProjectID) string {
	return fmt.Sprintf("%s/project/id/%s?format=xml", c.BaseURL, url.PathEscape(string(id)))
}

// Fetch retrieves and decodes the record of id. A 404 yields a FetchError
// with NotFound set; any other non-200 status or transport failure yields a
// FetchError; a body that is not XML yields a MalformedRecordError.
func (c *CordisClient) Fetch(ctx context.Context, id types.ProjectID, _ types.Programme) (types.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RecordURL(id), nil)
	if err != nil {
		return nil, &types.FetchError{ProjectID: id, Cause: fmt.Errorf("creating request: %w", err)}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/xml")

	c.Logger.Debug("fetching record", zap.String("project_id", id.String()), zap.String("url", req.URL.String()))

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.MaxRetries)
	if err != nil {
		return nil, &types.FetchError{ProjectID: id, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &types.FetchError{ProjectID: id, NotFound: true}
	case resp.StatusCode != http.StatusOK:
		return nil, &types.FetchError{ProjectID: id, Cause: fmt.Errorf("registry returned HTTP %d", resp.StatusCode)}
	}

	tree, err := DecodeXML(io.LimitReader(resp.Body, maxRecordBytes))
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) || ctx.Err() != nil {
			return nil, &types.FetchError{ProjectID: id, Cause: err}
		}
		return nil, &types.MalformedRecordError{ProjectID: id, Reason: "response is not an XML record", Cause: err}
	}
	return tree, nil
}
