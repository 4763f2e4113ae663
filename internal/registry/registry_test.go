// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/project-catalogue/internal/httputil"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const sampleRecord = `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://cordis.europa.eu">
  <id>101000123</id>
  <acronym>AQUA</acronym>
  <title>Water &amp; Tools</title>
  <objective>&lt;p&gt;Build tools&lt;/p&gt;</objective>
  <startDate>2021-01-01</startDate>
  <relations>
    <associations>
      <organization type="coordinator" order="1"><legalName>Uni A</legalName></organization>
      <organization type="participant" order="2"><legalName>Org B</legalName></organization>
      <organization type="participant" order="3"><legalName>Org C</legalName></organization>
    </associations>
  </relations>
</project>`

func TestDecodeXML(t *testing.T) {
	got, err := DecodeXML(strings.NewReader(sampleRecord))
	require.NoError(t, err)

	want := map[string]any{
		"project": map[string]any{
			"id":        "101000123",
			"acronym":   "AQUA",
			"title":     "Water & Tools",
			"objective": "<p>Build tools</p>",
			"startDate": "2021-01-01",
			"relations": map[string]any{
				"associations": map[string]any{
					"organization": []any{
						map[string]any{"@type": "coordinator", "@order": "1", "legalName": "Uni A"},
						map[string]any{"@type": "participant", "@order": "2", "legalName": "Org B"},
						map[string]any{"@type": "participant", "@order": "3", "legalName": "Org C"},
					},
				},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeXML mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeXML_TextWithAttributes(t *testing.T) {
	got, err := DecodeXML(strings.NewReader(`<r><code lang="en">H2020</code></r>`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"r": map[string]any{
		"code": map[string]any{"@lang": "en", "#text": "H2020"},
	}}, got)
}

func TestDecodeXML_Errors(t *testing.T) {
	for _, in := range []string{"", "   ", "not xml at all"} {
		_, err := DecodeXML(strings.NewReader(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestCordisClient_Fetch(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.UserAgent()
		switch r.URL.Path {
		case "/project/id/101000123":
			w.Write([]byte(sampleRecord))
		case "/project/id/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/project/id/broken":
			w.Write([]byte("<html><body>oops"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c := NewCordisClient(types.RegistryConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "test-agent/1.0", MaxRetries: 1},
		BaseURL:    ts.URL + "/",
	}, ts.Client(), nil)

	rec, err := c.Fetch(context.Background(), "101000123", "")
	require.NoError(t, err)
	assert.Equal(t, "/project/id/101000123", gotPath)
	assert.Equal(t, "format=xml", gotQuery)
	assert.Equal(t, "test-agent/1.0", gotUA)
	project := rec.(map[string]any)["project"].(map[string]any)
	assert.Equal(t, "AQUA", project["acronym"])

	_, err = c.Fetch(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	_, err = c.Fetch(context.Background(), "other", "")
	require.Error(t, err)
	assert.Equal(t, types.KindFetch, types.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 500")

	_, err = c.Fetch(context.Background(), "broken", "")
	require.Error(t, err)
	assert.Equal(t, types.KindMalformedRecord, types.KindOf(err))
}

func TestCordisClient_RetriesThrottling(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleRecord))
	}))
	defer ts.Close()

	c := NewCordisClient(types.RegistryConfig{BaseURL: ts.URL, HTTPConfig: types.HTTPConfig{MaxRetries: 3}}, ts.Client(), nil)
	_, err := c.Fetch(context.Background(), "101000123", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("1.yaml", "project:\n  id: 1\n  title: From YAML\n")
	write("2.json", `{"project": {"id": 2, "title": "From JSON"}}`)
	write("3.xml", `<project><id>3</id><title>From XML</title></project>`)
	write("4.json", `{not json`)

	f := DirFetcher{Dir: dir}
	ctx := context.Background()

	for id, title := range map[types.ProjectID]string{"1": "From YAML", "2": "From JSON", "3": "From XML"} {
		rec, err := f.Fetch(ctx, id, "")
		require.NoError(t, err, id)
		assert.Equal(t, title, rec.(map[string]any)["project"].(map[string]any)["title"], id)
	}

	_, err := f.Fetch(ctx, "4", "")
	assert.Equal(t, types.KindMalformedRecord, types.KindOf(err))

	_, err = f.Fetch(ctx, "5", "")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	_, err = f.Fetch(ctx, "../etc/passwd", "")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestSaveRecord_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := DecodeXML(strings.NewReader(sampleRecord))
	require.NoError(t, err)

	require.NoError(t, SaveRecord(dir, "101000123", rec))

	got, err := DirFetcher{Dir: dir}.Fetch(context.Background(), "101000123", "")
	require.NoError(t, err)
	if diff := cmp.Diff(types.RawRecord(rec), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
