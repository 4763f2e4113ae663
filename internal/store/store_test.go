// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/project-catalogue/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func okEntry(id types.ProjectID, tool string) types.Entry {
	return types.Succeeded(types.ProgrammeH2020, types.ValidatedResult{
		ProjectID: id,
		Fields: []types.FieldValue{
			{Name: "tool_names", Type: types.FieldList, Value: []string{tool}},
			{Name: "kinds", Type: types.FieldEnumList, Value: []string{}},
			{Name: "partners", Type: types.FieldInt, Value: int64(7)},
			{Name: "score", Type: types.FieldFloat, Value: 0.25},
			{Name: "open", Type: types.FieldBool, Value: nil},
			{Name: "released", Type: types.FieldDate, Value: types.NewDate(2020, time.March, 1)},
			{Name: "area", Type: types.FieldEnum, Value: "drought"},
		},
	}, "hash-"+string(id))
}

var dateCmp = cmp.AllowUnexported(types.Date{})

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(dir, DBFile))
	assert.NoError(t, err)

	// Reopening an existing database keeps the schema.
	s, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestJournal_FlushAndExport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	runID, err := s.BeginRun(ctx, "ids.csv", 3)
	require.NoError(t, err)
	j := s.Journal(runID)
	assert.Equal(t, runID, j.RunID())

	failed := types.Failed("2", types.ProgrammeFP7, &types.Failure{
		Kind: types.KindSchemaViolation, Message: "schema violation", Problems: []string{"a", "b"}, Attempts: 1,
	})
	// Completion order differs from batch order.
	require.NoError(t, j.Flush(ctx, 2, okEntry("3", "C")))
	require.NoError(t, j.Flush(ctx, 0, okEntry("1", "A")))
	require.NoError(t, j.Flush(ctx, 1, failed))

	got, err := s.Export(ctx, runID)
	require.NoError(t, err)
	want := []types.Entry{okEntry("1", "A"), failed, okEntry("3", "C")}
	if diff := cmp.Diff(want, got, dateCmp); diff != "" {
		t.Errorf("Export() mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, s.FinishRun(ctx, runID, 2, 1))
	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Total)
	assert.Equal(t, 2, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestJournal_ReflushReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	runID, err := s.BeginRun(ctx, "", 1)
	require.NoError(t, err)
	j := s.Journal(runID)

	require.NoError(t, j.Flush(ctx, 0, okEntry("1", "old")))
	require.NoError(t, j.Flush(ctx, 0, okEntry("1", "new")))

	got, err := s.Export(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	tools, _ := got[0].Result.Field("tool_names")
	assert.Equal(t, []string{"new"}, tools.Value)
}

func TestLookup_LatestSuccess(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, found, err := s.Lookup(ctx, "1")
	require.NoError(t, err)
	assert.False(t, found)

	run1, err := s.BeginRun(ctx, "", 1)
	require.NoError(t, err)
	require.NoError(t, s.Journal(run1).Flush(ctx, 0, okEntry("1", "first")))

	// A later failure does not replace the stored success.
	run2, err := s.BeginRun(ctx, "", 1)
	require.NoError(t, err)
	require.NoError(t, s.Journal(run2).Flush(ctx, 0,
		types.Failed("1", types.ProgrammeH2020, &types.Failure{Kind: types.KindFetch, Message: "timeout"})))

	got, found, err := s.Lookup(ctx, "1")
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff(okEntry("1", "first"), got, dateCmp); diff != "" {
		t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LatestRun(ctx)
	assert.Error(t, err)

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	_, err = s.BeginRun(ctx, "a", 0)
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, "b", 0)
	require.NoError(t, err)

	got, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestExport_UnknownRun(t *testing.T) {
	_, err := openTestStore(t).Export(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestFinishRun_UnknownRun(t *testing.T) {
	err := openTestStore(t).FinishRun(context.Background(), "nope", 0, 0)
	assert.Error(t, err)
}

func TestResponseCache(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.CachedResponse(ctx, "h", "gemini:m")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.StoreResponse(ctx, "h", "gemini:m", "reply one"))
	require.NoError(t, s.StoreResponse(ctx, "h", "gemini:m", "reply two"))

	got, ok, err := s.CachedResponse(ctx, "h", "gemini:m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "reply two", got)

	_, ok, err = s.CachedResponse(ctx, "h", "claude:m")
	require.NoError(t, err)
	assert.False(t, ok, "replies are cached per model")
}

func TestDecodeFields_Errors(t *testing.T) {
	_, err := decodeFields([]byte(`not json`))
	assert.Error(t, err)
	_, err = decodeFields([]byte(`[{"name":"n","type":"int","value":"seven"}]`))
	assert.ErrorContains(t, err, "field n")
}

func TestExportLatest_LaterRunWins(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.BeginRun(ctx, "a.csv", 3)
	require.NoError(t, err)
	j := s.Journal(first)
	require.NoError(t, j.Flush(ctx, 0, okEntry("1", "old")))
	require.NoError(t, j.Flush(ctx, 1, okEntry("2", "kept")))
	require.NoError(t, j.Flush(ctx, 2, okEntry("3", "old")))

	second, err := s.BeginRun(ctx, "b.csv", 3)
	require.NoError(t, err)
	j = s.Journal(second)
	require.NoError(t, j.Flush(ctx, 0, okEntry("4", "new")))
	require.NoError(t, j.Flush(ctx, 1, okEntry("1", "new")))
	// A failure in a later run does not hide an earlier success.
	require.NoError(t, j.Flush(ctx, 2, types.Failed("3", types.ProgrammeH2020, &types.Failure{Kind: types.KindParse})))

	got, err := s.ExportLatest(ctx)
	require.NoError(t, err)
	want := []types.Entry{okEntry("2", "kept"), okEntry("3", "old"), okEntry("4", "new"), okEntry("1", "new")}
	if diff := cmp.Diff(want, got, dateCmp); diff != "" {
		t.Errorf("ExportLatest() mismatch (-want +got):\n%s", diff)
	}
}

func TestExportLatest_Empty(t *testing.T) {
	got, err := openTestStore(t).ExportLatest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
