// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/project-catalogue/internal/config"
	"github.com/pdiddy/project-catalogue/internal/registry"
	"github.com/pdiddy/project-catalogue/pkg/types"
)

func defaultTable(t *testing.T) types.MappingTable {
	t.Helper()
	table, err := config.LoadMappings("")
	require.NoError(t, err)
	return table
}

func decode(t *testing.T, doc string) types.RawRecord {
	t.Helper()
	tree, err := registry.DecodeXML(strings.NewReader(doc))
	require.NoError(t, err)
	return tree
}

const h2020Record = `<project>
  <id>776692</id>
  <acronym>WATERAPP</acronym>
  <title>Smart &lt;b&gt;water&lt;/b&gt; apps</title>
  <objective>&lt;p&gt;We build&amp;nbsp;tools.&lt;/p&gt;&lt;p&gt;And data.&lt;/p&gt;</objective>
  <startDate>2018-05-01</startDate>
  <endDate>30/04/2021</endDate>
  <ecSignatureDate>sometime in 2018</ecSignatureDate>
  <grantDoi>10.3030/776692</grantDoi>
  <frameworkProgramme>H2020</frameworkProgramme>
  <relations>
    <associations>
      <organization type="coordinator"><legalName>Uni A</legalName></organization>
      <organization type="participant"><legalName>Org B</legalName></organization>
      <organization type="participant"><legalName>Uni A</legalName></organization>
      <programme type="relatedTopic"><code>SC5-2017</code></programme>
      <result type="relatedResult"><title>Paper one</title></result>
      <result type="relatedResult"><title>Paper two</title></result>
    </associations>
    <categories>
      <category classification="fundingSchemeProgramme"><code>RIA</code></category>
    </categories>
  </relations>
</project>`

func TestNormalize_H2020(t *testing.T) {
	got, err := Normalize(decode(t, h2020Record), types.ProgrammeH2020, defaultTable(t))
	require.NoError(t, err)

	want := types.Project{
		ID:            "776692",
		Programme:     types.ProgrammeH2020,
		Acronym:       "WATERAPP",
		Title:         "Smart water apps",
		Abstract:      "We build tools. And data.",
		Participants:  []string{"Uni A", "Org B"},
		Coordinator:   "Uni A",
		StartDate:     types.NewDate(2018, time.May, 1),
		EndDate:       types.NewDate(2021, time.April, 30),
		Topic:         "SC5-2017",
		FundingScheme: "RIA",
		GrantDOI:      "10.3030/776692",
		Publications:  []string{"Paper one", "Paper two"},
		Warnings:      []string{`signature_date: unparseable date "sometime in 2018"`},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(types.Date{})); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_MissingParticipantsYieldsEmptyList(t *testing.T) {
	rec := decode(t, `<project><id>1</id><title>Bare</title></project>`)
	got, err := Normalize(rec, types.ProgrammeH2020, defaultTable(t))
	require.NoError(t, err)

	assert.NotNil(t, got.Participants)
	assert.Empty(t, got.Participants)
	assert.NotNil(t, got.Publications)
	assert.Empty(t, got.Publications)
	assert.Equal(t, "", got.Coordinator)
	assert.True(t, got.StartDate.IsZero())
	assert.Empty(t, got.Warnings)
}

func TestNormalize_ProgrammeSpecificPaths(t *testing.T) {
	table := defaultTable(t)

	// The legacy schema keeps a teaser when no objective exists.
	fp7 := decode(t, `<project><rcn>90210</rcn><teaser>Old teaser</teaser></project>`)
	got, err := Normalize(fp7, types.ProgrammeFP7, table)
	require.NoError(t, err)
	assert.Equal(t, types.ProjectID("90210"), got.ID)
	assert.Equal(t, "Old teaser", got.Abstract)

	// The mid-generation mapping has no teaser path.
	got, err = Normalize(fp7, types.ProgrammeH2020, table)
	require.NoError(t, err)
	assert.Equal(t, "", got.Abstract)
}

func TestNormalize_YAMLRecordWithoutAttributePrefix(t *testing.T) {
	rec := map[string]any{
		"project": map[string]any{
			"id":    101000123,
			"title": "From YAML",
			"relations": map[string]any{
				"associations": map[string]any{
					"organization": []any{
						map[string]any{"type": "coordinator", "legalName": "Lead"},
						map[string]any{"type": "participant", "legalName": "Partner"},
					},
				},
			},
		},
	}
	got, err := Normalize(rec, types.ProgrammeHEU, defaultTable(t))
	require.NoError(t, err)
	assert.Equal(t, types.ProjectID("101000123"), got.ID)
	assert.Equal(t, "Lead", got.Coordinator)
	assert.Equal(t, []string{"Lead", "Partner"}, got.Participants)
}

func TestNormalize_Errors(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name      string
		raw       types.RawRecord
		programme types.Programme
		kind      types.Kind
	}{
		{"unknown programme", map[string]any{}, "fp6", types.KindConfiguration},
		{"empty programme", map[string]any{}, "", types.KindConfiguration},
		{"nil record", nil, types.ProgrammeHEU, types.KindMalformedRecord},
		{"scalar record", "just text", types.ProgrammeHEU, types.KindMalformedRecord},
		{"list record", []any{map[string]any{}}, types.ProgrammeHEU, types.KindMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tt.programme, table)
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))
		})
	}
}

func TestNormalize_Pure(t *testing.T) {
	table := defaultTable(t)
	rec := decode(t, h2020Record)

	a, err := Normalize(rec, types.ProgrammeH2020, table)
	require.NoError(t, err)
	b, err := Normalize(rec, types.ProgrammeH2020, table)
	require.NoError(t, err)
	assert.True(t, cmp.Equal(a, b, cmp.AllowUnexported(types.Date{})))

	again := decode(t, h2020Record)
	assert.True(t, cmp.Equal(rec, again), "input record must not be mutated")
}

func TestNew_InvalidPath(t *testing.T) {
	table := defaultTable(t)
	table.Programmes[types.ProgrammeFP7] = types.ProgrammeMapping{
		Fields: map[types.CanonicalField][]string{types.FieldTitle: {"project..title"}},
	}
	_, err := New(table)
	require.Error(t, err)
	assert.True(t, types.IsConfiguration(err))
}

func TestDetectProgramme(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name    string
		doc     string
		want    types.Programme
		wantErr bool
	}{
		{"exact", `<project><frameworkProgramme>FP7</frameworkProgramme></project>`, types.ProgrammeFP7, false},
		{"alias", `<project><frameworkProgramme>Horizon Europe</frameworkProgramme></project>`, types.ProgrammeHEU, false},
		{"prefix", `<project><frameworkProgramme>HORIZON-CL6-2021</frameworkProgramme></project>`, types.ProgrammeHEU, false},
		{"nested with predicate", `<project><relations><associations>
			<programme type="relatedLegalBasis"><frameworkProgramme>H2020</frameworkProgramme></programme>
		</associations></relations></project>`, types.ProgrammeH2020, false},
		{"unknown marker", `<project><frameworkProgramme>FP6</frameworkProgramme></project>`, "", true},
		{"no marker", `<project><id>1</id></project>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectProgramme(decode(t, tt.doc), table)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.KindMalformedRecord, types.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompilePath(t *testing.T) {
	p, err := CompilePath("a.b[@type=x.y].c")
	require.NoError(t, err)
	require.Len(t, p.segs, 3)
	assert.Equal(t, segment{key: "b", attr: "type", value: "x.y"}, p.segs[1])

	for _, bad := range []string{"", "a..b", "a[type=x]", "a.[@t=x]"} {
		_, err := CompilePath(bad)
		assert.Error(t, err, bad)
	}
}

func TestPathLookup_ListsAndText(t *testing.T) {
	tree := map[string]any{
		"r": map[string]any{
			"item": []any{
				map[string]any{"@kind": "A", "#text": "first"},
				map[string]any{"@kind": "b", "#text": "second"},
				"third",
			},
		},
	}
	p, err := CompilePath("r.item")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, p.Lookup(tree))

	p, err = CompilePath("r.item[@kind=a]")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, p.Lookup(tree))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain  text\n here", "plain text here"},
		{"<p>One</p><p>Two</p>", "One Two"},
		{"<jats:p>Abstract &amp; more</jats:p>", "Abstract & more"},
		{"R&D <b>bold</b>ly", "R&D boldly"},
		{"<script>alert(1)</script>safe", "safe"},
		{"a < b", "a < b"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in), tt.in)
	}
}

func TestParseDate(t *testing.T) {
	want := types.NewDate(2021, time.March, 9)
	for _, in := range []string{
		"2021-03-09",
		"2021-03-09T10:00:00Z",
		"2021-03-09T23:30:00-05:00",
		"2021-03-09T10:00:00",
		"2021-03-09 10:00:00",
		"09/03/2021",
		"2021/03/09",
		"20210309",
		"09.03.2021",
	} {
		got, ok := ParseDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want.String(), got.String(), in)
	}

	_, ok := ParseDate("March 2021")
	assert.False(t, ok)
	_, ok = ParseDate("  ")
	assert.False(t, ok)
}
