package transfer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/goalritual/goalritual/internal/model"
	"github.com/goalritual/goalritual/internal/store"
)

var exportTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "goalritual.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGoals() []model.Goal {
	hidden := false
	return []model.Goal{
		{
			ID: "g1", Title: "Run a marathon", Tags: []string{"health"}, Priority: 3,
			TargetDate: "2026-10-01",
			Milestones: []model.Milestone{
				{ID: "m1", Title: "10k", Completed: true, Tasks: []model.Task{{ID: "t1", Title: "Buy shoes", Completed: true}}},
				{ID: "m2", Title: "Half", TargetDate: "2026-06-01"},
			},
		},
		{ID: "g2", Title: "Read more", Tags: []string{}, Milestones: []model.Milestone{}, ShowProgress: &hidden, NegativeImpactOn: []string{"g1"}},
		{ID: "g3", Title: "Learn Go", Tags: []string{"craft"}, Milestones: []model.Milestone{{ID: "m3", Title: "Tour", LinkedGoalID: "g1"}}},
	}
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WriteSet(ctx, s, store.KeyGoals, sampleGoals()))
	require.NoError(t, store.WriteSet(ctx, s, store.KeyLifePurpose, "Leave things better"))
	require.NoError(t, store.WriteSet(ctx, s, store.KeyPinnedInsights, []model.PinnedInsight{
		{ID: "p1", Text: "Mornings work best", PinnedAt: exportTime},
		{ID: "p2", Text: "Rest days matter", PinnedAt: exportTime},
	}))
}

func TestExportIncludesEveryField(t *testing.T) {
	s := newStore(t)
	seed(t, s)

	data, err := Export(context.Background(), s, FormatJSON, exportTime)
	require.NoError(t, err)

	root := gjson.ParseBytes(data)
	for _, d := range store.Datasets {
		assert.True(t, root.Get(d.ExportField).Exists(), "missing field %s", d.ExportField)
	}
	assert.Equal(t, "2.0", root.Get("version").String())
	assert.Equal(t, "2026-03-10T12:00:00Z", root.Get("exportedAt").String())
	assert.Equal(t, "[]", root.Get("journalEntries").Raw)
	assert.Equal(t, "{}", root.Get("aiSuggestions").Raw)
	assert.Equal(t, "Leave things better", root.Get("lifePurpose").String())
	assert.Len(t, root.Get("goals").Array(), 3)
}

func TestRoundTripReproducesGoals(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	seed(t, src)

	data, err := Export(ctx, src, FormatJSON, exportTime)
	require.NoError(t, err)

	dst := newStore(t)
	_, err = Import(ctx, dst, data, FormatJSON)
	require.NoError(t, err)

	srcGoals, _, err := src.Get(ctx, store.KeyGoals)
	require.NoError(t, err)
	dstGoals, _, err := dst.Get(ctx, store.KeyGoals)
	require.NoError(t, err)
	assert.Equal(t, srcGoals, dstGoals)

	assert.Equal(t, sampleGoals(), store.ReadSet(ctx, dst, store.KeyGoals, []model.Goal{}))
}

func TestYAMLRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	seed(t, src)

	data, err := Export(ctx, src, FormatYAML, exportTime)
	require.NoError(t, err)
	assert.Contains(t, string(data), "goals:")
	assert.Contains(t, string(data), "version:")

	dst := newStore(t)
	_, err = Import(ctx, dst, data, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, sampleGoals(), store.ReadSet(ctx, dst, store.KeyGoals, []model.Goal{}))
	assert.Equal(t, "Leave things better", store.ReadSet(ctx, dst, store.KeyLifePurpose, ""))
}

// An import carrying an empty pinnedInsights array keeps the existing ones.
func TestImportPreservesDatasetsMissingOrEmptyInFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s)

	doc := map[string]any{
		"goals": []map[string]any{
			{"id": "n1", "title": "One"},
			{"id": "n2", "title": "Two"},
			{"id": "n3", "title": "Three"},
		},
		"pinnedInsights": []any{},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	res, err := Import(ctx, s, data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{store.KeyGoals}, res.Written)

	pinned := store.ReadSet(ctx, s, store.KeyPinnedInsights, []model.PinnedInsight{})
	assert.Len(t, pinned, 2)
	assert.Equal(t, "Leave things better", store.ReadSet(ctx, s, store.KeyLifePurpose, ""))
	assert.Len(t, store.ReadSet(ctx, s, store.KeyGoals, []model.Goal{}), 3)
}

func TestImportKeepsJSONLikeLifePurpose(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	require.NoError(t, store.WriteSet(ctx, src, store.KeyGoals, sampleGoals()))
	require.NoError(t, store.WriteSet(ctx, src, store.KeyLifePurpose, "null"))

	data, err := Export(ctx, src, FormatJSON, exportTime)
	require.NoError(t, err)
	assert.Equal(t, `"null"`, gjson.GetBytes(data, "lifePurpose").Raw)

	dst := newStore(t)
	res, err := Import(ctx, dst, data, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, res.Written, store.KeyLifePurpose)
	assert.Equal(t, "null", store.ReadSet(ctx, dst, store.KeyLifePurpose, "<fallback>"))
}

func TestParseRejectsBadGoals(t *testing.T) {
	cases := map[string]string{
		"missing goals":   `{"version":"2.0"}`,
		"goals not array": `{"goals":{"id":"g1"}}`,
		"empty goals":     `{"goals":[]}`,
		"not json":        `{"goals":[`,
		"top level array": `[{"id":"g1"}]`,
		"self impact":     `{"goals":[{"id":"g1","title":"x","negativeImpactOn":["g1"]}]}`,
		"bad field type":  `{"goals":[{"id":"g1","title":"x"}],"lifePurpose":[1]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidImport)
		})
	}
}

func TestParseVersion(t *testing.T) {
	goals := `"goals":[{"id":"g1","title":"x"}]`

	_, err := Parse([]byte(`{`+goals+`,"version":"3.0"}`), FormatJSON)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	for _, v := range []string{"1.0", "2.0", "2.5"} {
		_, err := Parse([]byte(`{`+goals+`,"version":"`+v+`"}`), FormatJSON)
		assert.NoError(t, err, "version %s", v)
	}

	_, err = Parse([]byte(`{`+goals+`}`), FormatJSON)
	assert.NoError(t, err, "missing version is a legacy export")

	_, err = Parse([]byte(`{`+goals+`,"version":"two"}`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidImport)
}

func TestParseRejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seed(t, s)

	_, err := Import(ctx, s, []byte(`{"goals":[],"lifePurpose":"replaced"}`), FormatJSON)
	require.Error(t, err)
	assert.Equal(t, "Leave things better", store.ReadSet(ctx, s, store.KeyLifePurpose, ""))
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("backup.YML"))
	assert.Equal(t, FormatYAML, FormatForPath("backup.yaml"))
	assert.Equal(t, FormatJSON, FormatForPath("backup.json"))
	assert.Equal(t, FormatJSON, FormatForPath("backup"))

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}
