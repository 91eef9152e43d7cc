package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/clipmark/internal/model"
	"github.com/verte-zerg/clipmark/internal/store"
)

func TestParseEventTypeFlag(t *testing.T) {
	tests := []struct {
		raw     string
		want    model.EventTypeSpec
		wantErr bool
	}{
		{raw: "Jump:j:single", want: model.EventTypeSpec{Name: "Jump", KeyboardKey: "j", Category: model.CategorySingle}},
		{raw: "Half: time:h:Range", want: model.EventTypeSpec{Name: "Half: time", KeyboardKey: "h", Category: model.CategoryRange}},
		{raw: "Jump:j", wantErr: true},
		{raw: "Jump:j:sometimes", wantErr: true},
		{raw: ":j:single", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseEventTypeFlag(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateNewAnalysis(t *testing.T) {
	ok := model.NewAnalysis{Name: "a", Path: "/v.mp4", Duration: 1}
	assert.NoError(t, validateNewAnalysis(ok))

	noName := ok
	noName.Name = " "
	assert.Error(t, validateNewAnalysis(noName))

	negative := ok
	negative.Duration = -1
	assert.Error(t, validateNewAnalysis(negative))

	dup := ok
	dup.EventTypes = []model.EventTypeSpec{
		{Name: "Jump", KeyboardKey: "j", Category: model.CategorySingle},
		{Name: "Jump", KeyboardKey: "k", Category: model.CategoryRange},
	}
	assert.Error(t, validateNewAnalysis(dup))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"0", "-1", "abc"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestDefaultConfigTemplateIsCommented(t *testing.T) {
	for _, line := range strings.Split(defaultConfigTemplate(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "[") {
			continue
		}
		assert.Failf(t, "unexpected active line", "%q", line)
	}
}

func TestReshapeEvents(t *testing.T) {
	categories := map[int64]model.Category{1: model.CategoryRange}
	events := []model.Occurrence{
		{EventID: "a", EventTypeID: 1, StartTimestamp: 0, EndTimestamp: ptr(4)},
		{EventID: "b", EventTypeID: 1, StartTimestamp: 2, EndTimestamp: ptr(6)},
		{EventID: "c", EventTypeID: 1, StartTimestamp: 8, EndTimestamp: ptr(9)},
	}
	ids := func(occs []model.Occurrence) []string {
		out := make([]string, 0, len(occs))
		for _, o := range occs {
			out = append(out, o.EventID)
		}
		return out
	}
	reset := func() {
		exportExclude, exportMerge, exportSplit, exportDedupe = nil, false, false, false
	}
	t.Cleanup(reset)

	reset()
	assert.Equal(t, []string{"a", "b", "c"}, ids(reshapeEvents(events, nil)))

	reset()
	exportExclude = []string{"b"}
	assert.Equal(t, []string{"a", "c"}, ids(reshapeEvents(events, nil)))

	reset()
	exportDedupe = true
	assert.Equal(t, []string{"a", "c"}, ids(reshapeEvents(events, categories)))

	reset()
	exportExclude = []string{"a"}
	exportDedupe = true
	assert.Equal(t, []string{"b", "c"}, ids(reshapeEvents(events, categories)))

	reset()
	exportMerge = true
	merged := reshapeEvents(events, categories)
	require.Len(t, merged, 1)
	assert.Equal(t, 6.0, merged[0].End())
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("CLIPMARK_DB_PATH", "")
	t.Setenv("CLIPMARK_LOG_LEVEL", "")
	t.Setenv("CLIPMARK_EXPORT_DIR", "")
	return dir
}

func TestCLIAddShowExport(t *testing.T) {
	dir := isolateEnv(t)
	db := filepath.Join(dir, "clip.sqlite")

	out, err := runCLI(t, "--db", db, "add",
		"--name", "Session",
		"--path", "/videos/session.mp4",
		"--duration", "30",
		"--event-type", "Jump:j:single",
		"--event-type", "Duck:d:range",
	)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = runCLI(t, "--db", db, "show", "1", "--output", "yaml")
	require.NoError(t, err)
	var shown model.AnalysisWithEventTypes
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "Session", shown.Analysis.Name)
	require.Len(t, shown.EventTypes, 2)

	ids := map[string]int64{}
	for _, et := range shown.EventTypes {
		ids[et.Name] = et.ID
	}
	events := []model.Occurrence{
		{EventTypeID: ids["Duck"], StartTimestamp: 1, EndTimestamp: ptr(3)},
		{EventTypeID: ids["Duck"], StartTimestamp: 2, EndTimestamp: ptr(4)},
		{EventTypeID: ids["Jump"], StartTimestamp: 0.5},
	}
	eventsData, err := yaml.Marshal(events)
	require.NoError(t, err)
	eventsPath := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(eventsPath, eventsData, 0o644))

	csvPath := filepath.Join(dir, "out", "events.csv")
	_, err = runCLI(t, "--db", db, "export", "1", "--events", eventsPath, "--out", csvPath, "--merge")
	require.NoError(t, err)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Equal(t, "Event Type,Start Time,End Time", lines[0])
	assert.ElementsMatch(t, []string{"Jump,0.5,", "Duck,1,4"}, lines[1:])
}

func TestCLIExportDoesNotMarkOpened(t *testing.T) {
	dir := isolateEnv(t)
	db := filepath.Join(dir, "clip.sqlite")

	_, err := runCLI(t, "--db", db, "add", "--name", "S", "--path", "/s.mp4", "--event-type", "Duck:d:range")
	require.NoError(t, err)

	st, err := store.Open(db, zap.NewNop())
	require.NoError(t, err)
	_, err = st.Exec(context.Background(), `UPDATE analyses SET last_opened_at = ? WHERE id = 1`, "2000-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	eventsPath := filepath.Join(dir, "events.yaml")
	require.NoError(t, os.WriteFile(eventsPath, []byte("- event_type_id: 1\n  start_timestamp: 1\n  end_timestamp: 2\n"), 0o644))
	_, err = runCLI(t, "--db", db, "export", "1", "--events", eventsPath, "--out", filepath.Join(dir, "e.csv"), "--dedupe")
	require.NoError(t, err)

	out, err := runCLI(t, "--db", db, "list", "--output", "yaml")
	require.NoError(t, err)
	var analyses []model.Analysis
	require.NoError(t, yaml.Unmarshal([]byte(out), &analyses))
	require.Len(t, analyses, 1)
	assert.True(t, analyses[0].LastOpenedAt.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCLIShowMissingAnalysis(t *testing.T) {
	dir := isolateEnv(t)
	_, err := runCLI(t, "--db", filepath.Join(dir, "clip.sqlite"), "show", "7")
	require.Error(t, err)
	assert.Equal(t, "analysis 7: not found", err.Error())
}

func TestCLIRejectsMergeWithSplit(t *testing.T) {
	dir := isolateEnv(t)
	_, err := runCLI(t, "--db", filepath.Join(dir, "clip.sqlite"), "export", "1",
		"--events", filepath.Join(dir, "missing.yaml"), "--merge", "--split")
	assert.Error(t, err)

	_, err = runCLI(t, "--db", filepath.Join(dir, "clip.sqlite"), "export", "1",
		"--events", filepath.Join(dir, "missing.yaml"), "--merge", "--dedupe")
	assert.Error(t, err)
}

func ptr(v float64) *float64 {
	return &v
}
