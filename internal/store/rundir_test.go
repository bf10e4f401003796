package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/lineage"
)

type fakeRecord struct {
	Name  string `yaml:"name"`
	Value int    `yaml:"value"`
}

func newTestRunDir(t *testing.T) *RunDir {
	t.Helper()
	d, err := NewRunDir(t.TempDir(), nil)
	require.NoError(t, err)
	return d
}

func TestSaveSkipsExistingRecord(t *testing.T) {
	d := newTestRunDir(t)

	wrote, err := d.Save(lineage.StageEvent, fakeRecord{Name: "first", Value: 1}, false, "E1", "J1")
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = d.Save(lineage.StageEvent, fakeRecord{Name: "second", Value: 2}, false, "E1", "J1")
	require.NoError(t, err)
	assert.False(t, wrote)

	var got fakeRecord
	require.NoError(t, d.Load(lineage.RecordName(lineage.StageEvent, "E1", "J1"), &got))
	assert.Equal(t, "first", got.Name)
}

func TestSaveForceOverwrites(t *testing.T) {
	d := newTestRunDir(t)

	_, err := d.Save(lineage.StageEvent, fakeRecord{Name: "first"}, false, "E1", "J1")
	require.NoError(t, err)
	wrote, err := d.Save(lineage.StageEvent, fakeRecord{Name: "second"}, true, "E1", "J1")
	require.NoError(t, err)
	assert.True(t, wrote)

	var got fakeRecord
	require.NoError(t, d.Load(lineage.RecordName(lineage.StageEvent, "E1", "J1"), &got))
	assert.Equal(t, "second", got.Name)
}

func TestExists(t *testing.T) {
	d := newTestRunDir(t)

	ok, err := d.Exists(lineage.StageReport, "E1", "J1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Save(lineage.StageReport, fakeRecord{Name: "rec"}, false, "E1", "J1")
	require.NoError(t, err)
	ok, err = d.Exists(lineage.StageReport, "E1", "J1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNamesAreSortedAndStageScoped(t *testing.T) {
	d := newTestRunDir(t)

	_, err := d.Save(lineage.StageEvent, fakeRecord{}, false, "E2", "Jb")
	require.NoError(t, err)
	_, err = d.Save(lineage.StageEvent, fakeRecord{}, false, "E1", "Ja")
	require.NoError(t, err)
	_, err = d.Save(lineage.StageIssue, fakeRecord{}, false, "E1", "Ja", "ISSUE-1")
	require.NoError(t, err)

	names, err := d.Names(lineage.StageEvent)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"event-E1-Ja.yaml",
		"event-E2-Jb.yaml",
	}, names)
}

func TestClearRemovesStageAndSuccessors(t *testing.T) {
	d := newTestRunDir(t)

	stages := []lineage.Stage{
		lineage.StageEvent, lineage.StageIssue, lineage.StageSchedule,
		lineage.StageExecute, lineage.StageReport,
	}
	for _, st := range stages {
		_, err := d.Save(st, fakeRecord{}, false, "E1", "J1")
		require.NoError(t, err)
	}

	require.NoError(t, d.Clear(lineage.StageSchedule))

	for _, st := range []lineage.Stage{lineage.StageEvent, lineage.StageIssue} {
		empty, err := d.Empty(st)
		require.NoError(t, err)
		assert.False(t, empty, "stage %s should survive", st)
	}
	for _, st := range []lineage.Stage{lineage.StageSchedule, lineage.StageExecute, lineage.StageReport} {
		empty, err := d.Empty(st)
		require.NoError(t, err)
		assert.True(t, empty, "stage %s should be cleared", st)
	}
}

func TestExtractSkipsExistingFiles(t *testing.T) {
	src := newTestRunDir(t)
	_, err := src.Save(lineage.StageEvent, fakeRecord{Name: "archived"}, false, "E1", "J1")
	require.NoError(t, err)
	_, err = src.Save(lineage.StageEvent, fakeRecord{Name: "other"}, false, "E2", "J2")
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "run.tar.gz")
	require.NoError(t, Archive(src.Path(), archive))

	dest := newTestRunDir(t)
	_, err = dest.Save(lineage.StageEvent, fakeRecord{Name: "local"}, false, "E1", "J1")
	require.NoError(t, err)

	require.NoError(t, Extract(archive, dest.Path()))

	var got fakeRecord
	require.NoError(t, dest.Load(lineage.RecordName(lineage.StageEvent, "E1", "J1"), &got))
	assert.Equal(t, "local", got.Name, "existing record must not be clobbered")

	require.NoError(t, dest.Load(lineage.RecordName(lineage.StageEvent, "E2", "J2"), &got))
	assert.Equal(t, "other", got.Name)
}
