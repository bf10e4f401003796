package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPreservesDimensionOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "recipe.yaml", `
fixtures:
  environment:
    GALAXY: Milky Way
dimensions:
  ZEBRA:
    - environment:
        Z: "1"
  APPLE:
    - environment:
        A: "1"
  MIDDLE:
    - environment:
        M: "1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Dimensions, 3)
	assert.Equal(t, "ZEBRA", cfg.Dimensions[0].Name)
	assert.Equal(t, "APPLE", cfg.Dimensions[1].Name)
	assert.Equal(t, "MIDDLE", cfg.Dimensions[2].Name)
}

func TestLoadIncludesMergeFixtures(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "base.yaml", `
fixtures:
  compose: RHEL-9.4.0-Nightly
  environment:
    FROM_BASE: "yes"
    SHARED: base
adjustments:
  - environment:
      BASE_ADJ: "yes"
`)
	main := writeDoc(t, dir, "main.yaml", `
include:
  - `+filepath.Join(dir, "base.yaml")+`
fixtures:
  environment:
    SHARED: main
adjustments:
  - environment:
      MAIN_ADJ: "yes"
`)
	cfg, err := Load(main)
	require.NoError(t, err)

	// the document's own fixtures override the include's
	assert.Equal(t, "main", cfg.Fixtures.Environment["SHARED"])
	assert.Equal(t, "yes", cfg.Fixtures.Environment["FROM_BASE"])
	assert.Equal(t, "RHEL-9.4.0-Nightly", cfg.Fixtures.Compose)

	// included adjustments come before the document's own
	require.Len(t, cfg.Adjustments, 2)
	assert.Equal(t, "yes", cfg.Adjustments[0].Environment["BASE_ADJ"])
	assert.Equal(t, "yes", cfg.Adjustments[1].Environment["MAIN_ADJ"])
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeDoc(t, dir, "a.yaml", "include:\n  - "+b+"\n")
	writeDoc(t, dir, "b.yaml", "include:\n  - "+a+"\n")

	_, err := Load(a)
	require.Error(t, err)
	assert.True(t, IsIncludeCycle(err), "expected include cycle error, got %v", err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "bad.yaml", `
fixtures:
  environmnet:
    TYPO: "yes"
`)
	_, err := Load(path)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCodeSchema, rerr.Code)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCodeFetch, rerr.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := planetConfig()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeDoc(t, dir, "roundtrip.yaml", string(data))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
