package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
)

// RunDir is the file-backed record store for one pipeline run. Each
// stage's records are YAML files under the run directory, named by the
// stage prefix plus the sanitized lineage key tuple.
type RunDir struct {
	path string
	log  *slog.Logger
}

// NewRunDir wraps an existing run directory. The directory is created if
// absent.
func NewRunDir(path string, log *slog.Logger) (*RunDir, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &RunDir{path: path, log: log}, nil
}

// Path returns the run directory path.
func (d *RunDir) Path() string { return d.path }

// recordPath builds the absolute path of one stage record.
func (d *RunDir) recordPath(stage lineage.Stage, keys ...string) string {
	return filepath.Join(d.path, lineage.RecordName(stage, keys...))
}

// Save writes one stage record. Existing records are never rewritten
// unless force is set; skipping is what makes stage reruns idempotent.
// Returns true when the record was written.
func (d *RunDir) Save(stage lineage.Stage, record any, force bool, keys ...string) (bool, error) {
	path := d.recordPath(stage, keys...)
	if !force {
		if _, err := os.Stat(path); err == nil {
			d.log.Debug("record exists, skipping", "record", filepath.Base(path))
			return false, nil
		}
	}
	if err := model.WriteYAMLFile(path, record); err != nil {
		return false, fmt.Errorf("save %s record: %w", stage, err)
	}
	d.log.Debug("record saved", "record", filepath.Base(path))
	return true, nil
}

// Exists reports whether the record for the key tuple was saved.
func (d *RunDir) Exists(stage lineage.Stage, keys ...string) (bool, error) {
	_, err := os.Stat(d.recordPath(stage, keys...))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Update rewrites an existing stage record in place. Used by stages that
// own their records and legitimately mutate them (execution state,
// issue transitions).
func (d *RunDir) Update(stage lineage.Stage, record any, keys ...string) error {
	path := d.recordPath(stage, keys...)
	if err := model.WriteYAMLFile(path, record); err != nil {
		return fmt.Errorf("update %s record: %w", stage, err)
	}
	return nil
}

// Names lists the record filenames of one stage in sorted order. Sorted
// iteration keeps downstream processing deterministic.
func (d *RunDir) Names(stage lineage.Stage) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, stage.Prefix()) && strings.HasSuffix(n, ".yaml") {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one named record into v.
func (d *RunDir) Load(name string, v any) error {
	return model.ReadYAMLFile(filepath.Join(d.path, name), v)
}

// LoadAll reads every record of one stage, in sorted name order, calling
// fn with each filename. fn receives the name so it can load the record
// into the appropriate type and track lineage.
func (d *RunDir) LoadAll(stage lineage.Stage, fn func(name string) error) error {
	names, err := d.Names(stage)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

// CopyForward imports a prior run's records for one stage into dst
// unchanged. Records dst already holds are left alone, so a partially
// populated run keeps its own state. Returns how many records were
// copied.
func CopyForward(src, dst *RunDir, stage lineage.Stage) (int, error) {
	names, err := src.Names(stage)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(src.path, name))
		if err != nil {
			return copied, fmt.Errorf("copy %s record: %w", stage, err)
		}
		target := filepath.Join(dst.path, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return copied, fmt.Errorf("copy %s record: %w", stage, err)
		}
		copied++
	}
	if copied > 0 {
		dst.log.Debug("records copied forward", "stage", stage.String(), "records", copied)
	}
	return copied, nil
}

// Clear removes all records of the named stage and every later stage.
// Clearing a stage without its successors would leave orphaned lineage,
// so the cut always runs to the end of the pipeline.
func (d *RunDir) Clear(from lineage.Stage) error {
	for _, stage := range lineage.Stages() {
		if stage.Before(from) {
			continue
		}
		names, err := d.Names(stage)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := os.Remove(filepath.Join(d.path, name)); err != nil {
				return fmt.Errorf("clear %s record: %w", stage, err)
			}
		}
		if len(names) > 0 {
			d.log.Debug("stage cleared", "stage", stage.String(), "records", len(names))
		}
	}
	return nil
}

// Empty reports whether the run holds no records for stage.
func (d *RunDir) Empty(stage lineage.Stage) (bool, error) {
	names, err := d.Names(stage)
	if err != nil {
		return false, err
	}
	return len(names) == 0, nil
}
