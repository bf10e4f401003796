package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/event"
	"github.com/weaverqa/weaver/internal/issues"
	"github.com/weaverqa/weaver/internal/model"
	"github.com/weaverqa/weaver/internal/orchestrator"
)

// fakeSource serves fixed artifact payloads.
type fakeSource struct {
	errata map[string][]model.Erratum
}

func (f *fakeSource) FetchAdvisory(_ context.Context, id string) ([]model.Erratum, error) {
	e, ok := f.errata[id]
	if !ok {
		return nil, fmt.Errorf("unknown advisory %s", id)
	}
	return e, nil
}

func (f *fakeSource) FetchCompose(_ context.Context, id string) (*model.Compose, error) {
	return &model.Compose{ID: id}, nil
}

func (f *fakeSource) FetchTrackerIssue(_ context.Context, key string) (*event.TrackerIssue, error) {
	return &event.TrackerIssue{Key: key, Summary: "tracker summary", Priority: "Normal"}, nil
}

func (f *fakeSource) FetchMergeRequest(_ context.Context, url string) (*model.MergeRequest, error) {
	return &model.MergeRequest{ID: url, BuildTarget: "rhel-9.4.0-candidate"}, nil
}

// memTracker is an in-memory tracker with substring marker search.
type memTracker struct {
	mu          sync.Mutex
	seq         int
	issues      map[string]*memIssue
	comments    map[string][]string
	transitions map[string][]string
}

type memIssue struct {
	description string
	open        bool
}

func newMemTracker() *memTracker {
	return &memTracker{
		issues:      map[string]*memIssue{},
		comments:    map[string][]string{},
		transitions: map[string][]string{},
	}
}

func (t *memTracker) FindByMarker(_ context.Context, marker string, includeClosed bool) ([]issues.FoundIssue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []issues.FoundIssue
	for key, is := range t.issues {
		if !strings.Contains(is.description, marker) {
			continue
		}
		if !is.open && !includeClosed {
			continue
		}
		out = append(out, issues.FoundIssue{Key: key, Description: is.description, Open: is.open})
	}
	return out, nil
}

func (t *memTracker) Create(_ context.Context, fields issues.CreateFields) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	key := fmt.Sprintf("PROJ-%d", t.seq)
	t.issues[key] = &memIssue{description: fields.Description, open: true}
	return key, nil
}

func (t *memTracker) Update(_ context.Context, key string, fields map[string]any) error {
	return nil
}

func (t *memTracker) Transition(_ context.Context, key, state string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitions[key] = append(t.transitions[key], state)
	return nil
}

func (t *memTracker) Comment(_ context.Context, key, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.comments[key] = append(t.comments[key], text)
	return nil
}

func (t *memTracker) Link(_ context.Context, key, relation, otherKey string) error {
	return nil
}

func (t *memTracker) ResolveSprint(_ context.Context, board string, selector issues.SprintSelector) (string, error) {
	return "sprint-1", nil
}

// passBackend completes every request with a passed result.
type passBackend struct{}

func (passBackend) Submit(_ context.Context, job model.ScheduleJob) (orchestrator.Handle, error) {
	return orchestrator.Handle{
		ID:  "tf-" + job.Request.ID,
		API: "https://farm.test/requests/tf-" + job.Request.ID,
	}, nil
}

func (passBackend) Poll(context.Context, orchestrator.Handle) (orchestrator.Status, error) {
	return orchestrator.Status{
		State:        model.StateComplete,
		Result:       model.ResultPassed,
		ArtifactsURL: "https://farm.test/artifacts",
	}, nil
}

func (passBackend) Cancel(context.Context, orchestrator.Handle) error { return nil }

// memLaunches records launch lifecycle calls.
type memLaunches struct {
	mu           sync.Mutex
	seq          int
	finalized    []string
	descriptions map[string]string
}

func newMemLaunches() *memLaunches {
	return &memLaunches{descriptions: map[string]string{}}
}

func (l *memLaunches) CreateLaunch(_ context.Context, launch model.Launch) (model.Launch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	launch.UUID = fmt.Sprintf("launch-%d", l.seq)
	launch.URL = "https://launches.test/" + launch.UUID
	return launch, nil
}

func (l *memLaunches) MergeLaunches(_ context.Context, uuids []string, into model.Launch) (model.Launch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	into.UUID = fmt.Sprintf("merged-%d", l.seq)
	into.URL = "https://launches.test/" + into.UUID
	return into, nil
}

func (l *memLaunches) Finalize(_ context.Context, uuid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalized = append(l.finalized, uuid)
	return nil
}

func (l *memLaunches) UpdateDescription(_ context.Context, uuid, description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.descriptions[uuid] = description
	return nil
}

func setupEnv(t *testing.T) string {
	t.Helper()
	topdir := t.TempDir()
	t.Setenv("WEAVER_STATE_TOPDIR", topdir)
	t.Setenv("WEAVER_SHELL_KEY", "test-shell")
	t.Setenv("WEAVER_CONF_FILE", "")
	return topdir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSource() *fakeSource {
	return &fakeSource{errata: map[string][]model.Erratum{
		"2024:1234": {{
			ID:      "2024:1234",
			Summary: "bash bugfix update",
			Release: "RHEL-9.4.0.GA",
			Archs:   []model.Arch{model.ArchX8664},
			Builds:  []string{"bash-5.2-1.el9"},
		}},
	}}
}

const testRecipe = `
fixtures:
  plan:
    url: https://git.example.com/tests
    name: /plans/tier1
  environment:
    RELEASE: baseline
dimensions:
  VARIANT:
    - environment:
        VARIANT: alpha
    - environment:
        VARIANT: beta
`

func testIssueConfig(recipePath string) string {
	return `
project: PROJ
transitions:
  closed: ["Closed"]
  dropped: ["Obsolete"]
  processed: ["In Progress"]
  passed: ["Done"]
issues:
  - id: task_a
    summary: "Cover {{ .ERRATUM.ID }}"
    description: "track testing of {{ .ERRATUM.ID }}"
    auto_transition: true
    comment_triggers: [report]
    job_recipe: ` + recipePath + `
`
}

func runCLI(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(deps)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPipelineEndToEnd(t *testing.T) {
	topdir := setupEnv(t)
	dir := t.TempDir()
	recipePath := writeFile(t, dir, "recipe.yaml", testRecipe)
	configPath := writeFile(t, dir, "issues.yaml", testIssueConfig(recipePath))

	tracker := newMemTracker()
	launches := newMemLaunches()
	deps := &Deps{
		Source:   testSource(),
		Tracker:  tracker,
		Backend:  passBackend{},
		Launches: launches,
	}

	_, err := runCLI(t, deps, "pipeline", "event,jira,schedule,execute,report",
		"-e", "2024:1234", "--issue-config", configPath)
	require.NoError(t, err)

	// one run directory with records for every stage
	runDir := filepath.Join(topdir, "run-1")
	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	byStage := map[string]int{}
	for _, e := range entries {
		prefix, _, _ := strings.Cut(e.Name(), "-")
		byStage[prefix]++
	}
	assert.Equal(t, 1, byStage["event"])
	assert.Equal(t, 1, byStage["issue"])
	// two dimension values on one architecture
	assert.Equal(t, 2, byStage["schedule"])
	assert.Equal(t, 2, byStage["execute"])
	assert.Equal(t, 1, byStage["report"])

	// the issue was created with a rendered summary and got its results
	require.Len(t, tracker.issues, 1)
	comments := tracker.comments["PROJ-1"]
	require.NotEmpty(t, comments)
	results := comments[len(comments)-1]
	assert.Contains(t, results, "Results for 2024:1234")
	assert.Contains(t, results, "passed")

	// auto-transition walked processed then passed
	assert.Equal(t, []string{"In Progress", "Done"}, tracker.transitions["PROJ-1"])

	// the launch was published and finalized
	require.Len(t, launches.finalized, 1)
	assert.Contains(t, launches.descriptions[launches.finalized[0]], "passed")

	// rerunning report succeeds without repeating comments, transitions
	// or launch finalization
	commentCount := len(tracker.comments["PROJ-1"])
	_, err = runCLI(t, deps, "report")
	require.NoError(t, err)
	assert.Len(t, tracker.comments["PROJ-1"], commentCount)
	assert.Equal(t, []string{"In Progress", "Done"}, tracker.transitions["PROJ-1"])
	assert.Len(t, launches.finalized, 1)
}

func TestPipelinePlaceholderWithoutTracker(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	recipePath := writeFile(t, dir, "recipe.yaml", testRecipe)

	deps := &Deps{Source: testSource()}
	_, err := runCLI(t, deps, "pipeline", "event,jira,schedule,execute",
		"-e", "2024:1234", "--job-recipe", recipePath)
	require.NoError(t, err)

	// the local placeholder backend completes everything as skipped
	out, err := runCLI(t, deps, "summarize")
	require.NoError(t, err)
	assert.Contains(t, out, model.PlaceholderIssuePrefix)
	assert.Contains(t, out, "2 skipped")
}

func TestEventRerunKeepsExistingRecords(t *testing.T) {
	topdir := setupEnv(t)
	deps := &Deps{Source: testSource()}

	_, err := runCLI(t, deps, "event", "-e", "2024:1234")
	require.NoError(t, err)

	runDir := filepath.Join(topdir, "run-1")
	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	record := filepath.Join(runDir, entries[0].Name())

	// backdate the record so a rewrite would show in the mtime
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(record, past, past))

	// same run via -P: the rerun succeeds and keeps the record as is
	_, err = runCLI(t, deps, "event", "-P", "-e", "2024:1234")
	require.NoError(t, err)
	info, err := os.Stat(record)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Before(time.Now().Add(-30*time.Minute)),
		"default rerun must not rewrite existing records")

	// --force rewrites it
	_, err = runCLI(t, deps, "event", "-P", "--force", "-e", "2024:1234")
	require.NoError(t, err)
	info, err = os.Stat(record)
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(time.Now().Add(-time.Minute)),
		"--force must rewrite existing records")
}

func TestJiraRequiresEventStage(t *testing.T) {
	setupEnv(t)
	deps := &Deps{Source: testSource(), Tracker: newMemTracker()}

	// a run exists but holds no event records
	_, err := runCLI(t, deps, "event", "-e", "2024:1234")
	require.NoError(t, err)
	_, err = runCLI(t, deps, "jira")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--issue-config or --job-recipe")
}

func TestExecuteRestartByResult(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	recipePath := writeFile(t, dir, "recipe.yaml", testRecipe)

	deps := &Deps{Source: testSource(), Backend: passBackend{}}
	_, err := runCLI(t, deps, "pipeline", "event,jira,schedule,execute",
		"-e", "2024:1234", "--job-recipe", recipePath)
	require.NoError(t, err)

	// nothing failed, so a failed-result restart has nothing to resubmit
	// and leaves the passed records alone
	_, err = runCLI(t, deps, "execute", "--restart-result", "failed")
	require.NoError(t, err)
	out, err := runCLI(t, deps, "summarize")
	require.NoError(t, err)
	assert.Contains(t, out, "2 passed")

	_, err = runCLI(t, deps, "execute", "--restart-result", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListShowsRuns(t *testing.T) {
	setupEnv(t)
	deps := &Deps{Source: testSource()}
	_, err := runCLI(t, deps, "event", "-e", "2024:1234")
	require.NoError(t, err)

	out, err := runCLI(t, deps, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
}

func TestParseStageList(t *testing.T) {
	stages, err := parseStageList("event,jira,execute")
	require.NoError(t, err)
	require.Len(t, stages, 3)

	_, err = parseStageList("execute,event")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline order")

	_, err = parseStageList("bogus")
	require.Error(t, err)
}

func TestParseKeyVals(t *testing.T) {
	m, err := parseKeyVals([]string{"A=1", "B=x=y"}, "--environment")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, m)

	_, err = parseKeyVals([]string{"broken"}, "--environment")
	require.Error(t, err)
}
