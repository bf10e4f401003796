package issues

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/model"
)

// fakeTracker is an in-memory tracker with marker-substring search.
type fakeTracker struct {
	nextID  int
	issues  map[string]*fakeIssue
	created []string
}

type fakeIssue struct {
	key         string
	description string
	open        bool
	comments    []string
	links       map[string][]string
	state       string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{issues: map[string]*fakeIssue{}}
}

func (f *fakeTracker) FindByMarker(_ context.Context, marker string, includeClosed bool) ([]FoundIssue, error) {
	var out []FoundIssue
	for _, iss := range f.issues {
		if !strings.Contains(iss.description, marker) {
			continue
		}
		if !iss.open && !includeClosed {
			continue
		}
		out = append(out, FoundIssue{Key: iss.key, Description: iss.description, Open: iss.open})
	}
	return out, nil
}

func (f *fakeTracker) Create(_ context.Context, fields CreateFields) (string, error) {
	f.nextID++
	key := fmt.Sprintf("PROJ-%d", f.nextID)
	f.issues[key] = &fakeIssue{
		key:         key,
		description: fields.Description,
		open:        true,
		links:       map[string][]string{},
	}
	f.created = append(f.created, key)
	return key, nil
}

func (f *fakeTracker) Update(_ context.Context, key string, fields map[string]any) error {
	iss, ok := f.issues[key]
	if !ok {
		return fmt.Errorf("no such issue %s", key)
	}
	if d, ok := fields["description"].(string); ok {
		iss.description = d
	}
	return nil
}

func (f *fakeTracker) Transition(_ context.Context, key, state string) error {
	iss, ok := f.issues[key]
	if !ok {
		return fmt.Errorf("no such issue %s", key)
	}
	iss.state = state
	iss.open = false
	return nil
}

func (f *fakeTracker) Comment(_ context.Context, key, text string) error {
	iss, ok := f.issues[key]
	if !ok {
		return fmt.Errorf("no such issue %s", key)
	}
	iss.comments = append(iss.comments, text)
	return nil
}

func (f *fakeTracker) Link(_ context.Context, key, relation, otherKey string) error {
	iss, ok := f.issues[key]
	if !ok {
		return fmt.Errorf("no such issue %s", key)
	}
	iss.links[relation] = append(iss.links[relation], otherKey)
	return nil
}

func (f *fakeTracker) ResolveSprint(_ context.Context, board string, _ SprintSelector) (string, error) {
	return "sprint-1-of-" + board, nil
}

func testJob() model.ArtifactJob {
	return model.ArtifactJob{
		Event: model.Event{Type: model.EventErratum, ID: "2024:1234"},
		Erratum: &model.Erratum{
			ID:      "2024:1234",
			Release: "RHEL-9.4.0.Z.MAIN",
			Builds:  []string{"bash-5.2-1.el9"},
		},
		Compose: &model.Compose{ID: "RHEL-9.4.0-Nightly"},
	}
}

func testConfig() *Config {
	return &Config{
		Project: "PROJ",
		Transitions: Transitions{
			Closed:    []string{"Closed"},
			Dropped:   []string{"Obsolete"},
			Processed: []string{"In Progress"},
			Passed:    []string{"Done"},
		},
		Actions: []Action{
			{
				ID: "task_a", Type: TypeTask, OnRespin: RespinClose,
				Summary: "Test {{ .ERRATUM.ID }}", Description: "testing",
				JobRecipe: "https://example.com/recipe.yaml",
			},
		},
	}
}

func TestReconcileCreatesIssue(t *testing.T) {
	tracker := newFakeTracker()
	res, err := Reconcile(context.Background(), testJob(), testConfig(), tracker, Options{})
	require.NoError(t, err)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, StateCreated, res.Actions[0].State)
	assert.Equal(t, "PROJ-1", res.Actions[0].IssueKey)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "PROJ-1", res.Jobs[0].Issue.ID)
	assert.Equal(t, "https://example.com/recipe.yaml", res.Jobs[0].Recipe.URL)
	assert.Equal(t, "Test 2024:1234", res.Jobs[0].Issue.Summary)
}

func TestReconcileIsIdempotent(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()

	first, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, first.Actions[0].State)

	second, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateMapped, second.Actions[0].State)
	assert.Equal(t, first.Actions[0].IssueKey, second.Actions[0].IssueKey)
	// zero new issues on the second run
	assert.Len(t, tracker.created, 1)
	// the scheduled job is still emitted
	assert.Len(t, second.Jobs, 1)
}

func TestReconcileRespinClose(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()

	_, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)

	// respin: the build list changes, so the respin marker changes
	job.Erratum.Builds = []string{"bash-5.2-2.el9"}
	res, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, StateCreated, res.Actions[0].State)
	assert.Equal(t, []string{"PROJ-1"}, res.Actions[0].ObsoletedKeys)
	assert.Equal(t, "Obsolete", tracker.issues["PROJ-1"].state)
	assert.False(t, tracker.issues["PROJ-1"].open)
	assert.Contains(t, tracker.issues["PROJ-1"].comments[0], "Obsoleted by PROJ-2")
}

func TestReconcileRespinKeep(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()
	cfg.Actions[0].OnRespin = RespinKeep

	_, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)

	job.Erratum.Builds = []string{"bash-5.2-2.el9"}
	res, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateMapped, res.Actions[0].State)
	assert.Equal(t, "PROJ-1", res.Actions[0].IssueKey)
	assert.Len(t, tracker.created, 1)
}

func TestReconcileFoundClosedStops(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()

	_, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)

	// an operator closes the issue deliberately
	tracker.issues["PROJ-1"].open = false

	res, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateFoundClosed, res.Actions[0].State)
	assert.Empty(t, res.Jobs, "a closed issue suppresses scheduling")
	assert.Len(t, tracker.created, 1)
}

func TestReconcileRecreateIgnoresClosed(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()

	_, err := Reconcile(context.Background(), job, cfg, tracker, Options{})
	require.NoError(t, err)
	tracker.issues["PROJ-1"].open = false

	res, err := Reconcile(context.Background(), job, cfg, tracker, Options{Recreate: true})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, res.Actions[0].State)
	assert.Equal(t, "PROJ-2", res.Actions[0].IssueKey)
}

func TestReconcileMapIssueShortCircuits(t *testing.T) {
	tracker := newFakeTracker()
	existing, err := tracker.Create(context.Background(), CreateFields{Summary: "manual"})
	require.NoError(t, err)

	res, err := Reconcile(context.Background(), testJob(), testConfig(), tracker, Options{
		MapIssue: map[string]string{"task_a": existing},
	})
	require.NoError(t, err)
	assert.Equal(t, StateMapped, res.Actions[0].State)
	assert.Equal(t, existing, res.Actions[0].IssueKey)
	assert.Len(t, tracker.created, 1)
}

func TestReconcileMapIssueUnknownAction(t *testing.T) {
	_, err := Reconcile(context.Background(), testJob(), testConfig(), newFakeTracker(), Options{
		MapIssue: map[string]string{"typo_id": "PROJ-9"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action id")
}

func TestReconcileParentOrdering(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	// child declared before its parent: the queue defers it
	cfg.Actions = []Action{
		{ID: "child", Type: TypeTask, OnRespin: RespinClose, ParentID: "parent",
			Summary: "child", Description: "child"},
		{ID: "parent", Type: TypeEpic, OnRespin: RespinClose,
			Summary: "parent", Description: "parent"},
	}
	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{})
	require.NoError(t, err)

	require.Len(t, res.Actions, 2)
	assert.Equal(t, "parent", res.Actions[0].ActionID)
	assert.Equal(t, "child", res.Actions[1].ActionID)
	assert.Empty(t, res.Failed())
}

func TestReconcileMissingParentRecorded(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.Actions = []Action{
		{ID: "orphan", Type: TypeTask, OnRespin: RespinClose, ParentID: "nowhere",
			Summary: "orphan", Description: "orphan"},
	}
	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{})
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.Contains(t, res.Failed()[0].Err.Error(), "parent nowhere")
}

func TestReconcileIterateExpansion(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.Actions[0].Iterate = []map[string]string{
		{"VARIANT": "one"},
		{"VARIANT": "two"},
	}
	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{})
	require.NoError(t, err)

	require.Len(t, res.Actions, 2)
	assert.Equal(t, "task_a.iter1", res.Actions[0].ActionID)
	assert.Equal(t, "task_a.iter2", res.Actions[1].ActionID)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, "one", res.Jobs[0].Recipe.Environment["VARIANT"])
	assert.Equal(t, "two", res.Jobs[1].Recipe.Environment["VARIANT"])
}

func TestReconcileWhenGate(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.Actions[0].When = "EVENT is compose"

	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	assert.Empty(t, tracker.created)
}

func TestReconcileScheduleFalse(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	no := false
	cfg.Actions[0].Schedule = &no

	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, res.Actions[0].State)
	assert.Empty(t, res.Jobs, "schedule: false suppresses request generation")

	// the action-id filter re-includes it
	res, err = Reconcile(context.Background(), testJob(), cfg, tracker, Options{
		ActionFilter: regexp.MustCompile(`^task_a$`),
	})
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 1)
}

func TestReconcileCLIOverrides(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.Actions[0].Environment = map[string]string{"K": "doc", "KEEP": "doc"}

	res, err := Reconcile(context.Background(), testJob(), cfg, tracker, Options{
		CLIEnvironment: map[string]string{"K": "cli"},
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "cli", res.Jobs[0].Recipe.Environment["K"])
	assert.Equal(t, "doc", res.Jobs[0].Recipe.Environment["KEEP"])
}

func TestReconcileNoMarkerAlwaysCreates(t *testing.T) {
	tracker := newFakeTracker()
	job, cfg := testJob(), testConfig()

	_, err := Reconcile(context.Background(), job, cfg, tracker, Options{NoMarker: true})
	require.NoError(t, err)
	_, err = Reconcile(context.Background(), job, cfg, tracker, Options{NoMarker: true})
	require.NoError(t, err)
	assert.Len(t, tracker.created, 2)
	// no identity stamped
	assert.NotContains(t, tracker.issues["PROJ-1"].description, markerLabel)
}
