package issues

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/weaverqa/weaver/internal/expr"
	"github.com/weaverqa/weaver/internal/model"
)

// State is the reconciliation outcome of one action instance.
type State string

const (
	StateUnresolved     State = "unresolved"
	StateFoundOpen      State = "found-open"
	StateFoundClosed    State = "found-closed"
	StateCreated        State = "created"
	StateMapped         State = "mapped"
	StateClosedObsolete State = "closed-obsolete"
)

// Options control one reconciliation pass.
type Options struct {
	// MapIssue maps an action id to an existing issue key, bypassing
	// marker search entirely.
	MapIssue map[string]string

	// Recreate ignores closed issues so they get recreated instead of
	// ending the action at found-closed.
	Recreate bool

	// NoMarker disables identity stamping and marker search.
	NoMarker bool

	// Assignee overrides every action's assignee. Unassigned clears it.
	// The two are mutually exclusive.
	Assignee   string
	Unassigned bool

	// ActionFilter, when set, restricts processing to matching action
	// ids. A schedule:false action re-included by the filter generates
	// requests anyway.
	ActionFilter *regexp.Regexp

	// CLIContext and CLIEnvironment merge into every action's maps,
	// winning over document content.
	CLIContext     map[string]string
	CLIEnvironment map[string]string

	// IssueFields exposes tracker-issue payload fields to templates for
	// tracker-issue events.
	IssueFields map[string]any

	Log *slog.Logger
}

// ActionResult records the terminal state of one action instance.
type ActionResult struct {
	ActionID      string
	State         State
	IssueKey      string
	ObsoletedKeys []string
	Err           error
}

// Result is the outcome of reconciling one job.
type Result struct {
	// Jobs carries one entry per action that schedules a recipe.
	Jobs []model.IssueJob

	Actions []ActionResult
}

// Failed lists every action whose reconciliation errored.
func (r *Result) Failed() []ActionResult {
	var out []ActionResult
	for _, a := range r.Actions {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Reconcile runs the per-action state machine for one job. Tracker
// failures are recorded per action and siblings continue; the returned
// error is reserved for structural problems that make the whole
// document untrustworthy.
func Reconcile(ctx context.Context, job model.ArtifactJob, cfg *Config, tracker Tracker, opts Options) (*Result, error) {
	if opts.Assignee != "" && opts.Unassigned {
		return nil, fmt.Errorf("assignee override and unassigned are mutually exclusive")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	for id := range opts.MapIssue {
		if !actionIDExists(cfg.Actions, id) {
			return nil, fmt.Errorf("issue mapping names unknown action id %q", id)
		}
	}

	r := &reconciler{
		job:       job,
		cfg:       cfg,
		tracker:   tracker,
		opts:      opts,
		log:       log,
		processed: map[string]string{},
		recreated: map[string]bool{},
		deferred:  map[string]int{},
	}
	return r.run(ctx)
}

type reconciler struct {
	job     model.ArtifactJob
	cfg     *Config
	tracker Tracker
	opts    Options
	log     *slog.Logger

	// processed maps finished action ids to their issue keys, for
	// parent resolution.
	processed map[string]string
	// recreated marks actions whose issue was created fresh this run;
	// children of a recreated parent are recreated too.
	recreated map[string]bool
	// deferred tracks queue length at the last deferral per action, for
	// stuck-queue detection.
	deferred map[string]int

	// missing auto-transition configuration is reported once per run
	transitionWarned bool

	result Result
}

func (r *reconciler) run(ctx context.Context) (*Result, error) {
	queue := make([]Action, len(r.cfg.Actions))
	copy(queue, r.cfg.Actions)

	for len(queue) > 0 {
		action := queue[0]
		queue = queue[1:]

		// iteration expansion replaces the action with per-overlay copies
		if len(action.Iterate) > 0 {
			expanded := make([]Action, 0, len(action.Iterate))
			for i, overlay := range action.Iterate {
				it := action
				it.Iterate = nil
				it.ID = fmt.Sprintf("%s.iter%d", action.ID, i+1)
				env := cloneStringMap(action.Environment)
				if env == nil {
					env = map[string]string{}
				}
				for k, v := range overlay {
					env[k] = v
				}
				it.Environment = env
				expanded = append(expanded, it)
			}
			queue = append(expanded, queue...)
			continue
		}

		filteredIn := r.opts.ActionFilter != nil && r.opts.ActionFilter.MatchString(action.ID)
		if r.opts.ActionFilter != nil && !filteredIn {
			continue
		}

		// parent must be finished first; requeue until the queue stops
		// shrinking, then the chain is unresolvable
		if action.ParentID != "" {
			if _, ok := r.processed[action.ParentID]; !ok {
				if last, seen := r.deferred[action.ID]; seen && last == len(queue) {
					r.record(ActionResult{
						ActionID: action.ID,
						State:    StateUnresolved,
						Err: fmt.Errorf("parent %s for %s not found; it does not exist or was skipped",
							action.ParentID, action.ID),
					})
					continue
				}
				r.deferred[action.ID] = len(queue)
				queue = append(queue, action)
				continue
			}
		}

		r.process(ctx, action, filteredIn)
	}
	return &r.result, nil
}

func (r *reconciler) record(res ActionResult) {
	if res.Err != nil {
		r.log.Error("action failed", "action", res.ActionID, "error", res.Err)
	}
	r.result.Actions = append(r.result.Actions, res)
}

// process runs the state machine for one action instance.
func (r *reconciler) process(ctx context.Context, action Action, filteredIn bool) {
	log := r.log.With("action", action.ID)

	// CLI overrides win over document content
	action.Context = overlay(action.Context, r.opts.CLIContext)
	action.Environment = overlay(action.Environment, r.opts.CLIEnvironment)

	ectx := expr.FromJob(&r.job).WithMaps(action.Environment, action.Context)
	ectx.Issue = r.opts.IssueFields

	if action.When != "" {
		ok, err := expr.EvalWhen(action.When, ectx)
		if err != nil {
			r.record(ActionResult{ActionID: action.ID, State: StateUnresolved,
				Err: fmt.Errorf("when predicate: %w", err)})
			return
		}
		if !ok {
			log.Info("skipped, action is irrelevant", "when", action.When)
			return
		}
	}

	rendered, err := r.renderAction(&action, ectx)
	if err != nil {
		r.record(ActionResult{ActionID: action.ID, State: StateUnresolved, Err: err})
		return
	}

	transitionProcessed, transitionPassed := r.transitionTargets(action, log)

	res := ActionResult{ActionID: action.ID, State: StateUnresolved}

	var issueKey string
	var created bool

	switch {
	case strings.TrimSpace(r.opts.MapIssue[action.ID]) != "":
		// explicit mapping short-circuits search
		issueKey = strings.TrimSpace(r.opts.MapIssue[action.ID])
		res.State = StateMapped
		if !r.opts.NoMarker {
			if err := r.stamp(ctx, action, issueKey, rendered.description); err != nil {
				res.IssueKey = issueKey
				res.Err = err
				r.record(res)
				return
			}
		}

	case r.opts.NoMarker:
		// no identity: always create, never search or stamp
		issueKey, err = r.create(ctx, action, rendered, "")
		if err != nil {
			res.Err = err
			r.record(res)
			return
		}
		created = true
		res.State = StateCreated

	default:
		current, old, err := r.search(ctx, action)
		if err != nil {
			res.Err = err
			r.record(res)
			return
		}

		// an old open issue is reusable when the policy says keep
		if action.OnRespin == RespinKeep && len(current) == 0 && len(old) > 0 {
			current, old = old[:1], old[1:]
		}

		switch {
		case len(current) > 1:
			var keys []string
			for _, c := range current {
				keys = append(keys, c.Key)
			}
			res.Err = fmt.Errorf("more than one issue found for %s: %s",
				action.ID, strings.Join(keys, ", "))
			r.record(res)
			return

		case len(current) == 1 && !current[0].Open && !r.opts.Recreate:
			// deliberately closed by an operator; nothing to do
			log.Info("issue found but already closed", "issue", current[0].Key)
			res.State = StateFoundClosed
			res.IssueKey = current[0].Key
			r.record(res)
			return

		case len(current) == 1:
			issueKey = current[0].Key
			res.State = StateMapped
			if err := r.stamp(ctx, action, issueKey, rendered.description); err != nil {
				res.IssueKey = issueKey
				res.Err = err
				r.record(res)
				return
			}

		default:
			issueKey, err = r.create(ctx, action, rendered, r.processed[action.ParentID])
			if err != nil {
				res.Err = err
				r.record(res)
				return
			}
			created = true
			res.State = StateCreated
		}

		// remaining old issues are obsolete under the close policy
		if len(old) > 0 && action.OnRespin == RespinClose {
			for _, stale := range old {
				if err := r.obsolete(ctx, stale.Key, issueKey); err != nil {
					log.Error("failed to close obsoleted issue",
						"issue", stale.Key, "error", err)
					continue
				}
				log.Info("obsoleted issue closed", "issue", stale.Key)
				res.ObsoletedKeys = append(res.ObsoletedKeys, stale.Key)
			}
		}
	}

	r.processed[action.ID] = issueKey
	if created {
		r.recreated[action.ID] = true
		if action.hasTrigger(model.TriggerJira) {
			text := fmt.Sprintf("Tracking issue adopted for %s.", r.job.ID())
			if err := r.tracker.Comment(ctx, issueKey, text); err != nil {
				log.Error("adoption comment failed", "issue", issueKey, "error", err)
			}
		}
	}

	res.IssueKey = issueKey
	r.record(res)

	if action.JobRecipe == "" {
		return
	}
	if !action.Scheduled() && !filteredIn {
		log.Info("issue reconciled but scheduling is disabled", "issue", issueKey)
		return
	}

	recipeURL, err := expr.Render(action.JobRecipe, r.ectxFor(action))
	if err != nil {
		r.record(ActionResult{ActionID: action.ID, State: res.State, IssueKey: issueKey,
			Err: fmt.Errorf("job_recipe: %w", err)})
		return
	}
	r.result.Jobs = append(r.result.Jobs, model.IssueJob{
		ArtifactJob: r.job,
		Issue: model.Issue{
			ID:                  issueKey,
			Summary:             rendered.summary,
			Group:               r.cfg.Group,
			ActionID:            action.ID,
			CommentTriggers:     action.CommentTriggers,
			TransitionProcessed: transitionProcessed,
			TransitionPassed:    transitionPassed,
		},
		Recipe: model.Recipe{
			URL:         recipeURL,
			Context:     action.Context,
			Environment: action.Environment,
		},
	})
}

func (r *reconciler) ectxFor(action Action) *expr.Context {
	ectx := expr.FromJob(&r.job).WithMaps(action.Environment, action.Context)
	ectx.Issue = r.opts.IssueFields
	return ectx
}

type renderedAction struct {
	summary     string
	description string
	assignee    string
	fields      map[string]any
	links       map[string][]string
}

func (r *reconciler) renderAction(action *Action, ectx *expr.Context) (*renderedAction, error) {
	if action.Summary == "" {
		return nil, fmt.Errorf("action %s has no summary", action.ID)
	}
	if action.Description == "" {
		return nil, fmt.Errorf("action %s has no description", action.ID)
	}
	out := &renderedAction{}
	var err error
	if out.summary, err = expr.Render(action.Summary, ectx); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	if out.description, err = expr.Render(action.Description, ectx); err != nil {
		return nil, fmt.Errorf("description: %w", err)
	}
	switch {
	case r.opts.Unassigned:
	case r.opts.Assignee != "":
		out.assignee = r.opts.Assignee
	case action.Assignee != "":
		if out.assignee, err = expr.Render(action.Assignee, ectx); err != nil {
			return nil, fmt.Errorf("assignee: %w", err)
		}
	}
	if action.MarkerID != "" {
		if action.MarkerID, err = expr.Render(action.MarkerID, ectx); err != nil {
			return nil, fmt.Errorf("marker_id: %w", err)
		}
	}
	if len(action.Fields) > 0 {
		out.fields = make(map[string]any, len(action.Fields))
		for k, v := range action.Fields {
			if s, ok := v.(string); ok {
				rv, err := expr.Render(s, ectx)
				if err != nil {
					return nil, fmt.Errorf("fields.%s: %w", k, err)
				}
				out.fields[k] = rv
				continue
			}
			out.fields[k] = v
		}
	}
	if len(action.Links) > 0 {
		out.links = make(map[string][]string, len(action.Links))
		for relation, keys := range action.Links {
			for _, key := range keys {
				rk, err := expr.Render(key, ectx)
				if err != nil {
					return nil, fmt.Errorf("links.%s: %w", relation, err)
				}
				out.links[relation] = append(out.links[relation], rk)
			}
		}
	}
	return out, nil
}

// transitionTargets resolves the auto-transition workflow states. A
// missing configured state is a configuration error reported once per
// run, not a crash.
func (r *reconciler) transitionTargets(action Action, log *slog.Logger) (processed, passed string) {
	if !action.AutoTransition {
		return "", ""
	}
	if len(r.cfg.Transitions.Processed) > 0 {
		processed = r.cfg.Transitions.Processed[0]
	}
	if len(r.cfg.Transitions.Passed) > 0 {
		passed = r.cfg.Transitions.Passed[0]
	}
	if processed == "" && passed == "" && !r.transitionWarned {
		r.transitionWarned = true
		log.Error("auto_transition requested but no processed or passed transition state is configured")
	}
	return processed, passed
}

// search classifies marker hits into current-respin issues and
// older-respin leftovers.
func (r *reconciler) search(ctx context.Context, action Action) (current, old []FoundIssue, err error) {
	allMarker, err := Marker(action, r.job, true)
	if err != nil {
		return nil, nil, err
	}
	respinMarker, err := Marker(action, r.job, false)
	if err != nil {
		return nil, nil, err
	}
	found, err := r.tracker.FindByMarker(ctx, allMarker, !r.opts.Recreate)
	if err != nil {
		return nil, nil, fmt.Errorf("marker search: %w", err)
	}
	for _, f := range found {
		// an issue whose parent was recreated this run belongs to the
		// previous generation even if its respin marker matches
		isCurrent := strings.Contains(f.Description, respinMarker) &&
			(action.ParentID == "" || !r.recreated[action.ParentID])
		switch {
		case isCurrent:
			current = append(current, f)
		case f.Open:
			old = append(old, f)
		}
	}
	return current, old, nil
}

func (r *reconciler) create(ctx context.Context, action Action, rendered *renderedAction, parent string) (string, error) {
	description := rendered.description
	if !r.opts.NoMarker {
		block, err := MarkerBlock(action, r.job)
		if err != nil {
			return "", err
		}
		description = description + "\n\n" + block
	}
	fields := CreateFields{
		Project:     r.cfg.Project,
		Type:        action.Type,
		Summary:     rendered.summary,
		Description: description,
		Assignee:    rendered.assignee,
		Parent:      parent,
		Group:       r.cfg.Group,
		Fields:      rendered.fields,
	}
	if r.cfg.Board != "" {
		sprint, err := r.tracker.ResolveSprint(ctx, r.cfg.Board, SprintActive)
		if err != nil {
			return "", fmt.Errorf("resolve sprint on board %s: %w", r.cfg.Board, err)
		}
		fields.Sprint = sprint
	}
	key, err := r.tracker.Create(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	for relation, keys := range rendered.links {
		for _, other := range keys {
			if err := r.tracker.Link(ctx, key, relation, other); err != nil {
				r.log.Error("link failed", "issue", key,
					"relation", relation, "other", other, "error", err)
			}
		}
	}
	return key, nil
}

// stamp refreshes a reused issue's description so it carries the
// current markers.
func (r *reconciler) stamp(ctx context.Context, action Action, key, description string) error {
	block, err := MarkerBlock(action, r.job)
	if err != nil {
		return err
	}
	return r.tracker.Update(ctx, key, map[string]any{
		"description": description + "\n\n" + block,
	})
}

// obsolete transitions a previous-respin issue to the dropped state.
func (r *reconciler) obsolete(ctx context.Context, key, replacedBy string) error {
	if len(r.cfg.Transitions.Dropped) == 0 {
		return fmt.Errorf("no dropped transition state configured")
	}
	if replacedBy != "" {
		text := fmt.Sprintf("Obsoleted by %s.", replacedBy)
		if err := r.tracker.Comment(ctx, key, text); err != nil {
			return err
		}
	}
	return r.tracker.Transition(ctx, key, r.cfg.Transitions.Dropped[0])
}

func (a Action) hasTrigger(t model.CommentTrigger) bool {
	for _, ct := range a.CommentTriggers {
		if ct == t {
			return true
		}
	}
	return false
}

func actionIDExists(actions []Action, id string) bool {
	for _, a := range actions {
		if a.ID == id {
			return true
		}
	}
	return false
}

func overlay(base, over map[string]string) map[string]string {
	if len(over) == 0 {
		return base
	}
	out := cloneStringMap(base)
	if out == nil {
		out = map[string]string{}
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
