package issues

import (
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/weaverqa/weaver/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// IssueType selects the tracker issue type an action creates.
type IssueType string

const (
	TypeEpic    IssueType = "epic"
	TypeTask    IssueType = "task"
	TypeSubtask IssueType = "subtask"
	TypeStory   IssueType = "story"
)

// OnRespin selects what happens to an action's previous issue when the
// artifact respins.
type OnRespin string

const (
	// RespinClose obsoletes the previous issue and creates a fresh one.
	RespinClose OnRespin = "close"
	// RespinKeep reuses the previous issue in place.
	RespinKeep OnRespin = "keep"
)

// Transitions maps reconciliation outcomes to tracker workflow states.
type Transitions struct {
	Closed    []string `yaml:"closed"`
	Dropped   []string `yaml:"dropped"`
	Processed []string `yaml:"processed,omitempty"`
	Passed    []string `yaml:"passed,omitempty"`
}

// Action is one issue to reconcile per job.
type Action struct {
	ID          string    `yaml:"id,omitempty"`
	Type        IssueType `yaml:"type,omitempty"`
	Summary     string    `yaml:"summary,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Assignee    string    `yaml:"assignee,omitempty"`
	ParentID    string    `yaml:"parent_id,omitempty"`
	OnRespin    OnRespin  `yaml:"on_respin,omitempty"`

	// AutoTransition moves the issue forward once all of its requests
	// reach a terminal result.
	AutoTransition bool `yaml:"auto_transition,omitempty"`

	// When gates the action per job; default true.
	When string `yaml:"when,omitempty"`

	// Schedule, when explicitly false, creates the issue but suppresses
	// request generation unless the action-id filter names this action.
	Schedule *bool `yaml:"schedule,omitempty"`

	// JobRecipe locates the recipe scheduled under the issue.
	JobRecipe string `yaml:"job_recipe,omitempty"`

	Context     map[string]string `yaml:"context,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`

	// Fields are extra tracker fields set on create/update.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Links maps a relation name to issue keys to link.
	Links map[string][]string `yaml:"links,omitempty"`

	// Iterate expands this action into <id>.iterN copies, one per
	// environment overlay.
	Iterate []map[string]string `yaml:"iterate,omitempty"`

	CommentTriggers []model.CommentTrigger `yaml:"comment_triggers,omitempty"`

	// MarkerID overrides the derived identity marker.
	MarkerID string `yaml:"marker_id,omitempty"`
}

// Scheduled reports whether the action generates requests; unset means
// yes.
func (a Action) Scheduled() bool {
	return a.Schedule == nil || *a.Schedule
}

// Config is one resolved issue-config document.
type Config struct {
	Project     string      `yaml:"project"`
	Transitions Transitions `yaml:"transitions"`
	Defaults    *Action     `yaml:"defaults,omitempty"`
	Actions     []Action    `yaml:"issues"`
	Group       string      `yaml:"group,omitempty"`
	Board       string      `yaml:"board,omitempty"`
}

var urlPattern = regexp.MustCompile(`^https?://`)

// Load resolves an issue-config document from a file path or http(s)
// URL. Included documents carry lower priority than the including one:
// issues lists concatenate, defaults merge field-wise with the
// including file winning (fields maps merge key-by-key), any other key
// is taken from an include only when the including file leaves it
// unset. Defaults are applied per action after all merging.
func Load(location string) (*Config, error) {
	raw, err := loadRaw(location, nil)
	if err != nil {
		return nil, err
	}
	merged, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("issue-config %s: %w", location, err)
	}
	if err := validateConfig(location, merged); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("issue-config %s: %w", location, err)
	}

	seen := map[string]bool{}
	anon := 0
	for i := range cfg.Actions {
		action := &cfg.Actions[i]
		applyDefaults(action, cfg.Defaults)
		if action.ID == "" {
			anon++
			action.ID = fmt.Sprintf("DEFAULT_ACTION_ID_%d", anon)
		}
		if seen[action.ID] {
			return nil, fmt.Errorf("issue-config %s: duplicate action id %q", location, action.ID)
		}
		seen[action.ID] = true
		if action.Type == "" {
			action.Type = TypeTask
		}
		if action.OnRespin == "" {
			action.OnRespin = RespinClose
		}
	}
	return &cfg, nil
}

func loadRaw(location string, stack []string) (map[string]any, error) {
	if slices.Contains(stack, location) {
		return nil, fmt.Errorf("issue-config include cycle: %v", append(stack, location))
	}
	data, err := fetch(location)
	if err != nil {
		return nil, fmt.Errorf("issue-config %s: %w", location, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("issue-config %s: %w", location, err)
	}

	includes, _ := doc["include"].([]any)
	delete(doc, "include")

	// later include entries take priority over earlier ones, the
	// including document over all
	stack = append(stack, location)
	for i := len(includes) - 1; i >= 0; i-- {
		loc, ok := includes[i].(string)
		if !ok {
			return nil, fmt.Errorf("issue-config %s: include entries must be strings", location)
		}
		included, err := loadRaw(loc, stack)
		if err != nil {
			return nil, err
		}
		mergeRaw(doc, included)
	}
	return doc, nil
}

// mergeRaw folds lower-priority included data into doc.
func mergeRaw(doc, included map[string]any) {
	for key, incVal := range included {
		switch key {
		case "issues":
			incList, _ := incVal.([]any)
			if cur, ok := doc[key].([]any); ok {
				doc[key] = append(cur, incList...)
			} else {
				doc[key] = incList
			}
		case "defaults":
			incDefaults, _ := incVal.(map[string]any)
			cur, ok := doc[key].(map[string]any)
			if !ok {
				doc[key] = incVal
				continue
			}
			for k, v := range incDefaults {
				if _, present := cur[k]; !present {
					cur[k] = v
					continue
				}
				if k == "fields" {
					curFields, okC := cur[k].(map[string]any)
					incFields, okI := v.(map[string]any)
					if okC && okI {
						for fk, fv := range incFields {
							if _, present := curFields[fk]; !present {
								curFields[fk] = fv
							}
						}
					}
				}
			}
		default:
			if _, present := doc[key]; !present {
				doc[key] = incVal
			}
		}
	}
}

// applyDefaults fills unset action fields from the document defaults.
// Fields maps merge with the action winning; link lists extend.
func applyDefaults(action *Action, defaults *Action) {
	if defaults == nil {
		return
	}
	if action.Type == "" {
		action.Type = defaults.Type
	}
	if action.Summary == "" {
		action.Summary = defaults.Summary
	}
	if action.Description == "" {
		action.Description = defaults.Description
	}
	if action.Assignee == "" {
		action.Assignee = defaults.Assignee
	}
	if action.ParentID == "" {
		action.ParentID = defaults.ParentID
	}
	if action.OnRespin == "" {
		action.OnRespin = defaults.OnRespin
	}
	if !action.AutoTransition {
		action.AutoTransition = defaults.AutoTransition
	}
	if action.When == "" {
		action.When = defaults.When
	}
	if action.Schedule == nil {
		action.Schedule = defaults.Schedule
	}
	if action.JobRecipe == "" {
		action.JobRecipe = defaults.JobRecipe
	}
	if len(action.Context) == 0 {
		action.Context = cloneStringMap(defaults.Context)
	}
	if len(action.Environment) == 0 {
		action.Environment = cloneStringMap(defaults.Environment)
	}
	if len(action.CommentTriggers) == 0 {
		action.CommentTriggers = slices.Clone(defaults.CommentTriggers)
	}
	if action.MarkerID == "" {
		action.MarkerID = defaults.MarkerID
	}
	if len(defaults.Fields) > 0 {
		merged := make(map[string]any, len(defaults.Fields)+len(action.Fields))
		for k, v := range defaults.Fields {
			merged[k] = v
		}
		for k, v := range action.Fields {
			merged[k] = v
		}
		action.Fields = merged
	}
	for relation, keys := range defaults.Links {
		if action.Links == nil {
			action.Links = map[string][]string{}
		}
		action.Links[relation] = append(action.Links[relation], keys...)
	}
}

func fetch(location string) ([]byte, error) {
	if !urlPattern.MatchString(location) {
		return os.ReadFile(location)
	}
	resp, err := http.Get(location)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func validateConfig(location string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("issue-config schema: %w", err)
	}
	file, err := cueyaml.Extract(location, data)
	if err != nil {
		return fmt.Errorf("issue-config %s: %w", location, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("issue-config %s: %w", location, err)
	}
	if err := schema.Unify(doc).Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("issue-config %s: %w", location, err)
	}
	return nil
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
