package model

// CommentTrigger names a pipeline point at which a tracker or advisory
// comment is posted.
type CommentTrigger string

const (
	// TriggerJira fires when an issue is adopted (created or reused).
	TriggerJira CommentTrigger = "jira"
	// TriggerExecute fires when test execution starts.
	TriggerExecute CommentTrigger = "execute"
	// TriggerReport fires when results are reported.
	TriggerReport CommentTrigger = "report"
)

// Issue is a tracker issue key together with the reconciliation metadata
// the pipeline carries for it.
type Issue struct {
	ID              string           `yaml:"id"`
	Summary         string           `yaml:"summary,omitempty"`
	URL             string           `yaml:"url,omitempty"`
	Closed          bool             `yaml:"closed,omitempty"`
	Group           string           `yaml:"group,omitempty"`
	ActionID        string           `yaml:"action_id,omitempty"`
	CommentTriggers []CommentTrigger `yaml:"comment_triggers,omitempty"`
	// Transition targets resolved from the issue-config, recorded so a
	// later report stage can transition without reloading the config.
	TransitionProcessed string `yaml:"transition_processed,omitempty"`
	TransitionPassed    string `yaml:"transition_passed,omitempty"`
}

// HasTrigger reports whether the issue requests a comment at the trigger.
func (i Issue) HasTrigger(t CommentTrigger) bool {
	for _, ct := range i.CommentTriggers {
		if ct == t {
			return true
		}
	}
	return false
}

// PlaceholderIssuePrefix marks issue IDs for jobs that intentionally have
// no tracker issue; such jobs skip all tracker side effects.
const PlaceholderIssuePrefix = "NO_ISSUE"
