package issues

import "context"

// FoundIssue is one tracker search hit.
type FoundIssue struct {
	Key         string
	Description string
	Parent      string
	// Open is derived from the project's configured closed transition
	// states.
	Open bool
}

// SprintSelector picks a sprint on a board.
type SprintSelector string

const (
	SprintActive SprintSelector = "active"
	SprintFuture SprintSelector = "future"
)

// CreateFields carries everything needed to create one issue.
type CreateFields struct {
	Project     string
	Type        IssueType
	Summary     string
	Description string
	Assignee    string
	Parent      string
	Group       string
	Sprint      string
	Fields      map[string]any
}

// Tracker is the issue-tracker client contract. Implementations are
// injected; tests use fakes.
type Tracker interface {
	// FindByMarker searches issues whose description carries the marker.
	// Closed issues are included only when includeClosed is set.
	FindByMarker(ctx context.Context, marker string, includeClosed bool) ([]FoundIssue, error)

	Create(ctx context.Context, fields CreateFields) (string, error)

	Update(ctx context.Context, key string, fields map[string]any) error

	// Transition moves the issue to the named workflow state.
	Transition(ctx context.Context, key, state string) error

	Comment(ctx context.Context, key, text string) error

	// Link records a relation from key to otherKey.
	Link(ctx context.Context, key, relation, otherKey string) error

	// ResolveSprint maps a board plus selector to a sprint identifier.
	ResolveSprint(ctx context.Context, board string, selector SprintSelector) (string, error)
}
