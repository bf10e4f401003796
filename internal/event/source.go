package event

import (
	"context"

	"github.com/weaverqa/weaver/internal/model"
)

// TrackerIssue is the payload fetched for a tracker-issue event.
type TrackerIssue struct {
	Key         string `yaml:"key"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
	Priority    string `yaml:"priority"`
}

// Source fetches event payloads from the external systems of record.
// Implementations live behind this interface so the splitting logic is
// testable with fakes.
type Source interface {
	// FetchAdvisory returns one Erratum per release the advisory
	// touches.
	FetchAdvisory(ctx context.Context, id string) ([]model.Erratum, error)

	// FetchCompose resolves a compose identifier.
	FetchCompose(ctx context.Context, id string) (*model.Compose, error)

	// FetchTrackerIssue resolves a tracker issue key.
	FetchTrackerIssue(ctx context.Context, key string) (*TrackerIssue, error)

	// FetchMergeRequest resolves a merge-request URL.
	FetchMergeRequest(ctx context.Context, url string) (*model.MergeRequest, error)
}
