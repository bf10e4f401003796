package orchestrator

import (
	"context"
	"fmt"

	"github.com/weaverqa/weaver/internal/model"
)

// LocalBackend is the declared-but-stubbed local execution mode.
// Submission yields a placeholder handle rather than an error so the
// rest of the pipeline, including reporting, stays exercisable without
// a remote backend; polling completes immediately with a skipped
// result.
type LocalBackend struct{}

func (LocalBackend) Submit(_ context.Context, job model.ScheduleJob) (Handle, error) {
	return Handle{
		ID:      "local-" + job.Request.ID,
		Command: fmt.Sprintf("tmt run plan --name %q", planName(job.Request)),
	}, nil
}

func (LocalBackend) Poll(context.Context, Handle) (Status, error) {
	return Status{State: model.StateComplete, Result: model.ResultSkipped}, nil
}

func (LocalBackend) Cancel(context.Context, Handle) error { return nil }

func planName(req model.Request) string {
	if req.Plan != nil {
		return req.Plan.Name
	}
	return ""
}
