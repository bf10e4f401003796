package orchestrator

import (
	"context"
	"fmt"

	"github.com/weaverqa/weaver/internal/model"
)

// Handle identifies one submitted request at the backend.
type Handle struct {
	// ID is the backend-assigned request identifier.
	ID string
	// API is the backend endpoint for polling this request.
	API string
	// ArtifactsURL points at the execution artifacts, when the backend
	// announces it already at submission time.
	ArtifactsURL string
	// Command records the submission command or payload for traceability.
	Command string
}

// Status is one observation of a submitted request.
type Status struct {
	State        model.ExecutionState
	Result       model.Result
	ArtifactsURL string
	ReturnCode   int
}

// Backend submits requests for execution and reports on their progress.
// Implementations must be safe for concurrent use; the orchestrator
// calls them from one goroutine per request.
type Backend interface {
	Submit(ctx context.Context, job model.ScheduleJob) (Handle, error)
	Poll(ctx context.Context, h Handle) (Status, error)
	Cancel(ctx context.Context, h Handle) error
}

// SubmissionError reports a request that cannot be handed to the
// backend because its merged configuration is incomplete.
type SubmissionError struct {
	RequestID string
	Reason    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("cannot submit request %s: %s", e.RequestID, e.Reason)
}

// validateSubmission checks the fields every backend needs before a
// submission can be attempted.
func validateSubmission(job model.ScheduleJob) error {
	req := job.Request
	if req.How == model.BackendFarm {
		if req.Compose == "" {
			return &SubmissionError{RequestID: req.ID, Reason: "no compose resolved"}
		}
		if req.Plan == nil || req.Plan.URL == "" {
			return &SubmissionError{RequestID: req.ID, Reason: "no plan url configured"}
		}
	}
	return nil
}
