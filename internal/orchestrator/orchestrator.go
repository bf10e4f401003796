package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
)

// Sleeper waits between polls. Tests inject one that returns instantly.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const defaultPollInterval = 30 * time.Second

// Orchestrator runs schedule requests against a backend and records
// every state transition through Persist.
type Orchestrator struct {
	Backend Backend
	// Persist is called after every execution state change with the
	// job's current snapshot. Nil disables persistence.
	Persist func(job *model.ExecuteJob) error
	// PollInterval is the delay between status polls; zero means the
	// default of 30s.
	PollInterval time.Duration
	// Workers caps how many requests are in flight at once; zero means
	// no cap.
	Workers int
	// Sleep overrides the inter-poll delay, for tests.
	Sleep Sleeper
	Log   *slog.Logger
}

// Options selects the run mode.
type Options struct {
	// NoWait returns right after submission, leaving requests in the
	// submitted state for a later Continue run to pick up.
	NoWait bool
	// Continue resumes a previous session: terminal executions are left
	// untouched, submitted/running ones are polled without resubmitting,
	// and pending ones (fresh or restarted) are submitted.
	Continue bool
}

// Result is the outcome of one orchestration call.
type Result struct {
	// Jobs holds every job with its execution block as last persisted.
	Jobs []model.ExecuteJob
	// Failed lists the request ids whose execution ended in an error,
	// in input order.
	Failed []string
}

// Err summarizes the failed requests, or returns nil when all
// executions progressed cleanly.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d request(s) failed: %s", len(r.Failed), strings.Join(r.Failed, ", "))
}

// Run drives the given jobs through the execution state machine. Each
// request runs independently; one request's failure is recorded in its
// own execution block and never interrupts siblings. The returned error
// covers orchestration itself, not individual request outcomes; those
// are summarized by Result.Err.
func (o *Orchestrator) Run(ctx context.Context, jobs []model.ExecuteJob, opts Options) (*Result, error) {
	if o.Backend == nil {
		return nil, fmt.Errorf("orchestrator: no backend configured")
	}
	batch := lineage.BatchID(uuid.NewString())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	out := make([]model.ExecuteJob, len(jobs))
	copy(out, jobs)

	var sem chan struct{}
	if o.Workers > 0 {
		sem = make(chan struct{}, o.Workers)
	}

	for i := range out {
		if opts.Continue && out[i].Execution.Finished() {
			continue
		}
		wg.Add(1)
		go func(job *model.ExecuteJob) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			if err := o.drive(ctx, job, batch, opts); err != nil {
				o.fail(job, err)
				mu.Lock()
				failed = append(failed, job.Request.ID)
				mu.Unlock()
			}
		}(&out[i])
	}
	wg.Wait()

	slices.Sort(failed)
	res := &Result{Jobs: out, Failed: failed}
	if err := res.Err(); err != nil {
		o.log().Error("execution finished with failures", "failed", failed)
	}
	return res, nil
}

// drive walks one job through submission and polling. It returns an
// error only for conditions that should mark the execution errored;
// context cancellation leaves the last persisted state standing.
func (o *Orchestrator) drive(ctx context.Context, job *model.ExecuteJob, batch string, opts Options) error {
	exec := &job.Execution

	if exec.BackendID == "" {
		if err := validateSubmission(job.ScheduleJob); err != nil {
			return err
		}
		exec.BatchID = batch
		h, err := o.Backend.Submit(ctx, job.ScheduleJob)
		if err != nil {
			return fmt.Errorf("submit %s: %w", job.Request.ID, err)
		}
		exec.BackendID = h.ID
		exec.BackendAPI = h.API
		exec.Command = h.Command
		if h.ArtifactsURL != "" {
			exec.ArtifactsURL = h.ArtifactsURL
		}
		exec.State = model.StateSubmitted
		if err := o.persist(job); err != nil {
			return err
		}
		o.log().Info("request submitted", "request", job.Request.ID, "backend_id", h.ID)
	}

	if opts.NoWait {
		return nil
	}
	return o.poll(ctx, job)
}

// poll watches one submitted request until it reaches a terminal state.
func (o *Orchestrator) poll(ctx context.Context, job *model.ExecuteJob) error {
	exec := &job.Execution
	h := Handle{ID: exec.BackendID, API: exec.BackendAPI}
	interval := o.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for !exec.Finished() {
		st, err := o.Backend.Poll(ctx, h)
		if err != nil {
			return fmt.Errorf("poll %s: %w", job.Request.ID, err)
		}
		if applyStatus(exec, st) {
			if err := o.persist(job); err != nil {
				return err
			}
			o.log().Debug("request state changed",
				"request", job.Request.ID, "state", exec.State, "result", exec.Result)
		}
		if exec.Finished() {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			// Cancellation is not a request failure; the record keeps
			// its last observed state for a later Continue run.
			return nil
		}
	}
	return nil
}

// applyStatus folds one backend observation into the execution block
// and reports whether anything changed.
func applyStatus(exec *model.Execution, st Status) bool {
	changed := false
	if st.State != "" && st.State != exec.State {
		exec.State = st.State
		changed = true
	}
	if st.Result != "" && st.Result != exec.Result {
		exec.Result = st.Result
		changed = true
	}
	if st.ArtifactsURL != "" && st.ArtifactsURL != exec.ArtifactsURL {
		exec.ArtifactsURL = st.ArtifactsURL
		changed = true
	}
	if st.ReturnCode != exec.ReturnCode {
		exec.ReturnCode = st.ReturnCode
		changed = true
	}
	return changed
}

// fail stamps an errored execution block and persists it. The original
// error is already wrapped with the request id.
func (o *Orchestrator) fail(job *model.ExecuteJob, cause error) {
	job.Execution.State = model.StateErrored
	job.Execution.Result = model.ResultError
	o.log().Error("request failed", "request", job.Request.ID, "error", cause)
	if err := o.persist(job); err != nil {
		o.log().Error("failed to persist errored execution",
			"request", job.Request.ID, "error", err)
	}
}

func (o *Orchestrator) persist(job *model.ExecuteJob) error {
	if o.Persist == nil {
		return nil
	}
	return o.Persist(job)
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Restart resets the executions of the listed request ids so a
// subsequent Continue run resubmits them. Jobs not listed keep their
// records untouched. Unknown ids are an error, since a typo would
// silently restart nothing.
func Restart(jobs []model.ExecuteJob, ids []string) ([]model.ExecuteJob, error) {
	byID := make(map[string]int, len(jobs))
	for i := range jobs {
		byID[jobs[i].Request.ID] = i
	}
	for _, id := range ids {
		i, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("restart: unknown request id %q", id)
		}
		jobs[i].Execution = model.Execution{State: model.StatePending}
	}
	return jobs, nil
}

// RestartResults resets every execution whose recorded result matches
// one of the given outcomes, returning how many were reset.
func RestartResults(jobs []model.ExecuteJob, outcomes []model.Result) ([]model.ExecuteJob, int) {
	reset := 0
	for i := range jobs {
		if slices.Contains(outcomes, jobs[i].Execution.Result) {
			jobs[i].Execution = model.Execution{State: model.StatePending}
			reset++
		}
	}
	return jobs, reset
}

// CancelAll cancels every non-terminal job. Unsubmitted requests move
// straight to cancelled; submitted ones get a best-effort backend
// cancel, and the local record is marked cancelled regardless of the
// backend's answer.
func (o *Orchestrator) CancelAll(ctx context.Context, jobs []model.ExecuteJob) (*Result, error) {
	out := make([]model.ExecuteJob, len(jobs))
	copy(out, jobs)
	for i := range out {
		exec := &out[i].Execution
		if exec.Finished() {
			continue
		}
		if exec.BackendID != "" {
			h := Handle{ID: exec.BackendID, API: exec.BackendAPI}
			if err := o.Backend.Cancel(ctx, h); err != nil {
				o.log().Warn("backend did not acknowledge cancel",
					"request", out[i].Request.ID, "error", err)
			}
		}
		exec.State = model.StateCancelled
		if err := o.persist(&out[i]); err != nil {
			return nil, err
		}
		o.log().Info("request cancelled", "request", out[i].Request.ID)
	}
	return &Result{Jobs: out}, nil
}
