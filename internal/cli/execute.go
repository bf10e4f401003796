package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
	"github.com/weaverqa/weaver/internal/orchestrator"
)

type executeOptions struct {
	Workers        int
	Continue       bool
	RestartRequest []string
	RestartResult  []string
	NoWait         bool
}

func newExecuteCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &executeOptions{}

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "submit scheduled requests and watch them finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runExecute(cmd.Context(), s, deps, root, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Workers, "workers", 0, "cap on concurrent submissions (default from settings)")
	f.BoolVar(&opts.Continue, "continue", false, "resume watching existing executions without resubmitting")
	f.StringArrayVar(&opts.RestartRequest, "restart-request", nil, "resubmit this request id (repeatable, implies --continue)")
	f.StringArrayVar(&opts.RestartResult, "restart-result", nil, "resubmit requests whose last result matches (repeatable, implies --continue)")
	f.BoolVar(&opts.NoWait, "no-wait", false, "return right after submission")

	return cmd
}

func runExecute(ctx context.Context, s *session, deps *Deps, root *RootOptions, opts *executeOptions) error {
	resume := opts.Continue || len(opts.RestartRequest) > 0 || len(opts.RestartResult) > 0

	if !resume {
		if err := s.beginStage(lineage.StageExecute, root); err != nil {
			return err
		}
		empty, err := s.run.Empty(lineage.StageExecute)
		if err != nil {
			return failure("cannot inspect run directory", err)
		}
		if !empty && !root.Force {
			// a rerun resumes the recorded executions instead of
			// resubmitting them
			resume = true
		}
	}

	var jobs []model.ExecuteJob
	var err error
	if resume {
		jobs, err = loadExecuteJobs(s)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return failure("no execute records to resume in this run", nil)
		}
		if jobs, err = applyRestarts(jobs, opts); err != nil {
			return err
		}
	} else {
		scheduled, err := loadScheduleJobs(s)
		if err != nil {
			return err
		}
		if len(scheduled) == 0 {
			return failure("no schedule records in this run; run the schedule stage first", nil)
		}
		for _, sj := range scheduled {
			jobs = append(jobs, model.ExecuteJob{
				ScheduleJob: sj,
				Execution:   model.Execution{State: model.StatePending},
			})
		}
	}

	o := s.orchestrator(deps, opts.Workers)
	res, err := o.Run(ctx, jobs, orchestrator.Options{
		NoWait:   opts.NoWait,
		Continue: resume,
	})
	if err != nil {
		return failure("execution failed", err)
	}
	// persist the final snapshots too; transitions were written as they
	// happened
	for i := range res.Jobs {
		if err := updateExecuteRecord(s, &res.Jobs[i]); err != nil {
			return err
		}
	}
	if !resume && deps.Tracker != nil {
		notifyExecutionStarted(ctx, s, deps, res.Jobs)
	}
	if err := res.Err(); err != nil {
		return failure("execution finished with failures", err)
	}
	return nil
}

// notifyExecutionStarted posts one comment per issue that asked for the
// execute trigger. Best effort; a tracker hiccup does not fail the run.
func notifyExecutionStarted(ctx context.Context, s *session, deps *Deps, jobs []model.ExecuteJob) {
	counts := map[string]int{}
	byIssue := map[string]model.Issue{}
	for _, job := range jobs {
		counts[job.Issue.ID]++
		byIssue[job.Issue.ID] = job.Issue
	}
	for id, issue := range byIssue {
		if !issue.HasTrigger(model.TriggerExecute) || isPlaceholder(id) {
			continue
		}
		text := fmt.Sprintf("Execution of %d request(s) started.", counts[id])
		if err := deps.Tracker.Comment(ctx, id, text); err != nil {
			s.log.Warn("cannot post execution comment", "issue", id, "error", err)
		}
	}
}

func newCancelCommand(root *RootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "cancel unfinished executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runCancel(cmd.Context(), s, deps)
		},
	}
	return cmd
}

func runCancel(ctx context.Context, s *session, deps *Deps) error {
	jobs, err := loadExecuteJobs(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return failure("no execute records in this run", nil)
	}
	o := s.orchestrator(deps, 0)
	res, err := o.CancelAll(ctx, jobs)
	if err != nil {
		return failure("cancellation failed", err)
	}
	for i := range res.Jobs {
		if err := updateExecuteRecord(s, &res.Jobs[i]); err != nil {
			return err
		}
	}
	return nil
}

// orchestrator builds the execution driver with the configured backend,
// falling back to the local placeholder backend.
func (s *session) orchestrator(deps *Deps, workers int) *orchestrator.Orchestrator {
	backend := deps.Backend
	if backend == nil {
		backend = orchestrator.LocalBackend{}
	}
	if workers <= 0 {
		workers = s.settings.Workers
	}
	return &orchestrator.Orchestrator{
		Backend:      backend,
		Persist:      func(job *model.ExecuteJob) error { return updateExecuteRecord(s, job) },
		PollInterval: time.Duration(s.settings.PollDelay) * time.Second,
		Workers:      workers,
		Log:          s.log,
	}
}

func applyRestarts(jobs []model.ExecuteJob, opts *executeOptions) ([]model.ExecuteJob, error) {
	var err error
	if len(opts.RestartRequest) > 0 {
		if jobs, err = orchestrator.Restart(jobs, opts.RestartRequest); err != nil {
			return nil, usage("invalid --restart-request", err)
		}
	}
	if len(opts.RestartResult) > 0 {
		var outcomes []model.Result
		for _, r := range opts.RestartResult {
			outcome, ok := model.ParseResult(r)
			if !ok {
				return nil, usage(fmt.Sprintf("unknown result %q", r), nil)
			}
			outcomes = append(outcomes, outcome)
		}
		jobs, _ = orchestrator.RestartResults(jobs, outcomes)
	}
	return jobs, nil
}

// executeKeys is the record key tuple of one execution.
func executeKeys(job *model.ExecuteJob) []string {
	return []string{
		job.Event.ID, job.ShortID(), job.Issue.ID,
		string(job.Request.Arch), job.Request.ID,
	}
}

func updateExecuteRecord(s *session, job *model.ExecuteJob) error {
	if err := s.run.Update(lineage.StageExecute, job, executeKeys(job)...); err != nil {
		return failure("cannot save execute record", err)
	}
	return nil
}

// loadScheduleJobs reads every schedule record of the run.
func loadScheduleJobs(s *session) ([]model.ScheduleJob, error) {
	var jobs []model.ScheduleJob
	err := s.run.LoadAll(lineage.StageSchedule, func(name string) error {
		var job model.ScheduleJob
		if err := s.run.Load(name, &job); err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, failure("cannot read schedule records", err)
	}
	return jobs, nil
}

// loadExecuteJobs reads every execute record of the run.
func loadExecuteJobs(s *session) ([]model.ExecuteJob, error) {
	var jobs []model.ExecuteJob
	err := s.run.LoadAll(lineage.StageExecute, func(name string) error {
		var job model.ExecuteJob
		if err := s.run.Load(name, &job); err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, failure("cannot read execute records", err)
	}
	return jobs, nil
}
