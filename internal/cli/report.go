package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
)

// Launches is the results-aggregation service client. Implementations
// live outside this module; tests inject fakes.
type Launches interface {
	// CreateLaunch registers a launch and returns it with UUID and URL
	// filled in.
	CreateLaunch(ctx context.Context, launch model.Launch) (model.Launch, error)
	// MergeLaunches folds several launches into one.
	MergeLaunches(ctx context.Context, uuids []string, into model.Launch) (model.Launch, error)
	Finalize(ctx context.Context, uuid string) error
	UpdateDescription(ctx context.Context, uuid, description string) error
}

type reportOptions struct {
	NoWait bool
}

// requestResult is one request's outcome inside a report record.
type requestResult struct {
	RequestID    string               `yaml:"request"`
	Arch         model.Arch           `yaml:"arch,omitempty"`
	State        model.ExecutionState `yaml:"state"`
	Result       model.Result         `yaml:"result,omitempty"`
	ArtifactsURL string               `yaml:"artifacts_url,omitempty"`
}

// reportRecord summarizes one issue's executions.
type reportRecord struct {
	Event     model.Event     `yaml:"event"`
	Issue     model.Issue     `yaml:"jira"`
	Finished  bool            `yaml:"finished"`
	Passed    bool            `yaml:"passed"`
	Results   []requestResult `yaml:"results"`
	LaunchURL string          `yaml:"launch_url,omitempty"`
}

func newReportCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "fold execution results back into the tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runReport(cmd.Context(), s, deps, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "report in-flight executions too, skipping transitions and launch finalization")
	return cmd
}

// issueGroup collects the executions of one issue under one job.
type issueGroup struct {
	issue model.Issue
	event model.Event
	short string
	jobs  []model.ExecuteJob
}

func runReport(ctx context.Context, s *session, deps *Deps, root *RootOptions, opts *reportOptions) error {
	if err := s.beginStage(lineage.StageReport, root); err != nil {
		return err
	}

	jobs, err := loadExecuteJobs(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return failure("no execute records in this run; run the execute stage first", nil)
	}

	groups := groupByIssue(jobs)
	if !opts.NoWait {
		for _, g := range groups {
			if !groupFinished(g) {
				return failure(fmt.Sprintf(
					"issue %s has executions still in flight; rerun 'execute --continue' first or report with --no-wait",
					g.issue.ID), nil)
			}
		}
	}

	var failed []string
	for _, g := range groups {
		// a recorded report means the issue was already commented and
		// transitioned; repeating that on a rerun is not idempotent
		reported, err := s.run.Exists(lineage.StageReport, g.event.ID, g.short, g.issue.ID)
		if err != nil {
			return failure("cannot inspect run directory", err)
		}
		if reported && !root.Force {
			s.log.Info("issue already reported, skipping", "issue", g.issue.ID)
			continue
		}

		rec := buildReport(g)

		if rec.Finished && !isPlaceholder(g.issue.ID) && deps.Tracker != nil {
			if err := foldIntoTracker(ctx, deps, g, rec); err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", g.issue.ID, err))
			}
		}
		if rec.Finished && deps.Launches != nil {
			url, err := publishLaunch(ctx, deps.Launches, g, rec)
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", g.issue.ID, err))
			}
			rec.LaunchURL = url
		}

		if _, err := s.run.Save(lineage.StageReport, rec, root.Force,
			g.event.ID, g.short, g.issue.ID); err != nil {
			return failure("cannot save report record", err)
		}
	}
	if len(failed) > 0 {
		return failure(fmt.Sprintf("reporting failed for %d issue(s):\n  %s",
			len(failed), strings.Join(failed, "\n  ")), nil)
	}
	return nil
}

func isPlaceholder(id string) bool {
	return strings.HasPrefix(id, model.PlaceholderIssuePrefix)
}

func groupByIssue(jobs []model.ExecuteJob) []*issueGroup {
	index := map[string]*issueGroup{}
	var order []string
	for _, job := range jobs {
		key := job.Event.ID + "\x00" + job.ShortID() + "\x00" + job.Issue.ID
		g, ok := index[key]
		if !ok {
			g = &issueGroup{issue: job.Issue, event: job.Event, short: job.ShortID()}
			index[key] = g
			order = append(order, key)
		}
		g.jobs = append(g.jobs, job)
	}
	sort.Strings(order)
	out := make([]*issueGroup, 0, len(order))
	for _, key := range order {
		out = append(out, index[key])
	}
	return out
}

func groupFinished(g *issueGroup) bool {
	for _, job := range g.jobs {
		if !job.Execution.Finished() {
			return false
		}
	}
	return true
}

func buildReport(g *issueGroup) reportRecord {
	rec := reportRecord{
		Event:    g.event,
		Issue:    g.issue,
		Finished: groupFinished(g),
		Passed:   true,
	}
	for _, job := range g.jobs {
		rec.Results = append(rec.Results, requestResult{
			RequestID:    job.Request.ID,
			Arch:         job.Request.Arch,
			State:        job.Execution.State,
			Result:       job.Execution.Result,
			ArtifactsURL: job.Execution.ArtifactsURL,
		})
		if job.Execution.Result != model.ResultPassed {
			rec.Passed = false
		}
	}
	return rec
}

// resultsText renders the per-request outcomes as comment text.
func resultsText(rec reportRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %s:\n", rec.Event.ID)
	for _, r := range rec.Results {
		fmt.Fprintf(&b, "  %s", r.RequestID)
		if r.Arch != "" {
			fmt.Fprintf(&b, " (%s)", r.Arch)
		}
		outcome := string(r.Result)
		if outcome == "" {
			outcome = string(r.State)
		}
		fmt.Fprintf(&b, ": %s", outcome)
		if r.ArtifactsURL != "" {
			fmt.Fprintf(&b, " %s", r.ArtifactsURL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// foldIntoTracker posts the results comment and walks the issue through
// its configured transitions.
func foldIntoTracker(ctx context.Context, deps *Deps, g *issueGroup, rec reportRecord) error {
	if g.issue.HasTrigger(model.TriggerReport) {
		if err := deps.Tracker.Comment(ctx, g.issue.ID, resultsText(rec)); err != nil {
			return fmt.Errorf("results comment: %w", err)
		}
	}
	if t := g.issue.TransitionProcessed; t != "" {
		if err := deps.Tracker.Transition(ctx, g.issue.ID, t); err != nil {
			return fmt.Errorf("transition to %s: %w", t, err)
		}
	}
	if t := g.issue.TransitionPassed; t != "" && rec.Passed {
		if err := deps.Tracker.Transition(ctx, g.issue.ID, t); err != nil {
			return fmt.Errorf("transition to %s: %w", t, err)
		}
	}
	return nil
}

// publishLaunch aggregates the group's per-request launches into one,
// stamps the results into its description and finalizes it.
func publishLaunch(ctx context.Context, launches Launches, g *issueGroup, rec reportRecord) (string, error) {
	var template *model.Launch
	var uuids []string
	for _, job := range g.jobs {
		l := job.Request.Launch
		if l == nil {
			continue
		}
		if template == nil {
			c := *l
			template = &c
		}
		if l.UUID != "" {
			uuids = append(uuids, l.UUID)
		}
	}
	if template == nil {
		return "", nil
	}

	launch := *template
	if len(uuids) > 1 {
		merged, err := launches.MergeLaunches(ctx, uuids, launch)
		if err != nil {
			return "", fmt.Errorf("merge launches: %w", err)
		}
		launch = merged
	} else if launch.UUID == "" {
		created, err := launches.CreateLaunch(ctx, launch)
		if err != nil {
			return "", fmt.Errorf("create launch: %w", err)
		}
		launch = created
	}
	if err := launches.UpdateDescription(ctx, launch.UUID, resultsText(rec)); err != nil {
		return launch.URL, fmt.Errorf("update launch description: %w", err)
	}
	if err := launches.Finalize(ctx, launch.UUID); err != nil {
		return launch.URL, fmt.Errorf("finalize launch: %w", err)
	}
	return launch.URL, nil
}
