package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/issues"
	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
	"github.com/weaverqa/weaver/internal/store"
)

type jiraOptions struct {
	IssueConfig string
	Issue       string
	PrevIssue   bool
	JobRecipe   string
	MapIssue    []string
	Recreate    bool
	NoMarker    bool
	Assignee    string
	Unassigned  bool
}

func newJiraCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &jiraOptions{}

	cmd := &cobra.Command{
		Use:   "jira",
		Short: "reconcile tracker issues for each artifact job",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runJira(cmd.Context(), s, deps, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.IssueConfig, "issue-config", "", "issue-config YAML file")
	f.StringVar(&opts.Issue, "issue", "", "existing issue key to use for every action")
	f.BoolVar(&opts.PrevIssue, "prev-issue", false, "reuse the issue keys recorded by the shell's previous run")
	f.StringVar(&opts.JobRecipe, "job-recipe", "", "recipe URL overriding every action's job recipe")
	f.StringArrayVar(&opts.MapIssue, "map-issue", nil, "ACTION=KEY mapping to an existing issue (repeatable)")
	f.BoolVar(&opts.Recreate, "recreate", false, "recreate issues that were deliberately closed")
	f.BoolVar(&opts.NoMarker, "no-issue-marker", false, "create issues without identity markers (always creates)")
	f.StringVar(&opts.Assignee, "assignee", "", "assignee overriding the issue-config")
	f.BoolVar(&opts.Unassigned, "unassigned", false, "create issues unassigned")

	return cmd
}

func runJira(ctx context.Context, s *session, deps *Deps, root *RootOptions, opts *jiraOptions) error {
	if err := s.beginStage(lineage.StageIssue, root); err != nil {
		return err
	}

	jobs, err := loadArtifactJobs(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return failure("no event records in this run; run the event stage first", nil)
	}

	if opts.IssueConfig == "" {
		return runJiraPlaceholder(s, jobs, root, opts)
	}
	if deps.Tracker == nil {
		return usage("no issue tracker configured", nil)
	}

	cfg, err := issues.Load(opts.IssueConfig)
	if err != nil {
		return failure("cannot load issue-config", err)
	}
	if opts.JobRecipe != "" {
		for i := range cfg.Actions {
			cfg.Actions[i].JobRecipe = opts.JobRecipe
		}
	}

	mapping, err := issueMapping(s, cfg, opts)
	if err != nil {
		return err
	}

	reconcileOpts := issues.Options{
		MapIssue:       mapping,
		Recreate:       opts.Recreate,
		NoMarker:       opts.NoMarker,
		Assignee:       opts.Assignee,
		Unassigned:     opts.Unassigned,
		ActionFilter:   root.actionFilter,
		CLIContext:     root.ctxMap,
		CLIEnvironment: root.envMap,
		Log:            s.log,
	}

	var failed []string
	for _, job := range jobs {
		ro := reconcileOpts
		if job.Event.Type == model.EventJira && deps.Source != nil {
			// expose the triggering tracker issue's fields to templates
			ti, err := deps.Source.FetchTrackerIssue(ctx, job.Event.ID)
			if err != nil {
				return failure(fmt.Sprintf("cannot fetch tracker issue %s", job.Event.ID), err)
			}
			ro.IssueFields = map[string]any{
				"key":         ti.Key,
				"summary":     ti.Summary,
				"description": ti.Description,
				"priority":    ti.Priority,
			}
		}
		res, err := issues.Reconcile(ctx, job, cfg, deps.Tracker, ro)
		if err != nil {
			return failure(fmt.Sprintf("cannot reconcile %s", job.ID()), err)
		}
		for _, issueJob := range res.Jobs {
			if _, err := s.run.Save(lineage.StageIssue, issueJob, root.Force,
				issueJob.Event.ID, issueJob.ShortID(), issueJob.Issue.ID); err != nil {
				return failure("cannot save issue record", err)
			}
		}
		for _, a := range res.Failed() {
			failed = append(failed, fmt.Sprintf("%s/%s: %v", job.ShortID(), a.ActionID, a.Err))
		}
	}
	if len(failed) > 0 {
		return failure(fmt.Sprintf("%d action(s) failed:\n  %s",
			len(failed), strings.Join(failed, "\n  ")), nil)
	}
	return nil
}

// runJiraPlaceholder emits placeholder issue jobs so recipes can be
// scheduled without any tracker interaction.
func runJiraPlaceholder(s *session, jobs []model.ArtifactJob, root *RootOptions, opts *jiraOptions) error {
	if opts.JobRecipe == "" {
		return usage("either --issue-config or --job-recipe is required", nil)
	}
	for i, job := range jobs {
		issueJob := model.IssueJob{
			ArtifactJob: job,
			Issue:       model.Issue{ID: fmt.Sprintf("%s_%d", model.PlaceholderIssuePrefix, i+1)},
			Recipe:      model.Recipe{URL: opts.JobRecipe},
		}
		if _, err := s.run.Save(lineage.StageIssue, issueJob, root.Force,
			issueJob.Event.ID, issueJob.ShortID(), issueJob.Issue.ID); err != nil {
			return failure("cannot save issue record", err)
		}
	}
	s.log.Info("placeholder issues recorded", "jobs", len(jobs))
	return nil
}

// issueMapping folds --map-issue, --issue and --prev-issue into one
// action → issue-key table.
func issueMapping(s *session, cfg *issues.Config, opts *jiraOptions) (map[string]string, error) {
	mapping := map[string]string{}

	if opts.PrevIssue {
		prev, err := previousRun(s)
		if err != nil {
			return nil, err
		}
		src, err := store.NewRunDir(prev.Path, s.log)
		if err != nil {
			return nil, failure("cannot open previous run", err)
		}
		err = src.LoadAll(lineage.StageIssue, func(name string) error {
			var job model.IssueJob
			if err := src.Load(name, &job); err != nil {
				return err
			}
			if job.Issue.ActionID != "" {
				mapping[job.Issue.ActionID] = job.Issue.ID
			}
			return nil
		})
		if err != nil {
			return nil, failure("cannot read previous issue records", err)
		}
	}

	for _, m := range opts.MapIssue {
		action, key, ok := strings.Cut(m, "=")
		if !ok || action == "" || key == "" {
			return nil, usage(fmt.Sprintf("--map-issue %q is not in ACTION=KEY form", m), nil)
		}
		mapping[action] = key
	}

	if opts.Issue != "" {
		for _, a := range cfg.Actions {
			mapping[a.ID] = opts.Issue
		}
	}
	if len(mapping) == 0 {
		return nil, nil
	}
	return mapping, nil
}

// loadArtifactJobs reads every event record of the run.
func loadArtifactJobs(s *session) ([]model.ArtifactJob, error) {
	var jobs []model.ArtifactJob
	err := s.run.LoadAll(lineage.StageEvent, func(name string) error {
		var job model.ArtifactJob
		if err := s.run.Load(name, &job); err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, failure("cannot read event records", err)
	}
	return jobs, nil
}
