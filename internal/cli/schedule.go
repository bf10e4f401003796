package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/expr"
	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
	"github.com/weaverqa/weaver/internal/recipe"
)

type scheduleOptions struct {
	Archs    []string
	Fixtures []string
	NoLaunch bool
}

func newScheduleCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "expand recipes into concrete execution requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runSchedule(cmd.Context(), s, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.Archs, "arch", nil, "restrict scheduling to this architecture (repeatable)")
	f.StringArrayVar(&opts.Fixtures, "fixture", nil, "PATH=VALUE settings override, e.g. environment.FOO=bar (repeatable)")
	f.BoolVar(&opts.NoLaunch, "no-launch", false, "do not attach a results launch to the requests")

	return cmd
}

func runSchedule(_ context.Context, s *session, root *RootOptions, opts *scheduleOptions) error {
	if err := s.beginStage(lineage.StageSchedule, root); err != nil {
		return err
	}

	preset, err := parseArchs(opts.Archs)
	if err != nil {
		return err
	}

	jobs, err := loadIssueJobs(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return failure("no issue records in this run; run the jira stage first", nil)
	}

	cliLayer := recipe.Settings{
		Context:     root.ctxMap,
		Environment: root.envMap,
	}
	for _, fixture := range opts.Fixtures {
		if err := applyFixture(&cliLayer, fixture); err != nil {
			return err
		}
	}

	total := 0
	for _, job := range jobs {
		if job.Recipe.URL == "" {
			s.log.Warn("issue record has no recipe, skipping", "job", job.ID())
			continue
		}
		cfg, err := recipe.Load(job.Recipe.URL)
		if err != nil {
			return failure(fmt.Sprintf("cannot load recipe for %s", job.ID()), err)
		}

		initial := scheduleInitial(job, opts.NoLaunch)
		ectx := expr.FromJob(&job.ArtifactJob)

		for _, arch := range scheduleArchs(job, preset) {
			in := recipe.ExpandInput{
				Initial: initial,
				CLI:     cliLayer,
				Ctx:     ectx,
				Key: lineage.RequestKey{
					EventID:   job.Event.ID,
					ContextID: fmt.Sprintf("%s/%s", job.ShortID(), arch),
					IssueID:   job.Issue.ID,
				},
				Log: s.log,
			}
			in.Initial.Arch = arch

			requests, err := cfg.Expand(in)
			if err != nil {
				return failure(fmt.Sprintf("cannot expand recipe for %s", job.ID()), err)
			}
			for _, req := range requests {
				sj := model.ScheduleJob{IssueJob: job, Request: req}
				written, err := s.run.Save(lineage.StageSchedule, sj, root.Force,
					sj.Event.ID, sj.ShortID(), sj.Issue.ID, string(arch), req.ID)
				if err != nil {
					return failure("cannot save schedule record", err)
				}
				if written {
					total++
				}
			}
		}
	}
	s.log.Info("schedule stage finished", "requests", total)
	return nil
}

// scheduleInitial builds the lowest-precedence settings layer from the
// issue job: the recipe's context/environment from the issue-config,
// the resolved compose, the default backend and the results launch.
func scheduleInitial(job model.IssueJob, noLaunch bool) recipe.Settings {
	initial := recipe.Settings{
		Context:     job.Recipe.Context,
		Environment: job.Recipe.Environment,
		How:         model.BackendFarm,
	}
	if job.Compose != nil {
		initial.Compose = job.Compose.ID
	}
	if !noLaunch {
		initial.Launch = &model.Launch{
			Name:        fmt.Sprintf("%s @ %s", job.Issue.ID, job.Event.ShortID()),
			Description: job.Issue.Summary,
		}
	}
	return initial
}

// scheduleArchs resolves the architectures one job expands over: the
// CLI preset wins, otherwise the advisory's own architectures, both
// narrowed to what the compose can actually schedule.
func scheduleArchs(job model.IssueJob, preset []model.Arch) []model.Arch {
	compose := ""
	if job.Compose != nil {
		compose = job.Compose.ID
	}
	if len(preset) == 0 && job.Erratum != nil {
		preset = job.Erratum.Archs
	}
	return model.Architectures(preset, compose)
}

func parseArchs(args []string) ([]model.Arch, error) {
	var out []model.Arch
	for _, a := range args {
		arch := model.Arch(a)
		if !model.KnownArch(arch) {
			return nil, usage(fmt.Sprintf("unknown architecture %q", a), nil)
		}
		out = append(out, arch)
	}
	return out, nil
}

// applyFixture applies one PATH=VALUE override to the CLI settings
// layer. Paths use dots: environment.KEY, context.KEY, compose, arch,
// how, when, plan.*, farm.cli_args, launch.*.
func applyFixture(s *recipe.Settings, fixture string) error {
	path, value, ok := strings.Cut(fixture, "=")
	if !ok {
		return usage(fmt.Sprintf("--fixture %q is not in PATH=VALUE form", fixture), nil)
	}
	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "context":
		if rest == "" {
			return usage(fmt.Sprintf("--fixture %q: context needs a key", fixture), nil)
		}
		if s.Context == nil {
			s.Context = map[string]string{}
		}
		s.Context[rest] = value
	case "environment":
		if rest == "" {
			return usage(fmt.Sprintf("--fixture %q: environment needs a key", fixture), nil)
		}
		if s.Environment == nil {
			s.Environment = map[string]string{}
		}
		s.Environment[rest] = value
	case "compose":
		s.Compose = value
	case "arch":
		s.Arch = model.Arch(value)
	case "how":
		s.How = model.Backend(value)
	case "when":
		s.When = value
	case "plan":
		if s.Plan == nil {
			s.Plan = &model.Plan{}
		}
		switch rest {
		case "url":
			s.Plan.URL = value
		case "ref":
			s.Plan.Ref = value
		case "path":
			s.Plan.Path = value
		case "name":
			s.Plan.Name = value
		case "filter":
			s.Plan.Filter = value
		case "cli_args":
			s.Plan.CLIArgs = value
		default:
			return usage(fmt.Sprintf("--fixture %q: unknown plan field %q", fixture, rest), nil)
		}
	case "farm":
		if rest != "cli_args" {
			return usage(fmt.Sprintf("--fixture %q: unknown farm field %q", fixture, rest), nil)
		}
		if s.Farm == nil {
			s.Farm = &model.Farm{}
		}
		s.Farm.CLIArgs = value
	case "launch":
		if s.Launch == nil {
			s.Launch = &model.Launch{}
		}
		switch rest {
		case "name":
			s.Launch.Name = value
		case "description":
			s.Launch.Description = value
		case "suite_description":
			s.Launch.SuiteDescription = value
		default:
			return usage(fmt.Sprintf("--fixture %q: unknown launch field %q", fixture, rest), nil)
		}
	default:
		return usage(fmt.Sprintf("--fixture %q: unknown settings path %q", fixture, path), nil)
	}
	return nil
}

// loadIssueJobs reads every issue record of the run.
func loadIssueJobs(s *session) ([]model.IssueJob, error) {
	var jobs []model.IssueJob
	err := s.run.LoadAll(lineage.StageIssue, func(name string) error {
		var job model.IssueJob
		if err := s.run.Load(name, &job); err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, failure("cannot read issue records", err)
	}
	return jobs, nil
}
