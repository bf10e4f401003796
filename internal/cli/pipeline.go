package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/lineage"
)

// pipelineOptions unions the per-stage flags the pipeline command
// exposes. NoWait feeds both the execute and report stages.
type pipelineOptions struct {
	event    eventOptions
	jira     jiraOptions
	schedule scheduleOptions
	execute  executeOptions
	NoWait   bool
}

func newPipelineCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &pipelineOptions{}

	cmd := &cobra.Command{
		Use:   "pipeline STAGE[,STAGE...]",
		Short: "run several stages in order against one run directory",
		Long: `Runs the named stages in pipeline order in a single invocation,
sharing one run directory. Example:

  weaver pipeline event,jira,schedule,execute,report \
      -e RHSA-2024:1234 --issue-config issues.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := parseStageList(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(root, stages[0] == lineage.StageEvent)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			opts.execute.NoWait = opts.NoWait
			for _, stage := range stages {
				s.log.Info("pipeline stage starting", "stage", stage.String())
				var err error
				switch stage {
				case lineage.StageEvent:
					err = runEvent(ctx, s, deps, root, &opts.event)
				case lineage.StageIssue:
					err = runJira(ctx, s, deps, root, &opts.jira)
				case lineage.StageSchedule:
					err = runSchedule(ctx, s, root, &opts.schedule)
				case lineage.StageExecute:
					err = runExecute(ctx, s, deps, root, &opts.execute)
				case lineage.StageReport:
					err = runReport(ctx, s, deps, root, &reportOptions{NoWait: opts.NoWait})
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.event.Errata, "erratum", "e", nil, "advisory id (repeatable)")
	f.StringArrayVarP(&opts.event.Composes, "compose", "c", nil, "compose id (repeatable)")
	f.StringArrayVar(&opts.event.JiraIssues, "jira-issue", nil, "tracker issue key (repeatable)")
	f.StringArrayVar(&opts.event.RogMRs, "rog-mr", nil, "merge request URL (repeatable)")
	f.StringArrayVar(&opts.event.Mapping, "compose-mapping", nil, "explicit RELEASE=COMPOSE pair (repeatable)")
	f.BoolVar(&opts.event.Dedup, "dedup", false, "deduplicate advisory releases by compose coverage")
	f.StringVar(&opts.jira.IssueConfig, "issue-config", "", "issue-config YAML file")
	f.StringVar(&opts.jira.JobRecipe, "job-recipe", "", "recipe URL overriding every action's job recipe")
	f.StringVar(&opts.jira.Assignee, "assignee", "", "assignee overriding the issue-config")
	f.BoolVar(&opts.jira.Unassigned, "unassigned", false, "create issues unassigned")
	f.StringArrayVar(&opts.schedule.Archs, "arch", nil, "restrict scheduling to this architecture (repeatable)")
	f.StringArrayVar(&opts.schedule.Fixtures, "fixture", nil, "PATH=VALUE settings override (repeatable)")
	f.BoolVar(&opts.schedule.NoLaunch, "no-launch", false, "do not attach a results launch")
	f.IntVar(&opts.execute.Workers, "workers", 0, "cap on concurrent submissions")
	f.BoolVar(&opts.NoWait, "no-wait", false, "do not wait for executions to finish")

	return cmd
}

// stageAliases maps command names to their stages; the jira command
// owns the issue stage.
var stageAliases = map[string]lineage.Stage{
	"jira": lineage.StageIssue,
}

// parseStageList parses a comma-separated stage list and enforces
// pipeline order.
func parseStageList(arg string) ([]lineage.Stage, error) {
	var stages []lineage.Stage
	for _, name := range strings.Split(arg, ",") {
		name = strings.TrimSpace(name)
		stage, ok := stageAliases[name]
		if !ok {
			var err error
			if stage, err = lineage.ParseStage(name); err != nil {
				return nil, usage(fmt.Sprintf("unknown stage %q", name), nil)
			}
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return nil, usage("empty stage list", nil)
	}
	for i := 1; i < len(stages); i++ {
		if !stages[i-1].Before(stages[i]) {
			return nil, usage(fmt.Sprintf(
				"stage %s cannot follow %s; pipeline order is %s",
				stages[i], stages[i-1], stageListString()), nil)
		}
	}
	return stages, nil
}

func stageListString() string {
	var names []string
	for _, s := range lineage.Stages() {
		names = append(names, s.String())
	}
	return strings.Join(names, ",")
}
