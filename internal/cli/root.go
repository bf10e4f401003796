package cli

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/event"
	"github.com/weaverqa/weaver/internal/issues"
	"github.com/weaverqa/weaver/internal/orchestrator"
)

// Deps are the external service clients the stages talk to. Any of them
// may be nil; a stage that needs a missing client fails with a usage
// error. Tests inject fakes here.
type Deps struct {
	Source   event.Source
	Tracker  issues.Tracker
	Backend  orchestrator.Backend
	Launches Launches
}

// RootOptions holds the global flags shared by every stage.
type RootOptions struct {
	StateDir        string
	PrevRun         bool
	ExtractStateDir string
	ConfFile        string
	Force           bool
	Clear           bool
	Debug           bool
	Environment     []string
	ContextVars     []string
	ActionIDFilter  string

	// parsed forms, populated by PersistentPreRunE
	envMap       map[string]string
	ctxMap       map[string]string
	actionFilter *regexp.Regexp
}

// NewRootCommand builds the weaver command tree.
func NewRootCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "weaver",
		Short: "multi-stage test tracking and execution pipeline",
		Long: `Weaver turns product events (advisories, composes, tracker issues,
merge requests) into tracker issues, expands test recipes into request
matrices, drives their execution and folds results back into the
tracker. Each stage persists its records in a run directory so stages
can be rerun, resumed and audited independently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))

			var err error
			if opts.envMap, err = parseKeyVals(opts.Environment, "--environment"); err != nil {
				return err
			}
			if opts.ctxMap, err = parseKeyVals(opts.ContextVars, "--context"); err != nil {
				return err
			}
			if opts.ActionIDFilter != "" {
				opts.actionFilter, err = regexp.Compile(opts.ActionIDFilter)
				if err != nil {
					return usage("invalid --action-id-filter", err)
				}
			}
			if opts.StateDir != "" && opts.PrevRun {
				return usage("--state-dir and --prev-run are mutually exclusive", nil)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.StateDir, "state-dir", "D", "", "use this run directory")
	pf.BoolVarP(&opts.PrevRun, "prev-run", "P", false, "reuse the most recent run of this shell")
	pf.StringVarP(&opts.ExtractStateDir, "extract-state-dir", "E", "", "populate a fresh run from a .tar.gz archive")
	pf.StringVar(&opts.ConfFile, "conf-file", "", "configuration file (default ~/.weaver.yaml)")
	pf.BoolVar(&opts.Force, "force", false, "overwrite existing stage records")
	pf.BoolVar(&opts.Clear, "clear", false, "drop the stage's records (and all later stages) first")
	pf.BoolVar(&opts.Debug, "debug", false, "debug logging")
	pf.StringArrayVar(&opts.Environment, "environment", nil, "KEY=VAL environment override (repeatable)")
	pf.StringArrayVar(&opts.ContextVars, "context", nil, "key=val tmt context override (repeatable)")
	pf.StringVar(&opts.ActionIDFilter, "action-id-filter", "", "process only issue-config actions matching this regexp")

	cmd.AddCommand(newEventCommand(opts, deps))
	cmd.AddCommand(newJiraCommand(opts, deps))
	cmd.AddCommand(newScheduleCommand(opts, deps))
	cmd.AddCommand(newExecuteCommand(opts, deps))
	cmd.AddCommand(newCancelCommand(opts, deps))
	cmd.AddCommand(newReportCommand(opts, deps))
	cmd.AddCommand(newSummarizeCommand(opts, deps))
	cmd.AddCommand(newListCommand(opts, deps))
	cmd.AddCommand(newPipelineCommand(opts, deps))

	return cmd
}

// parseKeyVals turns repeated KEY=VAL flags into a map.
func parseKeyVals(items []string, flag string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || k == "" {
			return nil, usage(fmt.Sprintf("%s %q is not in KEY=VAL form", flag, item), nil)
		}
		out[k] = v
	}
	return out, nil
}
