package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/event"
	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
	"github.com/weaverqa/weaver/internal/store"
)

type eventOptions struct {
	Errata     []string
	Composes   []string
	JiraIssues []string
	RogMRs     []string
	Mapping    []string
	Dedup      bool
	PrevEvent  bool
}

func newEventCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &eventOptions{}

	cmd := &cobra.Command{
		Use:   "event",
		Short: "resolve events into per-release artifact jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, true)
			if err != nil {
				return err
			}
			defer s.Close()
			return runEvent(cmd.Context(), s, deps, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.Errata, "erratum", "e", nil, "advisory id (repeatable)")
	f.StringArrayVarP(&opts.Composes, "compose", "c", nil, "compose id (repeatable)")
	f.StringArrayVar(&opts.JiraIssues, "jira-issue", nil, "tracker issue key (repeatable)")
	f.StringArrayVar(&opts.RogMRs, "rog-mr", nil, "merge request URL (repeatable)")
	f.StringArrayVar(&opts.Mapping, "compose-mapping", nil, "explicit RELEASE=COMPOSE pair, disables the built-in derivation (repeatable)")
	f.BoolVar(&opts.Dedup, "dedup", false, "drop advisory releases whose coverage is a subset of a sibling mapping to the same compose")
	f.BoolVar(&opts.PrevEvent, "prev-event", false, "reuse the event records of the shell's previous run")

	return cmd
}

func runEvent(ctx context.Context, s *session, deps *Deps, root *RootOptions, opts *eventOptions) error {
	if err := s.beginStage(lineage.StageEvent, root); err != nil {
		return err
	}

	if opts.PrevEvent {
		return reuseEvents(s)
	}

	events := collectEvents(opts)
	if len(events) == 0 {
		return usage("no event given; use --erratum, --compose, --jira-issue or --rog-mr", nil)
	}
	if deps.Source == nil {
		return usage("no artifact source configured", nil)
	}

	saved := 0
	for _, ev := range events {
		jobs, err := event.Split(ctx, ev, deps.Source, event.Options{
			Mapping: opts.Mapping,
			Dedup:   opts.Dedup,
			Log:     s.log,
		})
		if err != nil {
			return failure(fmt.Sprintf("cannot resolve event %s", ev.ID), err)
		}
		for _, job := range jobs {
			written, err := s.run.Save(lineage.StageEvent, job, root.Force, job.Event.ID, job.ShortID())
			if err != nil {
				return failure("cannot save event record", err)
			}
			if written {
				saved++
			}
		}
	}
	s.log.Info("event stage finished", "events", len(events), "jobs", saved)
	return nil
}

func collectEvents(opts *eventOptions) []model.Event {
	var events []model.Event
	for _, id := range opts.Errata {
		events = append(events, model.Event{Type: model.EventErratum, ID: id})
	}
	for _, id := range opts.Composes {
		events = append(events, model.Event{Type: model.EventCompose, ID: id})
	}
	for _, id := range opts.JiraIssues {
		events = append(events, model.Event{Type: model.EventJira, ID: id})
	}
	for _, id := range opts.RogMRs {
		events = append(events, model.Event{Type: model.EventRoG, ID: id})
	}
	return events
}

// reuseEvents copies the event records of the shell's previous run into
// the current one.
func reuseEvents(s *session) error {
	prev, err := previousRun(s)
	if err != nil {
		return err
	}
	src, err := store.NewRunDir(prev.Path, s.log)
	if err != nil {
		return failure("cannot open previous run", err)
	}
	copied, err := store.CopyForward(src, s.run, lineage.StageEvent)
	if err != nil {
		return failure("cannot copy event records", err)
	}
	if copied == 0 {
		return failure(fmt.Sprintf("previous run %s holds no event records", prev.Name), nil)
	}
	s.log.Info("event records reused", "from", prev.Name, "records", copied)
	return nil
}

// previousRun finds the shell's most recent run other than the current
// one.
func previousRun(s *session) (*store.Run, error) {
	runs, err := s.reg.List(0)
	if err != nil {
		return nil, failure("cannot list runs", err)
	}
	key := shellKey()
	for _, r := range runs {
		if r.ShellKey == key && r.Path != s.run.Path() {
			return r, nil
		}
	}
	return nil, failure("no previous run recorded for this shell", nil)
}
