package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/store"
)

// session is the shared per-invocation state: resolved settings, the
// run registry and the run directory every stage reads and writes.
type session struct {
	settings Settings
	reg      *store.Registry
	run      *store.RunDir
	log      *slog.Logger
}

// shellKey identifies the invoking shell so consecutive commands in one
// terminal find each other's run without flags.
func shellKey() string {
	if k := os.Getenv("WEAVER_SHELL_KEY"); k != "" {
		return k
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getppid())
}

// newSession resolves the run directory for this invocation. fresh
// selects the default behavior when no state flag is given: the event
// stage starts a new run, every other stage picks up the shell's most
// recent one.
func newSession(opts *RootOptions, fresh bool) (*session, error) {
	settings, err := LoadSettings(opts.ConfFile)
	if err != nil {
		return nil, usage("cannot load settings", err)
	}
	log := slog.Default()

	reg, err := store.OpenRegistry(settings.StateTopdir)
	if err != nil {
		return nil, usage("cannot open run registry", err)
	}

	key := shellKey()
	var run *store.Run
	switch {
	case opts.StateDir != "":
		run, err = reg.Adopt(opts.StateDir, key)
	case opts.ExtractStateDir != "":
		run, err = reg.CreateRun(key)
		if err == nil {
			err = store.Extract(opts.ExtractStateDir, run.Path)
		}
	case opts.PrevRun || !fresh:
		run, err = reg.MostRecent(key)
	default:
		run, err = reg.CreateRun(key)
	}
	if err != nil {
		reg.Close()
		return nil, usage("cannot resolve run directory", err)
	}
	if err := reg.Touch(run.Path); err != nil {
		reg.Close()
		return nil, usage("cannot update run registry", err)
	}

	rd, err := store.NewRunDir(run.Path, log)
	if err != nil {
		reg.Close()
		return nil, usage("cannot open run directory", err)
	}
	log.Info("using run directory", "run", run.Name, "path", run.Path)
	return &session{settings: settings, reg: reg, run: rd, log: log}, nil
}

func (s *session) Close() {
	if s.reg != nil {
		s.reg.Close()
	}
}

// beginStage applies the rerun policy before a stage derives anything.
// By default existing records are kept and skipped during Save, so
// reruns are idempotent; --force rewrites them and --clear drops the
// stage together with its successors.
func (s *session) beginStage(stage lineage.Stage, opts *RootOptions) error {
	if opts.Clear {
		if err := s.run.Clear(stage); err != nil {
			return failure("cannot clear stage records", err)
		}
		return nil
	}
	empty, err := s.run.Empty(stage)
	if err != nil {
		return failure("cannot inspect run directory", err)
	}
	if !empty && !opts.Force {
		s.log.Info("stage records already exist, existing records will be kept", "stage", stage.String())
	}
	return nil
}
