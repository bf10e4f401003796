package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/store"
)

type listOptions struct {
	Last    int
	Archive string
}

func newListCommand(root *RootOptions, deps *Deps) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs, or archive the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(root.ConfFile)
			if err != nil {
				return usage("cannot load settings", err)
			}
			reg, err := store.OpenRegistry(settings.StateTopdir)
			if err != nil {
				return usage("cannot open run registry", err)
			}
			defer reg.Close()

			if opts.Archive != "" {
				return archiveRun(reg, opts.Archive, root)
			}
			return listRuns(reg, cmd.OutOrStdout(), opts.Last)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Last, "last", 0, "show only the N most recent runs")
	f.StringVar(&opts.Archive, "archive", "", "write the current run's records to this .tar.gz file")

	return cmd
}

func listRuns(reg *store.Registry, w io.Writer, last int) error {
	runs, err := reg.List(last)
	if err != nil {
		return failure("cannot list runs", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLAST USED\tPATH")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			r.Name, r.LastUsedAt.Format(time.DateTime), r.Path)
	}
	if err := tw.Flush(); err != nil {
		return failure("cannot write run list", err)
	}
	return nil
}

// archiveRun packs the records of the selected run (explicit --state-dir
// or this shell's most recent) into a tarball.
func archiveRun(reg *store.Registry, dest string, root *RootOptions) error {
	var path string
	if root.StateDir != "" {
		run, err := reg.Adopt(root.StateDir, shellKey())
		if err != nil {
			return usage("cannot resolve run directory", err)
		}
		path = run.Path
	} else {
		run, err := reg.MostRecent(shellKey())
		if err != nil {
			return usage("no run recorded for this shell", err)
		}
		path = run.Path
	}
	if err := store.Archive(path, dest); err != nil {
		return failure("cannot archive run", err)
	}
	return nil
}
