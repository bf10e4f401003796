package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/weaverqa/weaver/internal/model"
)

func newSummarizeCommand(root *RootOptions, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "print a per-issue results table for this run",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(root, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return runSummarize(s, cmd.OutOrStdout())
		},
	}
	return cmd
}

func runSummarize(s *session, w io.Writer) error {
	jobs, err := loadExecuteJobs(s)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return failure("no execute records in this run", nil)
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUE\tREQUEST\tARCH\tSTATE\tRESULT\tARTIFACTS")
	counts := map[model.Result]int{}
	for _, job := range jobs {
		e := job.Execution
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.Issue.ID, job.Request.ID, job.Request.Arch,
			e.State, e.Result, e.ArtifactsURL)
		counts[e.Result]++
	}
	if err := tw.Flush(); err != nil {
		return failure("cannot write summary", err)
	}

	fmt.Fprintf(w, "\n%d request(s):", len(jobs))
	for _, r := range model.Results() {
		if counts[r] > 0 {
			fmt.Fprintf(w, " %d %s", counts[r], r)
		}
	}
	fmt.Fprintln(w)
	return nil
}
