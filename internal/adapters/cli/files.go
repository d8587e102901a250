package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

func (r *runner) filesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "files <report-id>",
		Short: "Show a report's files and pipeline state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			state, err := r.app.Summary(domain.Report{ID: id}).Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return r.printFiles(state)
		},
	}
}

func (r *runner) printFiles(state domain.PollState) error {
	if len(state.Files) > 0 {
		tw := newTable(r.stdout)
		fmt.Fprintln(tw, "ID\tCATEGORY\tTYPE\tSTATUS\tKEY\tERROR")
		for i := range state.Files {
			f := state.Files[i]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Category, f.Type, statusText(&f), f.S3Key, f.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(r.stdout, "Pipeline: %s (%s)\n", summaryText(state.Pipeline), pipelineLine(state.Pipeline))
	if missing := state.Pipeline.MissingStages(); len(missing) > 0 && state.Pipeline.HasSource() {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		fmt.Fprintf(r.stdout, "Pending stages: %s\n", strings.Join(names, ", "))
	}
	return nil
}
