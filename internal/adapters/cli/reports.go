package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (r *runner) reportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List, create and delete reports",
	}

	var withPipeline bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s := newSpinner(r.stderr, "Loading reports")
			s.Start()
			reports, err := r.app.Reports.List(ctx)
			s.Stop()
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Fprintln(r.stdout, "No reports yet.")
				return nil
			}

			tw := newTable(r.stdout)
			if withPipeline {
				fmt.Fprintln(tw, "ID\tCOMPANY\tCREATED\tPIPELINE")
			} else {
				fmt.Fprintln(tw, "ID\tCOMPANY\tCREATED")
			}
			for _, report := range reports {
				if !withPipeline {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", report.ID, report.CompanyName, formatTime(report.CreatedAt))
					continue
				}
				pipeline := "?"
				if state, err := r.app.Summary(report).Refresh(ctx); err == nil {
					pipeline = summaryText(state.Pipeline)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", report.ID, report.CompanyName, formatTime(report.CreatedAt), pipeline)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&withPipeline, "pipeline", true, "fetch each report's pipeline summary")

	create := &cobra.Command{
		Use:   "create <company-name>",
		Short: "Create a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := r.app.Reports.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(r.stdout, "%s report %d (%s)\n", green("Created"), report.ID, report.CompanyName)
			return nil
		},
	}

	del := &cobra.Command{
		Use:     "delete <report-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a report and its files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			if err := r.app.Reports.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(r.stdout, "%s report %d\n", green("Deleted"), id)
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}
