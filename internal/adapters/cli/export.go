package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/export/xlsx"
)

func (r *runner) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path.xlsx>",
		Short: "Write every report's pipeline status to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := newSpinner(r.stderr, "Collecting reports")
			s.Start()
			defer s.Stop()

			reports, err := r.app.Reports.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]xlsx.Row, 0, len(reports))
			for _, report := range reports {
				state, err := r.app.Summary(report).Refresh(ctx)
				if err != nil {
					return fmt.Errorf("export report %d: %w", report.ID, err)
				}
				rows = append(rows, xlsx.Row{Report: report, Files: state.Files})
			}

			if err := xlsx.NewExporter().SaveAs(args[0], rows); err != nil {
				return err
			}
			s.Stop()
			fmt.Fprintf(r.stdout, "%s %d reports to %s\n", green("Exported"), len(rows), args[0])
			return nil
		},
	}
}
