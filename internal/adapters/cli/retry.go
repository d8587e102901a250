package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

func (r *runner) retryCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "retry <report-id>",
		Short: "Re-run the pipeline from its failed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}

			summary := r.app.Summary(domain.Report{ID: id})
			if _, err := summary.Refresh(ctx); err != nil {
				return err
			}
			if !summary.CanRetry() && !force {
				return domain.WrapError(domain.ErrInvalidInput, "retry pipeline", fmt.Errorf("report %d has no failed stage", id))
			}

			notice, err := summary.Retry(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.stdout, "%s (stage: %s)\n", green(notice.Message), notice.Result.RetryStage)
			fmt.Fprintf(r.stdout, "Pipeline: %s\n", pipelineLine(summary.State().Pipeline))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ask the server even when no failed stage is visible")
	return cmd
}
