package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

func (r *runner) historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <report-id>",
		Short: "Show the status transitions recorded while watching a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			if r.app.History == nil {
				return domain.WrapError(domain.ErrInvalidInput, "history", errors.New("transition history requires POSTGRES_DSN"))
			}

			transitions, err := r.app.History.ListTransitions(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(transitions) == 0 {
				fmt.Fprintf(r.stdout, "No transitions recorded for report %d.\n", id)
				return nil
			}

			tw := newTable(r.stdout)
			fmt.Fprintln(tw, "OBSERVED\tFILE\tCATEGORY\tFROM\tTO\tERROR")
			for _, t := range transitions {
				from := string(t.From)
				if from == "" {
					from = "-"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					t.ObservedAt.Local().Format(time.DateTime), t.FileID, t.Category, from, t.To, t.Error)
			}
			return tw.Flush()
		},
	}
}
