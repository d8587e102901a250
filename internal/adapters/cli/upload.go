package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/bootstrap"
	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/usecase"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/localfile"
)

func (r *runner) uploadCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "upload <report-id> <path>",
		Short: "Upload the source document of a report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			candidate, err := localfile.Candidate(args[1])
			if err != nil {
				return err
			}
			r.describe(args[1], candidate)

			bar := newUploadBar(r.stderr, candidate.Name)
			states := newStateFeed()
			hooks := bootstrap.ViewHooks{
				OnUpload: func(s domain.UploadState) {
					if s.Phase == domain.UploadTransferring {
						_ = bar.Set(s.Progress)
					}
				},
			}
			if watch {
				hooks.OnPoll = states.push
			}

			view := r.app.DetailView(id, hooks)
			defer view.Close()

			accepted, rejected := view.Slot().Select(ctx, candidate)
			if len(accepted) == 0 {
				return domain.WrapError(domain.ErrValidation, "select file", errors.New(strings.Join(rejected, "; ")))
			}

			state := view.Slot().Wait(ctx)
			if err := ctx.Err(); err != nil {
				return domain.WrapError(domain.ErrCancelled, "upload", err)
			}
			if err := r.uploadResult(candidate, state, view.Slot().Err()); err != nil {
				return err
			}
			_ = bar.Finish()
			fmt.Fprintf(r.stdout, "%s %s as file %d (%s)\n", green("Uploaded"), candidate.Name, state.FileID, state.UploadedKey)

			if !watch {
				return nil
			}
			return r.follow(ctx, view, states, false)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "watch the pipeline after the upload")
	return cmd
}

func (r *runner) describe(path string, c domain.Candidate) {
	details := []string{usecase.FormatBytes(c.Size)}
	info, err := localfile.Inspect(path, c.MIMEType)
	switch {
	case err != nil:
		r.app.Logger.Warn("inspect_failed", "file", c.Name, "error", err)
	case info.Pages > 0:
		details = append(details, fmt.Sprintf("%d pages", info.Pages))
	case info.Text:
		details = append(details, fmt.Sprintf("%d lines", info.Lines))
	}
	fmt.Fprintf(r.stdout, "Selected %s (%s)\n", c.Name, strings.Join(details, ", "))
}

// uploadResult keeps the failure's error kinds so the exit code reflects
// the step that failed.
func (r *runner) uploadResult(c domain.Candidate, state domain.UploadState, cause error) error {
	if state.Phase == domain.UploadDone {
		return nil
	}
	if state.BytesStored {
		fmt.Fprintln(r.stderr, yellow("The file reached storage but its status could not be recorded."))
	}
	if cause != nil {
		return fmt.Errorf("upload %s: %w", c.Name, cause)
	}
	message := state.Error
	if message == "" {
		message = domain.UploadFailedMessage
	}
	return domain.WrapError(domain.ErrTransfer, "upload "+c.Name, errors.New(message))
}
