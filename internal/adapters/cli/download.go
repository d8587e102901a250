package cli

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/usecase"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/localfile"
)

func (r *runner) downloadCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <report-id> <file-id>",
		Short: "Print a download link for a finished file or save it locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reportID, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			fileID, err := parseID(args[1], "file id")
			if err != nil {
				return err
			}

			files, err := r.app.API.ListReportFiles(ctx, reportID)
			if err != nil {
				return err
			}
			file, err := findDownloadable(files, fileID)
			if err != nil {
				return err
			}

			link, err := r.app.API.GetDownloadURL(ctx, reportID, file.ID)
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprintln(r.stdout, link)
				return nil
			}

			var bar *progressbar.ProgressBar
			pr, pw := io.Pipe()
			go func() {
				_, err := r.app.Transport.Download(ctx, link, pw, func(transferred, total int64) {
					if bar == nil {
						if total <= 0 {
							total = -1
						}
						bar = newDownloadBar(r.stderr, total)
					}
					_ = bar.Set64(transferred)
				})
				_ = pw.CloseWithError(err)
			}()

			n, err := localfile.Save(output, pr)
			_ = pr.Close()
			if err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Fprintf(r.stdout, "%s %s to %s\n", green("Saved"), usecase.FormatBytes(n), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "save the file to this path instead of printing the link")
	return cmd
}

// findDownloadable returns the file only once its stage is done.
func findDownloadable(files []domain.ReportFile, fileID int64) (domain.ReportFile, error) {
	for _, f := range files {
		if f.ID != fileID {
			continue
		}
		if f.Status != domain.FileStatusDone {
			return domain.ReportFile{}, domain.WrapError(domain.ErrInvalidInput, "download file",
				fmt.Errorf("file %d is %s; only done files can be downloaded", fileID, f.Status))
		}
		return f, nil
	}
	return domain.ReportFile{}, domain.WrapError(domain.ErrNotFound, "download file", fmt.Errorf("file %d not found", fileID))
}
