package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.FgHiBlack).SprintFunc()
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// newSpinner animates only when w is a terminal.
func newSpinner(w io.Writer, message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	return s
}

func newUploadBar(w io.Writer, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Uploading "+name),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

func newDownloadBar(w io.Writer, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

func statusText(file *domain.ReportFile) string {
	if file == nil {
		return faint("-")
	}
	switch file.Status {
	case domain.FileStatusDone:
		return green(string(file.Status))
	case domain.FileStatusProcessing:
		return yellow(string(file.Status))
	case domain.FileStatusError:
		return red(string(file.Status))
	default:
		return cyan(string(file.Status))
	}
}

func summaryText(p domain.PipelineState) string {
	summary := p.Summary()
	switch {
	case p.HasFailed:
		return red(summary)
	case p.Complete():
		return green(summary)
	default:
		return summary
	}
}

// pipelineLine renders "source done | extract - | output -".
func pipelineLine(p domain.PipelineState) string {
	line := ""
	for i, category := range domain.PipelineCategories {
		if i > 0 {
			line += " | "
		}
		line += string(category) + " " + statusText(p.Stage(category))
	}
	return line
}

func formatTime(t domain.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
