package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/report-pipeline-client/internal/bootstrap"
	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/usecase"
)

var errPipelineFailed = errors.New("pipeline failed")

func (r *runner) watchCommand() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "watch <report-id>",
		Short: "Poll a report until its pipeline completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report id")
			if err != nil {
				return err
			}
			states := newStateFeed()
			view := r.app.DetailView(id, bootstrap.ViewHooks{OnPoll: states.push})
			defer view.Close()
			return r.follow(cmd.Context(), view, states, follow)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep watching after the pipeline completes or fails")
	return cmd
}

// stateFeed keeps only the latest poll state. push runs under the poller's
// lock and never blocks.
type stateFeed struct {
	ch chan domain.PollState
}

func newStateFeed() *stateFeed {
	return &stateFeed{ch: make(chan domain.PollState, 1)}
}

func (f *stateFeed) push(s domain.PollState) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// follow activates view and prints every pipeline change until the pipeline
// settles, ctx is done or, with keepGoing, forever.
func (r *runner) follow(ctx context.Context, view *usecase.ReportDetailView, states *stateFeed, keepGoing bool) error {
	stopMetrics := r.serveMetrics()
	defer stopMetrics()

	s := newSpinner(r.stderr, fmt.Sprintf("Loading report %d", view.ReportID()))
	s.Start()
	spinning := true
	defer func() {
		if spinning {
			s.Stop()
		}
	}()

	view.Activate(ctx)

	var lastLine, lastError string
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-states.ch:
			if state.Loading && state.LastError == "" {
				continue
			}
			if spinning {
				s.Stop()
				spinning = false
			}
			if state.LastError != "" && state.LastError != lastError {
				fmt.Fprintf(r.stderr, "%s %s\n", yellow("poll failed:"), state.LastError)
			}
			lastError = state.LastError
			if !state.HasData {
				continue
			}

			line := fmt.Sprintf("%s  %s", summaryText(state.Pipeline), pipelineLine(state.Pipeline))
			if line != lastLine {
				fmt.Fprintf(r.stdout, "[%s] %s\n", state.FetchedAt.Local().Format(time.TimeOnly), line)
				lastLine = line
			}
			if keepGoing {
				continue
			}
			if state.Pipeline.Complete() {
				fmt.Fprintln(r.stdout, green("Pipeline complete."))
				return nil
			}
			if state.Pipeline.HasFailed {
				return r.pipelineFailure(view.ReportID(), state.Pipeline)
			}
		}
	}
}

func (r *runner) pipelineFailure(reportID int64, p domain.PipelineState) error {
	for _, category := range domain.PipelineCategories {
		stage := p.Stage(category)
		if stage == nil || stage.Status != domain.FileStatusError {
			continue
		}
		reason := stage.Error
		if reason == "" {
			reason = "no error details"
		}
		fmt.Fprintf(r.stderr, "Run `reportctl retry %d` to re-run the failed stage.\n", reportID)
		return fmt.Errorf("%w at %s: %s", errPipelineFailed, category, reason)
	}
	return errPipelineFailed
}

// serveMetrics exposes /metrics while a watch runs when METRICS_PORT is set.
func (r *runner) serveMetrics() func() {
	port := r.app.Config.MetricsPort
	if port == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.app.Metrics.Handler())
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		r.app.Logger.Info("metrics_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.app.Logger.Error("metrics_server_failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			r.app.Logger.Warn("metrics_shutdown_failed", "error", err)
		}
	}
}
