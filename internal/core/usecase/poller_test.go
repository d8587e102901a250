package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

// gatedLister ignores ctx and answers only once gate is closed.
type gatedLister struct {
	gate  chan struct{}
	files []domain.ReportFile

	mu    sync.Mutex
	calls int
}

func (f *gatedLister) ListReportFiles(context.Context, int64) ([]domain.ReportFile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	<-f.gate
	return f.files, nil
}

func (f *gatedLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollerActivateFetchesImmediately(t *testing.T) {
	api := &apiFake{}
	p := NewPipelineStatusPoller(1, api, WithPollInterval(time.Hour))
	defer p.Deactivate()

	if !p.State().Loading {
		t.Fatalf("expected Loading before the first snapshot")
	}
	p.Activate(context.Background())
	waitFor(t, "first snapshot", func() bool { return p.State().HasData })

	state := p.State()
	if state.Loading || state.LastError != "" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Pipeline.HasSource() || state.Pipeline.HasFailed {
		t.Fatalf("empty report must be a valid pre-upload state: %+v", state.Pipeline)
	}
	if state.Pipeline.Summary() != "Awaiting upload" {
		t.Fatalf("unexpected summary: %q", state.Pipeline.Summary())
	}
}

func TestPollerLoadingThenRefreshing(t *testing.T) {
	api := &apiFake{snapshots: [][]domain.ReportFile{{file(1, domain.CategorySource, domain.FileStatusDone)}}}

	var mu sync.Mutex
	var seen []domain.PollState
	p := NewPipelineStatusPoller(1, api, WithPollObserver(func(s domain.PollState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}))

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(seen))
	}
	if !seen[0].Loading || seen[0].Refreshing {
		t.Fatalf("first fetch must be a first load: %+v", seen[0])
	}
	if seen[1].Loading || !seen[1].HasData {
		t.Fatalf("first snapshot not applied: %+v", seen[1])
	}
	if seen[2].Loading || !seen[2].Refreshing {
		t.Fatalf("second fetch must be a refresh: %+v", seen[2])
	}
	if seen[3].Refreshing {
		t.Fatalf("refresh flag must clear after the fetch")
	}
}

func TestPollerFailureKeepsStaleSnapshot(t *testing.T) {
	api := &apiFake{snapshots: [][]domain.ReportFile{{file(1, domain.CategorySource, domain.FileStatusDone)}}}
	metrics := &metricsFake{}
	p := NewPipelineStatusPoller(1, api, WithPollMetrics(metrics))

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	api.mu.Lock()
	api.filesErr = errBoom
	api.mu.Unlock()

	state, err := p.Refresh(context.Background())
	if !domain.IsKind(err, domain.ErrPolling) {
		t.Fatalf("expected ErrPolling, got %v", err)
	}
	if len(state.Files) != 1 || state.Files[0].Status != domain.FileStatusDone {
		t.Fatalf("stale snapshot must remain: %+v", state.Files)
	}
	if state.LastError == "" {
		t.Fatalf("expected LastError to be recorded")
	}
	if len(metrics.polls) != 2 || metrics.polls[0] != "success" || metrics.polls[1] != "error" {
		t.Fatalf("unexpected poll metrics: %v", metrics.polls)
	}
}

func TestPollerReplacesSnapshotWholesale(t *testing.T) {
	api := &apiFake{}
	api.setSnapshots(
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone), file(2, domain.CategoryExtract, domain.FileStatusProcessing)},
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone)},
	)
	p := NewPipelineStatusPoller(1, api)

	_, _ = p.Refresh(context.Background())
	state, _ := p.Refresh(context.Background())
	if len(state.Files) != 1 || state.Pipeline.Extract != nil {
		t.Fatalf("snapshot must be replaced, not merged: %+v", state.Files)
	}
}

func TestPollerDeactivateStopsFetching(t *testing.T) {
	api := &apiFake{}
	p := NewPipelineStatusPoller(1, api, WithPollInterval(10*time.Millisecond))
	p.Activate(context.Background())
	waitFor(t, "two ticks", func() bool {
		_, _, files, _ := api.calls()
		return files >= 2
	})

	p.Deactivate()
	_, _, before, _ := api.calls()
	time.Sleep(50 * time.Millisecond)
	_, _, after, _ := api.calls()
	if after != before {
		t.Fatalf("fetches continued after deactivate: %d -> %d", before, after)
	}

	if _, err := p.Refresh(context.Background()); !errors.Is(err, domain.ErrPollerStopped) {
		t.Fatalf("expected ErrPollerStopped, got %v", err)
	}
	p.Deactivate()
}

func TestPollerDiscardsInFlightResultAfterDeactivate(t *testing.T) {
	lister := &gatedLister{gate: make(chan struct{}), files: []domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone)}}
	p := NewPipelineStatusPoller(1, lister, WithPollInterval(time.Hour))
	p.Activate(context.Background())
	waitFor(t, "fetch in flight", func() bool { return lister.callCount() == 1 })

	done := make(chan struct{})
	go func() {
		p.Deactivate()
		close(done)
	}()
	waitFor(t, "stop flag", p.isStopped)
	close(lister.gate)
	<-done

	if state := p.State(); state.HasData || len(state.Files) != 0 {
		t.Fatalf("in-flight result applied after deactivate: %+v", state)
	}
}

func TestPollerRequestRefreshBypassesInterval(t *testing.T) {
	api := &apiFake{}
	p := NewPipelineStatusPoller(1, api, WithPollInterval(time.Hour))
	defer p.Deactivate()

	p.Activate(context.Background())
	waitFor(t, "first fetch", func() bool { return p.State().HasData })
	p.RequestRefresh()
	waitFor(t, "early fetch", func() bool {
		_, _, files, _ := api.calls()
		return files == 2
	})
}

func TestPollerRecordsTransitions(t *testing.T) {
	api := &apiFake{}
	api.setSnapshots(
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone)},
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone), file(2, domain.CategoryExtract, domain.FileStatusProcessing)},
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone), file(2, domain.CategoryExtract, domain.FileStatusError)},
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone), file(2, domain.CategoryExtract, domain.FileStatusError)},
	)
	recorder := &recorderFake{}
	events := &eventsFake{}
	p := NewPipelineStatusPoller(1, api, WithTransitionRecorder(recorder), WithPollEvents(events))

	for i := 0; i < 4; i++ {
		if _, err := p.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}

	if len(recorder.transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %+v", recorder.transitions)
	}
	last := recorder.transitions[2]
	if last.FileID != 2 || last.From != domain.FileStatusProcessing || last.To != domain.FileStatusError {
		t.Fatalf("unexpected transition: %+v", last)
	}
	if got := len(events.types()); got != 3 {
		t.Fatalf("expected 3 status events, got %d", got)
	}
	if !p.State().Pipeline.HasFailed {
		t.Fatalf("expected failed pipeline")
	}
}

func TestPollerSessionsShareRecordedBaseline(t *testing.T) {
	snapshot := []domain.ReportFile{
		file(1, domain.CategorySource, domain.FileStatusDone),
		file(2, domain.CategoryExtract, domain.FileStatusDone),
		file(3, domain.CategoryOutput, domain.FileStatusDone),
	}
	recorder := &recorderFake{}
	events := &eventsFake{}

	for session := 0; session < 2; session++ {
		api := &apiFake{}
		api.setSnapshots(snapshot)
		p := NewPipelineStatusPoller(1, api, WithTransitionRecorder(recorder), WithPollEvents(events))
		if _, err := p.Refresh(context.Background()); err != nil {
			t.Fatalf("session %d Refresh() error = %v", session, err)
		}
		p.Deactivate()
	}

	if got := recorder.count(); got != 3 {
		t.Fatalf("expected 3 transitions across sessions, got %+v", recorder.transitions)
	}
	if got := len(events.types()); got != 3 {
		t.Fatalf("expected 3 status events across sessions, got %d", got)
	}
}

func TestPollerSessionRecordsChangeSinceLastSession(t *testing.T) {
	recorder := &recorderFake{}
	first := &apiFake{}
	first.setSnapshots([]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusProcessing)})
	if _, err := NewPipelineStatusPoller(1, first, WithTransitionRecorder(recorder)).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	second := &apiFake{}
	second.setSnapshots([]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone)})
	if _, err := NewPipelineStatusPoller(1, second, WithTransitionRecorder(recorder)).Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if got := recorder.count(); got != 2 {
		t.Fatalf("expected 2 transitions, got %+v", recorder.transitions)
	}
	last := recorder.transitions[1]
	if last.From != domain.FileStatusProcessing || last.To != domain.FileStatusDone {
		t.Fatalf("unexpected transition: %+v", last)
	}
}

func TestPollerWithoutHistoryTreatsFirstSnapshotAsBaseline(t *testing.T) {
	api := &apiFake{}
	api.setSnapshots(
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone)},
		[]domain.ReportFile{file(1, domain.CategorySource, domain.FileStatusDone), file(2, domain.CategoryExtract, domain.FileStatusProcessing)},
	)
	events := &eventsFake{}
	p := NewPipelineStatusPoller(1, api, WithPollEvents(events))

	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := len(events.types()); got != 0 {
		t.Fatalf("first snapshot must not publish, got %d events", got)
	}
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := len(events.types()); got != 1 {
		t.Fatalf("expected 1 status event, got %d", got)
	}
}
