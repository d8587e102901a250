package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

// DefaultPollInterval is the fixed period between snapshot fetches.
const DefaultPollInterval = 5 * time.Second

// PollObserver runs under the poller's lock and must not call back into it.
type PollObserver func(domain.PollState)

type PollerOption func(*PipelineStatusPoller)

func WithPollInterval(interval time.Duration) PollerOption {
	return func(p *PipelineStatusPoller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithPollObserver(fn PollObserver) PollerOption {
	return func(p *PipelineStatusPoller) { p.observers = append(p.observers, fn) }
}

func WithPollLogger(logger *slog.Logger) PollerOption {
	return func(p *PipelineStatusPoller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPollMetrics(metrics ports.MetricsRecorder) PollerOption {
	return func(p *PipelineStatusPoller) { p.metrics = metrics }
}

func WithTransitionRecorder(recorder ports.TransitionRecorder) PollerOption {
	return func(p *PipelineStatusPoller) { p.recorder = recorder }
}

func WithPollEvents(events ports.EventPublisher) PollerOption {
	return func(p *PipelineStatusPoller) { p.events = events }
}

// PipelineStatusPoller keeps one report's file snapshot current. The cache
// is replaced wholesale on every successful fetch; failed fetches keep the
// previous snapshot and are retried on the next tick.
type PipelineStatusPoller struct {
	reportID int64
	lister   ports.ReportFileLister
	interval time.Duration

	logger    *slog.Logger
	metrics   ports.MetricsRecorder
	recorder  ports.TransitionRecorder
	events    ports.EventPublisher
	observers []PollObserver

	mu       sync.Mutex
	state    domain.PollState
	inFlight int
	nextSeq  uint64
	applied  uint64
	seeded   bool
	active   bool
	stopped  bool
	cancel   context.CancelFunc
	kick     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPipelineStatusPoller(reportID int64, lister ports.ReportFileLister, opts ...PollerOption) *PipelineStatusPoller {
	p := &PipelineStatusPoller{
		reportID: reportID,
		lister:   lister,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		state:    domain.PollState{ReportID: reportID, Loading: true},
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchSnapshot reads the report's file list without touching the cache.
func (p *PipelineStatusPoller) FetchSnapshot(ctx context.Context) ([]domain.ReportFile, error) {
	files, err := p.lister.ListReportFiles(ctx, p.reportID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPolling, "list report files", err)
	}
	return files, nil
}

// Activate fetches once immediately and then every interval until
// Deactivate or ctx is done. Calling it again while active is a no-op.
func (p *PipelineStatusPoller) Activate(ctx context.Context) {
	p.mu.Lock()
	if p.active || p.stopped {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.active = true
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.loop(loopCtx)
}

// Deactivate stops the loop exactly once. Results of fetches still in flight
// are discarded.
func (p *PipelineStatusPoller) Deactivate() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		cancel := p.cancel
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		p.wg.Wait()
	})
}

// Refresh fetches a snapshot now, bypassing the interval, and returns the
// resulting state.
func (p *PipelineStatusPoller) Refresh(ctx context.Context) (domain.PollState, error) {
	if p.isStopped() {
		return p.State(), domain.ErrPollerStopped
	}
	err := p.fetch(ctx)
	return p.State(), err
}

// RequestRefresh asks the running loop for an early fetch without blocking.
func (p *PipelineStatusPoller) RequestRefresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *PipelineStatusPoller) State() domain.PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneState(p.state)
}

func (p *PipelineStatusPoller) loop(ctx context.Context) {
	defer p.wg.Done()

	_ = p.fetch(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.fetch(ctx)
		case <-p.kick:
			_ = p.fetch(ctx)
		}
	}
}

func (p *PipelineStatusPoller) fetch(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrPollerStopped
	}
	p.nextSeq++
	seq := p.nextSeq
	p.inFlight++
	if p.state.HasData {
		p.state.Refreshing = true
	}
	p.notifyLocked()
	p.mu.Unlock()

	start := time.Now()
	files, err := p.FetchSnapshot(ctx)
	duration := time.Since(start)

	p.mu.Lock()
	p.inFlight--
	if p.stopped {
		p.mu.Unlock()
		return domain.ErrPollerStopped
	}
	p.state.Refreshing = p.state.HasData && p.inFlight > 0

	if err != nil {
		p.state.LastError = err.Error()
		p.notifyLocked()
		p.mu.Unlock()

		p.observe("error", duration)
		p.logger.Warn("poll_failed", "report_id", p.reportID, "error", err)
		return err
	}

	if seq < p.applied {
		p.notifyLocked()
		p.mu.Unlock()
		return nil
	}
	p.applied = seq
	previous := p.state.Files
	first := !p.seeded
	p.seeded = true
	p.state.Files = append([]domain.ReportFile(nil), files...)
	p.state.Pipeline = domain.DerivePipeline(p.state.Files)
	p.state.Loading = false
	p.state.HasData = true
	p.state.LastError = ""
	p.state.FetchedAt = time.Now().UTC()
	p.notifyLocked()
	p.mu.Unlock()

	p.observe("success", duration)
	if first {
		previous = p.baseline(ctx, files)
	}
	p.handleTransitions(ctx, domain.DiffSnapshots(previous, files))
	return nil
}

// baseline is what the first snapshot of a session is diffed against: the
// recorded history when there is one, otherwise the snapshot itself.
func (p *PipelineStatusPoller) baseline(ctx context.Context, files []domain.ReportFile) []domain.ReportFile {
	if p.recorder == nil {
		return files
	}
	latest, err := p.recorder.LatestStatuses(ctx, p.reportID)
	if err != nil {
		p.logger.Warn("load_transition_baseline_failed", "report_id", p.reportID, "error", err)
		return files
	}
	out := make([]domain.ReportFile, 0, len(latest))
	for id, status := range latest {
		out = append(out, domain.ReportFile{ID: id, ReportID: p.reportID, Status: status})
	}
	return out
}

func (p *PipelineStatusPoller) handleTransitions(ctx context.Context, transitions []domain.StatusTransition) {
	if len(transitions) == 0 {
		return
	}
	for _, tr := range transitions {
		p.logger.Debug("file_status_changed",
			"report_id", tr.ReportID,
			"file_id", tr.FileID,
			"category", string(tr.Category),
			"from", string(tr.From),
			"to", string(tr.To),
		)
	}

	detached := context.WithoutCancel(ctx)
	if p.recorder != nil {
		if err := p.recorder.RecordTransitions(detached, transitions); err != nil {
			p.logger.Warn("record_transitions_failed", "report_id", p.reportID, "error", err)
		}
	}
	if p.events != nil {
		for _, tr := range transitions {
			err := p.events.Publish(detached, domain.Event{
				Type:       domain.EventStatusChanged,
				ReportID:   tr.ReportID,
				FileID:     tr.FileID,
				Category:   tr.Category,
				Status:     tr.To,
				Message:    tr.Error,
				OccurredAt: time.Now().UTC(),
			})
			if err != nil {
				p.logger.Warn("event_publish_failed", "type", string(domain.EventStatusChanged), "error", err)
			}
		}
	}
}

func (p *PipelineStatusPoller) observe(status string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObservePoll(status, d)
	}
}

func (p *PipelineStatusPoller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *PipelineStatusPoller) notifyLocked() {
	if len(p.observers) == 0 {
		return
	}
	snapshot := cloneState(p.state)
	for _, fn := range p.observers {
		fn(snapshot)
	}
}

func cloneState(s domain.PollState) domain.PollState {
	s.Files = append([]domain.ReportFile(nil), s.Files...)
	s.Pipeline = domain.DerivePipeline(s.Files)
	return s
}
