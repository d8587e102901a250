package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

// UploadObserver is called after every applied state change, in order. It
// runs under the manager's lock and must not call back into the manager.
type UploadObserver func(domain.UploadState)

type UploadOption func(*UploadSessionManager)

func WithUploadObserver(fn UploadObserver) UploadOption {
	return func(m *UploadSessionManager) { m.observer = fn }
}

func WithUploadCategory(category domain.FileCategory) UploadOption {
	return func(m *UploadSessionManager) { m.category = category }
}

func WithUploadLogger(logger *slog.Logger) UploadOption {
	return func(m *UploadSessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithUploadMetrics(metrics ports.MetricsRecorder) UploadOption {
	return func(m *UploadSessionManager) { m.metrics = metrics }
}

func WithUploadEvents(events ports.EventPublisher) UploadOption {
	return func(m *UploadSessionManager) { m.events = events }
}

// UploadSessionManager runs ticket issuance, byte transfer and status
// finalization for one selection slot. A new upload supersedes the running
// one; a superseded or cancelled run never mutates state again.
type UploadSessionManager struct {
	reportID  int64
	category  domain.FileCategory
	issuer    ports.UploadTicketIssuer
	transport ports.ByteTransport
	updater   ports.FileStatusUpdater

	logger   *slog.Logger
	metrics  ports.MetricsRecorder
	events   ports.EventPublisher
	observer UploadObserver

	mu      sync.Mutex
	state   domain.UploadState
	err     error
	current *uploadRun
}

type uploadRun struct {
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewUploadSessionManager(
	reportID int64,
	issuer ports.UploadTicketIssuer,
	transport ports.ByteTransport,
	updater ports.FileStatusUpdater,
	opts ...UploadOption,
) *UploadSessionManager {
	m := &UploadSessionManager{
		reportID:  reportID,
		category:  domain.CategorySource,
		issuer:    issuer,
		transport: transport,
		updater:   updater,
		logger:    slog.Default(),
		state:     domain.UploadState{Phase: domain.UploadIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches an upload in the background, superseding any running one.
func (m *UploadSessionManager) Start(ctx context.Context, candidate domain.Candidate) {
	run, runCtx := m.begin(ctx)
	go func() {
		_, _ = m.execute(runCtx, run, candidate)
	}()
}

// Upload runs the sequence to completion and returns the final state.
func (m *UploadSessionManager) Upload(ctx context.Context, candidate domain.Candidate) (domain.UploadState, error) {
	run, runCtx := m.begin(ctx)
	return m.execute(runCtx, run, candidate)
}

// Cancel silences the running sequence. Requests already on the wire may
// still complete but their results are discarded.
func (m *UploadSessionManager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
}

func (m *UploadSessionManager) State() domain.UploadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error of the last run when it failed.
func (m *UploadSessionManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the current run finishes or ctx is done.
func (m *UploadSessionManager) Wait(ctx context.Context) domain.UploadState {
	m.mu.Lock()
	run := m.current
	m.mu.Unlock()
	if run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
		}
	}
	return m.State()
}

func (m *UploadSessionManager) begin(ctx context.Context) (*uploadRun, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	run := &uploadRun{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.cancelLocked()
	m.current = run
	m.mu.Unlock()
	return run, runCtx
}

func (m *UploadSessionManager) cancelLocked() {
	if m.current == nil || m.current.cancelled {
		return
	}
	m.current.cancelled = true
	m.current.cancel()
}

func (m *UploadSessionManager) execute(ctx context.Context, run *uploadRun, candidate domain.Candidate) (domain.UploadState, error) {
	defer close(run.done)
	defer run.cancel()

	start := time.Now()
	state, err := m.runSequence(ctx, run, candidate)
	if errors.Is(err, domain.ErrCancelled) {
		return state, err
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	if m.metrics != nil {
		m.metrics.ObserveUpload(status, candidate.Size, time.Since(start))
	}
	return state, err
}

func (m *UploadSessionManager) runSequence(ctx context.Context, run *uploadRun, candidate domain.Candidate) (domain.UploadState, error) {
	ok := m.apply(run, func(s *domain.UploadState) {
		*s = domain.UploadState{
			Phase:       domain.UploadRequestingTicket,
			CandidateID: candidate.ID,
			FileName:    candidate.Name,
		}
		m.err = nil
	})
	if !ok {
		return m.State(), domain.ErrCancelled
	}

	fileType := domain.SourceFileType(candidate.MIMEType)
	ticket, err := m.issuer.RequestUploadTicket(ctx, m.reportID, fileType, m.category)
	if err != nil {
		return m.fail(ctx, run, candidate, domain.WrapError(domain.ErrTicketRequest, "request upload ticket", err))
	}

	if candidate.Open == nil {
		return m.fail(ctx, run, candidate, domain.WrapError(domain.ErrTransfer, "open local file", errors.New("candidate has no content")))
	}
	body, err := candidate.Open()
	if err != nil {
		return m.fail(ctx, run, candidate, domain.WrapError(domain.ErrTransfer, "open local file", err))
	}
	defer body.Close()

	if !m.apply(run, func(s *domain.UploadState) {
		s.Phase = domain.UploadTransferring
		s.FileID = ticket.FileID
	}) {
		return m.State(), domain.ErrCancelled
	}

	err = m.transport.Put(ctx, ticket.UploadURL, body, candidate.Size, func(transferred, total int64) {
		percent, known := progressPercent(transferred, total)
		if !known {
			return
		}
		m.apply(run, func(s *domain.UploadState) {
			if percent > s.Progress {
				s.Progress = percent
			}
		})
	})
	if err != nil {
		return m.fail(ctx, run, candidate, domain.WrapError(domain.ErrTransfer, "transfer file bytes", err))
	}

	if !m.apply(run, func(s *domain.UploadState) {
		s.Phase = domain.UploadFinalizing
		s.BytesStored = true
	}) {
		return m.State(), domain.ErrCancelled
	}

	if _, err := m.updater.UpdateFileStatus(ctx, m.reportID, ticket.FileID, domain.StatusUpdate{Status: domain.FileStatusDone}); err != nil {
		return m.fail(ctx, run, candidate, domain.WrapError(domain.ErrStatusUpdate, "mark file done", err))
	}

	if !m.apply(run, func(s *domain.UploadState) {
		s.Phase = domain.UploadDone
		s.UploadedKey = ticket.S3Key
	}) {
		return m.State(), domain.ErrCancelled
	}

	m.logger.Info("upload_completed",
		"report_id", m.reportID,
		"file_id", ticket.FileID,
		"category", string(m.category),
		"s3_key", ticket.S3Key,
		"bytes", candidate.Size,
	)
	m.publish(ctx, domain.Event{
		Type:     domain.EventUploadCompleted,
		ReportID: m.reportID,
		FileID:   ticket.FileID,
		Category: m.category,
		Status:   domain.FileStatusDone,
	})
	return m.State(), nil
}

func (m *UploadSessionManager) fail(ctx context.Context, run *uploadRun, candidate domain.Candidate, err error) (domain.UploadState, error) {
	message := domain.UserMessage(unwrapCause(err), domain.UploadFailedMessage)

	if !m.apply(run, func(s *domain.UploadState) {
		s.Phase = domain.UploadFailed
		s.Error = message
		m.err = err
	}) {
		return m.State(), domain.ErrCancelled
	}

	m.logger.Error("upload_failed",
		"report_id", m.reportID,
		"category", string(m.category),
		"file", candidate.Name,
		"error", err,
	)
	m.publish(ctx, domain.Event{
		Type:     domain.EventUploadFailed,
		ReportID: m.reportID,
		Category: m.category,
		Message:  message,
	})
	return m.State(), err
}

// apply mutates state unless run was cancelled or superseded.
func (m *UploadSessionManager) apply(run *uploadRun, mutate func(*domain.UploadState)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.cancelled || m.current != run {
		return false
	}
	before := m.state
	mutate(&m.state)
	if m.observer != nil && m.state != before {
		m.observer(m.state)
	}
	return true
}

func (m *UploadSessionManager) publish(ctx context.Context, event domain.Event) {
	if m.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := m.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Warn("event_publish_failed", "type", string(event.Type), "error", err)
	}
}

// progressPercent converts a transport progress event into a percentage in
// [0,100]. known is false when the total size is unknown.
func progressPercent(transferred, total int64) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	percent := int(math.Round(float64(transferred) / float64(total) * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// unwrapCause strips the operation and kind prefixes added by WrapError so
// the user sees the underlying message.
func unwrapCause(err error) error {
	type multi interface{ Unwrap() []error }
	var m multi
	if errors.As(err, &m) {
		causes := m.Unwrap()
		if len(causes) > 0 {
			return causes[len(causes)-1]
		}
	}
	return err
}
