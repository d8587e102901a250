package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

// UploadSlot couples a single-mode selection with its upload manager. An
// accepted selection starts an upload right away and supersedes the running
// one.
type UploadSlot struct {
	selection *FileSelection
	uploader  ports.SourceUploader

	mu       sync.Mutex
	activeID string
}

func NewUploadSlot(selection *FileSelection, uploader ports.SourceUploader) *UploadSlot {
	return &UploadSlot{selection: selection, uploader: uploader}
}

// Select validates candidates and starts an upload for the newly selected
// file, if any. A selection left empty silences the running upload.
// Rejection messages are returned for presentation.
func (s *UploadSlot) Select(ctx context.Context, candidates ...domain.Candidate) ([]domain.Candidate, []string) {
	accepted, rejected := s.selection.AddFiles(candidates...)
	first, ok := s.selection.First()
	if !ok {
		s.mu.Lock()
		hadActive := s.activeID != ""
		s.activeID = ""
		s.mu.Unlock()
		if hadActive {
			s.uploader.Cancel()
		}
		return accepted, rejected
	}

	s.mu.Lock()
	changed := first.ID != s.activeID
	s.activeID = first.ID
	s.mu.Unlock()

	if changed {
		s.uploader.Start(ctx, first)
	}
	return accepted, rejected
}

// Remove drops a selected candidate. The file being uploaded cannot be
// removed until its upload finishes.
func (s *UploadSlot) Remove(candidateID string) error {
	state := s.uploader.State()
	if state.Uploading() && state.CandidateID == candidateID {
		return domain.WrapError(domain.ErrUploadInProgress, "remove candidate", domain.ErrConflict)
	}
	if !s.selection.RemoveByID(candidateID) {
		return domain.WrapError(domain.ErrNotFound, "remove candidate", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	if s.activeID == candidateID {
		s.activeID = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *UploadSlot) Cancel() {
	s.uploader.Cancel()
}

// Wait blocks until the running upload finishes or ctx is done.
func (s *UploadSlot) Wait(ctx context.Context) domain.UploadState {
	return s.uploader.Wait(ctx)
}

func (s *UploadSlot) State() domain.UploadState {
	return s.uploader.State()
}

// Err is the failure of the last upload, nil unless it failed.
func (s *UploadSlot) Err() error {
	return s.uploader.Err()
}

func (s *UploadSlot) Selection() *FileSelection {
	return s.selection
}

var (
	_ ports.SourceUploader  = (*UploadSessionManager)(nil)
	_ ports.PipelineWatcher = (*PipelineStatusPoller)(nil)
	_ ports.RetryTrigger    = (*RetryCoordinator)(nil)
	_ ports.ReportCatalog   = (*ReportCollection)(nil)
)

type DetailViewOptions struct {
	Selection SelectionOptions
	Poll      []PollerOption
	Upload    []UploadOption
}

// ReportDetailView wires one report's poller, upload slot and retry trigger.
// A finished upload asks the poller for an early snapshot.
type ReportDetailView struct {
	reportID int64
	poller   ports.PipelineWatcher
	slot     *UploadSlot
	retry    ports.RetryTrigger
}

func NewReportDetailView(
	reportID int64,
	api ports.ReportAPI,
	transport ports.ByteTransport,
	retry ports.RetryTrigger,
	opts DetailViewOptions,
) *ReportDetailView {
	poller := NewPipelineStatusPoller(reportID, api, opts.Poll...)

	uploadOpts := append([]UploadOption(nil), opts.Upload...)
	uploadOpts = append(uploadOpts, withUploadDoneHook(poller.RequestRefresh))
	uploader := NewUploadSessionManager(reportID, api, transport, api, uploadOpts...)

	selection := opts.Selection
	selection.Multiple = false

	return &ReportDetailView{
		reportID: reportID,
		poller:   poller,
		slot:     NewUploadSlot(NewFileSelection(selection), uploader),
		retry:    retry,
	}
}

func (v *ReportDetailView) ReportID() int64 { return v.reportID }

func (v *ReportDetailView) Activate(ctx context.Context) {
	v.poller.Activate(ctx)
}

// Close silences the running upload and stops polling.
func (v *ReportDetailView) Close() {
	v.slot.Cancel()
	v.poller.Deactivate()
}

func (v *ReportDetailView) Slot() *UploadSlot { return v.slot }

func (v *ReportDetailView) Poller() ports.PipelineWatcher { return v.poller }

func (v *ReportDetailView) Snapshot() domain.PollState {
	return v.poller.State()
}

// CanRetry is true when a stage failed and no retry is outstanding.
func (v *ReportDetailView) CanRetry() bool {
	return v.poller.State().Pipeline.HasFailed && !v.retry.InFlight(v.reportID)
}

func (v *ReportDetailView) Retry(ctx context.Context) (*domain.RetryNotice, error) {
	return v.retry.Retry(ctx, v.reportID, v.poller)
}

// ReportSummary is the per-entry view of the report list: a single fetch on
// demand, no recurring poll.
type ReportSummary struct {
	report domain.Report
	poller ports.PipelineWatcher
	retry  ports.RetryTrigger
}

func NewReportSummary(report domain.Report, lister ports.ReportFileLister, retry ports.RetryTrigger, opts ...PollerOption) *ReportSummary {
	return &ReportSummary{
		report: report,
		poller: NewPipelineStatusPoller(report.ID, lister, opts...),
		retry:  retry,
	}
}

func (s *ReportSummary) Report() domain.Report { return s.report }

func (s *ReportSummary) Refresh(ctx context.Context) (domain.PollState, error) {
	return s.poller.Refresh(ctx)
}

func (s *ReportSummary) State() domain.PollState {
	return s.poller.State()
}

func (s *ReportSummary) CanRetry() bool {
	return s.poller.State().Pipeline.HasFailed && !s.retry.InFlight(s.report.ID)
}

func (s *ReportSummary) Retry(ctx context.Context) (*domain.RetryNotice, error) {
	return s.retry.Retry(ctx, s.report.ID, s.poller)
}

// withUploadDoneHook chains fn after any observer already configured. fn
// runs under the manager's lock and must not block.
func withUploadDoneHook(fn func()) UploadOption {
	return func(m *UploadSessionManager) {
		previous := m.observer
		m.observer = func(state domain.UploadState) {
			if previous != nil {
				previous(state)
			}
			if state.Phase == domain.UploadDone {
				fn()
			}
		}
	}
}
