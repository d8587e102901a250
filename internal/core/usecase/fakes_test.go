package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

type ticketCall struct {
	reportID int64
	fileType domain.FileType
	category domain.FileCategory
}

type statusCall struct {
	reportID int64
	fileID   int64
	update   domain.StatusUpdate
}

// apiFake implements ports.ReportAPI with scripted responses.
type apiFake struct {
	mu sync.Mutex

	reports   []domain.Report
	nextID    int64
	createErr error
	deleteErr error
	listErr   error
	listCalls int

	ticket      *domain.UploadTicket
	ticketErr   error
	ticketCalls []ticketCall

	statusErr   error
	statusCalls []statusCall

	// snapshots are served in order; the last one repeats.
	snapshots [][]domain.ReportFile
	filesErr  error
	fileCalls int

	retryResult *domain.RetryResult
	retryErr    error
	retryCalls  int
	retryGate   chan struct{}
	// onRetry runs before the response is returned.
	onRetry func()
}

func (f *apiFake) CreateReport(_ context.Context, companyName string) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	report := domain.Report{ID: f.nextID, CompanyName: companyName}
	f.reports = append(f.reports, report)
	return &report, nil
}

func (f *apiFake) DeleteReport(_ context.Context, reportID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, r := range f.reports {
		if r.ID == reportID {
			f.reports = append(f.reports[:i:i], f.reports[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *apiFake) ListReports(context.Context) ([]domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Report(nil), f.reports...), nil
}

func (f *apiFake) RequestUploadTicket(_ context.Context, reportID int64, fileType domain.FileType, category domain.FileCategory) (*domain.UploadTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticketCalls = append(f.ticketCalls, ticketCall{reportID: reportID, fileType: fileType, category: category})
	if f.ticketErr != nil {
		return nil, f.ticketErr
	}
	ticket := *f.ticket
	return &ticket, nil
}

func (f *apiFake) UpdateFileStatus(_ context.Context, reportID, fileID int64, update domain.StatusUpdate) (*domain.StatusUpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{reportID: reportID, fileID: fileID, update: update})
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &domain.StatusUpdateResult{ID: fileID, Status: update.Status}, nil
}

func (f *apiFake) ListReportFiles(context.Context, int64) ([]domain.ReportFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls++
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	idx := f.fileCalls - 1
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	return append([]domain.ReportFile(nil), f.snapshots[idx]...), nil
}

func (f *apiFake) GetDownloadURL(context.Context, int64, int64) (string, error) {
	return "https://storage.local/file", nil
}

func (f *apiFake) RetryPipeline(ctx context.Context, reportID int64) (*domain.RetryResult, error) {
	f.mu.Lock()
	f.retryCalls++
	gate := f.retryGate
	onRetry := f.onRetry
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if onRetry != nil {
		onRetry()
	}
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	res := *f.retryResult
	res.ReportID = reportID
	return &res, nil
}

func (f *apiFake) calls() (tickets, statuses, files, retries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticketCalls), len(f.statusCalls), f.fileCalls, f.retryCalls
}

func (f *apiFake) setSnapshots(snapshots ...[]domain.ReportFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = snapshots
	f.fileCalls = 0
}

var _ ports.ReportAPI = (*apiFake)(nil)

// transportFake reports progress in fixed steps and consumes the body.
type transportFake struct {
	mu     sync.Mutex
	err    error
	steps  []int64
	total  int64
	calls  int
	urls   []string
	read   int64
	gate   chan struct{}
	before func()
}

func (f *transportFake) Put(ctx context.Context, url string, body io.Reader, size int64, onProgress ports.ProgressFunc) error {
	f.mu.Lock()
	f.calls++
	f.urls = append(f.urls, url)
	gate := f.gate
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	n, _ := io.Copy(io.Discard, body)
	f.mu.Lock()
	f.read = n
	f.mu.Unlock()

	total := f.total
	if total == 0 {
		total = size
	}
	for _, step := range f.steps {
		onProgress(step, total)
	}
	return f.err
}

func (f *transportFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *eventsFake) Publish(_ context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *eventsFake) types() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type recorderFake struct {
	mu          sync.Mutex
	transitions []domain.StatusTransition
	err         error
}

func (f *recorderFake) RecordTransitions(_ context.Context, transitions []domain.StatusTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, transitions...)
	return f.err
}

func (f *recorderFake) LatestStatuses(_ context.Context, reportID int64) (map[int64]domain.FileStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]domain.FileStatus)
	for _, tr := range f.transitions {
		if tr.ReportID == reportID {
			out[tr.FileID] = tr.To
		}
	}
	return out, nil
}

func (f *recorderFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transitions)
}

type metricsFake struct {
	mu      sync.Mutex
	uploads []string
	polls   []string
	retries []string
}

func (f *metricsFake) ObserveUpload(status string, _ int64, _ time.Duration) {
	f.mu.Lock()
	f.uploads = append(f.uploads, status)
	f.mu.Unlock()
}

func (f *metricsFake) ObservePoll(status string, _ time.Duration) {
	f.mu.Lock()
	f.polls = append(f.polls, status)
	f.mu.Unlock()
}

func (f *metricsFake) ObserveRetry(stage, status string) {
	f.mu.Lock()
	f.retries = append(f.retries, stage+":"+status)
	f.mu.Unlock()
}

// messageError carries a server message the way API errors do.
type messageError struct {
	msg string
}

func (e *messageError) Error() string         { return "http 500: " + e.msg }
func (e *messageError) ServerMessage() string { return e.msg }

var errBoom = errors.New("boom")

func candidate(name string, size int64, mimeType string) domain.Candidate {
	return domain.Candidate{
		Name:     name,
		Size:     size,
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("content")), nil
		},
	}
}

func file(id int64, category domain.FileCategory, status domain.FileStatus) domain.ReportFile {
	return domain.ReportFile{ID: id, ReportID: 1, Category: category, Status: status}
}

func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
