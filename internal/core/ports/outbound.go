package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

// ReportStore creates, deletes and lists reports on the report API.
type ReportStore interface {
	CreateReport(ctx context.Context, companyName string) (*domain.Report, error)
	DeleteReport(ctx context.Context, reportID int64) error
	ListReports(ctx context.Context) ([]domain.Report, error)
}

// UploadTicketIssuer hands out single-use upload tickets.
type UploadTicketIssuer interface {
	RequestUploadTicket(ctx context.Context, reportID int64, fileType domain.FileType, category domain.FileCategory) (*domain.UploadTicket, error)
}

// FileStatusUpdater records a file status on the report API.
type FileStatusUpdater interface {
	UpdateFileStatus(ctx context.Context, reportID, fileID int64, update domain.StatusUpdate) (*domain.StatusUpdateResult, error)
}

// ReportFileLister returns the full file set of a report.
type ReportFileLister interface {
	ListReportFiles(ctx context.Context, reportID int64) ([]domain.ReportFile, error)
}

// DownloadLinker resolves a short-lived download URL for a stored file.
type DownloadLinker interface {
	GetDownloadURL(ctx context.Context, reportID, fileID int64) (string, error)
}

// PipelineRetrier asks the pipeline to re-run from its failed stage.
type PipelineRetrier interface {
	RetryPipeline(ctx context.Context, reportID int64) (*domain.RetryResult, error)
}

// ReportAPI is the full surface of the external report service.
type ReportAPI interface {
	ReportStore
	UploadTicketIssuer
	FileStatusUpdater
	ReportFileLister
	DownloadLinker
	PipelineRetrier
}

// ProgressFunc receives cumulative transferred bytes. total is <= 0 when the
// transport does not know the body size.
type ProgressFunc func(transferred, total int64)

// ByteTransport moves raw bytes to an upload target.
type ByteTransport interface {
	Put(ctx context.Context, url string, body io.Reader, size int64, onProgress ProgressFunc) error
}

// EventPublisher fans orchestration events out to other consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// TransitionRecorder persists status transitions observed between polls.
type TransitionRecorder interface {
	RecordTransitions(ctx context.Context, transitions []domain.StatusTransition) error
	// LatestStatuses returns the last recorded status of every file of a
	// report. Files never recorded are absent.
	LatestStatuses(ctx context.Context, reportID int64) (map[int64]domain.FileStatus, error)
}

// MetricsRecorder receives orchestration measurements.
type MetricsRecorder interface {
	ObserveUpload(status string, bytes int64, duration time.Duration)
	ObservePoll(status string, duration time.Duration)
	ObserveRetry(stage, status string)
}
