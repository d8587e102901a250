package ports

import (
	"context"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

// ReportCatalog is the inbound contract for the cached report collection.
type ReportCatalog interface {
	List(ctx context.Context) ([]domain.Report, error)
	Create(ctx context.Context, companyName string) (*domain.Report, error)
	Delete(ctx context.Context, reportID int64) error
	Invalidate()
}

// SourceUploader drives one upload sequence per selection slot.
type SourceUploader interface {
	Start(ctx context.Context, candidate domain.Candidate)
	Upload(ctx context.Context, candidate domain.Candidate) (domain.UploadState, error)
	Cancel()
	State() domain.UploadState
	Wait(ctx context.Context) domain.UploadState
	Err() error
}

// SnapshotRefresher forces an immediate snapshot fetch.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (domain.PollState, error)
}

// PipelineWatcher keeps a report's snapshot current while active.
type PipelineWatcher interface {
	SnapshotRefresher
	Activate(ctx context.Context)
	Deactivate()
	State() domain.PollState
}

// RetryTrigger requests pipeline retries without double submission.
type RetryTrigger interface {
	Retry(ctx context.Context, reportID int64, refresher SnapshotRefresher) (*domain.RetryNotice, error)
	InFlight(reportID int64) bool
}
