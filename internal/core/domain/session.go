package domain

import (
	"io"
	"time"
)

// Candidate is a locally chosen file awaiting validation and upload.
type Candidate struct {
	ID       string
	Name     string
	Size     int64
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

type UploadPhase string

const (
	UploadIdle             UploadPhase = "idle"
	UploadRequestingTicket UploadPhase = "requesting_ticket"
	UploadTransferring     UploadPhase = "transferring"
	UploadFinalizing       UploadPhase = "finalizing"
	UploadDone             UploadPhase = "done"
	UploadFailed           UploadPhase = "failed"
)

// UploadState is the observable state of one upload slot.
type UploadState struct {
	Phase       UploadPhase
	CandidateID string
	FileName    string
	FileID      int64
	Progress    int
	Error       string
	UploadedKey string
	// BytesStored is set once the transfer succeeded, even when the status
	// update that follows fails.
	BytesStored bool
}

func (s UploadState) Uploading() bool {
	switch s.Phase {
	case UploadRequestingTicket, UploadTransferring, UploadFinalizing:
		return true
	default:
		return false
	}
}

// PollState is the poller's current snapshot plus its derived pipeline.
type PollState struct {
	ReportID int64
	Files    []ReportFile
	Pipeline PipelineState

	// Loading stays true until the first snapshot ever arrives.
	Loading bool
	// Refreshing is true while a fetch runs after the first snapshot.
	Refreshing bool
	HasData    bool
	LastError  string
	FetchedAt  time.Time
}

type RetryNotice struct {
	Result  RetryResult
	Message string
}

type EventType string

const (
	EventUploadCompleted EventType = "upload.completed"
	EventUploadFailed    EventType = "upload.failed"
	EventStatusChanged   EventType = "file.status_changed"
	EventRetryQueued     EventType = "retry.queued"
	EventRetryFailed     EventType = "retry.failed"
)

type Event struct {
	Type       EventType    `json:"type"`
	ReportID   int64        `json:"report_id"`
	FileID     int64        `json:"file_id,omitempty"`
	Category   FileCategory `json:"category,omitempty"`
	Status     FileStatus   `json:"status,omitempty"`
	Message    string       `json:"message,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
