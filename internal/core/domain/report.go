package domain

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"
)

type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeJSON FileType = "json"
	FileTypeTXT  FileType = "txt"
)

type FileCategory string

const (
	CategorySource  FileCategory = "source"
	CategoryExtract FileCategory = "extract"
	CategoryOutput  FileCategory = "output"
)

// PipelineCategories lists the stages in pipeline order.
var PipelineCategories = []FileCategory{CategorySource, CategoryExtract, CategoryOutput}

type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusDone       FileStatus = "done"
	FileStatusError      FileStatus = "error"
)

type RetryStage string

const (
	RetryStageExtractor RetryStage = "extractor"
	RetryStageRenderer  RetryStage = "renderer"
)

// MinCompanyNameLength is the shortest company name accepted for a report.
const MinCompanyNameLength = 2

type Report struct {
	ID          int64     `json:"id"`
	CompanyName string    `json:"company_name"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

type ReportFile struct {
	ID        int64        `json:"id"`
	ReportID  int64        `json:"report_id"`
	Type      FileType     `json:"type"`
	Category  FileCategory `json:"category"`
	Status    FileStatus   `json:"status"`
	S3Bucket  string       `json:"s3_bucket"`
	S3Key     string       `json:"s3_key"`
	Error     string       `json:"error,omitempty"`
	CreatedAt Timestamp    `json:"created_at"`
	UpdatedAt Timestamp    `json:"updated_at"`
}

// UploadTicket is single-use: every upload attempt requests a new one.
type UploadTicket struct {
	FileID    int64        `json:"file_id"`
	UploadURL string       `json:"upload_url"`
	S3Key     string       `json:"s3_key"`
	S3Bucket  string       `json:"s3_bucket"`
	FileType  FileType     `json:"file_type"`
	Category  FileCategory `json:"category"`
	Status    FileStatus   `json:"status"`
	Message   string       `json:"message,omitempty"`
}

type StatusUpdate struct {
	Status       FileStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type StatusUpdateResult struct {
	ID     int64      `json:"id"`
	Status FileStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

type RetryResult struct {
	ReportID   int64      `json:"report_id"`
	RetryStage RetryStage `json:"retry_stage"`
	Queued     bool       `json:"queued"`
	Message    string     `json:"message"`
}

// SourceFileType maps a detected MIME type onto the two types accepted for
// source uploads. Anything that is not plain text is sent as pdf.
func SourceFileType(mimeType string) FileType {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if mediaType == "text/plain" {
		return FileTypeTXT
	}
	return FileTypePDF
}

// NormalizeCompanyName trims the name and enforces the minimum length.
func NormalizeCompanyName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < MinCompanyNameLength {
		return "", WrapError(ErrInvalidInput, "validate company name",
			fmt.Errorf("company name must be at least %d characters", MinCompanyNameLength))
	}
	return trimmed, nil
}

// Timestamp decodes both RFC 3339 and the zone-less ISO-8601 form the API
// emits for naive datetimes. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q: unsupported layout", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
