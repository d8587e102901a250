package transfer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

// UploadContentType is sent on every PUT; the presigned URLs are issued for
// it regardless of the file's own type.
const UploadContentType = "application/pdf"

const maxErrorBody = 4096

// StatusError is a non-2xx answer from object storage.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("storage %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("storage %s status: %s - %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ServerMessage returns the <Message> of an S3 error document, or the raw
// body when it is not one.
func (e *StatusError) ServerMessage() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return ""
	}
	var doc struct {
		XMLName xml.Name `xml:"Error"`
		Code    string   `xml:"Code"`
		Message string   `xml:"Message"`
	}
	if err := xml.Unmarshal([]byte(body), &doc); err == nil && strings.TrimSpace(doc.Message) != "" {
		return strings.TrimSpace(doc.Message)
	}
	return body
}

// PresignedUploader moves bytes to and from presigned object storage URLs.
type PresignedUploader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *PresignedUploader {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PresignedUploader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewWithClient is used when the caller owns the http.Client.
func NewWithClient(httpClient *http.Client, logger *slog.Logger) *PresignedUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresignedUploader{httpClient: httpClient, logger: logger}
}

// Put streams body to url. A non-negative size is sent as Content-Length and
// is the total reported to onProgress; a negative size means unknown and
// progress carries total -1. An empty file is sent with an explicit zero
// length, never chunked.
func (u *PresignedUploader) Put(ctx context.Context, url string, body io.Reader, size int64, onProgress ports.ProgressFunc) error {
	total := size
	if total < 0 {
		total = -1
	}
	reader := &progressReader{r: body, total: total, onProgress: onProgress}

	var payload io.Reader = reader
	if size == 0 {
		payload = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, payload)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", UploadContentType)
	if size > 0 {
		req.ContentLength = size
	}

	start := time.Now()
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError("upload", resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	u.logger.Debug("storage_upload_completed",
		"bytes", reader.read,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Download streams the object at url into w and returns the bytes written.
func (u *PresignedUploader) Download(ctx context.Context, url string, w io.Writer, onProgress ports.ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("storage download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, newStatusError("download", resp)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = -1
	}
	reader := &progressReader{r: resp.Body, total: total, onProgress: onProgress}
	n, err := io.Copy(w, reader)
	if err != nil {
		return n, fmt.Errorf("copy download body: %w", err)
	}
	return n, nil
}

func newStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress ports.ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.read, p.total)
		}
	}
	return n, err
}
