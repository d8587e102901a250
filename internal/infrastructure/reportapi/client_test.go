package reportapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/resilience"
)

func TestCreateReportEncodesCompanyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/reports" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("company_name"); got != "Acme & Sons" {
			t.Errorf("unexpected company_name: %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":3,"company_name":"Acme & Sons","created_at":"2025-03-01T10:00:00.5","updated_at":null}`))
	}))
	defer srv.Close()

	report, err := New(srv.URL+"/", Options{}).CreateReport(context.Background(), "Acme & Sons")
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if report.ID != 3 || report.CompanyName != "Acme & Sons" || report.CreatedAt.IsZero() {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRequestUploadTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/reports/5/files/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("file_type") != "pdf" || q.Get("category") != "source" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"file_id":11,"upload_url":"http://minio/put","s3_key":"pdf_1.pdf","s3_bucket":"reports","file_type":"pdf","category":"source","status":"pending","message":"Created new file record."}`))
	}))
	defer srv.Close()

	ticket, err := New(srv.URL, Options{}).RequestUploadTicket(context.Background(), 5, domain.FileTypePDF, domain.CategorySource)
	if err != nil {
		t.Fatalf("RequestUploadTicket() error = %v", err)
	}
	if ticket.FileID != 11 || ticket.UploadURL != "http://minio/put" || ticket.Status != domain.FileStatusPending {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
}

func TestTicketConflictSurfacesServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"File already in progress (processing)."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, Options{}).RequestUploadTicket(context.Background(), 5, domain.FileTypePDF, domain.CategorySource)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := domain.UserMessage(err, "fallback"); got != "File already in progress (processing)." {
		t.Fatalf("unexpected user message: %q", got)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected HTTPStatusError, got %T", err)
	}
}

func TestUpdateFileStatusSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/reports/5/files/11/status" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %q", ct)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if payload["status"] != "done" {
			t.Errorf("unexpected payload: %v", payload)
		}
		if _, ok := payload["error_message"]; ok {
			t.Errorf("empty error_message must be omitted")
		}
		_, _ = w.Write([]byte(`{"id":11,"status":"done","error":null}`))
	}))
	defer srv.Close()

	result, err := New(srv.URL, Options{}).UpdateFileStatus(context.Background(), 5, 11, domain.StatusUpdate{Status: domain.FileStatusDone})
	if err != nil {
		t.Fatalf("UpdateFileStatus() error = %v", err)
	}
	if result.ID != 11 || result.Status != domain.FileStatusDone {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDeleteReportAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/reports/5" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, Options{}).DeleteReport(context.Background(), 5); err != nil {
		t.Fatalf("DeleteReport() error = %v", err)
	}
}

func TestDeleteMissingReportIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Report not found"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, Options{}).DeleteReport(context.Background(), 5)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReportFilesRetriesTemporaryFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"report_id":5,"type":"pdf","category":"source","status":"done","s3_bucket":"b","s3_key":"k","error":null,"created_at":"2025-03-01T10:00:00","updated_at":"2025-03-01T10:00:01"}]`))
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}, nil)
	files, err := New(srv.URL, Options{Executor: exec}).ListReportFiles(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListReportFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].Category != domain.CategorySource || files[0].Status != domain.FileStatusDone {
		t.Fatalf("unexpected files: %+v", files)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRetryPipelineIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond}, nil)
	_, err := New(srv.URL, Options{Executor: exec}).RetryPipeline(context.Background(), 5)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("mutation must be sent once, got %d", calls.Load())
	}
}

func TestRetryPipelineDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/reports/5/retry" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"report_id":5,"retry_stage":"renderer","queued":true,"message":"Report re-queued for renderer processing."}`))
	}))
	defer srv.Close()

	result, err := New(srv.URL, Options{}).RetryPipeline(context.Background(), 5)
	if err != nil {
		t.Fatalf("RetryPipeline() error = %v", err)
	}
	if result.RetryStage != domain.RetryStageRenderer || !result.Queued {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reports/5/files/12" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"download_url":"http://minio/get?sig=1"}`))
	}))
	defer srv.Close()

	link, err := New(srv.URL, Options{}).GetDownloadURL(context.Background(), 5, 12)
	if err != nil {
		t.Fatalf("GetDownloadURL() error = %v", err)
	}
	if link != "http://minio/get?sig=1" {
		t.Fatalf("unexpected link: %q", link)
	}
}

func TestContractRejectsDriftedPayload(t *testing.T) {
	contract, err := LoadContract(context.Background())
	if err != nil {
		t.Fatalf("LoadContract() error = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"report_id":5,"type":"pdf","category":"source","status":"finished"}]`))
	}))
	defer srv.Close()

	_, err = New(srv.URL, Options{Contract: contract}).ListReportFiles(context.Background(), 5)
	if err == nil {
		t.Fatalf("expected contract violation for unknown status")
	}
}

func TestContractAcceptsValidPayload(t *testing.T) {
	contract, err := LoadContract(context.Background())
	if err != nil {
		t.Fatalf("LoadContract() error = %v", err)
	}
	body := []byte(`{"report_id":5,"retry_stage":"extractor","queued":true,"message":"ok"}`)
	if err := contract.ValidateResponse(SchemaRetryResult, body); err != nil {
		t.Fatalf("ValidateResponse() error = %v", err)
	}
	if err := contract.ValidateResponse("Missing", body); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}

func TestObserverSeesStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	var seen []int
	client := New(srv.URL, Options{Observer: func(operation string, status int, _ time.Duration) {
		if operation != "list reports" {
			t.Fatalf("unexpected operation %q", operation)
		}
		seen = append(seen, status)
	}})
	if _, err := client.ListReports(context.Background()); err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != http.StatusOK {
		t.Fatalf("unexpected observations: %v", seen)
	}
}

func TestServerMessageVariants(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Report not found"}`:                     "Report not found",
		`{"message":"bad"}`:                                 "bad",
		`{"detail":[{"msg":"field required"},{"msg":"x"}]}`: "field required; x",
		`plain failure`:                                     "plain failure",
		``:                                                  "",
	}
	for body, want := range cases {
		err := &HTTPStatusError{Operation: "op", StatusCode: 400, Status: "400 Bad Request", Body: body}
		if got := err.ServerMessage(); got != want {
			t.Fatalf("ServerMessage(%q) = %q, want %q", body, got, want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Fatalf("parseRetryAfter(2) = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("invalid header must yield 0, got %v", got)
	}
}
