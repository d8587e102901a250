package transfer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

func TestPutSendsBytesWithPDFContentType(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64*1024)
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != UploadContentType {
			t.Errorf("unexpected content type %q", ct)
		}
		if r.ContentLength != int64(len(payload)) {
			t.Errorf("unexpected content length %d", r.ContentLength)
		}
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var last, lastTotal int64
	calls := 0
	err := New(time.Minute, nil).Put(context.Background(), srv.URL+"/bucket/key?sig=1", bytes.NewReader(payload), int64(len(payload)), func(transferred, total int64) {
		if transferred < last {
			t.Fatalf("progress went backwards: %d < %d", transferred, last)
		}
		last, lastTotal = transferred, total
		calls++
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Fatalf("server received %d bytes, want %d", len(received), len(payload))
	}
	if calls == 0 || last != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Fatalf("unexpected progress: calls=%d last=%d total=%d", calls, last, lastTotal)
	}
}

func TestPutUnknownSizeReportsNegativeTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	var total int64
	err := New(time.Minute, nil).Put(context.Background(), srv.URL, strings.NewReader("hello"), -1, func(_, n int64) { total = n })
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if total != -1 {
		t.Fatalf("expected unknown total, got %d", total)
	}
}

func TestPutEmptyFileSendsZeroLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TransferEncoding) != 0 {
			t.Errorf("empty upload must not be chunked, got %v", r.TransferEncoding)
		}
		if r.ContentLength != 0 {
			t.Errorf("unexpected content length %d", r.ContentLength)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(time.Minute, nil).Put(context.Background(), srv.URL, strings.NewReader(""), 0, func(int64, int64) {})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestPutSurfacesS3ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Request has expired</Message></Error>`)
	}))
	defer srv.Close()

	err := New(time.Minute, nil).Put(context.Background(), srv.URL, strings.NewReader("x"), 1, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := domain.UserMessage(err, "fallback"); got != "Request has expired" {
		t.Fatalf("unexpected user message: %q", got)
	}
	statusErr, ok := err.(*StatusError)
	if !ok || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected *StatusError, got %T", err)
	}
}

func TestStatusErrorPlainBody(t *testing.T) {
	err := &StatusError{Operation: "upload", Status: "500 Internal Server Error", Body: "gateway down"}
	if err.ServerMessage() != "gateway down" {
		t.Fatalf("unexpected message %q", err.ServerMessage())
	}
	if !strings.Contains(err.Error(), "500 Internal Server Error - gateway down") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"report":"ok"}`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := New(time.Minute, nil).Download(context.Background(), srv.URL, &buf, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(buf.Len()) || buf.String() != `{"report":"ok"}` {
		t.Fatalf("unexpected download: n=%d body=%q", n, buf.String())
	}
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := New(time.Minute, nil).Download(context.Background(), srv.URL, io.Discard, nil); err == nil {
		t.Fatalf("expected error for 404")
	}
}
