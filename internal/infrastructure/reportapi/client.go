package reportapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/resilience"
)

// RequestObserver receives one call per HTTP exchange with the API.
type RequestObserver func(operation string, statusCode int, duration time.Duration)

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	// Executor retries idempotent reads. Mutations are sent once.
	Executor *resilience.Executor
	Limiter  *rate.Limiter
	Contract *Contract
	Logger   *slog.Logger
	Observer RequestObserver
}

// Client talks to the report API over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
	contract   *Contract
	logger     *slog.Logger
	observer   RequestObserver
}

func New(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   options.Executor,
		limiter:    options.Limiter,
		contract:   options.Contract,
		logger:     logger,
		observer:   options.Observer,
	}
}

func (c *Client) CreateReport(ctx context.Context, companyName string) (*domain.Report, error) {
	query := url.Values{}
	query.Set("company_name", companyName)

	var report domain.Report
	err := c.mutate(ctx, request{
		method:    http.MethodPost,
		path:      "/reports",
		query:     query,
		out:       &report,
		operation: "create report",
		schema:    SchemaReport,
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) DeleteReport(ctx context.Context, reportID int64) error {
	return c.mutate(ctx, request{
		method:    http.MethodDelete,
		path:      "/reports/" + id(reportID),
		operation: "delete report",
	})
}

func (c *Client) ListReports(ctx context.Context) ([]domain.Report, error) {
	return read[[]domain.Report](ctx, c, request{
		method:    http.MethodGet,
		path:      "/reports",
		operation: "list reports",
		schema:    SchemaReportList,
	})
}

func (c *Client) RequestUploadTicket(ctx context.Context, reportID int64, fileType domain.FileType, category domain.FileCategory) (*domain.UploadTicket, error) {
	query := url.Values{}
	query.Set("file_type", string(fileType))
	query.Set("category", string(category))

	var ticket domain.UploadTicket
	err := c.mutate(ctx, request{
		method:    http.MethodPost,
		path:      "/reports/" + id(reportID) + "/files/upload",
		query:     query,
		out:       &ticket,
		operation: "request upload ticket",
		schema:    SchemaUploadTicket,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(ticket.UploadURL) == "" {
		return nil, fmt.Errorf("request upload ticket: empty upload url")
	}
	return &ticket, nil
}

func (c *Client) UpdateFileStatus(ctx context.Context, reportID, fileID int64, update domain.StatusUpdate) (*domain.StatusUpdateResult, error) {
	var result domain.StatusUpdateResult
	err := c.mutate(ctx, request{
		method:    http.MethodPatch,
		path:      "/reports/" + id(reportID) + "/files/" + id(fileID) + "/status",
		body:      update,
		out:       &result,
		operation: "update file status",
		schema:    SchemaStatusUpdateResult,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListReportFiles(ctx context.Context, reportID int64) ([]domain.ReportFile, error) {
	return read[[]domain.ReportFile](ctx, c, request{
		method:    http.MethodGet,
		path:      "/reports/" + id(reportID) + "/files",
		operation: "list report files",
		schema:    SchemaReportFileList,
	})
}

type downloadLink struct {
	DownloadURL string `json:"download_url"`
}

func (c *Client) GetDownloadURL(ctx context.Context, reportID, fileID int64) (string, error) {
	link, err := read[downloadLink](ctx, c, request{
		method:    http.MethodGet,
		path:      "/reports/" + id(reportID) + "/files/" + id(fileID),
		operation: "get download url",
		schema:    SchemaDownloadLink,
	})
	if err != nil {
		return "", err
	}
	return link.DownloadURL, nil
}

func (c *Client) RetryPipeline(ctx context.Context, reportID int64) (*domain.RetryResult, error) {
	var result domain.RetryResult
	err := c.mutate(ctx, request{
		method:    http.MethodPost,
		path:      "/reports/" + id(reportID) + "/retry",
		out:       &result,
		operation: "retry pipeline",
		schema:    SchemaRetryResult,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// read sends an idempotent request through the resilience executor. Every
// attempt decodes into a fresh T.
func read[T any](ctx context.Context, c *Client, req request) (T, error) {
	out, err := resilience.Do(ctx, c.executor, "reportapi."+strings.ReplaceAll(req.operation, " ", "_"), func(callCtx context.Context) (T, error) {
		var v T
		attempt := req
		attempt.out = &v
		err := c.do(callCtx, attempt)
		return v, err
	}, classifyAPIError)
	return out, wrapTemporaryIfNeeded(req.operation, err)
}

// mutate sends a request exactly once. Creating reports, issuing tickets and
// finalizing files all have server-side effects that must not repeat.
func (c *Client) mutate(ctx context.Context, req request) error {
	return wrapTemporaryIfNeeded(req.operation, c.do(ctx, req))
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
