package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

type RetryCoordinator struct {
	retrier ports.PipelineRetrier
	logger  *slog.Logger
	metrics ports.MetricsRecorder
	events  ports.EventPublisher

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewRetryCoordinator(retrier ports.PipelineRetrier, logger *slog.Logger, metrics ports.MetricsRecorder, events ports.EventPublisher) *RetryCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryCoordinator{
		retrier:  retrier,
		logger:   logger,
		metrics:  metrics,
		events:   events,
		inFlight: make(map[int64]struct{}),
	}
}

// InFlight reports whether a retry for the report is outstanding; the
// trigger is disabled while it is.
func (c *RetryCoordinator) InFlight(reportID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[reportID]
	return ok
}

// Retry asks the pipeline to re-run the report's failed stage. A second call
// for the same report while one is outstanding returns ErrRetryInFlight
// without any network call. On success refresher, when given, is asked for
// an immediate snapshot. Whether the retry was a no-op is left to the
// server's queued/message fields.
func (c *RetryCoordinator) Retry(ctx context.Context, reportID int64, refresher ports.SnapshotRefresher) (*domain.RetryNotice, error) {
	if !c.acquire(reportID) {
		return nil, domain.WrapError(domain.ErrRetryInFlight, "retry pipeline", domain.ErrConflict)
	}

	result, err := c.retrier.RetryPipeline(ctx, reportID)
	c.release(reportID)

	if err != nil {
		message := domain.UserMessage(unwrapCause(err), domain.RetryFailedMessage)
		c.observe("", "error")
		c.logger.Error("retry_failed", "report_id", reportID, "error", err)
		c.publish(ctx, domain.Event{Type: domain.EventRetryFailed, ReportID: reportID, Message: message})
		return &domain.RetryNotice{Message: message}, domain.WrapError(domain.ErrRetryRequest, "retry pipeline", err)
	}

	message := result.Message
	if message == "" {
		message = domain.RetryQueuedMessage
	}
	c.observe(string(result.RetryStage), "success")
	c.logger.Info("retry_requested",
		"report_id", reportID,
		"retry_stage", string(result.RetryStage),
		"queued", result.Queued,
	)
	c.publish(ctx, domain.Event{Type: domain.EventRetryQueued, ReportID: reportID, Message: message})

	if refresher != nil {
		if _, err := refresher.Refresh(ctx); err != nil {
			c.logger.Warn("retry_refresh_failed", "report_id", reportID, "error", err)
		}
	}

	return &domain.RetryNotice{Result: *result, Message: message}, nil
}

func (c *RetryCoordinator) acquire(reportID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[reportID]; busy {
		return false
	}
	c.inFlight[reportID] = struct{}{}
	return true
}

func (c *RetryCoordinator) release(reportID int64) {
	c.mu.Lock()
	delete(c.inFlight, reportID)
	c.mu.Unlock()
}

func (c *RetryCoordinator) observe(stage, status string) {
	if c.metrics == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	c.metrics.ObserveRetry(stage, status)
}

func (c *RetryCoordinator) publish(ctx context.Context, event domain.Event) {
	if c.events == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := c.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("event_publish_failed", "type", string(event.Type), "error", err)
	}
}
