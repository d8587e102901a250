package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
)

// ReportCollection is a read-through cache over the report list. Mutations go
// to the store first and patch the cache only on success.
type ReportCollection struct {
	store  ports.ReportStore
	logger *slog.Logger

	mu      sync.Mutex
	reports []domain.Report
	loaded  bool
}

func NewReportCollection(store ports.ReportStore, logger *slog.Logger) *ReportCollection {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportCollection{store: store, logger: logger}
}

func (c *ReportCollection) List(ctx context.Context) ([]domain.Report, error) {
	c.mu.Lock()
	if c.loaded {
		out := append([]domain.Report(nil), c.reports...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	reports, err := c.store.ListReports(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPolling, "list reports", err)
	}

	c.mu.Lock()
	c.reports = append([]domain.Report(nil), reports...)
	c.loaded = true
	c.mu.Unlock()
	return reports, nil
}

func (c *ReportCollection) Create(ctx context.Context, companyName string) (*domain.Report, error) {
	name, err := domain.NormalizeCompanyName(companyName)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "create report", err)
	}

	report, err := c.store.CreateReport(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	c.mu.Lock()
	if c.loaded {
		c.reports = append(c.reports, *report)
	}
	c.mu.Unlock()

	c.logger.Info("report_created", "report_id", report.ID, "company_name", report.CompanyName)
	return report, nil
}

func (c *ReportCollection) Delete(ctx context.Context, reportID int64) error {
	if err := c.store.DeleteReport(ctx, reportID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}

	c.mu.Lock()
	for i, r := range c.reports {
		if r.ID == reportID {
			c.reports = append(c.reports[:i:i], c.reports[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.logger.Info("report_deleted", "report_id", reportID)
	return nil
}

// Invalidate drops the cache so the next List reads from the store.
func (c *ReportCollection) Invalidate() {
	c.mu.Lock()
	c.reports = nil
	c.loaded = false
	c.mu.Unlock()
}

// Cached returns the cached list and whether it has been loaded.
func (c *ReportCollection) Cached() ([]domain.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Report(nil), c.reports...), c.loaded
}
