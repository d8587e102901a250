package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kirillkom/report-pipeline-client/internal/config"
	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
	"github.com/kirillkom/report-pipeline-client/internal/core/ports"
	"github.com/kirillkom/report-pipeline-client/internal/core/usecase"
	natsevents "github.com/kirillkom/report-pipeline-client/internal/infrastructure/events/nats"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/reportapi"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/resilience"
	"github.com/kirillkom/report-pipeline-client/internal/infrastructure/transfer"
	"github.com/kirillkom/report-pipeline-client/internal/observability/metrics"
)

const serviceName = "reportctl"

type App struct {
	Config config.Config
	Logger *slog.Logger

	API       *reportapi.Client
	Transport *transfer.PresignedUploader
	Metrics   *metrics.ClientMetrics

	// Events is nil unless NATS_URL is set.
	Events ports.EventPublisher
	// History is nil unless POSTGRES_DSN is set.
	History *postgres.TransitionRepository

	Reports ports.ReportCatalog
	Retry   ports.RetryTrigger

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.APIRetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.APIBreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg, logger)

	var limiter *rate.Limiter
	if cfg.APIRateLimitRPS > 0 {
		burst := cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}

	var contract *reportapi.Contract
	if cfg.APIValidateResponses {
		loaded, err := reportapi.LoadContract(ctx)
		if err != nil {
			return nil, fmt.Errorf("load api contract: %w", err)
		}
		contract = loaded
	}

	clientMetrics := metrics.NewClientMetrics(serviceName)
	api := reportapi.New(cfg.ReportAPIURL, reportapi.Options{
		Timeout:  cfg.APITimeout(),
		Executor: executor,
		Limiter:  limiter,
		Contract: contract,
		Logger:   logger,
		Observer: clientMetrics.ObserveAPIRequest,
	})

	app := &App{
		Config:    cfg,
		Logger:    logger,
		API:       api,
		Transport: transfer.New(cfg.TransferTimeout(), logger),
		Metrics:   clientMetrics,
	}

	if cfg.NATSURL != "" {
		publisher, err := natsevents.New(cfg.NATSURL, natsevents.Options{
			SubjectPrefix:      cfg.NATSSubjectPrefix,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		closers = append(closers, publisher.Close)
		app.Events = publisher
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		history := postgres.NewTransitionRepository(db)
		if err := history.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.History = history
	}

	app.Reports = usecase.NewReportCollection(api, logger)
	app.Retry = usecase.NewRetryCoordinator(api, logger, clientMetrics, app.Events)
	app.closeFn = closeAll
	return app, nil
}

// ViewHooks let a presentation layer follow a detail view.
type ViewHooks struct {
	OnUpload usecase.UploadObserver
	OnPoll   usecase.PollObserver
}

// DetailView builds the report detail composition with every configured
// integration attached.
func (a *App) DetailView(reportID int64, hooks ViewHooks) *usecase.ReportDetailView {
	opts := usecase.DetailViewOptions{
		Selection: usecase.SelectionOptions{
			Accept:  strings.Join(a.Config.AcceptedTypes(), ","),
			MaxSize: a.Config.MaxUploadBytes(),
		},
		Poll:   a.pollOptions(hooks.OnPoll, true),
		Upload: a.uploadOptions(hooks.OnUpload),
	}
	return usecase.NewReportDetailView(reportID, a.API, a.Transport, a.Retry, opts)
}

// Summary builds the list-row composition for one report. One-off fetches
// are not recorded as history.
func (a *App) Summary(report domain.Report) *usecase.ReportSummary {
	return usecase.NewReportSummary(report, a.API, a.Retry, a.pollOptions(nil, false)...)
}

func (a *App) pollOptions(observer usecase.PollObserver, track bool) []usecase.PollerOption {
	opts := []usecase.PollerOption{
		usecase.WithPollInterval(a.Config.PollInterval()),
		usecase.WithPollLogger(a.Logger),
		usecase.WithPollMetrics(a.Metrics),
	}
	if track && a.History != nil {
		opts = append(opts, usecase.WithTransitionRecorder(a.History))
	}
	if track && a.Events != nil {
		opts = append(opts, usecase.WithPollEvents(a.Events))
	}
	if observer != nil {
		opts = append(opts, usecase.WithPollObserver(observer))
	}
	return opts
}

func (a *App) uploadOptions(observer usecase.UploadObserver) []usecase.UploadOption {
	opts := []usecase.UploadOption{
		usecase.WithUploadLogger(a.Logger),
		usecase.WithUploadMetrics(a.Metrics),
	}
	if a.Events != nil {
		opts = append(opts, usecase.WithUploadEvents(a.Events))
	}
	if observer != nil {
		opts = append(opts, usecase.WithUploadObserver(observer))
	}
	return opts
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
