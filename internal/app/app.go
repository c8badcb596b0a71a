package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"HSEWrapped/internal/admission"
	"HSEWrapped/internal/bot"
	"HSEWrapped/internal/config"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/health"
	"HSEWrapped/internal/infrastructure/browser"
	"HSEWrapped/internal/infrastructure/portfolio"
	"HSEWrapped/internal/infrastructure/render"
	"HSEWrapped/internal/infrastructure/scheduler"
	"HSEWrapped/internal/infrastructure/showcase"
	"HSEWrapped/internal/infrastructure/telegram"
	"HSEWrapped/internal/infrastructure/usagelog"
	"HSEWrapped/internal/logging"
	"HSEWrapped/internal/metrics"
	"HSEWrapped/internal/ports"
	"HSEWrapped/internal/usecase"
)

const stopTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pool     *browser.Pool
	usage    ports.UsageLog
	pipeline *usecase.Pipeline
	admin    *usecase.Admin
	bot      *bot.Bot
	sweeper  *usecase.Sweeper
	health   *health.Server
}

// New builds every component. The usage log is opened here, so callers must
// Close the application even when Run is never called.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	usage, err := usagelog.Open(ctx, cfg.Usage, baseLogger.With("component", "usagelog"))
	if err != nil {
		return nil, fmt.Errorf("open usage log: %w", err)
	}

	pool := browser.NewPool(cfg.Browser, cfg.Admission.MaxConcurrent, baseLogger.With("component", "browser"))

	aggregator := portfolio.NewAggregator(
		portfolio.NewClient(&http.Client{Timeout: cfg.Portfolio.HTTPTimeout}, cfg.Portfolio.BaseURL),
		showcase.NewClient(cfg.Showcase),
		browser.NewViewScraper(pool),
		portfolio.AggregatorOptions{
			ItemDelay:       cfg.Portfolio.ItemDelay,
			EnrichmentDelay: cfg.Portfolio.EnrichmentDelay,
		},
		baseLogger.With("component", "aggregator"),
	)

	tg := telegram.NewClient(cfg.Telegram)

	delivery := usecase.NewDelivery(usecase.DeliveryDeps{
		Renderer:  render.NewRenderer(pool, cfg.Render),
		Messenger: tg,
		OutputDir: cfg.Render.OutputDir,
		Logger:    baseLogger.With("component", "delivery"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Admission: admission.NewController(admission.Config{
			MaxConcurrent: cfg.Admission.MaxConcurrent,
			Cooldown:      cfg.Admission.Cooldown,
		}),
		Source:         aggregator,
		Delivery:       delivery,
		Messenger:      tg,
		Usage:          usage,
		Logger:         baseLogger.With("component", "pipeline"),
		RequestTimeout: cfg.Admission.RequestTimeout,
	})

	admin := usecase.NewAdmin(usecase.AdminDeps{
		AdminIDs:  cfg.Telegram.AdminIDs,
		Messenger: tg,
		Usage:     usage,
		Logger:    baseLogger.With("component", "admin"),
	})

	router := bot.New(bot.Deps{
		Updates:      tg,
		Messenger:    tg,
		Usage:        usage,
		Requests:     pipeline,
		Admin:        admin,
		WelcomeVideo: cfg.Telegram.WelcomeVideo,
		PollTimeout:  cfg.Telegram.PollTimeout,
		Logger:       baseLogger.With("component", "bot"),
	})

	sweeper := usecase.NewSweeper(
		scheduler.NewTickerScheduler(cfg.Sweeper.Interval),
		cfg.Render.OutputDir,
		cfg.Sweeper.MaxAge,
		baseLogger.With("component", "sweeper"),
	)

	var healthServer *health.Server
	if cfg.Health.Addr != "" {
		healthServer = health.New(cfg.Health.Addr, router.Ready, registry, baseLogger.With("component", "health"))
	}

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		pool:     pool,
		usage:    usage,
		pipeline: pipeline,
		admin:    admin,
		bot:      router,
		sweeper:  sweeper,
		health:   healthServer,
	}, nil
}

// Run serves the bot, the health endpoint and the artifact sweeper until ctx
// is cancelled or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := a.sweeper.Start(gctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return a.sweeper.Stop(stopCtx)
	})

	if a.health != nil {
		g.Go(func() error {
			return a.health.Run(gctx)
		})
	}

	g.Go(func() error {
		a.logger.Info("bot polling started", "max_concurrent", a.cfg.Admission.MaxConcurrent)
		return a.bot.Run(gctx)
	})

	return g.Wait()
}

// Analyze runs aggregation and statistics for one subject without messaging.
func (a *Application) Analyze(ctx context.Context, subject domain.Subject) (domain.Report, error) {
	return a.pipeline.Analyze(ctx, subject)
}

// Usage exposes the usage log for operator commands.
func (a *Application) Usage() ports.UsageLog {
	return a.usage
}

// Close releases the browser, the usage log and pending admin state.
func (a *Application) Close() error {
	var result *multierror.Error

	a.admin.Close()
	if err := a.pool.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close browser pool: %w", err))
	}
	if err := a.usage.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close usage log: %w", err))
	}
	return result.ErrorOrNil()
}
