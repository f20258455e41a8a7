package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/adapters/monitor"
	"github.com/audiencelab/scrapewatch/internal/adapters/platform"
	redisadapter "github.com/audiencelab/scrapewatch/internal/adapters/redis"
	"github.com/audiencelab/scrapewatch/internal/data"
	"github.com/audiencelab/scrapewatch/internal/domain/extract"
	"github.com/audiencelab/scrapewatch/internal/observability/statsd"
	"github.com/audiencelab/scrapewatch/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Monitor       *service.MonitorService
	Runs          *data.RunRepo
	Members       *data.MemberRepo
	Platform      *platform.Client
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires repositories, the platform client, and the service
// layer. Platform credentials are validated here, before any loop
// starts, so a misconfigured deploy fails at startup instead of on the
// first tick.
func BuildServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}

	runRepo := data.NewRunRepo(deps.DB, data.RunRepoConfig{Logger: deps.Logger})
	memberRepo := data.NewMemberRepo(deps.DB)

	platformClient, err := platform.NewClient(platform.ClientOptions{
		BaseURL:    deps.Config.Platform.BaseURL,
		Token:      deps.Config.Platform.Token,
		HTTPClient: &http.Client{Timeout: deps.Config.Platform.Timeout},
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create platform client: %w", err)
	}

	recovery, err := service.NewRecoveryService(service.RecoveryServiceOptions{
		Runs:     runRepo,
		Platform: platformClient,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create recovery service: %w", err)
	}

	dataset, err := service.NewDatasetService(service.DatasetServiceOptions{
		Platform: platformClient,
		Config:   deps.Config.Monitor,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dataset service: %w", err)
	}

	reconcile, err := service.NewReconcileService(service.ReconcileServiceOptions{
		Members: memberRepo,
		Config:  deps.Config.Monitor,
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create reconcile service: %w", err)
	}

	extractor := extract.NewExtractor(extract.ExtractorOptions{Logger: deps.Logger})

	monitorDeps := service.MonitorDeps{
		Runs:     runRepo,
		Platform: platformClient,
	}
	if deps.RedisClient != nil {
		monitorDeps.Cache = redisadapter.NewSummaryCache(deps.RedisClient, deps.Config.Cache.SummaryTTL)
	}

	monitorSvc, err := service.NewMonitorService(service.MonitorServiceOptions{
		Deps: monitorDeps,
		Parts: service.MonitorParts{
			Recovery:  recovery,
			Dataset:   dataset,
			Reconcile: reconcile,
			Extractor: extractor,
		},
		Config: deps.Config.Monitor,
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create monitor service: %w", err)
	}

	sink, err := createMetricsSink(deps)
	if err != nil {
		return nil, err
	}

	return &ServiceContainer{
		Monitor:  monitorSvc,
		Runs:     runRepo,
		Members:  memberRepo,
		Platform: platformClient,
		Observability: ObservabilityContainer{
			MetricsSink:   sink,
			MetricsConfig: deps.Config.Observability.Metrics,
		},
	}, nil
}

func createMetricsSink(deps ServiceDeps) (*statsd.Client, error) {
	cfg := deps.Config.Observability.Metrics
	sink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  "scrapewatch",
		Logger:  deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}
	return sink, nil
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until SIGINT/SIGTERM or a service failure, then
// waits for every service to drain.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services == nil {
		return errors.New("service orchestration config missing services")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeMonitor] {
		runner, err := buildMonitorRunner(cfg, logger)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return runner.Run(groupCtx)
		})
		logger.Info("monitor service started", "interval", cfg.Config.Monitor.Interval)
	}

	err = group.Wait()
	if sink := cfg.Services.Observability.MetricsSink; sink != nil {
		if closeErr := sink.Close(); closeErr != nil {
			logger.Warn("metrics sink close failed", "error", closeErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("services stopped")
	return nil
}

func buildMonitorRunner(cfg *ServiceOrchestrationConfig, logger *slog.Logger) (*monitor.Runner, error) {
	opts := monitor.RunnerOptions{
		Monitor:  cfg.Services.Monitor,
		Interval: cfg.Config.Monitor.Interval,
		Logger:   logger,
		Metrics:  cfg.Services.Observability.MetricsSink,
	}
	if cfg.RedisClient != nil {
		opts.Lock = redisadapter.NewTickLock(cfg.RedisClient, uuid.NewString(), cfg.Config.Cache.TickLockTTL)
	}

	runner, err := monitor.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create monitor runner: %w", err)
	}
	return runner, nil
}
