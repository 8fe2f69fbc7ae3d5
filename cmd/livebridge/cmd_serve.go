package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/internal/core/services"
	backupinfra "livebridge/internal/infrastructure/backup"
	httphandlers "livebridge/internal/handlers/http"
	"livebridge/internal/infrastructure/distributed"
	"livebridge/internal/infrastructure/monitoring"
	"livebridge/internal/infrastructure/obsws"
	"livebridge/internal/infrastructure/relay"
	"livebridge/internal/infrastructure/repositories"
	"livebridge/internal/infrastructure/signal"
	"livebridge/pkg/circuitbreaker"
	"livebridge/pkg/config"
	"livebridge/pkg/retry"
	"livebridge/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: control-plane listener, publisher and dashboard API",
	Long: `Runs the daemon. When LIVEBRIDGE_PRIVATE_KEY is set, a Stream Manager
session is started at boot; otherwise a view must submit a key first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	zapLogger := newLogger(cfg)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livebridge",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	var (
		metrics  ports.MetricsRecorder = monitoring.NopRecorder{}
		gatherer prometheus.Gatherer
	)
	if cfg.Monitoring.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = monitoring.NewPrometheusCollector(reg)
		gatherer = reg
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return err
	}

	bus, err := newSyncBus(ctx, cfg, repoFactory, metrics, log)
	if err != nil {
		repoFactory.Close()
		return err
	}

	publisher := relay.NewPublisher(publisherConfig(cfg), relay.NostrConnector{}, metrics, log)
	obsConfig := obsws.Config{
		Address:     cfg.OBS.Address,
		Password:    cfg.OBS.Password,
		DialTimeout: cfg.OBS.DialTimeout,
	}
	// per job: the relay fan-out plus slack for signing and bookkeeping
	jobTimeout := cfg.Relays.PublishTimeout + 5*time.Second

	streamManager, err := services.NewStreamManager(ctx, services.StreamManagerDeps{
		Repo:          repoFactory.CreateStreamConfigRepository(),
		Publisher:     publisher,
		Control:       obsws.NewClient(obsConfig, log.With("manager", "stream")),
		Bus:           bus,
		Queue:         services.NewPublishQueue(jobTimeout, log.With("manager", "stream")),
		Metrics:       metrics,
		Logger:        log,
		DefaultRelays: cfg.Relays.Defaults,
	})
	if err != nil {
		bus.Close()
		repoFactory.Close()
		return err
	}

	eventManager, err := services.NewEventManager(ctx, services.EventManagerDeps{
		Repo:          repoFactory.CreateEventConfigRepository(),
		Publisher:     publisher,
		Control:       obsws.NewClient(obsConfig, log.With("manager", "event")),
		Queue:         services.NewPublishQueue(jobTimeout, log.With("manager", "event")),
		Metrics:       metrics,
		Logger:        log,
		DefaultRelays: cfg.Relays.Defaults,
	})
	if err != nil {
		streamManager.Close(context.Background())
		bus.Close()
		repoFactory.Close()
		return err
	}

	if key := os.Getenv("LIVEBRIDGE_PRIVATE_KEY"); key != "" {
		if _, err := streamManager.StartSession(ctx, key); err != nil {
			log.Errorw("failed to start session from environment", "error", err)
		}
	}

	scheduler := services.NewRefreshScheduler(cfg.Relays.RefreshSchedule, log)
	if err := scheduler.Start(streamManager.Refresh); err != nil {
		log.Errorw("live event refresh not scheduled", "error", err)
	}

	var backups *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		backupService, err := newBackupService(cfg)
		if err != nil {
			log.Errorw("config backups unavailable", "error", err)
		} else {
			backups = backupinfra.NewScheduler(
				backupService,
				repoFactory.CreateStreamConfigRepository(),
				repoFactory.CreateEventConfigRepository(),
				backupinfra.Config{Schedule: cfg.Backup.Schedule, Retention: cfg.Backup.Retention},
				log,
			)
			if err := backups.Start(); err != nil {
				log.Errorw("config backups not scheduled", "error", err)
			}
		}
	}

	hub := signal.NewWebSocketServer(bus, metrics, signal.Config{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, log)
	hub.SetInitialMessage(func(ch domain.SyncChannel) (domain.SyncMessage, bool) {
		if ch != domain.ConfigChannel {
			return nil, false
		}
		return domain.ConfigSnapshot{Config: streamManager.Config()}, true
	})

	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(repoFactory.HealthCheck, 2*time.Second)
	if cfg.Sync.Backend == "redis" {
		health.AddRedisCheck(repoFactory.RedisClient(), 2*time.Second)
	}

	var auth services.AuthService
	if cfg.Auth.Enabled {
		auth = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:        cfg,
		StreamManager: streamManager,
		EventManager:  eventManager,
		SyncServer:    hub,
		Health:        health,
		Auth:          auth,
		Gatherer:      gatherer,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting livebridge",
			"address", cfg.Server.Address,
			"storage", repoFactory.Backend(),
			"sync_backend", cfg.Sync.Backend,
			"obs", cfg.OBS.Address,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		srv.Close()
	}
	scheduler.Stop()
	if backups != nil {
		backups.Stop()
	}

	// sessions end first so pending publishes (an "ended", typically) drain
	if err := streamManager.Close(shutdownCtx); err != nil {
		log.Errorw("error closing stream manager", "error", err)
	}
	if err := eventManager.Close(shutdownCtx); err != nil {
		log.Errorw("error closing event manager", "error", err)
	}
	if err := bus.Close(); err != nil {
		log.Errorw("error closing sync bus", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing storage", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error flushing traces", "error", err)
	}

	log.Info("livebridge stopped")
	return runErr
}

func newSyncBus(ctx context.Context, cfg *config.Config, repoFactory *repositories.RepositoryFactory, metrics ports.MetricsRecorder, log *zap.SugaredLogger) (ports.SyncBus, error) {
	local := distributed.NewMemoryBus(cfg.Sync.BufferSize, metrics, log)
	if cfg.Sync.Backend != "redis" {
		return local, nil
	}

	client := repoFactory.RedisClient()
	if client == nil {
		return nil, fmt.Errorf("sync.backend=redis but redis is unavailable")
	}

	bus := distributed.NewEventBus(client, uuid.NewString(), local, log)
	if err := bus.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start redis sync bus: %w", err)
	}
	return bus, nil
}

func publisherConfig(cfg *config.Config) relay.Config {
	dialRetry := retry.DefaultConfig()
	dialRetry.Enabled = cfg.Relays.DialRetry.Enabled
	dialRetry.MaxAttempts = cfg.Relays.DialRetry.MaxAttempts
	dialRetry.InitialDelay = cfg.Relays.DialRetry.InitialDelay
	dialRetry.MaxDelay = cfg.Relays.DialRetry.MaxDelay

	return relay.Config{
		DefaultRelays:  cfg.Relays.Defaults,
		PublishTimeout: cfg.Relays.PublishTimeout,
		ProbeTimeout:   cfg.Relays.ProbeTimeout,
		ProbeCacheTTL:  cfg.Relays.ProbeCacheTTL,
		DialRetry:      dialRetry,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Relays.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Relays.Breaker.SuccessThreshold,
			Timeout:          cfg.Relays.Breaker.Timeout,
		},
	}
}
