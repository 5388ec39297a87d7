package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/superst1/chatbot-whatsapp-citas/internal/api"
	"github.com/superst1/chatbot-whatsapp-citas/internal/booking"
	"github.com/superst1/chatbot-whatsapp-citas/internal/config"
	"github.com/superst1/chatbot-whatsapp-citas/internal/database"
	"github.com/superst1/chatbot-whatsapp-citas/internal/events"
	"github.com/superst1/chatbot-whatsapp-citas/internal/keylock"
	"github.com/superst1/chatbot-whatsapp-citas/internal/messaging"
	"github.com/superst1/chatbot-whatsapp-citas/internal/metrics"
	"github.com/superst1/chatbot-whatsapp-citas/internal/reminders"
	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
	"github.com/superst1/chatbot-whatsapp-citas/internal/worker"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CITAS_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(lvl)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		logger.Fatal().Err(err).Msg("create data dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	sessions, memSessions, err := buildSessionStore(cfg, rdb, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("session store")
	}

	repo, err := buildRepository(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("appointment repository")
	}
	defer repo.Close()

	extractor, err := buildExtractor(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("nlu extractor")
	}
	defer extractor.Close()

	var locker slots.Locker = slots.NewLocalLocker(keylock.New())
	if cfg.Locks.Backend == "redis" {
		if rdb == nil {
			logger.Fatal().Msg("locks.backend=redis requires redis.address")
		}
		locker = slots.ChainLocker{locker, slots.NewRedisLocker(rdb, cfg.LockTTL())}
	}

	gen := slots.NewGenerator(repo, slots.DefaultSchedule())
	if err := config.WatchSchedule(ctx, cfg.Booking.ScheduleFile, cfg.ScheduleReloadInterval(), &logger, gen.SetSchedule); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Booking.ScheduleFile).Msg("schedule not loaded, using defaults")
	}
	guard := slots.NewGuard(locker, gen, repo)

	bus := events.NewEventBus(&logger)
	events.SubscribeDefaults(bus)

	required, _ := cfg.RequiredFields()
	controller := booking.NewController(sessions, repo, extractor, guard, gen,
		booking.WithRequiredFields(required),
		booking.WithEventBus(bus),
	)

	senders, tg, err := buildSenders(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("messaging")
	}

	var dedupe worker.Deduper = worker.NewMemoryDeduper(cfg.DedupeTTL())
	if rdb != nil {
		dedupe = worker.NewRedisDeduper(rdb, cfg.DedupeTTL())
	}
	retry := worker.DefaultRetryConfig()
	if cfg.Dispatcher.SendRetries > 0 {
		retry.MaxRetries = cfg.Dispatcher.SendRetries
	}
	if delays := cfg.RetryDelays(); delays != nil {
		retry.RetryDelays = delays
	}
	dispatcher := worker.NewDispatcher(controller, senders, &logger,
		worker.WithDeduper(dedupe),
		worker.WithRetry(retry),
		worker.WithTurnTimeout(cfg.TurnTimeout()),
	)

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}
	if cfg.Monitoring.HealthCheckPort != 0 {
		go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, repo, rdb, &logger)
	}
	if cfg.Monitoring.GRPCHealthPort != 0 {
		go startGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, &logger)
	}

	if tg != nil {
		go tg.Poll(ctx, func(in messaging.Inbound) {
			if _, err := dispatcher.Submit(ctx, in); err != nil {
				logger.Warn().Err(err).Str("user_id", in.UserID).Msg("telegram message not queued")
			}
		})
	}
	if memSessions != nil {
		go cleanupSessions(ctx, memSessions, cfg.SessionCleanupInterval(), &logger)
	}
	if sqlRepo, ok := repo.Repository.(*database.Repository); ok {
		backups := database.NewBackupService(sqlRepo, cfg.Backup, &logger)
		go backups.Start(ctx, cfg.BackupInterval())
	}

	if cfg.Reminders.Enabled {
		rem := reminders.NewService(repo, senders[api.ChannelWhatsApp], reminders.Config{
			Hour:        cfg.Reminders.Hour,
			CountryCode: cfg.Reminders.CountryCode,
			Location:    gen.Schedule().Location,
		}, &logger)
		go rem.Start(ctx)
	}

	server := api.NewServer(api.Config{VerifyToken: cfg.Server.VerifyToken, AdminAPIKey: cfg.Server.AdminAPIKey},
		dispatcher, repo, &logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Backend).Msg("webhook server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("webhook server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("webhook server shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int("pending", dispatcher.Pending()).Msg("dispatcher did not drain")
	}
}

func startHealthServer(ctx context.Context, port int, repo *closableRepository, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := repo.Ping(ctxPing); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}

func startGRPCHealth(ctx context.Context, port int, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen")
		return
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	if err := srv.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}

func cleanupSessions(ctx context.Context, store interface{ Cleanup() int }, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Cleanup(); n > 0 {
				logger.Debug().Int("expired", n).Msg("sessions cleaned up")
			}
		}
	}
}
