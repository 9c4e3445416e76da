package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/audit"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/capability"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/enforcement"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/engine"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/negotiation"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/repository/postgres"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/tracker"
)

func main() {
	// 1. Инфраструктура и ресурсы
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL env) is required")
	}
	agreementRepo := postgres.NewAgreementRepo(cfg.Database.URL)
	journalRepo := postgres.NewJournalRepo(cfg.Database.URL)

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := agreementRepo.Ping(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()

	// Контекст для управления жизненным циклом фоновых горутин
	// При срабатывании SIGTERM cancel() остановит слушателей и поллинг
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 2. Capability Layer (Исполнение + Надежность)
	// Каждый сервис оборачиваем в Reliability (Retries, Circuit Breaker),
	// переключения брейкера транслируем в метрики.
	onBreaker := func(name string, from, to gobreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		logger.Warn("circuit breaker state changed",
			zap.String("service", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	registry := capability.NewRegistry(30*time.Second, logger)
	registry.Register(capability.CapNotify, "log-notifier",
		capability.NewReliabilityWrapper("notify-log", &capability.LogNotifier{Logger: logger}, onBreaker))
	registry.Register(capability.CapSynthesizeSpeech, "log-speaker",
		capability.NewReliabilityWrapper("speech-log", &capability.LogSpeaker{Logger: logger}, onBreaker))
	registry.Register(capability.CapCloseResource, "mock-closer",
		capability.NewReliabilityWrapper("closer-mock", &capability.MockResourceCloser{Logger: logger}, onBreaker))

	// 3. Журнал договоров (данные летят в базу пачками)
	journal := audit.NewJournal(journalRepo, cfg.Journal, logger)
	journal.Start()

	// Заполнение буфера журнала видно в Prometheus
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-t.C:
				metrics.JournalBufferFill.Set(float64(journal.Len()))
			}
		}
	}()

	// 4. Core (трекер, принуждение, монитор)
	trk := tracker.NewComplianceTracker(cfg.Tracker, logger)
	enforcer := enforcement.NewController(registry, cfg.Enforcement, cfg.Tracker.GracePeriod, logger)

	activity := &engine.LatestActivity{}
	monitor := engine.NewMonitor(trk, enforcer, registry, journal, agreementRepo, rdb, metrics,
		activity, cfg.Tracker, logger)

	// Теплый старт: активные договоры из Postgres обратно под контроль
	if err := monitor.Init(appCtx); err != nil {
		log.Fatalf("Failed to init monitor: %v", err)
	}
	monitor.StartListeners(appCtx)
	go monitor.Run(appCtx)

	// 5. HTTP Server (переговоры + активность)
	negotiator := negotiation.NewNegotiator(cfg.Negotiation, logger)
	api := engine.NewIngestAPI(negotiator, monitor, activity, metrics, logger)

	router := chi.NewRouter()
	router.Mount("/v1", api.Routes())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.MetricsPort), mux))
	}()

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("focus engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("focus engine stopping...")
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server Shutdown Failed: %+v", err)
	}

	// Журнал дописывает буфер на диск до самого конца
	journal.Stop()
	logger.Info("focus engine exited properly")
}
