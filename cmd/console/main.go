package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/console/handler"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/console/server"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/console/service"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra/auth"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/repository/postgres"
)

func main() {
	// 1. Инициализация ресурсов
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := agreementRepo.Ping(ctx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	cancel()

	// 2. Криптография (RS256: консоль подписывает, движок только проверяет)
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		log.Fatalf("Failed to parse private key: %v", err)
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		log.Fatalf("Failed to parse public key: %v", err)
	}
	validator := auth.NewBaseValidator(publicKey)

	// 3. Инициализация слоев (Dependency Injection)
	authService := service.NewAuthService(agreementRepo, privateKey, cfg.Auth.TokenTTL)
	agreementService := service.NewAgreementService(rdb, agreementRepo, journalRepo, validator, logger)

	authHandler := handler.NewAuthHandler(authService)
	agreementHandler := handler.NewAgreementHandler(agreementService)
	dashHandler := handler.NewDashboardHandler(agreementService)
	journalHandler := handler.NewJournalHandler(agreementService)

	srvHandler := server.NewConsoleServer(cfg, logger, validator,
		authHandler, agreementHandler, dashHandler, journalHandler)

	// 4. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.ConsolePort),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Console API started on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
