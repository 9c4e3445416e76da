package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/console/handler"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra"
	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AgreementService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler      *handler.AuthHandler      // /auth/token
	agreementHandler *handler.AgreementHandler // /v1/agreements
	dashHandler      *handler.DashboardHandler // /api/v1/dashboard
	journalHandler   *handler.JournalHandler   // /v1/journal (Logs)
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	agreementH *handler.AgreementHandler,
	dashH *handler.DashboardHandler,
	journalH *handler.JournalHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:           chi.NewRouter(),
		logger:           logger.Named("console-api"),
		cfg:              cfg,
		authValidator:    validator,
		authHandler:      authH,
		agreementHandler: agreementH,
		dashHandler:      dashH,
		journalHandler:   journalH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Управление Соглашениями (Extend, Revoke)
		r.Mount("/v1/agreements", s.agreementHandler.Routes())

		// Глобальная лента журнала (Observability)
		r.Get("/v1/journal", s.journalHandler.GetRecent)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
