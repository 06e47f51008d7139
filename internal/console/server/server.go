package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/console/handler"
	"github.com/xela07ax/a11y-auditor/internal/engine"
)

// ConsoleServer: HTTP API для просмотра аудитов и управления запуском.
// Аутентификация сюда не входит: API слушает внутренний порт за шлюзом.
type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Обработчики
	auditHandler *handler.AuditHandler // /v1/audits
	hostHandler  *handler.HostHandler  // /v1/hosts/denied
}

func NewConsoleServer(
	logger *zap.Logger,
	auditH *handler.AuditHandler,
	hostH *handler.HostHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:       chi.NewRouter(),
		logger:       logger.Named("console-api"),
		auditHandler: auditH,
		hostHandler:  hostH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 2. Аудиты ---
	r.Route("/v1/audits/{id}", func(r chi.Router) {
		r.Get("/", s.auditHandler.Get)          // Запись + нарушения
		r.Get("/events", s.auditHandler.Events) // Журнал этапов
		r.Post("/run", s.auditHandler.Run)      // Триггер для Pending
	})

	// --- 3. Denylist хостов (SSRF-периметр, меняется без рестарта) ---
	r.Route("/v1/hosts/denied", func(r chi.Router) {
		r.Get("/", s.hostHandler.List)
		r.Put("/{host}", s.hostHandler.Deny)
		r.Delete("/{host}", s.hostHandler.Allow)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
