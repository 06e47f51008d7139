package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/browser"
	"github.com/xela07ax/a11y-auditor/internal/console/handler"
	"github.com/xela07ax/a11y-auditor/internal/console/server"
	"github.com/xela07ax/a11y-auditor/internal/console/service"
	"github.com/xela07ax/a11y-auditor/internal/engine"
	"github.com/xela07ax/a11y-auditor/internal/enrich"
	"github.com/xela07ax/a11y-auditor/internal/generation"
	"github.com/xela07ax/a11y-auditor/internal/infra"
	"github.com/xela07ax/a11y-auditor/internal/journal"
	"github.com/xela07ax/a11y-auditor/internal/repository/postgres"
	"github.com/xela07ax/a11y-auditor/internal/scanner"
	"github.com/xela07ax/a11y-auditor/internal/scoring"
	"github.com/xela07ax/a11y-auditor/internal/summary"
	"github.com/xela07ax/a11y-auditor/internal/validator"
)

// Время на дочитывание аудитов при остановке; дальше они отменяются и уходят в Failed.
const drainTimeout = 2 * time.Minute

func main() {
	// 0. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, level, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	cfg.WatchLogLevel(level, logger)

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Инфраструктура и ресурсы
	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(appCtx, pool); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	auditRepo := postgres.NewAuditRepo(pool)
	journalRepo := postgres.NewJournalRepo(pool)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Журнал этапов: пишется в базу пачками
	stages := journal.New(journalRepo, logger).WithBufferGauge(metrics.ObserveJournalBuffer)
	stages.Start()

	// 2. Control Plane: denylist хостов (L1 + Redis, правится без рестарта)
	denylist := engine.NewHostDenylist(rdb, cfg.Validator.DeniedHosts, logger)
	if err := denylist.Init(appCtx); err != nil {
		logger.Fatal("failed to init host denylist", zap.Error(err))
	}
	go denylist.StartListener(appCtx)

	// 3. Generation Layer (Исполнение + Надежность)
	gen, err := newGenerator(cfg.Generation, logger)
	if err != nil {
		logger.Fatal("generation provider", zap.Error(err))
	}
	// Оборачиваем в Reliability (Rate limit, Retries, Circuit Breaker)
	safeGen := generation.NewReliabilityWrapper(gen, cfg.Generation, logger, metrics.ObserveBreaker)

	// 4. Scanner
	axe, err := scanner.LoadAxeEngine(cfg.Scanner.AxeScriptPath)
	if err != nil {
		logger.Fatal("failed to load rule engine", zap.Error(err))
	}
	rules := scanner.DefaultRuleConfig()
	if cfg.Scanner.RulesFile != "" {
		if rules, err = scanner.LoadRuleConfig(cfg.Scanner.RulesFile); err != nil {
			logger.Fatal("failed to load rules file", zap.Error(err))
		}
	}

	// 5. Core (Сборка оркестратора)
	prepare := scanner.PrepareOptions{
		MaxViolations: cfg.Scanner.MaxViolations,
		MaxHTMLLength: cfg.Scanner.MaxHTMLLength,
	}
	orch := engine.NewOrchestrator(engine.Deps{
		Store:      auditRepo,
		Validator:  validator.New(nil, denylist),
		Launcher:   browser.NewChromeLauncher(cfg.Browser, logger),
		Scanner:    scanner.New(axe, cfg.Scanner.Timeout),
		Rules:      rules,
		Weights:    scoring.WeightsFromConfig(cfg.Scoring),
		Enricher:   enrich.NewPipeline(safeGen, cfg.Pipeline, logger, metrics.ObserveGeneration),
		Summarizer: summary.NewSummarizer(safeGen, cfg.Pipeline, logger, metrics.ObserveGeneration),
		Journal:    stages,
		Metrics:    metrics,
		Navigate:   browser.OptionsFromConfig(cfg.Browser),
		Prepare:    prepare,
	}, logger)

	dispatcher := engine.NewDispatcher(orch, engine.NewRunLock(rdb, cfg.Worker.LockTTL), cfg.Worker.Concurrency, logger)
	trigger := engine.NewTriggerListener(rdb, auditRepo, dispatcher, cfg.Worker.SweepLimit, logger)

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		trigger.Start(appCtx)
	}()

	// 6. HTTP: API инспекции + метрики
	api := server.NewConsoleServer(logger,
		handler.NewAuditHandler(service.NewAuditService(auditRepo, journalRepo, rdb), logger),
		handler.NewHostHandler(service.NewHostService(denylist), logger),
	)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	for _, s := range []*http.Server{srv, metricsSrv} {
		go func() {
			logger.Info("http server started", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("listen", zap.String("addr", s.Addr), zap.Error(err))
			}
		}()
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop // Ждем сигнал
	logger.Info("auditor stopping...")

	// Даем 5 секунд на завершение HTTP-запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	errs := multierr.Combine(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))

	// Новые триггеры больше не принимаем, начатые аудиты дочитываем
	cancel()
	<-listenerDone

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	errs = multierr.Append(errs, dispatcher.Shutdown(drainCtx))

	// Журнал сбрасываем после аудитов: последние события пишет оркестратор
	stages.Stop()
	errs = multierr.Append(errs, rdb.Close())

	if errs != nil {
		logger.Error("shutdown finished with errors", zap.Errors("errors", multierr.Errors(errs)))
		return
	}
	logger.Info("auditor exited properly")
}

func newGenerator(cfg infra.GenerationConfig, logger *zap.Logger) (generation.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return generation.NewOpenAIGenerator(cfg, logger), nil
	case "canned":
		logger.Warn("using canned generation responses")
		return &generation.CannedGenerator{MaxLatency: 300 * time.Millisecond}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
