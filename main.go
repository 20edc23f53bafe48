package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/app"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/config"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/health"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/httpapi"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/registry"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/temporal"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

func main() {
	// Root context for background services; cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appCfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := appCfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(appCfg.Service.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("Configuration loaded",
		zap.String("path", appCfg.Path()),
		zap.String("environment", appCfg.Service.Environment),
	)

	circuitbreaker.StartMetricsCollection(ctx)

	if err := tracing.Initialize(appCfg.Tracing, logger); err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// ------------------------------------------------------------------
	// Bring up health and metrics early so probes respond while the
	// Temporal connection is still being established.
	// ------------------------------------------------------------------
	hm := health.NewManager(appCfg.Health, logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminMux.Handle("GET /metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(appCfg.Service.AdminPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go serve(adminServer, "Admin", logger)

	stack, err := app.New(ctx, appCfg, logger)
	if err != nil {
		logger.Fatal("Failed to build campaign stack", zap.Error(err))
	}
	defer stack.Close()

	if err := stack.RegisterHealthChecks(hm); err != nil {
		logger.Error("Failed to register health checkers", zap.Error(err))
	}

	if appCfg.Templates.Watch {
		startWatcher(ctx, appCfg, stack, logger)
	}

	tClient, err := temporal.Dial(ctx, appCfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tClient.Close()
	if err := hm.RegisterChecker(health.NewTemporalChecker(tClient)); err != nil {
		logger.Error("Failed to register Temporal health checker", zap.Error(err))
	}
	hm.Start(ctx)

	queue := appCfg.Temporal.TaskQueue
	if queue == "" {
		queue = constants.CampaignTaskQueue
	}

	var wk worker.Worker
	if appCfg.Service.EnableWorker {
		wk = worker.New(tClient, queue, worker.Options{
			MaxConcurrentActivityExecutionSize:     appCfg.Temporal.ActivityWorkers,
			MaxConcurrentWorkflowTaskExecutionSize: appCfg.Temporal.WorkflowWorkers,
		})
		reg := registry.NewCampaignRegistry(&registry.RegistryConfig{EnableStandaloneWorkflows: true}, stack.Activities(), logger)
		if err := reg.RegisterWorkflows(wk); err != nil {
			logger.Fatal("Failed to register workflows", zap.Error(err))
		}
		if err := reg.RegisterActivities(wk); err != nil {
			logger.Fatal("Failed to register activities", zap.Error(err))
		}
		if err := wk.Start(); err != nil {
			logger.Fatal("Failed to start Temporal worker", zap.Error(err))
		}
		logger.Info("Temporal worker started",
			zap.String("queue", queue),
			zap.Int("activities", appCfg.Temporal.ActivityWorkers),
			zap.Int("workflows", appCfg.Temporal.WorkflowWorkers),
		)
	}

	var apiServer *http.Server
	if appCfg.Service.EnableAPI {
		apiServer = &http.Server{
			Addr:              ":" + strconv.Itoa(appCfg.Service.APIPort),
			Handler:           apiHandler(appCfg, stack, tClient, queue, logger),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go serve(apiServer, "API", logger)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down campaign orchestrator")

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", zap.Error(err))
		}
	}
	if wk != nil {
		wk.Stop()
	}
	hm.Stop()
	cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", zap.Error(err))
	}
}

// apiHandler mounts the campaign, approval and progress routes behind auth.
func apiHandler(cfg *config.Config, stack *app.App, tClient client.Client, queue string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	httpapi.NewCampaignHandler(httpapi.CampaignDeps{
		Temporal:        tClient,
		Analyzer:        stack.Analyzer,
		Calendars:       stack.Calendars,
		Store:           stack.Store,
		TemplateTypes:   stack.Calendars.TemplateTypes(),
		TaskQueue:       queue,
		AnalysisTimeout: cfg.AnalysisActivityTimeout(),
		CalendarTimeout: cfg.CalendarActivityTimeout(),
	}, logger).RegisterRoutes(mux)
	httpapi.NewApprovalHandler(tClient, stack.Store, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(stack.Events, stack.Store, logger).RegisterRoutes(mux)

	if cfg.Auth.Skip {
		logger.Warn("Authentication is disabled (auth.skip)")
	}
	return auth.NewMiddleware(cfg.Auth, logger).HTTPMiddleware(mux)
}

// startWatcher hot-reloads templates and publish policies.
func startWatcher(ctx context.Context, cfg *config.Config, stack *app.App, logger *zap.Logger) {
	w, err := config.NewWatcher(cfg, logger)
	if err != nil {
		logger.Warn("Configuration watcher disabled", zap.Error(err))
		return
	}
	w.OnChange(config.ChangeTemplates, func(config.ChangeEvent) error {
		return stack.ReloadTemplates()
	})
	w.OnChange(config.ChangePolicies, func(config.ChangeEvent) error {
		return stack.Policy.LoadPolicies()
	})
	w.OnChange(config.ChangeConfig, func(evt config.ChangeEvent) error {
		logger.Info("Configuration file changed; restart to apply component settings",
			zap.String("file", evt.File),
		)
		return nil
	})
	go w.Run(ctx)
}

func serve(srv *http.Server, name string, logger *zap.Logger) {
	logger.Info(name+" HTTP server listening", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(name+" HTTP server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}
