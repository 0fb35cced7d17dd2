// finanalyzer Worker 入口
// 启动 Temporal Worker 处理财务模型工作流和活动
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ploxoy666/finanalyzer/internal/activity"
	"github.com/ploxoy666/finanalyzer/internal/workflow"
	"github.com/ploxoy666/finanalyzer/pkg/config"
	"github.com/ploxoy666/finanalyzer/pkg/logging"
	"github.com/ploxoy666/finanalyzer/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded", zap.Any("llm", logging.SanitizeForLog(map[string]interface{}{
		"enabled":        cfg.LLM.Enabled,
		"model":          cfg.LLM.Model,
		"bridge_address": cfg.LLM.BridgeAddress,
		"api_key":        cfg.LLM.APIKey,
	})))

	tp, err := tracing.InitTracer(cfg.Observability.Tracing, cfg.System)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.System.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Observability.Metrics, logger)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	activities, err := activity.NewActivities(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create activities", zap.Error(err))
	}
	defer func() { _ = activities.Close() }()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.Worker.MaxConcurrentWorkflows,
	})

	w.RegisterWorkflow(workflow.FinancialModelWorkflow)
	w.RegisterWorkflow(workflow.ScenarioValuationWorkflow)

	w.RegisterActivity(activities.BuildModelActivity)
	w.RegisterActivity(activities.ForecastValuationActivity)
	w.RegisterActivity(activities.InvestmentThesisActivity)
	w.RegisterActivity(activities.CleanupCacheActivity)
	w.RegisterActivity(activities.NotifyCompensationFailure)

	logger.Info("Starting finanalyzer worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("env", cfg.System.Env),
	)

	// worker.InterruptCh 在 SIGINT/SIGTERM 时关闭
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Worker failed", zap.Error(err))
	}

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
	logger.Info("Worker stopped")
}

func startMetricsServer(cfg config.MetricsConfig, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
