package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-fin/custodia/internal/app"
	"github.com/custodia-fin/custodia/internal/audit"
	jobmetrics "github.com/custodia-fin/custodia/internal/jobs"
	"github.com/custodia-fin/custodia/internal/observability"
	"github.com/custodia-fin/custodia/internal/platform/cache"
	"github.com/custodia-fin/custodia/internal/platform/db"
	"github.com/custodia-fin/custodia/internal/token"
	"github.com/custodia-fin/custodia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	deployer, err := cfg.Deployer()
	if err != nil {
		logger.Error("parse deployer", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	// The ledger serves reads from memory, so a missing cache only costs
	// latency. Run degraded rather than refuse to start.
	var balances token.BalanceCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		balances = cache.NewBalances(redisClient, cfg.BalanceCacheTTL)
	}

	metrics := observability.NewMetrics()
	recorder := audit.NewPGRecorder(pool)

	serviceCfg := token.Config{
		Deployer: deployer,
		Audit:    recorder,
		Metrics:  metrics,
	}

	var queueClient *jobs.Client
	if cfg.WebhookURL != "" {
		queueClient, err = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		serviceCfg.Sink = jobs.NewQueueSink(queueClient, logger)
	}

	service, err := token.NewService(serviceCfg)
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}

	tokenHandler := token.NewHandler(logger, service, balances)
	auditHandler := audit.NewHandler(logger, recorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		TokenHandler: tokenHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	// The maintenance queue runs inside this process: the permission store
	// lives in memory, so only the API process can sweep it.
	sweeper := jobs.NewPermissionSweeper(service.RegulatedPolicy().Store(), logger, jobmetrics.NewMetrics(metrics.Registerer()))
	maintenance, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: 1,
		Queues:      map[string]int{jobs.QueueMaintenance: 1},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypePermissionSweep, Handler: sweeper.HandleTask},
		},
	})
	if err != nil {
		logger.Error("init maintenance worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("token", cfg.TokenName),
			slog.String("symbol", cfg.TokenSymbol))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := maintenance.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
