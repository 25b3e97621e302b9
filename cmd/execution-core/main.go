// Execution Core server - runs the submission API and the queue worker
// pool in one process: gin router plus background services started from a
// single entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/execution-core/pkg/adapters"
	"github.com/codeready-toolchain/execution-core/pkg/api"
	"github.com/codeready-toolchain/execution-core/pkg/cancellation"
	"github.com/codeready-toolchain/execution-core/pkg/cleanup"
	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/engine"
	"github.com/codeready-toolchain/execution-core/pkg/events"
	"github.com/codeready-toolchain/execution-core/pkg/idempotency"
	"github.com/codeready-toolchain/execution-core/pkg/masking"
	"github.com/codeready-toolchain/execution-core/pkg/models"
	"github.com/codeready-toolchain/execution-core/pkg/monitoring"
	"github.com/codeready-toolchain/execution-core/pkg/mutex"
	"github.com/codeready-toolchain/execution-core/pkg/notify"
	"github.com/codeready-toolchain/execution-core/pkg/queue"
	"github.com/codeready-toolchain/execution-core/pkg/rbac"
	"github.com/codeready-toolchain/execution-core/pkg/secrets"
	"github.com/codeready-toolchain/execution-core/pkg/stagee"
	"github.com/codeready-toolchain/execution-core/pkg/store"
	"github.com/codeready-toolchain/execution-core/pkg/timeoutpolicy"
	"github.com/codeready-toolchain/execution-core/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	podID := flag.String("pod-id", getEnv("POD_ID", "execution-core-0"), "Identity of this process for lock/queue ownership")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting execution-core %s", version.Full())
	log.Printf("config directory: %s", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	maskingService := masking.NewService(cfg.Masking)
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(masking.NewHandler(baseHandler, maskingService)))

	db, err := store.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	slog.Info("connected to postgresql database")

	eventStore := store.NewEventStore(db)
	executions := store.NewExecutionStore(db, eventStore)
	steps := store.NewStepStore(db)
	approvals := store.NewApprovalStore(db)
	queueStore := store.NewQueueStore(db)
	dlqStore := store.NewDLQStore(db)
	lockStore := store.NewLockStore(db)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	var redisClient *redis.Client
	if cfg.Mutex.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Mutex.RedisAddr, DB: cfg.Mutex.RedisDB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, mutex guard falls back to postgres-only", "error", err)
			redisClient = nil
		}
	}
	lockGuard := mutex.NewGuard(lockStore, redisClient, cfg.Mutex)
	lockGuard.SetContentionRecorder(metrics)

	vaultClient, err := secrets.NewVaultClient(cfg.Secrets)
	if err != nil {
		log.Fatalf("failed to construct vault client: %v", err)
	}
	secretEvents := secrets.NewStoreEventRecorder(eventStore)
	secretResolver := secrets.NewResolver(vaultClient, secretEvents)

	timeoutTable := timeoutpolicy.NewTable(cfg.Timeout)

	permChecker := rbac.NewHTTPChecker(cfg.RBAC)
	rbacValidator := rbac.NewValidator(permChecker, cfg.RBAC)

	cleanupEvents := cancellation.NewStoreEventRecorder(eventStore)
	cancelMgr := cancellation.NewManager(cleanupEvents, cfg.Submission.CleanupTimeout)

	assetService := adapters.NewInMemoryAssetService()

	transientPublisher := events.NewEventPublisher(db.Pool)
	progressPublisher := monitoring.NewProgressPublisher(transientPublisher)

	execEngine := engine.NewEngine(engine.Deps{
		Steps:      steps,
		Execs:      executions,
		Events:     eventStore,
		Locks:      lockGuard,
		Secrets:    secretResolver,
		RBAC:       rbacValidator,
		Cancel:     cancelMgr,
		Timeout:    timeoutTable,
		Shell:      adapters.NewSSHShellAdapter(),
		PowerShell: adapters.NewWinRMPowerShellAdapter(),
		HTTP:       adapters.NewStdlibHTTPAdapter(),
		Assets:     assetService,
		Local:      adapters.NewOSLocalCommandAdapter(),
		Metrics:    metrics,
		Progress:   progressPublisher,
	})

	queueManager := queue.NewManager(queueStore, cfg.Queue)

	idempotencyGuard := idempotency.NewGuard(executions, cfg.Submission.DedupWindow, func(err error) bool {
		return errors.Is(err, store.ErrNotFound)
	})

	executor := stagee.NewExecutor(stagee.Deps{
		Executions:  executions,
		Approvals:   approvals,
		Idempotency: idempotencyGuard,
		RBAC:        rbacValidator,
		Timeouts:    timeoutTable,
		Engine:      execEngine,
		Queue:       queueManager,
		Classify:    engine.DefaultActionClass,
		IsConflict: func(err error) bool {
			return errors.Is(err, store.ErrAlreadyExists)
		},
		Submission: cfg.Submission,
	})

	var notifyService *notify.Service
	if cfg.Slack.Enabled {
		token := os.Getenv(cfg.Slack.TokenEnv)
		notifyService = notify.NewService(notify.ServiceConfig{Token: token, Channel: cfg.Slack.Channel})
	}

	var pool *queue.WorkerPool
	pool = queue.NewWorkerPool(*podID, cfg.Queue, queueStore, cancelMgr, func(id string) *queue.Worker {
		return queue.NewWorker(id, *podID, queueStore, executions, dlqStore, notifyService, execEngine, cancelMgr, timeoutTable, cfg.Queue, pool)
	})
	pool.Start(ctx)
	defer pool.Stop()

	connManager := events.NewConnectionManager(events.NewEventStoreAdapter(eventStore), 10*time.Second)
	listener := events.NewNotifyListener(cfg.Database.ListenDSN(), connManager)
	connManager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		slog.Error("failed to start notify listener", "error", err)
	}
	defer listener.Stop(context.Background())

	retention := cleanup.NewService(cfg.Retention, executions, eventStore, dlqStore)
	retention.Start(ctx)
	defer retention.Stop()

	reaper := time.NewTicker(cfg.Mutex.LeaseDuration)
	go func() {
		defer reaper.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reaper.C:
				if _, err := lockStore.ReapExpired(ctx); err != nil {
					slog.Warn("stale lock reap failed", "error", err)
				}
			}
		}
	}()

	approvalTicker := time.NewTicker(time.Minute)
	go func() {
		defer approvalTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-approvalTicker.C:
				expired, err := approvals.ExpirePending(ctx)
				if err != nil {
					slog.Warn("approval expiry scan failed", "error", err)
					continue
				}
				for _, execID := range expired {
					err := executions.UpdateStatus(ctx, execID, models.StatusPendingApproval, models.StatusCancelled, models.ReasonTimeout)
					if err != nil {
						slog.Warn("failed to cancel execution with expired approval", "execution_id", execID, "error", err)
						continue
					}
					slog.Info("cancelled execution with expired approval", "execution_id", execID)
					notifyService.NotifyCancelled(ctx, execID, models.ReasonTimeout, "approval gate expired")
				}
			}
		}
	}()

	depthTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer depthTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-depthTicker.C:
				depth, err := queueManager.Depth(ctx)
				if err != nil {
					slog.Warn("queue depth poll failed", "error", err)
					continue
				}
				metrics.SetQueueDepth(depth)
			}
		}
	}()

	server := api.NewServer(api.Deps{
		Config:      cfg,
		DB:          db,
		Executions:  executions,
		Steps:       steps,
		Events:      eventStore,
		Approvals:   approvals,
		Queue:       queueStore,
		Executor:    executor,
		Pool:        pool,
		ConnManager: connManager,
		Masker:      maskingService,
		Registry:    reg,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	slog.Info("execution-core stopped")
}
