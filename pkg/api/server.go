// Package api implements the HTTP submission API: gin-gonic/gin handlers
// for submission, execution lookup, event history, live streaming,
// cancellation, and approval decisions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/events"
	"github.com/codeready-toolchain/execution-core/pkg/masking"
	"github.com/codeready-toolchain/execution-core/pkg/queue"
	"github.com/codeready-toolchain/execution-core/pkg/stagee"
	"github.com/codeready-toolchain/execution-core/pkg/store"
	"github.com/codeready-toolchain/execution-core/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	router *gin.Engine
	http   *http.Server

	cfg        *config.Config
	db         *store.Client
	executions *store.ExecutionStore
	steps      *store.StepStore
	eventStore *store.EventStore
	approvals  *store.ApprovalStore
	queueStore *store.QueueStore

	executor    *stagee.Executor
	pool        *queue.WorkerPool
	connManager *events.ConnectionManager
	masker      *masking.Service
	registry    *prometheus.Registry
}

// Deps groups Server's collaborators.
type Deps struct {
	Config      *config.Config
	DB          *store.Client
	Executions  *store.ExecutionStore
	Steps       *store.StepStore
	Events      *store.EventStore
	Approvals   *store.ApprovalStore
	Queue       *store.QueueStore
	Executor    *stagee.Executor
	Pool        *queue.WorkerPool
	ConnManager *events.ConnectionManager
	Masker      *masking.Service
	// Registry is the collector registry pkg/monitoring.NewMetrics was
	// constructed against. /metrics serves exactly this registry rather
	// than prometheus's global default, so every collector the engine
	// reports through actually shows up in scraped output.
	Registry *prometheus.Registry
}

// NewServer constructs a Server and registers every route.
func NewServer(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	registerValidations()
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders(), tracingMiddleware())

	s := &Server{
		router:      router,
		cfg:         d.Config,
		db:          d.DB,
		executions:  d.Executions,
		steps:       d.Steps,
		eventStore:  d.Events,
		approvals:   d.Approvals,
		queueStore:  d.Queue,
		executor:    d.Executor,
		pool:        d.Pool,
		connManager: d.ConnManager,
		masker:      d.Masker,
		registry:    d.Registry,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	} else {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.router.POST("/submission", s.handleSubmit)
	s.router.GET("/executions", s.handleListExecutions)
	s.router.GET("/execution/:id", s.handleGetExecution)
	s.router.GET("/execution/:id/events", s.handleListEvents)
	s.router.GET("/execution/:id/stream", s.handleStream)
	s.router.POST("/execution/:id/cancel", s.handleCancel)
	s.router.POST("/approval/:id", s.handleApprovalDecision)
}

// Start runs the HTTP server on the configured listen address. Blocks
// until the server stops or returns an error.
func (s *Server) Start() error {
	addr := ":8080"
	if s.cfg != nil && s.cfg.Server != nil && s.cfg.Server.ListenAddr != "" {
		addr = s.cfg.Server.ListenAddr
	}
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := "healthy"

	if _, err := s.db.Health(reqCtx); err != nil {
		status = "unhealthy"
		checks["database"] = HealthCheck{Status: "unhealthy", Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: "healthy"}
	}

	if s.pool != nil {
		health := s.pool.Health(reqCtx)
		if health.ActiveWorkers < health.TotalWorkers {
			if status == "healthy" {
				status = "degraded"
			}
			checks["worker_pool"] = HealthCheck{Status: "degraded", Message: "one or more workers not active"}
		} else {
			checks["worker_pool"] = HealthCheck{Status: "healthy"}
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, HealthResponse{Status: status, Version: version.Full(), Checks: checks})
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins(),
	})
	if err != nil {
		return
	}
	s.connManager.HandleConnection(c.Request.Context(), conn)
}

func (s *Server) allowedOrigins() []string {
	if s.cfg == nil || s.cfg.Server == nil {
		return nil
	}
	return s.cfg.Server.AllowedWSOrigins
}
