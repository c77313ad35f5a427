package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/config"
	"github.com/quillos/kernel/internal/kernel"
	"github.com/quillos/kernel/internal/logging"
	"github.com/quillos/kernel/internal/monitoring"
)

// Server is the introspection HTTP server.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *logging.Logger
	cfg    *config.Config
}

// NewServer builds the router and registers every route. metrics may
// be nil; request instrumentation is skipped then.
func NewServer(cfg *config.Config, k *kernel.Kernel, metrics *monitoring.Metrics, log *logging.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}
	router.Use(CORS(DefaultCORSConfig()))

	handlers := NewHandlers(k, log)

	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)
	router.GET("/channels", handlers.Channels)
	router.GET("/capabilities/:id", handlers.GetCapability)
	router.GET("/scheduler/tasks", handlers.SchedulerTasks)
	router.POST("/syscall", handlers.Syscall)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		router: router,
		log:    log,
		cfg:    cfg,
	}
}

// Router returns the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.log.Info("starting HTTP server", zap.String("addr", addr))

	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs each request with method, path, status, and
// latency.
func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
