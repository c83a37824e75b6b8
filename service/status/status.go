// Package status serves the scan state and Prometheus metrics over HTTP.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viant/handlegen/service/checkpoint"
	"github.com/viant/handlegen/service/weight"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Counters are the run counters.
type Counters struct {
	Probed           int `json:"probed"`
	Available        int `json:"available"`
	Taken            int `json:"taken"`
	Transient        int `json:"transient"`
	Generated        int `json:"generated"`
	BatchesCompleted int `json:"batches_completed"`
}

// Report is the /status document.
type Report struct {
	RunID         string            `json:"run_id"`
	StateRoot     string            `json:"state_root"`
	StartedAt     time.Time         `json:"started_at"`
	Checkpoint    checkpoint.State  `json:"checkpoint"`
	Progress      Counters          `json:"progress"`
	Stats         weight.Stats      `json:"stats"`
	Weights       []weight.Weighted `json:"weights"`
	ExclusionSize int               `json:"exclusion_size"`
	Pending       int               `json:"pending"`
}

// Provider supplies the current report.
type Provider interface {
	Status() Report
}

// Server exposes /status, /status/weights, /metrics and /healthz.
type Server struct {
	router *gin.Engine
	logger *slog.Logger
	server *http.Server
}

// New builds the router. metrics may be nil.
func New(provider Provider, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("handlegen"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.Status())
	})
	router.GET("/status/weights", func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.Status().Weights)
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return &Server{router: router, logger: logger}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr asks for port 0.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()
	s.logger.Info("status server listening", "address", listener.Addr().String())
	return listener.Addr().String(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
