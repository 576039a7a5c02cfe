// Package status serves the monitor's state, recent probe results and
// Prometheus metrics over HTTP.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/monitor"
	"github.com/amartya2002/liveness-monitor/uptime"
)

const defaultLogLimit = 50

// Source is what the server reports on.
type Source interface {
	Snapshot() monitor.Snapshot
	History() *uptime.History
}

type LogResponse struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

type Response struct {
	Monitor monitor.Snapshot `json:"monitor"`
	Logs    []LogResponse    `json:"logs"`
}

type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewHandler builds the gin engine. gatherer may be nil, in which case
// /metrics is not served.
func NewHandler(src Source, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		limit := defaultLogLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		raw := src.History().Last(limit)
		logs := make([]LogResponse, 0, len(raw))
		for _, l := range raw {
			logs = append(logs, LogResponse{
				Timestamp:  l.Timestamp,
				StatusCode: l.StatusCode,
				LatencyMS:  l.ElapsedMs(),
				Status:     map[bool]string{true: "UP", false: "DOWN"}[l.Success],
				Error:      l.Error,
			})
		}
		c.JSON(http.StatusOK, Response{Monitor: src.Snapshot(), Logs: logs})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func New(addr string, src Source, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(src, gatherer, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Status server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Status request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
