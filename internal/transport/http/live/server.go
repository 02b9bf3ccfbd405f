package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contra/internal/engine"
	"contra/internal/logger"
	"contra/internal/store/tradelog"
)

// Controller is the engine surface the HTTP API drives.
type Controller interface {
	Status() engine.Status
	TradingEnabled() bool
	SetTradingEnabled(enabled bool)
	CloseAll(ctx context.Context) int
}

// TradeReader serves the trade and equity history endpoints.
type TradeReader interface {
	RecentTrades(ctx context.Context, limit int) ([]tradelog.TradeModel, error)
	EquityHistory(ctx context.Context, limit int) ([]tradelog.EquityPointModel, error)
}

// Server exposes the control and dashboard API.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the server dependencies. Trades may be nil, the
// history endpoints then answer 503.
type ServerConfig struct {
	Addr       string
	Controller Controller
	Trades     TradeReader
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("live http server requires a controller")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":10000"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handler{controller: cfg.Controller, trades: cfg.Trades}
	api := router.Group("/api")
	api.GET("/status", h.handleStatus)
	api.POST("/trading", h.handleTradingToggle)
	api.POST("/close-all", h.handleCloseAll)
	api.GET("/trades", h.handleTrades)
	api.GET("/equity", h.handleEquity)
	router.GET("/charts/equity", h.handleEquityChart)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
