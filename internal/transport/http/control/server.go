package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradeloop/internal/config"
	"tradeloop/internal/engine"
	"tradeloop/internal/gateway/exchange"
	"tradeloop/internal/logger"
	"tradeloop/internal/store"
	"tradeloop/internal/store/equity"
)

// EngineControl is what the API needs from the decision loop.
type EngineControl interface {
	Start(ctx context.Context) error
	Stop() error
	Status() engine.State
	Running() bool
	Settings() engine.Settings
	Reconfigure(s engine.Settings) error
}

type TradeReader interface {
	ListTrades(ctx context.Context, q store.TradeQuery) ([]store.TradeRecord, error)
}

type EquityReader interface {
	Recent(ctx context.Context, limit int) ([]equity.Snapshot, error)
}

type EventSource interface {
	Events() []engine.Event
}

// Broker exposes read-only account views.
type Broker interface {
	Name() string
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	GetAccountEquity(ctx context.Context) (float64, error)
}

type ServerConfig struct {
	Addr    string
	Engine  EngineControl
	Trades  TradeReader
	Equity  EquityReader // optional
	Events  EventSource  // optional
	Broker  Broker       // optional
	Config  *config.Manager
	Timeout time.Duration
}

// Server serves the bot control API.
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("control server requires an engine")
	}
	if cfg.Trades == nil {
		return nil, errors.New("control server requires a trade reader")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	schema, err := compileUpdateSchema()
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h := &handlers{cfg: cfg, schema: schema}
	h.register(router.Group("/api"))
	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.With("component", "http").Debug("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start))
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("control api listening on %s", s.addr)

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
