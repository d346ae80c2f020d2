package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/snapshot"
)

// Config holds the reporting endpoint settings. An empty Addr disables
// the server.
type Config struct {
	Addr            string        `yaml:"addr" env:"ADDR, overwrite" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
	// MaxStaleness is how old the last status may be before /healthz
	// reports unhealthy.
	MaxStaleness time.Duration `yaml:"max_staleness" default:"2m"`
}

// StatusReader is the read side of snapshot.Store.
type StatusReader interface {
	Get() (snapshot.Status, bool)
}

// Server exposes read-only status, health and metrics over HTTP.
type Server struct {
	echo  *echo.Echo
	cfg   Config
	store StatusReader
	log   logger.Logger
	now   func() time.Time
}

func NewServer(cfg Config, store StatusReader, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goccySerializer{}
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Use(middleware.Recover())

	s := &Server{echo: e, cfg: cfg, store: store, log: log, now: time.Now}
	e.GET("/healthz", s.health)
	e.GET("/status", s.status)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Handler returns the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api_listening", logger.String("addr", s.cfg.Addr))
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.log.Info("api_stopped")
	return nil
}

type healthResponse struct {
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	Halted    bool      `json:"halted"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	st, ok := s.store.Get()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "starting"})
	}
	resp := healthResponse{Status: "ok", Connected: st.Connected, Halted: st.Risk.Halted, LastCycle: st.Time}
	switch {
	case st.Terminated:
		resp.Status, resp.Reason = "down", "session terminated"
	case !st.Connected:
		resp.Status, resp.Reason = "degraded", "connectivity lost"
	case s.cfg.MaxStaleness > 0 && s.now().Sub(st.Time) > s.cfg.MaxStaleness:
		resp.Status, resp.Reason = "degraded", "status is stale"
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (s *Server) status(c echo.Context) error {
	st, ok := s.store.Get()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no cycle completed yet")
	}
	return c.JSON(http.StatusOK, st)
}

// goccySerializer encodes responses with goccy/go-json.
type goccySerializer struct{}

func (goccySerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (goccySerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
