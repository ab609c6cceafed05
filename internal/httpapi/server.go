// Package httpapi exposes the operator surface: health, status, metrics,
// scan controls and a websocket event feed.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/escalate"
	"github.com/park285/nickguard/internal/report"
	"github.com/park285/nickguard/internal/rules"
	"github.com/park285/nickguard/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Moderator interface {
	Scan(ctx context.Context) (domain.ScanResult, error)
	AIReview(ctx context.Context) (domain.ScanResult, error)
	Check(ctx context.Context, nick string) (escalate.Single, error)
	ReloadRules() error
	Last() (domain.ScanResult, bool)
	Busy() bool
}

type Session interface {
	State() supervisor.Status
	Reconnect()
}

type RuleSource interface {
	Snapshot() *rules.Snapshot
}

type Deps struct {
	Moderator Moderator
	Session   Session
	Rules     RuleSource
	Formatter *report.Formatter
	Hub       *Hub
	AIEnabled bool
	Logger    *zap.Logger
}

type Server struct {
	Deps
	echo *echo.Echo
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Formatter == nil {
		d.Formatter = report.NewFormatter(nil, 0)
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}
	s := &Server{Deps: d}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			requestCount.WithLabelValues(c.Path(), strconv.Itoa(v.Status)).Inc()
			s.Logger.Debug("http_request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/healthz", s.healthz)
	e.GET("/status", s.status)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/last", s.last)
	e.GET("/check", s.check)
	e.POST("/scan", s.scan)
	e.POST("/ai", s.aiReview)
	e.POST("/reload", s.reload)
	e.POST("/reconnect", s.reconnect)
	e.GET("/ws", s.ws)

	s.echo = e
	return s
}

// Handler returns the routed handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.Logger.Info("http_listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// wantsText reports whether the caller asked for the operator text rendering.
func wantsText(c echo.Context) bool { return c.QueryParam("format") == "text" }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrScanInProgress), errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrConnectionLost):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProtocolTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrNoLastScan):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidNickname), errors.Is(err, domain.ErrAIDisabled):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := s.Formatter.Error(err)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= 500 {
		s.Logger.Warn("http_request_failed", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	}
	if wantsText(c) {
		_ = c.String(code, msg)
		return
	}
	_ = c.JSON(code, errorBody{Error: err.Error(), Message: msg})
}

func (s *Server) healthz(c echo.Context) error {
	st := s.Session.State()
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "session": st.State})
}

type statusResponse struct {
	Session   supervisor.Status  `json:"session"`
	Busy      bool               `json:"busy"`
	LastScan  *domain.ScanResult `json:"last_scan,omitempty"`
	Rules     rules.Stats        `json:"rules"`
	AIEnabled bool               `json:"ai_enabled"`
	Clients   int                `json:"ws_clients"`
}

func (s *Server) status(c echo.Context) error {
	resp := statusResponse{
		Session:   s.Session.State(),
		Busy:      s.Moderator.Busy(),
		Rules:     s.Rules.Snapshot().Stats(),
		AIEnabled: s.AIEnabled,
		Clients:   s.Hub.Clients(),
	}
	if last, ok := s.Moderator.Last(); ok {
		resp.LastScan = &last
	}
	if wantsText(c) {
		return c.String(http.StatusOK, s.Formatter.Status(report.StatusView{
			State:        string(resp.Session.State),
			ReadyVia:     resp.Session.ReadyVia,
			Since:        resp.Session.Since,
			Epoch:        resp.Session.Epoch,
			LastError:    resp.Session.LastError,
			Busy:         resp.Busy,
			LastScan:     resp.LastScan,
			RulesVersion: resp.Rules.Version,
			Rules:        resp.Rules.Rules,
			ReviewWords:  resp.Rules.ReviewWords,
			Whitelist:    resp.Rules.Whitelist,
			AIEnabled:    resp.AIEnabled,
		}))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) result(c echo.Context, res domain.ScanResult, aiReview bool) error {
	if wantsText(c) {
		return c.String(http.StatusOK, s.Formatter.Scan(res, aiReview))
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) last(c echo.Context) error {
	res, ok := s.Moderator.Last()
	if !ok {
		return domain.ErrNoLastScan
	}
	return s.result(c, res, false)
}

func (s *Server) scan(c echo.Context) error {
	res, err := s.Moderator.Scan(c.Request().Context())
	if err != nil {
		return err
	}
	return s.result(c, res, false)
}

func (s *Server) aiReview(c echo.Context) error {
	res, err := s.Moderator.AIReview(c.Request().Context())
	if err != nil {
		return err
	}
	return s.result(c, res, true)
}

func (s *Server) check(c echo.Context) error {
	res, err := s.Moderator.Check(c.Request().Context(), c.QueryParam("nick"))
	if err != nil {
		return err
	}
	if wantsText(c) {
		return c.String(http.StatusOK, s.Formatter.Check(res))
	}
	return c.JSON(http.StatusOK, res)
}

type reloadResponse struct {
	Rules rules.Stats `json:"rules"`
	// Error is set when the file was rejected and defaults are active.
	Error string `json:"error,omitempty"`
}

func (s *Server) reload(c echo.Context) error {
	err := s.Moderator.ReloadRules()
	resp := reloadResponse{Rules: s.Rules.Snapshot().Stats()}
	var cfgErr *domain.ConfigError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resp)
	case errors.As(err, &cfgErr):
		resp.Error = cfgErr.Error()
		return c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		return err
	}
}

func (s *Server) reconnect(c echo.Context) error {
	s.Session.Reconnect()
	return c.JSON(http.StatusAccepted, map[string]any{"status": "reconnecting", "at": time.Now()})
}

func (s *Server) ws(c echo.Context) error {
	s.Hub.Serve(c.Response(), c.Request())
	return nil
}
