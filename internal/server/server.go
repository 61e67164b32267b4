// Package server exposes form linting, derivation, validation and option
// previews over HTTP, plus tenant branding and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/branding"
	"github.com/goliatone/go-formflow/pkg/mutator"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// OptionFetcher resolves one field's remote options. *options.Fetcher
// satisfies it.
type OptionFetcher interface {
	FetchField(ctx context.Context, s *schema.Schema, sess session.Context, name string, data schema.FormData) options.Update
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithValidator sets the field validator.
func WithValidator(v *validation.Validator) Option {
	return func(s *Server) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithMutator sets the schema mutator.
func WithMutator(m *mutator.Mutator) Option {
	return func(s *Server) {
		if m != nil {
			s.mutator = m
		}
	}
}

// WithFetcher enables the option preview endpoint.
func WithFetcher(f OptionFetcher) Option {
	return func(s *Server) {
		s.fetcher = f
	}
}

// WithBranding enables the branding endpoint.
func WithBranding(r *branding.Resolver) Option {
	return func(s *Server) {
		s.branding = r
	}
}

// WithSession sets the session used for option previews.
func WithSession(sess session.Context) Option {
	return func(s *Server) {
		s.session = sess
	}
}

// WithRegistry enables request metrics and the /metrics endpoint.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// Server is the preview service.
type Server struct {
	echo      *echo.Echo
	logger    logrus.FieldLogger
	validator *validation.Validator
	mutator   *mutator.Mutator
	fetcher   OptionFetcher
	branding  *branding.Resolver
	session   session.Context
	registry  *prometheus.Registry
}

// New builds the server and registers its routes.
func New(opts ...Option) (*Server, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := &Server{
		logger:    logger,
		validator: validation.Default(),
		mutator:   mutator.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			}).Info("request")
			return nil
		},
	}))

	if s.registry != nil {
		if err := s.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("server: register go collector: %w", err)
		}
		metrics, err := echoprometheus.MiddlewareConfig{
			Namespace:  "formflow",
			Registerer: s.registry,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics"
			},
		}.ToMiddleware()
		if err != nil {
			return nil, fmt.Errorf("server: metrics middleware: %w", err)
		}
		e.Use(metrics)
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	e.GET("/healthz", s.health)
	v1 := e.Group("/v1")
	v1.POST("/forms/lint", s.lint)
	v1.POST("/forms/derive", s.derive)
	v1.POST("/forms/validate", s.validate)
	v1.POST("/forms/options", s.options)
	v1.GET("/branding", s.brandingFor)

	s.echo = e
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("preview service listening")
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := "internal error"
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	if err := c.JSON(code, map[string]string{"error": message}); err != nil {
		s.logger.WithError(err).Warn("write error response")
	}
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

var _ OptionFetcher = (*options.Fetcher)(nil)
