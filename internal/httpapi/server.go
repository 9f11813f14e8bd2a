// Package httpapi exposes the vault over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mesh-intelligence/vault/internal/images"
	"github.com/mesh-intelligence/vault/internal/metrics"
	"github.com/mesh-intelligence/vault/internal/service"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// multipartOverhead is the request body allowance beyond the image itself
// for the other form fields and part headers.
const multipartOverhead = 1 << 20

// Service is the contribution service the handlers call.
type Service interface {
	Contribute(ctx context.Context, req service.Request) (*types.Contribution, error)
	Lineage(ctx context.Context, token string) (*types.Lineage, error)
}

// Lister lists located contributions for the map.
type Lister interface {
	LatestWithLocation(ctx context.Context, limit int) ([]*types.Contribution, error)
}

// Options wires a Server.
type Options struct {
	Service      Service
	Images       images.Store
	Lister       Lister
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	MaxImageSize int64
	LatestLimit  int // zero or less lists every located contribution
}

// Server holds the echo instance and its dependencies.
type Server struct {
	echo        *echo.Echo
	svc         Service
	images      images.Store
	lister      Lister
	log         *slog.Logger
	maxSize     int64
	latestLimit int
}

// New builds the server and registers all routes.
func New(opts Options) *Server {
	s := &Server{
		svc:         opts.Service,
		images:      opts.Images,
		lister:      opts.Lister,
		log:         opts.Logger,
		maxSize:     opts.MaxImageSize,
		latestLimit: opts.LatestLimit,
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.maxSize <= 0 {
		s.maxSize = images.DefaultMaxSize
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/health", s.health)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	api := e.Group("/api")
	api.POST("/contribute", s.contribute,
		middleware.BodyLimit(strconv.FormatInt(s.maxSize+multipartOverhead, 10)))
	api.GET("/vault/:share_token", s.vault)
	api.GET("/map/latest", s.mapLatest)

	e.GET("/uploads/:ref", s.upload)

	s.echo = e
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.log.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.log.Info("request", attrs...)
			return nil
		},
	})
}

// handleError renders echo errors as {"error": message}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{Error: msg})
	}
	if err != nil {
		s.log.Error("writing error response", "error", err)
	}
}

// Run listens on addr and serves until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("vault server starting", "addr", ln.Addr().String())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.log.Info("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}
		s.log.Info("shutdown complete")
	}
	return nil
}
