package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/priyanshudevsingh/quickmailer/pkg/health"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
)

const (
	defaultReadTimeout       = 15 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20
	defaultShutdownTimeout   = 30 * time.Second

	// Synchronous bulk sends stream for minutes, so writes are not bounded
	// by the server. Request contexts are bounded by middleware instead.
	defaultWriteTimeout = 0

	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)

// RequestObserver receives one call per finished request. route is the
// matched chi pattern, empty when nothing matched.
type RequestObserver func(method, route string, status int, elapsed time.Duration)

type mount struct {
	handler http.Handler
	pattern string
}

// Server is the API router plus its global middleware and handlers.
// It is immutable after NewServer.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	observer    RequestObserver
	checks      health.Checks
	middlewares []Middleware
	handlers    []Handler
	mounts      []mount
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMiddleware appends global middleware, applied in order.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mw...) }
}

func WithHandlers(h ...Handler) Option {
	return func(s *Server) { s.handlers = append(s.handlers, h...) }
}

// WithHealthChecks registers /health/live and /health/ready. The readiness
// endpoint runs checks in parallel.
func WithHealthChecks(checks health.Checks) Option {
	return func(s *Server) {
		if checks == nil {
			checks = health.Checks{}
		}
		s.checks = checks
	}
}

// WithMount attaches a plain http.Handler such as the metrics endpoint.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) { s.mounts = append(s.mounts, mount{pattern: pattern, handler: h}) }
}

func WithRequestObserver(fn RequestObserver) Option {
	return func(s *Server) { s.observer = fn }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.observer != nil {
		s.router.Use(s.observe)
	}
	// Global middleware runs before routing, so CORS preflights and
	// unmatched routes pass through it too.
	for _, mw := range s.middlewares {
		s.router.Use(s.adaptMiddleware(mw))
	}

	s.router.NotFound(s.wrapHandler(func(c *Context) error {
		return ErrNotFound("route not found")
	}))
	s.router.MethodNotAllowed(s.wrapHandler(func(c *Context) error {
		return NewHTTPError(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil)
	}))

	if s.checks != nil {
		s.router.Get(LivenessPath, health.LivenessHandler())
		s.router.Get(ReadinessPath, health.ReadinessHandler(s.checks, health.WithLogger(s.logger)))
	}
	for _, m := range s.mounts {
		s.router.Mount(m.pattern, m.handler)
	}

	r := &routerAdapter{router: s.router, srv: s}
	for _, h := range s.handlers {
		h.Routes(r)
	}
}

// observe reports the matched route pattern, which chi fills in only after
// routing, so it must wrap the whole router.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := NewResponseWriter(w)
		next.ServeHTTP(rw, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.observer(r.Method, route, rw.Status(), time.Since(start))
	})
}

func (s *Server) wrapHandler(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := newContext(w, r, s.logger)
		if err := h(c); err != nil {
			s.handleError(c, err)
		}
	}
}

// handleError renders err as a JSON error body. Nothing is written when
// the handler already started a response.
func (s *Server) handleError(c *Context, err error) {
	if c.Written() {
		s.logger.WarnContext(c.Context(), "error after response started", slog.Any("error", err))
		return
	}

	he := ToHTTPError(err)
	attrs := []any{
		slog.String("method", c.Request().Method),
		slog.String("path", c.Request().URL.Path),
		slog.Int("status", he.Code),
		slog.String("code", he.ErrorCode),
		slog.Any("error", err),
	}
	if he.Code >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Context(), "request failed", attrs...)
	} else {
		s.logger.DebugContext(c.Context(), "request rejected", attrs...)
	}

	_ = c.JSON(he.Code, errorBody{
		Error:     he.Message,
		Code:      he.ErrorCode,
		RequestID: RequestIDFromContext(c.Context()),
	})
}

// RunConfig controls Run.
type RunConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	// StartupHooks run before the listener accepts requests.
	StartupHooks []func(context.Context) error
	// ShutdownHooks run after the server stops, in order.
	ShutdownHooks []func(context.Context) error
}

// Run serves h until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully and runs the shutdown hooks.
func Run(ctx context.Context, h http.Handler, cfg RunConfig, log *slog.Logger) error {
	if cfg.Addr == "" {
		cfg.Addr = ":3001"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if log == nil {
		log = logger.NewNope()
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, hook := range cfg.StartupHooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	for _, hook := range cfg.ShutdownHooks {
		if err := hook(shutdownCtx); err != nil {
			errs = append(errs, err)
			log.Error("shutdown hook failed", slog.Any("error", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Info("shutdown completed")
	return nil
}
