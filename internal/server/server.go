package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/permission"
	"github.com/omuapps/obssync/internal/plugin"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         26423,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE responses are long-lived
	}
}

// Previewer runs a dry-run pass.
type Previewer interface {
	Preview(ctx context.Context) (*types.Report, error)
}

// Deps are the components the routes serve.
type Deps struct {
	Plugin    *plugin.Plugin
	Previewer Previewer
	// Reports is optional; without it status falls back to the plugin's last run.
	Reports  *reconcile.Reports
	Registry *permission.MemoryRegistry
	// AppConfig is served read-only by /obssync/config.
	AppConfig *types.Config
	// Bus streams events; defaults to the global bus.
	Bus *event.Bus
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	deps    Deps
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	// runCtx outlives requests; passes started over HTTP run under it.
	runCtx context.Context
	stream func(ctx context.Context) (<-chan *message.Message, error)
}

// New creates a new Server instance.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Registry == nil {
		deps.Registry = permission.NewMemoryRegistry()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		log:    logging.Component("server"),
		runCtx: context.Background(),
		stream: event.Stream,
	}
	if deps.Bus != nil {
		s.stream = deps.Bus.Stream
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Permissions implements plugin.Host.
func (s *Server) Permissions() permission.Registry {
	return s.deps.Registry
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs requests through zerolog instead of chi's stdlib logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("requestID", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// Start hands the server to the plugin as its host and serves until
// Shutdown. Passes started by the plugin or over HTTP run under ctx.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	if s.deps.Plugin != nil {
		if err := s.deps.Plugin.OnStartServer(ctx, s); err != nil {
			return err
		}
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.log.Info().Int("port", s.config.Port).Msg("listening")

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and waits for a running pass.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.deps.Plugin != nil {
		s.deps.Plugin.Wait()
	}
	return err
}
