// Package server exposes the runtime over HTTP: a JSON goal endpoint, a
// server-sent-events streaming endpoint, skill administration, health
// and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/connexhq/connex/pkg/agi"
	"github.com/connexhq/connex/pkg/auth"
	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/logger"
	"github.com/connexhq/connex/pkg/observability"
	"github.com/connexhq/connex/pkg/skill"
)

// Runtime is the slice of the runtime facade the server drives.
type Runtime interface {
	Execute(ctx context.Context, goal string, extra map[string]interface{}, speak bool) (*agi.ExecuteResult, error)
	ExecuteStreaming(ctx context.Context, goal string, extra map[string]interface{}, speak bool, stream *event.Stream) *agi.ExecuteResult
	Skills() *skill.Registry
}

// Options configure the server surface.
type Options struct {
	Addr string

	// Validator enables bearer auth on /v1 when non-nil.
	Validator *auth.Validator

	// Observability supplies metrics and tracing; nil creates a
	// standalone manager.
	Observability *observability.Manager
}

type Server struct {
	runtime Runtime
	opts    Options
	obs     *observability.Manager
	handler http.Handler
	http    *http.Server
	log     *slog.Logger
}

func New(runtime Runtime, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8283"
	}
	obs := opts.Observability
	if obs == nil {
		obs = observability.NewManager(observability.Config{})
	}

	s := &Server{
		runtime: runtime,
		opts:    opts,
		obs:     obs,
		log:     logger.GetLogger(),
	}
	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.Middleware(s.obs.Metrics(), s.obs.Tracer("server")))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.obs.Metrics().Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.opts.Validator))
		r.Post("/run", s.handleRun)
		r.Post("/execute", s.handleExecute)
		r.Get("/skills", s.handleListSkills)
		r.Put("/skills/{name}/config", s.handleSkillConfig)
	})
	return r
}

// Handler exposes the routed handler for embedding and tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until ctx is cancelled or the listener fails, then
// drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.log.Info("server listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		drain, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(drain)
	})
	return g.Wait()
}
