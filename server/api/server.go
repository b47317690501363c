package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/compose-network/harberger/server/api/middleware"
)

// Server is the ledger's HTTP front. Routes are registered on Router and
// middleware with Use before Start; unknown routes and methods answer with
// an ErrorResponse.
type Server struct {
	cfg Config
	log zerolog.Logger

	Router *mux.Router
	srv    *http.Server
	wrap   []func(http.Handler) http.Handler

	mu sync.Mutex
	ln net.Listener
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusNotFound, "route_not_found", "no route for "+req.URL.Path, nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, nil)
	})

	return &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "http-api").Logger(),
		Router: r,
		srv: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
	}
}

// Use wraps the router in mw. The first middleware added is the outermost.
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.wrap = append(s.wrap, mw)

	var h http.Handler = s.Router
	for i := len(s.wrap) - 1; i >= 0; i-- {
		h = s.wrap[i](h)
	}
	s.srv.Handler = h
}

// Handler returns the router with the full middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Addr is the bound address, or nil before Start has listened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start listens and serves until ctx is canceled, then drains in-flight
// requests for up to ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP API shutdown incomplete")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API server starting")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	s.log.Info().Msg("HTTP API server stopped")
	return nil
}

// EnableCORS allows any origin to call the API, including the identity
// headers. Intended for browser dashboards in development.
func (s *Server) EnableCORS() {
	s.Use(handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader, "X-Signature", "X-Nonce", "X-Expiry", "X-Caller"}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	))
}
