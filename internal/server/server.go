// Package server hosts the HTTP surface (health and the LINE callback) and a
// gRPC health endpoint, with graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

// #region config

// Config holds listen addresses and timeouts. An empty GRPCAddr disables gRPC.
type Config struct {
	Addr            string
	GRPCAddr        string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":3000",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServiceName is the gRPC health service name.
const ServiceName = "sara.Bot"

// #endregion config

// #region router

// Router mounts /health and POST /callback.
func Router(callback http.Handler, logger *log.Logger) chi.Router {
	l := logging.ForComponent(logger, "http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(l))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "at": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Method(http.MethodPost, "/callback", callback)
	return r
}

func requestLogger(l *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"dur", time.Since(start), "id", middleware.GetReqID(r.Context()))
		})
	}
}

// #endregion router

// #region server

// Server runs the HTTP and gRPC listeners.
type Server struct {
	cfg      Config
	callback http.Handler
	http     *http.Server
	grpc     *grpc.Server
	health   *health.Server
	log      *log.Logger
}

// New builds the servers. If callback has a Wait method it is called after the
// HTTP server stops, so in-flight webhook batches finish before exit.
func New(cfg Config, callback http.Handler, logger *log.Logger) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{
		cfg:      cfg,
		callback: callback,
		http: &http.Server{
			Addr:        cfg.Addr,
			Handler:     Router(callback, logger),
			ReadTimeout: cfg.ReadTimeout,
		},
		grpc:   gs,
		health: hs,
		log:    logging.ForComponent(logger, "server"),
	}
}

// Run listens on the configured addresses and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.Addr, err)
	}
	var grpcLis net.Listener
	if s.cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve runs on the given listeners. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	errc := make(chan error, 2)

	go func() {
		s.log.Info("http listening", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	if grpcLis != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		go func() {
			s.log.Info("grpc health listening", "addr", grpcLis.Addr().String())
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	s.shutdown()
	return runErr
}

func (s *Server) shutdown() {
	s.log.Info("shutting down")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("http shutdown", "err", err)
	}
	if w, ok := s.callback.(interface{ Wait() }); ok {
		w.Wait()
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.log.Info("stopped")
}

// #endregion server
