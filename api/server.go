package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"oblik/api/handlers"
	"oblik/api/routegroups"
	"oblik/config"
	"oblik/core/utils"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	cfg     *config.AppConfig
	logger  *utils.Logger
	records *handlers.RecordsHandler
	metrics http.Handler
	router  chi.Router
	httpSrv *http.Server
}

func NewServer(cfg *config.AppConfig, recordsHandler *handlers.RecordsHandler, metricsHandler http.Handler, logger *utils.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger, records: recordsHandler, metrics: metricsHandler}
	s.router = s.routes()
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.jsonMiddleware)
	r.MethodFunc("GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method("GET", "/metrics", s.metrics)
	}
	r.Route("/api", func(apiRouter chi.Router) {
		routegroups.RegisterRecords(apiRouter, routegroups.Guards{WithActor: s.withActor}, s.records)
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until Shutdown is called. After Shutdown it returns
// nil immediately, even when it had not started listening yet.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("listening on %s", s.cfg.ListenAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
