package api

import (
	"clipstash/cfg"
	"clipstash/svc/db"
	"clipstash/svc/lim"
	"clipstash/svc/svc"
	"clipstash/svc/util"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	router     *chi.Mux
	store      *svc.Store
	durable    db.Durable
	cfg        *cfg.Cfg
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, store *svc.Store, durable db.Durable, l *lim.Limiter) *Server {
	if durable == nil {
		durable = db.Disabled{}
	}
	s := &Server{store: store, durable: durable, cfg: c}
	r := chi.NewRouter()
	mw := NewMw(l, c)
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.Instrument)
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		hdl := &Hdl{store: store, cfg: c}
		r.Route("/api", func(r chi.Router) {
			r.With(mw.RateLimit("create")).Post("/clips", hdl.CreateClip)
			r.With(mw.RateLimit("read")).Get("/clips/{token}", hdl.GetClip)
			r.With(mw.RateLimit("read")).Get("/clips/{token}/info", hdl.GetClipInfo)
			r.With(mw.RateLimit("delete")).Delete("/clips/{token}", hdl.DeleteClip)
			r.With(mw.RateLimit("stats")).Get("/stats", hdl.GetStats)
		})
	})
	s.router = r
	s.httpServer = &http.Server{
		Addr:              ":" + c.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    256 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
