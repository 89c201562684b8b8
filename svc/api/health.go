package api

import (
	"clipstash/svc/db"
	"clipstash/svc/util"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded"`
	FastTier string `json:"fastTier"`
	Durable  string `json:"durableTier"`
	Backend  string `json:"durableBackend"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// Ready reports the durable tier but never fails on it: the store serves from
// the fast tier alone, so a down durable tier only marks the service degraded.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Ready:    true,
		FastTier: "up",
		Durable:  "disabled",
		Backend:  s.durable.Name(),
	}
	if _, disabled := s.durable.(db.Disabled); !disabled {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.durable.Ping(ctx); err != nil {
			util.Warn().Err(err).Str("tier", s.durable.Name()).Msg("durable tier health check failed")
			resp.Durable = "down"
			resp.Degraded = true
		} else {
			resp.Durable = "up"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
