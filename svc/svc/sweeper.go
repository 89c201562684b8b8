package svc

import (
	"clipstash/metrics"
	"clipstash/svc/util"
	"time"
)

func (s *Store) runSweeper(interval time.Duration) {
	defer close(s.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().Dur("interval", interval).Msg("expiry sweeper started")
	for {
		select {
		case <-s.sweepQuit:
			util.Info().Msg("expiry sweeper shutting down")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes expired clips from the fast tier. The durable tier expires
// keys on its own and is left alone.
func (s *Store) Sweep() int {
	removed := s.fast.Sweep(s.now())
	metrics.SweepCycles.Inc()
	if removed > 0 {
		metrics.ClipsSwept.Add(float64(removed))
		util.Info().
			Int("removed", removed).
			Int("remaining", s.fast.Len()).
			Msg("expiry sweep completed")
	}
	return removed
}
