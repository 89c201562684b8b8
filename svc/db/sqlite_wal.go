package db

import (
	"clipstash/svc/util"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

const (
	checkpointInterval = 5 * time.Minute
	walTruncatePages   = 1000
)

func (s *SQLite) walLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := performWALCheckpoint(s.db); err != nil {
				util.Warn().Err(err).Msg("WAL checkpoint failed")
			}
		case <-s.quit:
			return
		}
	}
}

// performWALCheckpoint runs a PASSIVE checkpoint and escalates to TRUNCATE
// once the log grows past walTruncatePages or readers kept pages busy.
func performWALCheckpoint(db *sql.DB) error {
	start := time.Now()
	var busyPages, logPages, checkpointed int
	err := db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busyPages, &logPages, &checkpointed)
	if err != nil {
		return errors.Wrap(err, "PASSIVE checkpoint")
	}
	util.Debug().
		Int("busy", busyPages).
		Int("log", logPages).
		Int("checkpointed", checkpointed).
		Msg("PASSIVE checkpoint result")
	if logPages > walTruncatePages || busyPages > 0 {
		if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return errors.Wrap(err, "TRUNCATE checkpoint")
		}
		util.Info().Int("log", logPages).Msg("WAL truncated")
	}
	util.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}
