package memory

import (
	"context"
	"time"

	"github.com/okulai/okulai/internal/log"
)

// Janitor periodically evicts idle sessions. Deleting a session cascades to
// its turn rows, so each evicted session's student gets a full compaction
// pass first; a session whose turns could not be summarized is kept for the
// next sweep. Profiles are never evicted.
type Janitor struct {
	store  *Store
	logger log.Logger
}

// NewJanitor creates a janitor over the store.
func NewJanitor(store *Store, logger log.Logger) *Janitor {
	return &Janitor{store: store, logger: logger}
}

// Run blocks until ctx is canceled, sweeping on each tick. Callers track the
// goroutine with an errgroup or WaitGroup.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.store.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// runOnce executes a single eviction sweep.
func (j *Janitor) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.store.cfg.IdleTimeout)
	idle, err := j.store.queries.IdleSessions(ctx, cutoff)
	if err != nil {
		j.logger.Warn("idle session scan failed", "error", err)
		return
	}

	for _, session := range idle {
		if err := j.store.CompactAll(ctx, session.StudentID); err != nil {
			j.logger.Warn("pre-eviction compaction failed, keeping session",
				"session_id", session.ID,
				"student_id", session.StudentID,
				"error", err)
			continue
		}
		if err := j.store.queries.DeleteSession(ctx, session.ID); err != nil {
			j.logger.Warn("session eviction failed", "session_id", session.ID, "error", err)
			continue
		}
		j.logger.Info("evicted idle session",
			"session_id", session.ID,
			"student_id", session.StudentID,
			"idle_since", session.LastActiveAt)
	}
}
