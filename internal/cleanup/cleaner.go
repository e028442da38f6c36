// Package cleanup periodically drops in-memory state left behind by deleted
// users and reports database size. It never touches the activity log.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/habittks/habit-tks/internal/metrics"
)

// SizeDB is satisfied by *store.Store.
type SizeDB interface {
	DBSizeBytes() (int64, error)
}

// LockPruner is satisfied by *habit.Service.
type LockPruner interface {
	PruneLocks(ctx context.Context) (int, error)
}

// Cleaner runs the maintenance loop.
type Cleaner struct {
	cfg     CleanupConfig
	db      SizeDB
	locks   LockPruner
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCleaner creates a new Cleaner. locks may be nil.
func NewCleaner(cfg CleanupConfig, db SizeDB, locks LockPruner, m *metrics.Metrics, logger zerolog.Logger) *Cleaner {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Cleaner{
		cfg:     cfg,
		db:      db,
		locks:   locks,
		metrics: m,
		logger:  logger.With().Str("component", "cleanup").Logger(),
	}
}

// RunOnce drops stale per-user lock entries and refreshes the database size
// gauge.
func (c *Cleaner) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	if c.locks != nil {
		n, err := c.locks.PruneLocks(ctx)
		res.LocksPruned = n
		if err != nil {
			c.metrics.RecordError("cleanup", "locks")
			return res, fmt.Errorf("failed to prune locks: %w", err)
		}
		if n > 0 {
			c.logger.Info().Int("locks", n).Msg("stale user locks dropped")
		}
	}

	size, err := c.db.DBSizeBytes()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read database size")
		return res, nil
	}
	res.DBBytes = size
	c.metrics.SetDBSize(size)
	return res, nil
}

// Run calls RunOnce immediately and then every CheckInterval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	c.logger.Info().
		Dur("interval", c.cfg.CheckInterval).
		Msg("cleanup loop started")

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		if _, err := c.RunOnce(ctx); err != nil {
			c.logger.Error().Err(err).Msg("cleanup pass failed")
		}
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("cleanup loop stopped")
			return
		case <-ticker.C:
		}
	}
}
