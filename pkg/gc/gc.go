package gc

import (
	"context"
	"time"

	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/log"
	"github.com/rs/zerolog"
)

// Collector is the periodic pruning task.
type Collector struct {
	db       *database.DB
	mode     database.InputManagement
	interval time.Duration
	health   *health.State
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewCollector creates a collector pruning every interval.
func NewCollector(db *database.DB, mode database.InputManagement, interval time.Duration, healthState *health.State) *Collector {
	return &Collector{
		db:       db,
		mode:     mode,
		interval: interval,
		health:   healthState,
		logger:   log.WithComponent("gc"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the collection loop
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("Garbage collector started")

	for {
		select {
		case <-ticker.C:
			if err := c.collect(ctx); err != nil {
				// Log error but continue
				c.logger.Error().Err(err).Msg("Garbage collection cycle failed")
			}
		case <-c.stopCh:
			c.logger.Info().Msg("Garbage collector stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// collect performs one pruning cycle.
func (c *Collector) collect(ctx context.Context) error {
	var tip uint64
	if snapshot := c.health.Snapshot(); snapshot.MostRecentCheckpoint != nil {
		tip = snapshot.MostRecentCheckpoint.Slot
	}

	started := time.Now()
	var spent, datums, scripts int64

	err := c.db.ExclusiveWrite(ctx, func(tx *database.Tx) error {
		var err error
		if c.mode == database.RemoveSpentInputs {
			if spent, err = tx.PruneSpentInputs(tip, c.db.LongestRollback()); err != nil {
				return err
			}
		}
		if datums, err = tx.PruneBinaryData(); err != nil {
			return err
		}
		scripts, err = tx.PruneScripts()
		return err
	})
	if err != nil {
		return err
	}

	c.logger.Info().
		Int64("spent_inputs", spent).
		Int64("binary_data", datums).
		Int64("scripts", scripts).
		Dur("elapsed", time.Since(started)).
		Msg("Garbage collection cycle complete")
	return nil
}
