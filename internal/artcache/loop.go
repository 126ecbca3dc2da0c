package artcache

import (
	"context"
	"time"

	"github.com/whatsnowplaying/artcache/internal/datastore"
	"github.com/whatsnowplaying/artcache/internal/errors"
)

// SentinelURL is a reserved pending row used purely as a stop signal for
// the control loop. It travels through the same durable index as real
// work, which makes shutdown requests crash-tolerant: a sentinel written
// by a process that died is cleared on the next start.
const SentinelURL = "STOPWNP"

// Start launches the control loop, which polls the index for pending
// entries and dispatches them to the download pool until Stop is called
// or the context is canceled.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// run is the control loop body. Dispatch is synchronous at the batch
// level: the loop blocks until every download in the batch has finished,
// then sleeps the poll interval. In-flight downloads are never canceled
// by the sentinel, so worst-case shutdown latency is one fetch timeout
// plus one poll interval.
func (c *Cache) run(ctx context.Context) {
	defer c.wg.Done()

	// Clear any stale sentinel left behind by a previous crash.
	if err := c.index.DeleteByURL(SentinelURL); err != nil {
		c.log.Debug("Failed to clear stale sentinel", "error", err)
	}

	c.log.Info("Artwork download loop started",
		"poll_interval", c.settings.Cache.PollInterval,
		"batch_size", c.settings.Cache.BatchSize,
		"max_workers", c.settings.Cache.MaxWorkers)

	ticker := time.NewTicker(c.settings.Cache.PollInterval)
	defer ticker.Stop()

	for {
		// The sentinel is looked up directly rather than relied upon to
		// surface in a batch: identity-type rows fill batches first, and a
		// backlog of persistently failing identity URLs would otherwise
		// keep the sentinel out of every batch.
		if _, err := c.index.FindByURL(SentinelURL); err == nil {
			break
		}

		batch, err := c.index.NextPendingBatch(c.settings.Cache.BatchSize)
		if errors.Is(err, datastore.ErrNotFound) {
			// The catalog file was removed out from under us. There is
			// nothing left to poll and no row to signal through.
			c.log.Warn("Artwork catalog gone, stopping download loop")
			c.drain()
			return
		}
		if err == nil {
			if containsSentinel(batch) {
				break
			}
			if len(batch) > 0 {
				c.dl.ProcessBatch(ctx, batch)
			}
		}

		select {
		case <-ctx.Done():
			c.drain()
			return
		case <-ticker.C:
		}
	}

	c.drain()
}

// drain removes the sentinel row, if present, on the way out.
func (c *Cache) drain() {
	if err := c.index.DeleteByURL(SentinelURL); err != nil {
		c.log.Debug("Failed to remove sentinel", "error", err)
	}
	c.log.Info("Artwork download loop stopped")
}

func containsSentinel(batch []datastore.ArtworkEntry) bool {
	for i := range batch {
		if batch[i].URL == SentinelURL {
			return true
		}
	}
	return false
}
