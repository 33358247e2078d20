package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
	"github.com/lodestream/lode/pkg/log"
)

// Coordinator discovers shards, creates lease rows for new ones, and runs at
// most one shard worker per shard in this process. Workers acquire leases
// themselves; the coordinator only decides which shards are worth trying.
type Coordinator struct {
	source  StreamSource
	leases  LeaseStore
	factory ProcessorFactory
	opts    Options
	log     log.Logger

	// workers is touched only by the Run goroutine.
	workers  map[string]*shardWorker
	failures int
}

// New builds a Coordinator. The factory is invoked once per acquired shard.
func New(source StreamSource, leases LeaseStore, factory ProcessorFactory, opts Options) *Coordinator {
	opts = opts.withDefaults()
	if opts.WorkerID == "" {
		opts.WorkerID = NewWorkerID()
	}
	return &Coordinator{
		source:  source,
		leases:  leases,
		factory: factory,
		opts:    opts,
		log:     opts.Logger.With(log.Component("consumer")),
		workers: make(map[string]*shardWorker),
	}
}

// WorkerID returns the identity used in lease rows.
func (c *Coordinator) WorkerID() string { return c.opts.WorkerID }

// Run drives discovery until ctx ends, then waits for all workers to stop.
// It returns an error if any shard worker terminated on an unhandled
// failure, so callers can exit non-zero.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.leases.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure lease table: %w", err)
	}
	c.log.Info("consumer started",
		log.Str("worker", c.opts.WorkerID),
		log.Dur("leaseTtl", c.opts.LeaseTTL),
		log.Dur("checkpointInterval", c.opts.CheckpointInterval))

	ticker := time.NewTicker(c.opts.LeaseTTL / 3)
	defer ticker.Stop()
	for {
		c.tick(ctx)
		select {
		case <-ctx.Done():
			c.drain()
			if c.failures > 0 {
				return fmt.Errorf("%d shard worker(s) failed", c.failures)
			}
			c.log.Info("consumer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick is one discovery pass: reap finished workers, list shards, create
// lease rows for newcomers, and spawn workers for eligible shards.
func (c *Coordinator) tick(ctx context.Context) {
	c.reap()

	shards, err := c.source.ListShards(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("shard discovery failed", log.Err(err))
		}
		return
	}
	rows, err := c.leases.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("lease listing failed", log.Err(err))
		}
		return
	}

	leaseByShard := make(map[string]lease.Lease, len(rows))
	for _, row := range rows {
		leaseByShard[row.ShardID] = row
	}
	shardByID := make(map[string]shardlog.Shard, len(shards))
	for _, sh := range shards {
		shardByID[sh.ID] = sh
	}

	// Register newly discovered shards first so the eligibility pass sees a
	// row for every shard, children included.
	for _, sh := range shards {
		if _, ok := leaseByShard[sh.ID]; ok {
			continue
		}
		row, created, err := c.leases.CreateIfAbsent(ctx, sh.ID)
		if err != nil {
			c.log.Warn("lease create failed", log.Str("shard", sh.ID), log.Err(err))
			continue
		}
		if created {
			c.log.Info("discovered shard", log.Str("shard", sh.ID))
		}
		leaseByShard[sh.ID] = row
	}

	now := time.Now().UnixMilli()
	for _, sh := range shards {
		if _, live := c.workers[sh.ID]; live {
			continue
		}
		row, ok := leaseByShard[sh.ID]
		if !ok || row.Finished {
			continue
		}
		if !c.parentsFinished(sh, shardByID, leaseByShard) {
			continue
		}
		// Worth trying when unassigned, expired, or ours from a previous
		// worker that stopped without releasing.
		if !row.Unassigned() && !row.Expired(now) && row.Owner != c.opts.WorkerID {
			continue
		}
		w := newShardWorker(sh, row.Counter, c.source, c.leases, c.factory, c.opts)
		c.workers[sh.ID] = w
		go w.run(ctx)
	}
}

// parentsFinished gates children of splits and merges: every parent shard
// must be drained and finish-checkpointed before a child is eligible, so
// records are processed in causal order across topology changes.
func (c *Coordinator) parentsFinished(sh shardlog.Shard, shardByID map[string]shardlog.Shard, rows map[string]lease.Lease) bool {
	for _, parent := range sh.ParentIDs {
		if row, ok := rows[parent]; ok {
			if !row.Finished {
				return false
			}
			continue
		}
		if _, ok := shardByID[parent]; ok {
			// Parent known but its lease row is not visible yet.
			return false
		}
		// Parent aged out of the topology entirely; nothing left to drain.
	}
	return true
}

// reap collects workers that reached shutdown and tallies failures.
func (c *Coordinator) reap() {
	for id, w := range c.workers {
		select {
		case <-w.done:
			if w.failed.Load() {
				c.failures++
			}
			delete(c.workers, id)
		default:
		}
	}
}

// drain blocks until every worker observes cancellation and stops.
func (c *Coordinator) drain() {
	for id, w := range c.workers {
		<-w.done
		if w.failed.Load() {
			c.failures++
		}
		delete(c.workers, id)
	}
}
