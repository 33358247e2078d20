package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/pkg/log"
)

// Checkpointer persists the durable cursor for one shard through the lease
// store. The owning worker advances the pending position record by record;
// Checkpoint and Finish write it out. Writes for a shard are serialized by
// the worker's single-threaded batch loop.
//
// Retry policy: throttled writes retry up to retries times with a fixed
// backoff, then give up silently until the next interval (loss is bounded to
// one interval). A conflict means the lease was superseded and is never
// retried. A schema error marks the shard fatal.
type Checkpointer struct {
	store   LeaseStore
	shardID string
	retries int
	backoff time.Duration
	log     log.Logger

	mu         sync.Mutex
	counter    uint64
	pending    uint64
	hasPending bool
	durable    uint64
	hasDurable bool
	lost       bool
	fatal      bool
}

func newCheckpointer(store LeaseStore, row lease.Lease, o Options) *Checkpointer {
	c := &Checkpointer{
		store:   store,
		shardID: row.ShardID,
		retries: o.RetryCount,
		backoff: o.RetryBackoff,
		log:     o.Logger,
		counter: row.Counter,
	}
	if row.Checkpoint != nil {
		c.durable = *row.Checkpoint
		c.hasDurable = true
	}
	return c
}

// Advance raises the pending position. Lower sequences are ignored so the
// cursor never regresses.
func (c *Checkpointer) Advance(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPending || seq > c.pending {
		c.pending = seq
		c.hasPending = true
	}
}

// Lost reports whether a write observed a superseded lease.
func (c *Checkpointer) Lost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Fatal reports whether the lease store rejected writes as misconfigured.
func (c *Checkpointer) Fatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Checkpointer) setCounter(n uint64) {
	c.mu.Lock()
	c.counter = n
	c.mu.Unlock()
}

func (c *Checkpointer) currentCounter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Checkpoint writes the pending position if it moved past the durable one.
func (c *Checkpointer) Checkpoint(ctx context.Context) error {
	return c.write(ctx, false)
}

// Finish writes the pending position with the finished flag set, marking the
// shard fully drained so its children become acquirable. Finish writes even
// when the cursor has not moved.
func (c *Checkpointer) Finish(ctx context.Context) error {
	return c.write(ctx, true)
}

func (c *Checkpointer) write(ctx context.Context, finish bool) error {
	c.mu.Lock()
	if c.lost {
		c.mu.Unlock()
		return lease.ErrConflict
	}
	if c.fatal {
		c.mu.Unlock()
		return lease.ErrSchema
	}
	seq := c.durable
	if c.hasPending {
		seq = c.pending
	}
	dirty := c.hasPending && (!c.hasDurable || c.pending > c.durable)
	counter := c.counter
	c.mu.Unlock()

	if !finish && !dirty {
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := c.store.WriteCheckpoint(ctx, c.shardID, counter, seq, finish)
		switch {
		case err == nil:
			c.mu.Lock()
			c.durable = seq
			c.hasDurable = true
			c.mu.Unlock()
			return nil
		case errors.Is(err, lease.ErrConflict):
			c.mu.Lock()
			c.lost = true
			c.mu.Unlock()
			return err
		case errors.Is(err, lease.ErrSchema), errors.Is(err, lease.ErrNotFound):
			c.mu.Lock()
			c.fatal = true
			c.mu.Unlock()
			return err
		default:
			// Throttled or transient store failure.
			if attempt >= c.retries {
				c.log.Warn("giving up checkpoint until next interval",
					log.Str("shard", c.shardID),
					log.Uint64("sequence", seq),
					log.Int("attempts", attempt),
					log.Err(err))
				return nil
			}
			if !sleepCtx(ctx, c.backoff) {
				return ctx.Err()
			}
		}
	}
}
