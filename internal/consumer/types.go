package consumer

import (
	"context"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
	"github.com/lodestream/lode/pkg/log"
)

// Record is one stream record as delivered to handlers. Value holds the
// decoded payload and is populated before Handle is called.
type Record struct {
	ShardID  string
	Sequence uint64
	Key      string
	TsMs     int64
	Data     []byte
	Value    map[string]any
}

// StreamSource is the read side of a sharded stream: topology plus batch
// reads at a cursor. *shardlog.View satisfies it.
type StreamSource interface {
	ListShards(ctx context.Context) ([]shardlog.Shard, error)
	GetRecords(ctx context.Context, shardID string, from shardlog.Position, max int) (shardlog.Batch, error)
}

// LeaseStore persists shard ownership and checkpoints. *lease.Store
// satisfies it; implementations report failures through the lease package
// sentinels (ErrConflict, ErrThrottled, ErrSchema).
type LeaseStore interface {
	EnsureTable(ctx context.Context) error
	List(ctx context.Context) ([]lease.Lease, error)
	CreateIfAbsent(ctx context.Context, shardID string) (lease.Lease, bool, error)
	AcquireOrRenew(ctx context.Context, shardID, workerID string, expectedCounter uint64) (lease.Lease, error)
	WriteCheckpoint(ctx context.Context, shardID string, counter uint64, seq uint64, finished bool) error
	Release(ctx context.Context, shardID, workerID string) error
}

// Handler applies one decoded record. A nil return acknowledges the record;
// an error triggers the bounded retry policy.
type Handler interface {
	Handle(ctx context.Context, rec Record) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, rec Record) error

func (f HandlerFunc) Handle(ctx context.Context, rec Record) error { return f(ctx, rec) }

// ShutdownReason tells a processor why its shard is stopping.
type ShutdownReason int

const (
	// ShutdownRequested is a graceful stop; the lease is released and a
	// later owner resumes from the last durable checkpoint.
	ShutdownRequested ShutdownReason = iota
	// ShutdownTerminated means the shard is closed and fully drained. The
	// processor must write a final checkpoint so child shards become
	// eligible.
	ShutdownTerminated
	// ShutdownLeaseLost means another worker superseded the lease. No
	// checkpoint may be written; it would race the new owner.
	ShutdownLeaseLost
)

func (r ShutdownReason) String() string {
	switch r {
	case ShutdownRequested:
		return "requested"
	case ShutdownTerminated:
		return "terminated"
	case ShutdownLeaseLost:
		return "lease_lost"
	default:
		return "unknown"
	}
}

// RecordProcessor consumes ordered batches from one shard. Calls are made
// from a single goroutine per shard, batches arrive in sequence order, and
// Shutdown is the last call. On ShutdownTerminated the processor must call
// cp.Finish before returning.
type RecordProcessor interface {
	Process(ctx context.Context, records []Record, cp *Checkpointer)
	Shutdown(ctx context.Context, reason ShutdownReason, cp *Checkpointer)
}

// ProcessorFactory returns a fresh processor bound to one shard.
type ProcessorFactory func(shardID string) RecordProcessor

// Options configures a Coordinator and the workers it spawns.
type Options struct {
	// WorkerID identifies this process in lease rows. See NewWorkerID.
	WorkerID string
	// InitialPosition is where a shard with no checkpoint starts.
	InitialPosition shardlog.Position
	// LeaseTTL bounds how long a crashed worker blocks its shards. Renewal
	// and discovery run every LeaseTTL/3.
	LeaseTTL time.Duration
	// CheckpointInterval is the minimum spacing between periodic
	// checkpoint attempts on a shard.
	CheckpointInterval time.Duration
	// RetryCount bounds attempts for record processing and for throttled
	// checkpoint writes.
	RetryCount int
	// RetryBackoff is the fixed sleep between attempts.
	RetryBackoff time.Duration
	// BatchSize caps records per GetRecords call.
	BatchSize int
	// PollIdle is the sleep after an empty read on an open shard.
	PollIdle time.Duration
	// Filter drops non-matching records before they reach the handler.
	Filter Filter
	Logger log.Logger
}

func (o Options) withDefaults() Options {
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 10 * time.Second
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = time.Minute
	}
	if o.RetryCount <= 0 {
		o.RetryCount = 10
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.PollIdle <= 0 {
		o.PollIdle = time.Second
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	return o
}

// resumePosition picks the cursor for a freshly acquired shard: just past
// the durable checkpoint when one exists, the configured initial position
// otherwise.
func resumePosition(row lease.Lease, initial shardlog.Position) shardlog.Position {
	if row.Checkpoint != nil {
		return shardlog.After(*row.Checkpoint)
	}
	return initial
}

// sleepCtx sleeps for d unless ctx ends first. Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
