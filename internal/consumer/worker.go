package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
	"github.com/lodestream/lode/pkg/log"
)

// workerState tracks the shard worker lifecycle:
// acquiring -> processing -> draining -> shutdown, with a lease-lost exit
// from processing or draining.
type workerState int32

const (
	stateAcquiring workerState = iota
	stateProcessing
	stateDraining
	stateLeaseLost
	stateShutdown
)

func (s workerState) String() string {
	switch s {
	case stateAcquiring:
		return "acquiring"
	case stateProcessing:
		return "processing"
	case stateDraining:
		return "draining"
	case stateLeaseLost:
		return "lease_lost"
	case stateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// shardWorker owns one shard's lease for its lifetime: it acquires, renews,
// pulls batches, and drives a RecordProcessor. All of that happens on a
// single goroutine so record processing and checkpoint writes for the shard
// stay strictly sequential.
type shardWorker struct {
	shard    shardlog.Shard
	expected uint64
	source   StreamSource
	leases   LeaseStore
	factory  ProcessorFactory
	opts     Options
	log      log.Logger

	cp *Checkpointer
	// state is only touched by the run goroutine.
	state  workerState
	failed atomic.Bool
	done   chan struct{}
}

func newShardWorker(shard shardlog.Shard, expected uint64, source StreamSource, leases LeaseStore, factory ProcessorFactory, opts Options) *shardWorker {
	return &shardWorker{
		shard:    shard,
		expected: expected,
		source:   source,
		leases:   leases,
		factory:  factory,
		opts:     opts,
		log:      opts.Logger.With(log.Str("shard", shard.ID)),
		done:     make(chan struct{}),
	}
}

func (w *shardWorker) setState(s workerState) {
	w.state = s
	w.log.Debug("worker state", log.Str("state", s.String()))
}

func (w *shardWorker) fail(msg string, err error) {
	w.failed.Store(true)
	w.log.Error(msg, log.Err(err))
}

// run is the worker goroutine. It terminates on shard exhaustion, lease
// loss, a fatal store error, or context cancellation; the coordinator reaps
// it through the done channel.
func (w *shardWorker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(stateShutdown)

	row, err := w.leases.AcquireOrRenew(ctx, w.shard.ID, w.opts.WorkerID, w.expected)
	if err != nil {
		switch {
		case errors.Is(err, lease.ErrConflict):
			// Another worker holds the shard; the coordinator will look
			// again next interval.
			w.log.Debug("lease contended", log.Err(err))
		case errors.Is(err, lease.ErrSchema):
			w.fail("lease table unavailable", err)
		default:
			if ctx.Err() == nil {
				w.log.Warn("lease acquisition failed", log.Err(err))
			}
		}
		return
	}

	w.cp = newCheckpointer(w.leases, row, w.opts)
	proc := w.factory(w.shard.ID)
	pos := resumePosition(row, w.opts.InitialPosition)
	renewEvery := w.opts.LeaseTTL / 3
	lastRenew := time.Now()
	w.setState(stateProcessing)
	w.log.Info("shard acquired",
		log.Uint64("counter", row.Counter),
		log.Bool("resuming", row.Checkpoint != nil))

	for {
		if ctx.Err() != nil {
			proc.Shutdown(context.WithoutCancel(ctx), ShutdownRequested, w.cp)
			w.release()
			return
		}
		if w.cp.Lost() {
			w.leaseLost(ctx, proc)
			return
		}

		if time.Since(lastRenew) >= renewEvery {
			renewed, err := w.leases.AcquireOrRenew(ctx, w.shard.ID, w.opts.WorkerID, w.cp.currentCounter())
			switch {
			case err == nil:
				w.cp.setCounter(renewed.Counter)
				lastRenew = time.Now()
			case errors.Is(err, lease.ErrConflict):
				w.leaseLost(ctx, proc)
				return
			case errors.Is(err, lease.ErrSchema):
				w.fail("lease table unavailable", err)
				proc.Shutdown(ctx, ShutdownRequested, w.cp)
				return
			default:
				if ctx.Err() == nil {
					w.log.Warn("lease renewal failed, will retry", log.Err(err))
				}
			}
		}

		batch, err := w.source.GetRecords(ctx, w.shard.ID, pos, w.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, shardlog.ErrShardNotFound) || errors.Is(err, shardlog.ErrStreamNotFound) {
				w.fail("shard disappeared from stream", err)
				proc.Shutdown(ctx, ShutdownRequested, w.cp)
				return
			}
			w.log.Warn("batch read failed, will retry", log.Err(err))
			sleepCtx(ctx, w.opts.PollIdle)
			continue
		}

		if len(batch.Records) > 0 {
			proc.Process(ctx, w.toRecords(batch.Records), w.cp)
			if w.cp.Fatal() {
				w.fail("checkpoint store rejected writes", lease.ErrSchema)
				proc.Shutdown(ctx, ShutdownRequested, w.cp)
				return
			}
			pos = batch.Next
			continue
		}

		if batch.Exhausted {
			// The shard is closed and fully read. Force a final checkpoint
			// so the coordinator can admit its children.
			w.setState(stateDraining)
			proc.Shutdown(ctx, ShutdownTerminated, w.cp)
			if w.cp.Lost() {
				w.setState(stateLeaseLost)
				return
			}
			if w.cp.Fatal() {
				w.fail("final checkpoint rejected", lease.ErrSchema)
				return
			}
			w.log.Info("shard drained")
			w.release()
			return
		}

		sleepCtx(ctx, w.opts.PollIdle)
	}
}

func (w *shardWorker) leaseLost(ctx context.Context, proc RecordProcessor) {
	w.setState(stateLeaseLost)
	w.log.Warn("lease lost, abandoning shard")
	proc.Shutdown(ctx, ShutdownLeaseLost, w.cp)
}

// release makes the shard immediately reacquirable instead of waiting out
// the TTL. Best effort: expiry covers the failure case.
func (w *shardWorker) release() {
	if err := w.leases.Release(context.Background(), w.shard.ID, w.opts.WorkerID); err != nil {
		w.log.Debug("lease release failed", log.Err(err))
	}
}

func (w *shardWorker) toRecords(in []shardlog.Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = Record{
			ShardID:  w.shard.ID,
			Sequence: r.Sequence,
			Key:      r.Key,
			TsMs:     r.CreatedAtMs,
			Data:     r.Data,
		}
	}
	return out
}
