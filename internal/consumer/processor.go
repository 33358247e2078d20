package consumer

import (
	"context"
	"time"

	"github.com/lodestream/lode/pkg/log"
)

// processor is the default RecordProcessor: decode, filter, apply with
// bounded fixed-backoff retries, then checkpoint on an interval. One
// instance serves one shard.
type processor struct {
	shardID  string
	decoder  Decoder
	filter   Filter
	handler  Handler
	retries  int
	backoff  time.Duration
	interval time.Duration
	log      log.Logger

	lastCheckpoint time.Time
}

// NewProcessorFactory builds the standard per-shard processor around decoder
// and handler. A nil decoder defaults to JSONDecoder.
func NewProcessorFactory(decoder Decoder, handler Handler, o Options) ProcessorFactory {
	o = o.withDefaults()
	if decoder == nil {
		decoder = JSONDecoder{}
	}
	return func(shardID string) RecordProcessor {
		return &processor{
			shardID:        shardID,
			decoder:        decoder,
			filter:         o.Filter,
			handler:        handler,
			retries:        o.RetryCount,
			backoff:        o.RetryBackoff,
			interval:       o.CheckpointInterval,
			log:            o.Logger.With(log.Str("shard", shardID)),
			lastCheckpoint: time.Now(),
		}
	}
}

func (p *processor) Process(ctx context.Context, records []Record, cp *Checkpointer) {
	for i := range records {
		if ctx.Err() != nil {
			return
		}
		p.processOne(ctx, &records[i])
		if ctx.Err() != nil {
			// Interrupted mid-record; leave it unacknowledged so the next
			// owner redelivers it.
			return
		}
		cp.Advance(records[i].Sequence)
	}

	// Cadence uses elapsed monotonic time and resets on every attempt,
	// successful or not, so a failing store is probed once per interval.
	if time.Since(p.lastCheckpoint) < p.interval {
		return
	}
	if err := cp.Checkpoint(ctx); err != nil {
		p.log.Warn("periodic checkpoint failed", log.Err(err))
	}
	p.lastCheckpoint = time.Now()
}

// processOne drives a single record to a terminal outcome: applied, filtered
// out, or skipped. Malformed records are never retried; apply failures are
// retried up to the bound and then skipped so one poison record cannot stall
// the shard.
func (p *processor) processOne(ctx context.Context, rec *Record) {
	value, err := p.decoder.Decode(rec.Data)
	if err != nil {
		p.log.Warn("dropping undecodable record",
			log.Uint64("sequence", rec.Sequence),
			log.Str("key", rec.Key),
			log.Err(err))
		return
	}
	rec.Value = value

	if !p.filter.Match(*rec) {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		err := p.handler.Handle(ctx, *rec)
		if err == nil {
			return
		}
		lastErr = err
		if attempt == p.retries || ctx.Err() != nil {
			break
		}
		p.log.Debug("record apply failed, backing off",
			log.Uint64("sequence", rec.Sequence),
			log.Int("attempt", attempt),
			log.Err(lastErr))
		if !sleepCtx(ctx, p.backoff) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	p.log.Error("skipping record after exhausted retries",
		log.Uint64("sequence", rec.Sequence),
		log.Str("key", rec.Key),
		log.Int("attempts", p.retries),
		log.Err(lastErr))
}

func (p *processor) Shutdown(ctx context.Context, reason ShutdownReason, cp *Checkpointer) {
	if reason != ShutdownTerminated {
		return
	}
	// The shard is drained for good; persist the final position so child
	// shards become acquirable.
	if err := cp.Finish(ctx); err != nil {
		p.log.Warn("final checkpoint failed", log.Err(err))
	}
}
