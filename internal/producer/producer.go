package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/lodestream/lode/internal/shardlog"
	"github.com/lodestream/lode/pkg/id"
	"github.com/lodestream/lode/pkg/log"
)

// StreamWriter is the append surface of a stream. *shardlog.View satisfies
// it.
type StreamWriter interface {
	Append(ctx context.Context, key string, payload []byte, tsMs int64) (string, uint64, error)
}

// Producer appends keyed records to one stream.
type Producer struct {
	stream  StreamWriter
	backoff time.Duration
	log     log.Logger
}

// New builds a Producer. backoff is the fixed sleep between retries of
// transient append failures.
func New(stream StreamWriter, backoff time.Duration, logger log.Logger) *Producer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Producer{stream: stream, backoff: backoff, log: logger}
}

// Put appends one record and returns its shard and sequence number.
// Transient failures (throttling, stream still creating) are retried in a
// plain loop until ctx ends; permanent failures (stream missing or
// deleting) return immediately.
func (p *Producer) Put(ctx context.Context, key string, payload []byte) (string, uint64, error) {
	for {
		shardID, seq, err := p.stream.Append(ctx, key, payload, time.Now().UnixMilli())
		switch {
		case err == nil:
			return shardID, seq, nil
		case errors.Is(err, shardlog.ErrThrottled), errors.Is(err, shardlog.ErrStreamNotActive):
			p.log.Debug("append retryable", log.Str("key", key), log.Err(err))
			if !sleepCtx(ctx, p.backoff) {
				return "", 0, ctx.Err()
			}
		default:
			return "", 0, err
		}
	}
}

// event is the synthetic telemetry payload emitted by Loop.
type event struct {
	ID       string  `json:"id"`
	Device   string  `json:"device"`
	SentAtMs int64   `json:"sentAtMs"`
	Reading  float64 `json:"reading"`
}

// Loop emits one synthetic telemetry record per interval, cycling over
// sourceCount device keys, until ctx ends. It returns nil on cancellation
// and an error only on a permanent append failure.
func (p *Producer) Loop(ctx context.Context, interval time.Duration, sourceCount int) error {
	if sourceCount <= 0 {
		sourceCount = 1
	}
	gen := id.NewGenerator()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		key := fmt.Sprintf("device-%03d", n%sourceCount)
		n++
		payload, err := json.Marshal(event{
			ID:       gen.Next().String(),
			Device:   key,
			SentAtMs: time.Now().UnixMilli(),
			Reading:  rand.Float64() * 100,
		})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		shardID, seq, err := p.Put(ctx, key, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("put record: %w", err)
		}
		p.log.Debug("record appended",
			log.Str("key", key),
			log.Str("shard", shardID),
			log.Uint64("sequence", seq))
	}
}

// sleepCtx sleeps for d unless ctx ends first.
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
