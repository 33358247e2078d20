package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lodestream/lode/internal/shardlog"
	"github.com/lodestream/lode/pkg/log"
)

// StreamAdmin is the control surface needed to create a stream and watch it
// become active. *shardlog.View satisfies it.
type StreamAdmin interface {
	Stream() string
	Create(ctx context.Context, shardCount int) error
	Describe(ctx context.Context) (shardlog.StreamInfo, []shardlog.Shard, error)
}

// EnsureStreamActive creates the stream with shardCount shards if it does
// not exist, then polls until it reports ACTIVE. A stream stuck in DELETING
// fails immediately; anything else fails after timeout.
func EnsureStreamActive(ctx context.Context, admin StreamAdmin, shardCount int, poll, timeout time.Duration, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNop()
	}
	deadline := time.Now().Add(timeout)
	created := false
	for {
		info, _, err := admin.Describe(ctx)
		switch {
		case err == nil:
			switch info.Status {
			case shardlog.StatusActive:
				return nil
			case shardlog.StatusDeleting:
				return fmt.Errorf("stream %s is being deleted", admin.Stream())
			default:
				logger.Debug("waiting for stream to become active",
					log.Str("stream", admin.Stream()),
					log.Str("status", string(info.Status)))
			}
		case errors.Is(err, shardlog.ErrStreamNotFound):
			if created {
				break
			}
			logger.Info("creating stream",
				log.Str("stream", admin.Stream()),
				log.Int("shards", shardCount))
			if err := admin.Create(ctx, shardCount); err != nil && !errors.Is(err, shardlog.ErrStreamExists) {
				return fmt.Errorf("create stream %s: %w", admin.Stream(), err)
			}
			created = true
			continue
		default:
			return fmt.Errorf("describe stream %s: %w", admin.Stream(), err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("stream %s not active after %s", admin.Stream(), timeout)
		}
		if !sleepCtx(ctx, poll) {
			return ctx.Err()
		}
	}
}
