package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodestream/lode/internal/consumer"
	"github.com/lodestream/lode/internal/producer"
	logpkg "github.com/lodestream/lode/pkg/log"
)

// Run starts the consumer coordinator and blocks until the context is
// cancelled or a signal arrives. It returns an error when any shard worker
// terminated on an unhandled failure, which the CLI maps to a non-zero exit.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// don't pass a signal-aware context still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter, err := consumer.NewFilter(opts.Config.Consumer.Filter)
	if err != nil {
		return fmt.Errorf("parse filter: %w", err)
	}

	rt, logger, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	view := rt.StreamView()
	if err := producer.EnsureStreamActive(sctx, view, cfg.ShardCount,
		cfg.Producer.EnsurePoll(), cfg.Producer.EnsureTimeout(), logger); err != nil {
		return err
	}

	copts := consumer.Options{
		InitialPosition:    initialPosition(cfg),
		LeaseTTL:           cfg.Consumer.LeaseTTL(),
		CheckpointInterval: cfg.Consumer.CheckpointInterval(),
		RetryCount:         cfg.Consumer.RetryCount,
		RetryBackoff:       cfg.Consumer.RetryBackoff(),
		BatchSize:          cfg.Consumer.BatchSize,
		PollIdle:           cfg.Consumer.PollIdle(),
		Filter:             filter,
		Logger:             logger,
	}
	factory := consumer.NewProcessorFactory(consumer.JSONDecoder{}, applyHandler(logger), copts)
	coord := consumer.New(view, rt.Leases(), factory, copts)

	logger.Info("starting consumer",
		logpkg.Str("application", cfg.Application),
		logpkg.Str("stream", cfg.Stream),
		logpkg.Str("worker", coord.WorkerID()),
		logpkg.Str("position", cfg.InitialPosition))
	return coord.Run(sctx)
}

// applyHandler logs each record. It stands in for a real downstream apply;
// returning an error here would engage the bounded retry policy.
func applyHandler(logger logpkg.Logger) consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, rec consumer.Record) error {
		logger.Info("record",
			logpkg.Str("shard", rec.ShardID),
			logpkg.Uint64("seq", rec.Sequence),
			logpkg.Str("key", rec.Key),
			logpkg.Int("bytes", len(rec.Data)))
		return nil
	})
}

// DeleteResources removes the configured stream and lease table.
func DeleteResources(ctx context.Context, opts Options) error {
	rt, logger, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config()
	if err := rt.DeleteResources(ctx); err != nil {
		return err
	}
	logger.Info("resources deleted",
		logpkg.Str("stream", cfg.Stream),
		logpkg.Str("application", cfg.Application))
	return nil
}
