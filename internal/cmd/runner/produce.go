package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodestream/lode/internal/producer"
	logpkg "github.com/lodestream/lode/pkg/log"
)

// Produce ensures the stream is active and runs the telemetry producer loop
// until the context is cancelled or a signal arrives.
func Produce(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	logger.Info("starting producer",
		logpkg.Str("stream", cfg.Stream),
		logpkg.Dur("interval", cfg.Producer.Interval()),
		logpkg.Int("sources", cfg.Producer.SourceCount))
	p := producer.New(view, cfg.Consumer.RetryBackoff(), logger)
	return p.Loop(sctx, cfg.Producer.Interval(), cfg.Producer.SourceCount)
}
