// Package runner exposes the shared entrypoints used by the CLI: Run starts
// the consumer coordinator, Produce runs the telemetry producer loop, and
// DeleteResources tears down the stream and lease table. Each opens the
// runtime, wires logging from config, and blocks until its context is
// cancelled.
//
// Example:
//
//	opts := runner.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeInterval, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = runner.Run(ctx, opts)
package runner
