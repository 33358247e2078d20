package runner

import (
	"fmt"
	"path/filepath"

	cfgpkg "github.com/lodestream/lode/internal/config"
	"github.com/lodestream/lode/internal/runtime"
	"github.com/lodestream/lode/internal/shardlog"
	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
	logpkg "github.com/lodestream/lode/pkg/log"
)

// Options carries everything a command entrypoint needs to open the runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// storeDir places the store under <data-dir>/store, falling back to the
// config's data dir and then the OS default.
func storeDir(opts Options) string {
	dir := opts.DataDir
	if dir == "" {
		dir = opts.Config.DataDir
	}
	if dir == "" {
		dir = cfgpkg.DefaultDataDir()
	}
	return filepath.Join(dir, "store")
}

// openRuntime opens storage and builds the process logger from the config's
// log section.
func openRuntime(opts Options) (*runtime.Runtime, logpkg.Logger, error) {
	logger, err := newLogger(opts.Config.Log)
	if err != nil {
		return nil, nil, err
	}
	logpkg.RedirectStdLog(logger)

	dir := storeDir(opts)
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: opts.Fsync, Config: opts.Config})
	if err != nil {
		return nil, nil, fmt.Errorf("open data dir %s: %w", dir, err)
	}
	return rt, logger, nil
}

func newLogger(cfg cfgpkg.LogConfig) (logpkg.Logger, error) {
	level, err := logpkg.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logpkg.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logpkg.NewLogger(logpkg.WithLevel(level), logpkg.WithFormat(format)), nil
}

func initialPosition(cfg cfgpkg.Config) shardlog.Position {
	if cfg.InitialPosition == cfgpkg.InitialPositionTrimHorizon {
		return shardlog.TrimHorizon()
	}
	return shardlog.Latest()
}
