package runtime

import (
	"context"
	"errors"
	"fmt"

	cfgpkg "github.com/lodestream/lode/internal/config"
	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// Runtime wires storage, config, and facades for a single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	streams *shardlog.Store
	leases  *lease.Store
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.Config.FsyncInterval(),
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		db:      db,
		config:  opts.Config,
		streams: shardlog.New(db),
		leases:  lease.NewStore(db, opts.Config.Application, opts.Config.Consumer.LeaseTTL()),
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Streams returns the stream store.
func (r *Runtime) Streams() *shardlog.Store { return r.streams }

// StreamView returns a handle bound to the configured stream.
func (r *Runtime) StreamView() *shardlog.View { return r.streams.View(r.config.Stream) }

// Leases returns the lease store named after the configured application.
func (r *Runtime) Leases() *lease.Store { return r.leases }

// DeleteResources removes the configured stream and the application's lease
// table. Missing pieces are not an error so the command is rerunnable.
func (r *Runtime) DeleteResources(ctx context.Context) error {
	if err := r.streams.Delete(ctx, r.config.Stream); err != nil && !errors.Is(err, shardlog.ErrStreamNotFound) {
		return fmt.Errorf("delete stream %s: %w", r.config.Stream, err)
	}
	if err := r.leases.DeleteTable(ctx); err != nil {
		return fmt.Errorf("delete lease table %s: %w", r.leases.Application(), err)
	}
	return nil
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
