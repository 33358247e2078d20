// Package lease implements the durable per-shard lease/checkpoint table.
//
// One table per consumer application holds one row per shard. Every row
// carries a lease counter that increments on each acquisition or renewal;
// all mutations are conditional on the caller's view of that counter, so a
// worker whose lease was superseded cannot acquire, renew, or checkpoint.
// The checkpoint inside a row only moves forward.
//
// The table must be provisioned with EnsureTable before use; operations on
// a missing table report ErrSchema so callers can tell an operator mistake
// from a transient fault.
package lease
