// Package consumer implements the shard-leasing worker pool that drains a
// sharded stream: shard discovery, lease acquisition and renewal, per-shard
// record processing with bounded retries, and durable monotonic checkpoints.
//
// One Coordinator runs per process. It owns one shard worker goroutine per
// leased shard; each worker pulls batches, drives a RecordProcessor, and
// persists its cursor through a Checkpointer. Delivery is at-least-once and
// ordered within a shard only.
package consumer
