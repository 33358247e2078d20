// Package shardlog implements the embedded sharded append-only stream.
//
// A stream is a named set of shards. Each shard owns a contiguous range of
// the uint32 hash space; records route to the open shard covering the
// crc32(IEEE) hash of their partition key and receive a per-shard sequence
// number that strictly increases in read order. Shards close when they split
// or merge; closed shards accept no appends but remain readable until the
// stream is deleted.
//
// All state lives in a Pebble keyspace (see keys.go), so producers and
// consumers in the same process share one durable view.
package shardlog
