package shardlog

import "errors"

// StreamStatus is the lifecycle state of a stream.
type StreamStatus string

// Stream lifecycle states
const (
	StatusCreating StreamStatus = "CREATING"
	StatusActive   StreamStatus = "ACTIVE"
	StatusDeleting StreamStatus = "DELETING"
)

// StreamInfo is the externally visible description of a stream.
type StreamInfo struct {
	Name        string       `json:"name"`
	Status      StreamStatus `json:"status"`
	CreatedAtMs int64        `json:"createdAtMs"`
	ShardCount  int          `json:"shardCount"`
}

// Shard describes one shard of a stream. Parent ids are recorded when the
// shard was produced by a split or merge; a closed shard accepts no appends.
type Shard struct {
	ID          string   `json:"id"`
	ParentIDs   []string `json:"parentIds,omitempty"`
	HashStart   uint32   `json:"hashStart"`
	HashEnd     uint32   `json:"hashEnd"`
	Closed      bool     `json:"closed"`
	CreatedAtMs int64    `json:"createdAtMs"`
}

// Record is a single stored record as returned by GetRecords.
type Record struct {
	Sequence    uint64
	Key         string
	Data        []byte
	CreatedAtMs int64
}

// streamMeta is the persisted stream row.
type streamMeta struct {
	Name        string       `json:"name"`
	Status      StreamStatus `json:"status"`
	CreatedAtMs int64        `json:"createdAtMs"`
	// NextShardOrdinal feeds shard id assignment across splits/merges.
	NextShardOrdinal uint64 `json:"nextShardOrdinal"`
}

// Errors reported by the embedded stream. External stream implementations
// are expected to map onto the same classes.
var (
	ErrStreamNotFound  = errors.New("stream not found")
	ErrStreamExists    = errors.New("stream already exists")
	ErrStreamNotActive = errors.New("stream not active")
	ErrStreamDeleting  = errors.New("stream is being deleted")
	ErrShardNotFound   = errors.New("shard not found")
	ErrShardClosed     = errors.New("shard is closed")
	// ErrThrottled marks backpressure from the stream backend. The embedded
	// store never throttles; the sentinel classifies external sources.
	ErrThrottled = errors.New("stream throttled")
)
