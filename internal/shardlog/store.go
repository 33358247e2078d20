package shardlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
)

// Store provides stream admin, append, and read operations over one Pebble
// database. A single Store serves any number of streams.
type Store struct {
	db *pebblestore.DB

	// mu guards topology mutations and sequence assignment.
	mu      sync.Mutex
	lastSeq map[string]uint64 // "{stream}/{shard}" -> last assigned seq
}

// New creates a Store over the given database.
func New(db *pebblestore.DB) *Store {
	return &Store{db: db, lastSeq: make(map[string]uint64)}
}

// Create provisions a stream with shardCount open shards splitting the hash
// space evenly. Returns ErrStreamExists when the stream is already there.
func (s *Store) Create(ctx context.Context, name string, shardCount int) error {
	if name == "" {
		return errors.New("stream name is required")
	}
	if shardCount < 1 {
		return fmt.Errorf("shard count must be >= 1, got %d", shardCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadMeta(name); err == nil {
		return ErrStreamExists
	} else if !errors.Is(err, ErrStreamNotFound) {
		return err
	}

	now := time.Now().UnixMilli()
	meta := streamMeta{
		Name:             name,
		Status:           StatusActive,
		CreatedAtMs:      now,
		NextShardOrdinal: uint64(shardCount),
	}

	b := s.db.NewBatch()
	defer b.Close()

	// Slice [0, MaxUint32] into shardCount contiguous ranges.
	width := (uint64(math.MaxUint32) + 1) / uint64(shardCount)
	for i := 0; i < shardCount; i++ {
		start := uint64(i) * width
		end := start + width - 1
		if i == shardCount-1 {
			end = math.MaxUint32
		}
		sh := Shard{
			ID:          formatShardID(uint64(i)),
			HashStart:   uint32(start),
			HashEnd:     uint32(end),
			CreatedAtMs: now,
		}
		if err := putShard(b, name, sh); err != nil {
			return err
		}
	}
	if err := putMeta(b, meta); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Describe returns the stream info and its shards in id order.
func (s *Store) Describe(ctx context.Context, name string) (StreamInfo, []Shard, error) {
	meta, err := s.loadMeta(name)
	if err != nil {
		return StreamInfo{}, nil, err
	}
	shards, err := s.listShards(name)
	if err != nil {
		return StreamInfo{}, nil, err
	}
	info := StreamInfo{
		Name:        meta.Name,
		Status:      meta.Status,
		CreatedAtMs: meta.CreatedAtMs,
		ShardCount:  len(shards),
	}
	return info, shards, nil
}

// ListShards returns all shards of the stream in id order.
func (s *Store) ListShards(ctx context.Context, name string) ([]Shard, error) {
	if _, err := s.loadMeta(name); err != nil {
		return nil, err
	}
	return s.listShards(name)
}

// Delete tears the stream down: the meta row flips to DELETING so concurrent
// appends fail permanently, then every key of the stream is range-deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMeta(name)
	if err != nil {
		return err
	}
	meta.Status = StatusDeleting
	mb, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := s.db.Set(keyStreamMeta(name), mb); err != nil {
		return err
	}

	start, end := keyStreamSpan(name)
	if err := s.db.DeleteRange(start, end); err != nil {
		return err
	}
	// The meta key "sl/{name}/m" sits inside the span, so the stream is gone.
	if err := s.db.CompactRange(start, end); err != nil {
		return err
	}

	for k := range s.lastSeq {
		if len(k) > len(name) && k[:len(name)] == name && k[len(name)] == '/' {
			delete(s.lastSeq, k)
		}
	}
	return nil
}

// loadMeta reads the stream meta row.
func (s *Store) loadMeta(name string) (streamMeta, error) {
	raw, err := s.db.Get(keyStreamMeta(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return streamMeta{}, ErrStreamNotFound
		}
		return streamMeta{}, err
	}
	var meta streamMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return streamMeta{}, fmt.Errorf("decode stream meta: %w", err)
	}
	return meta, nil
}

// listShards scans the shard descriptor prefix.
func (s *Store) listShards(name string) ([]Shard, error) {
	prefix := keyShardPrefix(name)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var shards []Shard
	for iter.First(); iter.Valid(); iter.Next() {
		var sh Shard
		if err := json.Unmarshal(iter.Value(), &sh); err != nil {
			return nil, fmt.Errorf("decode shard row: %w", err)
		}
		shards = append(shards, sh)
	}
	return shards, nil
}

// getShard reads one shard descriptor.
func (s *Store) getShard(name, id string) (Shard, error) {
	raw, err := s.db.Get(keyShard(name, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Shard{}, ErrShardNotFound
		}
		return Shard{}, err
	}
	var sh Shard
	if err := json.Unmarshal(raw, &sh); err != nil {
		return Shard{}, fmt.Errorf("decode shard row: %w", err)
	}
	return sh, nil
}

func putShard(b *pebble.Batch, stream string, sh Shard) error {
	raw, err := json.Marshal(sh)
	if err != nil {
		return err
	}
	return b.Set(keyShard(stream, sh.ID), raw, nil)
}

func putMeta(b *pebble.Batch, meta streamMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Set(keyStreamMeta(meta.Name), raw, nil)
}

// formatShardID formats ordinals as fixed-width ids so key order matches
// creation order.
func formatShardID(ordinal uint64) string {
	return fmt.Sprintf("shard-%012d", ordinal)
}
