package shardlog

import (
	"context"
	"fmt"
	"time"
)

// Split closes an open shard and replaces it with two children halving its
// hash range. Returns the children.
func (s *Store) Split(ctx context.Context, stream, shardID string) ([]Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMeta(stream)
	if err != nil {
		return nil, err
	}
	if meta.Status != StatusActive {
		return nil, ErrStreamNotActive
	}
	parent, err := s.getShard(stream, shardID)
	if err != nil {
		return nil, err
	}
	if parent.Closed {
		return nil, ErrShardClosed
	}
	if parent.HashStart == parent.HashEnd {
		return nil, fmt.Errorf("shard %s spans a single hash value and cannot split", shardID)
	}

	now := time.Now().UnixMilli()
	mid := parent.HashStart + (parent.HashEnd-parent.HashStart)/2
	left := Shard{
		ID:          formatShardID(meta.NextShardOrdinal),
		ParentIDs:   []string{parent.ID},
		HashStart:   parent.HashStart,
		HashEnd:     mid,
		CreatedAtMs: now,
	}
	right := Shard{
		ID:          formatShardID(meta.NextShardOrdinal + 1),
		ParentIDs:   []string{parent.ID},
		HashStart:   mid + 1,
		HashEnd:     parent.HashEnd,
		CreatedAtMs: now,
	}
	meta.NextShardOrdinal += 2
	parent.Closed = true

	b := s.db.NewBatch()
	defer b.Close()
	for _, sh := range []Shard{parent, left, right} {
		if err := putShard(b, stream, sh); err != nil {
			return nil, err
		}
	}
	if err := putMeta(b, meta); err != nil {
		return nil, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return []Shard{left, right}, nil
}

// Merge closes two adjacent open shards and replaces them with one child
// spanning the union of their hash ranges. Returns the child.
func (s *Store) Merge(ctx context.Context, stream, aID, bID string) (Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMeta(stream)
	if err != nil {
		return Shard{}, err
	}
	if meta.Status != StatusActive {
		return Shard{}, ErrStreamNotActive
	}
	a, err := s.getShard(stream, aID)
	if err != nil {
		return Shard{}, err
	}
	b, err := s.getShard(stream, bID)
	if err != nil {
		return Shard{}, err
	}
	if a.Closed || b.Closed {
		return Shard{}, ErrShardClosed
	}
	// Normalize so a is the lower range.
	if b.HashStart < a.HashStart {
		a, b = b, a
	}
	if a.HashEnd+1 != b.HashStart {
		return Shard{}, fmt.Errorf("shards %s and %s are not adjacent", aID, bID)
	}

	now := time.Now().UnixMilli()
	child := Shard{
		ID:          formatShardID(meta.NextShardOrdinal),
		ParentIDs:   []string{a.ID, b.ID},
		HashStart:   a.HashStart,
		HashEnd:     b.HashEnd,
		CreatedAtMs: now,
	}
	meta.NextShardOrdinal++
	a.Closed = true
	b.Closed = true

	wb := s.db.NewBatch()
	defer wb.Close()
	for _, sh := range []Shard{a, b, child} {
		if err := putShard(wb, stream, sh); err != nil {
			return Shard{}, err
		}
	}
	if err := putMeta(wb, meta); err != nil {
		return Shard{}, err
	}
	if err := s.db.CommitBatch(ctx, wb); err != nil {
		return Shard{}, err
	}
	return child, nil
}
