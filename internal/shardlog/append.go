package shardlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/cockroachdb/pebble"
)

// Append routes one record by partition key to the open shard covering the
// key's hash, assigns the next sequence for that shard, and commits the
// record together with the sequence row in one batch.
func (s *Store) Append(ctx context.Context, stream, key string, payload []byte, tsMs int64) (string, uint64, error) {
	if key == "" {
		return "", 0, errors.New("partition key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMeta(stream)
	if err != nil {
		return "", 0, err
	}
	switch meta.Status {
	case StatusActive:
	case StatusDeleting:
		return "", 0, ErrStreamDeleting
	default:
		return "", 0, ErrStreamNotActive
	}

	shards, err := s.listShards(stream)
	if err != nil {
		return "", 0, err
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	target, ok := routeOpen(shards, hash)
	if !ok {
		return "", 0, fmt.Errorf("no open shard covers hash %d", hash)
	}

	seq, err := s.nextSeq(stream, target.ID)
	if err != nil {
		return "", 0, err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(keyRecord(stream, target.ID, seq), EncodeRecord(key, payload, tsMs), nil); err != nil {
		return "", 0, err
	}
	var seqRow [8]byte
	binary.BigEndian.PutUint64(seqRow[:], seq)
	if err := b.Set(keySeq(stream, target.ID), seqRow[:], nil); err != nil {
		return "", 0, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return "", 0, err
	}

	s.lastSeq[seqCacheKey(stream, target.ID)] = seq
	return target.ID, seq, nil
}

// routeOpen picks the open shard whose hash range covers hash.
func routeOpen(shards []Shard, hash uint32) (Shard, bool) {
	for _, sh := range shards {
		if sh.Closed {
			continue
		}
		if hash >= sh.HashStart && hash <= sh.HashEnd {
			return sh, true
		}
	}
	return Shard{}, false
}

// nextSeq returns lastSeq+1 for the shard, loading the durable row on first
// use. Caller holds s.mu.
func (s *Store) nextSeq(stream, shard string) (uint64, error) {
	ck := seqCacheKey(stream, shard)
	if last, ok := s.lastSeq[ck]; ok {
		return last + 1, nil
	}
	last, err := s.readSeq(stream, shard)
	if err != nil {
		return 0, err
	}
	s.lastSeq[ck] = last
	return last + 1, nil
}

// readSeq loads the durable last-sequence row; a missing row means 0.
func (s *Store) readSeq(stream, shard string) (uint64, error) {
	raw, err := s.db.Get(keySeq(stream, shard))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw[:8]), nil
}

func seqCacheKey(stream, shard string) string { return stream + "/" + shard }
