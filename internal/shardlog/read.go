package shardlog

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// PositionKind selects how a read resolves its starting point.
type PositionKind int

const (
	// PositionTrimHorizon reads from the oldest retained record.
	PositionTrimHorizon PositionKind = iota
	// PositionLatest reads only records appended after the position is
	// first resolved.
	PositionLatest
	// PositionAfter reads records with sequence strictly greater than Seq.
	PositionAfter
)

// Position is a cursor into one shard.
type Position struct {
	Kind PositionKind
	Seq  uint64
}

// TrimHorizon returns the oldest-record position.
func TrimHorizon() Position { return Position{Kind: PositionTrimHorizon} }

// Latest returns the tip position; it resolves on first use.
func Latest() Position { return Position{Kind: PositionLatest} }

// After returns the position just past seq.
func After(seq uint64) Position { return Position{Kind: PositionAfter, Seq: seq} }

// Batch is one GetRecords result. Next always carries a resolved
// PositionAfter cursor so subsequent reads are stable, and Exhausted reports
// that the shard is closed with nothing left after Next.
type Batch struct {
	Records   []Record
	Next      Position
	Exhausted bool
}

// GetRecords reads up to max records from one shard starting at from.
func (s *Store) GetRecords(ctx context.Context, stream, shardID string, from Position, max int) (Batch, error) {
	if _, err := s.loadMeta(stream); err != nil {
		return Batch{}, err
	}
	sh, err := s.getShard(stream, shardID)
	if err != nil {
		return Batch{}, err
	}
	last, err := s.readSeq(stream, shardID)
	if err != nil {
		return Batch{}, err
	}

	var after uint64
	switch from.Kind {
	case PositionTrimHorizon:
		after = 0
	case PositionLatest:
		after = last
	case PositionAfter:
		after = from.Seq
	}

	if max < 1 {
		max = 1
	}

	low := keyRecord(stream, shardID, after+1)
	hi := keyRecord(stream, shardID, ^uint64(0))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return Batch{}, err
	}
	defer iter.Close()

	records := make([]Record, 0, max)
	next := after
	for iter.First(); iter.Valid() && len(records) < max; iter.Next() {
		key := iter.Key()
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		next = seq
		dec, ok := DecodeRecord(iter.Value())
		if !ok {
			// Torn or corrupt row; the cursor still advances past it.
			continue
		}
		records = append(records, Record{
			Sequence:    seq,
			Key:         dec.Key,
			Data:        dec.Payload,
			CreatedAtMs: dec.TsMs,
		})
	}

	return Batch{
		Records:   records,
		Next:      After(next),
		Exhausted: sh.Closed && next >= last,
	}, nil
}
