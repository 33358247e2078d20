package shardlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - sl/{stream}/m                      stream metadata (JSON)
// - sl/{stream}/s/{shardID}            shard descriptor (JSON)
// - sl/{stream}/q/{shardID}            last assigned sequence (8 bytes BE)
// - sl/{stream}/r/{shardID}/{seq_be8}  record frame

var (
	sep          = byte('/')
	streamPrefix = []byte("sl/")
	metaSuffix   = []byte("/m")
	shardSeg     = []byte("/s/")
	seqSeg       = []byte("/q/")
	recordSeg    = []byte("/r/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyStreamMeta builds the stream metadata key.
func keyStreamMeta(stream string) []byte {
	k := make([]byte, 0, len(stream)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

// keyStreamSpan returns the [start, end) bounds covering every key of a
// stream: all of them share the "sl/{stream}/" prefix.
func keyStreamSpan(stream string) (start, end []byte) {
	start = make([]byte, 0, len(stream)+8)
	start = append(start, streamPrefix...)
	start = append(start, stream...)
	start = append(start, sep)

	end = make([]byte, len(start))
	copy(end, start)
	end[len(end)-1] = sep + 1
	return start, end
}

// keyShard builds the shard descriptor key.
func keyShard(stream, shardID string) []byte {
	k := make([]byte, 0, len(stream)+len(shardID)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, shardSeg...)
	k = append(k, shardID...)
	return k
}

// keyShardPrefix returns the prefix under which all shard descriptors live.
func keyShardPrefix(stream string) []byte {
	k := make([]byte, 0, len(stream)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, shardSeg...)
	return k
}

// keySeq builds the last-sequence key for a shard.
func keySeq(stream, shardID string) []byte {
	k := make([]byte, 0, len(stream)+len(shardID)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, seqSeg...)
	k = append(k, shardID...)
	return k
}

// keyRecord builds a record key with a big-endian sequence for proper ordering.
func keyRecord(stream, shardID string, seq uint64) []byte {
	k := make([]byte, 0, len(stream)+len(shardID)+20)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, recordSeg...)
	k = append(k, shardID...)
	k = append(k, sep)
	k = appendBE8(k, seq)
	return k
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
