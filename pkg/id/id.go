package id

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns a lowercase hex string.
func (i ID) String() string { return fmtHex(i[:]) }

// Ms returns the millisecond timestamp half of the ID.
func (i ID) Ms() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Seq returns the sequence half of the ID.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Time returns the timestamp half as a time.Time.
func (i ID) Time() time.Time { return time.UnixMilli(i.Ms()) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// NowMs returns current time in milliseconds since the Unix epoch. Tests
// override it to pin the clock.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new ID. A regressing clock pins to the last seen
// millisecond; sequence overflow within one millisecond waits for the next.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.seq == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.seq = 0
		} else {
			g.seq++
		}
	} else {
		g.seq = 0
	}

	g.lastMs = ms
	return fromParts(ms, g.seq)
}

func fromParts(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}

// fmtHex is a small, allocation-lean hex encoder for fixed-size IDs.
func fmtHex(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}
