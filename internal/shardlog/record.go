package shardlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Record frame: varint headerLen | header | payload | crc32c(header|payload).
// The header is 8 bytes big-endian creation-time ms followed by the raw
// partition key bytes.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord frames a record for storage.
func EncodeRecord(key string, payload []byte, tsMs int64) []byte {
	header := make([]byte, 0, 8+len(key))
	header = appendBE8(header, uint64(tsMs))
	header = append(header, key...)

	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

type decoded struct {
	TsMs    int64
	Key     string
	Payload []byte
}

// DecodeRecord parses a stored frame. A short, torn, or checksum-failing
// frame reports ok=false.
func DecodeRecord(b []byte) (decoded, bool) {
	if len(b) < 1+8+4 {
		return decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen < 8 {
		return decoded{}, false
	}
	if int(n)+int(hlen)+4 > len(b) {
		return decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return decoded{}, false
	}
	return decoded{
		TsMs:    int64(binary.BigEndian.Uint64(header[:8])),
		Key:     string(header[8:]),
		Payload: append([]byte(nil), payload...),
	}, true
}
