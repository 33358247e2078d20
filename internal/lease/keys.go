package lease

import "fmt"

// Key layout:
// - ls/{application}/meta           table metadata (JSON)
// - ls/{application}/lease/{shard}  lease row (JSON)

// tablePrefix returns the base prefix for an application's lease table.
func tablePrefix(application string) string {
	return fmt.Sprintf("ls/%s/", application)
}

// metaKey returns the table metadata key.
func metaKey(application string) []byte {
	return []byte(tablePrefix(application) + "meta")
}

// leaseKey returns the row key for one shard.
func leaseKey(application, shardID string) []byte {
	return []byte(tablePrefix(application) + "lease/" + shardID)
}

// leaseRange returns [start, end) bounds for scanning all lease rows.
func leaseRange(application string) ([]byte, []byte) {
	return keyRange(tablePrefix(application) + "lease/")
}

// tableRange returns [start, end) bounds covering the whole table.
func tableRange(application string) ([]byte, []byte) {
	return keyRange(tablePrefix(application))
}

// keyRange returns start and end keys for scanning with a prefix.
// The end key is exclusive (prefix + 0xFF suffix).
func keyRange(prefix string) ([]byte, []byte) {
	start := []byte(prefix)
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return start, end
}
