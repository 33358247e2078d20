// Package id provides a 128-bit, lexicographically sortable identifier.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves chronological order, and IDs generated
// within the same millisecond remain strictly increasing by sequence.
//
// # Monotonicity
//
// The Generator guarantees per-process monotonicity: if the system clock
// regresses it pins to the last seen millisecond and keeps incrementing the
// sequence, and if the sequence would overflow within one millisecond it
// waits for the next millisecond before emitting.
package id
