// Package producer is the append path: it puts keyed records onto the
// stream with a plain retry loop for transient failures, and knows how to
// create a stream and wait for it to become active.
package producer
