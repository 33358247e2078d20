// Package log provides lode's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog with a text or JSON handler, so callers get slog's
// formatting and attribute handling while the rest of the codebase stays
// against this facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.TextFormat),
//	)
//	l = l.With(log.Component("coordinator"), log.Str("stream", "orders"))
//	l.Info("worker started", log.Str("shard", "shard-000000000001"))
//
// Levels are dynamic: SetLevel on any logger takes effect for every logger
// derived from the same root via With.
package log
