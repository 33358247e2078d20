package log

import "time"

// Field is a single structured key/value pair attached to a log message.
type Field struct {
	Key   string
	Value any
}

// Str returns a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 returns a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur returns a duration field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err returns an "error" field. A nil error renders as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any returns a field with an arbitrary value.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Component returns the conventional "component" field used to tag a logger
// with the subsystem it belongs to.
func Component(name string) Field { return Str("component", name) }
