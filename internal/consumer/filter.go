package consumer

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated against each decoded record
// before it reaches the handler. The zero Filter matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression yields a disabled filter that
// matches all records.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("shard", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Decoded payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether an expression is loaded.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the expression against rec. Evaluation errors count as a
// non-match. When disabled, Match always returns true.
func (f Filter) Match(rec Record) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"shard":    rec.ShardID,
		"key":      rec.Key,
		"sequence": int64(rec.Sequence),
		"ts_ms":    rec.TsMs,
		"size":     int64(len(rec.Data)),
		"text":     string(rec.Data),
		"json":     rec.Value,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
