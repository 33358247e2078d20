package shardlog

import "context"

// View binds a Store to one stream name so callers hold a single handle for
// the stream they work with.
type View struct {
	s      *Store
	stream string
}

// View returns a handle bound to the named stream. The stream does not have
// to exist yet.
func (s *Store) View(stream string) *View {
	return &View{s: s, stream: stream}
}

// Stream returns the bound stream name.
func (v *View) Stream() string { return v.stream }

// Create provisions the bound stream. See Store.Create.
func (v *View) Create(ctx context.Context, shardCount int) error {
	return v.s.Create(ctx, v.stream, shardCount)
}

// Describe returns stream info and shards. See Store.Describe.
func (v *View) Describe(ctx context.Context) (StreamInfo, []Shard, error) {
	return v.s.Describe(ctx, v.stream)
}

// ListShards returns all shards in id order. See Store.ListShards.
func (v *View) ListShards(ctx context.Context) ([]Shard, error) {
	return v.s.ListShards(ctx, v.stream)
}

// Append routes and appends one record. See Store.Append.
func (v *View) Append(ctx context.Context, key string, payload []byte, tsMs int64) (string, uint64, error) {
	return v.s.Append(ctx, v.stream, key, payload, tsMs)
}

// GetRecords reads up to max records from one shard. See Store.GetRecords.
func (v *View) GetRecords(ctx context.Context, shardID string, from Position, max int) (Batch, error) {
	return v.s.GetRecords(ctx, v.stream, shardID, from, max)
}

// Delete tears the bound stream down. See Store.Delete.
func (v *View) Delete(ctx context.Context) error {
	return v.s.Delete(ctx, v.stream)
}
