package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
)

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, w *shardWorker) {
	t.Helper()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker for %s did not stop", w.shard.ID)
	}
}

// fakeLeaseStore mirrors the real store's conditional semantics in memory
// and lets tests script failures per call.
type fakeLeaseStore struct {
	mu    sync.Mutex
	table bool
	ttlMs int64
	rows  map[string]lease.Lease

	// acquireErrs and writeErrs are popped one per call; a nil entry means
	// "behave normally".
	acquireErrs []error
	writeErrs   []error
	writes      []cpWrite
}

type cpWrite struct {
	shardID  string
	counter  uint64
	seq      uint64
	finished bool
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{
		table: true,
		ttlMs: 60_000,
		rows:  make(map[string]lease.Lease),
	}
}

func (f *fakeLeaseStore) EnsureTable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table = true
	return nil
}

func (f *fakeLeaseStore) List(ctx context.Context) ([]lease.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.table {
		return nil, lease.ErrSchema
	}
	out := make([]lease.Lease, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeLeaseStore) CreateIfAbsent(ctx context.Context, shardID string) (lease.Lease, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.table {
		return lease.Lease{}, false, lease.ErrSchema
	}
	if row, ok := f.rows[shardID]; ok {
		return row, false, nil
	}
	row := lease.Lease{ShardID: shardID}
	f.rows[shardID] = row
	return row, true, nil
}

func (f *fakeLeaseStore) AcquireOrRenew(ctx context.Context, shardID, workerID string, expectedCounter uint64) (lease.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		if err != nil {
			return lease.Lease{}, err
		}
	}
	if !f.table {
		return lease.Lease{}, lease.ErrSchema
	}
	row, ok := f.rows[shardID]
	if !ok {
		return lease.Lease{}, lease.ErrNotFound
	}
	if row.Counter != expectedCounter {
		return lease.Lease{}, lease.ErrConflict
	}
	now := time.Now().UnixMilli()
	if !row.Unassigned() && row.Owner != workerID && !row.Expired(now) {
		return lease.Lease{}, lease.ErrConflict
	}
	row.Owner = workerID
	row.Counter++
	row.ExpiresAtMs = now + f.ttlMs
	f.rows[shardID] = row
	return row, nil
}

func (f *fakeLeaseStore) WriteCheckpoint(ctx context.Context, shardID string, counter uint64, seq uint64, finished bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, cpWrite{shardID: shardID, counter: counter, seq: seq, finished: finished})
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	if !f.table {
		return lease.ErrSchema
	}
	row, ok := f.rows[shardID]
	if !ok {
		return lease.ErrNotFound
	}
	if row.Counter != counter {
		return lease.ErrConflict
	}
	if row.Checkpoint == nil || seq > *row.Checkpoint {
		cp := seq
		row.Checkpoint = &cp
	}
	if finished {
		row.Finished = true
	}
	f.rows[shardID] = row
	return nil
}

func (f *fakeLeaseStore) Release(ctx context.Context, shardID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.table {
		return lease.ErrSchema
	}
	row, ok := f.rows[shardID]
	if !ok || row.Owner != workerID {
		return nil
	}
	row.Owner = ""
	row.Counter++
	row.ExpiresAtMs = 0
	f.rows[shardID] = row
	return nil
}

func (f *fakeLeaseStore) row(shardID string) lease.Lease {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[shardID]
}

func (f *fakeLeaseStore) setRow(row lease.Lease) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ShardID] = row
}

func (f *fakeLeaseStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeLeaseStore) writeSeqs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.writes))
	for i, w := range f.writes {
		out[i] = w.seq
	}
	return out
}

func (f *fakeLeaseStore) lastWrite() cpWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return cpWrite{}
	}
	return f.writes[len(f.writes)-1]
}

// fakeSource serves scripted shards and records with the same cursor
// semantics as the real log.
type fakeSource struct {
	mu      sync.Mutex
	shards  []shardlog.Shard
	records map[string][]shardlog.Record
	listErr error
}

func newFakeSource(shards ...shardlog.Shard) *fakeSource {
	return &fakeSource{
		shards:  shards,
		records: make(map[string][]shardlog.Record),
	}
}

func (f *fakeSource) add(shardID, key string, data []byte) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.records[shardID]
	seq := uint64(1)
	if len(recs) > 0 {
		seq = recs[len(recs)-1].Sequence + 1
	}
	f.records[shardID] = append(recs, shardlog.Record{
		Sequence:    seq,
		Key:         key,
		Data:        data,
		CreatedAtMs: time.Now().UnixMilli(),
	})
	return seq
}

func (f *fakeSource) closeShard(shardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.shards {
		if f.shards[i].ID == shardID {
			f.shards[i].Closed = true
		}
	}
}

func (f *fakeSource) ListShards(ctx context.Context) ([]shardlog.Shard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]shardlog.Shard, len(f.shards))
	copy(out, f.shards)
	return out, nil
}

func (f *fakeSource) GetRecords(ctx context.Context, shardID string, from shardlog.Position, max int) (shardlog.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sh *shardlog.Shard
	for i := range f.shards {
		if f.shards[i].ID == shardID {
			sh = &f.shards[i]
		}
	}
	if sh == nil {
		return shardlog.Batch{}, shardlog.ErrShardNotFound
	}
	recs := f.records[shardID]
	var last uint64
	if len(recs) > 0 {
		last = recs[len(recs)-1].Sequence
	}
	var after uint64
	switch from.Kind {
	case shardlog.PositionTrimHorizon:
		after = 0
	case shardlog.PositionLatest:
		after = last
	case shardlog.PositionAfter:
		after = from.Seq
	}
	var out []shardlog.Record
	next := after
	for _, r := range recs {
		if r.Sequence <= after {
			continue
		}
		if len(out) == max {
			break
		}
		out = append(out, r)
		next = r.Sequence
	}
	return shardlog.Batch{
		Records:   out,
		Next:      shardlog.After(next),
		Exhausted: sh.Closed && next >= last,
	}, nil
}

// captureHandler records applied records and can be told to fail per key.
type captureHandler struct {
	mu       sync.Mutex
	failures map[string]int
	poison   map[string]bool
	attempts map[string]int
	recs     []Record
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		failures: make(map[string]int),
		poison:   make(map[string]bool),
		attempts: make(map[string]int),
	}
}

func (h *captureHandler) failTimes(key string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[key] = n
}

func (h *captureHandler) failAlways(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.poison[key] = true
}

func (h *captureHandler) Handle(ctx context.Context, rec Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[rec.Key]++
	if h.poison[rec.Key] {
		return errors.New("handler: dependency down")
	}
	if h.failures[rec.Key] > 0 {
		h.failures[rec.Key]--
		return errors.New("handler: dependency down")
	}
	h.recs = append(h.recs, rec)
	return nil
}

func (h *captureHandler) attemptCount(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[key]
}

func (h *captureHandler) applied() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.recs))
	copy(out, h.recs)
	return out
}

func (h *captureHandler) appliedKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.recs))
	for i, r := range h.recs {
		out[i] = r.Key
	}
	return out
}

func (h *captureHandler) appliedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recs)
}
