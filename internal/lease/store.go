package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
)

// Error classes surfaced by the lease table. Callers classify with
// errors.Is; external implementations are expected to map onto the same
// classes.
var (
	// ErrConflict reports that the row's lease counter moved past the
	// caller's view, or that another worker holds an unexpired lease.
	ErrConflict = errors.New("lease superseded")
	// ErrThrottled marks backpressure from the lease backend. The embedded
	// store never throttles; the sentinel classifies external stores.
	ErrThrottled = errors.New("lease store throttled")
	// ErrSchema reports a missing or misconfigured lease table.
	ErrSchema = errors.New("lease table not initialized")
	// ErrNotFound reports a missing lease row.
	ErrNotFound = errors.New("lease not found")
)

// Lease is one durable row: the ownership and checkpoint state of a shard.
type Lease struct {
	ShardID     string `json:"shardId"`
	Owner       string `json:"owner,omitempty"`
	Counter     uint64 `json:"counter"`
	ExpiresAtMs int64  `json:"expiresAtMs,omitempty"`
	// Checkpoint is the last checkpointed sequence; nil means no progress
	// has ever been recorded.
	Checkpoint *uint64 `json:"checkpoint,omitempty"`
	// Finished marks a fully drained shard whose final checkpoint is in.
	Finished bool `json:"finished,omitempty"`
}

// Unassigned reports whether the row has no owner.
func (l Lease) Unassigned() bool { return l.Owner == "" }

// Expired reports whether the owner's claim lapsed at nowMs.
func (l Lease) Expired(nowMs int64) bool {
	return l.Owner != "" && l.ExpiresAtMs <= nowMs
}

// tableMeta is the persisted table row.
type tableMeta struct {
	Application string `json:"application"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// Store is the embedded lease table for one application. Mutations are
// serialized under a mutex so conditional checks and writes are atomic;
// that is the whole ownership contract in-process.
type Store struct {
	db          *pebblestore.DB
	application string
	ttlMs       int64

	mu    sync.Mutex
	nowMs func() int64
}

// NewStore creates a lease table handle for an application.
func NewStore(db *pebblestore.DB, application string, ttl time.Duration) *Store {
	return &Store{
		db:          db,
		application: application,
		ttlMs:       ttl.Milliseconds(),
		nowMs:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Application returns the owning application name.
func (s *Store) Application() string { return s.application }

// EnsureTable provisions the table meta row. Idempotent.
func (s *Store) EnsureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Get(metaKey(s.application)); err == nil {
		return nil
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	raw, err := json.Marshal(tableMeta{
		Application: s.application,
		CreatedAtMs: s.nowMs(),
	})
	if err != nil {
		return err
	}
	return s.db.Set(metaKey(s.application), raw)
}

// DeleteTable removes the meta row and every lease row. Writes issued after
// this report ErrSchema until EnsureTable runs again.
func (s *Store) DeleteTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := tableRange(s.application)
	return s.db.DeleteRange(start, end)
}

// CreateIfAbsent writes a fresh unassigned row for a shard. Returns the
// stored row and whether this call created it.
func (s *Store) CreateIfAbsent(ctx context.Context, shardID string) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return Lease{}, false, err
	}
	if existing, ok, err := s.getRow(shardID); err != nil {
		return Lease{}, false, err
	} else if ok {
		return existing, false, nil
	}

	row := Lease{ShardID: shardID}
	if err := s.putRow(row); err != nil {
		return Lease{}, false, err
	}
	return row, true, nil
}

// Get reads one lease row.
func (s *Store) Get(ctx context.Context, shardID string) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return Lease{}, false, err
	}
	return s.getRow(shardID)
}

// List returns every lease row in shard-id order.
func (s *Store) List(ctx context.Context) ([]Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return nil, err
	}
	start, end := leaseRange(s.application)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var rows []Lease
	for iter.First(); iter.Valid(); iter.Next() {
		var row Lease
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("decode lease row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AcquireOrRenew claims or extends the lease on a shard. The caller passes
// the counter it last observed; if the stored counter differs, or another
// worker holds an unexpired lease, the attempt reports ErrConflict. On
// success the counter is bumped and the expiry stamped to now+TTL.
func (s *Store) AcquireOrRenew(ctx context.Context, shardID, workerID string, expectedCounter uint64) (Lease, error) {
	if workerID == "" {
		return Lease{}, errors.New("worker id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return Lease{}, err
	}
	row, ok, err := s.getRow(shardID)
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, fmt.Errorf("shard %s: %w", shardID, ErrNotFound)
	}
	if row.Counter != expectedCounter {
		return Lease{}, fmt.Errorf("shard %s: counter moved %d -> %d: %w",
			shardID, expectedCounter, row.Counter, ErrConflict)
	}
	now := s.nowMs()
	if row.Owner != "" && row.Owner != workerID && !row.Expired(now) {
		return Lease{}, fmt.Errorf("shard %s held by %s: %w", shardID, row.Owner, ErrConflict)
	}

	row.Owner = workerID
	row.Counter++
	row.ExpiresAtMs = now + s.ttlMs
	if err := s.putRow(row); err != nil {
		return Lease{}, err
	}
	return row, nil
}

// WriteCheckpoint persists the cursor for a shard, conditional on the lease
// counter. The stored checkpoint never regresses: a lower-or-equal sequence
// is a silent no-op. finished marks the shard fully drained.
func (s *Store) WriteCheckpoint(ctx context.Context, shardID string, counter uint64, seq uint64, finished bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return err
	}
	row, ok, err := s.getRow(shardID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("shard %s: %w", shardID, ErrNotFound)
	}
	if row.Counter != counter {
		return fmt.Errorf("shard %s: checkpoint with stale counter %d (stored %d): %w",
			shardID, counter, row.Counter, ErrConflict)
	}

	changed := false
	if row.Checkpoint == nil || seq > *row.Checkpoint {
		cp := seq
		row.Checkpoint = &cp
		changed = true
	}
	if finished && !row.Finished {
		row.Finished = true
		changed = true
	}
	if !changed {
		return nil
	}
	return s.putRow(row)
}

// Release clears ownership so another worker can claim the shard without
// waiting for expiry. The counter still bumps, invalidating stale writers.
func (s *Store) Release(ctx context.Context, shardID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTable(); err != nil {
		return err
	}
	row, ok, err := s.getRow(shardID)
	if err != nil {
		return err
	}
	if !ok || row.Owner != workerID {
		// Released, reassigned, or never held; nothing to do.
		return nil
	}
	row.Owner = ""
	row.Counter++
	row.ExpiresAtMs = 0
	return s.putRow(row)
}

// requireTable reports ErrSchema unless the meta row exists. Caller holds
// s.mu.
func (s *Store) requireTable() error {
	if _, err := s.db.Get(metaKey(s.application)); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("application %s: %w", s.application, ErrSchema)
		}
		return err
	}
	return nil
}

func (s *Store) getRow(shardID string) (Lease, bool, error) {
	raw, err := s.db.Get(leaseKey(s.application, shardID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Lease{}, false, nil
		}
		return Lease{}, false, err
	}
	var row Lease
	if err := json.Unmarshal(raw, &row); err != nil {
		return Lease{}, false, fmt.Errorf("decode lease row: %w", err)
	}
	return row, true, nil
}

func (s *Store) putRow(row Lease) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.db.Set(leaseKey(s.application, row.ShardID), raw)
}
