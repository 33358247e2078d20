package consumer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lodestream/lode/internal/lease"
	"github.com/lodestream/lode/internal/shardlog"
	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
)

func coordinatorOptions() Options {
	o := testOptions()
	o.LeaseTTL = 150 * time.Millisecond
	o.PollIdle = 2 * time.Millisecond
	o.RetryBackoff = 0
	return o
}

func TestTickDiscoversShardsOnce(t *testing.T) {
	source := newFakeSource(
		shardlog.Shard{ID: "shard-a"},
		shardlog.Shard{ID: "shard-b"},
	)
	store := newFakeLeaseStore()
	handler := newCaptureHandler()
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, handler, opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.drain()
	}()

	c.tick(ctx)
	if len(c.workers) != 2 {
		t.Fatalf("workers = %d, want 2", len(c.workers))
	}
	for _, id := range []string{"shard-a", "shard-b"} {
		if row := store.row(id); row.ShardID != id {
			t.Fatalf("no lease row created for %s", id)
		}
	}

	// A second pass never doubles up live workers.
	c.tick(ctx)
	if len(c.workers) != 2 {
		t.Fatalf("workers = %d after second tick, want 2", len(c.workers))
	}
}

func TestTickSkipsHeldAndFinishedShards(t *testing.T) {
	source := newFakeSource(
		shardlog.Shard{ID: "shard-held"},
		shardlog.Shard{ID: "shard-done"},
		shardlog.Shard{ID: "shard-free"},
	)
	store := newFakeLeaseStore()
	store.setRow(lease.Lease{
		ShardID:     "shard-held",
		Owner:       "other-worker",
		Counter:     3,
		ExpiresAtMs: time.Now().Add(time.Hour).UnixMilli(),
	})
	store.setRow(lease.Lease{ShardID: "shard-done", Finished: true})
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, newCaptureHandler(), opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.drain()
	}()

	c.tick(ctx)
	if _, ok := c.workers["shard-held"]; ok {
		t.Fatalf("spawned a worker for a held, unexpired lease")
	}
	if _, ok := c.workers["shard-done"]; ok {
		t.Fatalf("spawned a worker for a finished shard")
	}
	if _, ok := c.workers["shard-free"]; !ok {
		t.Fatalf("did not spawn a worker for the free shard")
	}
}

func TestTickReclaimsExpiredLease(t *testing.T) {
	source := newFakeSource(shardlog.Shard{ID: "shard-a"})
	store := newFakeLeaseStore()
	store.setRow(lease.Lease{
		ShardID:     "shard-a",
		Owner:       "dead-worker",
		Counter:     9,
		ExpiresAtMs: time.Now().Add(-time.Second).UnixMilli(),
	})
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, newCaptureHandler(), opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.drain()
	}()

	c.tick(ctx)
	if _, ok := c.workers["shard-a"]; !ok {
		t.Fatalf("expired lease was not taken over")
	}
	waitUntil(t, 5*time.Second, "lease takeover", func() bool {
		row := store.row("shard-a")
		return row.Owner == c.WorkerID() && row.Counter == 10
	})
}

func TestChildShardsWaitForParents(t *testing.T) {
	parent := shardlog.Shard{ID: "shard-p", Closed: true}
	childA := shardlog.Shard{ID: "shard-c1", ParentIDs: []string{"shard-p"}}
	childB := shardlog.Shard{ID: "shard-c2", ParentIDs: []string{"shard-p"}}
	source := newFakeSource(parent, childA, childB)
	source.add("shard-p", "p1", []byte(`{"n":1}`))
	source.add("shard-p", "p2", []byte(`{"n":2}`))
	source.add("shard-c1", "c1", []byte(`{"n":3}`))
	source.add("shard-c2", "c2", []byte(`{"n":4}`))

	store := newFakeLeaseStore()
	handler := newCaptureHandler()
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, handler, opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.drain()
	}()

	c.tick(ctx)
	if _, ok := c.workers["shard-p"]; !ok {
		t.Fatalf("parent shard not acquired")
	}
	if _, ok := c.workers["shard-c1"]; ok {
		t.Fatalf("child acquired before parent finished")
	}
	if _, ok := c.workers["shard-c2"]; ok {
		t.Fatalf("child acquired before parent finished")
	}

	waitDone(t, c.workers["shard-p"])
	if !store.row("shard-p").Finished {
		t.Fatalf("drained parent not finish-checkpointed")
	}

	c.tick(ctx)
	if _, ok := c.workers["shard-c1"]; !ok {
		t.Fatalf("child not acquired after parent finished")
	}
	if _, ok := c.workers["shard-c2"]; !ok {
		t.Fatalf("child not acquired after parent finished")
	}

	waitUntil(t, 5*time.Second, "child records", func() bool {
		return handler.appliedCount() == 4
	})
	keys := handler.appliedKeys()
	if keys[0] != "p1" || keys[1] != "p2" {
		t.Fatalf("parent records not processed first: %v", keys)
	}
}

func TestRunReturnsErrorOnWorkerFailure(t *testing.T) {
	source := newFakeSource(shardlog.Shard{ID: "shard-a"})
	store := newFakeLeaseStore()
	store.acquireErrs = []error{lease.ErrSchema}
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, newCaptureHandler(), opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-errCh; err == nil {
		t.Fatalf("Run returned nil despite a failed worker")
	}
}

func TestRunCleanShutdown(t *testing.T) {
	source := newFakeSource(shardlog.Shard{ID: "shard-a"})
	source.add("shard-a", "k", []byte(`{"n":1}`))
	store := newFakeLeaseStore()
	handler := newCaptureHandler()
	opts := coordinatorOptions()
	c := New(source, store, NewProcessorFactory(JSONDecoder{}, handler, opts), opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	waitUntil(t, 5*time.Second, "record delivery", func() bool {
		return handler.appliedCount() == 1
	})
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("clean shutdown returned %v", err)
	}
}

// TestRunDrainsSplitStream drives the whole consumer against the real
// embedded log and lease stores: produce, split, and verify that children
// are only processed after their parent drains.
func TestRunDrainsSplitStream(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streams := shardlog.New(db)
	if err := streams.Create(ctx, "telemetry", 2); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	view := streams.View("telemetry")
	leases := lease.NewStore(db, "app-e2e", 150*time.Millisecond)

	handler := newCaptureHandler()
	opts := Options{
		WorkerID:           "worker-e2e",
		InitialPosition:    shardlog.TrimHorizon(),
		LeaseTTL:           150 * time.Millisecond,
		CheckpointInterval: 20 * time.Millisecond,
		RetryCount:         3,
		RetryBackoff:       0,
		BatchSize:          16,
		PollIdle:           2 * time.Millisecond,
		Logger:             testOptions().Logger,
	}
	c := New(view, leases, NewProcessorFactory(JSONDecoder{}, handler, opts), opts)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	appendN := func(n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("device-%03d", i)
			payload := []byte(fmt.Sprintf(`{"reading":%d}`, i))
			if _, _, err := view.Append(ctx, key, payload, time.Now().UnixMilli()); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}

	appendN(40)
	waitUntil(t, 10*time.Second, "initial records", func() bool {
		return handler.appliedCount() >= 40
	})

	shards, err := view.ListShards(ctx)
	if err != nil {
		t.Fatalf("list shards: %v", err)
	}
	parentID := ""
	for _, sh := range shards {
		if !sh.Closed {
			parentID = sh.ID
			break
		}
	}
	if parentID == "" {
		t.Fatalf("no open shard to split")
	}
	children, err := streams.Split(ctx, "telemetry", parentID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	appendN(40)
	waitUntil(t, 10*time.Second, "records after split", func() bool {
		return handler.appliedCount() >= 80
	})

	// The parent must be finish-checkpointed, and no child record may have
	// been applied before the parent's last record.
	waitUntil(t, 10*time.Second, "parent finish checkpoint", func() bool {
		row, ok, err := leases.Get(ctx, parentID)
		return err == nil && ok && row.Finished
	})
	applied := handler.applied()
	lastParent, firstChild := -1, -1
	childIDs := map[string]bool{}
	for _, ch := range children {
		childIDs[ch.ID] = true
	}
	for i, r := range applied {
		if r.ShardID == parentID {
			lastParent = i
		}
		if childIDs[r.ShardID] && firstChild == -1 {
			firstChild = i
		}
	}
	if firstChild != -1 && firstChild < lastParent {
		t.Fatalf("child record applied at %d before parent record at %d", firstChild, lastParent)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
}
