package shardlog

import (
	"context"
	"errors"
	"testing"
)

func TestSplitShard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "orders", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	parentID := appendN(t, s, "orders", 3)

	children, err := s.Split(ctx, "orders", parentID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d", len(children))
	}

	shards, err := s.ListShards(ctx, "orders")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(shards) != 3 {
		t.Fatalf("shards = %d, want 3", len(shards))
	}

	var parent Shard
	for _, sh := range shards {
		if sh.ID == parentID {
			parent = sh
		}
	}
	if !parent.Closed {
		t.Fatalf("parent not closed after split")
	}

	left, right := children[0], children[1]
	if left.HashStart != parent.HashStart || right.HashEnd != parent.HashEnd {
		t.Fatalf("children do not cover parent range: %+v %+v", left, right)
	}
	if left.HashEnd+1 != right.HashStart {
		t.Fatalf("children not contiguous: %d..%d / %d..%d",
			left.HashStart, left.HashEnd, right.HashStart, right.HashEnd)
	}
	for _, ch := range children {
		if len(ch.ParentIDs) != 1 || ch.ParentIDs[0] != parentID {
			t.Fatalf("child parents = %v", ch.ParentIDs)
		}
		if ch.Closed {
			t.Fatalf("child created closed")
		}
	}

	// Appends now land in the children, never the closed parent.
	gotShard, _, err := s.Append(ctx, "orders", "pinned-key", []byte("v"), 1)
	if err != nil {
		t.Fatalf("append after split: %v", err)
	}
	if gotShard == parentID {
		t.Fatalf("append routed to closed parent")
	}

	// Parent records remain readable.
	batch, err := s.GetRecords(ctx, "orders", parentID, TrimHorizon(), 100)
	if err != nil {
		t.Fatalf("get parent records: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Fatalf("parent records = %d, want 3", len(batch.Records))
	}
}

func TestSplitClosedShardRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "orders", 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	shards, _ := s.ListShards(ctx, "orders")
	if _, err := s.Split(ctx, "orders", shards[0].ID); err != nil {
		t.Fatalf("split: %v", err)
	}
	if _, err := s.Split(ctx, "orders", shards[0].ID); !errors.Is(err, ErrShardClosed) {
		t.Fatalf("second split: %v", err)
	}
}

func TestMergeAdjacentShards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "orders", 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	shards, _ := s.ListShards(ctx, "orders")

	child, err := s.Merge(ctx, "orders", shards[1].ID, shards[0].ID) // order should not matter
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if child.HashStart != shards[0].HashStart || child.HashEnd != shards[1].HashEnd {
		t.Fatalf("child range %d..%d", child.HashStart, child.HashEnd)
	}
	if len(child.ParentIDs) != 2 {
		t.Fatalf("child parents = %v", child.ParentIDs)
	}

	all, _ := s.ListShards(ctx, "orders")
	open := 0
	for _, sh := range all {
		if !sh.Closed {
			open++
			if sh.ID != child.ID {
				t.Fatalf("unexpected open shard %s", sh.ID)
			}
		}
	}
	if open != 1 {
		t.Fatalf("open shards = %d, want 1", open)
	}
}

func TestMergeNonAdjacentRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "orders", 3); err != nil {
		t.Fatalf("create: %v", err)
	}
	shards, _ := s.ListShards(ctx, "orders")
	if _, err := s.Merge(ctx, "orders", shards[0].ID, shards[2].ID); err == nil {
		t.Fatalf("expected error for non-adjacent merge")
	}
}
