package model

import "testing"

func TestStorageGroupReserveClampsToMaxMovable(t *testing.T) {
	n := NewNode("n1", "n1:9000", "", "", 5)
	g := NewStorageGroup(n, "ssd", 1000, 500)
	g.MaxMovable = 100

	got := g.Reserve(60)
	if got != 60 {
		t.Fatalf("Reserve(60) = %d, want 60", got)
	}
	got = g.Reserve(60) // I1: only 40 left
	if got != 40 {
		t.Fatalf("Reserve(60) after 60 reserved = %d, want 40 (clamped)", got)
	}
	if avail := g.AvailableToMove(); avail != 0 {
		t.Fatalf("AvailableToMove() = %d, want 0", avail)
	}

	g.Release(50)
	if avail := g.AvailableToMove(); avail != 50 {
		t.Fatalf("AvailableToMove() after release = %d, want 50", avail)
	}
}

func TestStorageGroupZeroScheduled(t *testing.T) {
	n := NewNode("n1", "n1:9000", "", "", 5)
	g := NewStorageGroup(n, "ssd", 1000, 500)
	g.MaxMovable = 100
	g.Reserve(100)

	g.ZeroScheduled()
	if g.ScheduledBytes() != 0 {
		t.Fatalf("ScheduledBytes() after ZeroScheduled = %d, want 0", g.ScheduledBytes())
	}
}

func TestSourceTaskSizeSumMatchesScheduled(t *testing.T) {
	n1 := NewNode("n1", "n1:9000", "", "", 5)
	n2 := NewNode("n2", "n2:9000", "", "", 5)
	src := NewSource(NewStorageGroup(n1, "ssd", 1000, 900))
	tgt := NewStorageGroup(n2, "ssd", 1000, 100)
	src.MaxMovable = 100
	tgt.MaxMovable = 100

	src.Reserve(70)
	tgt.Reserve(70)
	src.AddTask(&Task{Target: tgt, Size: 70})

	if sum := src.TaskSizeSum(); sum != src.ScheduledBytes() { // I2
		t.Fatalf("TaskSizeSum()=%d != ScheduledBytes()=%d", sum, src.ScheduledBytes())
	}

	if ok := src.ShrinkTask(tgt, 70); !ok {
		t.Fatal("expected ShrinkTask to find the task")
	}
	if len(src.PendingTasks()) != 0 {
		t.Fatalf("expected task removed once its size reaches zero, got %d tasks", len(src.PendingTasks()))
	}
}

func TestSourceSrcBlocksFilterAndSnapshot(t *testing.T) {
	n := NewNode("n1", "n1:9000", "", "", 5)
	src := NewSource(NewStorageGroup(n, "ssd", 1000, 900))

	b1 := NewBlockRef(BlockID{PoolID: "p", ID: 1})
	b2 := NewBlockRef(BlockID{PoolID: "p", ID: 2})
	src.AppendSrcBlock(b1)
	src.AppendSrcBlock(b2)

	if n := src.SrcBlocksLen(); n != 2 {
		t.Fatalf("SrcBlocksLen() = %d, want 2", n)
	}

	src.FilterSrcBlocks(func(b *BlockRef) bool { return b != b1 })
	snap := src.SrcBlocksSnapshot()
	if len(snap) != 1 || snap[0] != b2 {
		t.Fatalf("expected only b2 to survive the filter, got %v", snap)
	}

	src.RemoveSrcBlock(b2)
	if src.SrcBlocksLen() != 0 {
		t.Fatalf("expected empty working set after RemoveSrcBlock, got %d", src.SrcBlocksLen())
	}
}
