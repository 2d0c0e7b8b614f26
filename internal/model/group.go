package model

import "sync"

// Bucket is one of the four ordered utilization classes a StorageGroup
// is assigned to for the duration of an iteration.
type Bucket int

const (
	BucketNone Bucket = iota
	OverUtilized
	AboveAvgUtilized
	BelowAvgUtilized
	Underutilized
)

func (b Bucket) String() string {
	switch b {
	case OverUtilized:
		return "overUtilized"
	case AboveAvgUtilized:
		return "aboveAvgUtilized"
	case BelowAvgUtilized:
		return "belowAvgUtilized"
	case Underutilized:
		return "underUtilized"
	default:
		return "none"
	}
}

// IsSource reports whether groups in this bucket act as move sources.
func (b Bucket) IsSource() bool { return b == OverUtilized || b == AboveAvgUtilized }

// IsTarget reports whether groups in this bucket act as move targets.
func (b Bucket) IsTarget() bool { return b == BelowAvgUtilized || b == Underutilized }

// StorageGroup is the balancing unit: all storage of one StorageType on
// one Node.
type StorageGroup struct {
	Node        *Node
	StorageType StorageType

	Capacity uint64
	Used     uint64

	Utilization float64 // in [0,1]
	MaxMovable  uint64  // bytes this group may transfer this iteration
	Bucket      Bucket

	mu             sync.Mutex
	scheduledBytes uint64
}

func NewStorageGroup(node *Node, st StorageType, capacity, used uint64) *StorageGroup {
	return &StorageGroup{Node: node, StorageType: st, Capacity: capacity, Used: used}
}

func (g *StorageGroup) Key() GroupKey {
	return GroupKey{NodeUUID: g.Node.UUID, StorageType: g.StorageType}
}

// ScheduledBytes returns bytes already reserved by the Pairer/Selector
// against this group's MaxMovable quota.
func (g *StorageGroup) ScheduledBytes() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scheduledBytes
}

// AvailableToMove is maxMovable - scheduledBytes, always >= 0 (I1).
func (g *StorageGroup) AvailableToMove() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scheduledBytes >= g.MaxMovable {
		return 0
	}
	return g.MaxMovable - g.scheduledBytes
}

// Reserve bumps scheduledBytes by n, clamped so scheduledBytes never
// exceeds MaxMovable (I1); returns the amount actually reserved.
func (g *StorageGroup) Reserve(n uint64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	avail := uint64(0)
	if g.scheduledBytes < g.MaxMovable {
		avail = g.MaxMovable - g.scheduledBytes
	}
	if n > avail {
		n = avail
	}
	g.scheduledBytes += n
	return n
}

// Release gives back n bytes of previously reserved quota (e.g. a move
// failed before being dispatched).
func (g *StorageGroup) Release(n uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n > g.scheduledBytes {
		n = g.scheduledBytes
	}
	g.scheduledBytes -= n
}

// ZeroScheduled force-clears scheduledBytes — used when a Source gives
// up for this iteration after too many stalled selection attempts
// (§4.3.3).
func (g *StorageGroup) ZeroScheduled() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scheduledBytes = 0
}

// Task records a planned transfer quota from a Source to Target; Size
// decrements as individual blocks are dispatched.
type Task struct {
	Target *StorageGroup
	Size   uint64
}

// Source is the StorageGroup variant for over/above-average groups: it
// additionally carries the ordered task list, its candidate block
// working set, and the outstanding fetch budget.
type Source struct {
	*StorageGroup

	mu                       sync.Mutex
	Tasks                    []*Task
	SrcBlocks                []*BlockRef
	BlocksToReceive          int64
	NoPendingBlockIterations int
}

func NewSource(g *StorageGroup) *Source {
	return &Source{StorageGroup: g}
}

// AddTask appends a planned transfer; scheduledBytes on both sides must
// already reflect the reservation (done by the Pairer at match time).
func (s *Source) AddTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tasks = append(s.Tasks, t)
}

// TaskSizeSum returns Σ task.size, which must equal scheduledBytes at
// rest (I2).
func (s *Source) TaskSizeSum() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum uint64
	for _, t := range s.Tasks {
		sum += t.Size
	}
	return sum
}

// ShrinkTask reduces the size of the task targeting `target` by n,
// removing it once it reaches zero. Returns false if no such task
// exists.
func (s *Source) ShrinkTask(target *StorageGroup, n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.Tasks {
		if t.Target == target {
			if n > t.Size {
				n = t.Size
			}
			t.Size -= n
			if t.Size == 0 {
				s.Tasks = append(s.Tasks[:i], s.Tasks[i+1:]...)
			}
			return true
		}
	}
	return false
}

// PendingTasks returns a snapshot of the current task list.
func (s *Source) PendingTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, len(s.Tasks))
	copy(out, s.Tasks)
	return out
}

// RemoveSrcBlock removes a block from the candidate working set.
func (s *Source) RemoveSrcBlock(b *BlockRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.SrcBlocks {
		if cur == b {
			s.SrcBlocks = append(s.SrcBlocks[:i], s.SrcBlocks[i+1:]...)
			return
		}
	}
}

// AppendSrcBlock adds a newly-fetched candidate to the working set.
func (s *Source) AppendSrcBlock(b *BlockRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SrcBlocks = append(s.SrcBlocks, b)
}

// SrcBlocksSnapshot returns a copy of the current candidate set.
func (s *Source) SrcBlocksSnapshot() []*BlockRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*BlockRef, len(s.SrcBlocks))
	copy(out, s.SrcBlocks)
	return out
}

// SrcBlocksLen reports the current size of the candidate working set.
func (s *Source) SrcBlocksLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SrcBlocks)
}

// FilterSrcBlocks keeps only blocks for which keep(b) is true.
func (s *Source) FilterSrcBlocks(keep func(*BlockRef) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.SrcBlocks[:0]
	for _, b := range s.SrcBlocks {
		if keep(b) {
			kept = append(kept, b)
		}
	}
	s.SrcBlocks = kept
}
