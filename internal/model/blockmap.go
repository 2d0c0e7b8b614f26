package model

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

const blockMapShards = 32

// BlockMap is the process-wide globalBlockMap: the single owner of
// every BlockRef, keyed by block id. It is sharded by xxhash of the
// block id string to keep the "one process-wide lock" of §5 from
// becoming a bottleneck under concurrent Selectors; callers that also
// need a MovedBlocksWindow lock must acquire it before touching a
// BlockRef, per the documented lock ordering (globalBlockMap -> BlockRef -> Node).
type BlockMap struct {
	shards [blockMapShards]blockMapShard
}

type blockMapShard struct {
	mu   sync.Mutex
	refs map[BlockID]*BlockRef
}

func NewBlockMap() *BlockMap {
	bm := &BlockMap{}
	for i := range bm.shards {
		bm.shards[i].refs = make(map[BlockID]*BlockRef)
	}
	return bm
}

func (bm *BlockMap) shardFor(id BlockID) *blockMapShard {
	h := xxhash.ChecksumString64(id.String())
	return &bm.shards[h%uint64(blockMapShards)]
}

// GetOrCreate returns the existing BlockRef for id, or creates and
// stores a new one. The returned bool is true when an existing ref was
// found (caller should then refresh its locations, per §4.3).
func (bm *BlockMap) GetOrCreate(id BlockID) (*BlockRef, bool) {
	shard := bm.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if ref, ok := shard.refs[id]; ok {
		return ref, true
	}
	ref := NewBlockRef(id)
	shard.refs[id] = ref
	return ref, false
}

// Get looks up a block id without creating it.
func (bm *BlockMap) Get(id BlockID) (*BlockRef, bool) {
	shard := bm.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	ref, ok := shard.refs[id]
	return ref, ok
}

// Trim keeps only entries whose id satisfies keep(id); this is how
// resetData prunes globalBlockMap to the ids still present in the
// MovedBlocksWindow (R1) without dropping BlockRef identity for ids
// that remain relevant.
func (bm *BlockMap) Trim(keep func(BlockID) bool) {
	for i := range bm.shards {
		shard := &bm.shards[i]
		shard.mu.Lock()
		for id := range shard.refs {
			if !keep(id) {
				delete(shard.refs, id)
			}
		}
		shard.mu.Unlock()
	}
}

// Len returns the total number of tracked blocks, for tests/metrics.
func (bm *BlockMap) Len() int {
	n := 0
	for i := range bm.shards {
		shard := &bm.shards[i]
		shard.mu.Lock()
		n += len(shard.refs)
		shard.mu.Unlock()
	}
	return n
}
