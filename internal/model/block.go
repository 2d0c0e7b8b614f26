// Package model holds the balancing data model: nodes, storage groups,
// blocks and their replicas, and the staged moves between them.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package model

import (
	"fmt"
	"sync"
)

// StorageType groups storage of a single kind on a node (e.g. an SSD
// pool vs an HDD pool); the balancer only ever moves a replica between
// groups of identical StorageType.
type StorageType string

// BlockID is the immutable, pool-qualified identity of a replicated
// block: a generation-qualified id plus its current length in bytes.
type BlockID struct {
	PoolID     string
	ID         uint64
	Generation uint64
	Length     uint64
}

func (b BlockID) String() string {
	return fmt.Sprintf("%s/%d.%d", b.PoolID, b.ID, b.Generation)
}

// GroupKey identifies a StorageGroup by (node, storage type) — the
// balancing unit named in the data model.
type GroupKey struct {
	NodeUUID    string
	StorageType StorageType
}

// BlockRef is the shared, mutable descriptor of a replicated block.
// globalBlockMap is its single owner; every other reference (Source's
// srcBlocks, a PendingMove) is a back-reference only.
type BlockRef struct {
	ID BlockID // immutable

	mu        sync.Mutex
	locations map[GroupKey]*StorageGroup
}

func NewBlockRef(id BlockID) *BlockRef {
	return &BlockRef{ID: id, locations: make(map[GroupKey]*StorageGroup)}
}

// SetLocations replaces the replica set wholesale — call when a fresh
// listing for this block has been fetched, since locations drift
// between iterations.
func (b *BlockRef) SetLocations(groups []*StorageGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations = make(map[GroupKey]*StorageGroup, len(groups))
	for _, g := range groups {
		b.locations[g.Key()] = g
	}
}

// Locations returns a snapshot slice of the current replica groups.
func (b *BlockRef) Locations() []*StorageGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*StorageGroup, 0, len(b.locations))
	for _, g := range b.locations {
		out = append(out, g)
	}
	return out
}

// HasLocation reports whether the given group already hosts a replica.
func (b *BlockRef) HasLocation(g *StorageGroup) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.locations[g.Key()]
	return ok
}
