// Package selector implements the per-Source block/proxy selection
// loop: picking the next block to move, choosing a proxy replica to
// copy from, and reserving capacity on source/target (spec §4.3).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package selector

import (
	"context"
	"time"

	"github.com/NVIDIA/balancer/cmn/cos"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/movedwindow"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/topology"
)

// MaxBlocksToFetch bounds one block-listing round by total byte-size.
const MaxBlocksToFetch = 2 * cos.GiB

// IsGood implements the "good candidate" predicate of §4.3.1. All five
// conditions must hold for `block` to be a valid move from `source` to
// `target`.
func IsGood(source, target *model.StorageGroup, block *model.BlockRef, oracle topology.Oracle, window *movedwindow.Window) bool {
	if source.StorageType != target.StorageType { // 1
		return false
	}
	if window.Contains(block.ID) { // 2
		return false
	}
	if block.HasLocation(target) { // 3
		return false
	}

	locs := block.Locations()

	if oracle.NodeGroupAware() { // 4
		for _, l := range locs {
			if l == source {
				continue
			}
			if oracle.SameNodeGroup(l.Node.UUID, target.Node.UUID) {
				return false
			}
		}
	}

	// 5: rack safety — the move must not reduce the block's rack count.
	if oracle.SameRack(source.Node.UUID, target.Node.UUID) { // (a)
		return true
	}
	anySameRackAsTarget := false
	for _, l := range locs {
		if oracle.SameRack(l.Node.UUID, target.Node.UUID) {
			anySameRackAsTarget = true
			break
		}
	}
	if !anySameRackAsTarget { // (b)
		return true
	}
	for _, l := range locs { // (c)
		if l == source {
			continue
		}
		if oracle.SameRack(l.Node.UUID, source.Node.UUID) {
			return true
		}
	}
	return false
}

// proxyCandidates orders a block's current replicas by locality
// preference relative to target: same node group, then same rack,
// then everything else (§4.3.2).
func proxyCandidates(block *model.BlockRef, target *model.StorageGroup, oracle topology.Oracle) []*model.StorageGroup {
	locs := block.Locations()
	var nodeGroup, rack, rest []*model.StorageGroup
	for _, l := range locs {
		switch {
		case oracle.NodeGroupAware() && oracle.SameNodeGroup(l.Node.UUID, target.Node.UUID):
			nodeGroup = append(nodeGroup, l)
		case oracle.SameRack(l.Node.UUID, target.Node.UUID):
			rack = append(rack, l)
		default:
			rest = append(rest, l)
		}
	}
	out := make([]*model.StorageGroup, 0, len(locs))
	out = append(out, nodeGroup...)
	out = append(out, rack...)
	out = append(out, rest...)
	return out
}

// SelectOne attempts a single block+proxy selection for `source`,
// trying each pending Task in order (§4.3.2). It returns the staged
// PendingMove on success. On failure it leaves source's state
// untouched beyond whatever target slot reservations it released
// itself.
func SelectOne(now time.Time, source *model.Source, oracle topology.Oracle, window *movedwindow.Window) (*model.PendingMove, bool) {
	for _, task := range source.PendingTasks() {
		target := task.Target
		pm := &model.PendingMove{Source: source.StorageGroup, Target: target}
		if !target.Node.AddPending(now, pm) {
			continue
		}

		selected := false
		for _, b := range source.SrcBlocksSnapshot() {
			if !IsGood(source.StorageGroup, target, b, oracle, window) {
				continue
			}
			for _, proxy := range proxyCandidates(b, target, oracle) {
				if !proxy.Node.AddPending(now, pm) {
					continue
				}
				pm.Block = b
				pm.Proxy = proxy

				// ordering guarantee (a): window add happens before
				// this selection is returned to the caller, so no
				// concurrent Selector can pick the same block (I4).
				window.Add(b.ID, now)
				source.RemoveSrcBlock(b)
				source.ShrinkTask(target, b.ID.Length)
				source.StorageGroup.Release(b.ID.Length)
				target.Release(b.ID.Length)

				selected = true
				break
			}
			if selected {
				break
			}
		}
		if selected {
			return pm, true
		}
		target.Node.RemovePending(pm)
	}
	return nil, false
}

// FetchListing pulls one block-listing round for `source` from the
// name service, dedupes through blockMap, refreshes locations, and
// appends any newly-good candidates to source's working set. It
// returns the total byte-size of the listing actually returned (used
// by the caller to decrement blocksToReceive), regardless of how many
// blocks ended up being good candidates.
func FetchListing(ctx context.Context, ns nameservice.Service, source *model.Source, blockMap *model.BlockMap, nodes map[string]*model.Node, oracle topology.Oracle, window *movedwindow.Window) (uint64, error) {
	listing, err := ns.GetBlocks(ctx, source.Node.UUID, MaxBlocksToFetch)
	if err != nil {
		return 0, err
	}

	var fetchedBytes uint64
	for _, bwl := range listing {
		fetchedBytes += bwl.ID.Length

		ref, _ := blockMap.GetOrCreate(bwl.ID)
		groups := make([]*model.StorageGroup, 0, len(bwl.Locations))
		for _, key := range bwl.Locations {
			node, ok := nodes[key.NodeUUID]
			if !ok {
				continue
			}
			if g, ok := node.Groups[key.StorageType]; ok {
				groups = append(groups, g)
			}
		}
		ref.SetLocations(groups) // locations drift iteration to iteration

		for _, task := range source.PendingTasks() {
			if IsGood(source.StorageGroup, task.Target, ref, oracle, window) {
				source.AppendSrcBlock(ref)
				break
			}
		}
	}
	return fetchedBytes, nil
}
