// Package classify implements the utilization classifier: it computes
// per-storage-type cluster averages and assigns every non-excluded
// storage group to one of the four utilization buckets (spec §4.1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package classify

import (
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/NVIDIA/balancer/cmn/cos"
	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/policy"
)

// MaxSizeToMove is the per-group, per-iteration move budget cap.
const MaxSizeToMove = 10 * cos.GiB

// Result is everything the Pairer needs: the four buckets plus the
// computed bytesLeftToMove (spec §4.1 step 5 and R3).
type Result struct {
	OverUtilized    []*model.Source
	AboveAvg        []*model.Source
	BelowAvg        []*model.StorageGroup
	Underutilized   []*model.StorageGroup
	BytesLeftToMove uint64
	AvgUtilization  map[model.StorageType]float64
	Nodes           map[string]*model.Node
}

// Classify runs one classification pass over the given reports.
// threshold is a fraction in (0,1] (CLI's percentage / 100).
// rnd, if non-nil, is used to shuffle the node list (step 2); a nil
// rnd uses the package-level default source, which is fine in
// production but should be supplied deterministically in tests.
func Classify(reports []nameservice.DatanodeStorageReport, pol policy.Policy, threshold float64, rnd *rand.Rand) Result {
	live := make([]nameservice.DatanodeStorageReport, 0, len(reports))
	for _, r := range reports {
		if r.Decommissioning {
			continue
		}
		live = append(live, r)
	}

	// step 2: shuffle so later matching isn't systematically biased
	// toward earlier-seen nodes.
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	rnd.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })

	// step 1: per-storage-type cluster average.
	sums := map[model.StorageType]float64{}
	counts := map[model.StorageType]int{}
	for _, r := range live {
		for st := range r.Figures {
			sums[st] += pol.Utilization(st, r.Figures)
			counts[st]++
		}
	}
	avg := make(map[model.StorageType]float64, len(sums))
	for st, sum := range sums {
		avg[st] = sum / float64(counts[st])
	}

	var res Result
	res.AvgUtilization = avg
	res.Nodes = make(map[string]*model.Node, len(live))

	var overLoadedBytes, underLoadedBytes uint64

	for _, r := range live {
		nodeUUID := r.NodeUUID
		if nodeUUID == "" {
			// a report missing its uuid (seen from some transitional
			// metadata authorities) still needs a stable identity for
			// the duration of this iteration's pending-move bookkeeping.
			nodeUUID = uuid.NewString()
		}
		node := model.NewNode(nodeUUID, r.TransferAddr, r.Rack, r.NodeGroup, r.MaxConcurrentMoves)
		res.Nodes[nodeUUID] = node

		for st, figs := range r.Figures {
			u := pol.Utilization(st, r.Figures)
			d := u - avg[st]
			td := math.Abs(d) - threshold

			band := math.Min(threshold, math.Abs(d))
			maxMovable := pct2bytes(band, figs.Capacity)
			if maxMovable > MaxSizeToMove {
				maxMovable = MaxSizeToMove
			}

			g := model.NewStorageGroup(node, st, figs.Capacity, figs.Used)
			g.Utilization = u

			isSource := d > 0
			if !isSource {
				// destination groups are further capped by how much
				// room is actually left before hitting capacity.
				remaining := uint64(0)
				if figs.Capacity > figs.Used {
					remaining = figs.Capacity - figs.Used
				}
				if maxMovable > remaining {
					maxMovable = remaining
				}
			}
			g.MaxMovable = maxMovable
			node.Groups[st] = g

			switch {
			case isSource && td > 0:
				g.Bucket = model.OverUtilized
				res.OverUtilized = append(res.OverUtilized, model.NewSource(g))
				overLoadedBytes += pct2bytes(td, figs.Capacity)
			case isSource && td <= 0:
				g.Bucket = model.AboveAvgUtilized
				res.AboveAvg = append(res.AboveAvg, model.NewSource(g))
			case !isSource && td > 0:
				g.Bucket = model.Underutilized
				res.Underutilized = append(res.Underutilized, g)
				underLoadedBytes += pct2bytes(td, figs.Capacity)
			default:
				g.Bucket = model.BelowAvgUtilized
				res.BelowAvg = append(res.BelowAvg, g)
			}
		}
	}

	res.BytesLeftToMove = overLoadedBytes
	if underLoadedBytes > res.BytesLeftToMove {
		res.BytesLeftToMove = underLoadedBytes
	}

	if nlog.FastV(4, cos.SmoduleClassify) {
		nlog.Infof("classify: over=%d aboveAvg=%d belowAvg=%d under=%d bytesLeftToMove=%d",
			len(res.OverUtilized), len(res.AboveAvg), len(res.BelowAvg), len(res.Underutilized), res.BytesLeftToMove)
	}
	return res
}

// pct2bytes converts a utilization fraction (e.g. 0.07 for 7%) into an
// absolute byte quantity relative to capacity.
func pct2bytes(frac float64, capacity uint64) uint64 {
	if frac <= 0 {
		return 0
	}
	return uint64(frac * float64(capacity))
}
