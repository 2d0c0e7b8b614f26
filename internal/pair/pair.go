// Package pair implements the Pairer: it matches sources to targets in
// three locality passes, producing Task entries attached to each
// Source (spec §4.2).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package pair

import (
	"github.com/NVIDIA/balancer/cmn/cos"
	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/classify"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/topology"
)

// candidate adapts a StorageGroup (plain target/destination) or a
// Source (which additionally accumulates Tasks) to a uniform shape the
// matching loop can treat symmetrically.
type candidate struct {
	group  *model.StorageGroup
	source *model.Source // non-nil iff this side is a Source
}

func wrapSources(ss []*model.Source) []candidate {
	out := make([]candidate, len(ss))
	for i, s := range ss {
		out[i] = candidate{group: s.StorageGroup, source: s}
	}
	return out
}

func wrapGroups(gs []*model.StorageGroup) []candidate {
	out := make([]candidate, len(gs))
	for i, g := range gs {
		out[i] = candidate{group: g}
	}
	return out
}

// Pair runs the full locality-pass / sub-pass sequence over a
// classify.Result and returns the total bytes scheduled this
// iteration (Σ sources.scheduledBytes).
func Pair(res classify.Result, oracle topology.Oracle) uint64 {
	over := wrapSources(res.OverUtilized)
	above := wrapSources(res.AboveAvg)
	below := wrapGroups(res.BelowAvg)
	under := wrapGroups(res.Underutilized)

	for _, m := range topology.Passes(oracle) {
		over, under = runPass(over, under, m, oracle)
		over, below = runPass(over, below, m, oracle)
		under, above = runPass(under, above, m, oracle)
	}

	var scheduled uint64
	for _, s := range res.OverUtilized {
		scheduled += s.ScheduledBytes()
	}
	for _, s := range res.AboveAvg {
		scheduled += s.ScheduledBytes()
	}

	if nlog.FastV(4, cos.SmodulePair) {
		nlog.Infof("pair: scheduled=%d bytes", scheduled)
	}
	return scheduled
}

// runPass matches every live element of a against every live element
// of b under matcher m, reserving quota and attaching a Task to
// whichever side is a Source. It returns the surviving (non-exhausted)
// elements of both sides.
func runPass(a, b []candidate, m topology.Matcher, oracle topology.Oracle) ([]candidate, []candidate) {
	for i := 0; i < len(a); {
		g := a[i]
		if g.group.AvailableToMove() == 0 {
			a = removeAt(a, i)
			continue
		}
		for j := 0; j < len(b); {
			c := b[j]
			if c.group.AvailableToMove() == 0 {
				b = removeAt(b, j)
				continue
			}
			if g.group.StorageType != c.group.StorageType { // I5
				j++
				continue
			}
			if g.group.Node.UUID == c.group.Node.UUID { // never pair a node with itself
				j++
				continue
			}
			if !m.Match(oracle, g.group.Node.UUID, c.group.Node.UUID) {
				j++
				continue
			}
			reserve(g, c)
			if c.group.AvailableToMove() == 0 {
				b = removeAt(b, j)
				continue
			}
			j++
		}
		if g.group.AvailableToMove() == 0 {
			a = removeAt(a, i)
			continue
		}
		i++
	}
	return a, b
}

func reserve(g, c candidate) {
	size := minU64(g.group.AvailableToMove(), c.group.AvailableToMove())
	if size == 0 {
		return
	}
	g.group.Reserve(size)
	c.group.Reserve(size)

	src, target := g.source, c.group
	if src == nil {
		src, target = c.source, g.group
	}
	if src == nil {
		// neither side is a Source: shouldn't happen given how the
		// caller wires bucket pairs, but guard defensively rather
		// than losing the reservation silently.
		return
	}
	src.AddTask(&model.Task{Target: target, Size: size})
}

func removeAt(s []candidate, i int) []candidate {
	return append(s[:i], s[i+1:]...)
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
