// Package policy pluggably defines what "utilization" means for a
// storage group: summed across all storage types on the node (Node
// policy) or tracked independently per storage type (Pool policy).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package policy

import "github.com/NVIDIA/balancer/internal/model"

// Figures is the raw capacity/used pair reported for one storage type
// on one node.
type Figures struct {
	Capacity uint64
	Used     uint64
}

// NodeFigures is every storage type reported for a single node.
type NodeFigures map[model.StorageType]Figures

// Total sums capacity/used across all storage types on the node.
func (nf NodeFigures) Total() Figures {
	var t Figures
	for _, f := range nf {
		t.Capacity += f.Capacity
		t.Used += f.Used
	}
	return t
}

func utilOf(f Figures) float64 {
	if f.Capacity == 0 {
		return 0
	}
	return float64(f.Used) / float64(f.Capacity)
}

// Policy computes the utilization of a storage group.
type Policy interface {
	Name() string
	// Utilization returns the utilization figure to use for storage
	// type st given everything reported for that node.
	Utilization(st model.StorageType, node NodeFigures) float64
}

// NodePolicy sums all storage types into one figure: every group on a
// node shares the same utilization value.
type NodePolicy struct{}

func (NodePolicy) Name() string { return "node" }

func (NodePolicy) Utilization(_ model.StorageType, node NodeFigures) float64 {
	return utilOf(node.Total())
}

// PoolPolicy tracks each storage type independently.
type PoolPolicy struct{}

func (PoolPolicy) Name() string { return "pool" }

func (PoolPolicy) Utilization(st model.StorageType, node NodeFigures) float64 {
	return utilOf(node[st])
}

// Parse resolves the -policy CLI flag (spec §6).
func Parse(name string) (Policy, bool) {
	switch name {
	case "node", "":
		return NodePolicy{}, true
	case "pool":
		return PoolPolicy{}, true
	default:
		return nil, false
	}
}
