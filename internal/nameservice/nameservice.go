// Package nameservice declares the interface to the cluster's metadata
// authority. It is intentionally interfaces-only: the balancer core
// never talks to a concrete name service implementation directly
// (spec §1, "deliberately out of scope").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nameservice

import (
	"context"

	"github.com/NVIDIA/balancer/internal/keymanager"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/policy"
)

// DatanodeStorageReport is one node's self-reported figures, as
// returned by getDatanodeStorageReport(LIVE).
type DatanodeStorageReport struct {
	NodeUUID           string
	TransferAddr       string
	Rack               string
	NodeGroup          string
	Decommissioning    bool
	MaxConcurrentMoves int
	Figures            policy.NodeFigures
}

// BlockWithLocations is one block's metadata plus its current replica
// placement, as returned by a getBlocks listing.
type BlockWithLocations struct {
	ID        model.BlockID
	Locations []model.GroupKey
}

// Service is the collaborator interface consumed from the coordinator
// (spec §6). A concrete adapter lives outside the core and wraps
// whatever RPC the real metadata authority speaks.
type Service interface {
	// DatanodeStorageReport returns the live per-node report.
	DatanodeStorageReport(ctx context.Context) ([]DatanodeStorageReport, error)
	// GetBlocks returns up to sizeBytes worth of block metadata (by
	// total byte-size) hosted on the given node.
	GetBlocks(ctx context.Context, nodeUUID string, sizeBytes uint64) ([]BlockWithLocations, error)
	// BlockpoolID identifies the block pool this service manages.
	BlockpoolID() string
	// KeyManager returns the collaborator that issues transfer tokens.
	KeyManager() keymanager.KeyManager
	// ShouldContinue returns false once 5 consecutive iterations moved
	// no bytes (spec §6, drives NO_MOVE_PROGRESS).
	ShouldContinue(bytesMovedThisIter uint64) bool
	// Close releases the exclusive "only-one-balancer" lock.
	Close() error
}
