// Package transferpeer declares the wire protocol and client interface
// spoken to a storage node's transfer port: a framed REPLACE_BLOCK
// request asking the node to copy a replica from a given proxy.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transferpeer

import (
	"context"

	"github.com/NVIDIA/balancer/internal/model"
)

// Status is the outcome reported in a REPLACE_BLOCK response.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
	StatusErrorAccessToken
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusErrorAccessToken:
		return "ERROR_ACCESS_TOKEN"
	default:
		return "ERROR"
	}
}

// ProxyNodeDescriptor tells the target which node to pull the replica
// from.
type ProxyNodeDescriptor struct {
	NodeUUID     string
	TransferAddr string
}

// ReplaceBlockRequest is the payload of a framed REPLACE_BLOCK request.
type ReplaceBlockRequest struct {
	Block         model.BlockID
	StorageType   model.StorageType
	AccessToken   string
	SourceUUID    string
	ProxyNode     ProxyNodeDescriptor
	CorrelationID string
}

// ReplaceBlockResponse is the payload of the framed response.
type ReplaceBlockResponse struct {
	Status  Status
	Message string
}

// Peer is the client-side collaborator interface for one target node's
// transfer address. TCPPeer (tcp.go) is the concrete adapter: it dials
// a TCP socket, wraps it through an AuthWrapper (e.g. a SASL-negotiated
// stream), and frames requests/responses (spec §6).
type Peer interface {
	ReplaceBlock(ctx context.Context, addr string, req ReplaceBlockRequest) (ReplaceBlockResponse, error)
}
