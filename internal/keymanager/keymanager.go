// Package keymanager declares the interface to the collaborator that
// issues short-lived access tokens for block transfers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package keymanager

import (
	"context"

	"github.com/NVIDIA/balancer/internal/model"
)

// KeyManager issues a token authorizing a single block transfer.
type KeyManager interface {
	Token(ctx context.Context, block model.BlockID) (string, error)
}
