// The balancer binary implements the CLI wrapper and exit-code mapping
// around the core packages; it does not ship a concrete NameService
// client (spec §1's explicit boundary). Connect is the extension point
// a real cluster build swaps in.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"github.com/NVIDIA/balancer/internal/adapters"
	"github.com/NVIDIA/balancer/internal/config"
	"github.com/NVIDIA/balancer/internal/runner"
)

// Connect resolves the configured name services into live Connectors.
// The stock binary has none to resolve against — a deployment that
// links a real NameService/TransferPeer/KeyManager implementation
// replaces this var (or vendors its own main) before shipping.
var Connect = func(cfg config.Config) ([]*runner.Connector, error) {
	return nil, adapters.ErrNotConfigured
}
