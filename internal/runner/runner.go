// Package runner implements the MultiServiceRunner: it sweeps the list
// of configured name services, shuffled per round, running one
// IterationDriver pass against each until every one of them has
// reached a terminal status (spec §4.6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/iteration"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/status"
)

// Connector pairs one NameService connection with the Driver that
// balances against it; each connector keeps its own persistent
// globalBlockMap/MovedBlocksWindow, since those never cross name
// service boundaries.
type Connector struct {
	Name   string
	NS     nameservice.Service
	Driver *iteration.Driver
}

// Run drives connectors to completion: each outer round shuffles the
// connector order, runs one iteration against every connector that
// hasn't yet reached a terminal state, and sleeps 2*heartbeat before
// the next round as long as at least one connector is still
// IN_PROGRESS. A terminal non-success from any connector aborts the
// whole run immediately, returning that connector's code.
func Run(ctx context.Context, connectors []*Connector, heartbeat time.Duration, rnd *rand.Rand) status.Code {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	done := make(map[*Connector]bool, len(connectors))

	for {
		order := rnd.Perm(len(connectors))
		anyInProgress := false

		for _, idx := range order {
			c := connectors[idx]
			if done[c] {
				continue
			}
			cctx := iteration.WithNameService(ctx, c.NS)
			code, _, err := c.Driver.RunOnce(cctx)
			if err != nil {
				nlog.Errorf("connector %s: %v", c.Name, err)
			}
			switch code {
			case status.InProgress:
				anyInProgress = true
			case status.Success:
				done[c] = true
			default:
				return code
			}
		}

		if !anyInProgress {
			return status.Success
		}

		select {
		case <-ctx.Done():
			return status.Interrupted
		case <-time.After(2 * heartbeat):
		}
	}
}
