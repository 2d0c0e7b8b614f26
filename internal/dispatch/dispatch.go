// Package dispatch implements the two bounded worker pools described in
// spec §5: a dispatcher pool (one task per Source per iteration,
// running the §4.3.3 selection loop) and a mover pool (one task per
// scheduled block transfer, speaking the TransferPeer protocol, §4.4).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NVIDIA/balancer/cmn/cos"
	"github.com/NVIDIA/balancer/cmn/mono"
	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/keymanager"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/movedwindow"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/selector"
	"github.com/NVIDIA/balancer/internal/topology"
	"github.com/NVIDIA/balancer/internal/transferpeer"
)

// Config holds the tunables named in spec §5/§6.
type Config struct {
	DispatcherPoolSize   int           // default 200
	MoverPoolSize        int           // default 1000
	BackoffDuration      time.Duration // default 10s
	MaxIterationTime     time.Duration // default 20m
	ProgressWaitInterval time.Duration // default 1s
	NoPendingStallLimit  int           // default 5
	MinSrcBlocksToFetch  int           // default 5
	// BlockMoveWaitTime is the poll interval waitForMoveCompletion
	// uses; a global tunable shrunk only by tests (§9).
	BlockMoveWaitTime time.Duration // default 30s
}

// DefaultConfig returns the spec-named defaults.
func DefaultConfig() Config {
	return Config{
		DispatcherPoolSize:   200,
		MoverPoolSize:        1000,
		BackoffDuration:      10 * time.Second,
		MaxIterationTime:     20 * time.Minute,
		ProgressWaitInterval: 1 * time.Second,
		NoPendingStallLimit:  5,
		MinSrcBlocksToFetch:  5,
		BlockMoveWaitTime:    30 * time.Second,
	}
}

// Deps bundles the external collaborators the Dispatcher needs.
type Deps struct {
	NS     nameservice.Service
	Peer   transferpeer.Peer
	Keys   keymanager.KeyManager
	Nodes  map[string]*model.Node
	Oracle topology.Oracle
	Window *movedwindow.Window
	Blocks *model.BlockMap
	Clock  mono.Clock
}

// Dispatcher runs one iteration's worth of dispatcher-pool and
// mover-pool work.
type Dispatcher struct {
	cfg  Config
	deps Deps

	dispatchSem *semaphore.Weighted
	moverSem    *semaphore.Weighted
	progress    *broadcaster

	bytesMoved atomic.Uint64
	inFlight   atomic.Int64
}

func New(cfg Config, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		deps:        deps,
		dispatchSem: semaphore.NewWeighted(int64(cfg.DispatcherPoolSize)),
		moverSem:    semaphore.NewWeighted(int64(cfg.MoverPoolSize)),
		progress:    newBroadcaster(),
	}
}

// BytesMoved returns the process-wide moved-byte counter for the
// current iteration.
func (d *Dispatcher) BytesMoved() uint64 { return d.bytesMoved.Load() }

// Run submits one dispatcher-pool task per Source and blocks until all
// of them have finished their selection loops (not until every mover
// has completed — callers poll WaitForMoveCompletion separately, per
// §5's suspension-point model).
func (d *Dispatcher) Run(ctx context.Context, sources []*model.Source) error {
	deadline := mono.NanoTime(d.deps.Clock).Add(d.cfg.MaxIterationTime)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		if err := d.dispatchSem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer d.dispatchSem.Release(1)
			d.runSource(gctx, src, deadline)
			return nil
		})
	}
	return g.Wait()
}

// WaitForMoveCompletion polls until no mover task is in flight,
// matching §5's blockMoveWaitTime poll loop.
func (d *Dispatcher) WaitForMoveCompletion(ctx context.Context) {
	for d.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.BlockMoveWaitTime):
		}
	}
}

// runSource drives the §4.3.3 dispatch loop for a single Source.
func (d *Dispatcher) runSource(ctx context.Context, source *model.Source, deadline time.Time) {
	noPending := 0
	for {
		now := mono.NanoTime(d.deps.Clock)
		if now.After(deadline) {
			return
		}
		if source.ScheduledBytes() == 0 {
			return
		}
		if source.SrcBlocksLen() == 0 && source.BlocksToReceive <= 0 {
			return
		}

		pm, ok := selector.SelectOne(now, source, d.deps.Oracle, d.deps.Window)
		if ok {
			if err := d.moverSem.Acquire(ctx, 1); err != nil {
				pm.Release()
				return
			}
			d.inFlight.Add(1)
			go func() {
				defer d.moverSem.Release(1)
				d.move(ctx, pm)
			}()
			noPending = 0
			continue
		}

		source.FilterSrcBlocks(func(b *model.BlockRef) bool { return !d.deps.Window.Contains(b.ID) })

		if source.SrcBlocksLen() < d.cfg.MinSrcBlocksToFetch && source.BlocksToReceive > 0 {
			fetched, err := selector.FetchListing(ctx, d.deps.NS, source, d.deps.Blocks, d.deps.Nodes, d.deps.Oracle, d.deps.Window)
			if err != nil {
				nlog.Errorf("fetch listing for %s: %v", source.Node.UUID, err)
			}
			if fetched == 0 {
				// nothing left to list for this source: stop fetching
				source.BlocksToReceive = 0
			}
			source.BlocksToReceive -= int64(fetched)
			if source.BlocksToReceive < 0 {
				source.BlocksToReceive = 0
			}
			continue
		}

		noPending++
		if noPending >= d.cfg.NoPendingStallLimit {
			source.StorageGroup.ZeroScheduled()
			return
		}
		d.progress.Wait(d.cfg.ProgressWaitInterval)
	}
}

// move implements §4.4: open a connection to the target, authenticate,
// request the copy, and record the outcome. Both success and failure
// release the staged slots and broadcast progress.
func (d *Dispatcher) move(ctx context.Context, pm *model.PendingMove) {
	defer d.inFlight.Add(-1)
	defer pm.Release()
	defer d.progress.Broadcast()

	token, err := d.deps.Keys.Token(ctx, pm.Block.ID)
	if err != nil {
		nlog.Errorf("token for block %s: %v", pm.Block.ID, err)
		d.fail(pm)
		return
	}

	req := transferpeer.ReplaceBlockRequest{
		Block:         pm.Block.ID,
		StorageType:   pm.Target.StorageType,
		AccessToken:   token,
		SourceUUID:    pm.Source.Node.UUID,
		CorrelationID: uuid.NewString(),
		ProxyNode: transferpeer.ProxyNodeDescriptor{
			NodeUUID:     pm.Proxy.Node.UUID,
			TransferAddr: pm.Proxy.Node.TransferAddr,
		},
	}
	resp, err := d.deps.Peer.ReplaceBlock(ctx, pm.Target.Node.TransferAddr, req)
	if err != nil {
		nlog.Errorf("replace block %s on %s: %v", pm.Block.ID, pm.Target.Node.UUID, err)
		d.fail(pm)
		return
	}
	if resp.Status != transferpeer.StatusSuccess {
		nlog.Errorf("replace block %s on %s: %s: %s", pm.Block.ID, pm.Target.Node.UUID, resp.Status, resp.Message)
		d.fail(pm)
		return
	}

	d.bytesMoved.Add(pm.Block.ID.Length)
	if nlog.FastV(4, cos.SmoduleDispatch) {
		nlog.Infof("moved block %s: %s -> %s (proxy %s)", pm.Block.ID, pm.Source.Node.UUID, pm.Target.Node.UUID, pm.Proxy.Node.UUID)
	}
}

// fail arms the 10s back-off on both the proxy and the target (§4.4);
// the slot release and progress broadcast happen via the deferred
// calls in move.
func (d *Dispatcher) fail(pm *model.PendingMove) {
	now := mono.NanoTime(d.deps.Clock)
	pm.Proxy.Node.ArmBackoff(now, d.cfg.BackoffDuration)
	pm.Target.Node.ArmBackoff(now, d.cfg.BackoffDuration)
}
