// Package iteration implements the IterationDriver: one balancing pass
// of init -> choose -> dispatch -> wait -> report (spec §4.5).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package iteration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/NVIDIA/balancer/cmn/mono"
	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/classify"
	"github.com/NVIDIA/balancer/internal/dispatch"
	"github.com/NVIDIA/balancer/internal/keymanager"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/movedwindow"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/pair"
	"github.com/NVIDIA/balancer/internal/policy"
	"github.com/NVIDIA/balancer/internal/stats"
	"github.com/NVIDIA/balancer/internal/status"
	"github.com/NVIDIA/balancer/internal/topology"
	"github.com/NVIDIA/balancer/internal/trace"
	"github.com/NVIDIA/balancer/internal/transferpeer"
)

// Driver runs repeated iterations against a single NameService
// connector. The fields that must persist across iterations
// (globalBlockMap, MovedBlocksWindow, cumulative bytesMoved) live here;
// everything else is iteration-scoped and rebuilt by Classify each
// pass (§3's resetData lifecycle).
type Driver struct {
	Policy      policy.Policy
	Threshold   float64 // fraction, e.g. 0.10 for 10%
	DispatchCfg dispatch.Config
	Peer        transferpeer.Peer
	Oracle      topology.Oracle
	Stats       *stats.Registry
	Clock       mono.Clock
	Rand        *rand.Rand
	Out         *os.File // stdout progress report destination

	blocks     *model.BlockMap
	window     *movedwindow.Window
	bytesMoved uint64
	iteration  int
}

// New constructs a Driver with fresh (iteration 0) persistent state.
func New(pol policy.Policy, threshold float64, dispatchCfg dispatch.Config, peer transferpeer.Peer, oracle topology.Oracle, windowWidth time.Duration, stat *stats.Registry, clock mono.Clock, rnd *rand.Rand) *Driver {
	return &Driver{
		Policy:      pol,
		Threshold:   threshold,
		DispatchCfg: dispatchCfg,
		Peer:        peer,
		Oracle:      oracle,
		Stats:       stat,
		Clock:       clock,
		Rand:        rnd,
		Out:         os.Stdout,
		blocks:      model.NewBlockMap(),
		window:      movedwindow.New(windowWidth),
	}
}

type nsContextKey struct{}

// WithNameService binds the connector this RunOnce call should use;
// MultiServiceRunner calls this once per connector per round so a
// single Driver (and its persistent globalBlockMap/window) can be
// reused across connectors... in practice each connector gets its own
// Driver (see runner package) — the context binding exists so RunOnce
// itself never needs a nameservice.Service field.
func WithNameService(ctx context.Context, ns nameservice.Service) context.Context {
	return context.WithValue(ctx, nsContextKey{}, ns)
}

func nsFromContext(ctx context.Context) nameservice.Service {
	ns, _ := ctx.Value(nsContextKey{}).(nameservice.Service)
	return ns
}

// keysAdapter exposes a nameservice.Service's KeyManager as the
// keymanager.KeyManager the Dispatcher wants.
type keysAdapter struct{ ns nameservice.Service }

func (k keysAdapter) Token(ctx context.Context, id model.BlockID) (string, error) {
	return k.ns.KeyManager().Token(ctx, id)
}

var _ keymanager.KeyManager = keysAdapter{}

// RunOnce executes a single init->choose->dispatch->wait->report pass
// (spec §4.5) and returns the resulting status.Code.
func (d *Driver) RunOnce(ctx context.Context) (status.Code, stats.Snapshot, error) {
	d.iteration++
	snap := stats.Snapshot{Iteration: d.iteration}

	ns := nsFromContext(ctx)
	if ns == nil {
		return status.IllegalArgs, snap, status.ErrIllegalArgs
	}

	ictx, end := trace.Phase(ctx, "init")
	reports, err := ns.DatanodeStorageReport(ictx)
	end()
	if err != nil {
		if errors.Is(err, status.ErrAlreadyRunning) {
			return status.AlreadyRunning, snap, err
		}
		return status.IOException, snap, &status.NameServiceError{Err: err}
	}

	_, end = trace.Phase(ctx, "choose")
	res := classify.Classify(reports, d.Policy, d.Threshold, d.Rand)
	end()

	snap.OverUtilized = len(res.OverUtilized)
	snap.AboveAvg = len(res.AboveAvg)
	snap.BelowAvg = len(res.BelowAvg)
	snap.Underutilized = len(res.Underutilized)
	snap.BytesLeftToMove = res.BytesLeftToMove

	if len(res.OverUtilized) == 0 && len(res.Underutilized) == 0 { // T1
		fmt.Fprintln(d.Out, "The cluster is balanced")
		d.report(snap)
		return status.Success, snap, nil
	}

	scheduled := pair.Pair(res, d.Oracle)
	if scheduled == 0 { // T2
		return status.NoMoveBlock, snap, nil
	}

	sources := make([]*model.Source, 0, len(res.OverUtilized)+len(res.AboveAvg))
	sources = append(sources, res.OverUtilized...)
	sources = append(sources, res.AboveAvg...)
	for _, s := range sources {
		s.BlocksToReceive = int64(2 * s.ScheduledBytes())
	}

	dctx, end := trace.Phase(ctx, "dispatch")
	disp := dispatch.New(d.DispatchCfg, dispatch.Deps{
		NS:     ns,
		Peer:   d.Peer,
		Keys:   keysAdapter{ns: ns},
		Nodes:  res.Nodes,
		Oracle: d.Oracle,
		Window: d.window,
		Blocks: d.blocks,
		Clock:  d.Clock,
	})
	runErr := disp.Run(dctx, sources)
	end()
	if runErr != nil {
		return status.Interrupted, snap, status.ErrInterrupted
	}

	_, end = trace.Phase(ctx, "wait")
	disp.WaitForMoveCompletion(ctx)
	end()

	_, end = trace.Phase(ctx, "report")
	bytesThisIter := disp.BytesMoved()
	d.bytesMoved += bytesThisIter
	snap.BytesMoved = d.bytesMoved
	snap.BytesThisIter = bytesThisIter
	d.report(snap)
	end()

	now := mono.NanoTime(d.Clock)
	keepIds := d.window.Ids()
	d.blocks.Trim(func(id model.BlockID) bool {
		_, ok := keepIds[id]
		return ok
	})
	d.window.Prune(now)

	if !ns.ShouldContinue(bytesThisIter) { // T3
		return status.NoMoveProgress, snap, nil
	}
	return status.InProgress, snap, nil
}

// report prints the one-line-per-iteration stdout progress report
// named in spec §6.
func (d *Driver) report(s stats.Snapshot) {
	ts := mono.NanoTime(d.Clock).Format(time.RFC3339)
	fmt.Fprintf(d.Out, "%s %d %d %d %d\n", ts, s.Iteration, s.BytesMoved, s.BytesLeftToMove, s.BytesThisIter)
	if d.Stats != nil {
		d.Stats.Observe(s)
	}
	if nlog.FastV(2, "iteration") {
		nlog.Infof("iteration %d: over=%d aboveAvg=%d belowAvg=%d under=%d", s.Iteration, s.OverUtilized, s.AboveAvg, s.BelowAvg, s.Underutilized)
	}
}
