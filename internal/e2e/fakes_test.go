package e2e

import (
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/NVIDIA/balancer/internal/iteration"
	"github.com/NVIDIA/balancer/internal/keymanager"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/nameservice"
	"github.com/NVIDIA/balancer/internal/policy"
	"github.com/NVIDIA/balancer/internal/status"
	"github.com/NVIDIA/balancer/internal/transferpeer"
)

// captureOutput redirects a Driver's stdout report destination to a
// pipe for the duration of the test, returning a function that closes
// the pipe and returns everything written.
func captureOutput(d *iteration.Driver) (*os.File, func() string) {
	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	d.Out = w

	done := make(chan string, 1)
	go func() {
		var sb []byte
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			sb = append(sb, scanner.Bytes()...)
			sb = append(sb, '\n')
		}
		done <- string(sb)
	}()

	return w, func() string {
		w.Close()
		return <-done
	}
}

// fakeClock is an injectable mono.Clock for deterministic back-off math.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

// fakeKeys is a no-op keymanager.KeyManager.
type fakeKeys struct{}

func (fakeKeys) Token(context.Context, model.BlockID) (string, error) { return "tok", nil }

type blockState struct {
	id        model.BlockID
	locations []model.GroupKey
}

// fakeNS is a minimal, fully in-memory nameservice.Service: enough to
// drive IterationDriver/MultiServiceRunner through a full init->choose->
// pair->dispatch->wait->report pass without any real RPC.
type fakeNS struct {
	mu sync.Mutex

	reports []nameservice.DatanodeStorageReport
	blocks  map[model.BlockID]*blockState

	alreadyRunning bool
	continueFn     func(bytesThisIter uint64) bool
}

func newFakeNS(reports []nameservice.DatanodeStorageReport, blocks []*blockState) *fakeNS {
	ns := &fakeNS{
		reports:    reports,
		blocks:     make(map[model.BlockID]*blockState, len(blocks)),
		continueFn: func(uint64) bool { return true },
	}
	for _, b := range blocks {
		ns.blocks[b.id] = b
	}
	return ns
}

func (ns *fakeNS) DatanodeStorageReport(context.Context) ([]nameservice.DatanodeStorageReport, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.alreadyRunning {
		return nil, status.ErrAlreadyRunning
	}
	out := make([]nameservice.DatanodeStorageReport, len(ns.reports))
	copy(out, ns.reports)
	return out, nil
}

func (ns *fakeNS) GetBlocks(_ context.Context, nodeUUID string, _ uint64) ([]nameservice.BlockWithLocations, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	var out []nameservice.BlockWithLocations
	for _, b := range ns.blocks {
		for _, loc := range b.locations {
			if loc.NodeUUID == nodeUUID {
				out = append(out, nameservice.BlockWithLocations{ID: b.id, Locations: b.locations})
				break
			}
		}
	}
	return out, nil
}

func (ns *fakeNS) BlockpoolID() string                      { return "pool-0" }
func (ns *fakeNS) KeyManager() keymanager.KeyManager        { return fakeKeys{} }
func (ns *fakeNS) ShouldContinue(bytesThisIter uint64) bool { return ns.continueFn(bytesThisIter) }
func (ns *fakeNS) Close() error                             { return nil }

// relocate moves a block's replica from `from` to `to`, adjusting both
// nodes' reported figures accordingly — standing in for what a real
// storage node would report after a successful REPLACE_BLOCK.
func (ns *fakeNS) relocate(id model.BlockID, from, to model.GroupKey) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	b, ok := ns.blocks[id]
	if !ok {
		return
	}
	next := make([]model.GroupKey, 0, len(b.locations))
	for _, l := range b.locations {
		if l == from {
			continue
		}
		next = append(next, l)
	}
	b.locations = append(next, to)

	for i := range ns.reports {
		switch ns.reports[i].NodeUUID {
		case from.NodeUUID:
			f := ns.reports[i].Figures[from.StorageType]
			f.Used -= id.Length
			ns.reports[i].Figures[from.StorageType] = f
		case to.NodeUUID:
			f := ns.reports[i].Figures[to.StorageType]
			f.Used += id.Length
			ns.reports[i].Figures[to.StorageType] = f
		}
	}
}

func (ns *fakeNS) locationsOf(id model.BlockID) []model.GroupKey {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	out := make([]model.GroupKey, len(ns.blocks[id].locations))
	copy(out, ns.blocks[id].locations)
	return out
}

// fakePeer relays a REPLACE_BLOCK request straight into the owning
// fakeNS's bookkeeping, always succeeding unless told to fail.
type fakePeer struct {
	ns       *fakeNS
	fail     bool
	requests []transferpeer.ReplaceBlockRequest
	mu       sync.Mutex
}

func (p *fakePeer) ReplaceBlock(_ context.Context, addr string, req transferpeer.ReplaceBlockRequest) (transferpeer.ReplaceBlockResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.fail {
		return transferpeer.ReplaceBlockResponse{Status: transferpeer.StatusError, Message: "injected failure"}, nil
	}
	targetUUID := addrToUUID[addr]
	p.ns.relocate(req.Block,
		model.GroupKey{NodeUUID: req.SourceUUID, StorageType: req.StorageType},
		model.GroupKey{NodeUUID: targetUUID, StorageType: req.StorageType})
	return transferpeer.ReplaceBlockResponse{Status: transferpeer.StatusSuccess}, nil
}

// addrToUUID lets fakePeer recover a target node's UUID from the
// TransferAddr the dispatcher dials (the only identifier ReplaceBlock's
// signature carries); each scenario populates it for its own nodes.
var addrToUUID = map[string]string{}
