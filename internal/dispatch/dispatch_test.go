package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/NVIDIA/balancer/cmn/mono"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/movedwindow"
	"github.com/NVIDIA/balancer/internal/topology"
	"github.com/NVIDIA/balancer/internal/transferpeer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakePeer struct {
	result transferpeer.ReplaceBlockResponse
	err    error
	calls  int
}

func (p *fakePeer) ReplaceBlock(context.Context, string, transferpeer.ReplaceBlockRequest) (transferpeer.ReplaceBlockResponse, error) {
	p.calls++
	return p.result, p.err
}

type fakeKeys struct{}

func (fakeKeys) Token(context.Context, model.BlockID) (string, error) { return "tok", nil }

func group(uuid, rack string, maxConcurrent int) *model.StorageGroup {
	n := model.NewNode(uuid, uuid+":9000", rack, "", maxConcurrent)
	g := model.NewStorageGroup(n, "ssd", 1000, 500)
	n.Groups["ssd"] = g
	return g
}

func oneSourceDeps(srcGroup, tgtGroup *model.StorageGroup, clock mono.Clock) (*model.Source, Deps) {
	source := model.NewSource(srcGroup)
	source.MaxMovable = 100
	source.Reserve(100)
	tgtGroup.Reserve(100)
	source.AddTask(&model.Task{Target: tgtGroup, Size: 100})

	block := model.NewBlockRef(model.BlockID{PoolID: "p", ID: 1, Length: 40})
	block.SetLocations([]*model.StorageGroup{srcGroup})
	source.AppendSrcBlock(block)

	oracle := topology.NewMapOracle(map[string]topology.Location{
		srcGroup.Node.UUID: {Rack: srcGroup.Node.Rack},
		tgtGroup.Node.UUID: {Rack: tgtGroup.Node.Rack},
	}, false)

	deps := Deps{
		Keys:   fakeKeys{},
		Nodes:  map[string]*model.Node{srcGroup.Node.UUID: srcGroup.Node, tgtGroup.Node.UUID: tgtGroup.Node},
		Oracle: oracle,
		Window: movedwindow.New(time.Minute),
		Blocks: model.NewBlockMap(),
		Clock:  clock,
	}
	return source, deps
}

func TestDispatcherRunMovesAvailableBlock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	srcGroup := group("src", "r1", 5)
	tgtGroup := group("tgt", "r1", 5)
	source, deps := oneSourceDeps(srcGroup, tgtGroup, clock)
	peer := &fakePeer{result: transferpeer.ReplaceBlockResponse{Status: transferpeer.StatusSuccess}}
	deps.Peer = peer

	cfg := DefaultConfig()
	cfg.ProgressWaitInterval = time.Millisecond
	cfg.NoPendingStallLimit = 3
	disp := New(cfg, deps)

	ctx := context.Background()
	if err := disp.Run(ctx, []*model.Source{source}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	disp.WaitForMoveCompletion(ctx)

	if peer.calls != 1 {
		t.Fatalf("expected exactly one ReplaceBlock call, got %d", peer.calls)
	}
	if disp.BytesMoved() != 40 {
		t.Fatalf("BytesMoved() = %d, want 40", disp.BytesMoved())
	}
}

func TestDispatcherFailArmsBackoffOnBothNodes(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	srcGroup := group("src", "r1", 5)
	tgtGroup := group("tgt", "r1", 5)
	_, deps := oneSourceDeps(srcGroup, tgtGroup, clock)
	deps.Peer = &fakePeer{err: context.DeadlineExceeded}

	cfg := DefaultConfig()
	disp := New(cfg, deps)

	pm := &model.PendingMove{
		Block:  model.NewBlockRef(model.BlockID{PoolID: "p", ID: 1, Length: 10}),
		Source: srcGroup,
		Target: tgtGroup,
		Proxy:  srcGroup,
	}
	srcGroup.Node.AddPending(clock.Now(), pm)
	tgtGroup.Node.AddPending(clock.Now(), pm)

	disp.move(context.Background(), pm)

	if !srcGroup.Node.InBackoff(clock.t.Add(5 * time.Second)) { // I7
		t.Fatal("expected proxy node to be in back-off after a failed move")
	}
	if !tgtGroup.Node.InBackoff(clock.t.Add(5 * time.Second)) {
		t.Fatal("expected target node to be in back-off after a failed move")
	}
	if !srcGroup.Node.PendingEmpty() || !tgtGroup.Node.PendingEmpty() {
		t.Fatal("expected both reserved slots to be released after move failure")
	}
}

func TestDispatcherStopsAfterStallLimit(t *testing.T) {
	// a source whose only candidate block never satisfies IsGood (wrong
	// storage type) must give up after NoPendingStallLimit empty
	// selection attempts and release its scheduled quota (§4.3.3),
	// rather than spinning on selection forever.
	clock := &fakeClock{t: time.Unix(0, 0)}
	srcGroup := group("src", "r1", 5)
	tgtGroup := group("tgt", "r1", 5)
	source := model.NewSource(srcGroup)
	source.MaxMovable = 100
	source.Reserve(100)
	tgtGroup.Reserve(100)
	source.AddTask(&model.Task{Target: tgtGroup, Size: 100})
	source.BlocksToReceive = 0 // no more listings to fetch

	block := model.NewBlockRef(model.BlockID{PoolID: "p", ID: 1, Length: 40})
	block.SetLocations([]*model.StorageGroup{srcGroup})
	source.AppendSrcBlock(block)
	tgtGroup.StorageType = "hdd" // mismatched storage type: IsGood always rejects (I5)

	oracle := topology.NewMapOracle(map[string]topology.Location{
		"src": {Rack: "r1"}, "tgt": {Rack: "r1"},
	}, false)
	deps := Deps{
		Keys:   fakeKeys{},
		Nodes:  map[string]*model.Node{"src": srcGroup.Node, "tgt": tgtGroup.Node},
		Oracle: oracle,
		Window: movedwindow.New(time.Minute),
		Blocks: model.NewBlockMap(),
		Clock:  clock,
		Peer:   &fakePeer{},
	}

	cfg := DefaultConfig()
	cfg.ProgressWaitInterval = time.Millisecond
	cfg.NoPendingStallLimit = 3
	disp := New(cfg, deps)

	if err := disp.Run(context.Background(), []*model.Source{source}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if srcGroup.ScheduledBytes() != 0 {
		t.Fatalf("expected ZeroScheduled to have fired after the stall limit, got %d scheduled", srcGroup.ScheduledBytes())
	}
}
