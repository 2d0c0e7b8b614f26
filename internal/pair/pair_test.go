package pair

import (
	"testing"

	"github.com/NVIDIA/balancer/internal/classify"
	"github.com/NVIDIA/balancer/internal/model"
	"github.com/NVIDIA/balancer/internal/topology"
)

func node(uuid, rack string) *model.Node { return model.NewNode(uuid, uuid+":9000", rack, "", 5) }

func TestPairSchedulesAcrossSameRack(t *testing.T) {
	src := model.NewSource(model.NewStorageGroup(node("src", "r1"), "ssd", 1000, 900))
	src.MaxMovable = 100
	tgt := model.NewStorageGroup(node("tgt", "r1"), "ssd", 1000, 100)
	tgt.MaxMovable = 100

	res := classify.Result{
		OverUtilized:  []*model.Source{src},
		Underutilized: []*model.StorageGroup{tgt},
	}
	oracle := topology.NewMapOracle(map[string]topology.Location{
		"src": {Rack: "r1"},
		"tgt": {Rack: "r1"},
	}, false)

	scheduled := Pair(res, oracle)
	if scheduled != 100 {
		t.Fatalf("Pair() scheduled = %d, want 100", scheduled)
	}
	tasks := src.PendingTasks()
	if len(tasks) != 1 || tasks[0].Target != tgt || tasks[0].Size != 100 {
		t.Fatalf("unexpected task list: %+v", tasks)
	}
}

func TestPairNeverTargetsSameNode(t *testing.T) { // I3
	n := node("only", "r1")
	g1 := model.NewStorageGroup(n, "ssd", 1000, 900)
	g1.MaxMovable = 100
	src := model.NewSource(g1)

	g2 := model.NewStorageGroup(n, "ssd", 1000, 900) // same node, would-be self-target
	g2.MaxMovable = 100

	res := classify.Result{
		OverUtilized:  []*model.Source{src},
		Underutilized: []*model.StorageGroup{g2},
	}
	oracle := topology.NewMapOracle(map[string]topology.Location{"only": {Rack: "r1"}}, false)
	scheduled := Pair(res, oracle)
	if scheduled != 0 {
		t.Fatalf("expected no scheduling since source and target share a node, got %d", scheduled)
	}
}

func TestPairSkipsMismatchedStorageType(t *testing.T) { // I5
	src := model.NewSource(model.NewStorageGroup(node("src", "r1"), "ssd", 1000, 900))
	src.MaxMovable = 100
	tgt := model.NewStorageGroup(node("tgt", "r1"), "hdd", 1000, 100) // different storage type
	tgt.MaxMovable = 100

	res := classify.Result{
		OverUtilized:  []*model.Source{src},
		Underutilized: []*model.StorageGroup{tgt},
	}
	oracle := topology.NewMapOracle(map[string]topology.Location{
		"src": {Rack: "r1"}, "tgt": {Rack: "r1"},
	}, false)
	if scheduled := Pair(res, oracle); scheduled != 0 {
		t.Fatalf("expected mismatched storage types never to pair, got %d scheduled", scheduled)
	}
}

func TestPairFallsBackToAnyLocalityPass(t *testing.T) {
	src := model.NewSource(model.NewStorageGroup(node("src", "r1"), "ssd", 1000, 900))
	src.MaxMovable = 100
	tgt := model.NewStorageGroup(node("tgt", "r2"), "ssd", 1000, 100) // different rack
	tgt.MaxMovable = 100

	res := classify.Result{
		OverUtilized:  []*model.Source{src},
		Underutilized: []*model.StorageGroup{tgt},
	}
	oracle := topology.NewMapOracle(map[string]topology.Location{
		"src": {Rack: "r1"}, "tgt": {Rack: "r2"},
	}, false)
	if scheduled := Pair(res, oracle); scheduled != 100 {
		t.Fatalf("expected the looser Any pass to still pair cross-rack, got %d", scheduled)
	}
}
