package model

import (
	"sync"
	"time"
)

// Node is an abstract storage host: an opaque identity plus a transfer
// address, a set of per-storage-type StorageGroups, and the moves it is
// currently party to (either as a target or as a proxy).
type Node struct {
	UUID          string
	TransferAddr  string
	Rack          string
	NodeGroup     string
	Groups        map[StorageType]*StorageGroup
	MaxConcurrent int // maxConcurrentMoves policy constant

	mu           sync.Mutex
	delayUntil   time.Time
	pendingMoves []*PendingMove
}

func NewNode(uuid, addr, rack, nodeGroup string, maxConcurrent int) *Node {
	return &Node{
		UUID:          uuid,
		TransferAddr:  addr,
		Rack:          rack,
		NodeGroup:     nodeGroup,
		Groups:        make(map[StorageType]*StorageGroup),
		MaxConcurrent: maxConcurrent,
	}
}

// InBackoff reports whether the node is currently serving a back-off
// window armed by a failed transfer (spec §4.4, invariant I7).
func (n *Node) InBackoff(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return now.Before(n.delayUntil)
}

// ArmBackoff sets delayUntil = now + d, rejecting addPending until it
// elapses.
func (n *Node) ArmBackoff(now time.Time, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delayUntil = now.Add(d)
}

// AddPending atomically reserves a PendingMove slot on this node,
// failing if the node is in back-off or already at its concurrency cap
// (invariants I6, I7). Called for both the target role and the proxy
// role of a staged move.
func (n *Node) AddPending(now time.Time, pm *PendingMove) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now.Before(n.delayUntil) {
		return false
	}
	if len(n.pendingMoves) >= n.MaxConcurrent {
		return false
	}
	n.pendingMoves = append(n.pendingMoves, pm)
	return true
}

// RemovePending releases a previously reserved slot; safe to call even
// if the slot was never granted (no-op in that case).
func (n *Node) RemovePending(pm *PendingMove) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, p := range n.pendingMoves {
		if p == pm {
			n.pendingMoves = append(n.pendingMoves[:i], n.pendingMoves[i+1:]...)
			return
		}
	}
}

// PendingCount returns the number of in-flight moves this node is
// currently party to.
func (n *Node) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pendingMoves)
}

// PendingEmpty reports whether the node has no outstanding moves.
func (n *Node) PendingEmpty() bool {
	return n.PendingCount() == 0
}
