package model

// PendingMove is a staged transfer, held simultaneously by the proxy
// node's and the target node's pendingMoves lists. Created by the
// Selector, destroyed (slots released) after dispatch completes or
// fails — both paths run through Release.
type PendingMove struct {
	Block  *BlockRef
	Source *StorageGroup
	Target *StorageGroup
	Proxy  *StorageGroup
}

// Release returns both reserved node slots; idempotent (the underlying
// Node.RemovePending is a no-op on an already-removed slot).
func (pm *PendingMove) Release() {
	pm.Target.Node.RemovePending(pm)
	pm.Proxy.Node.RemovePending(pm)
}
