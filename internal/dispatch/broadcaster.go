package dispatch

import (
	"sync"
	"time"
)

// broadcaster is a timeout-capable stand-in for the shared "progress"
// condition variable of §5: a finished move (which releases its slots
// and may have advanced bytesMoved) calls Broadcast; a stalled Selector
// calls Wait with a bound so it never blocks past the 1s ceiling named
// in §4.3.3. Back-off expiry and the slot a failed selection gives back
// send no broadcast; a waiting Selector notices them only when its Wait
// times out.
type broadcaster struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan struct{})}
}

func (b *broadcaster) Wait(timeout time.Duration) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

func (b *broadcaster) Broadcast() {
	b.mu.Lock()
	old := b.ch
	b.ch = make(chan struct{})
	b.mu.Unlock()
	close(old)
}
