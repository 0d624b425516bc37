package orders

import (
	"sync"

	"github.com/google/uuid"
)

// orderLocks is an in-process busy set. A caller that fails to acquire an
// order is told to retry rather than queued, so a slow escrow call never
// stacks up waiters on one order.
type orderLocks struct {
	mu   sync.Mutex
	busy map[uuid.UUID]struct{}
}

func newOrderLocks() *orderLocks {
	return &orderLocks{busy: make(map[uuid.UUID]struct{})}
}

func (l *orderLocks) acquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.busy[id]; held {
		return false
	}
	l.busy[id] = struct{}{}
	return true
}

func (l *orderLocks) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, id)
}
