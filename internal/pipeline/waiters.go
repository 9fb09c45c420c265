package pipeline

import (
	"sync"
	"time"
)

type waiterEntry struct {
	ch        chan struct{}
	submitted time.Time
}

// waiterRegistry parks symbol workers until their order's terminal
// event has been appended.
type waiterRegistry struct {
	mu      sync.Mutex
	waiters map[string]waiterEntry
}

func newWaiterRegistry() *waiterRegistry {
	return &waiterRegistry{waiters: make(map[string]waiterEntry)}
}

// register creates a waiter for the order. The returned channel closes
// when notify is called for the same order id.
func (r *waiterRegistry) register(orderID string, submitted time.Time) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := waiterEntry{ch: make(chan struct{}), submitted: submitted}
	r.waiters[orderID] = e
	return e.ch
}

// notify releases the order's waiter. Returns the submit time and
// whether a waiter was registered.
func (r *waiterRegistry) notify(orderID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.waiters[orderID]
	if !ok {
		return time.Time{}, false
	}
	delete(r.waiters, orderID)
	close(e.ch)
	return e.submitted, true
}

// cancel drops the waiter without firing it. The caller must not wait
// on the channel afterwards.
func (r *waiterRegistry) cancel(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, orderID)
}
