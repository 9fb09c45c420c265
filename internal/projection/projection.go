// Package projection derives read models by folding the event log. Every
// projection is a pure reducer: same log in, same state out, every time.
package projection

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgrah50/rx-trader-sub002/internal/domain"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
)

// Error reports a malformed payload of a known event type encountered
// during a fold. It is fatal to that rebuild: no partial state escapes.
type Error struct {
	EventID string
	Seq     uint64
	Type    domain.EventType
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("projection failed at seq %d (%s event %s): %v", e.Seq, e.Type, e.EventID, e.Err)
}

// Unwrap returns the underlying apply failure.
func (e *Error) Unwrap() error {
	return e.Err
}

// Projection pairs an initial state with a pure apply step. Apply must not
// perform I/O, read clocks, or consult anything outside state and event;
// unknown event types must pass through as a no-op.
type Projection[S any] struct {
	Name  string
	Init  func() S
	Apply func(S, storage.StoredEvent) (S, error)
}

// Build replays the full log through the projection and returns the final
// state with the last applied sequence. Rebuilding over the same log always
// produces the same state.
func Build[S any](ctx context.Context, store storage.EventStore, p Projection[S]) (S, uint64, error) {
	state := p.Init()

	events, err := store.Read(ctx, 0)
	if err != nil {
		return state, 0, fmt.Errorf("read log for %s: %w", p.Name, err)
	}

	var lastSeq uint64
	for _, se := range events {
		state, err = p.Apply(state, se)
		if err != nil {
			return p.Init(), lastSeq, &Error{
				EventID: se.Event.ID,
				Seq:     se.Seq,
				Type:    se.Event.Type,
				Err:     err,
			}
		}
		lastSeq = se.Seq
	}

	return state, lastSeq, nil
}

// Fold keeps a projection's state warm by applying events as they are
// appended. Applying the same events Build would read yields the identical
// state; State returns under a read lock and callers receive the live value
// through the projection's Clone function.
type Fold[S any] struct {
	mu      sync.RWMutex
	p       Projection[S]
	clone   func(S) S
	state   S
	lastSeq uint64
}

// NewFold creates a warm fold at the projection's initial state. clone makes
// the copy State hands out; nil means the state is a value type safe to
// return as-is.
func NewFold[S any](p Projection[S], clone func(S) S) *Fold[S] {
	return &Fold[S]{p: p, clone: clone, state: p.Init()}
}

// ApplySeq folds one stored event into the state. Events must arrive in
// sequence order; stale or replayed sequences are ignored so re-deliveries
// cannot double-apply.
func (f *Fold[S]) ApplySeq(se storage.StoredEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if se.Seq <= f.lastSeq {
		return nil
	}

	next, err := f.p.Apply(f.state, se)
	if err != nil {
		return &Error{EventID: se.Event.ID, Seq: se.Seq, Type: se.Event.Type, Err: err}
	}
	f.state = next
	f.lastSeq = se.Seq
	return nil
}

// State returns a copy of the current state and the last applied sequence.
func (f *Fold[S]) State() (S, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clone == nil {
		return f.state, f.lastSeq
	}
	return f.clone(f.state), f.lastSeq
}
