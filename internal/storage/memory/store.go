// Package memory is an in-process transactional store for outlets, virtual
// outlets and operational changes. Tests use it, and so does the service when
// no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
)

type groupKey struct {
	project outlets.LocationID
	id      outlets.LocationID
}

type groupHeader struct {
	compound  bool
	createdAt time.Time
}

type changeKey struct {
	kind    timeline.Kind
	project outlets.LocationID
	at      int64
}

func keyOf(kind timeline.Kind, project outlets.LocationID, at time.Time) changeKey {
	return changeKey{kind: kind, project: project, at: at.UTC().UnixNano()}
}

// state values are never mutated in place; writers replace them. A shallow
// map copy is therefore an isolated transaction snapshot.
type state struct {
	outlets map[outlets.LocationID]outlets.Outlet
	headers map[groupKey]groupHeader
	edges   map[groupKey][]outlets.VirtualOutletRecord
	changes map[changeKey]timeline.Change
}

func newState() state {
	return state{
		outlets: make(map[outlets.LocationID]outlets.Outlet),
		headers: make(map[groupKey]groupHeader),
		edges:   make(map[groupKey][]outlets.VirtualOutletRecord),
		changes: make(map[changeKey]timeline.Change),
	}
}

func (s state) clone() state {
	out := state{
		outlets: make(map[outlets.LocationID]outlets.Outlet, len(s.outlets)),
		headers: make(map[groupKey]groupHeader, len(s.headers)),
		edges:   make(map[groupKey][]outlets.VirtualOutletRecord, len(s.edges)),
		changes: make(map[changeKey]timeline.Change, len(s.changes)),
	}
	for k, v := range s.outlets {
		out.outlets[k] = v
	}
	for k, v := range s.headers {
		out.headers[k] = v
	}
	for k, v := range s.edges {
		out.edges[k] = v
	}
	for k, v := range s.changes {
		out.changes[k] = v
	}
	return out
}

// Store holds the committed state.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newState(), nowFn: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runInTransaction applies fn to a cloned state and commits it only when fn
// succeeds.
func (s *Store) runInTransaction(ctx context.Context, fn func(tx *state, now time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(&tx, s.nowFn()); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

// Outlets returns the outlet repository view of the store.
func (s *Store) Outlets() *OutletRepository {
	return &OutletRepository{store: s}
}

// VirtualOutlets returns the virtual outlet repository view of the store.
func (s *Store) VirtualOutlets() *VirtualOutletRepository {
	return &VirtualOutletRepository{store: s}
}

// Changes returns the change repository view of the store.
func (s *Store) Changes() *ChangeRepository {
	return &ChangeRepository{store: s}
}
