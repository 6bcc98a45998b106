package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/domforge/domhost/dispatch"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/registry"
)

// Session is one instantiation of a composition graph: a set of live,
// mutually wired instances. Sessions built from the same graph share
// nothing; teardown is strictly LIFO relative to instantiation order.
type Session struct {
	dispatcher *dispatch.Dispatcher

	mu        sync.RWMutex
	order     []registry.ComponentID
	instances map[registry.ComponentID]*dispatch.Instance
	closed    bool
}

func (s *Session) add(id registry.ComponentID, inst *dispatch.Instance) {
	s.mu.Lock()
	s.order = append(s.order, id)
	s.instances[id] = inst
	s.mu.Unlock()
}

// resolve is the dispatcher's view of the session while import
// closures run. Components not yet instantiated resolve to nil.
func (s *Session) resolve(id registry.ComponentID) *dispatch.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[id]
}

// Instance returns the live instance of a component.
func (s *Session) Instance(id registry.ComponentID) (*dispatch.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// IDs returns the component ids in instantiation order.
func (s *Session) IDs() []registry.ComponentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.ComponentID, len(s.order))
	copy(out, s.order)
	return out
}

// Invoke calls an export of one instance in the session.
func (s *Session) Invoke(ctx context.Context, id registry.ComponentID, exportName string, args []any) (any, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errors.InvalidInput(errors.PhaseCall, "session is closed")
	}
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "instance", string(id))
	}
	return s.dispatcher.Invoke(ctx, inst, exportName, args)
}

// Close tears down all instances in LIFO order. It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.teardown(ctx)
}

// teardown closes instances newest-first so no instance outlives a
// dependency it imports from.
func (s *Session) teardown(ctx context.Context) error {
	s.mu.Lock()
	order := s.order
	s.order = nil
	instances := s.instances
	s.instances = make(map[registry.ComponentID]*dispatch.Instance)
	s.closed = true
	s.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if err := instances[id].Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		Logger().Debug("instance torn down", zap.String("component", string(id)))
	}
	return firstErr
}
