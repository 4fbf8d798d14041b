package domain

import "sync"

// Change describes one applied transition.
type Change struct {
	Prev   State
	Next   State
	Action Action
}

// ItemsChanged reports whether the transition altered the cart contents.
func (c Change) ItemsChanged() bool {
	return !ItemsEqual(c.Prev.Items, c.Next.Items)
}

// Listener receives every transition applied to a Store, in dispatch order.
type Listener func(Change)

// Store owns the authoritative cart State. Dispatch is serialized and
// listeners run after the state is updated, outside the state lock. Listeners
// may read the store but must not call Dispatch.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	order     []int
	nextID    int

	// notifyMu keeps listener delivery in dispatch order across goroutines.
	notifyMu sync.Mutex
}

// NewStore returns a store holding an empty cart.
func NewStore() *Store {
	return &Store{
		state:     NewState(),
		listeners: make(map[int]Listener),
	}
}

// State returns a snapshot of the current cart.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Items = CloneItems(st.Items)
	return st
}

// Dispatch applies a and notifies listeners. It returns the resulting state.
func (s *Store) Dispatch(a Action) State {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	change := Change{Prev: prev, Next: next, Action: a}
	for _, l := range listeners {
		l(change)
	}
	return next
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.listeners[id])
	}
	return out
}
