// Package session tracks who the cart belongs to and verifies the bearer
// tokens that establish it.
package session

import (
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Transition is delivered to resolver subscribers on every identity change.
type Transition struct {
	Prev domain.Identity
	Next domain.Identity
}

// Login reports whether the transition is a guest signing in.
func (t Transition) Login() bool {
	return !t.Prev.IsAuthenticated() && t.Next.IsAuthenticated()
}

// Resolver holds the current identity of one cart session. The authentication
// collaborator calls Set on login and logout.
type Resolver struct {
	mu        sync.Mutex
	current   domain.Identity
	listeners []func(Transition)

	notifyMu sync.Mutex
}

// NewResolver returns a resolver starting as a guest.
func NewResolver() *Resolver {
	return &Resolver{current: domain.Guest}
}

// Current returns the current identity.
func (r *Resolver) Current() domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Set switches to next and notifies subscribers. It reports whether the
// identity changed; setting the current identity again is a no-op.
func (r *Resolver) Set(next domain.Identity) bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	prev := r.current
	if prev == next {
		r.mu.Unlock()
		return false
	}
	r.current = next
	listeners := append([]func(Transition){}, r.listeners...)
	r.mu.Unlock()

	t := Transition{Prev: prev, Next: next}
	for _, l := range listeners {
		l(t)
	}
	return true
}

// Subscribe registers fn for every subsequent transition.
func (r *Resolver) Subscribe(fn func(Transition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
