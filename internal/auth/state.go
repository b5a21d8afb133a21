// Package auth tracks which user a session is acting for.
package auth

import "sync"

// Provider exposes the current identity and its transitions.
type Provider interface {
	// CurrentUser returns the signed-in user id, if any.
	CurrentUser() (string, bool)
	// OnAuthStateChanged calls fn with the current identity immediately and
	// again after every change ("" when signed out). The returned func
	// unregisters fn.
	OnAuthStateChanged(fn func(userID string)) (unsubscribe func())
}

// State is an in-process Provider, signed in once a Clerk token has been
// verified for the connection.
type State struct {
	mu        sync.Mutex
	userID    string
	nextID    int
	listeners map[int]func(string)
}

func NewState() *State {
	return &State{listeners: make(map[int]func(string))}
}

func (s *State) CurrentUser() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

func (s *State) SignIn(userID string) {
	s.transition(userID)
}

func (s *State) SignOut() {
	s.transition("")
}

func (s *State) transition(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(userID)
	}
}

func (s *State) OnAuthStateChanged(fn func(userID string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.userID
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
