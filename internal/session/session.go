// Package session tracks the signed-in identity on the client and tells
// interested components when it changes.
package session

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrSignedOut is returned by Token when no identity is present.
var ErrSignedOut = errors.New("not signed in")

// Identity is the signed-in user.
type Identity struct {
	UserID string
	Email  string
	Token  string
}

// Store holds the current identity. The zero value is not usable; call New.
type Store struct {
	mu        sync.RWMutex
	current   *Identity
	listeners map[int]func(*Identity)
	nextID    int
}

// New returns a signed-out store.
func New() *Store {
	return &Store{listeners: make(map[int]func(*Identity))}
}

// Session returns a copy of the current identity, or nil when signed out.
func (s *Store) Session() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	id := *s.current
	return &id
}

// SignIn replaces the current identity and notifies listeners.
func (s *Store) SignIn(id Identity) {
	s.set(&id)
}

// SignOut clears the identity and notifies listeners.
func (s *Store) SignOut() {
	s.set(nil)
}

func (s *Store) set(id *Identity) {
	s.mu.Lock()
	s.current = id
	fns := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range fns {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}

// OnAuthStateChange registers fn to run after every sign-in or sign-out.
// Listeners run synchronously in registration order. The returned func
// removes the listener.
func (s *Store) OnAuthStateChange(fn func(*Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// snapshotListeners returns the listeners ordered by registration. Caller holds mu.
func (s *Store) snapshotListeners() []func(*Identity) {
	fns := make([]func(*Identity), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// Token implements oauth2.TokenSource over the current identity.
func (s *Store) Token() (*oauth2.Token, error) {
	id := s.Session()
	if id == nil || id.Token == "" {
		return nil, ErrSignedOut
	}
	return &oauth2.Token{AccessToken: id.Token, TokenType: "Bearer"}, nil
}

var _ oauth2.TokenSource = (*Store)(nil)
