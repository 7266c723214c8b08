package goalsync

import (
	"context"
	"errors"
	"log"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/retry"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/session"
)

var (
	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("goal service closed")

	// ErrNoSession is returned by mutations while signed out.
	ErrNoSession = errors.New("not signed in")
)

// Status is the fetch state of the view.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Filters scopes the view. FolderID takes precedence over Unorganized.
type Filters struct {
	FolderID    *int64
	Unorganized bool
	Search      string
}

// Equal reports whether two filter sets select the same goals.
func (f Filters) Equal(o Filters) bool {
	return f.folderScoped() == o.folderScoped() &&
		(!f.folderScoped() || (schema.Goal{FolderID: f.folder()}).InFolder(o.folder())) &&
		strings.TrimSpace(f.Search) == strings.TrimSpace(o.Search)
}

func (f Filters) folderScoped() bool {
	return f.FolderID != nil || f.Unorganized
}

// folder returns the folder the view is scoped to; nil is the unorganized bucket.
func (f Filters) folder() *int64 {
	return f.FolderID
}

// Query converts the filters to a backend filter.
func (f Filters) Query() schema.Filter {
	q := schema.Filter{}
	switch {
	case f.FolderID != nil:
		q = q.Where("folder_id", *f.FolderID)
	case f.Unorganized:
		q = q.IsNull("folder_id")
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		q = q.Matching(search)
	}
	return q
}

// Matches reports whether g belongs in a view with these filters.
func (f Filters) Matches(g schema.Goal) bool {
	if f.folderScoped() && !g.InFolder(f.folder()) {
		return false
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(g.Title), search) ||
		strings.Contains(strings.ToLower(g.Description), search)
}

// State is a snapshot of the view. Goals is a copy owned by the caller.
type State struct {
	Status         Status
	Goals          []schema.Goal
	Stats          Stats
	IsLoading      bool
	IsReconnecting bool
	Err            error
	Filters        Filters
	Attempt        int
}

// Sessions is the identity source the service follows.
type Sessions interface {
	Session() *session.Identity
	OnAuthStateChange(fn func(*session.Identity)) func()
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default: stderr with a "[sync] " prefix).
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets where user-visible notices go (default: the logger).
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRetryPolicy overrides the fetch backoff.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.policy = p.WithDefaults()
	}
}

// WithFilters sets the initial filters.
func WithFilters(f Filters) Option {
	return func(s *Service) {
		s.filters = f
	}
}

// Service is the goal synchronization core for one view.
type Service struct {
	client   remote.Client
	sessions Sessions
	logger   *log.Logger
	notifier Notifier
	policy   retry.Policy

	// guarded by mu
	mu        sync.Mutex
	status    Status
	goals     []schema.Goal
	err       error
	filters   Filters
	attempt   int
	closed    bool
	listeners map[int]func(State)
	nextID    int

	authSig    chan struct{}
	filterSig  chan struct{}
	refreshSig chan struct{}
	invalidate chan struct{}
	changed    chan struct{}
	results    chan fetchResult

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopAuth func()
}

// New creates a service and starts following sessions. If a session is
// already present the first fetch starts immediately.
func New(client remote.Client, sessions Sessions, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		client:     client,
		sessions:   sessions,
		logger:     log.New(os.Stderr, "[sync] ", log.LstdFlags),
		policy:     retry.Default(),
		listeners:  make(map[int]func(State)),
		authSig:    make(chan struct{}, 1),
		filterSig:  make(chan struct{}, 1),
		refreshSig: make(chan struct{}, 1),
		invalidate: make(chan struct{}, 1),
		changed:    make(chan struct{}, 1),
		results:    make(chan fetchResult),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}

	s.stopAuth = sessions.OnAuthStateChange(func(*session.Identity) {
		signal(s.authSig)
	})
	signal(s.authSig)

	s.wg.Add(2)
	go s.run()
	go s.deliver()
	return s
}

// Close stops the sync loop, cancels in-flight work and closes the realtime
// subscription. No listener runs after Close returns. It must not be called
// from a listener.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopAuth()
	s.cancel()
	s.wg.Wait()
	return nil
}

// State returns a snapshot of the view.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Goals returns a copy of the cached goals.
func (s *Service) Goals() []schema.Goal {
	return s.State().Goals
}

// OnChange registers fn to receive state snapshots. The returned func
// removes it.
func (s *Service) OnChange(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	signal(s.changed)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetFilters changes the view scope. In-flight work for the old scope is
// abandoned and a new Loading cycle starts.
func (s *Service) SetFilters(f Filters) {
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	signal(s.filterSig)
}

// Refresh resets the retry counter and fetches again. It is the only way
// out of StatusFailed.
func (s *Service) Refresh() {
	signal(s.refreshSig)
}

func (s *Service) snapshotLocked() State {
	goals := make([]schema.Goal, len(s.goals))
	for i, g := range s.goals {
		goals[i] = g.Clone()
	}
	return State{
		Status:         s.status,
		Goals:          goals,
		Stats:          ComputeStats(s.goals),
		IsLoading:      s.status == StatusLoading,
		IsReconnecting: s.status == StatusReconnecting,
		Err:            s.err,
		Filters:        s.filters,
		Attempt:        s.attempt,
	}
}

// publishLocked schedules delivery of the current state. Caller holds mu.
func (s *Service) publishLocked() {
	signal(s.changed)
}

// deliver calls listeners with the latest state after each change.
func (s *Service) deliver() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.changed:
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		st := s.snapshotLocked()
		ids := make([]int, 0, len(s.listeners))
		for id := range s.listeners {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		fns := make([]func(State), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, s.listeners[id])
		}
		s.mu.Unlock()

		for _, fn := range fns {
			if s.ctx.Err() != nil {
				return
			}
			fn(st)
		}
	}
}

// ready fails when the service is closed or nobody is signed in.
func (s *Service) ready() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.sessions.Session() == nil {
		return ErrNoSession
	}
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
