package goalsync

import (
	"context"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

type fetchResult struct {
	gen   uint64
	goals []schema.Goal
	sub   remote.Subscription
	err   error
}

// syncLoop is the state owned by the run goroutine.
type syncLoop struct {
	s *Service

	gen         uint64
	cancelFetch context.CancelFunc
	sub         remote.Subscription
	timer       *time.Timer
	userID      string
	filters     Filters
}

func (s *Service) run() {
	defer s.wg.Done()

	s.mu.Lock()
	l := &syncLoop{s: s, filters: s.filters}
	s.mu.Unlock()
	defer l.reset()

	for {
		var subDone <-chan struct{}
		if l.sub != nil {
			subDone = l.sub.Done()
		}
		var retryC <-chan time.Time
		if l.timer != nil {
			retryC = l.timer.C
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.authSig:
			l.sessionChanged()
		case <-s.filterSig:
			l.filtersChanged()
		case <-s.refreshSig:
			l.refresh()
		case <-s.invalidate:
			l.invalidated()
		case res := <-s.results:
			l.apply(res)
		case <-retryC:
			l.timer = nil
			l.startFetch(StatusReconnecting)
		case <-subDone:
			l.subscriptionDropped()
		}
	}
}

// reset abandons the in-flight fetch, the pending retry and the subscription.
func (l *syncLoop) reset() {
	l.gen++
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.cancelFetch = nil
	}
	l.stopTimer()
	if l.sub != nil {
		_ = l.sub.Close()
		l.sub = nil
	}
}

func (l *syncLoop) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *syncLoop) sessionChanged() {
	s := l.s
	id := s.sessions.Session()
	switch {
	case id == nil:
		if l.userID == "" {
			return
		}
		l.reset()
		l.userID = ""
		s.mu.Lock()
		s.status = StatusIdle
		s.goals = nil
		s.err = nil
		s.attempt = 0
		s.publishLocked()
		s.mu.Unlock()
		s.logger.Printf("Session ended, goals cleared")

	case id.UserID != l.userID:
		l.reset()
		l.userID = id.UserID
		s.mu.Lock()
		s.goals = nil
		s.err = nil
		s.attempt = 0
		s.mu.Unlock()
		l.startFetch(StatusLoading)
	}
}

func (l *syncLoop) filtersChanged() {
	s := l.s
	s.mu.Lock()
	f := s.filters
	s.mu.Unlock()
	if f.Equal(l.filters) {
		return
	}

	l.reset()
	l.filters = f
	s.mu.Lock()
	s.goals = nil
	s.err = nil
	s.attempt = 0
	s.publishLocked()
	s.mu.Unlock()

	if l.userID != "" {
		l.startFetch(StatusLoading)
	}
}

func (l *syncLoop) refresh() {
	if l.userID == "" {
		return
	}
	l.s.mu.Lock()
	l.s.attempt = 0
	l.s.mu.Unlock()
	l.startFetch(StatusLoading)
}

// invalidated handles a realtime change. While reconnecting the pending
// retry already covers it, and after Failed only Refresh fetches again.
func (l *syncLoop) invalidated() {
	if l.userID == "" {
		return
	}
	l.s.mu.Lock()
	status := l.s.status
	l.s.mu.Unlock()
	if status == StatusReconnecting || status == StatusFailed {
		return
	}
	l.startFetch(StatusLoading)
}

func (l *syncLoop) subscriptionDropped() {
	l.sub = nil
	l.s.logger.Printf("Warning: realtime subscription lost, resubscribing")
	l.invalidated()
}

// startFetch supersedes any in-flight fetch with a new one.
func (l *syncLoop) startFetch(status Status) {
	s := l.s
	l.gen++
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	l.stopTimer()

	ctx, cancel := context.WithCancel(s.ctx)
	l.cancelFetch = cancel

	s.mu.Lock()
	s.status = status
	s.publishLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.fetch(ctx, l.gen, l.userID, l.filters, l.sub == nil)
}

func (l *syncLoop) apply(res fetchResult) {
	s := l.s
	if res.gen != l.gen {
		if res.sub != nil {
			_ = res.sub.Close()
		}
		return
	}
	l.cancelFetch()
	l.cancelFetch = nil
	if res.sub != nil {
		if l.sub != nil {
			_ = l.sub.Close()
		}
		l.sub = res.sub
	}

	if res.err == nil {
		s.mu.Lock()
		s.goals = res.goals
		s.status = StatusReady
		s.err = nil
		s.attempt = 0
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	attempt := s.attempt
	s.err = res.err
	if s.policy.Exhausted(attempt) {
		s.status = StatusFailed
		s.publishLocked()
		s.mu.Unlock()

		s.logger.Printf("Fetch failed after %d retries, giving up: %v", attempt, res.err)
		s.notifier.Notify(Notice{
			Level:      LevelError,
			Title:      "Connection error",
			Message:    "Could not restore the connection to the server. Refresh to try again.",
			Persistent: true,
		})
		return
	}
	delay := s.policy.Delay(attempt)
	s.attempt = attempt + 1
	s.status = StatusReconnecting
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Printf("Warning: fetch failed (retry %d/%d in %s): %v", attempt+1, s.policy.MaxRetries, delay, res.err)
	l.timer = time.NewTimer(delay)
}

// fetch probes the backend, makes sure the change feed is open, and loads
// the goals for f. The result is dropped if ctx ends first.
func (s *Service) fetch(ctx context.Context, gen uint64, userID string, f Filters, subscribe bool) {
	defer s.wg.Done()

	res := fetchResult{gen: gen}
	if err := s.client.Probe(ctx); err != nil {
		res.err = err
	} else {
		if subscribe {
			sub, err := s.client.Subscribe(ctx, schema.TableGoals, remote.EventFilter{Event: schema.EventAll}, s.invalidator(userID, f))
			if err != nil {
				s.logger.Printf("Warning: realtime subscription failed, goals will not live-update: %v", err)
			} else {
				res.sub = sub
			}
		}
		rows, err := s.client.Query(ctx, schema.TableGoals, f.Query())
		if err == nil {
			res.goals, err = remote.Decode[schema.Goal](rows)
		}
		res.err = err
	}

	select {
	case s.results <- res:
	case <-ctx.Done():
		if res.sub != nil {
			_ = res.sub.Close()
		}
	}
}

// invalidator turns change events for the user's goals in scope into a
// refetch signal.
func (s *Service) invalidator(userID string, f Filters) func(schema.ChangeEvent) {
	return func(ev schema.ChangeEvent) {
		if !ev.OwnedBy(userID) {
			return
		}
		if f.folderScoped() && !ev.TouchesFolder(f.folder()) {
			return
		}
		signal(s.invalidate)
	}
}
