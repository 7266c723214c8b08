// Package notifications keeps the signed-in user's in-app notifications
// current and exposes read/unread bookkeeping.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/remote"
	"github.com/mschirtzinger/goalkeeper/internal/retry"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/mschirtzinger/goalkeeper/internal/session"
)

// ErrClosed is returned by operations on a closed Center.
var ErrClosed = errors.New("notification center closed")

// Sessions is the identity source the center follows.
type Sessions interface {
	Session() *session.Identity
	OnAuthStateChange(fn func(*session.Identity)) func()
}

// Config holds center configuration.
type Config struct {
	// Policy is the fetch backoff (default: retry.Default())
	Policy retry.Policy

	// Logger for fetch and realtime activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy: retry.Default(),
		Logger: log.New(os.Stderr, "[notifications] ", log.LstdFlags),
	}
}

type fetchResult struct {
	gen   uint64
	items []schema.Notification
	sub   remote.Subscription
	err   error
}

// Center tracks notifications for the current session, newest first.
type Center struct {
	client   remote.Client
	sessions Sessions
	config   *Config

	mu        sync.Mutex
	items     []schema.Notification
	err       error
	loading   bool
	closed    bool
	listeners map[int]func()
	nextID    int

	authSig    chan struct{}
	refreshSig chan struct{}
	results    chan fetchResult
	loaded     chan struct{}
	loadOnce   sync.Once

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopAuth func()
}

// New creates a center and starts following sessions.
func New(client remote.Client, sessions Sessions, config *Config) *Center {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	config.Policy = config.Policy.WithDefaults()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Center{
		client:     client,
		sessions:   sessions,
		config:     config,
		listeners:  make(map[int]func()),
		authSig:    make(chan struct{}, 1),
		refreshSig: make(chan struct{}, 1),
		results:    make(chan fetchResult),
		loaded:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.stopAuth = sessions.OnAuthStateChange(func(*session.Identity) {
		signal(c.authSig)
	})
	signal(c.authSig)

	c.wg.Add(1)
	go c.run()
	return c
}

// Close stops the center and its subscription.
func (c *Center) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopAuth()
	c.cancel()
	c.wg.Wait()
	return nil
}

// Notifications returns a copy of the cached notifications.
func (c *Center) Notifications() []schema.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// UnreadCount returns how many cached notifications are unread.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Err returns the last fetch error once retries are exhausted.
func (c *Center) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Loading reports whether a fetch is in flight.
func (c *Center) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// OnChange registers fn to run after the cache changes. fn runs on the
// goroutine that made the change and must not block. The returned func
// removes it.
func (c *Center) OnChange(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Loaded is closed once the first fetch completes, successfully or not.
func (c *Center) Loaded() <-chan struct{} {
	return c.loaded
}

// Refresh refetches now.
func (c *Center) Refresh() {
	signal(c.refreshSig)
}

// MarkRead marks one notification read.
func (c *Center) MarkRead(ctx context.Context, id int64) error {
	return c.setRead(ctx, []int64{id}, schema.ByID(id))
}

// MarkAllRead marks every unread notification read in one call.
func (c *Center) MarkAllRead(ctx context.Context) error {
	var ids []int64
	for _, it := range c.Notifications() {
		if !it.Read {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return c.setRead(ctx, ids, schema.Filter{}.Where("read", false))
}

// setRead flips ids to read locally, then remotely, restoring the old
// flags if the call fails.
func (c *Center) setRead(ctx context.Context, ids []int64, f schema.Filter) error {
	if err := c.ready(); err != nil {
		return err
	}
	prev := make(map[int64]bool, len(ids))
	c.mu.Lock()
	items := slices.Clone(c.items)
	for i := range items {
		if slices.Contains(ids, items[i].ID) {
			prev[items[i].ID] = items[i].Read
			items[i].Read = true
		}
	}
	c.items = items
	c.mu.Unlock()
	c.changed()

	read := true
	if _, err := c.client.Update(ctx, schema.TableNotifications, schema.NotificationPatch{Read: &read}, f); err != nil {
		c.mu.Lock()
		items := slices.Clone(c.items)
		for i := range items {
			if was, ok := prev[items[i].ID]; ok {
				items[i].Read = was
			}
		}
		c.items = items
		c.mu.Unlock()
		c.changed()
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

// Delete removes a notification.
func (c *Center) Delete(ctx context.Context, id int64) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.client.Delete(ctx, schema.TableNotifications, schema.ByID(id)); err != nil {
		return fmt.Errorf("failed to delete notification %d: %w", id, err)
	}
	c.mu.Lock()
	c.items = slices.DeleteFunc(slices.Clone(c.items), func(n schema.Notification) bool { return n.ID == id })
	c.mu.Unlock()
	c.changed()
	return nil
}

// Create stores a notification. UserID may name another user only for
// goal_shared notifications.
func (c *Center) Create(ctx context.Context, in schema.NotificationInput) (schema.Notification, error) {
	if err := in.Validate(); err != nil {
		return schema.Notification{}, err
	}
	if err := c.ready(); err != nil {
		return schema.Notification{}, err
	}
	rows, err := c.client.Insert(ctx, schema.TableNotifications, in)
	if err != nil {
		return schema.Notification{}, fmt.Errorf("failed to create notification: %w", err)
	}
	return remote.DecodeOne[schema.Notification](rows)
}

func (c *Center) ready() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if c.sessions.Session() == nil {
		return session.ErrSignedOut
	}
	return nil
}

func (c *Center) changed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Center) run() {
	defer c.wg.Done()

	var (
		gen         uint64
		userID      string
		cancelFetch context.CancelFunc = func() {}
		sub         remote.Subscription
		resub       *time.Timer
		resubTries  int
	)
	stopResub := func() {
		if resub != nil {
			resub.Stop()
			resub = nil
		}
		resubTries = 0
	}
	stop := func() {
		gen++
		cancelFetch()
		stopResub()
		if sub != nil {
			_ = sub.Close()
			sub = nil
		}
	}
	defer stop()

	fetch := func() {
		gen++
		cancelFetch()
		ctx, cancel := context.WithCancel(c.ctx)
		cancelFetch = cancel
		c.mu.Lock()
		c.loading = true
		c.mu.Unlock()

		c.wg.Add(1)
		go c.fetch(ctx, gen, userID, sub == nil)
	}

	// scheduleResub retries the feed with the fetch backoff after a load
	// that succeeded without one.
	scheduleResub := func() {
		if resub != nil {
			return
		}
		if c.config.Policy.Exhausted(resubTries) {
			c.config.Logger.Printf("Warning: notification feed unavailable after %d attempts, live updates off until refresh", resubTries)
			return
		}
		resub = time.NewTimer(c.config.Policy.Delay(resubTries))
	}

	for {
		var subDone <-chan struct{}
		if sub != nil {
			subDone = sub.Done()
		}
		var resubC <-chan time.Time
		if resub != nil {
			resubC = resub.C
		}

		select {
		case <-c.ctx.Done():
			return

		case <-c.authSig:
			id := c.sessions.Session()
			switch {
			case id == nil && userID != "":
				stop()
				userID = ""
				c.mu.Lock()
				c.items, c.err, c.loading = nil, nil, false
				c.mu.Unlock()
				c.changed()
			case id != nil && id.UserID != userID:
				stop()
				userID = id.UserID
				c.mu.Lock()
				c.items, c.err = nil, nil
				c.mu.Unlock()
				fetch()
			}

		case <-c.refreshSig:
			if userID != "" {
				fetch()
			}

		case <-subDone:
			sub = nil
			c.config.Logger.Printf("Warning: notification feed dropped, resubscribing")
			if userID != "" {
				fetch()
			}

		case <-resubC:
			resub = nil
			if userID == "" || sub != nil {
				continue
			}
			s, err := c.subscribe(c.ctx, userID)
			if err != nil {
				resubTries++
				c.config.Logger.Printf("Warning: notification feed unavailable: %v", err)
				scheduleResub()
				continue
			}
			sub, resubTries = s, 0
			// catch up on anything missed while the feed was down
			fetch()

		case res := <-c.results:
			if res.gen != gen {
				if res.sub != nil {
					_ = res.sub.Close()
				}
				continue
			}
			if res.sub != nil {
				if sub != nil {
					_ = sub.Close()
				}
				sub = res.sub
				stopResub()
			}
			if sub == nil && res.err == nil {
				scheduleResub()
			}
			c.mu.Lock()
			c.loading = false
			if res.err != nil {
				c.err = res.err
			} else {
				c.items, c.err = res.items, nil
			}
			c.mu.Unlock()
			if res.err != nil {
				c.config.Logger.Printf("Failed to load notifications: %v", res.err)
			}
			c.loadOnce.Do(func() { close(c.loaded) })
			c.changed()
		}
	}
}

// fetch loads notifications newest first, retrying with the center's
// policy. When subscribe is set, every attempt that gets past the probe
// also tries to open the change feed until one succeeds.
func (c *Center) fetch(ctx context.Context, gen uint64, userID string, subscribe bool) {
	defer c.wg.Done()

	res := fetchResult{gen: gen}
	res.err = c.config.Policy.Do(ctx, func(ctx context.Context) error {
		if err := c.client.Probe(ctx); err != nil {
			return err
		}
		if subscribe && res.sub == nil {
			sub, err := c.subscribe(ctx, userID)
			if err != nil {
				c.config.Logger.Printf("Warning: notification feed unavailable: %v", err)
			} else {
				res.sub = sub
			}
		}
		rows, err := c.client.Query(ctx, schema.TableNotifications, schema.Filter{}.OrderBy("id", true))
		if err != nil {
			return err
		}
		res.items, err = remote.Decode[schema.Notification](rows)
		return err
	})

	select {
	case c.results <- res:
	case <-ctx.Done():
		if res.sub != nil {
			_ = res.sub.Close()
		}
	}
}

func (c *Center) subscribe(ctx context.Context, userID string) (remote.Subscription, error) {
	return c.client.Subscribe(ctx, schema.TableNotifications, remote.EventFilter{
		Event: schema.EventAll,
		Row:   schema.RowFilter{Column: "user_id", Value: userID},
	}, func(schema.ChangeEvent) {
		signal(c.refreshSig)
	})
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// FormatCount renders an unread badge, capping at 99+.
func FormatCount(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}
