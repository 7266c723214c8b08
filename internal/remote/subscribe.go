package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/mschirtzinger/goalkeeper/internal/realtime"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// maxFrame bounds a single change-feed frame.
const maxFrame = 1 << 20

// EventFilter narrows a subscription. The zero value receives every event
// on the table.
type EventFilter struct {
	Event schema.EventType
	Row   schema.RowFilter
}

// Subscription is a live change feed.
type Subscription interface {
	// Close stops the feed. No callback runs after Close returns.
	// It must not be called from inside the callback.
	Close() error

	// Done is closed when the feed ends, either by Close or because the
	// connection dropped.
	Done() <-chan struct{}
}

type wsSubscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Subscribe opens the change feed for table. It returns once the backend
// has acknowledged the subscription, so no event committed afterwards is
// missed. fn is called from a single goroutine in delivery order.
func (c *HTTPClient) Subscribe(ctx context.Context, table string, filter EventFilter, fn func(schema.ChangeEvent)) (Subscription, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	u := c.base.JoinPath("realtime", "v1")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("table", table)
	if filter.Event != "" {
		q.Set("event", string(filter.Event))
	}
	if rf := filter.Row.String(); rf != "" {
		q.Set("filter", rf)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	tok.SetAuthHeader(&http.Request{Header: header})

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &Error{Status: resp.StatusCode, Code: schema.CodeUnauthorized, Message: "subscription rejected"}
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}
	conn.SetReadLimit(maxFrame)

	msg, err := readMessage(ctx, conn)
	if err == nil && msg.Type != realtime.MessageTypeSubscribed {
		err = fmt.Errorf("unexpected first frame %q", msg.Type)
	}
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "")
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &wsSubscription{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx, c.config, table, fn)
	return s, nil
}

func (s *wsSubscription) run(ctx context.Context, config *Config, table string, fn func(schema.ChangeEvent)) {
	defer close(s.done)

	for {
		msg, err := readMessage(ctx, s.conn)
		if err != nil {
			if ctx.Err() == nil {
				config.Logger.Printf("Warning: change feed for %s dropped: %v", table, err)
			}
			return
		}
		if msg.Type != realtime.MessageTypeChange {
			continue
		}
		var ev schema.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			config.Logger.Printf("Failed to decode change event: %v", err)
			continue
		}

		s.mu.Lock()
		if !s.closed {
			fn(ev)
		}
		s.mu.Unlock()
	}
}

func (s *wsSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	<-s.done
	return nil
}

func (s *wsSubscription) Done() <-chan struct{} {
	return s.done
}

func readMessage(ctx context.Context, conn *websocket.Conn) (realtime.Message, error) {
	var msg realtime.Message
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode frame: %w", err)
	}
	return msg, nil
}
