// Package transport maintains the WebSocket push-channel subscription for an
// active conversation and normalizes inbound frames into canonical events.
package transport

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

const (
	// Time allowed to read the next frame before the connection is
	// considered dead (the server pings well within this window)
	readWait = 60 * time.Second

	// Maximum frame size accepted from the server
	maxFrameSize = 64 * 1024
)

// Defaults for the reconnect backoff policy.
const (
	DefaultMinReconnectDelay = 500 * time.Millisecond
	DefaultMaxReconnectDelay = 30 * time.Second
)

// Config holds the connection settings for the push channel.
type Config struct {
	// BaseURL is the ws:// or wss:// root of the messaging backend
	BaseURL string

	// Token is the bearer token identifying the user
	Token string

	// MinReconnectDelay is the initial delay after a dropped connection
	MinReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff
	MaxReconnectDelay time.Duration

	// Dialer overrides the default WebSocket dialer (used in tests)
	Dialer *websocket.Dialer

	// OnStatus, when set, is notified when the channel drops and when it is
	// re-established. Part of Config so it is fixed before any subscription
	// goroutine can read it.
	OnStatus StatusHandler
}

// Handler receives each successfully parsed push event. It is invoked from
// the subscription's read goroutine.
type Handler func(models.Event)

// StatusHandler is notified when the channel drops and starts reconnecting,
// and again when it is re-established. Used for a passive "reconnecting"
// indication in the UI.
type StatusHandler func(connected bool)

// Adapter opens push-channel subscriptions. Each call to Subscribe owns its
// own connection; nothing is shared across conversations.
type Adapter struct {
	cfg Config
}

// NewAdapter creates an adapter with defaults applied.
func NewAdapter(cfg Config) *Adapter {
	if cfg.MinReconnectDelay <= 0 {
		cfg.MinReconnectDelay = DefaultMinReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Adapter{cfg: cfg}
}

// Subscribe opens one subscription scoped to the given conversation and
// starts delivering events to handler. The returned subscription must be
// closed when the conversation is switched away from or the view closes.
func (a *Adapter) Subscribe(conversationID string, handler Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		conversationID: conversationID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go s.run(ctx, a, handler)
	return s
}

// endpoint builds the per-conversation topic URL.
func (a *Adapter) endpoint(conversationID string) string {
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	u := fmt.Sprintf("%s/ws/conversations/%s", base, url.PathEscape(conversationID))
	if a.cfg.Token != "" {
		u += "?token=" + url.QueryEscape(a.cfg.Token)
	}
	return u
}

// Subscription is a live push-channel subscription for one conversation.
type Subscription struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
}

// Close terminates the subscription and releases the underlying connection.
// It is idempotent: calling it more than once is a no-op, and it never
// affects other subscriptions.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
		<-s.done
	})
	return nil
}

// Done is closed once the subscription's goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// run dials, reads and redials until the subscription is closed. The server
// never replays history on reconnect; the REST fetch is the only authority
// for past messages, so a reconnect simply resumes the live stream.
func (s *Subscription) run(ctx context.Context, a *Adapter, handler Handler) {
	defer close(s.done)

	delay := a.cfg.MinReconnectDelay
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := a.cfg.Dialer.DialContext(ctx, a.endpoint(s.conversationID), nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if first {
				// Surface the initial handshake failure once; afterwards the
				// periodic retry log is enough.
				first = false
				if a.cfg.OnStatus != nil {
					a.cfg.OnStatus(false)
				}
			}
			log.Printf("[Transport] Dial failed for conversation %s, retrying in %v: %v",
				s.conversationID, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = nextDelay(delay, a.cfg.MaxReconnectDelay)
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			// Closed while the dial was in flight
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		if !first && a.cfg.OnStatus != nil {
			a.cfg.OnStatus(true)
		}
		first = false
		delay = a.cfg.MinReconnectDelay

		s.readLoop(conn, handler)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if a.cfg.OnStatus != nil {
			a.cfg.OnStatus(false)
		}
		log.Printf("[Transport] Connection lost for conversation %s, reconnecting", s.conversationID)
	}
}

// readLoop consumes frames until the connection errors. Malformed frames are
// logged and dropped; they never terminate the subscription.
func (s *Subscription) readLoop(conn *websocket.Conn, handler Handler) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Transport] Read error on conversation %s: %v", s.conversationID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		ev, err := models.ParseEvent(raw)
		if err != nil {
			log.Printf("[Transport] Dropping malformed event on conversation %s: %v", s.conversationID, err)
			continue
		}
		handler(ev)
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	current *= 2
	if current > max {
		return max
	}
	return current
}
