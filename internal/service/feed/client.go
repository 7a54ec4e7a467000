package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"VitalWatch/internal/domain/models"
	drepo "VitalWatch/internal/domain/repository"
	applogger "VitalWatch/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements ObservationFeed over a websocket that pushes text frames
// holding one or more feed lines.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	ready     chan struct{} // closed when a fresh connection is available
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a websocket feed.
func NewClient(url string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		dialer:         websocket.DefaultDialer,
		l:              l,
		ready:          make(chan struct{}),
		closed:         make(chan struct{}),
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	close(c.ready)
	c.ready = make(chan struct{})
	c.mu.Unlock()
	c.l.Info("feed: connected", applogger.String("url", c.url))
	return nil
}

// Read streams parsed feed events. Read errors are reported on the error
// channel and the loop then waits for Reconnect to supply a new connection.
// Both channels close when ctx ends or the client is closed.
func (c *Client) Read(ctx context.Context) (<-chan models.FeedEvent, <-chan error) {
	events := make(chan models.FeedEvent, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			case <-ticker.C:
				if conn := c.current(); conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingInterval/2))
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			conn := c.current()
			if conn == nil {
				if !c.waitReady(ctx) {
					return
				}
				continue
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if c.isClosed() || ctx.Err() != nil {
					return
				}
				c.markDown(conn)
				select {
				case errs <- fmt.Errorf("feed read: %w", err):
				default:
				}
				if !c.waitReady(ctx) {
					return
				}
				continue
			}
			for _, line := range strings.Split(string(b), "\n") {
				if strings.TrimSpace(line) == "" {
					continue
				}
				ev, err := ParseLine(line)
				if err != nil {
					c.l.Warn("feed: line skipped", applogger.Error(err))
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				case <-c.closed:
					return
				}
			}
		}
	}()

	return events, errs
}

// Reconnect drops the current connection and dials again, retrying every
// reconnect delay until it succeeds, ctx ends or the client is closed.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return errors.New("feed closed")
		case <-time.After(c.reconnectDelay):
		}
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		c.l.Warn("feed: reconnect failed", applogger.Int("attempt", attempt), applogger.Error(err))
	}
}

// Close closes the connection and ends any Read loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

func (c *Client) markDown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.connected = false
	}
	c.mu.Unlock()
}

func (c *Client) waitReady(ctx context.Context) bool {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return true
	}
	ready := c.ready
	c.mu.Unlock()
	select {
	case <-ready:
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var _ drepo.ObservationFeed = (*Client)(nil)
