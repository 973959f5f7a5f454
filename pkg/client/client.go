// Package client is a Go driver for a flickpick server. It maintains a
// WebSocket connection, re-dials with exponential backoff when the
// transport drops, re-joins its session after every reconnect, and
// periodically re-joins on a live connection to pull a fresh catalog
// snapshot in case a broadcast was missed.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"flickpick/pkg/types"
)

// Options tunes the reconnect and resync behavior. Zero values fall back
// to the defaults below.
type Options struct {
	// BackoffMin is the first redial delay; each failed attempt doubles it
	// up to BackoffMax.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// ResyncInterval is how often the client re-joins over a live
	// connection to refresh its catalog. Joins are idempotent server-side,
	// so a resync is invisible to other participants.
	ResyncInterval time.Duration

	// EventBuffer is the capacity of the received-event channel.
	EventBuffer int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 250 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Second
	}
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = 30 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 100
	}
	return opts
}

// ReceivedEvent is one server-to-client event with its payload still raw;
// callers decode the payloads they care about.
type ReceivedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client is a single participant's connection to one session.
type Client struct {
	serverURL string
	code      string
	name      string
	opts      Options

	events chan ReceivedEvent
	errs   chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	// writeMu serializes all writes to the transport; gorilla/websocket
	// supports at most one concurrent writer per connection.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a client for the given session code and display name.
// opts may be nil.
func New(serverURL, code, name string, opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	resolved := opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		serverURL: serverURL,
		code:      code,
		name:      name,
		opts:      resolved,
		events:    make(chan ReceivedEvent, resolved.EventBuffer),
		errs:      make(chan error, 10),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect dials the server, joins the session, and starts the
// reconnection loop. It returns once the first join has been sent; later
// transport drops are handled in the background.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("client already connected")
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.joinOn(conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.wg.Add(2)
	go c.runLoop(conn)
	go c.resyncLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

func (c *Client) joinOn(conn *websocket.Conn) error {
	return c.writeEvent(conn, types.EventSessionJoin, types.JoinPayload{
		Code: c.code,
		Name: c.name,
	})
}

// runLoop owns the transport: it reads until the connection drops, then
// redials with exponential backoff and re-joins, repeating until Close.
func (c *Client) runLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		c.readUntilClosed(conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
	}
}

func (c *Client) readUntilClosed(conn *websocket.Conn) {
	for {
		var event ReceivedEvent
		if err := conn.ReadJSON(&event); err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.reportError(fmt.Errorf("read error: %w", err))
			}
			conn.Close()
			return
		}

		select {
		case c.events <- event:
		default:
			c.reportError(fmt.Errorf("event buffer full, dropping %s", event.Type))
		}
	}
}

// redial retries the dial-and-join sequence with doubling delays until it
// succeeds or the client is closed.
func (c *Client) redial() (*websocket.Conn, bool) {
	delay := c.opts.BackoffMin

	for {
		select {
		case <-c.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		conn, err := c.dial(c.ctx)
		if err == nil {
			if err = c.joinOn(conn); err == nil {
				c.mu.Lock()
				if c.closed {
					c.mu.Unlock()
					conn.Close()
					return nil, false
				}
				c.conn = conn
				c.connected = true
				c.mu.Unlock()
				return conn, true
			}
			conn.Close()
		}
		c.reportError(fmt.Errorf("reconnect failed: %w", err))

		delay *= 2
		if delay > c.opts.BackoffMax {
			delay = c.opts.BackoffMax
		}
	}
}

// resyncLoop periodically re-sends the join over a live connection. The
// server answers with a fresh catalog snapshot, bounding how long the
// client can stay out of sync after a missed broadcast.
func (c *Client) resyncLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			connected := c.connected
			c.mu.RUnlock()
			if !connected || conn == nil {
				continue
			}
			if err := c.joinOn(conn); err != nil {
				c.reportError(fmt.Errorf("resync failed: %w", err))
			}
		}
	}
}

func (c *Client) send(eventType string, payload any) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("client not connected")
	}
	return c.writeEvent(conn, eventType, payload)
}

func (c *Client) writeEvent(conn *websocket.Conn, eventType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(types.Event{Type: eventType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

// AddFilm proposes a film for the session's list.
func (c *Client) AddFilm(film types.FilmInput) error {
	return c.send(types.EventFilmAdd, types.FilmAddPayload{Code: c.code, Film: film})
}

// RemoveFilm withdraws a film the client previously added.
func (c *Client) RemoveFilm(filmID string) error {
	return c.send(types.EventFilmRemove, types.FilmRemovePayload{Code: c.code, FilmID: filmID})
}

// StartVoting asks the server to open the voting round. Only the group
// leader's request succeeds.
func (c *Client) StartVoting() error {
	return c.send(types.EventVotingStart, types.VotingStartPayload{Code: c.code})
}

// Vote records a verdict on one film. Re-voting the same film replaces
// the earlier verdict.
func (c *Client) Vote(filmID string, verdict types.Verdict) error {
	return c.send(types.EventVotingVote, types.VotePayload{
		Code:    c.code,
		FilmID:  filmID,
		Verdict: verdict,
	})
}

// ReportCompleted tells the server this participant has voted on every
// film.
func (c *Client) ReportCompleted() error {
	return c.send(types.EventVotingCompleted, types.CompletedPayload{Code: c.code, Name: c.name})
}

// Reset asks the server to clear films and votes for a new round. Only
// the group leader's request succeeds.
func (c *Client) Reset() error {
	return c.send(types.EventGroupReset, types.ResetPayload{Code: c.code})
}

// Leave departs the session without closing the client.
func (c *Client) Leave() error {
	return c.send(types.EventSessionLeave, types.LeavePayload{Code: c.code, Name: c.name})
}

// Receive returns the next server event, waiting up to timeout.
func (c *Client) Receive(timeout time.Duration) (*ReceivedEvent, error) {
	select {
	case event := <-c.events:
		return &event, nil
	case err := <-c.errs:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for event")
	case <-c.ctx.Done():
		return nil, fmt.Errorf("client closed")
	}
}

// WaitFor discards events until one of the given type arrives or the
// timeout expires.
func (c *Client) WaitFor(eventType string, timeout time.Duration) (*ReceivedEvent, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timeout waiting for %s", eventType)
		}
		event, err := c.Receive(remaining)
		if err != nil {
			return nil, err
		}
		if event.Type == eventType {
			return event, nil
		}
	}
}

// Drain clears any buffered events.
func (c *Client) Drain() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

// IsConnected reports whether the transport is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && !c.closed
}

func (c *Client) reportError(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// Close tears the client down: no further reconnects, transport closed,
// background goroutines stopped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.wg.Wait()
	return nil
}
