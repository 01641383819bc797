// Package client is the Go counterpart of the admin UI's presence
// hook: it joins a content scope, mirrors the roster, heartbeats
// while connected, and reconnects after a fixed delay.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/identity"
	"github.com/marketpulse/presence-backend/internal/types"
)

type Options struct {
	// URL of the presence endpoint, e.g. ws://host/ws/presence.
	URL         string
	Identity    identity.Identity
	ContentType string
	ContentID   string

	HeartbeatInterval time.Duration // default 10s
	ReconnectDelay    time.Duration // fixed, default 3s
	Logger            *zap.Logger
}

type Client struct {
	opts Options
	rec  *Reconciler
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	field     string
	cursor    *int
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("client: missing URL")
	}
	if opts.Identity.UserID == "" {
		return nil, errors.New("client: missing identity")
	}
	if opts.ContentType == "" || opts.ContentID == "" {
		return nil, errors.New("client: missing content scope")
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		opts: opts,
		rec:  NewReconciler(opts.Identity.UserID),
		log:  opts.Logger.Named("presence-client"),
		done: make(chan struct{}),
	}, nil
}

// Start opens the channel and keeps it open until Close. Retries are
// unbounded with a fixed delay; connection state is visible through
// Connected().
func (c *Client) Start(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
	go c.run()
}

func (c *Client) run() {
	defer close(c.done)

	for {
		if err := c.connectAndServe(); err != nil && c.ctx.Err() == nil {
			c.log.Warn("connection lost, reconnecting", zap.Error(err))
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Client) connectAndServe() error {
	conn, _, err := websocket.Dial(c.ctx, c.opts.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	field, cursor := c.field, c.cursor
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		// The next connection gets a fresh session id; drop ours.
		c.rec.Reset()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	if err := c.write(types.Envelope{
		Type:      types.TypeJoin,
		Presence:  c.selfPresence("", field, cursor),
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return err
	}

	// Heartbeat ticker lives only as long as this connection; its
	// stop is tied to the session context so it can never leak.
	sessCtx, sessCancel := context.WithCancel(c.ctx)
	defer sessCancel()
	go c.heartbeatLoop(sessCtx)

	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed server message", zap.Error(err))
			continue
		}
		c.rec.Apply(env)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.write(types.Envelope{
				Type:      types.TypeHeartbeat,
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}
}

// SetField reports that the user moved focus to another form field.
func (c *Client) SetField(field string, cursor *int) {
	c.mu.Lock()
	c.field, c.cursor = field, cursor
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	_ = c.write(types.Envelope{
		Type:      types.TypeUpdate,
		Presence:  c.selfPresence(c.rec.SelfSessionID(), field, cursor),
		Timestamp: time.Now().UnixMilli(),
	})
}

// Others is the roster of other editors on the same document.
func (c *Client) Others() []types.Presence { return c.rec.Others() }

// SelfSessionID is the server-assigned id for this connection, or ""
// until the first sync arrives.
func (c *Client) SelfSessionID() string { return c.rec.SelfSessionID() }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close sends a leave before tearing the channel down and cancels
// the heartbeat and reconnect timers. It blocks until the run loop
// has exited.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if connected && conn != nil {
		_ = c.write(types.Envelope{
			Type:      types.TypeLeave,
			Presence:  c.selfPresence(c.rec.SelfSessionID(), "", nil),
			Timestamp: time.Now().UnixMilli(),
		})
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Client) write(env types.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("client: not connected")
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (c *Client) selfPresence(id, field string, cursor *int) *types.Presence {
	return &types.Presence{
		ID:             id,
		UserID:         c.opts.Identity.UserID,
		UserName:       c.opts.Identity.UserName,
		UserColor:      c.opts.Identity.UserColor,
		AvatarURL:      c.opts.Identity.AvatarURL,
		ContentType:    c.opts.ContentType,
		ContentID:      c.opts.ContentID,
		Field:          field,
		CursorPosition: cursor,
		LastActive:     time.Now().UnixMilli(),
	}
}
