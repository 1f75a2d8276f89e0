// Package dxlink implements the client side of the dxLink feed protocol:
// the SETUP/AUTH/CHANNEL_REQUEST handshake, feed subscription, and the
// FEED_DATA read loop with keepalives.
package dxlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024 * 1024 // 4MB

	// Channel on which the handshake runs. Feed data flows on feedChannel.
	setupChannel = 0
	feedChannel  = 1
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSetup
	StateAuthPending
	StateAuthorized
	StateChannelOpen
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSetup:
		return "SETUP"
	case StateAuthPending:
		return "AUTH_PENDING"
	case StateAuthorized:
		return "AUTHORIZED"
	case StateChannelOpen:
		return "CHANNEL_OPEN"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Options configures a feed connection.
type Options struct {
	// URL is the websocket endpoint from the streaming token exchange.
	URL string

	// Token is the streaming token presented in AUTH.
	Token string

	// KeepaliveTimeout is the keepalive interval advertised in SETUP.
	// Client keepalives are sent at half this interval.
	KeepaliveTimeout time.Duration

	// AuthTimeout bounds the wait for AUTH_STATE after AUTH is sent.
	AuthTimeout time.Duration

	Logger *zap.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.KeepaliveTimeout <= 0 {
		out.KeepaliveTimeout = 60 * time.Second
	}
	if out.AuthTimeout <= 0 {
		out.AuthTimeout = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Client is one dxLink feed connection. Connect, Subscribe, and Run must
// be called in that order; Close may be called from any goroutine.
type Client struct {
	opts   Options
	logger *zap.Logger
	connID string

	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once

	mu       sync.Mutex
	state    State
	authSent bool
}

// NewClient prepares a client for one connection. No network activity
// happens until Connect.
func NewClient(opts Options) *Client {
	o := opts.withDefaults()
	connID := uuid.New().String()
	return &Client{
		opts:   o,
		logger: o.Logger.With(zap.String("connID", connID)),
		connID: connID,
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("feed state transition",
			zap.Stringer("from", prev),
			zap.Stringer("to", s),
		)
	}
}

// Connect dials the feed and runs the handshake through CHANNEL_OPENED.
// On return with nil error the feed channel is open and ready for
// Subscribe. Any error closes the transport.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, c.opts.URL, err)
	}
	c.conn = conn
	conn.SetReadLimit(maxMessageSize)

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return err
	}
	return nil
}

// handshake drives SETUP through CHANNEL_OPENED. An UNAUTHORIZED state
// arriving before AUTH is sent is the server's initial announcement and
// is ignored; after AUTH it is terminal.
func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.opts.AuthTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	setup := setupMessage{
		Type:                   typeSetup,
		Channel:                setupChannel,
		Version:                protocolVersion,
		KeepaliveTimeout:       int(c.opts.KeepaliveTimeout.Seconds()),
		AcceptKeepaliveTimeout: int(c.opts.KeepaliveTimeout.Seconds()),
	}
	if err := c.write(setup); err != nil {
		return err
	}
	c.setState(StateSetup)

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() == StateAuthPending {
				return fmt.Errorf("%w: no auth response within %s", ErrUnauthorized, c.opts.AuthTimeout)
			}
			return fmt.Errorf("%w: handshake read: %v", ErrConnection, err)
		}

		msg, err := parseInbound(raw)
		if err != nil {
			return err
		}

		switch msg.Type {
		case typeSetup:
			// Server acknowledged our SETUP; present the token.
			auth := authMessage{Type: typeAuth, Channel: setupChannel, Token: c.opts.Token}
			if err := c.write(auth); err != nil {
				return err
			}
			c.mu.Lock()
			c.authSent = true
			c.mu.Unlock()
			c.setState(StateAuthPending)

		case typeAuthState:
			c.mu.Lock()
			sent := c.authSent
			c.mu.Unlock()

			switch msg.State {
			case authStateAuthorized:
				c.setState(StateAuthorized)
				req := channelRequestMessage{
					Type:       typeChannelRequest,
					Channel:    feedChannel,
					Service:    "FEED",
					Parameters: channelParameters{Contract: "AUTO"},
				}
				if err := c.write(req); err != nil {
					return err
				}
			case authStateUnauthorized:
				if !sent {
					// Initial server state before we authenticated.
					continue
				}
				return fmt.Errorf("%w: feed rejected streaming token", ErrUnauthorized)
			default:
				return fmt.Errorf("%w: unknown auth state %q", ErrProtocol, msg.State)
			}

		case typeChannelOpened:
			if msg.Channel != feedChannel {
				return fmt.Errorf("%w: CHANNEL_OPENED on unexpected channel %d", ErrProtocol, msg.Channel)
			}
			c.setState(StateChannelOpen)
			c.logger.Info("feed channel open", zap.String("url", c.opts.URL))
			return nil

		case typeError:
			return fmt.Errorf("%w: server error during handshake: %s %s", ErrProtocol, msg.Error, msg.Message)

		case typeKeepalive:
			// Fine during handshake; no reply needed yet.

		default:
			// Unknown message types are ignored.
		}
	}
}

// Subscribe sends one FEED_SUBSCRIPTION add list on the feed channel.
func (c *Client) Subscribe(subs []Subscription) error {
	if c.State() < StateChannelOpen {
		return fmt.Errorf("%w: subscribe before channel open", ErrProtocol)
	}
	msg := feedSubscriptionMessage{
		Type:    typeFeedSubscription,
		Channel: feedChannel,
		Add:     subs,
	}
	c.logger.Debug("subscribing", zap.Int("instruments", len(subs)))
	return c.write(msg)
}

// Run reads the feed until ctx is done or the connection fails, invoking
// handler for every event in every FEED_DATA frame. Server keepalives are
// answered and client keepalives sent at half the negotiated interval.
// Context cancellation returns nil; all other exits return an error from
// the taxonomy. The transport is closed on every exit path.
func (c *Client) Run(ctx context.Context, handler func(Event)) error {
	c.setState(StateStreaming)
	defer c.Close()

	// Closing the conn unblocks ReadMessage when ctx is cancelled.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-watchDone:
		}
	}()

	keepaliveTick := time.NewTicker(c.opts.KeepaliveTimeout / 2)
	defer keepaliveTick.Stop()
	go func() {
		for {
			select {
			case <-keepaliveTick.C:
				if err := c.write(keepaliveMessage{Type: typeKeepalive, Channel: setupChannel}); err != nil {
					return
				}
			case <-watchDone:
				return
			}
		}
	}()

	readDeadline := 2 * c.opts.KeepaliveTimeout
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: feed read: %v", ErrConnection, err)
		}

		msg, err := parseInbound(raw)
		if err != nil {
			return err
		}

		switch msg.Type {
		case typeFeedData:
			events, err := parseFeedData(msg.Data)
			if err != nil {
				return err
			}
			for _, ev := range events {
				handler(ev)
			}

		case typeKeepalive:
			if err := c.write(keepaliveMessage{Type: typeKeepalive, Channel: setupChannel}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

		case typeAuthState:
			if msg.State == authStateUnauthorized {
				return fmt.Errorf("%w: streaming token expired mid-session", ErrUnauthorized)
			}

		case typeError:
			return fmt.Errorf("%w: server error: %s %s", ErrProtocol, msg.Error, msg.Message)

		default:
			// Unknown message types are ignored.
		}
	}
}

// Close shuts the transport down. Idempotent and safe from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		if c.conn != nil {
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			c.conn.Close()
		}
		c.setState(StateDisconnected)
	})
}

func (c *Client) write(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrProtocol, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return nil
}
