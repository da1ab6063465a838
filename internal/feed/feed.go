// Package feed subscribes to the chat server's change feed socket.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/thereayou/campus-chat/internal/handlers/dto"
	"github.com/thereayou/campus-chat/internal/messaging"
)

const (
	eventBuffer = 128
	// The server pings every 54s.
	readWait = 70 * time.Second
)

// Client keeps one feed connection open, reconnecting with backoff. It
// implements messaging.Feed.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	events chan messaging.ChangeEvent
}

var _ messaging.Feed = (*Client)(nil)

type Option func(*Client)

func WithLogger(log zerolog.Logger) Option { return func(c *Client) { c.log = log } }

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithBackoff bounds the wait between reconnect attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = min, max }
}

// SocketURL turns the server's base URL into its feed endpoint.
func SocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Subscribe starts following the feed at baseURL until ctx is cancelled,
// after which the events channel is closed.
func Subscribe(ctx context.Context, baseURL, token string, opts ...Option) (*Client, error) {
	socket, err := SocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	c := &Client{
		url:        socket,
		header:     http.Header{"Authorization": {"Bearer " + token}},
		dialer:     websocket.DefaultDialer,
		log:        zerolog.Nop(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		events:     make(chan messaging.ChangeEvent, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "feed").Logger()
	go c.run(ctx)
	return c, nil
}

func (c *Client) Events() <-chan messaging.ChangeEvent { return c.events }

func (c *Client) run(ctx context.Context) {
	defer close(c.events)

	backoff := c.minBackoff
	connectedBefore := false
	for {
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				c.log.Error().Int("status", resp.StatusCode).Msg("feed rejected credentials, giving up")
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("feed connect failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		backoff = c.minBackoff
		if connectedBefore {
			c.log.Info().Msg("feed reconnected")
			if !c.emit(ctx, messaging.ChangeEvent{Kind: messaging.FeedResynced}) {
				conn.Close()
				return
			}
		}
		connectedBefore = true

		err = c.read(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Msg("feed connection lost")
		if !sleep(ctx, backoff) {
			return
		}
	}
}

// read decodes frames until the connection fails or ctx ends.
func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		ev, ok, err := dto.DecodeFrame(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if !ok {
			continue
		}
		if !c.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (c *Client) emit(ctx context.Context, ev messaging.ChangeEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
