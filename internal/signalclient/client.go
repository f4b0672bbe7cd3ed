// Package signalclient is the call client's side of the signaling websocket.
package signalclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/dns"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 10 * time.Second
	bufferSize       = 64
)

type Options struct {
	URL   string
	Codec protocol.Codec
	// Token is sent as a Bearer credential and a "token" cookie.
	Token string
}

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	opts     Options
	conn     *websocket.Conn
	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	closed   core.Fuse
}

func NewClient(opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = protocol.JSON
	}
	return &Client{
		opts:     opts,
		incoming: make(chan *protocol.Message, bufferSize),
		outgoing: make(chan *protocol.Message, bufferSize),
	}
}

// Connect dials the server and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if c.opts.Codec != protocol.JSON {
		q := u.Query()
		q.Set("codec", c.opts.Codec.Name())
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
		header.Set("Cookie", (&http.Cookie{Name: "token", Value: c.opts.Token}).String())
	}

	dialer := &websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.closed.Break()
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.IsBroken() {
				log.Debug().Err(err).Msg("signaling connection lost")
			}
			return
		}

		msg, err := c.opts.Codec.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed server message")
			continue
		}
		c.incoming <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.opts.Codec.Encode(msg)
			if err != nil {
				log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.opts.Codec.FrameType(), data); err != nil {
				c.closed.Break()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed.Break()
				return
			}

		case <-c.closed.Watch():
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close so a final leaveRoom is not
// lost.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.opts.Codec.Encode(msg)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.opts.Codec.FrameType(), data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send queues msg for the server. Messages are written in the order they are
// queued.
func (c *Client) Send(msg *protocol.Message) error {
	if c.closed.IsBroken() {
		return callerr.ErrSignalingClosed
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.closed.Watch():
		return callerr.ErrSignalingClosed
	}
}

// Incoming is closed when the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once the connection is closed by either side.
func (c *Client) Done() <-chan struct{} {
	return c.closed.Watch()
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() {
	c.closed.Break()
}
