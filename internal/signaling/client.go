package signaling

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP with
	// many candidates.
	maxMessageSize = 64 * 1024

	sendBufferSize = 64
)

// Client is one websocket connection. Its handle is the address other
// connections use to reach it.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	codec       protocol.Codec
	handle      string
	participant Participant
	limiter     *rate.Limiter
	log         zerolog.Logger

	// send is owned by the hub, which closes it on unregister.
	send chan *protocol.Message
}

func newClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, p Participant) *Client {
	handle := newHandle()
	c := &Client{
		hub:         hub,
		conn:        conn,
		codec:       codec,
		handle:      handle,
		participant: p,
		log:         clientLogger(handle),
		send:        make(chan *protocol.Message, sendBufferSize),
	}
	if hub.opts.MessageRate > 0 {
		burst := hub.opts.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(hub.opts.MessageRate, burst)
	}
	return c
}

func (c *Client) Handle() string {
	return c.handle
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.metrics.Dropped(metrics.DropRateLimited)
			c.log.Debug().Msg("rate limited, dropping message")
			continue
		}

		msg, err := c.codec.Decode(data)
		c.hub.dispatch(inbound{client: c, msg: msg, err: err})
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
