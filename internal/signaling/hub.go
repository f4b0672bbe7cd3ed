package signaling

import (
	"context"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// HubOptions tunes per-connection behaviour.
type HubOptions struct {
	// MessageRate is the sustained inbound message rate per connection.
	// Zero disables limiting.
	MessageRate rate.Limit
	MessageBurst int
}

type inbound struct {
	client *Client
	msg    *protocol.Message
	err    error
}

// Hub owns every connection and is the only goroutine that touches the
// Registry on behalf of clients, so each message is handled to completion
// before the next one starts.
type Hub struct {
	registry *Registry
	metrics  *metrics.Metrics
	opts     HubOptions

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	connections atomic.Int64
	stop        core.Fuse
	done        core.Fuse
}

func NewHub(registry *Registry, m *metrics.Metrics, opts HubOptions) *Hub {
	return &Hub{
		registry:   registry,
		metrics:    m,
		opts:       opts,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	return int(h.connections.Load())
}

// Serve registers a freshly upgraded connection and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn, codec protocol.Codec, p Participant) {
	c := newClient(h, conn, codec, p)
	select {
	case h.register <- c:
	case <-h.done.Watch():
		_ = conn.Close()
		return
	}

	go c.WritePump()
	go c.ReadPump()
}

// Stop ends Run and closes every connection.
func (h *Hub) Stop() {
	h.stop.Break()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done.Watch()
}

// Run processes registrations and messages until ctx is cancelled or Stop is
// called.
func (h *Hub) Run(ctx context.Context) {
	defer h.done.Break()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case <-h.stop.Watch():
			h.closeAll()
			return

		case c := <-h.register:
			h.clients[c.handle] = c
			h.connections.Inc()
			h.metrics.ConnectionOpened()
			c.log.Debug().Msg("client registered")

			h.send(c, &protocol.Message{
				Type: protocol.EventConnected,
				Payload: protocol.Connected{
					Handle:   c.handle,
					Identity: c.participant.Identity,
					Name:     c.participant.Name,
				},
			})

		case c := <-h.unregister:
			if _, ok := h.clients[c.handle]; !ok {
				continue
			}
			for _, m := range h.registry.Disconnect(c.handle) {
				h.notifyLeft(m)
				h.metrics.SetOccupiedRooms(m.Modality.String(), h.registry.RoomCount(m.Modality))
			}
			delete(h.clients, c.handle)
			close(c.send)
			h.connections.Dec()
			h.metrics.ConnectionClosed()
			c.log.Debug().Msg("client unregistered")

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.handle]; !ok {
				continue
			}
			if in.err != nil {
				in.client.log.Debug().Err(in.err).Msg("malformed message")
				h.sendError(in.client, "malformed message")
				continue
			}
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) dispatch(in inbound) {
	select {
	case h.inbound <- in:
	case <-h.done.Watch():
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done.Watch():
	}
}

func (h *Hub) closeAll() {
	for handle, c := range h.clients {
		close(c.send)
		delete(h.clients, handle)
		h.connections.Dec()
		h.metrics.ConnectionClosed()
	}
	log.Info().Msg("signaling hub stopped")
}

// send queues msg without blocking. A client whose buffer is full loses the
// message.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	select {
	case c.send <- msg:
	default:
		h.metrics.Dropped(metrics.DropSendBuffer)
		c.log.Warn().Str("type", msg.Type).Msg("send buffer full, dropping message")
	}
}

func (h *Hub) sendError(c *Client, text string) {
	h.send(c, &protocol.Message{
		Type:    protocol.EventError,
		Payload: protocol.ErrorPayload{Error: text},
	})
}

func newHandle() string {
	return uuid.NewString()
}

func clientLogger(handle string) zerolog.Logger {
	return log.With().Str("handle", handle).Logger()
}
