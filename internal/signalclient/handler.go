package signalclient

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// Handler routes incoming signaling messages to appropriate channels. Room
// traffic goes to the subscriber of its modality.
type Handler struct {
	client    *Client
	Connected chan protocol.Connected
	Errors    chan string

	mu   sync.Mutex
	subs map[protocol.Modality]chan *protocol.Message
}

func NewHandler(client *Client) *Handler {
	return &Handler{
		client:    client,
		Connected: make(chan protocol.Connected, 1),
		Errors:    make(chan string, 8),
		subs:      make(map[protocol.Modality]chan *protocol.Message),
	}
}

// Subscribe returns the stream of room messages for mod. It is closed when
// the connection ends.
func (h *Handler) Subscribe(mod protocol.Modality) <-chan *protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[mod]
	if !ok {
		ch = make(chan *protocol.Message, bufferSize)
		h.subs[mod] = ch
	}
	return ch
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection closes.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.EventConnected:
			var p protocol.Connected
			if err := msg.Decode(&p); err != nil {
				log.Warn().Err(err).Msg("bad connected payload")
				continue
			}
			select {
			case h.Connected <- p:
			default:
			}

		case protocol.EventError:
			var p protocol.ErrorPayload
			if err := msg.Decode(&p); err != nil || p.Error == "" {
				p.Error = "Unknown error from server"
			}
			select {
			case h.Errors <- p.Error:
			default:
				log.Warn().Str("error", p.Error).Msg("server error dropped")
			}

		default:
			mod, _ := msg.Split()
			h.mu.Lock()
			ch, ok := h.subs[mod]
			h.mu.Unlock()
			if !ok {
				log.Debug().Str("type", msg.Type).Msg("no subscriber for message")
				continue
			}
			ch <- msg
		}
	}
}

func (h *Handler) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for mod, ch := range h.subs {
		close(ch)
		delete(h.subs, mod)
	}
	close(h.Errors)
}
