package signaling

import (
	"github.com/pkg/errors"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

const roomFullMessage = "Room is full. Maximum 2 participants allowed."

func (h *Hub) handle(c *Client, msg *protocol.Message) {
	mod, event := msg.Split()
	l := c.log.With().Str("type", msg.Type).Logger()

	var err error
	switch event {
	case protocol.EventJoinRoom:
		err = h.joinRoom(c, mod, msg)

	case protocol.EventLeaveRoom:
		if m, ok := h.registry.Leave(c.handle, mod); ok {
			h.notifyLeft(m)
			h.roomsChanged(mod)
			l.Info().Str("room", m.RoomID).Msg("left room")
		}

	case protocol.EventCallUser:
		var p protocol.CallUser
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventIncomingCall, protocol.IncomingCall{
				From:  c.handle,
				Offer: p.Offer,
			})
		}

	case protocol.EventCallAccepted:
		var p protocol.CallAccepted
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventCallAccepted, protocol.CallAccepted{
				From:   c.handle,
				Answer: p.Answer,
			})
		}

	case protocol.EventICECandidate:
		var p protocol.Candidate
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventICECandidate, protocol.Candidate{
				From:      c.handle,
				Candidate: p.Candidate,
			})
		}

	case protocol.EventEndCall:
		var p protocol.EndCall
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventCallEnded, nil)
			// The caller leaves without a userLeft: the peer already got callEnded.
			if _, ok := h.registry.Leave(c.handle, mod); ok {
				h.roomsChanged(mod)
			}
		}

	case protocol.EventMuteToggle:
		var p protocol.MuteToggle
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventRemoteMuted, protocol.MuteToggle{IsMuted: p.IsMuted})
		}

	case protocol.EventVideoToggle:
		if mod == protocol.Audio {
			l.Debug().Msg("video toggle ignored in audio room")
			return
		}
		var p protocol.VideoToggle
		if err = msg.Decode(&p); err == nil {
			err = h.relay(c, mod, p.To, protocol.EventRemoteVideoOff, protocol.VideoToggle{IsVideoOff: p.IsVideoOff})
		}

	default:
		l.Debug().Msg("unknown message type")
		return
	}

	switch {
	case err == nil:
	case callerr.IsBenign(err):
		l.Debug().Err(err).Msg("message dropped")
	case errors.Is(err, callerr.ErrRoomFull):
		l.Info().Err(err).Msg("join rejected")
	default:
		l.Warn().Err(err).Msg("message rejected")
		h.sendError(c, errors.Cause(err).Error())
	}
}

func (h *Hub) joinRoom(c *Client, mod protocol.Modality, msg *protocol.Message) error {
	var req protocol.JoinRoom
	if err := msg.Decode(&req); err != nil {
		return err
	}
	if req.RoomID == "" {
		return errors.New("roomId is required")
	}

	p := c.participant
	if p.Identity == "" {
		p.Identity, p.Name = req.Identity, req.Name
	}
	if p.Identity == "" {
		p.Identity = c.handle
	}

	if cur, ok := h.registry.MembershipOf(c.handle, mod); ok && cur.RoomID == req.RoomID {
		return nil
	}

	res, err := h.registry.Join(c.handle, p, req.RoomID, mod)
	if err != nil {
		if errors.Is(err, callerr.ErrRoomFull) {
			h.metrics.RoomRejected(mod.String())
			h.send(c, protocol.NewMessage(mod, protocol.EventRoomFull, protocol.RoomFull{
				RoomID:  req.RoomID,
				Message: roomFullMessage,
			}))
		}
		return err
	}

	if res.Previous != nil {
		h.notifyLeft(*res.Previous)
	}
	h.metrics.RoomJoined(mod.String())
	h.roomsChanged(mod)

	self := Membership{Handle: c.handle, Participant: p, RoomID: req.RoomID, Modality: mod}
	for _, existing := range res.Existing {
		h.send(c, protocol.NewMessage(mod, protocol.EventExistingUser, existing.Peer()))
		if other, ok := h.clients[existing.Handle]; ok {
			h.send(other, protocol.NewMessage(mod, protocol.EventNewUserJoined, self.Peer()))
		}
	}
	h.send(c, protocol.NewMessage(mod, protocol.EventUserJoined, protocol.UserJoined{
		Identity: p.Identity,
		RoomID:   req.RoomID,
	}))

	c.log.Info().
		Str("room", req.RoomID).
		Str("modality", mod.String()).
		Int("members", len(res.Existing)+1).
		Msg("joined room")
	return nil
}

// relay forwards a directed message to a connected member of the sender's
// room. Anything else is dropped.
func (h *Hub) relay(from *Client, mod protocol.Modality, to string, event string, payload any) error {
	sender, ok := h.registry.MembershipOf(from.handle, mod)
	if !ok {
		h.metrics.Dropped(metrics.DropUnreachable)
		return callerr.New("relay "+event, callerr.ErrNotInRoom)
	}
	target, ok := h.clients[to]
	if !ok {
		h.metrics.Dropped(metrics.DropUnreachable)
		return callerr.Wrap("relay "+event, callerr.ErrTargetUnreachable, "target disconnected")
	}
	if m, ok := h.registry.MembershipOf(to, mod); !ok || m.RoomID != sender.RoomID {
		h.metrics.Dropped(metrics.DropUnreachable)
		return callerr.Wrap("relay "+event, callerr.ErrTargetUnreachable, "target not in room")
	}

	h.send(target, protocol.NewMessage(mod, event, payload))
	h.metrics.Relayed(mod.String(), event)
	return nil
}

// notifyLeft tells the remaining members of m's room that m is gone.
func (h *Hub) notifyLeft(m Membership) {
	for _, other := range h.registry.Lookup(m.RoomID, m.Modality, m.Handle) {
		if c, ok := h.clients[other.Handle]; ok {
			h.send(c, protocol.NewMessage(m.Modality, protocol.EventUserLeft, m.Peer()))
		}
	}
}

func (h *Hub) roomsChanged(mod protocol.Modality) {
	h.metrics.SetOccupiedRooms(mod.String(), h.registry.RoomCount(mod))
}
