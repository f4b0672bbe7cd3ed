package signaling

import "github.com/techie-mohit/videoCalling/internal/protocol"

// maxRoomSize is the number of participants a room admits in one modality.
const maxRoomSize = 2

// Participant is the identity a connection presents to its peers.
type Participant struct {
	Identity string
	Name     string
}

// Membership records that a connection occupies a room in one modality.
type Membership struct {
	Handle      string
	Participant Participant
	RoomID      string
	Modality    protocol.Modality
}

// Peer is the payload other members receive about this membership.
func (m Membership) Peer() protocol.Peer {
	return protocol.Peer{
		Identity: m.Participant.Identity,
		Name:     m.Participant.Name,
		Handle:   m.Handle,
	}
}

// JoinResult describes an accepted join.
type JoinResult struct {
	// Existing holds the members that were already in the room, in arrival
	// order.
	Existing []Membership
	// Previous is set when the join moved the connection out of another room
	// in the same modality.
	Previous *Membership
}

// RoomInfo is a point-in-time view of one occupied room.
type RoomInfo struct {
	RoomID   string
	Modality protocol.Modality
	Members  []protocol.Peer
}

type memberKey struct {
	modality protocol.Modality
	handle   string
}
