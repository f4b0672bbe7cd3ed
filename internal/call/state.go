package call

import (
	"time"

	"github.com/techie-mohit/videoCalling/internal/protocol"
)

type State int

const (
	Idle State = iota
	Waiting
	RoleAssigned
	Negotiating
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case RoleAssigned:
		return "role assigned"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Role is decided by join order: the member already in the room calls the newcomer.
type Role int

const (
	NoRole Role = iota
	Caller
	Callee
)

func (r Role) String() string {
	switch r {
	case Caller:
		return "caller"
	case Callee:
		return "callee"
	}
	return "none"
}

// Snapshot is what the call screen renders.
type Snapshot struct {
	State    State
	Role     Role
	RoomID   string
	Modality protocol.Modality
	// Peer is the zero value while alone in the room.
	Peer protocol.Peer
	Link string

	Muted          bool
	CameraOff      bool
	RemoteMuted    bool
	RemoteVideoOff bool

	MediaReady bool
	MediaError string
	// Error is the last local negotiation failure.
	Error string

	ConnectedAt time.Time
	Calls       int
	// LastReason says why the previous call ended.
	LastReason   string
	LastDuration time.Duration
}

func (s Snapshot) HasPeer() bool {
	return s.Peer.Handle != ""
}

// Duration returns how long the current call has been connected.
func (s Snapshot) Duration(now time.Time) time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return now.Sub(s.ConnectedAt).Truncate(time.Second)
}
