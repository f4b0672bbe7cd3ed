package protocol

import (
	"fmt"
	"strings"
)

// Modality selects one of the two independent room namespaces.
type Modality string

const (
	Video Modality = "video"
	Audio Modality = "audio"
)

const audioPrefix = "audio:"

// Modalities lists every namespace the server keeps rooms for.
var Modalities = []Modality{Video, Audio}

func ParseModality(s string) (Modality, error) {
	switch Modality(strings.ToLower(s)) {
	case Video:
		return Video, nil
	case Audio:
		return Audio, nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

// Event returns the wire name of base in this namespace. Video events keep
// their bare names, audio events carry the "audio:" prefix.
func (m Modality) Event(base string) string {
	if m == Audio {
		return audioPrefix + base
	}
	return base
}

// RoomKey namespaces a room id so video and audio rooms never collide.
func (m Modality) RoomKey(roomID string) string {
	return string(m) + "_" + roomID
}

func (m Modality) String() string {
	return string(m)
}

// ParseEvent splits a wire type into its namespace and base event name.
func ParseEvent(t string) (Modality, string) {
	if base, ok := strings.CutPrefix(t, audioPrefix); ok {
		return Audio, base
	}
	return Video, t
}

// Room events. The same base names are used in both namespaces.
const (
	EventJoinRoom       = "joinRoom"
	EventUserJoined     = "userJoined"
	EventExistingUser   = "existingUser"
	EventNewUserJoined  = "newUserJoined"
	EventRoomFull       = "roomFull"
	EventCallUser       = "callUser"
	EventIncomingCall   = "incomingCall"
	EventCallAccepted   = "callAccepted"
	EventICECandidate   = "iceCandidate"
	EventEndCall        = "endCall"
	EventCallEnded      = "callEnded"
	EventLeaveRoom      = "leaveRoom"
	EventUserLeft       = "userLeft"
	EventMuteToggle     = "muteToggle"
	EventRemoteMuted    = "remoteMuted"
	EventVideoToggle    = "videoToggle"
	EventRemoteVideoOff = "remoteVideoOff"
)

// Connection events, never namespaced.
const (
	EventConnected = "connected"
	EventError     = "error"
)

// Message is the envelope for every websocket frame in both directions.
// Outbound messages carry a typed Payload; inbound messages keep the
// encoded payload until Decode is called.
type Message struct {
	Type    string
	Payload any

	raw   []byte
	codec Codec
}

func NewMessage(m Modality, base string, payload any) *Message {
	return &Message{Type: m.Event(base), Payload: payload}
}

// Split returns the namespace and base event of the message.
func (m *Message) Split() (Modality, string) {
	return ParseEvent(m.Type)
}

// Decode unmarshals the inbound payload into v. An absent payload leaves v
// untouched.
func (m *Message) Decode(v any) error {
	if len(m.raw) == 0 {
		return nil
	}
	if m.codec == nil {
		return fmt.Errorf("decode %s: message has no codec", m.Type)
	}
	if err := m.codec.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}
