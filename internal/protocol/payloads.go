package protocol

// Peer identifies the other participant of a room.
type Peer struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	Handle   string `json:"handle"`
}

type JoinRoom struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	RoomID   string `json:"roomId"`
}

type UserJoined struct {
	Identity string `json:"identity"`
	RoomID   string `json:"roomId"`
}

type RoomFull struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// SessionDescription is an opaque offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type CallUser struct {
	To    string             `json:"to"`
	Offer SessionDescription `json:"offer"`
}

type IncomingCall struct {
	From  string             `json:"from"`
	Offer SessionDescription `json:"offer"`
}

// CallAccepted carries To from the client and From from the server.
type CallAccepted struct {
	To     string             `json:"to,omitempty"`
	From   string             `json:"from,omitempty"`
	Answer SessionDescription `json:"answer"`
}

type Candidate struct {
	To        string       `json:"to,omitempty"`
	From      string       `json:"from,omitempty"`
	Candidate ICECandidate `json:"candidate"`
}

type EndCall struct {
	To string `json:"to"`
}

type MuteToggle struct {
	To      string `json:"to,omitempty"`
	IsMuted bool   `json:"isMuted"`
}

type VideoToggle struct {
	To         string `json:"to,omitempty"`
	IsVideoOff bool   `json:"isVideoOff"`
}

// Connected is sent once per connection with the server-assigned handle.
type Connected struct {
	Handle   string `json:"handle"`
	Identity string `json:"identity,omitempty"`
	Name     string `json:"name,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// HTTP API bodies served next to the websocket endpoint.

type RoomSuggestion struct {
	RoomID string `json:"roomId"`
}

type RoomStats struct {
	RoomID   string `json:"roomId"`
	Modality string `json:"modality"`
	Members  int    `json:"members"`
}

type ServerStats struct {
	Connections int            `json:"connections"`
	Occupied    map[string]int `json:"occupied"`
	Rooms       []RoomStats    `json:"rooms"`
}
