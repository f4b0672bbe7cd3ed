// Package peer manages the one peer connection a call drives at a time:
// offer and answer creation, buffering of early remote candidates and reset
// between calls.
package peer

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// Capability is the part of a peer connection a Session uses.
// *webrtc.PeerConnection satisfies it.
type Capability interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	SignalingState() webrtc.SignalingState
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Factory allocates a fresh capability handle.
type Factory func() (Capability, error)

// NewFactory returns a Factory creating pion peer connections for the given
// ICE servers. forceRelay only takes effect when a TURN server is configured.
func NewFactory(iceServers []webrtc.ICEServer, forceRelay bool) Factory {
	policy := webrtc.ICETransportPolicyAll
	if forceRelay && HasTURN(iceServers) {
		policy = webrtc.ICETransportPolicyRelay
		log.Debug().Msg("forcing TURN relay")
	}

	return func() (Capability, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		})
		if err != nil {
			return nil, callerr.New("create peer connection", err)
		}
		return pc, nil
	}
}

// HasTURN reports whether any server offers a turn: or turns: URL.
func HasTURN(servers []webrtc.ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn") {
				return true
			}
		}
	}
	return false
}

// ToPion converts a wire description into its pion form.
func ToPion(d protocol.SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, callerr.Wrap("parse description", errUnknownSDPType, d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func FromPion(d webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func candidateToPion(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func candidateFromPion(c webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
