// Package peertest provides an in-memory peer connection for tests. It follows
// the offer/answer signaling states without touching the network.
package peertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/techie-mohit/videoCalling/internal/peer"
)

var ErrClosed = errors.New("peertest: capability closed")

type Capability struct {
	mu         sync.Mutex
	state      webrtc.SignalingState
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []string
	offers     int
	closed     int

	onCandidate func(*webrtc.ICECandidate)
	onState     func(webrtc.PeerConnectionState)
}

func New() *Capability {
	return &Capability{state: webrtc.SignalingStateStable}
}

func (c *Capability) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed > 0 {
		return webrtc.SessionDescription{}, ErrClosed
	}
	c.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.offers)}, nil
}

func (c *Capability) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed > 0 {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if c.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("peertest: no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + c.remote.SDP}, nil
}

func (c *Capability) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case d.Type == webrtc.SDPTypeOffer && c.state == webrtc.SignalingStateStable:
		c.state = webrtc.SignalingStateHaveLocalOffer
	case d.Type == webrtc.SDPTypeAnswer && c.state == webrtc.SignalingStateHaveRemoteOffer:
		c.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("peertest: local %s in state %s", d.Type, c.state)
	}
	c.local = &d
	return nil
}

func (c *Capability) SetRemoteDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case d.Type == webrtc.SDPTypeOffer && c.state == webrtc.SignalingStateStable:
		c.state = webrtc.SignalingStateHaveRemoteOffer
	case d.Type == webrtc.SDPTypeAnswer && c.state == webrtc.SignalingStateHaveLocalOffer:
		c.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("peertest: remote %s in state %s", d.Type, c.state)
	}
	c.remote = &d
	return nil
}

func (c *Capability) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Capability) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Capability) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capability) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return errors.New("peertest: candidate before remote description")
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *Capability) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = append(c.tracks, track.ID())
	return nil, nil
}

func (c *Capability) OnICECandidate(f func(*webrtc.ICECandidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = f
}

func (c *Capability) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (c *Capability) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = f
}

func (c *Capability) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// EmitCandidate reports a local host candidate as if gathering found it.
func (c *Capability) EmitCandidate(port uint16) {
	c.mu.Lock()
	f := c.onCandidate
	c.mu.Unlock()

	if f != nil {
		f(&webrtc.ICECandidate{
			Foundation: "1",
			Priority:   2130706431,
			Address:    "192.0.2.1",
			Protocol:   webrtc.ICEProtocolUDP,
			Port:       port,
			Typ:        webrtc.ICECandidateTypeHost,
			Component:  1,
		})
	}
}

// EmitState reports a connection state change.
func (c *Capability) EmitState(state webrtc.PeerConnectionState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()

	if f != nil {
		f(state)
	}
}

// Applied returns the candidate strings applied so far, in order.
func (c *Capability) Applied() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.candidates))
	for i, cand := range c.candidates {
		out[i] = cand.Candidate
	}
	return out
}

func (c *Capability) Tracks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tracks...)
}

func (c *Capability) Offers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

func (c *Capability) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Factory records every capability it hands out.
type Factory struct {
	mu      sync.Mutex
	created []*Capability
	Err     error
}

func (f *Factory) New() (peer.Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	c := New()
	f.created = append(f.created, c)
	return c, nil
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Last returns the most recently created capability.
func (f *Factory) Last() *Capability {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *Factory) At(i int) *Capability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}
