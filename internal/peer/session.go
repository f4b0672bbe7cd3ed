package peer

import (
	"errors"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

var errUnknownSDPType = errors.New("unknown sdp type")

// Events receives what the current capability handle reports. Callbacks from
// a handle that has since been reset are dropped.
type Events struct {
	OnCandidate   func(protocol.ICECandidate)
	OnTrack       func(kind webrtc.RTPCodecType)
	OnStateChange func(webrtc.PeerConnectionState)
}

// Session owns exactly one capability handle at a time together with the
// buffer of remote candidates that arrived before a remote description.
type Session struct {
	factory Factory
	events  Events
	log     zerolog.Logger

	mu  sync.Mutex
	pc  Capability
	gen uint64
	// pristine is true until the handle is used for negotiation.
	pristine bool
	answered bool
	attached map[string]bool
	buffer   deque.Deque[protocol.ICECandidate]

	closed core.Fuse
}

func NewSession(factory Factory, events Events) (*Session, error) {
	s := &Session{
		factory: factory,
		events:  events,
		log:     log.With().Str("component", "peer").Logger(),
	}
	if err := s.allocate(); err != nil {
		return nil, err
	}
	return s, nil
}

// allocate installs a new handle. Callers hold mu or own s exclusively.
func (s *Session) allocate() error {
	pc, err := s.factory()
	if err != nil {
		return err
	}

	s.gen++
	gen := s.gen
	s.pc = pc
	s.pristine = true
	s.answered = false
	s.attached = make(map[string]bool)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || !s.current(gen) || s.events.OnCandidate == nil {
			return
		}
		s.events.OnCandidate(candidateFromPion(c.ToJSON()))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go drain(track)
		if s.current(gen) && s.events.OnTrack != nil {
			s.events.OnTrack(track.Kind())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("connection state changed")
		if s.current(gen) && s.events.OnStateChange != nil {
			s.events.OnStateChange(state)
		}
	})

	return nil
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && !s.closed.IsBroken()
}

// drain reads a remote track until it ends. Media is never inspected.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// handle returns the live capability or ErrSessionClosed. Callers hold mu.
func (s *Session) handle(op string) (Capability, error) {
	if s.closed.IsBroken() || s.pc == nil {
		return nil, callerr.New(op, callerr.ErrSessionClosed)
	}
	return s.pc, nil
}

// AttachTracks adds local tracks to the current handle. A track already
// attached to this handle is skipped.
func (s *Session) AttachTracks(tracks ...webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("attach tracks")
	if err != nil {
		return err
	}

	for _, t := range tracks {
		if s.attached[t.ID()] {
			continue
		}
		sender, err := pc.AddTrack(t)
		if err != nil {
			return callerr.New("add track", err)
		}
		s.attached[t.ID()] = true
		s.pristine = false
		if sender != nil {
			go drainRTCP(sender)
		}
	}
	return nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// CreateOffer produces an offer and sets it as the local description. Local
// tracks must be attached first.
func (s *Session) CreateOffer() (protocol.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("create offer")
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	s.pristine = false

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, callerr.New("create offer", err)
	}
	if err = pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, callerr.New("set local description", err)
	}
	return FromPion(*pc.LocalDescription()), nil
}

// CreateAnswer applies the remote offer, replays buffered candidates, then
// produces the answer and sets it as the local description. A second answer
// on the same handle is refused.
func (s *Session) CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("create answer")
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if s.answered {
		return protocol.SessionDescription{}, callerr.New("create answer", callerr.ErrAnswerAlreadyCreated)
	}

	desc, err := ToPion(offer)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	s.pristine = false

	if err := pc.SetRemoteDescription(desc); err != nil {
		return protocol.SessionDescription{}, callerr.New("set remote description", err)
	}
	s.flushLocked(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, callerr.New("create answer", err)
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, callerr.New("set local description", err)
	}
	s.answered = true
	return FromPion(*pc.LocalDescription()), nil
}

// ApplyRemoteAnswer sets the peer's answer. Without an outstanding local
// offer it returns ErrNoPendingOffer and changes nothing.
func (s *Session) ApplyRemoteAnswer(answer protocol.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("apply answer")
	if err != nil {
		return err
	}
	if pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return callerr.New("apply answer", callerr.ErrNoPendingOffer)
	}

	desc, err := ToPion(answer)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return callerr.New("set remote description", err)
	}
	s.flushLocked(pc)
	return nil
}

// AddRemoteCandidate applies c when a remote description is set and buffers
// it otherwise. It reports whether c was buffered.
func (s *Session) AddRemoteCandidate(c protocol.ICECandidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("add candidate")
	if err != nil {
		return false, err
	}
	if pc.RemoteDescription() == nil {
		s.buffer.PushBack(c)
		return true, nil
	}
	if err := pc.AddICECandidate(candidateToPion(c)); err != nil {
		return false, callerr.New("add ICE candidate", err)
	}
	return false, nil
}

// FlushCandidates applies every buffered candidate in arrival order and
// empties the buffer. It returns how many were applied.
func (s *Session) FlushCandidates() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.handle("flush candidates")
	if err != nil {
		return 0, err
	}
	return s.flushLocked(pc), nil
}

func (s *Session) flushLocked(pc Capability) int {
	applied := 0
	for s.buffer.Len() > 0 {
		c := s.buffer.PopFront()
		if err := pc.AddICECandidate(candidateToPion(c)); err != nil {
			s.log.Warn().Err(err).Msg("failed to apply buffered candidate")
			continue
		}
		applied++
	}
	return applied
}

// Reset closes the current handle, allocates a new one and drops buffered
// candidates. On an untouched session it does nothing.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.IsBroken() {
		return callerr.New("reset", callerr.ErrSessionClosed)
	}
	if s.pc != nil && s.pristine && s.buffer.Len() == 0 {
		return nil
	}

	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close peer connection")
		}
		s.pc = nil
	}
	s.buffer.Clear()

	if err := s.allocate(); err != nil {
		return callerr.New("reset", err)
	}
	return nil
}

// Close releases the handle for good. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.IsBroken() {
		return
	}
	s.closed.Break()

	if s.pc != nil {
		_ = s.pc.Close()
		s.pc = nil
	}
	s.buffer.Clear()
}
