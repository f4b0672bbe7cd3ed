// Package call drives one room view: it joins the room, learns its role from
// the join notifications and walks the peer session through the handshake.
// Every state change happens on the Run goroutine.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/media"
	"github.com/techie-mohit/videoCalling/internal/peer"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

const (
	defaultSettleDelay = 300 * time.Millisecond
	inboxSize          = 32
)

// Signaler sends relay messages. *signalclient.Client satisfies it.
type Signaler interface {
	Send(msg *protocol.Message) error
}

type Options struct {
	RoomID   string
	Modality protocol.Modality
	Identity string
	Name     string
	// SettleDelay is how long a caller waits after learning its role before
	// it offers.
	SettleDelay time.Duration
}

type Controller struct {
	opts     Options
	signaler Signaler
	session  *peer.Session
	acquirer *media.Acquirer
	autoCall func(func())
	log      zerolog.Logger

	inbox   chan func()
	updates chan Snapshot
	done    core.Fuse

	mu   sync.Mutex
	last Snapshot

	// Everything below is owned by the Run goroutine.
	ctx          context.Context
	state        State
	role         Role
	peer         protocol.Peer
	peerGen      uint64
	pendingOffer *protocol.SessionDescription
	offerSent    bool
	settled      bool
	inRoom       bool

	stream    *media.Stream
	acquiring bool
	mediaErr  string
	lastErr   string
	link      string

	muted          bool
	cameraOff      bool
	remoteMuted    bool
	remoteVideoOff bool

	connectedAt  time.Time
	calls        int
	lastReason   string
	lastDuration time.Duration

	exiting bool
	exit    error
}

func NewController(opts Options, signaler Signaler, factory peer.Factory, acquirer *media.Acquirer) (*Controller, error) {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}

	c := &Controller{
		opts:     opts,
		signaler: signaler,
		acquirer: acquirer,
		autoCall: debounce.New(opts.SettleDelay),
		inbox:    make(chan func(), inboxSize),
		updates:  make(chan Snapshot, 1),
		log: log.With().
			Str("room", opts.RoomID).
			Str("modality", opts.Modality.String()).
			Logger(),
	}

	session, err := peer.NewSession(factory, peer.Events{
		OnCandidate:   c.onLocalCandidate,
		OnTrack:       c.onRemoteTrack,
		OnStateChange: c.onLinkState,
	})
	if err != nil {
		return nil, err
	}
	c.session = session
	c.last = c.snapshot()
	return c, nil
}

// Run joins the room and handles incoming room messages until the call is
// left, ended, rejected or the signaling connection goes away. It returns
// ErrRoomFull or ErrSignalingClosed for those exits and nil otherwise. Run
// must be called once.
func (c *Controller) Run(ctx context.Context, incoming <-chan *protocol.Message) error {
	defer c.shutdown()

	c.join(ctx)
	for !c.exiting {
		select {
		case <-ctx.Done():
			c.leave("left the room")

		case msg, ok := <-incoming:
			if !ok {
				c.inRoom = false
				c.teardown("signaling connection lost")
				c.finish(callerr.New("signaling", callerr.ErrSignalingClosed))
				continue
			}
			c.handle(msg)

		case fn := <-c.inbox:
			fn()
		}
	}
	return c.exit
}

// Updates delivers the latest snapshot after each change. Stale snapshots
// are replaced, never queued. The channel closes when Run returns.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Snapshot returns the most recently published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Controller) Done() <-chan struct{} {
	return c.done.Watch()
}

// ToggleMute flips the local microphone. It is only allowed while
// negotiating or connected.
func (c *Controller) ToggleMute() error {
	return c.call(c.toggleMute)
}

// ToggleCamera flips the local camera in video calls. It is only allowed
// while negotiating or connected.
func (c *Controller) ToggleCamera() error {
	return c.call(c.toggleCamera)
}

// End hangs up and leaves the room.
func (c *Controller) End() {
	c.post(c.end)
}

// Leave leaves the room without hanging up first; the peer sees userLeft.
func (c *Controller) Leave() {
	c.post(func() { c.leave("left the room") })
}

// RetryMedia starts another acquisition after a failed one.
func (c *Controller) RetryMedia() {
	c.post(c.ensureMedia)
}

func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done.Watch():
	}
}

func (c *Controller) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- fn() }:
	case <-c.done.Watch():
		return callerr.New("call", callerr.ErrSessionClosed)
	}

	select {
	case err := <-reply:
		return err
	case <-c.done.Watch():
		select {
		case err := <-reply:
			return err
		default:
			return callerr.New("call", callerr.ErrSessionClosed)
		}
	}
}

func (c *Controller) join(ctx context.Context) {
	c.ctx = ctx
	c.inRoom = true
	c.send(protocol.EventJoinRoom, protocol.JoinRoom{
		Identity: c.opts.Identity,
		Name:     c.opts.Name,
		RoomID:   c.opts.RoomID,
	})
	c.setState(Waiting)
	c.ensureMedia()
}

func (c *Controller) handle(msg *protocol.Message) {
	mod, base := msg.Split()
	if mod != c.opts.Modality {
		return
	}

	switch base {
	case protocol.EventUserJoined:
		if p, ok := decode[protocol.UserJoined](c, msg); ok {
			c.log.Debug().Str("identity", p.Identity).Msg("joined room")
		}

	case protocol.EventExistingUser:
		if p, ok := decode[protocol.Peer](c, msg); ok {
			c.adoptPeer(p, Callee)
		}

	case protocol.EventNewUserJoined:
		if p, ok := decode[protocol.Peer](c, msg); ok {
			c.adoptPeer(p, Caller)
		}

	case protocol.EventIncomingCall:
		if p, ok := decode[protocol.IncomingCall](c, msg); ok {
			c.onIncomingCall(p)
		}

	case protocol.EventCallAccepted:
		if p, ok := decode[protocol.CallAccepted](c, msg); ok {
			c.onCallAccepted(p)
		}

	case protocol.EventICECandidate:
		if p, ok := decode[protocol.Candidate](c, msg); ok {
			c.onRemoteCandidate(p)
		}

	case protocol.EventRemoteMuted:
		if p, ok := decode[protocol.MuteToggle](c, msg); ok && c.peer.Handle != "" {
			c.remoteMuted = p.IsMuted
			c.publish()
		}

	case protocol.EventRemoteVideoOff:
		if p, ok := decode[protocol.VideoToggle](c, msg); ok && c.peer.Handle != "" {
			c.remoteVideoOff = p.IsVideoOff
			c.publish()
		}

	case protocol.EventUserLeft:
		if p, ok := decode[protocol.Peer](c, msg); ok && p.Handle == c.peer.Handle {
			c.teardown("peer left")
		}

	case protocol.EventCallEnded:
		c.send(protocol.EventLeaveRoom, nil)
		c.inRoom = false
		c.teardown("call ended by peer")
		c.finish(nil)

	case protocol.EventRoomFull:
		p, _ := decode[protocol.RoomFull](c, msg)
		c.inRoom = false
		c.teardown("room is full")
		c.finish(callerr.Wrap("join room", callerr.ErrRoomFull, p.Message))

	default:
		c.log.Debug().Str("type", msg.Type).Msg("ignoring message")
	}
}

func decode[T any](c *Controller, msg *protocol.Message) (T, bool) {
	var v T
	if err := msg.Decode(&v); err != nil {
		c.log.Warn().Err(err).Msg("bad payload")
		return v, false
	}
	return v, true
}

func (c *Controller) adoptPeer(p protocol.Peer, role Role) {
	if p.Handle == c.peer.Handle && role == c.role {
		return
	}
	if c.peer.Handle != "" {
		c.teardown("peer replaced")
	}

	c.peer = p
	c.role = role
	c.peerGen++
	c.log.Info().Str("peer", p.Identity).Str("role", role.String()).Msg("role assigned")
	c.setState(RoleAssigned)
	c.ensureMedia()

	if role == Caller {
		gen := c.peerGen
		c.autoCall(func() {
			c.post(func() { c.onSettled(gen) })
		})
		return
	}
	c.maybeAnswer()
}

func (c *Controller) onSettled(gen uint64) {
	if gen != c.peerGen {
		return
	}
	c.settled = true
	c.maybeCall()
}

// maybeCall sends the offer once the caller has both settled and local media.
func (c *Controller) maybeCall() {
	if c.role != Caller || c.state != RoleAssigned || c.offerSent || !c.settled || c.stream == nil {
		return
	}

	if err := c.session.AttachTracks(c.localTracks()...); err != nil {
		c.fail(err)
		return
	}
	offer, err := c.session.CreateOffer()
	if err != nil {
		c.fail(err)
		return
	}
	c.offerSent = true
	c.setState(Negotiating)
	c.send(protocol.EventCallUser, protocol.CallUser{To: c.peer.Handle, Offer: offer})
}

func (c *Controller) onIncomingCall(p protocol.IncomingCall) {
	if p.From != c.peer.Handle || c.role != Callee {
		c.log.Debug().Str("from", p.From).Msg("ignoring offer")
		return
	}
	offer := p.Offer
	c.pendingOffer = &offer
	c.ensureMedia()
	c.maybeAnswer()
}

// maybeAnswer answers a held offer once local media is ready.
func (c *Controller) maybeAnswer() {
	if c.role != Callee || c.pendingOffer == nil || c.stream == nil {
		return
	}
	offer := *c.pendingOffer
	c.pendingOffer = nil

	if c.state == RoleAssigned {
		c.setState(Negotiating)
	}
	if err := c.session.AttachTracks(c.localTracks()...); err != nil {
		c.fail(err)
		return
	}
	answer, err := c.session.CreateAnswer(offer)
	if err != nil {
		if callerr.IsBenign(err) {
			c.log.Debug().Err(err).Msg("duplicate offer")
			return
		}
		c.fail(err)
		return
	}
	c.send(protocol.EventCallAccepted, protocol.CallAccepted{To: c.peer.Handle, Answer: answer})
	c.markConnected()
}

func (c *Controller) onCallAccepted(p protocol.CallAccepted) {
	if p.From != c.peer.Handle || c.role != Caller {
		return
	}
	if err := c.session.ApplyRemoteAnswer(p.Answer); err != nil {
		if callerr.IsBenign(err) {
			c.log.Debug().Err(err).Msg("late answer")
			return
		}
		c.fail(err)
		return
	}
	c.markConnected()
}

func (c *Controller) onRemoteCandidate(p protocol.Candidate) {
	if c.peer.Handle == "" || p.From != c.peer.Handle {
		return
	}
	if _, err := c.session.AddRemoteCandidate(p.Candidate); err != nil {
		c.log.Warn().Err(err).Msg("failed to add candidate")
	}
}

func (c *Controller) markConnected() {
	if c.state == Connected {
		return
	}
	c.connectedAt = time.Now()
	c.calls++
	c.lastErr = ""
	c.setState(Connected)
}

func (c *Controller) onLocalCandidate(cand protocol.ICECandidate) {
	c.post(func() {
		if c.peer.Handle == "" {
			return
		}
		c.send(protocol.EventICECandidate, protocol.Candidate{To: c.peer.Handle, Candidate: cand})
	})
}

func (c *Controller) onRemoteTrack(kind webrtc.RTPCodecType) {
	c.post(func() {
		c.log.Debug().Str("kind", kind.String()).Msg("remote track")
		if c.state == Negotiating {
			c.markConnected()
		}
	})
}

func (c *Controller) onLinkState(state webrtc.PeerConnectionState) {
	c.post(func() {
		c.link = state.String()
		if state == webrtc.PeerConnectionStateConnected && c.state == Negotiating {
			c.markConnected()
			return
		}
		c.publish()
	})
}

func (c *Controller) ensureMedia() {
	if c.stream != nil || c.acquiring {
		return
	}
	c.acquiring = true
	c.mediaErr = ""
	c.publish()

	ctx := c.ctx
	go func() {
		s, err := c.acquirer.Acquire(ctx)
		c.post(func() { c.onMedia(s, err) })
	}()
}

func (c *Controller) onMedia(s *media.Stream, err error) {
	c.acquiring = false
	if err != nil {
		c.mediaErr = err.Error()
		c.log.Warn().Err(err).Msg("local media unavailable")
		c.publish()
		return
	}

	c.stream = s
	s.Audio.SetEnabled(!c.muted)
	if s.Video != nil {
		s.Video.SetEnabled(!c.cameraOff)
	}
	c.publish()
	c.maybeCall()
	c.maybeAnswer()
}

func (c *Controller) localTracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	for _, t := range c.stream.Tracks() {
		out = append(out, t)
	}
	return out
}

func (c *Controller) toggleMute() error {
	if c.state != Negotiating && c.state != Connected {
		return callerr.New("toggle mute", callerr.ErrToggleNotAllowed)
	}
	c.muted = !c.muted
	if c.stream != nil {
		c.stream.Audio.SetEnabled(!c.muted)
	}
	c.send(protocol.EventMuteToggle, protocol.MuteToggle{To: c.peer.Handle, IsMuted: c.muted})
	c.publish()
	return nil
}

func (c *Controller) toggleCamera() error {
	if c.opts.Modality != protocol.Video || (c.state != Negotiating && c.state != Connected) {
		return callerr.New("toggle camera", callerr.ErrToggleNotAllowed)
	}
	c.cameraOff = !c.cameraOff
	if c.stream != nil && c.stream.Video != nil {
		c.stream.Video.SetEnabled(!c.cameraOff)
	}
	c.send(protocol.EventVideoToggle, protocol.VideoToggle{To: c.peer.Handle, IsVideoOff: c.cameraOff})
	c.publish()
	return nil
}

func (c *Controller) end() {
	if c.peer.Handle != "" {
		c.send(protocol.EventEndCall, protocol.EndCall{To: c.peer.Handle})
	} else {
		c.send(protocol.EventLeaveRoom, nil)
	}
	c.inRoom = false
	c.teardown("call ended")
	c.finish(nil)
}

func (c *Controller) leave(reason string) {
	c.send(protocol.EventLeaveRoom, nil)
	c.inRoom = false
	c.teardown(reason)
	c.finish(nil)
}

// teardown resets the peer session and forgets the peer. The controller
// goes back to waiting while it is still in the room.
func (c *Controller) teardown(reason string) {
	c.setState(Ended)
	if err := c.session.Reset(); err != nil {
		c.log.Warn().Err(err).Msg("failed to reset peer session")
	}

	if !c.connectedAt.IsZero() {
		c.lastDuration = time.Since(c.connectedAt).Truncate(time.Second)
	}
	c.lastReason = reason
	c.log.Info().Str("reason", reason).Msg("call torn down")

	c.peer = protocol.Peer{}
	c.role = NoRole
	c.peerGen++
	c.pendingOffer = nil
	c.offerSent = false
	c.settled = false
	c.remoteMuted = false
	c.remoteVideoOff = false
	c.connectedAt = time.Time{}
	c.link = ""

	if c.inRoom {
		c.setState(Waiting)
	} else {
		c.setState(Idle)
	}
}

func (c *Controller) fail(err error) {
	c.lastErr = err.Error()
	c.log.Error().Err(err).Msg("negotiation failed")
	c.publish()
}

func (c *Controller) finish(err error) {
	c.exiting = true
	c.exit = err
}

func (c *Controller) shutdown() {
	c.autoCall(func() {})
	c.session.Close()
	c.acquirer.Release()
	c.stream = nil
	c.publish()
	c.done.Break()
	close(c.updates)
}

func (c *Controller) send(base string, payload any) {
	if err := c.signaler.Send(protocol.NewMessage(c.opts.Modality, base, payload)); err != nil {
		c.log.Warn().Err(err).Str("type", base).Msg("failed to send")
	}
}

func (c *Controller) setState(s State) {
	if c.state != s {
		c.log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("state changed")
	}
	c.state = s
	c.publish()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:          c.state,
		Role:           c.role,
		RoomID:         c.opts.RoomID,
		Modality:       c.opts.Modality,
		Peer:           c.peer,
		Link:           c.link,
		Muted:          c.muted,
		CameraOff:      c.cameraOff,
		RemoteMuted:    c.remoteMuted,
		RemoteVideoOff: c.remoteVideoOff,
		MediaReady:     c.stream != nil,
		MediaError:     c.mediaErr,
		Error:          c.lastErr,
		ConnectedAt:    c.connectedAt,
		Calls:          c.calls,
		LastReason:     c.lastReason,
		LastDuration:   c.lastDuration,
	}
}

func (c *Controller) publish() {
	snap := c.snapshot()

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}
