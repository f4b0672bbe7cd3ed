package call

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/media"
	"github.com/techie-mohit/videoCalling/internal/peer/peertest"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

const wait = 2 * time.Second

type fakeSignaler struct {
	sent chan *protocol.Message
}

func (f *fakeSignaler) Send(msg *protocol.Message) error {
	f.sent <- msg
	return nil
}

// gatedOpener opens synthetic streams, optionally holding each open until
// released or failing it.
type gatedOpener struct {
	gate   chan struct{}
	fail   atomic.Bool
	opens  atomic.Int32
	stream atomic.Pointer[media.Stream]
}

func (o *gatedOpener) Open(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	o.opens.Inc()
	if o.gate != nil {
		<-o.gate
	}
	if o.fail.Load() {
		return nil, errors.New("camera busy")
	}
	s, err := (&media.FileOpener{}).Open(ctx, c)
	if err == nil {
		o.stream.Store(s)
	}
	return s, err
}

type harness struct {
	t        *testing.T
	mod      protocol.Modality
	c        *Controller
	sig      *fakeSignaler
	factory  *peertest.Factory
	opener   *gatedOpener
	acquirer *media.Acquirer
	in       chan *protocol.Message
	errc     chan error
	cancel   context.CancelFunc
}

func start(t *testing.T, mod protocol.Modality, opener *gatedOpener) *harness {
	t.Helper()

	if opener == nil {
		opener = &gatedOpener{}
	}
	h := &harness{
		t:       t,
		mod:     mod,
		sig:     &fakeSignaler{sent: make(chan *protocol.Message, 64)},
		factory: &peertest.Factory{},
		opener:  opener,
		in:      make(chan *protocol.Message, 16),
		errc:    make(chan error, 1),
	}
	h.acquirer = media.NewAcquirer(opener, media.Constraints{Video: mod == protocol.Video})

	c, err := NewController(Options{
		RoomID:      "room-1",
		Modality:    mod,
		Identity:    "ada@example.com",
		Name:        "Ada",
		SettleDelay: 10 * time.Millisecond,
	}, h.sig, h.factory.New, h.acquirer)
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- c.Run(ctx, h.in) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-c.Done():
		case <-time.After(wait):
			t.Error("controller did not stop")
		}
	})

	join := h.expect(protocol.EventJoinRoom)
	require.Equal(t, protocol.JoinRoom{Identity: "ada@example.com", Name: "Ada", RoomID: "room-1"}, join.Payload)
	h.waitState(Waiting)
	return h
}

func (h *harness) push(base string, payload any) {
	h.t.Helper()

	data, err := protocol.JSON.Encode(protocol.NewMessage(h.mod, base, payload))
	require.NoError(h.t, err)
	msg, err := protocol.JSON.Decode(data)
	require.NoError(h.t, err)
	h.in <- msg
}

func (h *harness) expect(base string) *protocol.Message {
	h.t.Helper()

	select {
	case msg := <-h.sig.sent:
		require.Equal(h.t, h.mod.Event(base), msg.Type)
		return msg
	case <-time.After(wait):
		h.t.Fatalf("no %s sent", base)
		return nil
	}
}

func (h *harness) expectQuiet(d time.Duration) {
	h.t.Helper()

	select {
	case msg := <-h.sig.sent:
		h.t.Fatalf("unexpected %s sent", msg.Type)
	case <-time.After(d):
	}
}

func (h *harness) waitState(s State) Snapshot {
	h.t.Helper()

	require.Eventually(h.t, func() bool { return h.c.Snapshot().State == s }, wait, time.Millisecond,
		"want state %s, have %s", s, h.c.Snapshot().State)
	return h.c.Snapshot()
}

func (h *harness) result() error {
	h.t.Helper()

	select {
	case err := <-h.errc:
		return err
	case <-time.After(wait):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func remoteCandidate(from string, i int) protocol.Candidate {
	return protocol.Candidate{
		From:      from,
		Candidate: protocol.ICECandidate{Candidate: fmt.Sprintf("candidate:%d", i)},
	}
}

// connectAsCaller drives the controller through a full caller handshake with
// peer handle.
func (h *harness) connectAsCaller(handle string) {
	h.t.Helper()

	h.push(protocol.EventNewUserJoined, protocol.Peer{Identity: handle + "@example.com", Handle: handle})
	call := h.expect(protocol.EventCallUser).Payload.(protocol.CallUser)
	require.Equal(h.t, handle, call.To)

	h.push(protocol.EventCallAccepted, protocol.CallAccepted{
		From:   handle,
		Answer: protocol.SessionDescription{Type: "answer", SDP: "answer-from-" + handle},
	})
	h.waitState(Connected)
}

func TestCallerHandshake(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.push(protocol.EventNewUserJoined, protocol.Peer{Identity: "bob@example.com", Handle: "b"})
	call := h.expect(protocol.EventCallUser).Payload.(protocol.CallUser)
	require.Equal(t, "b", call.To)
	require.Equal(t, "offer", call.Offer.Type)

	snap := h.waitState(Negotiating)
	require.Equal(t, Caller, snap.Role)
	require.Equal(t, "bob@example.com", snap.Peer.Identity)
	require.Equal(t, []string{"audio", "video"}, h.factory.Last().Tracks())

	// Candidates that beat the answer are held, then applied in order.
	for i := range 3 {
		h.push(protocol.EventICECandidate, remoteCandidate("b", i))
	}
	h.push(protocol.EventICECandidate, remoteCandidate("stranger", 9))
	h.push(protocol.EventCallAccepted, protocol.CallAccepted{
		From:   "b",
		Answer: protocol.SessionDescription{Type: "answer", SDP: "x"},
	})

	snap = h.waitState(Connected)
	require.Equal(t, 1, snap.Calls)
	require.False(t, snap.ConnectedAt.IsZero())
	require.Equal(t, []string{"candidate:0", "candidate:1", "candidate:2"}, h.factory.Last().Applied())

	// A duplicate answer is absorbed.
	h.push(protocol.EventCallAccepted, protocol.CallAccepted{
		From:   "b",
		Answer: protocol.SessionDescription{Type: "answer", SDP: "x"},
	})
	h.expectQuiet(30 * time.Millisecond)
	require.Equal(t, Connected, h.c.Snapshot().State)
	require.Empty(t, h.c.Snapshot().Error)
}

func TestCalleeHandshake(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.push(protocol.EventExistingUser, protocol.Peer{Identity: "bob@example.com", Handle: "b"})
	snap := h.waitState(RoleAssigned)
	require.Equal(t, Callee, snap.Role)

	// The callee never offers on its own.
	h.expectQuiet(50 * time.Millisecond)

	for i := range 3 {
		h.push(protocol.EventICECandidate, remoteCandidate("b", i))
	}
	h.push(protocol.EventIncomingCall, protocol.IncomingCall{
		From:  "b",
		Offer: protocol.SessionDescription{Type: "offer", SDP: "offer-b"},
	})

	accepted := h.expect(protocol.EventCallAccepted).Payload.(protocol.CallAccepted)
	require.Equal(t, "b", accepted.To)
	require.Equal(t, protocol.SessionDescription{Type: "answer", SDP: "answer-to-offer-b"}, accepted.Answer)

	h.waitState(Connected)
	require.Equal(t, []string{"candidate:0", "candidate:1", "candidate:2"}, h.factory.Last().Applied())

	// A repeated offer does not produce a second answer.
	h.push(protocol.EventIncomingCall, protocol.IncomingCall{
		From:  "b",
		Offer: protocol.SessionDescription{Type: "offer", SDP: "offer-b"},
	})
	h.expectQuiet(30 * time.Millisecond)
	require.Equal(t, Connected, h.c.Snapshot().State)
}

func TestCallerWaitsForMedia(t *testing.T) {
	opener := &gatedOpener{gate: make(chan struct{})}
	h := start(t, protocol.Video, opener)

	h.push(protocol.EventNewUserJoined, protocol.Peer{Handle: "b"})
	h.waitState(RoleAssigned)
	h.expectQuiet(50 * time.Millisecond)
	require.False(t, h.c.Snapshot().MediaReady)

	close(opener.gate)
	call := h.expect(protocol.EventCallUser).Payload.(protocol.CallUser)
	require.Equal(t, "b", call.To)
	require.True(t, h.c.Snapshot().MediaReady)
	require.EqualValues(t, 1, opener.opens.Load())
}

func TestCalleeHoldsOfferUntilMedia(t *testing.T) {
	opener := &gatedOpener{gate: make(chan struct{})}
	h := start(t, protocol.Audio, opener)

	h.push(protocol.EventExistingUser, protocol.Peer{Handle: "a"})
	h.push(protocol.EventIncomingCall, protocol.IncomingCall{
		From:  "a",
		Offer: protocol.SessionDescription{Type: "offer", SDP: "o"},
	})
	h.waitState(RoleAssigned)
	h.expectQuiet(30 * time.Millisecond)

	close(opener.gate)
	msg := h.expect(protocol.EventCallAccepted)
	require.Equal(t, "audio:callAccepted", msg.Type)
	h.waitState(Connected)
	require.Equal(t, []string{"audio"}, h.factory.Last().Tracks())
}

func TestOffersOnlyFromCurrentPeer(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.push(protocol.EventIncomingCall, protocol.IncomingCall{
		From:  "ghost",
		Offer: protocol.SessionDescription{Type: "offer", SDP: "o"},
	})
	h.expectQuiet(30 * time.Millisecond)
	require.Equal(t, Waiting, h.c.Snapshot().State)
}

func TestPeerLeftReturnsToWaiting(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.push(protocol.EventRemoteMuted, protocol.MuteToggle{IsMuted: true})
	require.Eventually(t, func() bool { return h.c.Snapshot().RemoteMuted }, wait, time.Millisecond)

	h.push(protocol.EventUserLeft, protocol.Peer{Handle: "b"})
	snap := h.waitState(Waiting)
	require.False(t, snap.HasPeer())
	require.Equal(t, NoRole, snap.Role)
	require.False(t, snap.RemoteMuted)
	require.Equal(t, "peer left", snap.LastReason)
	require.True(t, snap.MediaReady)

	require.Equal(t, 2, h.factory.Count())
	require.Equal(t, 1, h.factory.At(0).Closed())

	// A new peer gets a fresh handshake on the new handle.
	h.connectAsCaller("c")
	require.Equal(t, 2, h.c.Snapshot().Calls)
	require.Equal(t, "offer-1", h.factory.Last().LocalDescription().SDP)
}

func TestNewPeerReplacesCall(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.push(protocol.EventNewUserJoined, protocol.Peer{Handle: "c"})
	call := h.expect(protocol.EventCallUser).Payload.(protocol.CallUser)
	require.Equal(t, "c", call.To)
	require.Equal(t, 1, h.factory.At(0).Closed())
	require.Equal(t, "c", h.c.Snapshot().Peer.Handle)
}

func TestUserLeftFromOtherHandleIgnored(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.push(protocol.EventUserLeft, protocol.Peer{Handle: "z"})
	h.expectQuiet(30 * time.Millisecond)
	require.Equal(t, Connected, h.c.Snapshot().State)
	require.Equal(t, 1, h.factory.Count())
}

func TestRemoteCallEndedExits(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.push(protocol.EventCallEnded, nil)
	h.expect(protocol.EventLeaveRoom)
	require.NoError(t, h.result())

	snap := h.c.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.Equal(t, "call ended by peer", snap.LastReason)
	require.False(t, snap.MediaReady)
	require.True(t, h.opener.stream.Load().Stopped())
	require.Equal(t, 1, h.factory.At(0).Closed())
}

func TestRoomFull(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.push(protocol.EventRoomFull, protocol.RoomFull{RoomID: "room-1", Message: "Room is full. Maximum 2 participants allowed."})
	err := h.result()
	require.ErrorIs(t, err, callerr.ErrRoomFull)
	require.ErrorContains(t, err, "Maximum 2 participants")
	require.Equal(t, Idle, h.c.Snapshot().State)
	require.False(t, h.c.Snapshot().MediaReady)
}

func TestEndSendsEndCall(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.c.End()
	end := h.expect(protocol.EventEndCall).Payload.(protocol.EndCall)
	require.Equal(t, "b", end.To)
	require.NoError(t, h.result())
	require.Equal(t, "call ended", h.c.Snapshot().LastReason)

	// The controller is gone; toggles and End are harmless.
	h.c.End()
	require.ErrorIs(t, h.c.ToggleMute(), callerr.ErrSessionClosed)
}

func TestEndWithoutPeerLeaves(t *testing.T) {
	h := start(t, protocol.Audio, nil)

	h.c.End()
	h.expect(protocol.EventLeaveRoom)
	require.NoError(t, h.result())
}

func TestLeaveSendsLeaveRoom(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	h.c.Leave()
	h.expect(protocol.EventLeaveRoom)
	require.NoError(t, h.result())
	require.Equal(t, 1, h.factory.At(0).Closed())
}

func TestCancelLeavesRoom(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.cancel()
	h.expect(protocol.EventLeaveRoom)
	require.NoError(t, h.result())
}

func TestSignalingLoss(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	close(h.in)
	require.ErrorIs(t, h.result(), callerr.ErrSignalingClosed)
	require.Equal(t, "signaling connection lost", h.c.Snapshot().LastReason)
}

func TestToggles(t *testing.T) {
	h := start(t, protocol.Video, nil)

	require.ErrorIs(t, h.c.ToggleMute(), callerr.ErrToggleNotAllowed)
	require.ErrorIs(t, h.c.ToggleCamera(), callerr.ErrToggleNotAllowed)
	h.expectQuiet(20 * time.Millisecond)

	h.connectAsCaller("b")
	stream := h.opener.stream.Load()
	require.NotNil(t, stream)

	require.NoError(t, h.c.ToggleMute())
	mute := h.expect(protocol.EventMuteToggle).Payload.(protocol.MuteToggle)
	require.Equal(t, protocol.MuteToggle{To: "b", IsMuted: true}, mute)
	require.False(t, stream.Audio.Enabled())

	require.NoError(t, h.c.ToggleCamera())
	video := h.expect(protocol.EventVideoToggle).Payload.(protocol.VideoToggle)
	require.Equal(t, protocol.VideoToggle{To: "b", IsVideoOff: true}, video)
	require.False(t, stream.Video.Enabled())

	require.NoError(t, h.c.ToggleMute())
	mute = h.expect(protocol.EventMuteToggle).Payload.(protocol.MuteToggle)
	require.False(t, mute.IsMuted)
	require.True(t, stream.Audio.Enabled())

	snap := h.c.Snapshot()
	require.Equal(t, Connected, snap.State)
	require.False(t, snap.Muted)
	require.True(t, snap.CameraOff)

	h.push(protocol.EventRemoteVideoOff, protocol.VideoToggle{IsVideoOff: true})
	require.Eventually(t, func() bool { return h.c.Snapshot().RemoteVideoOff }, wait, time.Millisecond)
	require.Equal(t, Connected, h.c.Snapshot().State)
}

func TestCameraToggleRejectedForAudio(t *testing.T) {
	h := start(t, protocol.Audio, nil)

	h.push(protocol.EventExistingUser, protocol.Peer{Handle: "a"})
	h.push(protocol.EventIncomingCall, protocol.IncomingCall{
		From:  "a",
		Offer: protocol.SessionDescription{Type: "offer", SDP: "o"},
	})
	h.expect(protocol.EventCallAccepted)
	h.waitState(Connected)

	require.ErrorIs(t, h.c.ToggleCamera(), callerr.ErrToggleNotAllowed)
	require.NoError(t, h.c.ToggleMute())
	require.Equal(t, "audio:muteToggle", h.expect(protocol.EventMuteToggle).Type)
}

func TestLocalCandidatesRelayedToPeer(t *testing.T) {
	h := start(t, protocol.Video, nil)

	h.push(protocol.EventNewUserJoined, protocol.Peer{Handle: "b"})
	h.expect(protocol.EventCallUser)

	h.factory.Last().EmitCandidate(5000)
	cand := h.expect(protocol.EventICECandidate).Payload.(protocol.Candidate)
	require.Equal(t, "b", cand.To)
	require.Contains(t, cand.Candidate.Candidate, "192.0.2.1")
}

func TestMediaFailureIsRecoverable(t *testing.T) {
	opener := &gatedOpener{}
	opener.fail.Store(true)
	h := start(t, protocol.Video, opener)

	require.Eventually(t, func() bool { return h.c.Snapshot().MediaError != "" }, wait, time.Millisecond)
	require.Contains(t, h.c.Snapshot().MediaError, "camera busy")

	h.push(protocol.EventNewUserJoined, protocol.Peer{Handle: "b"})
	h.waitState(RoleAssigned)
	require.Eventually(t, func() bool { return opener.opens.Load() >= 2 }, wait, time.Millisecond)
	require.Eventually(t, func() bool { return h.c.Snapshot().MediaError != "" }, wait, time.Millisecond)

	opener.fail.Store(false)
	h.c.RetryMedia()
	h.expect(protocol.EventCallUser)
	require.True(t, h.c.Snapshot().MediaReady)
	require.Empty(t, h.c.Snapshot().MediaError)
}

func TestUpdatesDeliverLatest(t *testing.T) {
	h := start(t, protocol.Video, nil)
	h.connectAsCaller("b")

	require.Eventually(t, func() bool {
		select {
		case snap := <-h.c.Updates():
			return snap.State == Connected
		default:
			return false
		}
	}, wait, time.Millisecond)

	h.c.End()
	require.NoError(t, h.result())
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-h.c.Updates():
			return !ok
		default:
			return false
		}
	}, wait, time.Millisecond)
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "role assigned", RoleAssigned.String())
	require.Equal(t, "callee", Callee.String())
	require.Equal(t, "none", NoRole.String())

	now := time.Now()
	require.Equal(t, 3*time.Second, Snapshot{ConnectedAt: now.Add(-3500 * time.Millisecond)}.Duration(now))
	require.Zero(t, Snapshot{}.Duration(now))
}
