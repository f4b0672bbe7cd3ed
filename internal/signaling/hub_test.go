package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

type testPeer struct {
	t      *testing.T
	conn   *websocket.Conn
	codec  protocol.Codec
	handle string
}

func newTestHub(t *testing.T, opts HubOptions) (*Hub, string) {
	t.Helper()

	hub := NewHub(NewRegistry(), metrics.New(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, codec, Participant{})
	}))

	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialPeer(t *testing.T, url string, codec protocol.Codec) *testPeer {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url+"?codec="+codec.Name(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &testPeer{t: t, conn: conn, codec: codec}
	var connected protocol.Connected
	p.expect(protocol.EventConnected, &connected)
	require.NotEmpty(t, connected.Handle)
	p.handle = connected.Handle
	return p
}

func (p *testPeer) send(mod protocol.Modality, event string, payload any) {
	p.t.Helper()
	data, err := p.codec.Encode(protocol.NewMessage(mod, event, payload))
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(p.codec.FrameType(), data))
}

func (p *testPeer) expect(msgType string, v any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)

	msg, err := p.codec.Decode(data)
	require.NoError(p.t, err)
	require.Equal(p.t, msgType, msg.Type)
	if v != nil {
		require.NoError(p.t, msg.Decode(v))
	}
}

func (p *testPeer) join(mod protocol.Modality, identity, roomID string) {
	p.t.Helper()
	p.send(mod, protocol.EventJoinRoom, protocol.JoinRoom{Identity: identity, RoomID: roomID})
}

// joinPair puts a and b into roomID and consumes the join notifications.
func joinPair(t *testing.T, mod protocol.Modality, a, b *testPeer, roomID string) {
	t.Helper()
	a.join(mod, "a@example.com", roomID)
	a.expect(mod.Event(protocol.EventUserJoined), nil)
	b.join(mod, "b@example.com", roomID)
	b.expect(mod.Event(protocol.EventExistingUser), nil)
	b.expect(mod.Event(protocol.EventUserJoined), nil)
	a.expect(mod.Event(protocol.EventNewUserJoined), nil)
}

func TestHubJoinAssignsRolesAndRelaysHandshake(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)

	a.join(protocol.Video, "a@example.com", "r1")
	var ack protocol.UserJoined
	a.expect(protocol.EventUserJoined, &ack)
	require.Equal(t, "r1", ack.RoomID)

	b.join(protocol.Video, "b@example.com", "r1")
	var existing protocol.Peer
	b.expect(protocol.EventExistingUser, &existing)
	require.Equal(t, a.handle, existing.Handle)
	require.Equal(t, "a@example.com", existing.Identity)
	b.expect(protocol.EventUserJoined, nil)

	var joined protocol.Peer
	a.expect(protocol.EventNewUserJoined, &joined)
	require.Equal(t, b.handle, joined.Handle)
	require.Equal(t, "b@example.com", joined.Identity)

	offer := protocol.SessionDescription{Type: "offer", SDP: "v=0 offer"}
	a.send(protocol.Video, protocol.EventCallUser, protocol.CallUser{To: b.handle, Offer: offer})
	var incoming protocol.IncomingCall
	b.expect(protocol.EventIncomingCall, &incoming)
	require.Equal(t, a.handle, incoming.From)
	require.Equal(t, offer, incoming.Offer)

	answer := protocol.SessionDescription{Type: "answer", SDP: "v=0 answer"}
	b.send(protocol.Video, protocol.EventCallAccepted, protocol.CallAccepted{To: a.handle, Answer: answer})
	var accepted protocol.CallAccepted
	a.expect(protocol.EventCallAccepted, &accepted)
	require.Equal(t, b.handle, accepted.From)
	require.Equal(t, answer, accepted.Answer)
}

func TestHubRejectsThirdParticipant(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	c := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	c.join(protocol.Video, "c@example.com", "r1")
	var full protocol.RoomFull
	c.expect(protocol.EventRoomFull, &full)
	require.Equal(t, "r1", full.RoomID)
	require.NotEmpty(t, full.Message)

	_, ok := hub.Registry().MembershipOf(c.handle, protocol.Video)
	require.False(t, ok)
}

func TestHubEndCallFreesTheRoom(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	c := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	a.send(protocol.Video, protocol.EventEndCall, protocol.EndCall{To: b.handle})
	b.expect(protocol.EventCallEnded, nil)

	c.join(protocol.Video, "c@example.com", "r1")
	var existing protocol.Peer
	c.expect(protocol.EventExistingUser, &existing)
	require.Equal(t, b.handle, existing.Handle)
	c.expect(protocol.EventUserJoined, nil)

	// b hears about c, not about a leaving.
	var joined protocol.Peer
	b.expect(protocol.EventNewUserJoined, &joined)
	require.Equal(t, c.handle, joined.Handle)
}

func TestHubLateMessagesAfterEndCallAreDropped(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	a.send(protocol.Video, protocol.EventEndCall, protocol.EndCall{To: b.handle})
	b.expect(protocol.EventCallEnded, nil)

	// a is out of the room now; trailing candidates must not bounce back as errors.
	a.send(protocol.Video, protocol.EventICECandidate, protocol.Candidate{
		To:        b.handle,
		Candidate: protocol.ICECandidate{Candidate: "candidate:late"},
	})
	a.send(protocol.Video, protocol.EventMuteToggle, protocol.MuteToggle{To: b.handle, IsMuted: true})

	a.join(protocol.Video, "a@example.com", "r1")
	var existing protocol.Peer
	a.expect(protocol.EventExistingUser, &existing)
	require.Equal(t, b.handle, existing.Handle)
	a.expect(protocol.EventUserJoined, nil)
	b.expect(protocol.EventNewUserJoined, nil)
}

func TestHubToggleRelayIsPassThrough(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	a.send(protocol.Video, protocol.EventMuteToggle, protocol.MuteToggle{To: b.handle, IsMuted: true})
	a.send(protocol.Video, protocol.EventMuteToggle, protocol.MuteToggle{To: b.handle, IsMuted: false})
	a.send(protocol.Video, protocol.EventVideoToggle, protocol.VideoToggle{To: b.handle, IsVideoOff: true})

	var muted protocol.MuteToggle
	b.expect(protocol.EventRemoteMuted, &muted)
	require.True(t, muted.IsMuted)
	b.expect(protocol.EventRemoteMuted, &muted)
	require.False(t, muted.IsMuted)

	var video protocol.VideoToggle
	b.expect(protocol.EventRemoteVideoOff, &video)
	require.True(t, video.IsVideoOff)
}

func TestHubCandidatesKeepSendOrder(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.Msgpack)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Audio, a, b, "r1")

	sent := []string{"candidate:1", "candidate:2", "candidate:3"}
	for _, c := range sent {
		a.send(protocol.Audio, protocol.EventICECandidate, protocol.Candidate{
			To:        b.handle,
			Candidate: protocol.ICECandidate{Candidate: c},
		})
	}

	for _, want := range sent {
		var got protocol.Candidate
		b.expect("audio:iceCandidate", &got)
		require.Equal(t, a.handle, got.From)
		require.Equal(t, want, got.Candidate.Candidate)
	}
}

func TestHubLeaveAndDisconnectNotifyPeer(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	a.send(protocol.Video, protocol.EventLeaveRoom, nil)
	var left protocol.Peer
	b.expect(protocol.EventUserLeft, &left)
	require.Equal(t, a.handle, left.Handle)

	// A second leave is a no-op.
	a.send(protocol.Video, protocol.EventLeaveRoom, nil)

	a.join(protocol.Video, "a@example.com", "r1")
	a.expect(protocol.EventExistingUser, nil)
	a.expect(protocol.EventUserJoined, nil)
	b.expect(protocol.EventNewUserJoined, nil)

	require.NoError(t, a.conn.Close())
	b.expect(protocol.EventUserLeft, &left)
	require.Equal(t, a.handle, left.Handle)

	require.Eventually(t, func() bool {
		return hub.Registry().Occupancy("r1", protocol.Video) == 1 && hub.Connections() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubAudioIgnoresVideoToggle(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Audio, a, b, "r1")

	a.send(protocol.Audio, protocol.EventVideoToggle, protocol.VideoToggle{To: b.handle, IsVideoOff: true})
	a.send(protocol.Audio, protocol.EventMuteToggle, protocol.MuteToggle{To: b.handle, IsMuted: true})

	b.expect("audio:remoteMuted", nil)
}

func TestHubDropsMessagesOutsideTheRoom(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	c := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")
	c.join(protocol.Video, "c@example.com", "r2")
	c.expect(protocol.EventUserJoined, nil)

	a.send(protocol.Video, protocol.EventCallUser, protocol.CallUser{To: c.handle})
	a.send(protocol.Video, protocol.EventLeaveRoom, nil)
	b.expect(protocol.EventUserLeft, nil)

	b.join(protocol.Video, "b@example.com", "r2")
	c.expect(protocol.EventNewUserJoined, nil)
}

func TestHubJoinOtherRoomLeavesPrevious(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)
	b := dialPeer(t, url, protocol.JSON)
	joinPair(t, protocol.Video, a, b, "r1")

	a.join(protocol.Video, "a@example.com", "r2")
	a.expect(protocol.EventUserJoined, nil)

	var left protocol.Peer
	b.expect(protocol.EventUserLeft, &left)
	require.Equal(t, a.handle, left.Handle)
}

func TestHubRepliesToMalformedMessages(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	a := dialPeer(t, url, protocol.JSON)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":1}`)))
	var e protocol.ErrorPayload
	a.expect(protocol.EventError, &e)
	require.NotEmpty(t, e.Error)

	a.send(protocol.Video, protocol.EventJoinRoom, protocol.JoinRoom{Identity: "a@example.com"})
	a.expect(protocol.EventError, &e)
	require.Contains(t, e.Error, "roomId")
}

func TestHubRateLimitDropsBursts(t *testing.T) {
	_, url := newTestHub(t, HubOptions{MessageRate: 0.001, MessageBurst: 1})
	a := dialPeer(t, url, protocol.JSON)

	a.join(protocol.Video, "a@example.com", "r1")
	a.join(protocol.Video, "a@example.com", "r2")
	a.expect(protocol.EventUserJoined, nil)

	a.send(protocol.Video, protocol.EventLeaveRoom, nil)
	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := a.conn.ReadMessage()
	require.Error(t, err)
}
