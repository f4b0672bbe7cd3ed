package protocol

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestEventNamespacing(t *testing.T) {
	require.Equal(t, "joinRoom", Video.Event(EventJoinRoom))
	require.Equal(t, "audio:joinRoom", Audio.Event(EventJoinRoom))

	mod, base := ParseEvent("audio:iceCandidate")
	require.Equal(t, Audio, mod)
	require.Equal(t, EventICECandidate, base)

	mod, base = ParseEvent("callUser")
	require.Equal(t, Video, mod)
	require.Equal(t, EventCallUser, base)

	require.NotEqual(t, Video.RoomKey("r1"), Audio.RoomKey("r1"))
}

func TestParseModality(t *testing.T) {
	m, err := ParseModality("AUDIO")
	require.NoError(t, err)
	require.Equal(t, Audio, m)

	_, err = ParseModality("screen")
	require.Error(t, err)
}

func TestCodecsCarryCandidatesUntouched(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	sent := Candidate{
		To: "peer-b",
		Candidate: ICECandidate{
			Candidate:     "candidate:1 1 udp 2130706431 10.0.0.2 50000 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		},
	}

	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(NewMessage(Audio, EventICECandidate, sent))
			require.NoError(t, err)

			msg, err := codec.Decode(data)
			require.NoError(t, err)
			require.Equal(t, "audio:iceCandidate", msg.Type)

			var got Candidate
			require.NoError(t, msg.Decode(&got))
			require.Equal(t, sent, got)
			require.NotNil(t, got.Candidate.SDPMLineIndex)
			require.Equal(t, uint16(0), *got.Candidate.SDPMLineIndex)
		})
	}
}

func TestCodecEmptyPayload(t *testing.T) {
	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(&Message{Type: EventLeaveRoom})
			require.NoError(t, err)

			msg, err := codec.Decode(data)
			require.NoError(t, err)

			var p EndCall
			require.NoError(t, msg.Decode(&p))
			require.Empty(t, p.To)
		})
	}
}

func TestCodecRejectsUntypedFrames(t *testing.T) {
	_, err := JSON.Decode([]byte(`{"payload":{}}`))
	require.Error(t, err)

	_, err = JSON.Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, c.FrameType())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecByName("xml")
	require.Error(t, err)
}
