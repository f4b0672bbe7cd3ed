// Package media provides the local audio and video a call sends. Samples come
// from Ogg/Opus and IVF/VP8 files or, for audio, a synthetic silent source.
package media

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"
)

// Track is a local track whose output can be switched off without
// renegotiation. A disabled audio track sends silence, a disabled video track
// sends nothing.
type Track struct {
	*webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func newTrack(capability webrtc.RTPCodecCapability, id, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{TrackLocalStaticSample: local}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

// Stream is one acquisition of local media.
type Stream struct {
	Audio *Track
	// Video is nil for audio-only streams.
	Video *Track

	stopped core.Fuse
	wg      sync.WaitGroup
}

// Tracks lists the tracks to attach to a peer connection.
func (s *Stream) Tracks() []*Track {
	var out []*Track
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	if s.Video != nil {
		out = append(out, s.Video)
	}
	return out
}

// Stop ends every pump. It is safe to call more than once.
func (s *Stream) Stop() {
	s.stopped.Break()
	s.wg.Wait()
}

func (s *Stream) Stopped() bool {
	return s.stopped.IsBroken()
}
