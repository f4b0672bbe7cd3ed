package media

import (
	"context"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/singleflight"

	"github.com/techie-mohit/videoCalling/internal/callerr"
)

const defaultStreamID = "warpcall"

// Constraints selects what a stream carries. Audio is always present.
type Constraints struct {
	Video bool
}

// Opener produces a new local stream. Open may block for a while.
type Opener interface {
	Open(ctx context.Context, c Constraints) (*Stream, error)
}

// FileOpener reads audio from an Ogg/Opus file and video from an IVF/VP8
// file. Without an audio file it sends Opus silence; without a video file the
// video track exists but carries no frames.
type FileOpener struct {
	AudioFile string
	VideoFile string
	StreamID  string
}

func (o *FileOpener) Open(_ context.Context, c Constraints) (*Stream, error) {
	videoFile := ""
	if c.Video {
		videoFile = o.VideoFile
	}
	audioSrc, videoSrc, err := ValidateSources(o.AudioFile, videoFile)
	if err != nil {
		return nil, err
	}

	streamID := o.StreamID
	if streamID == "" {
		streamID = defaultStreamID
	}

	s := &Stream{}
	s.Audio, err = newTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusSampleRate,
		Channels:  2,
	}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	if c.Video {
		s.Video, err = newTrack(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", streamID)
		if err != nil {
			return nil, err
		}
	}

	openAudio := func() (sampleSource, error) { return silenceSource{}, nil }
	if audioSrc != nil {
		openAudio = func() (sampleSource, error) { return openOgg(audioSrc.Path) }
	}
	s.wg.Add(1)
	go s.pump(s.Audio, openAudio, opusSilence)

	if videoSrc != nil {
		s.wg.Add(1)
		go s.pump(s.Video, func() (sampleSource, error) { return openIVF(videoSrc.Path) }, nil)
	}

	return s, nil
}

// Acquirer hands out one shared stream per session. Concurrent Acquire calls
// join the acquisition already in flight, a successful result is kept until
// Release, failures are not kept.
type Acquirer struct {
	opener      Opener
	constraints Constraints
	group       singleflight.Group

	mu     sync.Mutex
	stream *Stream
	// gen changes on every Release so a late acquisition can tell it is stale.
	gen uint64
}

func NewAcquirer(opener Opener, c Constraints) *Acquirer {
	return &Acquirer{opener: opener, constraints: c}
}

// Acquire returns the session's stream, opening it on first use. ctx only
// bounds the wait; the acquisition itself is never cancelled.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	if a.stream != nil {
		s := a.stream
		a.mu.Unlock()
		return s, nil
	}
	gen := a.gen
	a.mu.Unlock()

	ch := a.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return a.open(context.WithoutCancel(ctx), gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Stream), nil
	}
}

func (a *Acquirer) open(ctx context.Context, gen uint64) (*Stream, error) {
	s, err := a.opener.Open(ctx, a.constraints)
	if err != nil {
		return nil, callerr.Wrap("acquire media", callerr.ErrMediaUnavailable, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gen != gen {
		s.Stop()
		return nil, callerr.Wrap("acquire media", callerr.ErrMediaUnavailable, "released while acquiring")
	}
	a.stream = s
	return s, nil
}

// Release stops the current stream. An acquisition still in flight is
// stopped as soon as it lands.
func (a *Acquirer) Release() {
	a.mu.Lock()
	s := a.stream
	a.stream = nil
	a.gen++
	a.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}
