package media

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	opusFrame       = 20 * time.Millisecond
	opusSampleRate  = 48000
	defaultVideoFPS = 30
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type sampleSource interface {
	// next returns io.EOF once the source is exhausted.
	next() (media.Sample, error)
	close() error
}

type sourceFactory func() (sampleSource, error)

// silenceSource produces Opus silence forever.
type silenceSource struct{}

func (silenceSource) next() (media.Sample, error) {
	return media.Sample{Data: opusSilence, Duration: opusFrame}, nil
}

func (silenceSource) close() error { return nil }

type oggSource struct {
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

func openOgg(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &oggSource{file: f, reader: r}, nil
}

func (s *oggSource) next() (media.Sample, error) {
	page, header, err := s.reader.ParseNextPage()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, err
	}

	samples := header.GranulePosition - s.lastGranule
	s.lastGranule = header.GranulePosition
	d := time.Duration(samples) * time.Second / opusSampleRate
	if d <= 0 {
		d = opusFrame
	}
	return media.Sample{Data: page, Duration: d}, nil
}

func (s *oggSource) close() error { return s.file.Close() }

type ivfSource struct {
	file   *os.File
	reader *ivfreader.IVFReader
	frame  time.Duration
}

func openIVF(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	frame := time.Second / defaultVideoFPS
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frame = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
	}
	return &ivfSource{file: f, reader: r, frame: frame}, nil
}

func (s *ivfSource) next() (media.Sample, error) {
	frame, _, err := s.reader.ParseNextFrame()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.frame}, nil
}

func (s *ivfSource) close() error { return s.file.Close() }

// pump paces samples from open into t until the stream stops, looping the
// source at EOF. silence replaces the payload while t is disabled; a nil
// silence skips the sample instead.
func (s *Stream) pump(t *Track, open sourceFactory, silence []byte) {
	defer s.wg.Done()

	src, err := open()
	if err != nil {
		log.Error().Err(err).Str("track", t.ID()).Msg("failed to open media source")
		return
	}
	defer func() {
		if src != nil {
			_ = src.close()
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stopped.Watch():
			return
		case <-timer.C:
		}

		sample, err := src.next()
		if errors.Is(err, io.EOF) {
			_ = src.close()
			next, err := open()
			if err != nil {
				src = nil
				log.Error().Err(err).Str("track", t.ID()).Msg("failed to reopen media source")
				return
			}
			src = next
			timer.Reset(0)
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("track", t.ID()).Msg("media source failed")
			return
		}

		timer.Reset(sample.Duration)
		if !t.Enabled() {
			if silence == nil {
				continue
			}
			sample.Data = silence
		}
		// Errors only mean no peer is bound yet.
		_ = t.WriteSample(sample)
	}
}
