package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/frostbyte73/core"
)

// SimpleSpinner draws a one-line spinner until stopped. It is meant for the
// short blocking steps before the call screen starts.
type SimpleSpinner struct {
	out      io.Writer
	spinner  spinner.Spinner
	interval time.Duration
	message  string

	stop core.Fuse
	done core.Fuse
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		out:      os.Stderr,
		message:  message,
		spinner:  s,
		interval: interval,
	}
}

// NewSimpleSpinner creates a spinner for general loading operations (Dot style)
func NewSimpleSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Dot, 80*time.Millisecond)
}

// NewConnectionSpinner creates a spinner for network operations (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

func (s *SimpleSpinner) Start() {
	go func() {
		defer s.done.Break()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)

			select {
			case <-s.stop.Watch():
				fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once and
// before Start.
func (s *SimpleSpinner) Stop() {
	if s.stop.IsBroken() {
		return
	}
	s.stop.Break()
	select {
	case <-s.done.Watch():
	case <-time.After(s.interval * 2):
	}
}

// RunSpinner starts a loading spinner and returns a stop function
func RunSpinner(message string) func() {
	sp := NewSimpleSpinner(message)
	sp.Start()
	return sp.Stop
}

// RunConnectionSpinner starts a connection spinner and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
