package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/techie-mohit/videoCalling/internal/call"
	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/protocol"
)

// Controls is the part of the call controller the screen drives.
type Controls interface {
	Updates() <-chan call.Snapshot
	Snapshot() call.Snapshot
	ToggleMute() error
	ToggleCamera() error
	End()
	Leave()
	RetryMedia()
}

type (
	snapshotMsg call.Snapshot
	closedMsg   struct{}
	clockMsg    time.Time
	noticeMsg   string
)

// CallModel renders the live call screen.
type CallModel struct {
	controls Controls
	snap     call.Snapshot
	spinner  spinner.Model
	now      func() time.Time
	notice   string
	lastPeer string
	quitting bool
}

func NewCallModel(controls Controls) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		controls: controls,
		snap:     controls.Snapshot(),
		spinner:  s,
		now:      time.Now,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates(), clock())
}

func (m *CallModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.controls.Updates()
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func clock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case snapshotMsg:
		m.snap = call.Snapshot(msg)
		if m.snap.HasPeer() {
			m.lastPeer = peerLabel(m.snap.Peer)
		}
		return m, m.listenForUpdates()

	case closedMsg:
		m.snap = m.controls.Snapshot()
		m.quitting = true
		return m, tea.Quit

	case noticeMsg:
		m.notice = string(msg)
		return m, nil

	case clockMsg:
		if m.quitting {
			return m, nil
		}
		return m, clock()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *CallModel) handleKey(key string) tea.Cmd {
	if m.quitting {
		return nil
	}

	switch key {
	case "m":
		return toggle(m.controls.ToggleMute)
	case "v":
		if m.snap.Modality == protocol.Audio {
			return nil
		}
		return toggle(m.controls.ToggleCamera)
	case "r":
		if m.snap.MediaError == "" {
			return nil
		}
		m.notice = "retrying media..."
		return func() tea.Msg {
			m.controls.RetryMedia()
			return nil
		}
	case "e":
		m.quitting = true
		return func() tea.Msg {
			m.controls.End()
			return nil
		}
	case "q", "ctrl+c":
		m.quitting = true
		return func() tea.Msg {
			m.controls.Leave()
			return tea.Quit()
		}
	}
	return nil
}

func toggle(fn func() error) tea.Cmd {
	return func() tea.Msg {
		err := fn()
		switch {
		case err == nil:
			return noticeMsg("")
		case errors.Is(err, callerr.ErrToggleNotAllowed):
			return noticeMsg("not in a call yet")
		default:
			return noticeMsg(err.Error())
		}
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	s := m.snap
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s %s call  %s\n\n", modalityIcon(s.Modality), modalityLabel(s.Modality), MutedStyle.Render(s.RoomID))
	b.WriteString(m.statusLine())
	if s.Role != call.NoRole {
		fmt.Fprintf(&b, "  %s", MutedStyle.Render("as "+s.Role.String()))
	}
	b.WriteString("\n\n")

	if s.HasPeer() {
		fmt.Fprintf(&b, "%s %s", IconPeer, BoldStyle.Render(peerLabel(s.Peer)))
		if s.RemoteMuted {
			fmt.Fprintf(&b, "  %s", IconMicOff)
		}
		if s.Modality == protocol.Video && s.RemoteVideoOff {
			fmt.Fprintf(&b, "  %s", IconCamOff)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s %s", micIcon(s.Muted), onOff(!s.Muted, "mic on", "muted"))
	if s.Modality == protocol.Video {
		fmt.Fprintf(&b, "   %s %s", cameraIcon(s.CameraOff), onOff(!s.CameraOff, "camera on", "camera off"))
	}
	b.WriteString("\n")

	if s.MediaError != "" {
		fmt.Fprintf(&b, "\n%s\n", ErrorStyle.Render(IconError+" "+s.MediaError))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "\n%s\n", WarningStyle.Render(IconWarning+" "+s.Error))
	}
	if s.LastReason != "" && s.State == call.Waiting {
		fmt.Fprintf(&b, "\n%s\n", MutedStyle.Render(fmt.Sprintf("last call: %s (%s)", s.LastReason, FormatDuration(s.LastDuration))))
	}
	if m.notice != "" {
		fmt.Fprintf(&b, "\n%s\n", MutedStyle.Render(m.notice))
	}

	b.WriteString("\n")
	b.WriteString(m.help())
	b.WriteString("\n")
	return b.String()
}

func (m *CallModel) statusLine() string {
	s := m.snap
	switch s.State {
	case call.Connected:
		return fmt.Sprintf("%s %s %s", LiveStatusStyle.Render("LIVE"), IconTime, FormatDuration(s.Duration(m.now())))
	case call.Negotiating:
		return fmt.Sprintf("%s %s", m.spinner.View(), "connecting to peer...")
	case call.RoleAssigned:
		return fmt.Sprintf("%s %s", m.spinner.View(), "peer joined, preparing call...")
	case call.Waiting:
		if !s.MediaReady && s.MediaError == "" {
			return fmt.Sprintf("%s %s", m.spinner.View(), "getting media ready...")
		}
		return fmt.Sprintf("%s %s %s", m.spinner.View(), IconWaiting, "waiting for someone to join")
	}
	return StatusStyle.Render(strings.ToUpper(s.State.String()))
}

func (m *CallModel) help() string {
	keys := []string{KeyStyle.Render("m") + " mute"}
	if m.snap.Modality == protocol.Video {
		keys = append(keys, KeyStyle.Render("v")+" camera")
	}
	if m.snap.MediaError != "" {
		keys = append(keys, KeyStyle.Render("r")+" retry media")
	}
	keys = append(keys, KeyStyle.Render("e")+" end call", KeyStyle.Render("q")+" leave")
	return MutedStyle.Render(strings.Join(keys, " • "))
}

func micIcon(muted bool) string {
	if muted {
		return IconMicOff
	}
	return IconMic
}

func cameraIcon(off bool) string {
	if off {
		return IconCamOff
	}
	return IconCamera
}

func onOff(on bool, yes, no string) string {
	if on {
		return SuccessStyle.Render(yes)
	}
	return WarningStyle.Render(no)
}

// RunCall shows the call screen until the controller finishes or the user
// leaves, then summarizes the session.
func RunCall(controls Controls) (CallSummary, error) {
	m := NewCallModel(controls)
	// Inline mode keeps the room box above the screen visible.
	_, err := tea.NewProgram(m).Run()
	return m.Summary(), err
}

// Summary describes the session so far.
func (m *CallModel) Summary() CallSummary {
	s := m.controls.Snapshot()
	return CallSummary{
		RoomID:       s.RoomID,
		Modality:     s.Modality,
		Calls:        s.Calls,
		LastPeer:     m.lastPeer,
		LastDuration: s.LastDuration,
		Reason:       s.LastReason,
	}
}
