package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary    = lipgloss.Color("#22d3ee") // Cyan accent
	Secondary  = lipgloss.Color("#7C3AED") // Violet
	Success    = lipgloss.Color("#10B981") // Emerald
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	Foreground = lipgloss.Color("#F9FAFB") // Light gray
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	// StatusStyle highlights the call state badge.
	StatusStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Secondary).
			Padding(0, 1).
			Bold(true)

	LiveStatusStyle = StatusStyle.Background(Success)

	KeyStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)
)

var RoomBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(Success).
	Padding(1, 2)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle = tableCellStyle.Foreground(lipgloss.Color("255"))

	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

// Icons
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconPeer    = "👤"
	IconVideo   = "📹"
	IconAudio   = "🎧"
	IconMic     = "🎙️"
	IconMicOff  = "🔇"
	IconCamera  = "📷"
	IconCamOff  = "🚫"
	IconTime    = "⏱️"
	IconWaiting = "⏳"
	IconCopy    = "📋"
	IconWeb     = "🌐"
	IconHangup  = "📴"
)

// Messages go to stderr so they never mix with the call screen.

func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}
