package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"

	"github.com/techie-mohit/videoCalling/internal/protocol"
)

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// CallSummary is printed after the call screen closes.
type CallSummary struct {
	RoomID       string
	Modality     protocol.Modality
	Calls        int
	LastPeer     string
	LastDuration time.Duration
	Reason       string
}

func CallSummaryView(summary CallSummary) string {
	peer := summary.LastPeer
	if peer == "" {
		peer = "-"
	}
	reason := summary.Reason
	if reason == "" {
		reason = "-"
	}

	rows := [][]string{
		{"Room", summary.RoomID},
		{"Type", modalityLabel(summary.Modality)},
		{"Calls", fmt.Sprintf("%d", summary.Calls)},
		{"Last Peer", truncate(peer, 40)},
		{"Last Duration", FormatDuration(summary.LastDuration)},
		{"Ended", reason},
	}
	return styledTable([]string{"Metric", "Value"}, rows).Render()
}

func RenderCallSummary(summary CallSummary) {
	fmt.Println(TitleStyle.Render(IconHangup + " Call Summary"))
	fmt.Println(CallSummaryView(summary))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
	Modality protocol.Modality
}

func NewRoomInfo(roomID, roomLink string, mod protocol.Modality) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
		Modality: mod,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Joined %s room\n\n%s Room ID:    %s\n%s Room Link:  %s",
		modalityIcon(r.Modality), strings.ToLower(modalityLabel(r.Modality)),
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)
	return RoomBoxStyle.Render(content)
}

// StatsView renders the server occupancy report.
func StatsView(stats *protocol.ServerStats) string {
	t := pretty.NewWriter()
	t.SetStyle(pretty.StyleRounded)
	t.SetTitle("%s Server Stats", IconWeb)
	t.AppendHeader(pretty.Row{"Room", "Type", "Members"})

	rooms := append([]protocol.RoomStats(nil), stats.Rooms...)
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Modality != rooms[j].Modality {
			return rooms[i].Modality > rooms[j].Modality
		}
		return rooms[i].RoomID < rooms[j].RoomID
	})
	for _, room := range rooms {
		t.AppendRow(pretty.Row{room.RoomID, room.Modality, fmt.Sprintf("%d/2", room.Members)})
	}
	if len(rooms) == 0 {
		t.AppendRow(pretty.Row{"-", "-", "no occupied rooms"})
	}

	t.AppendFooter(pretty.Row{"Connections", stats.Connections, occupancy(stats.Occupied)})
	return t.Render()
}

func occupancy(occupied map[string]int) string {
	parts := make([]string, 0, len(protocol.Modalities))
	for _, mod := range protocol.Modalities {
		parts = append(parts, fmt.Sprintf("%s: %d", mod, occupied[string(mod)]))
	}
	return strings.Join(parts, "  ")
}

// FormatDuration renders d as mm:ss, or h:mm:ss past the hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	h, m, s := secs/3600, (secs/60)%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func modalityLabel(mod protocol.Modality) string {
	if mod == protocol.Audio {
		return "Audio"
	}
	return "Video"
}

func modalityIcon(mod protocol.Modality) string {
	if mod == protocol.Audio {
		return IconAudio
	}
	return IconVideo
}

func peerLabel(p protocol.Peer) string {
	switch {
	case p.Name != "" && p.Identity != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Identity)
	case p.Name != "":
		return p.Name
	case p.Identity != "":
		return p.Identity
	}
	return p.Handle
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
