package ui

import (
	"fmt"
	"strings"

	"github.com/BioHazard786/warpcall/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RosterView renders the participant table using lipgloss/table
func RosterView(peers []Peer) string {
	if len(peers) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for others to join...")
	}

	headers := []string{"Name", "Link", "Audio", "Video", "Frames"}

	var rows [][]string
	for _, p := range peers {
		name := utils.TruncateString(p.Name, 24)
		if p.Host {
			name = IconHost + " " + name
		}

		link := p.Status
		if p.Secure {
			link = IconLock + " " + link
		} else {
			link = IconUnlock + " " + link
		}

		audio := IconMic
		if p.Muted {
			audio = IconMuted
		}
		video := IconCamera
		if p.Sharing {
			video = IconScreen
		}

		rows = append(rows, []string{name, link, audio, video, fmt.Sprintf("%d", p.Frames)})
	}

	tbl := table.New().
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

	return tbl.Render()
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Room Code:  %s\n", IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID))
	fmt.Fprintf(&b, "%s Room Link:  %s\n\n", IconLink, MutedStyle.Render(r.RoomLink))
	b.WriteString(MutedStyle.Render("Share the code or link with everyone you want on the call"))

	return InfoBoxStyle.Render(b.String())
}

// Render outputs the box directly to stdout
func (r *RoomInfo) Render() {
	fmt.Println(r.View())
}
