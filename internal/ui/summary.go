package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed once the call ends.
type CallSummary struct {
	Status       string
	RoomID       string
	Duration     string
	Participants int
	Messages     int
	Peers        []PeerSummary
}

// PeerSummary is one row of the per-peer section.
type PeerSummary struct {
	Name      string
	Encrypted bool
	Frames    int
}

// CallSummaryView renders the summary with go-pretty.
func CallSummaryView(title string, s CallSummary) string {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Status", s.Status},
		{"Room", s.RoomID},
		{"Duration", s.Duration},
		{"Peak participants", s.Participants},
		{"Chat messages", s.Messages},
	})

	if len(s.Peers) > 0 {
		t.AppendSeparator()
		for _, p := range s.Peers {
			enc := "no"
			if p.Encrypted {
				enc = "yes"
			}
			t.AppendRow(table.Row{p.Name, fmt.Sprintf("%d frames, encrypted: %s", p.Frames, enc)})
		}
	}

	return t.Render()
}

func RenderCallSummary(title string, s CallSummary) {
	fmt.Println(CallSummaryView(title, s))
}
