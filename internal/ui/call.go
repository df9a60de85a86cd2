package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/utils"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const chatLines = 12

// Actions are the call controls the prompt can trigger. Every method may
// block until the call has applied it.
type Actions interface {
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	ToggleScreenShare() (bool, error)
	SendChat(text string) error
	Kick(userID string) error
	SetChatOpen(open bool)
	Leave()
}

// CallUI runs the interactive in-call view.
type CallUI struct {
	program *tea.Program
	model   *callModel
	updates chan Snapshot
	done    chan struct{}
	wg      sync.WaitGroup
}

type pane int

const (
	paneChat pane = iota
	panePeople
)

type snapshotMsg Snapshot

type actionMsg struct {
	text string
	err  error
}

type callModel struct {
	actions Actions
	updates chan Snapshot

	snap    Snapshot
	input   textinput.Model
	spinner spinner.Model
	pane    pane

	status    string
	statusErr bool
	start     time.Time
	quitting  bool
}

// NewCallUI creates the call view. Feed it state with Update.
func NewCallUI(actions Actions, initial Snapshot) *CallUI {
	updates := make(chan Snapshot, 1)

	in := textinput.New()
	in.Placeholder = "Type a message or /help"
	in.Prompt = IconChat + " "
	in.CharLimit = 1000
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &CallUI{
		model: &callModel{
			actions: actions,
			updates: updates,
			snap:    initial,
			input:   in,
			spinner: s,
			start:   time.Now(),
		},
		updates: updates,
		done:    make(chan struct{}),
	}
}

// Start starts the UI in a goroutine
func (ui *CallUI) Start() {
	ui.program = tea.NewProgram(ui.model)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		defer close(ui.done)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Update replaces the rendered state. Only the latest snapshot is kept.
func (ui *CallUI) Update(s Snapshot) {
	select {
	case <-ui.updates:
	default:
	}
	select {
	case ui.updates <- s:
	default:
	}
}

// Done is closed when the UI exits.
func (ui *CallUI) Done() <-chan struct{} {
	return ui.done
}

// Stop stops the UI
func (ui *CallUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.listenForUpdates(),
		m.setChatOpen(true),
	)
}

func (m *callModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.updates)
	}
}

func (m *callModel) setChatOpen(open bool) tea.Cmd {
	return func() tea.Msg {
		m.actions.SetChatOpen(open)
		return nil
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.leave()
		case "tab":
			if m.pane == paneChat {
				m.pane = panePeople
			} else {
				m.pane = paneChat
			}
			return m, m.setChatOpen(m.pane == paneChat)
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		}

	case tea.WindowSizeMsg:
		m.input.Width = max(20, msg.Width-8)

	case snapshotMsg:
		m.snap = Snapshot(msg)
		cmds = append(cmds, m.listenForUpdates())

	case actionMsg:
		m.statusErr = msg.err != nil
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.text
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit parses a prompt line and runs the matching action off the UI
// goroutine.
func (m *callModel) submit(line string) tea.Cmd {
	c, err := ParseInput(line)
	if err != nil {
		return result("", err)
	}

	switch c.Kind {
	case CmdChat:
		return func() tea.Msg {
			return actionMsg{err: m.actions.SendChat(c.Arg)}
		}

	case CmdMute:
		return func() tea.Msg {
			muted, err := m.actions.ToggleMute()
			return actionMsg{text: pick(muted, IconMuted+" Microphone muted", IconMic+" Microphone on"), err: err}
		}

	case CmdVideo:
		return func() tea.Msg {
			on, err := m.actions.ToggleVideo()
			return actionMsg{text: pick(on, IconCamera+" Camera on", IconCamera+" Camera off"), err: err}
		}

	case CmdShare:
		return func() tea.Msg {
			sharing, err := m.actions.ToggleScreenShare()
			return actionMsg{text: pick(sharing, IconScreen+" Sharing your screen", IconScreen+" Screen share stopped"), err: err}
		}

	case CmdKick:
		p, ok := m.snap.FindPeer(c.Arg)
		if !ok {
			return result("", fmt.Errorf("no participant named %q", c.Arg))
		}
		return func() tea.Msg {
			if err := m.actions.Kick(p.ID); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{text: "Removed " + p.Name}
		}

	case CmdQuit:
		return m.leave()

	case CmdHelp:
		return result(HelpText, nil)
	}
	return nil
}

func (m *callModel) leave() tea.Cmd {
	m.quitting = true
	return tea.Sequence(func() tea.Msg {
		m.actions.Leave()
		return nil
	}, tea.Quit)
}

func result(text string, err error) tea.Cmd {
	return func() tea.Msg { return actionMsg{text: text, err: err} }
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func (m *callModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	s := m.snap

	// Header
	host := ""
	if s.Host {
		host = " " + IconHost
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s warpcall  %s  %s%s", IconCall, s.RoomID, s.UserName, host)))
	b.WriteString("\n")

	// Local controls
	mic := IconMic + " on"
	if s.Muted {
		mic = IconMuted + " muted"
	}
	cam := IconCamera + " on"
	if !s.VideoOn {
		cam = IconCamera + " off"
	}
	if s.Sharing {
		cam = IconScreen + " sharing"
	}
	fmt.Fprintf(&b, "%s   %s   %s %d in call   %s %s\n",
		mic, cam, IconPeer, s.Count,
		IconTime, utils.FormatTimeDuration(time.Since(m.start)),
	)

	if s.Count <= 1 {
		fmt.Fprintf(&b, "%s Waiting for others  %s\n", m.spinner.View(), MutedStyle.Render(s.RoomLink))
	}
	if s.Sharer != "" {
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%s %s is sharing their screen", IconScreen, s.Sharer)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Tabs
	chatTab := "Chat"
	if s.Unread > 0 {
		chatTab += " " + UnreadStyle.Render(fmt.Sprintf("%d", s.Unread))
	}
	peopleTab := fmt.Sprintf("People (%d)", len(s.Peers))
	if m.pane == paneChat {
		b.WriteString(ActiveTabStyle.Render(chatTab) + TabStyle.Render(peopleTab))
	} else {
		b.WriteString(TabStyle.Render(chatTab) + ActiveTabStyle.Render(peopleTab))
	}
	b.WriteString("\n\n")

	if m.pane == paneChat {
		b.WriteString(chatView(s.Chat))
	} else {
		b.WriteString(RosterView(s.Peers))
	}
	b.WriteString("\n\n")

	if s.Notice != "" {
		b.WriteString(WarningStyle.Render(IconWarning+" "+s.Notice) + "\n")
	}
	if m.status != "" {
		if m.statusErr {
			b.WriteString(ErrorStyle.Render(IconError+" "+m.status) + "\n")
		} else {
			b.WriteString(MutedStyle.Render(m.status) + "\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n" + FooterStyle.Render(HelpText))

	return b.String()
}

func chatView(lines []ChatLine) string {
	if len(lines) == 0 {
		return MutedStyle.Render("No messages yet")
	}
	if len(lines) > chatLines {
		lines = lines[len(lines)-chatLines:]
	}

	var b strings.Builder
	for i, l := range lines {
		style := ChatPeerStyle
		if l.Mine {
			style = ChatSelfStyle
		}
		fmt.Fprintf(&b, "%s %s %s",
			ChatTimeStyle.Render(l.Time.Format("15:04")),
			style.Render(l.From+":"),
			l.Text,
		)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
