package ui

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/pktlink/internal/discovery"
)

// ErrNoSelection is returned by PickPeer when the user quits without
// choosing.
var ErrNoSelection = errors.New("no receiver selected")

// peerItem wraps a Peer for use with bubbles/list
type peerItem struct {
	peer *discovery.Peer
}

func (p peerItem) FilterValue() string {
	return p.peer.Instance + " " + p.peer.IP + " " + p.peer.Hostname
}

func (p peerItem) Title() string { return p.peer.Instance }

func (p peerItem) Description() string {
	desc := p.peer.Target()
	if p.peer.Version != "" {
		desc += " • " + p.peer.Version
	}
	return desc
}

// pickerKeyMap defines key bindings for the picker
type pickerKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Select, k.Quit}}
}

// PickerModel lets the user choose one of several discovered receivers.
type PickerModel struct {
	list     list.Model
	help     help.Model
	keys     pickerKeyMap
	selected *discovery.Peer
	quit     bool
}

// NewPickerModel lists peers, first one highlighted.
func NewPickerModel(peers []*discovery.Peer) PickerModel {
	items := make([]list.Item, len(peers))
	for i, p := range peers {
		items[i] = peerItem{peer: p}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(PrimaryColor).
		BorderForeground(PrimaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		BorderForeground(PrimaryColor)

	l := list.New(items, delegate, GetTerminalWidth(), min(len(peers)*3+4, 20))
	l.Title = fmt.Sprintf("%d receivers found", len(peers))
	l.Styles.Title = lipgloss.NewStyle().Foreground(TextColor).Background(PrimaryColor).Padding(0, 1)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return PickerModel{
		list: l,
		help: help.New(),
		keys: pickerKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Select: key.NewBinding(
				key.WithKeys("enter", " "),
				key.WithHelp("enter", "use receiver"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "cancel"),
			),
		},
	}
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quit = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Select):
			if item, ok := m.list.SelectedItem().(peerItem); ok {
				m.selected = item.peer
				return m, tea.Quit
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		m.help.Width = msg.Width
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m PickerModel) View() string {
	if m.selected != nil || m.quit {
		return ""
	}
	return m.list.View() + "\n" + m.help.View(m.keys) + "\n"
}

// Selected returns the chosen peer, or nil.
func (m PickerModel) Selected() *discovery.Peer {
	return m.selected
}

// PickPeer asks the user to choose among peers. With a single peer, or when
// out is not a terminal, the first peer is returned without asking.
func PickPeer(peers []*discovery.Peer, in io.Reader, out io.Writer) (*discovery.Peer, error) {
	if len(peers) == 0 {
		return nil, ErrNoSelection
	}
	if len(peers) == 1 || !IsTerminal(out) {
		return peers[0], nil
	}

	final, err := tea.NewProgram(NewPickerModel(peers), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, fmt.Errorf("receiver picker: %w", err)
	}
	if m, ok := final.(PickerModel); ok && m.Selected() != nil {
		return m.Selected(), nil
	}
	return nil, ErrNoSelection
}
