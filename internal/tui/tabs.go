// Package tui provides the live marketplace dashboard for agora watch.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab index constants.
const (
	TabIndexTasks = iota
	TabIndexAgents
	TabIndexDisputes
)

var defaultTabs = []string{"Tasks", "Agents", "Disputes"}

// TabBar is a navigation component for switching between views.
type TabBar struct {
	tabs   []string
	active int

	activeStyle   lipgloss.Style
	inactiveStyle lipgloss.Style
	barStyle      lipgloss.Style
}

// NewTabBar creates a new TabBar with the dashboard tabs.
func NewTabBar() TabBar {
	return TabBar{
		tabs:   defaultTabs,
		active: TabIndexTasks,

		activeStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),

		inactiveStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2),

		barStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),
	}
}

// Update handles keyboard input for tab navigation.
func (t TabBar) Update(msg tea.Msg) (TabBar, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "right", "l":
			t.active = (t.active + 1) % len(t.tabs)
		case "shift+tab", "left", "h":
			t.active = (t.active + len(t.tabs) - 1) % len(t.tabs)
		case "1":
			t.active = TabIndexTasks
		case "2":
			t.active = TabIndexAgents
		case "3":
			t.active = TabIndexDisputes
		}
	}
	return t, nil
}

// Active returns the index of the selected tab.
func (t TabBar) Active() int {
	return t.active
}

// View renders the tab bar.
func (t TabBar) View() string {
	rendered := make([]string, 0, len(t.tabs))
	for i, label := range t.tabs {
		if i == t.active {
			rendered = append(rendered, t.activeStyle.Render(label))
		} else {
			rendered = append(rendered, t.inactiveStyle.Render(label))
		}
	}
	return t.barStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
}
