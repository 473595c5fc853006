package tui

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kessler-labs/agora/pkg/models"
)

// reloadInterval is the fallback poll period when no filesystem events
// arrive.
const reloadInterval = 3 * time.Second

// Snapshot is one consistent view of the marketplace for rendering.
type Snapshot struct {
	Agents   []*models.Agent
	Tasks    []models.Task
	Disputes []models.Dispute

	TotalValue       uint64
	Treasury         uint64
	StakePool        uint64
	TotalDistributed uint64
}

// Loader produces a fresh Snapshot from the store. It is called off the
// render loop.
type Loader func() (Snapshot, error)

// DBChangedMsg is sent by the watcher when the backing database changes.
type DBChangedMsg struct{}

type snapshotMsg struct {
	snap Snapshot
}

type loadErrMsg struct {
	err error
}

type reloadTickMsg struct{}

// App is the bubbletea model for the marketplace dashboard.
type App struct {
	tabs    TabBar
	loader  Loader
	snap    Snapshot
	loadErr error
	spin    spinner.Model

	width    int
	height   int
	lastLoad time.Time
	quitting bool
}

// New creates a dashboard reading through the given loader.
func New(loader Loader) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return &App{
		tabs:   NewTabBar(),
		loader: loader,
		spin:   sp,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.load(), scheduleReload())
}

func (a *App) load() tea.Cmd {
	loader := a.loader
	return func() tea.Msg {
		snap, err := loader()
		if err != nil {
			return loadErrMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func scheduleReload() tea.Cmd {
	return tea.Tick(reloadInterval, func(time.Time) tea.Msg {
		return reloadTickMsg{}
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "r":
			return a, a.load()
		}
		var cmd tea.Cmd
		a.tabs, cmd = a.tabs.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case DBChangedMsg:
		return a, a.load()

	case reloadTickMsg:
		return a, tea.Batch(a.load(), scheduleReload())

	case snapshotMsg:
		a.snap = msg.snap
		a.loadErr = nil
		a.lastLoad = time.Now()

	case loadErrMsg:
		a.loadErr = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
)

var taskStatusStyles = map[models.TaskStatus]lipgloss.Style{
	models.TaskStatusOpen:       lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	models.TaskStatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	models.TaskStatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	models.TaskStatusDisputed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	models.TaskStatusCancelled:  dimStyle,
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var content string
	switch a.tabs.Active() {
	case TabIndexTasks:
		content = a.viewTasks()
	case TabIndexAgents:
		content = a.viewAgents()
	case TabIndexDisputes:
		content = a.viewDisputes()
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", a.viewHeader(), a.tabs.View(), content, a.viewFooter())
}

func (a *App) viewHeader() string {
	title := titleStyle.Render("agora")
	totals := dimStyle.Render(fmt.Sprintf(
		"value %d  distributed %d  treasury %d  staked %d",
		a.snap.TotalValue, a.snap.TotalDistributed, a.snap.Treasury, a.snap.StakePool))
	return fmt.Sprintf("%s %s  %s", a.spin.View(), title, totals)
}

func (a *App) viewTasks() string {
	tasks := make([]models.Task, len(a.snap.Tasks))
	copy(tasks, a.snap.Tasks)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt > tasks[j].CreatedAt })

	if len(tasks) == 0 {
		return dimStyle.Render("  no tasks")
	}
	view := headerStyle.Render(fmt.Sprintf("  %-24s %-13s %-10s %-11s %s",
		"TASK", "STATUS", "REWARD", "WORKERS", "DESCRIPTION")) + "\n"
	for _, task := range tasks {
		style, ok := taskStatusStyles[task.Status]
		if !ok {
			style = lipgloss.NewStyle()
		}
		view += fmt.Sprintf("  %-24s %s %-10d %-11s %s\n",
			truncate(task.ID, 24),
			style.Render(fmt.Sprintf("%-13s", task.Status)),
			task.RewardAmount,
			fmt.Sprintf("%d/%d (%d✓)", task.CurrentWorkers, task.MaxWorkers, task.Completions),
			truncate(task.Description, 40))
	}
	return view
}

func (a *App) viewAgents() string {
	agents := make([]*models.Agent, len(a.snap.Agents))
	copy(agents, a.snap.Agents)
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

	if len(agents) == 0 {
		return dimStyle.Render("  no agents")
	}
	view := headerStyle.Render(fmt.Sprintf("  %-20s %-10s %-6s %-10s %-8s %s",
		"AGENT", "STATUS", "REP", "STAKE", "ACTIVE", "COMPLETED")) + "\n"
	for _, agent := range agents {
		view += fmt.Sprintf("  %-20s %-10s %-6d %-10d %-8d %d\n",
			truncate(agent.ID, 20), agent.Status, agent.Reputation,
			agent.Stake, agent.ActiveTasks, agent.TasksCompleted)
	}
	return view
}

func (a *App) viewDisputes() string {
	disputes := make([]models.Dispute, len(a.snap.Disputes))
	copy(disputes, a.snap.Disputes)
	sort.Slice(disputes, func(i, j int) bool { return disputes[i].CreatedAt > disputes[j].CreatedAt })

	if len(disputes) == 0 {
		return dimStyle.Render("  no disputes")
	}
	view := headerStyle.Render(fmt.Sprintf("  %-24s %-10s %-24s %-18s %s",
		"DISPUTE", "STATUS", "TASK", "PARTIES", "TALLY")) + "\n"
	for _, d := range disputes {
		view += fmt.Sprintf("  %-24s %-10s %-24s %-18s %d/%d (%d voters)\n",
			truncate(d.ID, 24), d.Status, truncate(d.TaskID, 24),
			truncate(d.Initiator+" vs "+d.Defendant, 18),
			d.VotesFor, d.VotesAgainst, d.TotalVoters)
	}
	return view
}

func (a *App) viewFooter() string {
	status := ""
	if a.loadErr != nil {
		status = errStyle.Render("load error: "+a.loadErr.Error()) + "  "
	} else if !a.lastLoad.IsZero() {
		status = dimStyle.Render("updated "+a.lastLoad.Format("15:04:05")) + "  "
	}
	return status + dimStyle.Render("tab/1-3 switch · r reload · q quit")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
