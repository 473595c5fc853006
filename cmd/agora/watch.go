package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/internal/state"
	"github.com/kessler-labs/agora/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live marketplace dashboard",
	Long: `Open a terminal dashboard over the marketplace database. The view
refreshes when other agora processes write the database, with a
periodic poll as fallback.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dbPath := flagDB
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}

	app := tui.New(func() (tui.Snapshot, error) {
		return loadSnapshot(dbPath)
	})
	program := tea.NewProgram(app, tea.WithAltScreen())

	// Watch the database directory: sqlite in WAL mode writes sidecar
	// files next to the main database.
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(filepath.Dir(dbPath)); err == nil {
			go forwardDBEvents(watcher, program, filepath.Base(dbPath))
		} else {
			watcher.Close()
		}
		defer watcher.Close()
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// forwardDBEvents debounces filesystem writes into dashboard reloads.
func forwardDBEvents(watcher *fsnotify.Watcher, program *tea.Program, dbName string) {
	var last time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), dbName) {
				continue
			}
			if time.Since(last) < 200*time.Millisecond {
				continue
			}
			last = time.Now()
			program.Send(tui.DBChangedMsg{})
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// loadSnapshot hydrates a fresh marketplace from the database and flattens
// it for rendering.
func loadSnapshot(dbPath string) (tui.Snapshot, error) {
	db, err := state.Open(dbPath)
	if err != nil {
		return tui.Snapshot{}, err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return tui.Snapshot{}, err
	}

	agents, err := db.ListAgents()
	if err != nil {
		return tui.Snapshot{}, err
	}
	tasks, err := db.ListTasks()
	if err != nil {
		return tui.Snapshot{}, err
	}
	disputes, err := db.ListDisputes()
	if err != nil {
		return tui.Snapshot{}, err
	}
	balances, err := db.ListBalances()
	if err != nil {
		return tui.Snapshot{}, err
	}
	stats, err := db.ProtocolStats()
	if err != nil {
		return tui.Snapshot{}, err
	}

	snap := tui.Snapshot{
		Agents:           agents,
		Treasury:         balances[ledger.TreasuryAccount],
		StakePool:        balances[ledger.StakePoolAccount],
		TotalDistributed: stats.TotalDistributed,
	}
	for _, balance := range balances {
		snap.TotalValue += balance
	}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, *t)
	}
	for _, d := range disputes {
		snap.Disputes = append(snap.Disputes, *d)
	}
	return snap, nil
}
