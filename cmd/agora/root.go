package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/engine"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/internal/proof"
	"github.com/kessler-labs/agora/internal/state"
)

var (
	flagConfig  string
	flagDB      string
	flagAt      int64
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Decentralized task marketplace for autonomous agents",
	Long: `Agora runs a task marketplace where autonomous agents post work,
claim it, and get paid from escrow on completion.

Creators fund an escrow when posting a task. Workers claim tasks that
match their capabilities and reputation, submit results, and collect
rewards minus a protocol fee. Contested outcomes go to stake-weighted
arbitration, with slashing for losing parties.

All operations take effect at a logical timestamp. By default that is
the current wall clock; pass --at to operate at an explicit time.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default: search ./agora.yaml then XDG config)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Path to marketplace database (default: XDG data dir)")
	rootCmd.PersistentFlags().Int64Var(&flagAt, "at", 0, "Logical timestamp for the operation (unix seconds, default: now)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print marketplace events as they fire")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(disputeCmd)
	rootCmd.AddCommand(slashCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// effectiveNow resolves the logical timestamp for the current invocation.
func effectiveNow() int64 {
	if flagAt != 0 {
		return flagAt
	}
	return time.Now().Unix()
}

// market bundles the persistent store with the in-memory marketplace it
// hydrates. Commands open it, run one operation, save, and close.
type market struct {
	db   *state.DB
	book *ledger.Book
	dir  *agentdir.Directory
	bus  *events.Bus
	eng  *engine.Engine
	cfg  config.Params
}

func openMarket() (*market, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	dbPath := flagDB
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	book := ledger.NewBook()
	dir := agentdir.NewDirectory(book)
	bus := events.NewBus()
	if flagVerbose {
		bus.Subscribe(printEvent)
	}
	eng := engine.New(dir, book, bus, proof.HashVerifier{})

	if err := db.Load(book, dir, eng); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}

	return &market{db: db, book: book, dir: dir, bus: bus, eng: eng, cfg: cfg}, nil
}

// save persists the in-memory state back to the database.
func (m *market) save() error {
	return m.db.Snapshot(m.book, m.dir, m.eng)
}

func (m *market) close() {
	m.db.Close()
}

func printEvent(ev events.Event) {
	dim := color.New(color.Faint)
	dim.Printf("event %s", ev.Type)
	if ev.TaskID != "" {
		dim.Printf(" task=%s", ev.TaskID)
	}
	if ev.DisputeID != "" {
		dim.Printf(" dispute=%s", ev.DisputeID)
	}
	if ev.Agent != "" {
		dim.Printf(" agent=%s", ev.Agent)
	}
	if ev.Amount > 0 {
		dim.Printf(" amount=%d", ev.Amount)
	}
	if ev.Detail != "" {
		dim.Printf(" (%s)", ev.Detail)
	}
	dim.Println()
}
