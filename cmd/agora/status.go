package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kessler-labs/agora/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show marketplace totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		stats, err := m.db.ProtocolStats()
		if err != nil {
			return err
		}
		total, err := m.book.Total()
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		bold.Println("Agora marketplace")
		fmt.Printf("  agents:            %d\n", stats.TotalAgents)
		fmt.Printf("  tasks:             %d (%d completed)\n", stats.TotalTasks, stats.CompletedTasks)
		fmt.Printf("  active disputes:   %d\n", stats.ActiveDisputes)
		fmt.Printf("  total distributed: %d\n", stats.TotalDistributed)
		fmt.Printf("  total value:       %d\n", total)
		fmt.Printf("  treasury:          %d\n", m.book.Balance(ledger.TreasuryAccount))
		fmt.Printf("  stake pool:        %d\n", m.book.Balance(ledger.StakePoolAccount))
		return nil
	},
}
