package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var slashCmd = &cobra.Command{
	Use:   "slash",
	Short: "Apply stake penalties after a dispute",
	Long: `Apply stake penalties to the losing side of a resolved dispute.
Slashing is permissionless but windowed: it must land within the slash
window after resolution, and each penalty applies at most once. Slashed
stake moves to the protocol treasury.`,
}

var slashWorkerCmd = &cobra.Command{
	Use:   "worker <dispute-id>",
	Short: "Slash the defendant worker of a lost dispute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		amount, err := m.eng.ApplyDisputeSlash(args[0], m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Slashed worker stake on dispute %s: %d to treasury\n", args[0], amount)
		return nil
	},
}

var slashInitiatorCmd = &cobra.Command{
	Use:   "initiator <dispute-id>",
	Short: "Slash the initiator of a rejected dispute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		amount, err := m.eng.ApplyInitiatorSlash(args[0], m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Slashed initiator stake on dispute %s: %d to treasury\n", args[0], amount)
		return nil
	},
}

func init() {
	slashCmd.AddCommand(slashWorkerCmd)
	slashCmd.AddCommand(slashInitiatorCmd)
}
