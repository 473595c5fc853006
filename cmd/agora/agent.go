package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage marketplace agents",
}

var (
	agentRegisterID           string
	agentRegisterAuthority    string
	agentRegisterCapabilities string
	agentAmount               uint64
)

var capabilityNames = map[string]uint64{
	"compute":    models.CapCompute,
	"inference":  models.CapInference,
	"storage":    models.CapStorage,
	"network":    models.CapNetwork,
	"sensor":     models.CapSensor,
	"actuator":   models.CapActuator,
	"coordinate": models.CapCoordinate,
	"arbiter":    models.CapArbiter,
	"validator":  models.CapValidator,
	"aggregator": models.CapAggregator,
}

// parseCapabilities turns a comma-separated list of names into a bitmask.
func parseCapabilities(list string) (uint64, error) {
	if list == "" {
		return 0, nil
	}
	var mask uint64
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		bit, ok := capabilityNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
		mask |= bit
	}
	return mask, nil
}

func capabilityList(mask uint64) string {
	var names []string
	for name, bit := range capabilityNames {
		if mask&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new agent identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		caps, err := parseCapabilities(agentRegisterCapabilities)
		if err != nil {
			return err
		}
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		agent, err := m.dir.Register(agentRegisterID, agentRegisterAuthority, caps, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Registered %s (authority %s, capabilities %s, reputation %d)\n",
			agent.ID, agent.Authority, capabilityList(agent.Capabilities), agent.Reputation)
		return nil
	},
}

var agentFundCmd = &cobra.Command{
	Use:   "fund <agent-id>",
	Short: "Credit an agent's spendable balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		agent, err := m.dir.Get(args[0])
		if err != nil {
			return err
		}
		account := ledger.AgentAccount(agent.Authority)
		if err := m.book.Credit(account, agentAmount); err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Credited %d to %s (balance %d)\n", agentAmount, agent.ID, m.book.Balance(account))
		return nil
	},
}

var agentStakeCmd = &cobra.Command{
	Use:   "stake <agent-id>",
	Short: "Bond balance as stake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		if err := m.dir.DepositStake(args[0], agentAmount); err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		agent, err := m.dir.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Staked %d for %s (total stake %d)\n", agentAmount, agent.ID, agent.Stake)
		return nil
	},
}

var agentUnstakeCmd = &cobra.Command{
	Use:   "unstake <agent-id>",
	Short: "Release bonded stake back to spendable balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		if err := m.dir.WithdrawStake(args[0], agentAmount); err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		agent, err := m.dir.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Unstaked %d for %s (remaining stake %d)\n", agentAmount, agent.ID, agent.Stake)
		return nil
	},
}

var agentDecayCmd = &cobra.Command{
	Use:   "decay <agent-id>",
	Short: "Apply inactivity reputation decay",
	Long: `Apply reputation decay for an inactive agent. Anyone may run this
for any agent; the decay schedule depends only on the agent's own
last-activity timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		oldRep, newRep, err := m.dir.ApplyDecay(args[0], effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		if oldRep == newRep {
			fmt.Printf("No decay due for %s (reputation %d)\n", args[0], newRep)
		} else {
			fmt.Printf("Reputation of %s decayed %d -> %d\n", args[0], oldRep, newRep)
		}
		return nil
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Display an agent's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		agent, err := m.dir.Get(args[0])
		if err != nil {
			return err
		}
		balance := m.book.Balance(ledger.AgentAccount(agent.Authority))

		bold := color.New(color.Bold)
		bold.Printf("%s", agent.ID)
		fmt.Printf("  [%s]\n", agent.Status)
		fmt.Printf("  authority:     %s\n", agent.Authority)
		fmt.Printf("  capabilities:  %s\n", capabilityList(agent.Capabilities))
		fmt.Printf("  reputation:    %d\n", agent.Reputation)
		fmt.Printf("  balance:       %d\n", balance)
		fmt.Printf("  stake:         %d\n", agent.Stake)
		fmt.Printf("  active tasks:  %d\n", agent.ActiveTasks)
		fmt.Printf("  completed:     %d (earned %d)\n", agent.TasksCompleted, agent.TotalEarned)
		return nil
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		agents := m.dir.All()
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
		if len(agents) == 0 {
			fmt.Println("No agents registered.")
			return nil
		}
		for _, a := range agents {
			fmt.Printf("%-20s rep %-5d stake %-8d %s\n", a.ID, a.Reputation, a.Stake, a.Status)
		}
		return nil
	},
}

func init() {
	agentRegisterCmd.Flags().StringVar(&agentRegisterID, "id", "", "Agent identifier")
	agentRegisterCmd.Flags().StringVar(&agentRegisterAuthority, "authority", "", "Controlling authority credential")
	agentRegisterCmd.Flags().StringVar(&agentRegisterCapabilities, "capabilities", "", "Comma-separated capability names")
	agentRegisterCmd.MarkFlagRequired("id")
	agentRegisterCmd.MarkFlagRequired("authority")

	for _, c := range []*cobra.Command{agentFundCmd, agentStakeCmd, agentUnstakeCmd} {
		c.Flags().Uint64Var(&agentAmount, "amount", 0, "Amount in base units")
		c.MarkFlagRequired("amount")
	}

	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentFundCmd)
	agentCmd.AddCommand(agentStakeCmd)
	agentCmd.AddCommand(agentUnstakeCmd)
	agentCmd.AddCommand(agentDecayCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentListCmd)
}
