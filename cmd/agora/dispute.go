package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kessler-labs/agora/internal/engine"
	"github.com/kessler-labs/agora/internal/proof"
	"github.com/kessler-labs/agora/pkg/models"
)

var disputeCmd = &cobra.Command{
	Use:   "dispute",
	Short: "Open, vote on, and resolve disputes",
}

var (
	disputeOpenID         string
	disputeOpenTask       string
	disputeOpenInitiator  string
	disputeOpenDefendant  string
	disputeOpenResolution string
	disputeOpenEvidence   string

	disputeVoter   string
	disputeApprove bool
	disputeReject  bool
	disputeCaller  string
)

var disputeOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a dispute over a task outcome",
	Long: `Open a dispute. Only task participants may initiate, and the task
freezes until the dispute settles. Evidence is passed as free text and
stored as its hash; keep the original document to present off-band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		id := disputeOpenID
		if id == "" {
			id = uuid.New().String()
		}
		dispute, err := m.eng.InitiateDispute(engine.DisputeRequest{
			DisputeID:    id,
			TaskID:       disputeOpenTask,
			Initiator:    disputeOpenInitiator,
			Defendant:    disputeOpenDefendant,
			Resolution:   models.ResolutionType(disputeOpenResolution),
			EvidenceHash: proof.HashBytes([]byte(disputeOpenEvidence)),
		}, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Opened dispute %s on %s (%s vs %s, voting until %d)\n",
			dispute.ID, dispute.TaskID, dispute.Initiator, dispute.Defendant, dispute.VotingDeadline)
		return nil
	},
}

var disputeVoteCmd = &cobra.Command{
	Use:   "vote <dispute-id>",
	Short: "Cast an arbiter ballot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if disputeApprove == disputeReject {
			return fmt.Errorf("pass exactly one of --approve or --reject")
		}
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		dispute, err := m.eng.VoteDispute(args[0], disputeVoter, disputeApprove, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Vote recorded on %s: for %d / against %d (%d voters)\n",
			dispute.ID, dispute.VotesFor, dispute.VotesAgainst, dispute.TotalVoters)
		return nil
	},
}

var disputeResolveCmd = &cobra.Command{
	Use:   "resolve <dispute-id>",
	Short: "Settle a dispute from its vote tally",
	Long: `Settle a dispute once its voting window has closed. Anyone except
the initiator may resolve; the funds move according to the weighted
tally and the requested resolution.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		outcome, err := m.eng.ResolveDispute(args[0], disputeCaller, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		printOutcome(args[0], outcome)
		return nil
	},
}

var disputeCancelCmd = &cobra.Command{
	Use:   "cancel <dispute-id>",
	Short: "Withdraw a dispute before any votes land",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		if err := m.eng.CancelDispute(args[0], disputeCaller, effectiveNow()); err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Cancelled dispute %s\n", args[0])
		return nil
	},
}

var disputeExpireCmd = &cobra.Command{
	Use:   "expire <dispute-id>",
	Short: "Settle a dispute that timed out",
	Long: `Settle a dispute whose resolution window lapsed without a verdict.
Anyone registered may run this; the escrow splits by a fixed fallback
policy rather than by vote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		outcome, err := m.eng.ExpireDispute(args[0], disputeCaller, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		printOutcome(args[0], outcome)
		return nil
	},
}

var disputeShowCmd = &cobra.Command{
	Use:   "show <dispute-id>",
	Short: "Display a dispute and its ballots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		dispute, err := m.eng.Dispute(args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		bold.Printf("%s", dispute.ID)
		fmt.Printf("  [%s]\n", dispute.Status)
		fmt.Printf("  task:         %s\n", dispute.TaskID)
		fmt.Printf("  initiator:    %s\n", dispute.Initiator)
		fmt.Printf("  defendant:    %s (stake at dispute %d)\n", dispute.Defendant, dispute.WorkerStakeAtDispute)
		fmt.Printf("  resolution:   %s\n", dispute.Resolution)
		fmt.Printf("  tally:        for %d / against %d (%d voters)\n",
			dispute.VotesFor, dispute.VotesAgainst, dispute.TotalVoters)
		fmt.Printf("  voting until: %d, expires %d\n", dispute.VotingDeadline, dispute.ExpiresAt)
		if dispute.Status == models.DisputeStatusResolved {
			verdict := "rejected"
			if dispute.Approved {
				verdict = "approved"
			}
			fmt.Printf("  verdict:      %s at %d\n", verdict, dispute.ResolvedAt)
		}
		for _, vote := range m.eng.Votes(dispute.ID) {
			direction := "against"
			if vote.Approved {
				direction = "for"
			}
			fmt.Printf("  ballot %s: %s (weight %d)\n", vote.Voter, direction, vote.StakeAtVote)
		}
		return nil
	},
}

var disputeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List disputes",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		disputes := m.eng.Disputes()
		sort.Slice(disputes, func(i, j int) bool { return disputes[i].CreatedAt < disputes[j].CreatedAt })
		if len(disputes) == 0 {
			fmt.Println("No disputes.")
			return nil
		}
		for _, d := range disputes {
			fmt.Printf("%-36s %-10s task %s  %s vs %s\n", d.ID, d.Status, d.TaskID, d.Initiator, d.Defendant)
		}
		return nil
	},
}

func printOutcome(disputeID string, outcome engine.Outcome) {
	verdict := "rejected"
	if outcome.Approved {
		verdict = "approved"
	}
	fmt.Printf("Dispute %s settled: %s\n", disputeID, verdict)
	if outcome.PaidToWorker > 0 {
		fmt.Printf("  worker paid:  %d\n", outcome.PaidToWorker)
	}
	if outcome.PaidToCreator > 0 {
		fmt.Printf("  creator paid: %d\n", outcome.PaidToCreator)
	}
	fmt.Printf("  task status:  %s\n", outcome.TaskStatus)
}

func init() {
	disputeOpenCmd.Flags().StringVar(&disputeOpenID, "id", "", "Dispute identifier (default: generated)")
	disputeOpenCmd.Flags().StringVar(&disputeOpenTask, "task", "", "Disputed task ID")
	disputeOpenCmd.Flags().StringVar(&disputeOpenInitiator, "initiator", "", "Initiating agent ID")
	disputeOpenCmd.Flags().StringVar(&disputeOpenDefendant, "defendant", "", "Disputed worker (default: inferred)")
	disputeOpenCmd.Flags().StringVar(&disputeOpenResolution, "resolution", string(models.ResolutionRefund), "Requested resolution: refund, complete, split")
	disputeOpenCmd.Flags().StringVar(&disputeOpenEvidence, "evidence", "", "Evidence text to hash into the record")
	disputeOpenCmd.MarkFlagRequired("task")
	disputeOpenCmd.MarkFlagRequired("initiator")
	disputeOpenCmd.MarkFlagRequired("evidence")

	disputeVoteCmd.Flags().StringVar(&disputeVoter, "voter", "", "Arbiter agent ID")
	disputeVoteCmd.Flags().BoolVar(&disputeApprove, "approve", false, "Vote to approve the dispute")
	disputeVoteCmd.Flags().BoolVar(&disputeReject, "reject", false, "Vote to reject the dispute")
	disputeVoteCmd.MarkFlagRequired("voter")

	for _, c := range []*cobra.Command{disputeResolveCmd, disputeCancelCmd, disputeExpireCmd} {
		c.Flags().StringVar(&disputeCaller, "caller", "", "Calling agent ID")
		c.MarkFlagRequired("caller")
	}

	disputeCmd.AddCommand(disputeOpenCmd)
	disputeCmd.AddCommand(disputeVoteCmd)
	disputeCmd.AddCommand(disputeResolveCmd)
	disputeCmd.AddCommand(disputeCancelCmd)
	disputeCmd.AddCommand(disputeExpireCmd)
	disputeCmd.AddCommand(disputeShowCmd)
	disputeCmd.AddCommand(disputeListCmd)
}
