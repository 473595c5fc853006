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

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and work marketplace tasks",
}

var (
	taskCreateID             string
	taskCreateCreator        string
	taskCreateDescription    string
	taskCreateCapabilities   string
	taskCreateMinReputation  int
	taskCreateReward         uint64
	taskCreateMaxWorkers     int
	taskCreateType           string
	taskCreateDeadline       int64
	taskCreateExpectedOutput string

	taskWorker     string
	taskResult     string
	taskProof      string
	taskCallerFlag string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Post a task and fund its escrow",
	Long: `Post a task. The reward is moved from the creator's balance into a
dedicated escrow immediately; it can only leave through completion
payouts, dispute outcomes, cancellation refunds, or cleanup rewards.

Passing --expected-output makes the task private: workers must submit
a proof whose commitment matches, and the expected output itself never
appears in the task record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		id := taskCreateID
		if id == "" {
			id = uuid.New().String()
		}
		constraintHash := ""
		if taskCreateExpectedOutput != "" {
			commitment := proof.HashBytes([]byte(taskCreateExpectedOutput))
			constraintHash = proof.Commitment(id, commitment)
		}
		caps, err := parseCapabilities(taskCreateCapabilities)
		if err != nil {
			return err
		}

		task, err := m.eng.CreateTask(engine.CreateTaskRequest{
			TaskID:               id,
			Creator:              taskCreateCreator,
			Description:          taskCreateDescription,
			ConstraintHash:       constraintHash,
			RequiredCapabilities: caps,
			MinReputation:        taskCreateMinReputation,
			RewardAmount:         taskCreateReward,
			MaxWorkers:           taskCreateMaxWorkers,
			Type:                 models.TaskType(taskCreateType),
			Deadline:             taskCreateDeadline,
		}, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Created task %s (reward %d in escrow, fee %d bps)\n", task.ID, task.RewardAmount, task.ProtocolFeeBps)
		return nil
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a task as a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		claim, err := m.eng.ClaimTask(args[0], taskWorker, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Claimed %s for %s (expires at %d)\n", claim.TaskID, claim.Worker, claim.ExpiresAt)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Submit a completion and collect the reward",
	Long: `Submit a result for a claimed task. For private tasks, pass the
output with --proof; its commitment is checked against the constraint
fixed at creation. The payout is the per-completion reward minus the
protocol fee.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		var proofBytes []byte
		commitment := ""
		if taskProof != "" {
			proofBytes = []byte(taskProof)
			commitment = proof.HashBytes(proofBytes)
		}
		paid, err := m.eng.CompleteTask(args[0], taskWorker, taskResult, commitment, proofBytes, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Completed %s: paid %d to %s\n", args[0], paid, taskWorker)
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task and refund the remaining escrow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		refund, err := m.eng.CancelTask(args[0], taskCallerFlag, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Cancelled %s: refunded %d\n", args[0], refund)
		return nil
	},
}

var taskExpireClaimCmd = &cobra.Command{
	Use:   "expire-claim <task-id>",
	Short: "Clean up a stale claim for a reward",
	Long: `Remove a claim whose expiry has passed. Anyone may run this; the
caller collects a cleanup reward from the task's escrow, capped by
what remains.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		reward, err := m.eng.ExpireClaim(args[0], taskWorker, taskCallerFlag, m.cfg, effectiveNow())
		if err != nil {
			return err
		}
		if err := m.save(); err != nil {
			return err
		}
		fmt.Printf("Expired claim of %s on %s: cleanup reward %d\n", taskWorker, args[0], reward)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Display a task, its escrow, and its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		task, err := m.eng.Task(args[0])
		if err != nil {
			return err
		}
		escrow, err := m.eng.Escrow(args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		bold.Printf("%s", task.ID)
		fmt.Printf("  [%s]\n", statusColor(task.Status).Sprint(task.Status))
		fmt.Printf("  %s\n", task.Description)
		fmt.Printf("  creator:      %s\n", task.Creator)
		fmt.Printf("  type:         %s\n", task.Type)
		fmt.Printf("  reward:       %d (fee %d bps)\n", task.RewardAmount, task.ProtocolFeeBps)
		fmt.Printf("  workers:      %d/%d, completions %d/%d\n",
			task.CurrentWorkers, task.MaxWorkers, task.Completions, task.RequiredCompletions)
		if task.Deadline > 0 {
			fmt.Printf("  deadline:     %d\n", task.Deadline)
		}
		if task.ConstraintHash != "" {
			fmt.Printf("  constraint:   %s\n", task.ConstraintHash)
		}
		fmt.Printf("  escrow:       %d funded, %d distributed", escrow.Amount, escrow.Distributed)
		if escrow.IsClosed {
			fmt.Printf(" (closed)")
		}
		fmt.Println()

		for _, claim := range m.eng.Claims(task.ID) {
			marker := "claimed"
			if claim.IsCompleted {
				marker = fmt.Sprintf("completed, paid %d", claim.RewardPaid)
			}
			fmt.Printf("  claim %s: %s\n", claim.Worker, marker)
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMarket()
		if err != nil {
			return err
		}
		defer m.close()

		tasks := m.eng.Tasks()
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt < tasks[j].CreatedAt })
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		for _, task := range tasks {
			fmt.Printf("%-36s %-13s reward %-8d %s\n",
				task.ID, statusColor(task.Status).Sprint(task.Status), task.RewardAmount, task.Description)
		}
		return nil
	},
}

func statusColor(status models.TaskStatus) *color.Color {
	switch status {
	case models.TaskStatusOpen:
		return color.New(color.FgCyan)
	case models.TaskStatusInProgress:
		return color.New(color.FgYellow)
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusDisputed:
		return color.New(color.FgRed)
	case models.TaskStatusCancelled:
		return color.New(color.Faint)
	default:
		return color.New()
	}
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskCreateID, "id", "", "Task identifier (default: generated)")
	taskCreateCmd.Flags().StringVar(&taskCreateCreator, "creator", "", "Creator agent ID")
	taskCreateCmd.Flags().StringVar(&taskCreateDescription, "description", "", "What the task asks for")
	taskCreateCmd.Flags().StringVar(&taskCreateCapabilities, "capabilities", "", "Required worker capabilities")
	taskCreateCmd.Flags().IntVar(&taskCreateMinReputation, "min-reputation", 0, "Minimum worker reputation")
	taskCreateCmd.Flags().Uint64Var(&taskCreateReward, "reward", 0, "Total reward to escrow")
	taskCreateCmd.Flags().IntVar(&taskCreateMaxWorkers, "max-workers", 1, "Maximum concurrent workers")
	taskCreateCmd.Flags().StringVar(&taskCreateType, "type", string(models.TaskTypeExclusive), "Task type: exclusive, collaborative, competitive")
	taskCreateCmd.Flags().Int64Var(&taskCreateDeadline, "deadline", 0, "Deadline (unix seconds, 0 for none)")
	taskCreateCmd.Flags().StringVar(&taskCreateExpectedOutput, "expected-output", "", "Expected output for a private task")
	taskCreateCmd.MarkFlagRequired("creator")
	taskCreateCmd.MarkFlagRequired("description")
	taskCreateCmd.MarkFlagRequired("reward")

	taskClaimCmd.Flags().StringVar(&taskWorker, "worker", "", "Worker agent ID")
	taskClaimCmd.MarkFlagRequired("worker")

	taskCompleteCmd.Flags().StringVar(&taskWorker, "worker", "", "Worker agent ID")
	taskCompleteCmd.Flags().StringVar(&taskResult, "result", "", "Result reference to record")
	taskCompleteCmd.Flags().StringVar(&taskProof, "proof", "", "Output bytes for private-task proof")
	taskCompleteCmd.MarkFlagRequired("worker")

	taskCancelCmd.Flags().StringVar(&taskCallerFlag, "caller", "", "Calling agent ID")
	taskCancelCmd.MarkFlagRequired("caller")

	taskExpireClaimCmd.Flags().StringVar(&taskWorker, "worker", "", "Worker whose claim expired")
	taskExpireClaimCmd.Flags().StringVar(&taskCallerFlag, "caller", "", "Calling agent ID (collects the cleanup reward)")
	taskExpireClaimCmd.MarkFlagRequired("worker")
	taskExpireClaimCmd.MarkFlagRequired("caller")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskExpireClaimCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskListCmd)
}
