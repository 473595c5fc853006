package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// Completed-task volume tiers lowering the protocol fee.
const (
	volumeTier1Completions = 50
	volumeTier2Completions = 200
	volumeTier3Completions = 1000
	volumeTier1DiscountBps = 10
	volumeTier2DiscountBps = 25
	volumeTier3DiscountBps = 40
)

// reputationFeeDiscountBps converts worker reputation to a fee discount:
// one basis point per 500 reputation, 20 bps at the cap.
func reputationFeeDiscountBps(reputation int) uint16 {
	if reputation <= 0 {
		return 0
	}
	return uint16(reputation / 500)
}

// volumeFeeDiscountBps rewards lifetime completion volume.
func volumeFeeDiscountBps(completed uint64) uint16 {
	switch {
	case completed >= volumeTier3Completions:
		return volumeTier3DiscountBps
	case completed >= volumeTier2Completions:
		return volumeTier2DiscountBps
	case completed >= volumeTier1Completions:
		return volumeTier1DiscountBps
	default:
		return 0
	}
}

// effectiveFeeBps applies both discounts to the task's locked fee rate.
// A non-zero locked rate never discounts below 1 bps.
func effectiveFeeBps(locked uint16, reputation int, completed uint64) uint16 {
	if locked == 0 {
		return 0
	}
	discount := reputationFeeDiscountBps(reputation) + volumeFeeDiscountBps(completed)
	if discount >= locked {
		return 1
	}
	return locked - discount
}

// CompleteTask fulfills the worker's claim, pays the reward split from
// escrow, and closes the task when required completions are reached.
// For competitive tasks the first-completion guard runs before proof
// verification so a lost race never pays the verification cost.
func (e *Engine) CompleteTask(taskID, workerID, result, outputCommitment string, proofBytes []byte, cfg config.Params, now int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return 0, ErrTaskNotFound
	}
	claim, ok := e.claims[taskID][workerID]
	if !ok {
		return 0, ErrClaimNotFound
	}
	if claim.IsCompleted {
		return 0, ErrClaimCompleted
	}
	if task.Status != models.TaskStatusInProgress {
		return 0, fmt.Errorf("%w: status %s", ErrTaskNotInProgress, task.Status)
	}
	if task.Deadline > 0 && now >= task.Deadline {
		return 0, ErrDeadlinePassed
	}
	if claim.ExpiresAt > 0 && now > claim.ExpiresAt {
		return 0, ErrClaimExpired
	}
	if task.Type == models.TaskTypeCompetitive && task.Completions > 0 {
		return 0, ErrCompetitiveClosed
	}
	if task.Completions >= task.RequiredCompletions {
		return 0, invariantf("complete_task", "task %s has %d completions with %d required yet is not terminal",
			taskID, task.Completions, task.RequiredCompletions)
	}

	if task.ConstraintHash != "" {
		if e.verifier == nil || !e.verifier.Verify(taskID, workerID, task.ConstraintHash, outputCommitment, proofBytes) {
			return 0, ErrProofRejected
		}
	}

	escrow, ok := e.escrows[taskID]
	if !ok {
		return 0, invariantf("complete_task", "task %s has no escrow", taskID)
	}
	if escrow.IsClosed {
		return 0, ErrEscrowClosed
	}

	worker, err := e.dir.Get(workerID)
	if err != nil {
		return 0, fmt.Errorf("complete task: %w", err)
	}

	gross := task.RewardAmount / uint64(task.RequiredCompletions)
	if task.Completions == task.RequiredCompletions-1 {
		// The completion that finishes the task absorbs the rounding
		// remainder, never the protocol or earlier completers.
		gross += task.RewardAmount % uint64(task.RequiredCompletions)
	}
	feeBps := effectiveFeeBps(task.ProtocolFeeBps, worker.Reputation, worker.TasksCompleted)
	feeGross, err := ledger.Mul(gross, uint64(feeBps))
	if err != nil {
		return 0, fmt.Errorf("complete task: fee: %w", err)
	}
	fee := feeGross / config.BasisPointsDivisor
	reward := gross - fee

	distributed, err := ledger.Add(escrow.Distributed, reward)
	if err != nil {
		return 0, fmt.Errorf("complete task: %w", err)
	}
	if distributed > escrow.Amount {
		return 0, invariantf("complete_task", "distributed %d would exceed escrow amount %d", distributed, escrow.Amount)
	}

	escrowAccount := ledger.EscrowAccount(taskID)
	if err := e.book.Transfer(escrowAccount, ledger.AgentAccount(worker.Authority), reward); err != nil {
		return 0, fmt.Errorf("complete task: pay reward: %w", err)
	}
	if err := e.book.Transfer(escrowAccount, ledger.TreasuryAccount, fee); err != nil {
		// The reward transfer already committed; escrow funding covers
		// gross per completion, so the fee leg cannot lack funds unless
		// state was corrupted externally.
		return 0, invariantf("complete_task", "fee transfer failed after reward paid: %v", err)
	}

	escrow.Distributed = distributed
	claim.IsCompleted = true
	claim.CompletedAt = now
	claim.Result = result
	claim.RewardPaid = reward
	if outputCommitment != "" {
		claim.ProofHash = outputCommitment
	}
	task.Completions++
	if task.Completions >= task.RequiredCompletions {
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = now
		task.Result = result
		escrow.IsClosed = true
	}

	oldRep, newRep, err := e.dir.CreditReward(workerID, reward, now)
	if err != nil {
		return 0, invariantf("complete_task", "credit reward after payout: %v", err)
	}

	e.emit(events.Event{
		Type:         events.TypeRewardDistributed,
		Timestamp:    now,
		TaskID:       taskID,
		Agent:        workerID,
		Counterparty: task.Creator,
		Amount:       reward,
	})
	e.emit(events.Event{
		Type:          events.TypeTaskCompleted,
		Timestamp:     now,
		TaskID:        taskID,
		Agent:         workerID,
		Counterparty:  task.Creator,
		Amount:        reward,
		OldReputation: oldRep,
		NewReputation: newRep,
		Detail:        string(task.Status),
	})
	return reward, nil
}
