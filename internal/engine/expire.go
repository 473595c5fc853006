package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// ExpireClaim is the permissionless cleanup path for a stale claim. The
// caller earns a small fixed reward from escrow, capped at the escrow's
// remaining balance. The task reopens only if it is still in progress and
// this was its last worker; terminal and disputed tasks are never revived.
func (e *Engine) ExpireClaim(taskID, workerID, callerID string, cfg config.Params, now int64) (uint64, error) {
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
	if claim.ExpiresAt == 0 || now <= claim.ExpiresAt {
		return 0, ErrClaimNotExpired
	}
	caller, err := e.dir.Get(callerID)
	if err != nil {
		return 0, fmt.Errorf("expire claim: %w", err)
	}
	escrow, ok := e.escrows[taskID]
	if !ok {
		return 0, invariantf("expire_claim", "task %s has no escrow", taskID)
	}

	reward := cfg.ClaimCleanupReward
	if remaining := e.book.Balance(ledger.EscrowAccount(taskID)); reward > remaining {
		reward = remaining
	}
	if escrow.IsClosed {
		reward = 0
	}
	if reward > 0 {
		distributed, err := ledger.Add(escrow.Distributed, reward)
		if err != nil {
			return 0, fmt.Errorf("expire claim: %w", err)
		}
		if distributed > escrow.Amount {
			return 0, invariantf("expire_claim", "distributed %d would exceed escrow amount %d", distributed, escrow.Amount)
		}
		if err := e.book.Transfer(ledger.EscrowAccount(taskID), ledger.AgentAccount(caller.Authority), reward); err != nil {
			return 0, fmt.Errorf("expire claim: pay cleanup reward: %w", err)
		}
		escrow.Distributed = distributed
	}

	delete(e.claims[taskID], workerID)
	if task.CurrentWorkers > 0 {
		task.CurrentWorkers--
	}
	if err := e.dir.DecrementActiveTasks(workerID); err != nil {
		return 0, invariantf("expire_claim", "release claim counter for %s: %v", workerID, err)
	}
	if task.CurrentWorkers == 0 && task.Status == models.TaskStatusInProgress {
		task.Status = models.TaskStatusOpen
	}

	e.emit(events.Event{
		Type:         events.TypeClaimExpired,
		Timestamp:    now,
		TaskID:       taskID,
		Agent:        workerID,
		Counterparty: callerID,
		Amount:       reward,
	})
	return reward, nil
}
