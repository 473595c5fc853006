package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// CancelTask refunds the escrow's remaining balance to the creator and
// terminates the task. Permitted while the task is still open, or once in
// progress with its deadline passed and nothing completed.
func (e *Engine) CancelTask(taskID, callerID string, now int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return 0, ErrTaskNotFound
	}
	caller, err := e.dir.Get(callerID)
	if err != nil {
		return 0, fmt.Errorf("cancel task: %w", err)
	}
	if callerID != task.Creator && caller.Authority != task.CreatorAuthority {
		return 0, ErrNotCreator
	}

	switch task.Status {
	case models.TaskStatusOpen:
	case models.TaskStatusInProgress:
		if task.Deadline == 0 || now <= task.Deadline {
			return 0, fmt.Errorf("%w: deadline has not passed", ErrCancelNotPermitted)
		}
		if task.Completions != 0 {
			return 0, fmt.Errorf("%w: task has completions", ErrCancelNotPermitted)
		}
	default:
		return 0, fmt.Errorf("%w: status %s", ErrCancelNotPermitted, task.Status)
	}

	escrow, ok := e.escrows[taskID]
	if !ok {
		return 0, invariantf("cancel_task", "task %s has no escrow", taskID)
	}
	if escrow.IsClosed {
		return 0, ErrEscrowClosed
	}

	refund := e.book.Balance(ledger.EscrowAccount(taskID))
	distributed, err := ledger.Add(escrow.Distributed, refund)
	if err != nil {
		return 0, fmt.Errorf("cancel task: %w", err)
	}
	if distributed > escrow.Amount {
		return 0, invariantf("cancel_task", "distributed %d would exceed escrow amount %d", distributed, escrow.Amount)
	}
	if refund > 0 {
		if err := e.book.Transfer(ledger.EscrowAccount(taskID), ledger.AgentAccount(task.CreatorAuthority), refund); err != nil {
			return 0, fmt.Errorf("cancel task: refund: %w", err)
		}
	}
	escrow.Distributed = distributed
	escrow.IsClosed = true
	task.Status = models.TaskStatusCancelled

	// Workers still holding uncompleted claims get their claim counters
	// released, and the claim records go with them so a later cleanup call
	// cannot release the same slot twice.
	for workerID, claim := range e.claims[taskID] {
		if claim.IsCompleted {
			continue
		}
		delete(e.claims[taskID], workerID)
		if task.CurrentWorkers > 0 {
			task.CurrentWorkers--
		}
		if err := e.dir.DecrementActiveTasks(workerID); err != nil {
			return 0, invariantf("cancel_task", "release claim counter for %s: %v", workerID, err)
		}
	}

	e.emit(events.Event{
		Type:         events.TypeTaskCancelled,
		Timestamp:    now,
		TaskID:       taskID,
		Agent:        callerID,
		Counterparty: task.Creator,
		Amount:       refund,
	})
	return refund, nil
}
