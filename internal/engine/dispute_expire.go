package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// ExpireDispute is the permissionless fallback when a dispute is never
// resolved. It becomes available once the outer timeout passes, or once the
// voting deadline passes; the second arm guarantees no dispute can sit
// stuck between the two deadlines forever. Remaining escrow is settled by a
// fair-refund policy:
//
//   - no votes and the worker completed: everything to the worker
//   - no votes and no completion: an even split, remainder to the creator
//   - votes cast but never resolved: everything to the creator
func (e *Engine) ExpireDispute(disputeID, callerID string, cfg config.Params, now int64) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return Outcome{}, ErrDisputeNotFound
	}
	if dispute.Status != models.DisputeStatusActive {
		return Outcome{}, ErrDisputeNotActive
	}
	if now <= dispute.ExpiresAt && now < dispute.VotingDeadline {
		return Outcome{}, ErrDisputeNotExpirable
	}
	if _, err := e.dir.Get(callerID); err != nil {
		return Outcome{}, fmt.Errorf("expire dispute: %w", err)
	}
	task, ok := e.tasks[dispute.TaskID]
	if !ok {
		return Outcome{}, invariantf("expire_dispute", "dispute %s references missing task %s", disputeID, dispute.TaskID)
	}
	escrow, ok := e.escrows[dispute.TaskID]
	if !ok {
		return Outcome{}, invariantf("expire_dispute", "task %s has no escrow", dispute.TaskID)
	}
	defendant, err := e.dir.Get(dispute.Defendant)
	if err != nil {
		return Outcome{}, invariantf("expire_dispute", "defendant %s: %v", dispute.Defendant, err)
	}

	workerCompleted := task.CompletedAt > 0
	if claim, ok := e.claims[dispute.TaskID][dispute.Defendant]; ok && claim.IsCompleted {
		workerCompleted = true
	}

	remaining := e.book.Balance(ledger.EscrowAccount(dispute.TaskID))
	var toWorker, toCreator uint64
	switch {
	case dispute.TotalVoters > 0:
		toCreator = remaining
	case workerCompleted:
		toWorker = remaining
	default:
		toWorker = remaining / 2
		toCreator = remaining - toWorker
	}

	if err := e.payout(escrow, defendant.Authority, toWorker, "expire_dispute"); err != nil {
		return Outcome{}, err
	}
	if err := e.payout(escrow, task.CreatorAuthority, toCreator, "expire_dispute"); err != nil {
		return Outcome{}, err
	}

	escrow.IsClosed = true
	task.Status = models.TaskStatusCancelled
	dispute.Status = models.DisputeStatusExpired
	dispute.ResolvedAt = now
	e.closeDisputeBookkeeping(dispute)

	e.emit(events.Event{
		Type:         events.TypeDisputeExpired,
		Timestamp:    now,
		TaskID:       dispute.TaskID,
		DisputeID:    disputeID,
		Agent:        callerID,
		Counterparty: dispute.Defendant,
		Amount:       toWorker + toCreator,
	})
	return Outcome{
		Resolution:    dispute.Resolution,
		PaidToWorker:  toWorker,
		PaidToCreator: toCreator,
		TaskStatus:    models.TaskStatusCancelled,
	}, nil
}
