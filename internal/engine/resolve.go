package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// Outcome reports how a resolved dispute paid out.
type Outcome struct {
	Approved      bool
	Resolution    models.ResolutionType
	PaidToWorker  uint64
	PaidToCreator uint64
	TaskStatus    models.TaskStatus
}

// payout moves amount from the task's escrow to the recipient and records
// it as distributed. A zero amount is a no-op.
func (e *Engine) payout(escrow *models.TaskEscrow, recipientAuthority string, amount uint64, op string) error {
	if amount == 0 {
		return nil
	}
	distributed, err := ledger.Add(escrow.Distributed, amount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if distributed > escrow.Amount {
		return invariantf(op, "distributed %d would exceed escrow amount %d", distributed, escrow.Amount)
	}
	if err := e.book.Transfer(ledger.EscrowAccount(escrow.TaskID), ledger.AgentAccount(recipientAuthority), amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	escrow.Distributed = distributed
	return nil
}

// closeDisputeBookkeeping releases the vote-activity counters of every
// arbiter who voted and, when the defendant's claim never completed, the
// claim record and its counter. A completed claim already released its slot
// at completion time, so it is left alone.
func (e *Engine) closeDisputeBookkeeping(dispute *models.Dispute) {
	for voterID := range e.votes[dispute.ID] {
		// Best effort: a missing voter record cannot block settlement.
		_ = e.dir.DecrementDisputeVotes(voterID)
	}
	if claim, ok := e.claims[dispute.TaskID][dispute.Defendant]; ok && !claim.IsCompleted {
		delete(e.claims[dispute.TaskID], dispute.Defendant)
		_ = e.dir.DecrementActiveTasks(dispute.Defendant)
	}
}

// ResolveDispute settles an active dispute after the voting window, paying
// the remaining escrow per the weighted outcome. Anyone but the initiator
// may call it once the deadline and quorum are met.
func (e *Engine) ResolveDispute(disputeID, resolverID string, cfg config.Params, now int64) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return Outcome{}, ErrDisputeNotFound
	}
	if dispute.Status != models.DisputeStatusActive {
		return Outcome{}, ErrDisputeNotActive
	}
	resolver, err := e.dir.Get(resolverID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve dispute: %w", err)
	}
	if resolverID == dispute.Initiator || resolver.Authority == dispute.InitiatorAuthority {
		return Outcome{}, ErrResolverIsInitiator
	}
	if now < dispute.VotingDeadline {
		return Outcome{}, ErrVotingOpen
	}
	if dispute.TotalVoters == 0 || dispute.TotalVoters < cfg.MinQuorum {
		return Outcome{}, fmt.Errorf("%w: %d of %d voters", ErrQuorumNotMet, dispute.TotalVoters, cfg.MinQuorum)
	}

	task, ok := e.tasks[dispute.TaskID]
	if !ok {
		return Outcome{}, invariantf("resolve_dispute", "dispute %s references missing task %s", disputeID, dispute.TaskID)
	}
	escrow, ok := e.escrows[dispute.TaskID]
	if !ok {
		return Outcome{}, invariantf("resolve_dispute", "task %s has no escrow", dispute.TaskID)
	}
	defendant, err := e.dir.Get(dispute.Defendant)
	if err != nil {
		return Outcome{}, invariantf("resolve_dispute", "defendant %s: %v", dispute.Defendant, err)
	}

	// A zero weighted tally with quorum met (all zero-stake voters)
	// defaults to rejection.
	approved := false
	total, err := ledger.Add(dispute.VotesFor, dispute.VotesAgainst)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve dispute: tally: %w", err)
	}
	if total > 0 {
		scaled, err := ledger.Mul(dispute.VotesFor, 100)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve dispute: tally: %w", err)
		}
		approved = scaled/total >= uint64(cfg.DisputeThreshold)
	}

	remaining := e.book.Balance(ledger.EscrowAccount(dispute.TaskID))
	var toWorker, toCreator uint64
	status := models.TaskStatusCancelled
	switch {
	case approved && dispute.Resolution == models.ResolutionComplete:
		toWorker = remaining
		status = models.TaskStatusCompleted
	case approved && dispute.Resolution == models.ResolutionSplit:
		toWorker = remaining / 2
		toCreator = remaining - toWorker
	default:
		// Refund requested and approved, or the dispute was rejected.
		toCreator = remaining
	}

	if err := e.payout(escrow, defendant.Authority, toWorker, "resolve_dispute"); err != nil {
		return Outcome{}, err
	}
	if err := e.payout(escrow, task.CreatorAuthority, toCreator, "resolve_dispute"); err != nil {
		return Outcome{}, err
	}

	escrow.IsClosed = true
	task.Status = status
	if status == models.TaskStatusCompleted && task.CompletedAt == 0 {
		task.CompletedAt = now
	}
	dispute.Status = models.DisputeStatusResolved
	dispute.ResolvedAt = now
	dispute.Approved = approved
	e.closeDisputeBookkeeping(dispute)

	e.emit(events.Event{
		Type:         events.TypeDisputeResolved,
		Timestamp:    now,
		TaskID:       dispute.TaskID,
		DisputeID:    disputeID,
		Agent:        resolverID,
		Counterparty: dispute.Defendant,
		Approved:     approved,
		VotesFor:     dispute.VotesFor,
		VotesAgainst: dispute.VotesAgainst,
		Amount:       toWorker + toCreator,
		Detail:       string(dispute.Resolution),
	})
	return Outcome{
		Approved:      approved,
		Resolution:    dispute.Resolution,
		PaidToWorker:  toWorker,
		PaidToCreator: toCreator,
		TaskStatus:    status,
	}, nil
}
