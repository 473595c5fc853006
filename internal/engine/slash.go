package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// slashAmount bounds the penalty by the smaller of the snapshotted and
// current stake, then takes the configured percentage.
func slashAmount(snapshot, current uint64, pct int) (uint64, error) {
	base := snapshot
	if current < base {
		base = current
	}
	scaled, err := ledger.Mul(base, uint64(pct))
	if err != nil {
		return 0, err
	}
	return scaled / config.PercentBase, nil
}

// checkSlashable verifies the shared slash preconditions: the dispute was
// resolved by vote and the slash window is still open. The window fails
// closed; once it elapses no slash of either kind can ever apply.
func checkSlashable(dispute *models.Dispute, cfg config.Params, now int64) error {
	if dispute.Status != models.DisputeStatusResolved {
		return ErrDisputeNotResolved
	}
	if now > dispute.ResolvedAt+cfg.SlashWindow {
		return ErrSlashWindowClosed
	}
	return nil
}

// ApplyDisputeSlash penalizes the defendant worker of a lost dispute. The
// worker lost exactly when the dispute was rejected, or approved with any
// resolution other than paying the worker out. One-shot per dispute.
func (e *Engine) ApplyDisputeSlash(disputeID string, cfg config.Params, now int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return 0, ErrDisputeNotFound
	}
	if err := checkSlashable(dispute, cfg, now); err != nil {
		return 0, err
	}
	if dispute.SlashApplied {
		return 0, ErrSlashAlreadyApplied
	}
	if dispute.Approved && dispute.Resolution == models.ResolutionComplete {
		return 0, fmt.Errorf("%w: worker prevailed", ErrSlashNotEligible)
	}
	defendant, err := e.dir.Get(dispute.Defendant)
	if err != nil {
		return 0, fmt.Errorf("apply dispute slash: %w", err)
	}

	amount, err := slashAmount(dispute.WorkerStakeAtDispute, defendant.Stake, cfg.SlashPercentage)
	if err != nil {
		return 0, fmt.Errorf("apply dispute slash: %w", err)
	}
	if amount > 0 {
		if err := e.dir.ApplySlash(dispute.Defendant, amount); err != nil {
			return 0, fmt.Errorf("apply dispute slash: %w", err)
		}
	}
	dispute.SlashApplied = true

	e.emit(events.Event{
		Type:      events.TypeSlashApplied,
		Timestamp: now,
		TaskID:    dispute.TaskID,
		DisputeID: disputeID,
		Agent:     dispute.Defendant,
		Amount:    amount,
		Detail:    "worker",
	})
	return amount, nil
}

// ApplyInitiatorSlash penalizes the accuser of a rejected dispute: a stake
// cut plus a fixed saturating reputation loss. One-shot per dispute, and
// validated against the initiator recorded at initiation so an unrelated
// party can never be slashed.
func (e *Engine) ApplyInitiatorSlash(disputeID string, cfg config.Params, now int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return 0, ErrDisputeNotFound
	}
	if err := checkSlashable(dispute, cfg, now); err != nil {
		return 0, err
	}
	if dispute.InitiatorSlashApplied {
		return 0, ErrSlashAlreadyApplied
	}
	if dispute.Approved {
		return 0, fmt.Errorf("%w: dispute was approved", ErrSlashNotEligible)
	}
	initiator, err := e.dir.Get(dispute.Initiator)
	if err != nil {
		return 0, fmt.Errorf("apply initiator slash: %w", err)
	}
	if initiator.Authority != dispute.InitiatorAuthority {
		return 0, invariantf("apply_initiator_slash", "initiator %s authority changed since initiation", dispute.Initiator)
	}

	// No initiation-time snapshot exists for the accuser; the current stake
	// bounds the penalty on this path.
	amount, err := slashAmount(initiator.Stake, initiator.Stake, cfg.SlashPercentage)
	if err != nil {
		return 0, fmt.Errorf("apply initiator slash: %w", err)
	}
	if amount > 0 {
		if err := e.dir.ApplySlash(dispute.Initiator, amount); err != nil {
			return 0, fmt.Errorf("apply initiator slash: %w", err)
		}
	}
	oldRep, newRep, err := e.dir.PenalizeReputation(dispute.Initiator, agentdir.ReputationSlashPenalty)
	if err != nil {
		return 0, invariantf("apply_initiator_slash", "reputation penalty for %s: %v", dispute.Initiator, err)
	}
	dispute.InitiatorSlashApplied = true

	e.emit(events.Event{
		Type:          events.TypeSlashApplied,
		Timestamp:     now,
		TaskID:        dispute.TaskID,
		DisputeID:     disputeID,
		Agent:         dispute.Initiator,
		Amount:        amount,
		OldReputation: oldRep,
		NewReputation: newRep,
		Detail:        "initiator",
	})
	return amount, nil
}
