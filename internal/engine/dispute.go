package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/pkg/models"
)

// DisputeRequest carries the terms for opening a dispute.
type DisputeRequest struct {
	DisputeID    string
	TaskID       string
	Initiator    string
	// Defendant names the disputed worker. Optional when the initiator is a
	// claim holder (they stand as their own worker party) or when the task
	// has exactly one claim.
	Defendant    string
	Resolution   models.ResolutionType
	EvidenceHash string
}

// InitiateDispute opens a dispute over an in-flight or completed task,
// suspending normal completion. The defendant's stake is snapshotted at
// initiation so withdrawing stake afterwards cannot shrink a later slash.
func (e *Engine) InitiateDispute(req DisputeRequest, cfg config.Params, now int64) (models.Dispute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.DisputeID == "" {
		return models.Dispute{}, fmt.Errorf("initiate dispute: dispute id is required")
	}
	if req.EvidenceHash == "" {
		return models.Dispute{}, ErrInvalidEvidence
	}
	if !req.Resolution.Valid() {
		return models.Dispute{}, ErrInvalidResolution
	}
	if _, exists := e.disputes[req.DisputeID]; exists {
		return models.Dispute{}, ErrDisputeExists
	}
	task, ok := e.tasks[req.TaskID]
	if !ok {
		return models.Dispute{}, ErrTaskNotFound
	}
	switch task.Status {
	case models.TaskStatusInProgress, models.TaskStatusPendingValidation, models.TaskStatusCompleted:
	default:
		return models.Dispute{}, fmt.Errorf("%w: status %s", ErrTaskNotDisputable, task.Status)
	}

	initiator, err := e.dir.Get(req.Initiator)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("initiate dispute: %w", err)
	}
	initiatorClaim := e.claims[req.TaskID][req.Initiator]
	isCreator := req.Initiator == task.Creator || initiator.Authority == task.CreatorAuthority
	holdsClaim := initiatorClaim != nil && (initiatorClaim.IsCompleted || initiatorClaim.Active(now))
	if !isCreator && !holdsClaim {
		return models.Dispute{}, ErrNotParticipant
	}
	if initiator.Stake < cfg.MinStakeForDispute {
		return models.Dispute{}, fmt.Errorf("initiate dispute: %w", agentdir.ErrInsufficientStake)
	}

	defendantID := req.Defendant
	if defendantID == "" {
		if holdsClaim && !isCreator {
			defendantID = req.Initiator
		} else if len(e.claims[req.TaskID]) == 1 {
			for w := range e.claims[req.TaskID] {
				defendantID = w
			}
		}
	}
	if defendantID == "" {
		return models.Dispute{}, ErrNoDefendant
	}
	if _, ok := e.claims[req.TaskID][defendantID]; !ok {
		return models.Dispute{}, fmt.Errorf("%w: %s holds no claim on task %s", ErrNoDefendant, defendantID, req.TaskID)
	}
	defendant, err := e.dir.Get(defendantID)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("initiate dispute: %w", err)
	}

	// Rate-limit counters commit here; nothing after this point can fail.
	if err := e.dir.CheckDisputeInitiation(req.Initiator, cfg.Limits(), now); err != nil {
		return models.Dispute{}, fmt.Errorf("initiate dispute: %w", err)
	}

	dispute := &models.Dispute{
		ID:                   req.DisputeID,
		TaskID:               req.TaskID,
		Initiator:            req.Initiator,
		InitiatorAuthority:   initiator.Authority,
		Defendant:            defendantID,
		EvidenceHash:         req.EvidenceHash,
		Resolution:           req.Resolution,
		Status:               models.DisputeStatusActive,
		CreatedAt:            now,
		VotingDeadline:       now + cfg.VotingPeriod,
		ExpiresAt:            now + cfg.MaxDisputeDuration,
		WorkerStakeAtDispute: defendant.Stake,
	}
	e.disputes[dispute.ID] = dispute
	task.Status = models.TaskStatusDisputed

	e.emit(events.Event{
		Type:         events.TypeDisputeInitiated,
		Timestamp:    now,
		TaskID:       req.TaskID,
		DisputeID:    dispute.ID,
		Agent:        req.Initiator,
		Counterparty: defendantID,
		Detail:       string(req.Resolution),
	})
	return *dispute, nil
}

// CancelDispute lets the initiator withdraw before any vote is cast. The
// task returns to the state it held before the dispute suspended it.
func (e *Engine) CancelDispute(disputeID, callerID string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return ErrDisputeNotFound
	}
	if dispute.Status != models.DisputeStatusActive {
		return ErrDisputeNotActive
	}
	if callerID != dispute.Initiator {
		return ErrNotInitiator
	}
	if dispute.TotalVoters != 0 {
		return ErrDisputeHasVotes
	}

	dispute.Status = models.DisputeStatusCancelled
	dispute.ResolvedAt = now
	if task, ok := e.tasks[dispute.TaskID]; ok && task.Status == models.TaskStatusDisputed {
		if task.CompletedAt > 0 {
			task.Status = models.TaskStatusCompleted
		} else {
			task.Status = models.TaskStatusInProgress
		}
	}

	e.emit(events.Event{
		Type:      events.TypeDisputeCancelled,
		Timestamp: now,
		TaskID:    dispute.TaskID,
		DisputeID: disputeID,
		Agent:     callerID,
	})
	return nil
}
