package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// voteStakeCapMultiple bounds how much raw stake a single arbiter can bring
// to bear, expressed as a multiple of the minimum arbiter stake.
const voteStakeCapMultiple = 10

// voteWeight computes an arbiter's ballot weight: stake capped at ten times
// the minimum arbiter stake, scaled by reputation, floored at 1 so any
// staked arbiter always moves the tally.
func voteWeight(stake uint64, reputation int, minArbiterStake uint64) (uint64, error) {
	if stake == 0 {
		return 0, nil
	}
	capped := stake
	if minArbiterStake > 0 {
		limit, err := ledger.Mul(minArbiterStake, voteStakeCapMultiple)
		if err != nil {
			return 0, err
		}
		if capped > limit {
			capped = limit
		}
	}
	scaled, err := ledger.Mul(capped, uint64(reputation))
	if err != nil {
		return 0, err
	}
	weight := scaled / models.MaxReputation
	if weight == 0 {
		weight = 1
	}
	return weight, nil
}

// VoteDispute casts one arbiter's ballot. One ballot per arbiter identity
// and per controlling credential; votes close strictly at the deadline.
func (e *Engine) VoteDispute(disputeID, arbiterID string, approve bool, cfg config.Params, now int64) (models.Dispute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dispute, ok := e.disputes[disputeID]
	if !ok {
		return models.Dispute{}, ErrDisputeNotFound
	}
	if dispute.Status != models.DisputeStatusActive {
		return models.Dispute{}, ErrDisputeNotActive
	}
	if now >= dispute.VotingDeadline {
		return models.Dispute{}, ErrVotingClosed
	}

	arbiter, err := e.dir.Get(arbiterID)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("vote dispute: %w", err)
	}
	if arbiter.Status != models.AgentStatusActive {
		return models.Dispute{}, fmt.Errorf("vote dispute %s: %w", arbiterID, agentdir.ErrAgentNotActive)
	}
	if !arbiter.IsArbiter() {
		return models.Dispute{}, ErrNotArbiter
	}
	if arbiter.Stake < cfg.MinArbiterStake {
		return models.Dispute{}, fmt.Errorf("vote dispute: %w", agentdir.ErrInsufficientStake)
	}
	if arbiter.Reputation <= 0 {
		return models.Dispute{}, ErrZeroReputation
	}

	task := e.tasks[dispute.TaskID]
	if arbiterID == dispute.Initiator || arbiterID == dispute.Defendant ||
		(task != nil && arbiterID == task.Creator) {
		return models.Dispute{}, ErrParticipantVote
	}
	if arbiter.Authority == dispute.InitiatorAuthority ||
		(task != nil && arbiter.Authority == task.CreatorAuthority) {
		return models.Dispute{}, ErrParticipantVote
	}
	if defendant, err := e.dir.Get(dispute.Defendant); err == nil && arbiter.Authority == defendant.Authority {
		return models.Dispute{}, ErrParticipantVote
	}
	if _, voted := e.votes[disputeID][arbiterID]; voted {
		return models.Dispute{}, ErrAlreadyVoted
	}
	if e.voteAuthorities[disputeID][arbiter.Authority] {
		return models.Dispute{}, ErrAlreadyVoted
	}

	weight, err := voteWeight(arbiter.Stake, arbiter.Reputation, cfg.MinArbiterStake)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("vote dispute: %w", err)
	}
	if approve {
		tally, err := ledger.Add(dispute.VotesFor, weight)
		if err != nil {
			return models.Dispute{}, fmt.Errorf("vote dispute: %w", err)
		}
		dispute.VotesFor = tally
	} else {
		tally, err := ledger.Add(dispute.VotesAgainst, weight)
		if err != nil {
			return models.Dispute{}, fmt.Errorf("vote dispute: %w", err)
		}
		dispute.VotesAgainst = tally
	}
	dispute.TotalVoters++

	if e.votes[disputeID] == nil {
		e.votes[disputeID] = make(map[string]*models.DisputeVote)
	}
	if e.voteAuthorities[disputeID] == nil {
		e.voteAuthorities[disputeID] = make(map[string]bool)
	}
	e.votes[disputeID][arbiterID] = &models.DisputeVote{
		DisputeID:   disputeID,
		Voter:       arbiterID,
		Authority:   arbiter.Authority,
		Approved:    approve,
		VotedAt:     now,
		StakeAtVote: weight,
	}
	e.voteAuthorities[disputeID][arbiter.Authority] = true
	if err := e.dir.IncrementDisputeVotes(arbiterID, now); err != nil {
		return models.Dispute{}, invariantf("vote_dispute", "record vote activity for %s: %v", arbiterID, err)
	}

	e.emit(events.Event{
		Type:         events.TypeDisputeVoteCast,
		Timestamp:    now,
		TaskID:       dispute.TaskID,
		DisputeID:    disputeID,
		Agent:        arbiterID,
		Approved:     approve,
		Amount:       weight,
		VotesFor:     dispute.VotesFor,
		VotesAgainst: dispute.VotesAgainst,
	})
	return *dispute, nil
}
