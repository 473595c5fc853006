package engine

import (
	"errors"
	"fmt"
)

// Validation and precondition errors. Callers may retry precondition
// failures once conditions change; validation failures are permanent for
// the given input.
var (
	// ErrTaskNotFound indicates the task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskExists indicates a task with that ID already exists.
	ErrTaskExists = errors.New("task already exists")
	// ErrInvalidTask indicates malformed task creation terms.
	ErrInvalidTask = errors.New("invalid task terms")
	// ErrTaskNotClaimable indicates the task is not open for claims.
	ErrTaskNotClaimable = errors.New("task is not claimable")
	// ErrTaskFull indicates the task is at its worker capacity.
	ErrTaskFull = errors.New("task has reached max workers")
	// ErrDeadlinePassed indicates the task deadline has passed.
	ErrDeadlinePassed = errors.New("task deadline has passed")
	// ErrDeadlineNotPassed indicates the task deadline has not passed yet.
	ErrDeadlineNotPassed = errors.New("task deadline has not passed")
	// ErrSelfDealing indicates an agent acting on both sides of a task.
	ErrSelfDealing = errors.New("creator cannot work their own task")
	// ErrDuplicateClaim indicates the worker already holds a claim here.
	ErrDuplicateClaim = errors.New("worker already claimed this task")
	// ErrInsufficientReputation indicates the worker is below the task floor.
	ErrInsufficientReputation = errors.New("reputation below task minimum")
	// ErrMissingCapabilities indicates the worker lacks required capabilities.
	ErrMissingCapabilities = errors.New("worker lacks required capabilities")

	// ErrClaimNotFound indicates no claim exists for that (task, worker).
	ErrClaimNotFound = errors.New("claim not found")
	// ErrClaimCompleted indicates the claim was already completed.
	ErrClaimCompleted = errors.New("claim already completed")
	// ErrClaimExpired indicates the claim's deadline has passed.
	ErrClaimExpired = errors.New("claim has expired")
	// ErrClaimNotExpired indicates the claim's deadline has not passed.
	ErrClaimNotExpired = errors.New("claim has not expired")
	// ErrTaskNotInProgress indicates the task is not in progress.
	ErrTaskNotInProgress = errors.New("task is not in progress")
	// ErrCompetitiveClosed indicates another completion already won the race.
	ErrCompetitiveClosed = errors.New("competitive task already completed")
	// ErrProofRejected indicates the completion proof failed verification.
	ErrProofRejected = errors.New("completion proof rejected")

	// ErrNotCreator indicates the caller is not the task creator.
	ErrNotCreator = errors.New("caller is not the task creator")
	// ErrCancelNotPermitted indicates the task cannot be cancelled now.
	ErrCancelNotPermitted = errors.New("task cannot be cancelled in its current state")
	// ErrEscrowClosed indicates the escrow is terminally closed.
	ErrEscrowClosed = errors.New("escrow is closed")

	// ErrDisputeNotFound indicates the dispute does not exist.
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeExists indicates a dispute with that ID already exists.
	ErrDisputeExists = errors.New("dispute already exists")
	// ErrDisputeNotActive indicates the dispute has left the active state.
	ErrDisputeNotActive = errors.New("dispute is not active")
	// ErrDisputeNotResolved indicates the dispute was not resolved by vote.
	ErrDisputeNotResolved = errors.New("dispute is not resolved")
	// ErrTaskNotDisputable indicates the task state does not admit disputes.
	ErrTaskNotDisputable = errors.New("task cannot be disputed in its current state")
	// ErrNotParticipant indicates the initiator is neither creator nor claimant.
	ErrNotParticipant = errors.New("initiator is not a task participant")
	// ErrInvalidEvidence indicates a missing evidence hash.
	ErrInvalidEvidence = errors.New("evidence hash is required")
	// ErrInvalidResolution indicates an unknown resolution type.
	ErrInvalidResolution = errors.New("invalid resolution type")
	// ErrNoDefendant indicates no disputed worker could be determined.
	ErrNoDefendant = errors.New("no defendant for dispute")

	// ErrNotArbiter indicates the voter lacks the arbiter capability.
	ErrNotArbiter = errors.New("agent is not an arbiter")
	// ErrZeroReputation indicates the arbiter has no reputation to vote with.
	ErrZeroReputation = errors.New("arbiter has zero reputation")
	// ErrParticipantVote indicates a dispute party attempted to vote.
	ErrParticipantVote = errors.New("dispute participants cannot vote")
	// ErrAlreadyVoted indicates a second ballot from the same identity or
	// controlling credential.
	ErrAlreadyVoted = errors.New("already voted on this dispute")
	// ErrVotingClosed indicates the voting window has ended.
	ErrVotingClosed = errors.New("voting window has closed")
	// ErrVotingOpen indicates the voting window has not ended yet.
	ErrVotingOpen = errors.New("voting window is still open")
	// ErrQuorumNotMet indicates too few distinct voters to resolve.
	ErrQuorumNotMet = errors.New("voter quorum not met")
	// ErrResolverIsInitiator indicates the initiator attempting resolution.
	ErrResolverIsInitiator = errors.New("initiator cannot resolve their own dispute")
	// ErrDisputeNotExpirable indicates neither expiry condition holds.
	ErrDisputeNotExpirable = errors.New("dispute cannot be expired yet")
	// ErrDisputeHasVotes indicates cancellation after voting began.
	ErrDisputeHasVotes = errors.New("dispute already has votes")
	// ErrNotInitiator indicates the caller did not open the dispute.
	ErrNotInitiator = errors.New("caller is not the dispute initiator")

	// ErrSlashWindowClosed indicates the slash window has elapsed.
	ErrSlashWindowClosed = errors.New("slash window has closed")
	// ErrSlashAlreadyApplied indicates a second slash of the same kind.
	ErrSlashAlreadyApplied = errors.New("slash already applied")
	// ErrSlashNotEligible indicates the outcome does not permit this slash.
	ErrSlashNotEligible = errors.New("dispute outcome does not permit slash")
)

// InvariantError reports a state-machine inconsistency. Ordinary validation
// and precondition failures never produce this class; reaching it means the
// persisted state itself would become inconsistent.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
