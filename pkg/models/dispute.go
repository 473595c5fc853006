package models

// DisputeStatus represents the current state of a dispute.
type DisputeStatus string

const (
	// DisputeStatusActive indicates voting is open or resolution is pending.
	DisputeStatusActive DisputeStatus = "active"
	// DisputeStatusResolved indicates arbiters decided the outcome.
	DisputeStatusResolved DisputeStatus = "resolved"
	// DisputeStatusExpired indicates the fair-refund fallback was applied.
	DisputeStatusExpired DisputeStatus = "expired"
	// DisputeStatusCancelled indicates the initiator withdrew before any vote.
	DisputeStatusCancelled DisputeStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeStatusActive, DisputeStatusResolved, DisputeStatusExpired, DisputeStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once the dispute is immutable.
func (s DisputeStatus) Terminal() bool {
	return s != DisputeStatusActive
}

// ResolutionType is the outcome the dispute initiator requests.
type ResolutionType string

const (
	// ResolutionRefund returns the remaining escrow to the creator.
	ResolutionRefund ResolutionType = "refund"
	// ResolutionComplete pays the remaining escrow to the worker.
	ResolutionComplete ResolutionType = "complete"
	// ResolutionSplit divides the remaining escrow between both parties.
	ResolutionSplit ResolutionType = "split"
)

// Valid returns true if the resolution type is a known value.
func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionRefund, ResolutionComplete, ResolutionSplit:
		return true
	default:
		return false
	}
}

// Dispute is a structured challenge over one task's outcome.
type Dispute struct {
	// ID is the unique dispute identifier.
	ID string `json:"id"`
	// TaskID is the disputed task.
	TaskID string `json:"task_id"`
	// Initiator is the agent that opened the dispute.
	Initiator string `json:"initiator"`
	// InitiatorAuthority is the credential behind the initiator, recorded so
	// the initiator cannot resolve their own dispute through another agent.
	InitiatorAuthority string `json:"initiator_authority"`
	// Defendant is the disputed worker.
	Defendant string `json:"defendant"`
	// EvidenceHash commits to the initiator's evidence.
	EvidenceHash string `json:"evidence_hash"`
	// Resolution is the outcome the initiator requests.
	Resolution ResolutionType `json:"resolution"`
	// Status is the dispute state.
	Status DisputeStatus `json:"status"`
	// CreatedAt is the initiation timestamp.
	CreatedAt int64 `json:"created_at"`
	// ResolvedAt is set when the dispute leaves the active state.
	ResolvedAt int64 `json:"resolved_at"`
	// Approved records the voting outcome at resolution time. Slashing reads
	// this recorded outcome rather than re-deriving it, so later threshold
	// changes cannot alter who lost.
	Approved bool `json:"approved"`
	// VotesFor is the weighted approval tally.
	VotesFor uint64 `json:"votes_for"`
	// VotesAgainst is the weighted rejection tally.
	VotesAgainst uint64 `json:"votes_against"`
	// TotalVoters is the raw count of distinct arbiters who voted.
	TotalVoters int `json:"total_voters"`
	// VotingDeadline closes the voting window.
	VotingDeadline int64 `json:"voting_deadline"`
	// ExpiresAt is the outer timeout after which anyone may expire the dispute.
	ExpiresAt int64 `json:"expires_at"`
	// WorkerStakeAtDispute snapshots the defendant's stake at initiation to
	// prevent withdraw-then-dispute evasion.
	WorkerStakeAtDispute uint64 `json:"worker_stake_at_dispute"`
	// SlashApplied marks the one-shot worker slash.
	SlashApplied bool `json:"slash_applied"`
	// InitiatorSlashApplied marks the one-shot initiator slash.
	InitiatorSlashApplied bool `json:"initiator_slash_applied"`
}

// DisputeVote is one arbiter's ballot on one dispute.
type DisputeVote struct {
	// DisputeID is the dispute voted on.
	DisputeID string `json:"dispute_id"`
	// Voter is the arbiter agent's ID.
	Voter string `json:"voter"`
	// Authority is the credential behind the voter; one credential may vote
	// at most once per dispute regardless of registered identities.
	Authority string `json:"authority"`
	// Approved is the ballot direction.
	Approved bool `json:"approved"`
	// VotedAt is the cast timestamp.
	VotedAt int64 `json:"voted_at"`
	// StakeAtVote is the weight recorded at cast time, never recomputed.
	StakeAtVote uint64 `json:"stake_at_vote"`
}
