package models

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusOpen indicates the task accepts claims and has no workers yet.
	TaskStatusOpen TaskStatus = "open"
	// TaskStatusInProgress indicates at least one worker holds a claim.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusPendingValidation indicates a completion awaits validation.
	TaskStatusPendingValidation TaskStatus = "pending_validation"
	// TaskStatusCompleted indicates the task reached its required completions.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCancelled indicates the task was cancelled and refunded.
	TaskStatusCancelled TaskStatus = "cancelled"
	// TaskStatusDisputed indicates an active dispute suspends normal progress.
	TaskStatusDisputed TaskStatus = "disputed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusPendingValidation,
		TaskStatusCompleted, TaskStatusCancelled, TaskStatusDisputed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no ordinary operation may mutate the task further.
// Disputed tasks are not terminal: they resolve or expire through the dispute
// engine, and Completed tasks may still be disputed after the fact.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskType represents the fulfillment mode of a task.
type TaskType string

const (
	// TaskTypeExclusive means a single worker fulfills the whole task.
	TaskTypeExclusive TaskType = "exclusive"
	// TaskTypeCollaborative means multiple completions share the reward.
	TaskTypeCollaborative TaskType = "collaborative"
	// TaskTypeCompetitive means workers race and only the first completion pays.
	TaskTypeCompetitive TaskType = "competitive"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeExclusive, TaskTypeCollaborative, TaskTypeCompetitive:
		return true
	default:
		return false
	}
}

// Task represents a unit of requested work backed by an escrow.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Creator is the agent ID of the party that posted the task.
	Creator string `json:"creator"`
	// CreatorAuthority is the controlling credential behind the creator.
	CreatorAuthority string `json:"creator_authority"`
	// Description is the task description or instruction hash.
	Description string `json:"description"`
	// ConstraintHash commits to the expected output of a private task.
	// Empty for public tasks.
	ConstraintHash string `json:"constraint_hash,omitempty"`
	// RequiredCapabilities is the bitmask workers must satisfy.
	RequiredCapabilities uint64 `json:"required_capabilities"`
	// MinReputation is the worker eligibility floor.
	MinReputation int `json:"min_reputation"`
	// RewardAmount is the total value offered.
	RewardAmount uint64 `json:"reward_amount"`
	// ProtocolFeeBps is the fee rate locked at creation time.
	ProtocolFeeBps uint16 `json:"protocol_fee_bps"`
	// MaxWorkers is the maximum concurrent workers allowed.
	MaxWorkers int `json:"max_workers"`
	// CurrentWorkers is the current worker count.
	CurrentWorkers int `json:"current_workers"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Type is the fulfillment mode.
	Type TaskType `json:"type"`
	// CreatedAt is the creation timestamp (unix seconds).
	CreatedAt int64 `json:"created_at"`
	// Deadline is the completion deadline (0 = none).
	Deadline int64 `json:"deadline"`
	// CompletedAt is when the task completed (0 if not completed).
	CompletedAt int64 `json:"completed_at"`
	// Completions counts fulfilled completions so far.
	Completions int `json:"completions"`
	// RequiredCompletions is the number of completions that finish the task.
	RequiredCompletions int `json:"required_completions"`
	// Result is the result data of the final completion.
	Result string `json:"result,omitempty"`
}

// TaskEscrow is the value reservoir backing exactly one task.
type TaskEscrow struct {
	// TaskID identifies the task this escrow belongs to.
	TaskID string `json:"task_id"`
	// Amount is the total value deposited.
	Amount uint64 `json:"amount"`
	// Distributed is the cumulative value paid out to parties so far.
	// Protocol fees are not counted here; they are tracked by the ledger.
	Distributed uint64 `json:"distributed"`
	// IsClosed marks the escrow terminally closed.
	IsClosed bool `json:"is_closed"`
}

// TaskClaim records one worker's time-bounded attempt at one task.
type TaskClaim struct {
	// TaskID is the claimed task.
	TaskID string `json:"task_id"`
	// Worker is the claiming agent's ID.
	Worker string `json:"worker"`
	// ClaimedAt is the claim timestamp.
	ClaimedAt int64 `json:"claimed_at"`
	// ExpiresAt is the claim deadline.
	ExpiresAt int64 `json:"expires_at"`
	// CompletedAt is the completion timestamp (0 if incomplete).
	CompletedAt int64 `json:"completed_at"`
	// ProofHash is the proof-of-work hash submitted on completion.
	ProofHash string `json:"proof_hash,omitempty"`
	// Result is the result data submitted on completion.
	Result string `json:"result,omitempty"`
	// IsCompleted marks the claim fulfilled. Completed claims are immutable.
	IsCompleted bool `json:"is_completed"`
	// RewardPaid is the reward the worker received.
	RewardPaid uint64 `json:"reward_paid"`
}

// Active reports whether the claim still occupies a worker slot at the given
// time: not completed and not past its expiry.
func (c *TaskClaim) Active(now int64) bool {
	if c.IsCompleted {
		return false
	}
	return c.ExpiresAt == 0 || now <= c.ExpiresAt
}
