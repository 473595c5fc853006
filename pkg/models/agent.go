package models

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusInactive indicates the agent is registered but not available.
	AgentStatusInactive AgentStatus = "inactive"
	// AgentStatusActive indicates the agent may claim tasks and vote.
	AgentStatusActive AgentStatus = "active"
	// AgentStatusBusy indicates the agent is at capacity.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusSuspended indicates the agent is barred from participation.
	AgentStatusSuspended AgentStatus = "suspended"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusInactive, AgentStatusActive, AgentStatusBusy, AgentStatusSuspended:
		return true
	default:
		return false
	}
}

// Agent capability flags (bitmask).
const (
	CapCompute    uint64 = 1 << 0 // general computation
	CapInference  uint64 = 1 << 1 // ML inference
	CapStorage    uint64 = 1 << 2 // data storage
	CapNetwork    uint64 = 1 << 3 // network relay
	CapSensor     uint64 = 1 << 4 // sensor data collection
	CapActuator   uint64 = 1 << 5 // physical actuation
	CapCoordinate uint64 = 1 << 6 // task coordination
	CapArbiter    uint64 = 1 << 7 // dispute resolution
	CapValidator  uint64 = 1 << 8 // result validation
	CapAggregator uint64 = 1 << 9 // data aggregation
)

// Reputation bounds and increments.
const (
	// InitialReputation is assigned at registration.
	InitialReputation = 5000
	// MaxReputation caps any reputation gain.
	MaxReputation = 10000
	// ReputationPerCompletion is credited for each successful completion.
	ReputationPerCompletion = 100
)

// Agent is a registered marketplace identity: a creator, worker, or arbiter.
// The engines mutate reputation, stake, and counters only through the
// agentdir entry points.
type Agent struct {
	// ID is the unique agent identifier.
	ID string `json:"id"`
	// Authority is the controlling credential. One authority may control
	// several agent identities.
	Authority string `json:"authority"`
	// Capabilities is the capability bitmask.
	Capabilities uint64 `json:"capabilities"`
	// Status is the current agent state.
	Status AgentStatus `json:"status"`
	// Reputation is the score in [0, 10000].
	Reputation int `json:"reputation"`
	// Stake is the value the agent has bonded.
	Stake uint64 `json:"stake"`
	// ActiveTasks counts claims currently held, capped at 10.
	ActiveTasks int `json:"active_tasks"`
	// TasksCompleted counts lifetime completions.
	TasksCompleted uint64 `json:"tasks_completed"`
	// TotalEarned is the lifetime reward sum.
	TotalEarned uint64 `json:"total_earned"`
	// RegisteredAt is the registration timestamp.
	RegisteredAt int64 `json:"registered_at"`
	// LastActive is the last activity timestamp, used for reputation decay.
	LastActive int64 `json:"last_active"`

	// Rate limiting bookkeeping.
	LastTaskCreated      int64 `json:"last_task_created"`
	LastDisputeInitiated int64 `json:"last_dispute_initiated"`
	TaskCount24h         int   `json:"task_count_24h"`
	DisputeCount24h      int   `json:"dispute_count_24h"`
	RateLimitWindowStart int64 `json:"rate_limit_window_start"`

	// ActiveDisputeVotes counts votes pending dispute resolution.
	ActiveDisputeVotes int `json:"active_dispute_votes"`
	// LastVoteAt is the timestamp of the most recent dispute vote.
	LastVoteAt int64 `json:"last_vote_at"`
}

// HasCapabilities reports whether the agent satisfies the required bitmask.
func (a *Agent) HasCapabilities(required uint64) bool {
	return a.Capabilities&required == required
}

// IsArbiter reports whether the agent holds the arbiter capability flag.
func (a *Agent) IsArbiter() bool {
	return a.Capabilities&CapArbiter != 0
}
