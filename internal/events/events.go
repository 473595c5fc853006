// Package events delivers marketplace notifications to registered observers.
// Every engine mutation emits exactly one event carrying enough data for an
// off-chain observer to reconstruct state without replaying history.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of marketplace event.
type Type string

const (
	// TypeTaskCreated is emitted when a task and its escrow are created.
	TypeTaskCreated Type = "task_created"
	// TypeTaskClaimed is emitted when a worker claims a task.
	TypeTaskClaimed Type = "task_claimed"
	// TypeTaskCompleted is emitted for each completion of a task.
	TypeTaskCompleted Type = "task_completed"
	// TypeTaskCancelled is emitted when a task is cancelled and refunded.
	TypeTaskCancelled Type = "task_cancelled"
	// TypeClaimExpired is emitted when a stale claim is cleaned up.
	TypeClaimExpired Type = "claim_expired"
	// TypeDisputeInitiated is emitted when a dispute opens.
	TypeDisputeInitiated Type = "dispute_initiated"
	// TypeDisputeVoteCast is emitted for each arbiter ballot.
	TypeDisputeVoteCast Type = "dispute_vote_cast"
	// TypeDisputeResolved is emitted when a dispute resolves by vote.
	TypeDisputeResolved Type = "dispute_resolved"
	// TypeDisputeExpired is emitted on the fair-refund fallback.
	TypeDisputeExpired Type = "dispute_expired"
	// TypeDisputeCancelled is emitted on a pre-vote cancellation.
	TypeDisputeCancelled Type = "dispute_cancelled"
	// TypeSlashApplied is emitted when a stake penalty lands.
	TypeSlashApplied Type = "slash_applied"
	// TypeReputationChanged is emitted whenever reputation moves.
	TypeReputationChanged Type = "reputation_changed"
	// TypeRewardDistributed is emitted for each escrow payout.
	TypeRewardDistributed Type = "reward_distributed"
)

// Event is a single marketplace notification. Fields not relevant to the
// event type are left at their zero values.
type Event struct {
	// ID is a unique event identifier.
	ID string
	// Type is the kind of event.
	Type Type
	// Timestamp is the operation's logical time (caller-supplied "now").
	Timestamp int64
	// EmittedAt is the wall-clock emission time.
	EmittedAt time.Time

	// TaskID is the task involved, if any.
	TaskID string
	// DisputeID is the dispute involved, if any.
	DisputeID string
	// Agent is the primary agent involved (worker, voter, slashed party).
	Agent string
	// Counterparty is the secondary party (creator, defendant, recipient).
	Counterparty string

	// Amount is the value moved, if any.
	Amount uint64
	// Approved carries a ballot direction or resolution outcome.
	Approved bool
	// VotesFor and VotesAgainst carry the weighted tally after a vote.
	VotesFor     uint64
	VotesAgainst uint64
	// OldReputation and NewReputation carry a reputation transition.
	OldReputation int
	NewReputation int
	// Detail carries a short free-form note (resolution type, reason).
	Detail string
}

// Handler is a function that receives marketplace events.
type Handler func(Event)

// Bus fan-outs events to registered handlers. Handlers are invoked
// synchronously in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an event bus with no handlers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish assigns the event an ID and delivers it to every handler.
func (b *Bus) Publish(ev Event) {
	ev.ID = uuid.New().String()
	ev.EmittedAt = time.Now()

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
