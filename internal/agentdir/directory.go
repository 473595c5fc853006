// Package agentdir owns the worker/arbiter identity records: reputation,
// stake, and activity counters. The task and dispute engines never touch
// agent fields directly; they go through the mutation entry points here.
package agentdir

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// Common errors for agent directory operations.
var (
	// ErrAgentNotFound indicates the requested agent does not exist.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentAlreadyExists indicates an agent with that ID already exists.
	ErrAgentAlreadyExists = errors.New("agent already registered")
	// ErrAgentNotActive indicates the agent is not in the active state.
	ErrAgentNotActive = errors.New("agent is not active")
	// ErrMaxActiveTasks indicates the agent holds the maximum number of claims.
	ErrMaxActiveTasks = errors.New("agent has reached maximum active tasks")
	// ErrInsufficientStake indicates a stake withdrawal or bond below balance.
	ErrInsufficientStake = errors.New("insufficient stake")
)

// MaxActiveTasks caps concurrent claims per agent.
const MaxActiveTasks = 10

// Reputation decay: agents lose DecayPerPeriod points per full idle period
// since their last activity, never dropping below MinRetainedReputation
// through decay alone.
const (
	DecayPeriod            = 30 * 24 * 60 * 60 // 30 days, in seconds
	DecayPerPeriod         = 50
	MinRetainedReputation  = 100
	ReputationSlashPenalty = 500
)

// Directory holds all registered agents and mediates every mutation of
// reputation, stake, and activity counters.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
	book   *ledger.Book
}

// NewDirectory creates an empty directory backed by the given ledger book.
func NewDirectory(book *ledger.Book) *Directory {
	return &Directory{
		agents: make(map[string]*models.Agent),
		book:   book,
	}
}

// Register adds a new agent. Identity creation is an external concern; this
// minimal entry point exists so the engines, CLI, and tests have agents to
// operate on.
func (d *Directory) Register(id, authority string, capabilities uint64, now int64) (*models.Agent, error) {
	if id == "" || authority == "" {
		return nil, fmt.Errorf("register agent: id and authority are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[id]; ok {
		return nil, ErrAgentAlreadyExists
	}
	agent := &models.Agent{
		ID:           id,
		Authority:    authority,
		Capabilities: capabilities,
		Status:       models.AgentStatusActive,
		Reputation:   models.InitialReputation,
		RegisteredAt: now,
		LastActive:   now,
	}
	d.agents[id] = agent
	return agent, nil
}

// Get returns the agent with the given ID.
func (d *Directory) Get(id string) (*models.Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agent, ok := d.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// All returns every registered agent.
func (d *Directory) All() []*models.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.Agent, 0, len(d.agents))
	for _, a := range d.agents {
		out = append(out, a)
	}
	return out
}

// Restore inserts a persisted agent, overwriting any in-memory copy. Used by
// the state store only.
func (d *Directory) Restore(agent *models.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agent.ID] = agent
}

// SetStatus updates an agent's status.
func (d *Directory) SetStatus(id string, status models.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status: unknown status %q", status)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.Status = status
	return nil
}

// IncrementActiveTasks bumps the agent's claim counter, enforcing the cap.
func (d *Directory) IncrementActiveTasks(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if agent.ActiveTasks >= MaxActiveTasks {
		return ErrMaxActiveTasks
	}
	agent.ActiveTasks++
	return nil
}

// DecrementActiveTasks lowers the agent's claim counter, flooring at zero.
func (d *Directory) DecrementActiveTasks(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if agent.ActiveTasks > 0 {
		agent.ActiveTasks--
	}
	return nil
}

// CreditReward records a successful completion: lifetime counters, earnings,
// the saturating reputation gain, and the claim-counter decrement.
// Returns the reputation before and after for event emission.
func (d *Directory) CreditReward(id string, reward uint64, now int64) (oldRep, newRep int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return 0, 0, ErrAgentNotFound
	}
	earned, err := ledger.Add(agent.TotalEarned, reward)
	if err != nil {
		return 0, 0, fmt.Errorf("credit reward: %w", err)
	}
	agent.TasksCompleted++
	agent.TotalEarned = earned
	if agent.ActiveTasks > 0 {
		agent.ActiveTasks--
	}
	agent.LastActive = now
	oldRep = agent.Reputation
	// Saturating gain is intentional policy, never an error.
	rep := agent.Reputation + models.ReputationPerCompletion
	if rep > models.MaxReputation {
		rep = models.MaxReputation
	}
	agent.Reputation = rep
	return oldRep, agent.Reputation, nil
}

// ApplyDecay applies passive reputation decay proportional to full idle
// periods elapsed since the agent's last activity. Decay never reduces
// reputation below MinRetainedReputation; reputation already below the floor
// is left untouched. Returns the reputation before and after.
func (d *Directory) ApplyDecay(id string, now int64) (oldRep, newRep int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return 0, 0, ErrAgentNotFound
	}
	oldRep = agent.Reputation
	if agent.LastActive <= 0 || now <= agent.LastActive {
		return oldRep, oldRep, nil
	}
	periods := (now - agent.LastActive) / DecayPeriod
	if periods == 0 || agent.Reputation <= MinRetainedReputation {
		return oldRep, oldRep, nil
	}
	loss := int(periods) * DecayPerPeriod
	rep := agent.Reputation - loss
	if rep < MinRetainedReputation {
		rep = MinRetainedReputation
	}
	agent.Reputation = rep
	return oldRep, rep, nil
}

// PenalizeReputation applies a fixed saturating reputation loss.
// Returns the reputation before and after.
func (d *Directory) PenalizeReputation(id string, loss int) (oldRep, newRep int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return 0, 0, ErrAgentNotFound
	}
	oldRep = agent.Reputation
	rep := agent.Reputation - loss
	if rep < 0 {
		rep = 0
	}
	agent.Reputation = rep
	return oldRep, rep, nil
}

// DepositStake moves value from the agent's spendable account into the stake
// pool and records it on the agent.
func (d *Directory) DepositStake(id string, amount uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	next, err := ledger.Add(agent.Stake, amount)
	if err != nil {
		return fmt.Errorf("deposit stake: %w", err)
	}
	if err := d.book.Transfer(ledger.AgentAccount(agent.Authority), ledger.StakePoolAccount, amount); err != nil {
		return fmt.Errorf("deposit stake: %w", err)
	}
	agent.Stake = next
	return nil
}

// WithdrawStake moves value from the stake pool back to the agent's
// spendable account.
func (d *Directory) WithdrawStake(id string, amount uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if amount > agent.Stake {
		return ErrInsufficientStake
	}
	if err := d.book.Transfer(ledger.StakePoolAccount, ledger.AgentAccount(agent.Authority), amount); err != nil {
		return fmt.Errorf("withdraw stake: %w", err)
	}
	agent.Stake -= amount
	return nil
}

// ApplySlash removes amount from the agent's stake and forwards it to the
// treasury. The caller is responsible for bounding amount by the snapshotted
// and current stake.
func (d *Directory) ApplySlash(id string, amount uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if amount > agent.Stake {
		return ErrInsufficientStake
	}
	if err := d.book.Transfer(ledger.StakePoolAccount, ledger.TreasuryAccount, amount); err != nil {
		return fmt.Errorf("apply slash: %w", err)
	}
	agent.Stake -= amount
	return nil
}

// IncrementDisputeVotes bumps the agent's pending-vote counter.
func (d *Directory) IncrementDisputeVotes(id string, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	agent.ActiveDisputeVotes++
	agent.LastVoteAt = now
	return nil
}

// DecrementDisputeVotes lowers the agent's pending-vote counter, flooring at
// zero.
func (d *Directory) DecrementDisputeVotes(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if agent.ActiveDisputeVotes > 0 {
		agent.ActiveDisputeVotes--
	}
	return nil
}
