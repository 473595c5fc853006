// Package engine implements the task, escrow, dispute, and slashing state
// machines. Every operation is a single atomic step: all preconditions are
// validated against current state before any mutation, and a failed
// operation leaves no observable change. Time never comes from the clock;
// callers supply "now" and timeouts are plain timestamp comparisons.
package engine

import (
	"sync"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/internal/proof"
	"github.com/kessler-labs/agora/pkg/models"
)

// Engine owns all marketplace entities and serializes every operation under
// one mutex. External callers may invoke any eligible operation at any time;
// two racing operations are ordered by whichever acquires the lock first,
// and the loser fails its precondition checks cleanly.
type Engine struct {
	mu sync.Mutex

	tasks   map[string]*models.Task
	escrows map[string]*models.TaskEscrow
	// claims is keyed task ID, then worker ID.
	claims   map[string]map[string]*models.TaskClaim
	disputes map[string]*models.Dispute
	// votes is keyed dispute ID, then voter ID.
	votes map[string]map[string]*models.DisputeVote
	// voteAuthorities records which controlling credentials have voted per
	// dispute, closing the many-identities-one-credential loophole.
	voteAuthorities map[string]map[string]bool

	dir      *agentdir.Directory
	book     *ledger.Book
	bus      *events.Bus
	verifier proof.Verifier
}

// New creates an engine over the given agent directory, ledger book, event
// bus, and proof oracle.
func New(dir *agentdir.Directory, book *ledger.Book, bus *events.Bus, verifier proof.Verifier) *Engine {
	return &Engine{
		tasks:           make(map[string]*models.Task),
		escrows:         make(map[string]*models.TaskEscrow),
		claims:          make(map[string]map[string]*models.TaskClaim),
		disputes:        make(map[string]*models.Dispute),
		votes:           make(map[string]map[string]*models.DisputeVote),
		voteAuthorities: make(map[string]map[string]bool),
		dir:             dir,
		book:            book,
		bus:             bus,
		verifier:        verifier,
	}
}

// Task returns a copy of the task with the given ID.
func (e *Engine) Task(id string) (models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// Tasks returns copies of every task.
func (e *Engine) Tasks() []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, *t)
	}
	return out
}

// Escrow returns a copy of the escrow backing the given task.
func (e *Engine) Escrow(taskID string) (models.TaskEscrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	es, ok := e.escrows[taskID]
	if !ok {
		return models.TaskEscrow{}, ErrTaskNotFound
	}
	return *es, nil
}

// Claim returns a copy of the worker's claim on the given task.
func (e *Engine) Claim(taskID, worker string) (models.TaskClaim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.claims[taskID][worker]
	if !ok {
		return models.TaskClaim{}, ErrClaimNotFound
	}
	return *c, nil
}

// Claims returns copies of every claim on the given task.
func (e *Engine) Claims(taskID string) []models.TaskClaim {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.TaskClaim, 0, len(e.claims[taskID]))
	for _, c := range e.claims[taskID] {
		out = append(out, *c)
	}
	return out
}

// Dispute returns a copy of the dispute with the given ID.
func (e *Engine) Dispute(id string) (models.Dispute, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.disputes[id]
	if !ok {
		return models.Dispute{}, ErrDisputeNotFound
	}
	return *d, nil
}

// Disputes returns copies of every dispute.
func (e *Engine) Disputes() []models.Dispute {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Dispute, 0, len(e.disputes))
	for _, d := range e.disputes {
		out = append(out, *d)
	}
	return out
}

// Votes returns copies of every ballot cast on the given dispute.
func (e *Engine) Votes(disputeID string) []models.DisputeVote {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.DisputeVote, 0, len(e.votes[disputeID]))
	for _, v := range e.votes[disputeID] {
		out = append(out, *v)
	}
	return out
}

// RestoreTask inserts a persisted task and escrow. Used by the state store.
func (e *Engine) RestoreTask(task *models.Task, escrow *models.TaskEscrow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks[task.ID] = task
	if escrow != nil {
		e.escrows[task.ID] = escrow
	}
}

// RestoreClaim inserts a persisted claim. Used by the state store.
func (e *Engine) RestoreClaim(claim *models.TaskClaim) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claims[claim.TaskID] == nil {
		e.claims[claim.TaskID] = make(map[string]*models.TaskClaim)
	}
	e.claims[claim.TaskID][claim.Worker] = claim
}

// RestoreDispute inserts a persisted dispute and its ballots. Voter
// authorities are re-derived from the ballots. Used by the state store.
func (e *Engine) RestoreDispute(dispute *models.Dispute, ballots []*models.DisputeVote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disputes[dispute.ID] = dispute
	if len(ballots) == 0 {
		return
	}
	byVoter := make(map[string]*models.DisputeVote, len(ballots))
	byAuth := make(map[string]bool, len(ballots))
	for _, v := range ballots {
		byVoter[v.Voter] = v
		byAuth[v.Authority] = true
	}
	e.votes[dispute.ID] = byVoter
	e.voteAuthorities[dispute.ID] = byAuth
}

func (e *Engine) emit(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
