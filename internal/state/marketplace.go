package state

import (
	"database/sql"
	"fmt"

	"github.com/kessler-labs/agora/pkg/models"
)

// Insert statements are shared with the snapshot writer, which runs them
// inside a transaction.
const (
	insertAgentSQL = `
		INSERT OR REPLACE INTO agents (
			id, authority, capabilities, status, reputation, stake,
			active_tasks, tasks_completed, total_earned, registered_at,
			last_active, last_task_created, last_dispute_initiated,
			task_count_24h, dispute_count_24h, rate_limit_window_start,
			active_dispute_votes, last_vote_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertTaskSQL = `
		INSERT OR REPLACE INTO tasks (
			id, creator, creator_authority, description, constraint_hash,
			required_capabilities, min_reputation, reward_amount,
			protocol_fee_bps, max_workers, current_workers, status, type,
			created_at, deadline, completed_at, completions,
			required_completions, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertEscrowSQL = `
		INSERT OR REPLACE INTO escrows (task_id, amount, distributed, is_closed)
		VALUES (?, ?, ?, ?)`

	insertClaimSQL = `
		INSERT OR REPLACE INTO claims (
			task_id, worker, claimed_at, expires_at, completed_at,
			proof_hash, result, is_completed, reward_paid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertDisputeSQL = `
		INSERT OR REPLACE INTO disputes (
			id, task_id, initiator, initiator_authority, defendant,
			evidence_hash, resolution, status, created_at, resolved_at,
			approved, votes_for, votes_against, total_voters,
			voting_deadline, expires_at, worker_stake_at_dispute,
			slash_applied, initiator_slash_applied
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertVoteSQL = `
		INSERT OR REPLACE INTO dispute_votes (
			dispute_id, voter, authority, approved, voted_at, stake_at_vote
		) VALUES (?, ?, ?, ?, ?, ?)`

	insertBalanceSQL = `
		INSERT OR REPLACE INTO balances (account, balance) VALUES (?, ?)`
)

func agentArgs(a *models.Agent) []any {
	return []any{
		a.ID, a.Authority, int64(a.Capabilities), string(a.Status), a.Reputation, int64(a.Stake),
		a.ActiveTasks, int64(a.TasksCompleted), int64(a.TotalEarned), a.RegisteredAt,
		a.LastActive, a.LastTaskCreated, a.LastDisputeInitiated,
		a.TaskCount24h, a.DisputeCount24h, a.RateLimitWindowStart,
		a.ActiveDisputeVotes, a.LastVoteAt,
	}
}

func taskArgs(t *models.Task) []any {
	return []any{
		t.ID, t.Creator, t.CreatorAuthority, t.Description, t.ConstraintHash,
		int64(t.RequiredCapabilities), t.MinReputation, int64(t.RewardAmount),
		t.ProtocolFeeBps, t.MaxWorkers, t.CurrentWorkers, string(t.Status), string(t.Type),
		t.CreatedAt, t.Deadline, t.CompletedAt, t.Completions,
		t.RequiredCompletions, t.Result,
	}
}

func escrowArgs(e *models.TaskEscrow) []any {
	return []any{e.TaskID, int64(e.Amount), int64(e.Distributed), boolToInt(e.IsClosed)}
}

func claimArgs(c *models.TaskClaim) []any {
	return []any{
		c.TaskID, c.Worker, c.ClaimedAt, c.ExpiresAt, c.CompletedAt,
		c.ProofHash, c.Result, boolToInt(c.IsCompleted), int64(c.RewardPaid),
	}
}

func disputeArgs(d *models.Dispute) []any {
	return []any{
		d.ID, d.TaskID, d.Initiator, d.InitiatorAuthority, d.Defendant,
		d.EvidenceHash, string(d.Resolution), string(d.Status), d.CreatedAt, d.ResolvedAt,
		boolToInt(d.Approved), int64(d.VotesFor), int64(d.VotesAgainst), d.TotalVoters,
		d.VotingDeadline, d.ExpiresAt, int64(d.WorkerStakeAtDispute),
		boolToInt(d.SlashApplied), boolToInt(d.InitiatorSlashApplied),
	}
}

func voteArgs(v *models.DisputeVote) []any {
	return []any{v.DisputeID, v.Voter, v.Authority, boolToInt(v.Approved), v.VotedAt, int64(v.StakeAtVote)}
}

// Agent CRUD operations

// SaveAgent inserts or replaces an agent record.
func (db *DB) SaveAgent(a *models.Agent) error {
	if _, err := db.Exec(insertAgentSQL, agentArgs(a)...); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID. Returns nil when absent.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	row := db.QueryRow(`
		SELECT id, authority, capabilities, status, reputation, stake,
			active_tasks, tasks_completed, total_earned, registered_at,
			last_active, last_task_created, last_dispute_initiated,
			task_count_24h, dispute_count_24h, rate_limit_window_start,
			active_dispute_votes, last_vote_at
		FROM agents WHERE id = ?
	`, id)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (*models.Agent, error) {
	var a models.Agent
	var capabilities, stake, tasksCompleted, totalEarned int64
	err := row.Scan(&a.ID, &a.Authority, &capabilities, &a.Status, &a.Reputation, &stake,
		&a.ActiveTasks, &tasksCompleted, &totalEarned, &a.RegisteredAt,
		&a.LastActive, &a.LastTaskCreated, &a.LastDisputeInitiated,
		&a.TaskCount24h, &a.DisputeCount24h, &a.RateLimitWindowStart,
		&a.ActiveDisputeVotes, &a.LastVoteAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Capabilities = uint64(capabilities)
	a.Stake = uint64(stake)
	a.TasksCompleted = uint64(tasksCompleted)
	a.TotalEarned = uint64(totalEarned)
	return &a, nil
}

// ListAgents lists every stored agent.
func (db *DB) ListAgents() ([]*models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, authority, capabilities, status, reputation, stake,
			active_tasks, tasks_completed, total_earned, registered_at,
			last_active, last_task_created, last_dispute_initiated,
			task_count_24h, dispute_count_24h, rate_limit_window_start,
			active_dispute_votes, last_vote_at
		FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		var a models.Agent
		var capabilities, stake, tasksCompleted, totalEarned int64
		if err := rows.Scan(&a.ID, &a.Authority, &capabilities, &a.Status, &a.Reputation, &stake,
			&a.ActiveTasks, &tasksCompleted, &totalEarned, &a.RegisteredAt,
			&a.LastActive, &a.LastTaskCreated, &a.LastDisputeInitiated,
			&a.TaskCount24h, &a.DisputeCount24h, &a.RateLimitWindowStart,
			&a.ActiveDisputeVotes, &a.LastVoteAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Capabilities = uint64(capabilities)
		a.Stake = uint64(stake)
		a.TasksCompleted = uint64(tasksCompleted)
		a.TotalEarned = uint64(totalEarned)
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// Task CRUD operations

// SaveTask inserts or replaces a task record.
func (db *DB) SaveTask(t *models.Task) error {
	if _, err := db.Exec(insertTaskSQL, taskArgs(t)...); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil when absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, creator, creator_authority, description, constraint_hash,
			required_capabilities, min_reputation, reward_amount,
			protocol_fee_bps, max_workers, current_workers, status, type,
			created_at, deadline, completed_at, completions,
			required_completions, result
		FROM tasks WHERE id = ?
	`, id)

	var t models.Task
	var requiredCaps, reward int64
	var constraintHash, result sql.NullString
	err := row.Scan(&t.ID, &t.Creator, &t.CreatorAuthority, &t.Description, &constraintHash,
		&requiredCaps, &t.MinReputation, &reward,
		&t.ProtocolFeeBps, &t.MaxWorkers, &t.CurrentWorkers, &t.Status, &t.Type,
		&t.CreatedAt, &t.Deadline, &t.CompletedAt, &t.Completions,
		&t.RequiredCompletions, &result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.RequiredCapabilities = uint64(requiredCaps)
	t.RewardAmount = uint64(reward)
	t.ConstraintHash = constraintHash.String
	t.Result = result.String
	return &t, nil
}

// ListTasks lists every stored task.
func (db *DB) ListTasks() ([]*models.Task, error) {
	rows, err := db.Query(`SELECT id FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		t, err := db.GetTask(id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// Escrow operations

// SaveEscrow inserts or replaces an escrow record.
func (db *DB) SaveEscrow(e *models.TaskEscrow) error {
	if _, err := db.Exec(insertEscrowSQL, escrowArgs(e)...); err != nil {
		return fmt.Errorf("save escrow: %w", err)
	}
	return nil
}

// GetEscrow retrieves the escrow for a task. Returns nil when absent.
func (db *DB) GetEscrow(taskID string) (*models.TaskEscrow, error) {
	row := db.QueryRow(`
		SELECT task_id, amount, distributed, is_closed FROM escrows WHERE task_id = ?
	`, taskID)

	var e models.TaskEscrow
	var amount, distributed int64
	var closed int
	err := row.Scan(&e.TaskID, &amount, &distributed, &closed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get escrow: %w", err)
	}
	e.Amount = uint64(amount)
	e.Distributed = uint64(distributed)
	e.IsClosed = closed != 0
	return &e, nil
}

// Claim operations

// SaveClaim inserts or replaces a claim record.
func (db *DB) SaveClaim(c *models.TaskClaim) error {
	if _, err := db.Exec(insertClaimSQL, claimArgs(c)...); err != nil {
		return fmt.Errorf("save claim: %w", err)
	}
	return nil
}

// DeleteClaim removes a claim record.
func (db *DB) DeleteClaim(taskID, worker string) error {
	if _, err := db.Exec("DELETE FROM claims WHERE task_id = ? AND worker = ?", taskID, worker); err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return nil
}

// ListClaims lists every claim on a task.
func (db *DB) ListClaims(taskID string) ([]*models.TaskClaim, error) {
	rows, err := db.Query(`
		SELECT task_id, worker, claimed_at, expires_at, completed_at,
			proof_hash, result, is_completed, reward_paid
		FROM claims WHERE task_id = ? ORDER BY worker
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.TaskClaim
	for rows.Next() {
		var c models.TaskClaim
		var proofHash, result sql.NullString
		var completed int
		var rewardPaid int64
		if err := rows.Scan(&c.TaskID, &c.Worker, &c.ClaimedAt, &c.ExpiresAt, &c.CompletedAt,
			&proofHash, &result, &completed, &rewardPaid); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.ProofHash = proofHash.String
		c.Result = result.String
		c.IsCompleted = completed != 0
		c.RewardPaid = uint64(rewardPaid)
		claims = append(claims, &c)
	}
	return claims, rows.Err()
}

// Dispute operations

// SaveDispute inserts or replaces a dispute record.
func (db *DB) SaveDispute(d *models.Dispute) error {
	if _, err := db.Exec(insertDisputeSQL, disputeArgs(d)...); err != nil {
		return fmt.Errorf("save dispute: %w", err)
	}
	return nil
}

// GetDispute retrieves a dispute by ID. Returns nil when absent.
func (db *DB) GetDispute(id string) (*models.Dispute, error) {
	row := db.QueryRow(`
		SELECT id, task_id, initiator, initiator_authority, defendant,
			evidence_hash, resolution, status, created_at, resolved_at,
			approved, votes_for, votes_against, total_voters,
			voting_deadline, expires_at, worker_stake_at_dispute,
			slash_applied, initiator_slash_applied
		FROM disputes WHERE id = ?
	`, id)

	var d models.Dispute
	var approved, slashApplied, initiatorSlashApplied int
	var votesFor, votesAgainst, workerStake int64
	err := row.Scan(&d.ID, &d.TaskID, &d.Initiator, &d.InitiatorAuthority, &d.Defendant,
		&d.EvidenceHash, &d.Resolution, &d.Status, &d.CreatedAt, &d.ResolvedAt,
		&approved, &votesFor, &votesAgainst, &d.TotalVoters,
		&d.VotingDeadline, &d.ExpiresAt, &workerStake,
		&slashApplied, &initiatorSlashApplied)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	d.Approved = approved != 0
	d.VotesFor = uint64(votesFor)
	d.VotesAgainst = uint64(votesAgainst)
	d.WorkerStakeAtDispute = uint64(workerStake)
	d.SlashApplied = slashApplied != 0
	d.InitiatorSlashApplied = initiatorSlashApplied != 0
	return &d, nil
}

// ListDisputes lists every stored dispute ID.
func (db *DB) ListDisputes() ([]*models.Dispute, error) {
	rows, err := db.Query(`SELECT id FROM disputes ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dispute id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	disputes := make([]*models.Dispute, 0, len(ids))
	for _, id := range ids {
		d, err := db.GetDispute(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			disputes = append(disputes, d)
		}
	}
	return disputes, nil
}

// SaveVote inserts or replaces a ballot record.
func (db *DB) SaveVote(v *models.DisputeVote) error {
	if _, err := db.Exec(insertVoteSQL, voteArgs(v)...); err != nil {
		return fmt.Errorf("save vote: %w", err)
	}
	return nil
}

// ListVotes lists every ballot on a dispute.
func (db *DB) ListVotes(disputeID string) ([]*models.DisputeVote, error) {
	rows, err := db.Query(`
		SELECT dispute_id, voter, authority, approved, voted_at, stake_at_vote
		FROM dispute_votes WHERE dispute_id = ? ORDER BY voter
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.DisputeVote
	for rows.Next() {
		var v models.DisputeVote
		var approved int
		var stake int64
		if err := rows.Scan(&v.DisputeID, &v.Voter, &v.Authority, &approved, &v.VotedAt, &stake); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Approved = approved != 0
		v.StakeAtVote = uint64(stake)
		votes = append(votes, &v)
	}
	return votes, rows.Err()
}

// Balance operations

// SaveBalance inserts or replaces a ledger account balance.
func (db *DB) SaveBalance(account string, balance uint64) error {
	if _, err := db.Exec(insertBalanceSQL, account, int64(balance)); err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// ListBalances returns every stored account balance.
func (db *DB) ListBalances() (map[string]uint64, error) {
	rows, err := db.Query(`SELECT account, balance FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]uint64)
	for rows.Next() {
		var account string
		var balance int64
		if err := rows.Scan(&account, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[account] = uint64(balance)
	}
	return balances, rows.Err()
}

// Stats aggregates marketplace totals for observers.
type Stats struct {
	TotalAgents      int
	TotalTasks       int
	CompletedTasks   int
	ActiveDisputes   int
	TotalDistributed uint64
}

// ProtocolStats computes aggregate counters from the stored records.
func (db *DB) ProtocolStats() (Stats, error) {
	var s Stats
	row := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM tasks WHERE status = 'completed'),
			(SELECT COUNT(*) FROM disputes WHERE status = 'active'),
			(SELECT COALESCE(SUM(distributed), 0) FROM escrows)
	`)
	var distributed int64
	if err := row.Scan(&s.TotalAgents, &s.TotalTasks, &s.CompletedTasks, &s.ActiveDisputes, &distributed); err != nil {
		return Stats{}, fmt.Errorf("protocol stats: %w", err)
	}
	s.TotalDistributed = uint64(distributed)
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
