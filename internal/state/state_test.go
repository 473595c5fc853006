package state

import (
	"path/filepath"
	"testing"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/engine"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/internal/proof"
	"github.com/kessler-labs/agora/pkg/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	tables := []string{"schema_version", "agents", "tasks", "escrows", "claims", "disputes", "dispute_votes", "balances"}
	for _, table := range tables {
		var count int
		row := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&count); err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestAgentRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	agent := &models.Agent{
		ID:                   "agent-1",
		Authority:            "auth-1",
		Capabilities:         models.CapCompute | models.CapArbiter,
		Status:               models.AgentStatusActive,
		Reputation:           5100,
		Stake:                750,
		ActiveTasks:          2,
		TasksCompleted:       51,
		TotalEarned:          123456,
		RegisteredAt:         100,
		LastActive:           2000,
		LastTaskCreated:      1500,
		TaskCount24h:         3,
		RateLimitWindowStart: 1000,
		ActiveDisputeVotes:   1,
		LastVoteAt:           1900,
	}
	if err := db.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	got, err := db.GetAgent("agent-1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetAgent returned nil for stored agent")
	}
	if *got != *agent {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, agent)
	}

	missing, err := db.GetAgent("nobody")
	if err != nil {
		t.Fatalf("GetAgent(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing agent, got %+v", missing)
	}
}

func TestTaskEscrowClaimRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	task := &models.Task{
		ID:                   "task-1",
		Creator:              "creator",
		CreatorAuthority:     "auth-c",
		Description:          "resize images",
		ConstraintHash:       "abc123",
		RequiredCapabilities: models.CapCompute,
		MinReputation:        4000,
		RewardAmount:         10000,
		ProtocolFeeBps:       100,
		MaxWorkers:           3,
		CurrentWorkers:       1,
		Status:               models.TaskStatusInProgress,
		Type:                 models.TaskTypeCollaborative,
		CreatedAt:            100,
		Deadline:             5000,
		Completions:          0,
		RequiredCompletions:  3,
	}
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	escrow := &models.TaskEscrow{TaskID: "task-1", Amount: 10000, Distributed: 0}
	if err := db.SaveEscrow(escrow); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}
	claim := &models.TaskClaim{TaskID: "task-1", Worker: "worker", ClaimedAt: 200, ExpiresAt: 8600}
	if err := db.SaveClaim(claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}

	gotTask, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if gotTask == nil || *gotTask != *task {
		t.Errorf("task round trip mismatch:\n got %+v\nwant %+v", gotTask, task)
	}

	gotEscrow, err := db.GetEscrow("task-1")
	if err != nil {
		t.Fatalf("GetEscrow failed: %v", err)
	}
	if gotEscrow == nil || *gotEscrow != *escrow {
		t.Errorf("escrow round trip mismatch: got %+v", gotEscrow)
	}

	claims, err := db.ListClaims("task-1")
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(claims) != 1 || *claims[0] != *claim {
		t.Errorf("claim round trip mismatch: got %+v", claims)
	}

	if err := db.DeleteClaim("task-1", "worker"); err != nil {
		t.Fatalf("DeleteClaim failed: %v", err)
	}
	claims, err = db.ListClaims("task-1")
	if err != nil {
		t.Fatalf("ListClaims after delete failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("expected no claims after delete, got %d", len(claims))
	}
}

func TestDisputeVoteRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	// Disputes reference their task by foreign key, so the task row has to
	// exist first.
	task := &models.Task{
		ID:                  "task-1",
		Creator:             "creator",
		CreatorAuthority:    "auth-c",
		Description:         "audit results",
		RewardAmount:        5000,
		MaxWorkers:          1,
		Status:              models.TaskStatusDisputed,
		Type:                models.TaskTypeExclusive,
		CreatedAt:           100,
		RequiredCompletions: 1,
	}
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	dispute := &models.Dispute{
		ID:                   "dispute-1",
		TaskID:               "task-1",
		Initiator:            "creator",
		InitiatorAuthority:   "auth-c",
		Defendant:            "worker",
		EvidenceHash:         "deadbeef",
		Resolution:           models.ResolutionRefund,
		Status:               models.DisputeStatusResolved,
		CreatedAt:            1000,
		ResolvedAt:           90000,
		Approved:             true,
		VotesFor:             60,
		VotesAgainst:         40,
		TotalVoters:          2,
		VotingDeadline:       87400,
		ExpiresAt:            605800,
		WorkerStakeAtDispute: 500,
		SlashApplied:         true,
	}
	if err := db.SaveDispute(dispute); err != nil {
		t.Fatalf("SaveDispute failed: %v", err)
	}
	vote := &models.DisputeVote{
		DisputeID:   "dispute-1",
		Voter:       "arbiter-1",
		Authority:   "auth-a1",
		Approved:    true,
		VotedAt:     2000,
		StakeAtVote: 60,
	}
	if err := db.SaveVote(vote); err != nil {
		t.Fatalf("SaveVote failed: %v", err)
	}

	got, err := db.GetDispute("dispute-1")
	if err != nil {
		t.Fatalf("GetDispute failed: %v", err)
	}
	if got == nil || *got != *dispute {
		t.Errorf("dispute round trip mismatch:\n got %+v\nwant %+v", got, dispute)
	}

	votes, err := db.ListVotes("dispute-1")
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(votes) != 1 || *votes[0] != *vote {
		t.Errorf("vote round trip mismatch: got %+v", votes)
	}
}

func TestSnapshotLoadRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	book := ledger.NewBook()
	dir := agentdir.NewDirectory(book)
	eng := engine.New(dir, book, events.NewBus(), proof.HashVerifier{})
	cfg := config.Default()
	cfg.RateLimits = config.RateLimitsConfig{}

	if _, err := dir.Register("creator", "auth-c", 0, 1); err != nil {
		t.Fatalf("register creator: %v", err)
	}
	if _, err := dir.Register("worker", "auth-w", models.CapCompute, 1); err != nil {
		t.Fatalf("register worker: %v", err)
	}
	if err := book.Credit(ledger.AgentAccount("auth-c"), 5000); err != nil {
		t.Fatalf("fund creator: %v", err)
	}
	if err := book.Credit(ledger.AgentAccount("auth-w"), 1000); err != nil {
		t.Fatalf("fund worker: %v", err)
	}
	if err := dir.DepositStake("worker", 400); err != nil {
		t.Fatalf("stake worker: %v", err)
	}

	if _, err := eng.CreateTask(engine.CreateTaskRequest{
		TaskID:               "task-1",
		Creator:              "creator",
		Description:          "transcode batch",
		RequiredCapabilities: models.CapCompute,
		RewardAmount:         2000,
		MaxWorkers:           1,
		Type:                 models.TaskTypeExclusive,
		Deadline:             10000,
	}, cfg, 100); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := eng.ClaimTask("task-1", "worker", cfg, 200); err != nil {
		t.Fatalf("claim task: %v", err)
	}

	if err := db.Snapshot(book, dir, eng); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Rebuild from disk into fresh instances.
	book2 := ledger.NewBook()
	dir2 := agentdir.NewDirectory(book2)
	eng2 := engine.New(dir2, book2, events.NewBus(), proof.HashVerifier{})
	if err := db.Load(book2, dir2, eng2); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, account := range book.Accounts() {
		if book2.Balance(account) != book.Balance(account) {
			t.Errorf("balance %s = %d, want %d", account, book2.Balance(account), book.Balance(account))
		}
	}

	worker, err := dir2.Get("worker")
	if err != nil {
		t.Fatalf("restored worker missing: %v", err)
	}
	if worker.Stake != 400 || worker.ActiveTasks != 1 {
		t.Errorf("restored worker = stake %d active %d, want 400/1", worker.Stake, worker.ActiveTasks)
	}

	task, err := eng2.Task("task-1")
	if err != nil {
		t.Fatalf("restored task missing: %v", err)
	}
	if task.Status != models.TaskStatusInProgress || task.CurrentWorkers != 1 {
		t.Errorf("restored task = %s workers %d, want in_progress/1", task.Status, task.CurrentWorkers)
	}
	if _, err := eng2.Claim("task-1", "worker"); err != nil {
		t.Fatalf("restored claim missing: %v", err)
	}

	// The restored engine keeps operating: the worker completes the task.
	paid, err := eng2.CompleteTask("task-1", "worker", "done", "", nil, cfg, 300)
	if err != nil {
		t.Fatalf("complete after restore: %v", err)
	}
	if paid == 0 {
		t.Error("expected nonzero payout after restore")
	}

	// A second snapshot overwrites the populated database in place.
	if err := db.Snapshot(book2, dir2, eng2); err != nil {
		t.Fatalf("re-snapshot over populated db failed: %v", err)
	}
	reloaded, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask after re-snapshot failed: %v", err)
	}
	if reloaded == nil || reloaded.Status != models.TaskStatusCompleted {
		t.Errorf("re-snapshot task = %+v, want completed", reloaded)
	}
}

func TestProtocolStats(t *testing.T) {
	db := setupTestDB(t)

	if err := db.SaveAgent(&models.Agent{ID: "a1", Authority: "auth", Status: models.AgentStatusActive}); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	tasks := []*models.Task{
		{ID: "t1", Creator: "a1", Status: models.TaskStatusCompleted, Type: models.TaskTypeExclusive},
		{ID: "t2", Creator: "a1", Status: models.TaskStatusOpen, Type: models.TaskTypeExclusive},
	}
	for _, task := range tasks {
		if err := db.SaveTask(task); err != nil {
			t.Fatalf("SaveTask failed: %v", err)
		}
	}
	if err := db.SaveEscrow(&models.TaskEscrow{TaskID: "t1", Amount: 1000, Distributed: 990, IsClosed: true}); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}
	if err := db.SaveEscrow(&models.TaskEscrow{TaskID: "t2", Amount: 500}); err != nil {
		t.Fatalf("SaveEscrow failed: %v", err)
	}
	if err := db.SaveDispute(&models.Dispute{ID: "d1", TaskID: "t2", Status: models.DisputeStatusActive, Resolution: models.ResolutionRefund}); err != nil {
		t.Fatalf("SaveDispute failed: %v", err)
	}

	stats, err := db.ProtocolStats()
	if err != nil {
		t.Fatalf("ProtocolStats failed: %v", err)
	}
	want := Stats{TotalAgents: 1, TotalTasks: 2, CompletedTasks: 1, ActiveDisputes: 1, TotalDistributed: 990}
	if stats != want {
		t.Errorf("ProtocolStats = %+v, want %+v", stats, want)
	}
}
