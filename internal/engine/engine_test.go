package engine

import (
	"errors"
	"testing"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/internal/proof"
	"github.com/kessler-labs/agora/pkg/models"
)

type fixture struct {
	book *ledger.Book
	dir  *agentdir.Directory
	eng  *Engine
	bus  *events.Bus
	cfg  config.Params
}

// newFixture builds an engine with rate limits disabled and a zero fee so
// financial assertions stay exact. Tests that exercise fees or rate limits
// override the relevant fields.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := ledger.NewBook()
	dir := agentdir.NewDirectory(book)
	bus := events.NewBus()
	cfg := config.Default()
	cfg.ProtocolFeeBps = 0
	cfg.RateLimits = config.RateLimitsConfig{}
	return &fixture{
		book: book,
		dir:  dir,
		eng:  New(dir, book, bus, proof.HashVerifier{}),
		bus:  bus,
		cfg:  cfg,
	}
}

func (f *fixture) addAgent(t *testing.T, id, authority string, caps uint64, funds uint64) {
	t.Helper()
	if _, err := f.dir.Register(id, authority, caps, 1); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	if funds > 0 {
		if err := f.book.Credit(ledger.AgentAccount(authority), funds); err != nil {
			t.Fatalf("fund %s: %v", id, err)
		}
	}
}

func (f *fixture) addArbiter(t *testing.T, id, authority string, stake uint64) {
	t.Helper()
	f.addAgent(t, id, authority, models.CapArbiter, stake)
	if stake > 0 {
		if err := f.dir.DepositStake(id, stake); err != nil {
			t.Fatalf("stake %s: %v", id, err)
		}
	}
}

func (f *fixture) createTask(t *testing.T, req CreateTaskRequest, now int64) models.Task {
	t.Helper()
	task, err := f.eng.CreateTask(req, f.cfg, now)
	if err != nil {
		t.Fatalf("create task %s: %v", req.TaskID, err)
	}
	return task
}

func (f *fixture) claim(t *testing.T, taskID, worker string, now int64) models.TaskClaim {
	t.Helper()
	claim, err := f.eng.ClaimTask(taskID, worker, f.cfg, now)
	if err != nil {
		t.Fatalf("claim %s by %s: %v", taskID, worker, err)
	}
	return claim
}

func (f *fixture) complete(t *testing.T, taskID, worker string, now int64) uint64 {
	t.Helper()
	paid, err := f.eng.CompleteTask(taskID, worker, "done", "", nil, f.cfg, now)
	if err != nil {
		t.Fatalf("complete %s by %s: %v", taskID, worker, err)
	}
	return paid
}

func basicTask(creator string, reward uint64) CreateTaskRequest {
	return CreateTaskRequest{
		TaskID:       "task-1",
		Creator:      creator,
		Description:  "compute a thing",
		RewardAmount: reward,
		MaxWorkers:   1,
		Type:         models.TaskTypeExclusive,
	}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 10000)

	tests := []struct {
		name   string
		mutate func(*CreateTaskRequest)
	}{
		{"empty id", func(r *CreateTaskRequest) { r.TaskID = "" }},
		{"empty description", func(r *CreateTaskRequest) { r.Description = "" }},
		{"zero max workers", func(r *CreateTaskRequest) { r.MaxWorkers = 0 }},
		{"too many workers", func(r *CreateTaskRequest) { r.MaxWorkers = 101 }},
		{"unknown type", func(r *CreateTaskRequest) { r.Type = "auction" }},
		{"zero reward", func(r *CreateTaskRequest) { r.RewardAmount = 0 }},
		{"past deadline", func(r *CreateTaskRequest) { r.Deadline = 50 }},
		{"deadline equals now", func(r *CreateTaskRequest) { r.Deadline = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := basicTask("creator", 500)
			tt.mutate(&req)
			if _, err := f.eng.CreateTask(req, f.cfg, 100); !errors.Is(err, ErrInvalidTask) {
				t.Errorf("expected ErrInvalidTask, got %v", err)
			}
			// Nothing may have been funded on failure.
			if bal := f.book.Balance(ledger.EscrowAccount(req.TaskID)); bal != 0 {
				t.Errorf("escrow balance = %d after failed creation", bal)
			}
		})
	}

	t.Run("unfunded creator", func(t *testing.T) {
		f.addAgent(t, "pauper", "auth-p", 0, 10)
		req := basicTask("pauper", 500)
		req.TaskID = "task-pauper"
		if _, err := f.eng.CreateTask(req, f.cfg, 100); !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		f.createTask(t, basicTask("creator", 500), 100)
		if _, err := f.eng.CreateTask(basicTask("creator", 500), f.cfg, 100); !errors.Is(err, ErrTaskExists) {
			t.Errorf("expected ErrTaskExists, got %v", err)
		}
	})
}

func TestCreateTaskFundsEscrow(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)

	cfg := f.cfg
	cfg.ProtocolFeeBps = 250
	task, err := f.eng.CreateTask(basicTask("creator", 600), cfg, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.book.Balance(ledger.AgentAccount("auth-c")); got != 400 {
		t.Errorf("creator balance = %d, want 400", got)
	}
	if got := f.book.Balance(ledger.EscrowAccount(task.ID)); got != 600 {
		t.Errorf("escrow balance = %d, want 600", got)
	}
	if task.ProtocolFeeBps != 250 {
		t.Errorf("locked fee = %d, want 250", task.ProtocolFeeBps)
	}
	if task.Status != models.TaskStatusOpen {
		t.Errorf("status = %s, want open", task.Status)
	}
	if task.RequiredCompletions != 1 {
		t.Errorf("required completions = %d, want 1", task.RequiredCompletions)
	}
}

func TestCreateCollaborativeRequiredCompletions(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	req := basicTask("creator", 500)
	req.Type = models.TaskTypeCollaborative
	req.MaxWorkers = 4
	task := f.createTask(t, req, 100)
	if task.RequiredCompletions != 4 {
		t.Errorf("required completions = %d, want 4", task.RequiredCompletions)
	}
}

func TestCreateTaskRateLimit(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 10000)
	cfg := f.cfg
	cfg.RateLimits.TaskCreationCooldown = 60

	req := basicTask("creator", 100)
	if _, err := f.eng.CreateTask(req, cfg, 100); err != nil {
		t.Fatal(err)
	}
	req.TaskID = "task-2"
	if _, err := f.eng.CreateTask(req, cfg, 130); !errors.Is(err, agentdir.ErrCooldownNotElapsed) {
		t.Errorf("expected cooldown error, got %v", err)
	}
	if _, err := f.eng.CreateTask(req, cfg, 161); err != nil {
		t.Errorf("expected success after cooldown, got %v", err)
	}
}

func TestClaimTask(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "worker", "auth-w", models.CapCompute, 0)

	req := basicTask("creator", 500)
	req.RequiredCapabilities = models.CapCompute
	req.Deadline = 1000
	f.createTask(t, req, 100)

	claim := f.claim(t, "task-1", "worker", 200)
	if claim.ExpiresAt != 1000+f.cfg.ClaimGracePeriod {
		t.Errorf("expires_at = %d, want deadline+grace %d", claim.ExpiresAt, 1000+f.cfg.ClaimGracePeriod)
	}
	task, _ := f.eng.Task("task-1")
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", task.Status)
	}
	if task.CurrentWorkers != 1 {
		t.Errorf("current workers = %d, want 1", task.CurrentWorkers)
	}
	worker, _ := f.dir.Get("worker")
	if worker.ActiveTasks != 1 {
		t.Errorf("active tasks = %d, want 1", worker.ActiveTasks)
	}

	if _, err := f.eng.ClaimTask("task-1", "worker", f.cfg, 250); !errors.Is(err, ErrDuplicateClaim) {
		t.Errorf("expected ErrDuplicateClaim, got %v", err)
	}
}

func TestClaimReplacesLapsedClaim(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "worker", "auth-w", 0, 0)
	f.createTask(t, basicTask("creator", 500), 100)

	first := f.claim(t, "task-1", "worker", 200)
	if _, err := f.eng.ClaimTask("task-1", "worker", f.cfg, first.ExpiresAt); !errors.Is(err, ErrDuplicateClaim) {
		t.Fatalf("live claim must not be replaced: got %v", err)
	}

	// Once the claim lapses uncompleted the worker re-claims directly; the
	// old record's slots carry over to the new one.
	second, err := f.eng.ClaimTask("task-1", "worker", f.cfg, first.ExpiresAt+1)
	if err != nil {
		t.Fatalf("re-claim after lapse: %v", err)
	}
	if second.ClaimedAt != first.ExpiresAt+1 {
		t.Errorf("claimed_at = %d, want %d", second.ClaimedAt, first.ExpiresAt+1)
	}
	worker, _ := f.dir.Get("worker")
	if worker.ActiveTasks != 1 {
		t.Errorf("active tasks = %d, want 1", worker.ActiveTasks)
	}
	task, _ := f.eng.Task("task-1")
	if task.CurrentWorkers != 1 {
		t.Errorf("current workers = %d, want 1", task.CurrentWorkers)
	}
}

func TestClaimNoDeadlineUsesMaxDuration(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "worker", "auth-w", 0, 0)
	f.createTask(t, basicTask("creator", 500), 100)

	claim := f.claim(t, "task-1", "worker", 200)
	if claim.ExpiresAt != 200+f.cfg.MaxClaimDuration {
		t.Errorf("expires_at = %d, want now+max %d", claim.ExpiresAt, 200+f.cfg.MaxClaimDuration)
	}
}

func TestClaimDeadlineBoundary(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "w1", "auth-1", 0, 0)
	f.addAgent(t, "w2", "auth-2", 0, 0)

	req := basicTask("creator", 500)
	req.MaxWorkers = 2
	req.Deadline = 1000
	f.createTask(t, req, 100)

	if _, err := f.eng.ClaimTask("task-1", "w1", f.cfg, 999); err != nil {
		t.Errorf("claim at 999 should succeed: %v", err)
	}
	if _, err := f.eng.ClaimTask("task-1", "w2", f.cfg, 1000); !errors.Is(err, ErrDeadlinePassed) {
		t.Errorf("claim at deadline should fail, got %v", err)
	}
}

func TestClaimRejections(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "twin", "auth-c", 0, 0)
	f.addAgent(t, "idle", "auth-idle", 0, 0)
	f.addAgent(t, "plain", "auth-plain", 0, 0)

	req := basicTask("creator", 500)
	req.MaxWorkers = 3
	req.MinReputation = 6000
	req.RequiredCapabilities = models.CapInference
	f.createTask(t, req, 100)

	if _, err := f.eng.ClaimTask("task-1", "creator", f.cfg, 200); !errors.Is(err, ErrSelfDealing) {
		t.Errorf("own task: expected ErrSelfDealing, got %v", err)
	}
	if _, err := f.eng.ClaimTask("task-1", "twin", f.cfg, 200); !errors.Is(err, ErrSelfDealing) {
		t.Errorf("same authority: expected ErrSelfDealing, got %v", err)
	}
	if _, err := f.eng.ClaimTask("task-1", "plain", f.cfg, 200); !errors.Is(err, ErrMissingCapabilities) {
		t.Errorf("missing capability: got %v", err)
	}
	if err := f.dir.SetStatus("idle", models.AgentStatusInactive); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.ClaimTask("task-1", "idle", f.cfg, 200); !errors.Is(err, agentdir.ErrAgentNotActive) {
		t.Errorf("inactive worker: got %v", err)
	}

	// Registered reputation starts at 5000, below the 6000 floor.
	f.addAgent(t, "able", "auth-able", models.CapInference, 0)
	if _, err := f.eng.ClaimTask("task-1", "able", f.cfg, 200); !errors.Is(err, ErrInsufficientReputation) {
		t.Errorf("low reputation: got %v", err)
	}
}

func TestClaimCapacityBound(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "w1", "auth-1", 0, 0)
	f.addAgent(t, "w2", "auth-2", 0, 0)
	f.addAgent(t, "w3", "auth-3", 0, 0)

	req := basicTask("creator", 500)
	req.Type = models.TaskTypeCollaborative
	req.MaxWorkers = 2
	f.createTask(t, req, 100)

	f.claim(t, "task-1", "w1", 200)
	f.claim(t, "task-1", "w2", 200)
	if _, err := f.eng.ClaimTask("task-1", "w3", f.cfg, 200); !errors.Is(err, ErrTaskFull) {
		t.Errorf("expected ErrTaskFull at capacity, got %v", err)
	}
	task, _ := f.eng.Task("task-1")
	if task.CurrentWorkers > task.MaxWorkers {
		t.Errorf("current workers %d exceeds max %d", task.CurrentWorkers, task.MaxWorkers)
	}
}

func TestClaimActiveTaskCap(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 100000)
	f.addAgent(t, "worker", "auth-w", 0, 0)

	for i := 0; i < agentdir.MaxActiveTasks; i++ {
		req := basicTask("creator", 10)
		req.TaskID = "task-" + string(rune('a'+i))
		f.createTask(t, req, 100)
		f.claim(t, req.TaskID, "worker", 200)
	}
	req := basicTask("creator", 10)
	req.TaskID = "task-final"
	f.createTask(t, req, 100)
	if _, err := f.eng.ClaimTask("task-final", "worker", f.cfg, 200); !errors.Is(err, agentdir.ErrMaxActiveTasks) {
		t.Errorf("expected ErrMaxActiveTasks, got %v", err)
	}
}
