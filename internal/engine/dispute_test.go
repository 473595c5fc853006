package engine

import (
	"errors"
	"testing"

	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// disputedTask builds a creator, a worker holding a claim, and an active
// dispute opened by the creator at time 1000.
func disputedTask(t *testing.T, f *fixture, resolution models.ResolutionType) models.Dispute {
	t.Helper()
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "worker", "auth-w", 0, 500)
	if err := f.dir.DepositStake("worker", 500); err != nil {
		t.Fatal(err)
	}
	f.createTask(t, basicTask("creator", 600), 100)
	f.claim(t, "task-1", "worker", 200)

	dispute, err := f.eng.InitiateDispute(DisputeRequest{
		DisputeID:    "dispute-1",
		TaskID:       "task-1",
		Initiator:    "creator",
		Resolution:   resolution,
		EvidenceHash: "deadbeef",
	}, f.cfg, 1000)
	if err != nil {
		t.Fatalf("initiate dispute: %v", err)
	}
	return dispute
}

func (f *fixture) vote(t *testing.T, disputeID, arbiter string, approve bool, now int64) {
	t.Helper()
	if _, err := f.eng.VoteDispute(disputeID, arbiter, approve, f.cfg, now); err != nil {
		t.Fatalf("vote by %s: %v", arbiter, err)
	}
}

func TestInitiateDispute(t *testing.T) {
	f := newFixture(t)
	d := disputedTask(t, f, models.ResolutionRefund)

	if d.Defendant != "worker" {
		t.Errorf("defendant = %s, want worker", d.Defendant)
	}
	if d.WorkerStakeAtDispute != 500 {
		t.Errorf("stake snapshot = %d, want 500", d.WorkerStakeAtDispute)
	}
	if d.VotingDeadline != 1000+f.cfg.VotingPeriod {
		t.Errorf("voting deadline = %d, want %d", d.VotingDeadline, 1000+f.cfg.VotingPeriod)
	}
	if d.ExpiresAt != 1000+f.cfg.MaxDisputeDuration {
		t.Errorf("expires_at = %d, want %d", d.ExpiresAt, 1000+f.cfg.MaxDisputeDuration)
	}
	task, _ := f.eng.Task("task-1")
	if task.Status != models.TaskStatusDisputed {
		t.Errorf("task status = %s, want disputed", task.Status)
	}
}

func TestInitiateDisputeRejections(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 1000)
	f.addAgent(t, "worker", "auth-w", 0, 0)
	f.addAgent(t, "outsider", "auth-o", 0, 0)
	f.createTask(t, basicTask("creator", 500), 100)

	base := DisputeRequest{
		DisputeID:    "d1",
		TaskID:       "task-1",
		Initiator:    "creator",
		Resolution:   models.ResolutionRefund,
		EvidenceHash: "abcd",
	}

	// Open tasks have no in-flight work to dispute.
	if _, err := f.eng.InitiateDispute(base, f.cfg, 150); !errors.Is(err, ErrTaskNotDisputable) {
		t.Errorf("open task: got %v", err)
	}
	f.claim(t, "task-1", "worker", 200)

	tests := []struct {
		name   string
		mutate func(*DisputeRequest)
		want   error
	}{
		{"empty evidence", func(r *DisputeRequest) { r.EvidenceHash = "" }, ErrInvalidEvidence},
		{"bad resolution", func(r *DisputeRequest) { r.Resolution = "burn" }, ErrInvalidResolution},
		{"outsider", func(r *DisputeRequest) { r.Initiator = "outsider" }, ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := f.eng.InitiateDispute(req, f.cfg, 300); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("min stake", func(t *testing.T) {
		cfg := f.cfg
		cfg.MinStakeForDispute = 100
		if _, err := f.eng.InitiateDispute(base, cfg, 300); err == nil {
			t.Error("expected stake rejection, got nil")
		}
	})

	t.Run("one active dispute per task", func(t *testing.T) {
		if _, err := f.eng.InitiateDispute(base, f.cfg, 300); err != nil {
			t.Fatal(err)
		}
		second := base
		second.DisputeID = "d2"
		if _, err := f.eng.InitiateDispute(second, f.cfg, 301); !errors.Is(err, ErrTaskNotDisputable) {
			t.Errorf("disputed task: got %v", err)
		}
	})
}

func TestVoteWeight(t *testing.T) {
	tests := []struct {
		name       string
		stake      uint64
		reputation int
		minStake   uint64
		want       uint64
	}{
		{"no stake no weight", 0, 10000, 100, 0},
		{"uncapped when min is zero", 5000, 5000, 0, 2500},
		{"capped at ten times min", 5000, 5000, 100, 500},
		{"floored at one", 1, 1, 0, 1},
		{"exact cap boundary", 1000, 10000, 100, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := voteWeight(tt.stake, tt.reputation, tt.minStake)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("voteWeight(%d, %d, %d) = %d, want %d",
					tt.stake, tt.reputation, tt.minStake, got, tt.want)
			}
		})
	}
}

func TestVoteWindowIsStrict(t *testing.T) {
	f := newFixture(t)
	d := disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-a1", 100)
	f.addArbiter(t, "arb2", "auth-a2", 100)

	if _, err := f.eng.VoteDispute("dispute-1", "arb1", true, f.cfg, d.VotingDeadline); !errors.Is(err, ErrVotingClosed) {
		t.Errorf("vote at deadline: got %v", err)
	}
	if _, err := f.eng.VoteDispute("dispute-1", "arb2", true, f.cfg, d.VotingDeadline-1); err != nil {
		t.Errorf("vote before deadline: %v", err)
	}
}

func TestVoteDeduplication(t *testing.T) {
	f := newFixture(t)
	disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-shared", 100)
	f.addArbiter(t, "arb2", "auth-shared", 100)

	f.vote(t, "dispute-1", "arb1", true, 1100)
	if _, err := f.eng.VoteDispute("dispute-1", "arb1", false, f.cfg, 1101); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("same identity: got %v", err)
	}
	// A second identity behind the same credential is still one voter.
	if _, err := f.eng.VoteDispute("dispute-1", "arb2", false, f.cfg, 1102); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("same authority: got %v", err)
	}
	d, _ := f.eng.Dispute("dispute-1")
	if d.TotalVoters != 1 {
		t.Errorf("total voters = %d, want 1", d.TotalVoters)
	}
}

func TestVoteParticipantsExcluded(t *testing.T) {
	f := newFixture(t)
	disputedTask(t, f, models.ResolutionRefund)

	// Grant everyone the arbiter capability so only the participant checks
	// can reject them.
	for _, id := range []string{"creator", "worker"} {
		agent, _ := f.dir.Get(id)
		agent.Capabilities |= models.CapArbiter
		f.dir.Restore(agent)
	}
	f.addArbiter(t, "shadow", "auth-c", 100)

	for _, id := range []string{"creator", "worker", "shadow"} {
		if _, err := f.eng.VoteDispute("dispute-1", id, true, f.cfg, 1100); !errors.Is(err, ErrParticipantVote) {
			t.Errorf("%s vote: got %v", id, err)
		}
	}
}

func TestVoteRequiresArbiter(t *testing.T) {
	f := newFixture(t)
	disputedTask(t, f, models.ResolutionRefund)
	f.addAgent(t, "civilian", "auth-civ", models.CapCompute, 0)

	if _, err := f.eng.VoteDispute("dispute-1", "civilian", true, f.cfg, 1100); !errors.Is(err, ErrNotArbiter) {
		t.Errorf("expected ErrNotArbiter, got %v", err)
	}
}

func TestResolveTimingAndQuorum(t *testing.T) {
	f := newFixture(t)
	d := disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-a1", 100)
	f.addArbiter(t, "resolver", "auth-res", 0)

	if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline); !errors.Is(err, ErrQuorumNotMet) {
		t.Errorf("zero voters: got %v", err)
	}
	f.vote(t, "dispute-1", "arb1", true, 1100)
	if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline-1); !errors.Is(err, ErrVotingOpen) {
		t.Errorf("before deadline: got %v", err)
	}
	// One voter under the quorum of two.
	if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline); !errors.Is(err, ErrQuorumNotMet) {
		t.Errorf("below quorum: got %v", err)
	}
	if _, err := f.eng.ResolveDispute("dispute-1", "creator", f.cfg, d.VotingDeadline); !errors.Is(err, ErrResolverIsInitiator) {
		t.Errorf("initiator resolving: got %v", err)
	}
}

func TestResolveThreshold(t *testing.T) {
	// Weights are stake * reputation / 10000; at registration reputation
	// 5000 a stake of 120 weighs 60 and a stake of 80 weighs 40.
	tests := []struct {
		name         string
		forStake     uint64
		againstStake uint64
		wantApproved bool
	}{
		{"sixty forty approves", 120, 80, true},
		{"forty sixty rejects", 80, 120, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := disputedTask(t, f, models.ResolutionRefund)
			f.addArbiter(t, "yes", "auth-yes", tt.forStake)
			f.addArbiter(t, "no", "auth-no", tt.againstStake)
			f.addAgent(t, "resolver", "auth-res", 0, 0)
			f.vote(t, "dispute-1", "yes", true, 1100)
			f.vote(t, "dispute-1", "no", false, 1100)

			outcome, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline)
			if err != nil {
				t.Fatal(err)
			}
			if outcome.Approved != tt.wantApproved {
				t.Errorf("approved = %v, want %v", outcome.Approved, tt.wantApproved)
			}
		})
	}
}

func TestResolveOutcomes(t *testing.T) {
	resolve := func(t *testing.T, resolution models.ResolutionType, approve bool) (*fixture, Outcome) {
		t.Helper()
		f := newFixture(t)
		d := disputedTask(t, f, resolution)
		f.addArbiter(t, "arb1", "auth-a1", 100)
		f.addArbiter(t, "arb2", "auth-a2", 100)
		f.addAgent(t, "resolver", "auth-res", 0, 0)
		f.vote(t, "dispute-1", "arb1", approve, 1100)
		f.vote(t, "dispute-1", "arb2", approve, 1100)
		outcome, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline)
		if err != nil {
			t.Fatal(err)
		}
		return f, outcome
	}

	t.Run("approved refund", func(t *testing.T) {
		f, outcome := resolve(t, models.ResolutionRefund, true)
		if outcome.PaidToCreator != 600 || outcome.PaidToWorker != 0 {
			t.Errorf("payouts = (creator %d, worker %d), want (600, 0)", outcome.PaidToCreator, outcome.PaidToWorker)
		}
		task, _ := f.eng.Task("task-1")
		if task.Status != models.TaskStatusCancelled {
			t.Errorf("status = %s, want cancelled", task.Status)
		}
	})

	t.Run("approved complete", func(t *testing.T) {
		f, outcome := resolve(t, models.ResolutionComplete, true)
		if outcome.PaidToWorker != 600 || outcome.PaidToCreator != 0 {
			t.Errorf("payouts = (creator %d, worker %d), want (0, 600)", outcome.PaidToCreator, outcome.PaidToWorker)
		}
		task, _ := f.eng.Task("task-1")
		if task.Status != models.TaskStatusCompleted {
			t.Errorf("status = %s, want completed", task.Status)
		}
	})

	t.Run("approved split remainder to creator", func(t *testing.T) {
		// 600 splits evenly; prove the remainder rule with an odd escrow.
		f := newFixture(t)
		f.addAgent(t, "creator", "auth-c", 0, 1000)
		f.addAgent(t, "worker", "auth-w", 0, 0)
		req := basicTask("creator", 601)
		f.createTask(t, req, 100)
		f.claim(t, "task-1", "worker", 200)
		d, err := f.eng.InitiateDispute(DisputeRequest{
			DisputeID: "dispute-1", TaskID: "task-1", Initiator: "creator",
			Resolution: models.ResolutionSplit, EvidenceHash: "ab",
		}, f.cfg, 1000)
		if err != nil {
			t.Fatal(err)
		}
		f.addArbiter(t, "arb1", "auth-a1", 100)
		f.addArbiter(t, "arb2", "auth-a2", 100)
		f.addAgent(t, "resolver", "auth-res", 0, 0)
		f.vote(t, "dispute-1", "arb1", true, 1100)
		f.vote(t, "dispute-1", "arb2", true, 1100)

		outcome, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.PaidToWorker != 300 || outcome.PaidToCreator != 301 {
			t.Errorf("payouts = (creator %d, worker %d), want (301, 300)", outcome.PaidToCreator, outcome.PaidToWorker)
		}
	})

	t.Run("rejected refunds creator", func(t *testing.T) {
		f, outcome := resolve(t, models.ResolutionComplete, false)
		if outcome.Approved {
			t.Error("unanimous rejection resolved as approved")
		}
		if outcome.PaidToCreator != 600 || outcome.PaidToWorker != 0 {
			t.Errorf("payouts = (creator %d, worker %d), want (600, 0)", outcome.PaidToCreator, outcome.PaidToWorker)
		}
		// Escrow settled exactly once.
		escrow, _ := f.eng.Escrow("task-1")
		if !escrow.IsClosed || escrow.Distributed != 600 {
			t.Errorf("escrow = closed:%v distributed:%d", escrow.IsClosed, escrow.Distributed)
		}
		if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, 999999); !errors.Is(err, ErrDisputeNotActive) {
			t.Errorf("second resolve: got %v", err)
		}
	})
}

func TestResolveReleasesDefendantClaimOnce(t *testing.T) {
	f := newFixture(t)
	d := disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-a1", 100)
	f.addArbiter(t, "arb2", "auth-a2", 100)
	f.addAgent(t, "resolver", "auth-res", 0, 0)
	f.addAgent(t, "janitor", "auth-j", 0, 0)

	// A second live claim by the defendant; its slot must survive the
	// settlement of the first task.
	req := basicTask("creator", 100)
	req.TaskID = "task-2"
	f.createTask(t, req, 1050)
	f.claim(t, "task-2", "worker", 1060)

	f.vote(t, "dispute-1", "arb1", false, 1100)
	f.vote(t, "dispute-1", "arb2", false, 1100)
	if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline); err != nil {
		t.Fatal(err)
	}
	worker, _ := f.dir.Get("worker")
	if worker.ActiveTasks != 1 {
		t.Fatalf("worker active tasks = %d after settlement, want 1", worker.ActiveTasks)
	}

	// The settled claim record went with its counter; cleanup finds nothing.
	if _, err := f.eng.ExpireClaim("task-1", "worker", "janitor", f.cfg, 999999); !errors.Is(err, ErrClaimNotFound) {
		t.Errorf("expire settled claim: got %v", err)
	}
	worker, _ = f.dir.Get("worker")
	if worker.ActiveTasks != 1 {
		t.Errorf("worker active tasks = %d, want live claim still counted", worker.ActiveTasks)
	}
}

func TestResolveLeavesCompletedClaimAlone(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "creator", "auth-c", 0, 2000)
	f.addAgent(t, "worker", "auth-w", 0, 0)
	f.addArbiter(t, "arb1", "auth-a1", 100)
	f.addArbiter(t, "arb2", "auth-a2", 100)
	f.addAgent(t, "resolver", "auth-res", 0, 0)

	// The worker completes task-1 (releasing that slot) and then claims
	// task-2, so one slot is held when the dispute settles.
	f.createTask(t, basicTask("creator", 600), 100)
	f.claim(t, "task-1", "worker", 200)
	f.complete(t, "task-1", "worker", 300)
	req := basicTask("creator", 200)
	req.TaskID = "task-2"
	f.createTask(t, req, 400)
	f.claim(t, "task-2", "worker", 500)

	d, err := f.eng.InitiateDispute(DisputeRequest{
		DisputeID: "dispute-1", TaskID: "task-1", Initiator: "creator",
		Resolution: models.ResolutionRefund, EvidenceHash: "ab",
	}, f.cfg, 1000)
	if err != nil {
		t.Fatal(err)
	}
	f.vote(t, "dispute-1", "arb1", false, 1100)
	f.vote(t, "dispute-1", "arb2", false, 1100)
	if _, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline); err != nil {
		t.Fatal(err)
	}

	worker, _ := f.dir.Get("worker")
	if worker.ActiveTasks != 1 {
		t.Errorf("worker active tasks = %d, want 1: completed claim released its slot at completion", worker.ActiveTasks)
	}
	claim, err := f.eng.Claim("task-1", "worker")
	if err != nil {
		t.Fatalf("completed claim record must survive settlement: %v", err)
	}
	if !claim.IsCompleted {
		t.Error("claim lost its completed flag")
	}
}

func TestResolveLandslideRejection(t *testing.T) {
	// One approval against ten rejections: rejected, creator refunded.
	f := newFixture(t)
	d := disputedTask(t, f, models.ResolutionComplete)
	f.addArbiter(t, "lone", "auth-lone", 2)
	for i := 0; i < 10; i++ {
		id := "no-" + string(rune('a'+i))
		f.addArbiter(t, id, "auth-"+id, 2)
	}
	f.addAgent(t, "resolver", "auth-res", 0, 0)

	f.vote(t, "dispute-1", "lone", true, 1100)
	for i := 0; i < 10; i++ {
		f.vote(t, "dispute-1", "no-"+string(rune('a'+i)), false, 1100)
	}

	outcome, err := f.eng.ResolveDispute("dispute-1", "resolver", f.cfg, d.VotingDeadline)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Approved {
		t.Error("1/11 approval resolved as approved")
	}
	if got := f.book.Balance(ledger.AgentAccount("auth-c")); got != 1000 {
		t.Errorf("creator balance = %d, want full 1000 back", got)
	}
	task, _ := f.eng.Task("task-1")
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("status = %s, want cancelled", task.Status)
	}
}

func TestCancelDispute(t *testing.T) {
	f := newFixture(t)
	disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-a1", 100)

	if err := f.eng.CancelDispute("dispute-1", "worker", 1100); !errors.Is(err, ErrNotInitiator) {
		t.Errorf("non-initiator cancel: got %v", err)
	}
	if err := f.eng.CancelDispute("dispute-1", "creator", 1100); err != nil {
		t.Fatal(err)
	}
	task, _ := f.eng.Task("task-1")
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want restored to in_progress", task.Status)
	}
	d, _ := f.eng.Dispute("dispute-1")
	if d.Status != models.DisputeStatusCancelled {
		t.Errorf("dispute status = %s, want cancelled", d.Status)
	}
}

func TestCancelDisputeBlockedByVotes(t *testing.T) {
	f := newFixture(t)
	disputedTask(t, f, models.ResolutionRefund)
	f.addArbiter(t, "arb1", "auth-a1", 100)
	f.vote(t, "dispute-1", "arb1", true, 1100)

	if err := f.eng.CancelDispute("dispute-1", "creator", 1200); !errors.Is(err, ErrDisputeHasVotes) {
		t.Errorf("expected ErrDisputeHasVotes, got %v", err)
	}
}

func TestExpireDispute(t *testing.T) {
	t.Run("not yet expirable", func(t *testing.T) {
		f := newFixture(t)
		d := disputedTask(t, f, models.ResolutionRefund)
		f.addAgent(t, "anyone", "auth-any", 0, 0)
		if _, err := f.eng.ExpireDispute("dispute-1", "anyone", f.cfg, d.VotingDeadline-1); !errors.Is(err, ErrDisputeNotExpirable) {
			t.Errorf("before both deadlines: got %v", err)
		}
	})

	t.Run("no votes incomplete work splits evenly", func(t *testing.T) {
		f := newFixture(t)
		d := disputedTask(t, f, models.ResolutionRefund)
		f.addAgent(t, "anyone", "auth-any", 0, 0)
		outcome, err := f.eng.ExpireDispute("dispute-1", "anyone", f.cfg, d.VotingDeadline)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.PaidToWorker != 300 || outcome.PaidToCreator != 300 {
			t.Errorf("payouts = (creator %d, worker %d), want even 300 each", outcome.PaidToCreator, outcome.PaidToWorker)
		}
		d2, _ := f.eng.Dispute("dispute-1")
		if d2.Status != models.DisputeStatusExpired {
			t.Errorf("dispute status = %s, want expired", d2.Status)
		}
		if _, err := f.eng.ExpireDispute("dispute-1", "anyone", f.cfg, d.ExpiresAt+1); !errors.Is(err, ErrDisputeNotActive) {
			t.Errorf("second expiry: got %v", err)
		}
	})

	t.Run("no votes completed work pays worker", func(t *testing.T) {
		f := newFixture(t)
		f.addAgent(t, "creator", "auth-c", 0, 2000)
		f.addAgent(t, "w1", "auth-1", 0, 0)
		f.addAgent(t, "w2", "auth-2", 0, 0)
		f.addAgent(t, "anyone", "auth-any", 0, 0)

		// Collaborative task where one completion landed before the dispute.
		req := basicTask("creator", 1000)
		req.Type = models.TaskTypeCollaborative
		req.MaxWorkers = 2
		f.createTask(t, req, 100)
		f.claim(t, "task-1", "w1", 200)
		f.claim(t, "task-1", "w2", 200)
		f.complete(t, "task-1", "w1", 300)

		d, err := f.eng.InitiateDispute(DisputeRequest{
			DisputeID: "dispute-1", TaskID: "task-1", Initiator: "creator",
			Defendant: "w1", Resolution: models.ResolutionRefund, EvidenceHash: "ab",
		}, f.cfg, 1000)
		if err != nil {
			t.Fatal(err)
		}
		outcome, err := f.eng.ExpireDispute("dispute-1", "anyone", f.cfg, d.ExpiresAt+1)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.PaidToWorker != 500 || outcome.PaidToCreator != 0 {
			t.Errorf("payouts = (creator %d, worker %d), want all 500 to worker", outcome.PaidToCreator, outcome.PaidToWorker)
		}

		// w2's unsettled claim stays behind; its cleanup pays nothing from
		// the closed escrow and never revives the task.
		reward, err := f.eng.ExpireClaim("task-1", "w2", "anyone", f.cfg, 999999)
		if err != nil {
			t.Fatal(err)
		}
		if reward != 0 {
			t.Errorf("cleanup reward = %d from a closed escrow, want 0", reward)
		}
		task, _ := f.eng.Task("task-1")
		if task.Status != models.TaskStatusCancelled {
			t.Errorf("status = %s, settled task must stay cancelled", task.Status)
		}
		w2, _ := f.dir.Get("w2")
		if w2.ActiveTasks != 0 {
			t.Errorf("w2 active tasks = %d, want 0", w2.ActiveTasks)
		}
	})

	t.Run("contested but unresolved refunds creator", func(t *testing.T) {
		f := newFixture(t)
		d := disputedTask(t, f, models.ResolutionComplete)
		f.addArbiter(t, "arb1", "auth-a1", 100)
		f.addAgent(t, "anyone", "auth-any", 0, 0)
		f.vote(t, "dispute-1", "arb1", true, 1100)

		outcome, err := f.eng.ExpireDispute("dispute-1", "anyone", f.cfg, d.ExpiresAt+1)
		if err != nil {
			t.Fatal(err)
		}
		if outcome.PaidToCreator != 600 || outcome.PaidToWorker != 0 {
			t.Errorf("payouts = (creator %d, worker %d), want all 600 to creator", outcome.PaidToCreator, outcome.PaidToWorker)
		}
	})
}
