package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/internal/ledger"
	"github.com/kessler-labs/agora/pkg/models"
)

// MaxWorkersLimit bounds max_workers on any task.
const MaxWorkersLimit = 100

// CreateTaskRequest carries the creation terms for a new task.
type CreateTaskRequest struct {
	TaskID               string
	Creator              string
	Description          string
	ConstraintHash       string
	RequiredCapabilities uint64
	MinReputation        int
	RewardAmount         uint64
	MaxWorkers           int
	Type                 models.TaskType
	Deadline             int64
}

// CreateTask validates the terms, funds a fresh escrow from the creator's
// account, and records the task. The protocol fee rate is copied from cfg
// onto the task; later fee changes never affect tasks already open.
func (e *Engine) CreateTask(req CreateTaskRequest, cfg config.Params, now int64) (models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.TaskID == "" {
		return models.Task{}, fmt.Errorf("%w: task id is required", ErrInvalidTask)
	}
	if req.Description == "" {
		return models.Task{}, fmt.Errorf("%w: description is required", ErrInvalidTask)
	}
	if req.MaxWorkers <= 0 || req.MaxWorkers > MaxWorkersLimit {
		return models.Task{}, fmt.Errorf("%w: max_workers %d out of range (0, %d]", ErrInvalidTask, req.MaxWorkers, MaxWorkersLimit)
	}
	if !req.Type.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown task type %q", ErrInvalidTask, req.Type)
	}
	if req.RewardAmount == 0 {
		return models.Task{}, fmt.Errorf("%w: reward_amount must be positive", ErrInvalidTask)
	}
	if req.Deadline != 0 && req.Deadline <= now {
		return models.Task{}, fmt.Errorf("%w: deadline must be in the future", ErrInvalidTask)
	}
	if _, exists := e.tasks[req.TaskID]; exists {
		return models.Task{}, ErrTaskExists
	}

	creator, err := e.dir.Get(req.Creator)
	if err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	creatorAccount := ledger.AgentAccount(creator.Authority)
	if e.book.Balance(creatorAccount) < req.RewardAmount {
		return models.Task{}, fmt.Errorf("create task: %w", ledger.ErrInsufficientFunds)
	}

	// Rate-limit counters commit here; the funding transfer below cannot
	// fail after the balance check because the engine lock serializes all
	// marketplace balance movement.
	if err := e.dir.CheckTaskCreation(req.Creator, cfg.Limits(), now); err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := e.book.Transfer(creatorAccount, ledger.EscrowAccount(req.TaskID), req.RewardAmount); err != nil {
		return models.Task{}, fmt.Errorf("create task: fund escrow: %w", err)
	}

	requiredCompletions := 1
	if req.Type == models.TaskTypeCollaborative {
		requiredCompletions = req.MaxWorkers
	}
	task := &models.Task{
		ID:                   req.TaskID,
		Creator:              req.Creator,
		CreatorAuthority:     creator.Authority,
		Description:          req.Description,
		ConstraintHash:       req.ConstraintHash,
		RequiredCapabilities: req.RequiredCapabilities,
		MinReputation:        req.MinReputation,
		RewardAmount:         req.RewardAmount,
		ProtocolFeeBps:       cfg.ProtocolFeeBps,
		MaxWorkers:           req.MaxWorkers,
		Status:               models.TaskStatusOpen,
		Type:                 req.Type,
		CreatedAt:            now,
		Deadline:             req.Deadline,
		RequiredCompletions:  requiredCompletions,
	}
	e.tasks[task.ID] = task
	e.escrows[task.ID] = &models.TaskEscrow{
		TaskID: task.ID,
		Amount: req.RewardAmount,
	}

	e.emit(events.Event{
		Type:      events.TypeTaskCreated,
		Timestamp: now,
		TaskID:    task.ID,
		Agent:     req.Creator,
		Amount:    req.RewardAmount,
		Detail:    string(task.Type),
	})
	return *task, nil
}
