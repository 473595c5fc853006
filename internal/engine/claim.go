package engine

import (
	"fmt"

	"github.com/kessler-labs/agora/internal/agentdir"
	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/events"
	"github.com/kessler-labs/agora/pkg/models"
)

// ClaimTask records a worker's time-bounded attempt at a task. Reputation
// decay is committed before the eligibility check; a failed claim may still
// age the worker's reputation, which any caller could trigger anyway since
// decay depends only on idle time.
func (e *Engine) ClaimTask(taskID, workerID string, cfg config.Params, now int64) (models.TaskClaim, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return models.TaskClaim{}, ErrTaskNotFound
	}
	if task.Status != models.TaskStatusOpen && task.Status != models.TaskStatusInProgress {
		return models.TaskClaim{}, fmt.Errorf("%w: status %s", ErrTaskNotClaimable, task.Status)
	}

	// A lapsed, never-completed claim is replaced in place: the worker's
	// slot on the task and their claim counter are still held by the old
	// record, so they carry over instead of being released and re-acquired.
	prior := e.claims[taskID][workerID]
	if prior != nil && (prior.IsCompleted || prior.Active(now)) {
		return models.TaskClaim{}, ErrDuplicateClaim
	}
	replacing := prior != nil

	if !replacing && task.CurrentWorkers >= task.MaxWorkers {
		return models.TaskClaim{}, ErrTaskFull
	}
	if task.Deadline > 0 && now >= task.Deadline {
		return models.TaskClaim{}, ErrDeadlinePassed
	}

	worker, err := e.dir.Get(workerID)
	if err != nil {
		return models.TaskClaim{}, fmt.Errorf("claim task: %w", err)
	}
	if worker.Status != models.AgentStatusActive {
		return models.TaskClaim{}, fmt.Errorf("claim task %s: %w", workerID, agentdir.ErrAgentNotActive)
	}
	if workerID == task.Creator || worker.Authority == task.CreatorAuthority {
		return models.TaskClaim{}, ErrSelfDealing
	}
	if !worker.HasCapabilities(task.RequiredCapabilities) {
		return models.TaskClaim{}, ErrMissingCapabilities
	}
	if !replacing && worker.ActiveTasks >= agentdir.MaxActiveTasks {
		return models.TaskClaim{}, agentdir.ErrMaxActiveTasks
	}

	if _, _, err := e.dir.ApplyDecay(workerID, now); err != nil {
		return models.TaskClaim{}, fmt.Errorf("claim task: %w", err)
	}
	if worker.Reputation < task.MinReputation {
		return models.TaskClaim{}, fmt.Errorf("%w: %d < %d", ErrInsufficientReputation, worker.Reputation, task.MinReputation)
	}

	if !replacing {
		if err := e.dir.IncrementActiveTasks(workerID); err != nil {
			return models.TaskClaim{}, fmt.Errorf("claim task: %w", err)
		}
	}

	expiresAt := now + cfg.MaxClaimDuration
	if task.Deadline > 0 {
		expiresAt = task.Deadline + cfg.ClaimGracePeriod
	}
	claim := &models.TaskClaim{
		TaskID:    taskID,
		Worker:    workerID,
		ClaimedAt: now,
		ExpiresAt: expiresAt,
	}
	if e.claims[taskID] == nil {
		e.claims[taskID] = make(map[string]*models.TaskClaim)
	}
	e.claims[taskID][workerID] = claim
	if !replacing {
		task.CurrentWorkers++
	}
	task.Status = models.TaskStatusInProgress

	e.emit(events.Event{
		Type:         events.TypeTaskClaimed,
		Timestamp:    now,
		TaskID:       taskID,
		Agent:        workerID,
		Counterparty: task.Creator,
	})
	return *claim, nil
}
