package agentdir

import "errors"

// Rate limiting errors.
var (
	// ErrCooldownNotElapsed indicates the per-action cooldown has not passed.
	ErrCooldownNotElapsed = errors.New("cooldown period has not elapsed")
	// ErrRateLimitExceeded indicates the 24h window limit was reached.
	ErrRateLimitExceeded = errors.New("rate limit exceeded for 24h window")
)

// Window24h is the rolling rate-limit window in seconds.
const Window24h = 24 * 60 * 60

// RateLimits configures cooldowns and rolling-window caps. Zero values
// disable the corresponding check.
type RateLimits struct {
	TaskCreationCooldown      int64
	MaxTasksPer24h            int
	DisputeInitiationCooldown int64
	MaxDisputesPer24h         int
}

// CheckTaskCreation validates and records a task creation against the
// agent's rate limits. On success the agent's counters are updated; on
// failure nothing changes.
func (d *Directory) CheckTaskCreation(id string, limits RateLimits, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}

	if limits.TaskCreationCooldown > 0 && agent.LastTaskCreated > 0 {
		if now-agent.LastTaskCreated < limits.TaskCreationCooldown {
			return ErrCooldownNotElapsed
		}
	}

	resetWindow := now-agent.RateLimitWindowStart >= Window24h
	if limits.MaxTasksPer24h > 0 {
		count := agent.TaskCount24h
		if resetWindow {
			count = 0
		}
		if count >= limits.MaxTasksPer24h {
			return ErrRateLimitExceeded
		}
	}

	// All checks passed; commit the counter updates.
	if resetWindow {
		// Round the window start to prevent drift.
		agent.RateLimitWindowStart = (now / Window24h) * Window24h
		agent.TaskCount24h = 0
		agent.DisputeCount24h = 0
	}
	agent.TaskCount24h++
	agent.LastTaskCreated = now
	agent.LastActive = now
	return nil
}

// CheckDisputeInitiation validates and records a dispute initiation against
// the agent's rate limits. On success the agent's counters are updated; on
// failure nothing changes.
func (d *Directory) CheckDisputeInitiation(id string, limits RateLimits, now int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return ErrAgentNotFound
	}

	if limits.DisputeInitiationCooldown > 0 && agent.LastDisputeInitiated > 0 {
		if now-agent.LastDisputeInitiated < limits.DisputeInitiationCooldown {
			return ErrCooldownNotElapsed
		}
	}

	resetWindow := now-agent.RateLimitWindowStart >= Window24h
	if limits.MaxDisputesPer24h > 0 {
		count := agent.DisputeCount24h
		if resetWindow {
			count = 0
		}
		if count >= limits.MaxDisputesPer24h {
			return ErrRateLimitExceeded
		}
	}

	if resetWindow {
		agent.RateLimitWindowStart = (now / Window24h) * Window24h
		agent.TaskCount24h = 0
		agent.DisputeCount24h = 0
	}
	agent.DisputeCount24h++
	agent.LastDisputeInitiated = now
	agent.LastActive = now
	return nil
}
