// Package config handles protocol configuration for Agora.
// Operations never read ambient global state: a Params snapshot is taken
// from the loaded configuration and passed explicitly per call, which is
// also what makes the fee-locked-at-creation rule natural.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/kessler-labs/agora/internal/agentdir"
)

// Basis point and percentage bases.
const (
	BasisPointsDivisor = 10000
	MaxProtocolFeeBps  = 1000
	PercentBase        = 100
)

// Protocol timing defaults, in seconds.
const (
	DefaultVotingPeriod       = 24 * 60 * 60
	DefaultMaxClaimDuration   = 7 * 24 * 60 * 60
	DefaultMaxDisputeDuration = 7 * 24 * 60 * 60
	DefaultSlashWindow        = 7 * 24 * 60 * 60
	DefaultClaimGracePeriod   = 60 * 60
)

// Params is the immutable per-operation snapshot of protocol configuration.
type Params struct {
	// ProtocolFeeBps is the fee rate in basis points, locked onto each task
	// at creation time.
	ProtocolFeeBps uint16 `mapstructure:"protocol_fee_bps"`
	// DisputeThreshold is the weighted approval percentage (1-99) at or
	// above which a dispute is approved.
	DisputeThreshold int `mapstructure:"dispute_threshold"`
	// MinQuorum is the minimum distinct voters required to resolve.
	MinQuorum int `mapstructure:"min_quorum"`
	// MinArbiterStake is the stake floor for casting dispute votes.
	MinArbiterStake uint64 `mapstructure:"min_arbiter_stake"`
	// MinStakeForDispute is the stake floor for initiating a dispute.
	MinStakeForDispute uint64 `mapstructure:"min_stake_for_dispute"`
	// SlashPercentage is the stake share (0-100) removed on a lost dispute.
	SlashPercentage int `mapstructure:"slash_percentage"`
	// SlashWindow bounds how long after resolution a slash may be applied.
	SlashWindow int64 `mapstructure:"slash_window"`
	// VotingPeriod is the dispute voting window length.
	VotingPeriod int64 `mapstructure:"voting_period"`
	// MaxDisputeDuration is the outer dispute timeout.
	MaxDisputeDuration int64 `mapstructure:"max_dispute_duration"`
	// MaxClaimDuration bounds claims on tasks without a deadline.
	MaxClaimDuration int64 `mapstructure:"max_claim_duration"`
	// ClaimGracePeriod extends claim expiry past the task deadline.
	ClaimGracePeriod int64 `mapstructure:"claim_grace_period"`
	// ClaimCleanupReward pays permissionless claim expiry, capped by the
	// escrow's remaining balance.
	ClaimCleanupReward uint64 `mapstructure:"claim_cleanup_reward"`
	// RateLimits configures creation/initiation cooldowns and window caps.
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
}

// RateLimitsConfig mirrors agentdir.RateLimits for configuration loading.
type RateLimitsConfig struct {
	TaskCreationCooldown      int64 `mapstructure:"task_creation_cooldown"`
	MaxTasksPer24h            int   `mapstructure:"max_tasks_per_24h"`
	DisputeInitiationCooldown int64 `mapstructure:"dispute_initiation_cooldown"`
	MaxDisputesPer24h         int   `mapstructure:"max_disputes_per_24h"`
}

// Limits converts the configured rate limits for the agent directory.
func (p Params) Limits() agentdir.RateLimits {
	return agentdir.RateLimits{
		TaskCreationCooldown:      p.RateLimits.TaskCreationCooldown,
		MaxTasksPer24h:            p.RateLimits.MaxTasksPer24h,
		DisputeInitiationCooldown: p.RateLimits.DisputeInitiationCooldown,
		MaxDisputesPer24h:         p.RateLimits.MaxDisputesPer24h,
	}
}

// Default returns the protocol defaults.
func Default() Params {
	return Params{
		ProtocolFeeBps:     100,
		DisputeThreshold:   50,
		MinQuorum:          2,
		MinArbiterStake:    0,
		MinStakeForDispute: 0,
		SlashPercentage:    10,
		SlashWindow:        DefaultSlashWindow,
		VotingPeriod:       DefaultVotingPeriod,
		MaxDisputeDuration: DefaultMaxDisputeDuration,
		MaxClaimDuration:   DefaultMaxClaimDuration,
		ClaimGracePeriod:   DefaultClaimGracePeriod,
		ClaimCleanupReward: 1000,
		RateLimits: RateLimitsConfig{
			TaskCreationCooldown:      60,
			MaxTasksPer24h:            50,
			DisputeInitiationCooldown: 300,
			MaxDisputesPer24h:         10,
		},
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.ProtocolFeeBps > MaxProtocolFeeBps {
		return fmt.Errorf("protocol_fee_bps %d exceeds maximum %d", p.ProtocolFeeBps, MaxProtocolFeeBps)
	}
	if p.DisputeThreshold < 1 || p.DisputeThreshold > 99 {
		return fmt.Errorf("dispute_threshold %d out of range [1, 99]", p.DisputeThreshold)
	}
	if p.MinQuorum < 1 {
		return fmt.Errorf("min_quorum %d must be at least 1", p.MinQuorum)
	}
	if p.SlashPercentage < 0 || p.SlashPercentage > 100 {
		return fmt.Errorf("slash_percentage %d out of range [0, 100]", p.SlashPercentage)
	}
	if p.VotingPeriod <= 0 {
		return fmt.Errorf("voting_period must be positive")
	}
	if p.MaxDisputeDuration < p.VotingPeriod {
		return fmt.Errorf("max_dispute_duration must be at least the voting period")
	}
	if p.MaxClaimDuration <= 0 {
		return fmt.Errorf("max_claim_duration must be positive")
	}
	return nil
}

// ConfigFileName is the protocol configuration file Agora looks for.
const ConfigFileName = "agora.yaml"

// DefaultConfigPath returns the XDG config location for the protocol file.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "agora", ConfigFileName)
}

// Load reads protocol parameters from the given file path, falling back to
// defaults for any unset key. An empty path searches the working directory
// and the XDG config location.
func Load(path string) (Params, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AGORA")
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agora")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(DefaultConfigPath()))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Params{}, fmt.Errorf("read config: %w", err)
		}
		// No file found during search; defaults apply.
	}

	var p Params
	if err := v.Unmarshal(&p); err != nil {
		return Params{}, fmt.Errorf("parse config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid config: %w", err)
	}
	return p, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("protocol_fee_bps", d.ProtocolFeeBps)
	v.SetDefault("dispute_threshold", d.DisputeThreshold)
	v.SetDefault("min_quorum", d.MinQuorum)
	v.SetDefault("min_arbiter_stake", d.MinArbiterStake)
	v.SetDefault("min_stake_for_dispute", d.MinStakeForDispute)
	v.SetDefault("slash_percentage", d.SlashPercentage)
	v.SetDefault("slash_window", d.SlashWindow)
	v.SetDefault("voting_period", d.VotingPeriod)
	v.SetDefault("max_dispute_duration", d.MaxDisputeDuration)
	v.SetDefault("max_claim_duration", d.MaxClaimDuration)
	v.SetDefault("claim_grace_period", d.ClaimGracePeriod)
	v.SetDefault("claim_cleanup_reward", d.ClaimCleanupReward)
	v.SetDefault("rate_limits.task_creation_cooldown", d.RateLimits.TaskCreationCooldown)
	v.SetDefault("rate_limits.max_tasks_per_24h", d.RateLimits.MaxTasksPer24h)
	v.SetDefault("rate_limits.dispute_initiation_cooldown", d.RateLimits.DisputeInitiationCooldown)
	v.SetDefault("rate_limits.max_disputes_per_24h", d.RateLimits.MaxDisputesPer24h)
}
