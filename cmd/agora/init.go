package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kessler-labs/agora/internal/config"
	"github.com/kessler-labs/agora/internal/state"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a marketplace configuration",
	Long: `Write an agora.yaml with the protocol defaults and create the
marketplace database.

The directory argument is optional and defaults to the current
directory. Edit the generated file to change protocol parameters;
fee rates are locked onto tasks at creation, so edits only affect
tasks created afterwards.

Examples:
  agora init              # Initialize current directory
  agora init ./market     # Initialize specific directory
  agora init --force      # Overwrite an existing agora.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

// configFile mirrors config.Params with yaml tags matching the viper keys.
type configFile struct {
	ProtocolFeeBps     uint16 `yaml:"protocol_fee_bps"`
	DisputeThreshold   int    `yaml:"dispute_threshold"`
	MinQuorum          int    `yaml:"min_quorum"`
	MinArbiterStake    uint64 `yaml:"min_arbiter_stake"`
	MinStakeForDispute uint64 `yaml:"min_stake_for_dispute"`
	SlashPercentage    int    `yaml:"slash_percentage"`
	SlashWindow        int64  `yaml:"slash_window"`
	VotingPeriod       int64  `yaml:"voting_period"`
	MaxDisputeDuration int64  `yaml:"max_dispute_duration"`
	MaxClaimDuration   int64  `yaml:"max_claim_duration"`
	ClaimGracePeriod   int64  `yaml:"claim_grace_period"`
	ClaimCleanupReward uint64 `yaml:"claim_cleanup_reward"`
	RateLimits         struct {
		TaskCreationCooldown      int64 `yaml:"task_creation_cooldown"`
		MaxTasksPer24h            int   `yaml:"max_tasks_per_24h"`
		DisputeInitiationCooldown int64 `yaml:"dispute_initiation_cooldown"`
		MaxDisputesPer24h         int   `yaml:"max_disputes_per_24h"`
	} `yaml:"rate_limits"`
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	configPath := filepath.Join(absPath, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf("%s already exists. Use --force to overwrite.\n", configPath)
		return nil
	}

	defaults := config.Default()
	var file configFile
	file.ProtocolFeeBps = defaults.ProtocolFeeBps
	file.DisputeThreshold = defaults.DisputeThreshold
	file.MinQuorum = defaults.MinQuorum
	file.MinArbiterStake = defaults.MinArbiterStake
	file.MinStakeForDispute = defaults.MinStakeForDispute
	file.SlashPercentage = defaults.SlashPercentage
	file.SlashWindow = defaults.SlashWindow
	file.VotingPeriod = defaults.VotingPeriod
	file.MaxDisputeDuration = defaults.MaxDisputeDuration
	file.MaxClaimDuration = defaults.MaxClaimDuration
	file.ClaimGracePeriod = defaults.ClaimGracePeriod
	file.ClaimCleanupReward = defaults.ClaimCleanupReward
	file.RateLimits.TaskCreationCooldown = defaults.RateLimits.TaskCreationCooldown
	file.RateLimits.MaxTasksPer24h = defaults.RateLimits.MaxTasksPer24h
	file.RateLimits.DisputeInitiationCooldown = defaults.RateLimits.DisputeInitiationCooldown
	file.RateLimits.MaxDisputesPer24h = defaults.RateLimits.MaxDisputesPer24h

	body, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	header := "# Agora protocol configuration.\n# Durations are in seconds, fees in basis points, stakes in base units.\n"
	if err := os.WriteFile(configPath, append([]byte(header), body...), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	printStatus("✓", fmt.Sprintf("Wrote %s", configPath), color.FgGreen)

	dbPath := flagDB
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Database at %s", dbPath), color.FgRed)
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	printStatus("✓", fmt.Sprintf("Database ready at %s", dbPath), color.FgGreen)

	fmt.Println("\nNext steps:")
	fmt.Println("  agora agent register --id alice --authority key-alice --capabilities compute")
	fmt.Println("  agora task create --creator alice --reward 1000 --description \"resize images\"")
	return nil
}

func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}
