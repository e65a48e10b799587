// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Genesis represents the genesis file. It carries the chain wide constants
// every node needs to agree on.
type Genesis struct {
	Date               time.Time `json:"date"`
	Difficulty         int       `json:"difficulty"`          // Initial number of leading zeros needed to solve the hash.
	BaseReward         uint64    `json:"base_reward"`         // Reward for the first block, decays by one per block.
	TargetBlockTimeMS  uint64    `json:"target_block_time"`   // Block time the difficulty adjustment steers towards.
	DifficultyWindow   int       `json:"difficulty_window"`   // Number of recent blocks used to adjust difficulty.
	MiningBudgetMS     uint64    `json:"mining_budget"`       // How long a nonce search runs before the candidate is refreshed.
	BootstrapTimeoutMS uint64    `json:"bootstrap_timeout"`   // How long to wait for peers during bootstrap.
	BootstrapResponses int       `json:"bootstrap_responses"` // How many peer responses end a bootstrap request early.
}

// Default returns the genesis values used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:               time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:         4,
		BaseReward:         100_000_000,
		TargetBlockTimeMS:  30_000,
		DifficultyWindow:   10,
		MiningBudgetMS:     1_000,
		BootstrapTimeoutMS: 500,
		BootstrapResponses: 1,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Any value missing from the file
// takes its default.
func Load(path string) (Genesis, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("reading genesis: %w", err)
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	genesis.fillDefaults()

	return genesis, nil
}

// =============================================================================

// MiningBudget returns the nonce search budget as a duration.
func (g Genesis) MiningBudget() time.Duration {
	return time.Duration(g.MiningBudgetMS) * time.Millisecond
}

// BootstrapTimeout returns the bootstrap wait as a duration.
func (g Genesis) BootstrapTimeout() time.Duration {
	return time.Duration(g.BootstrapTimeoutMS) * time.Millisecond
}

func (g *Genesis) fillDefaults() {
	def := Default()

	if g.Date.IsZero() {
		g.Date = def.Date
	}
	if g.Difficulty <= 0 {
		g.Difficulty = def.Difficulty
	}
	if g.BaseReward == 0 {
		g.BaseReward = def.BaseReward
	}
	if g.TargetBlockTimeMS == 0 {
		g.TargetBlockTimeMS = def.TargetBlockTimeMS
	}
	if g.DifficultyWindow <= 1 {
		g.DifficultyWindow = def.DifficultyWindow
	}
	if g.MiningBudgetMS == 0 {
		g.MiningBudgetMS = def.MiningBudgetMS
	}
	if g.BootstrapTimeoutMS == 0 {
		g.BootstrapTimeoutMS = def.BootstrapTimeoutMS
	}
	if g.BootstrapResponses <= 0 {
		g.BootstrapResponses = def.BootstrapResponses
	}
}
