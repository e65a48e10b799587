package database

import "math"

// adjustExponent dampens how fast the difficulty follows the block time.
const adjustExponent = 0.1

// AdjustDifficulty scales the current difficulty by (target/average)^0.1
// where average is the mean time between the window timestamps, ordered
// oldest first. The result is truncated and kept between 1 and the number of
// hex characters in a hash.
func AdjustDifficulty(current int, timeStamps []uint64, targetMS uint64) int {
	if len(timeStamps) < 2 {
		return current
	}

	first, last := timeStamps[0], timeStamps[len(timeStamps)-1]

	avg := 1.0
	if last > first {
		avg = math.Max(float64(last-first)/float64(len(timeStamps)), 1)
	}

	next := int(float64(current) * math.Pow(float64(targetMS)/avg, adjustExponent))

	switch {
	case next < 1:
		return 1
	case next > maxDifficulty:
		return maxDifficulty
	}

	return next
}

// =============================================================================

// NextDifficulty returns the difficulty a block extending the specified
// block must meet. The value is a function of the chain ending at that
// block, so every node computes the same difficulty for the same parent.
// The difficulty stays at the genesis value until the chain holds a full
// window of blocks, after which it is adjusted on every block.
func (db *Database) NextDifficulty(prevHash string) int {
	if prevHash == GenesisParent {
		return db.genesis.Difficulty
	}

	if d, exists := db.difficulties[prevHash]; exists {
		return d
	}

	// Walk back to the closest block whose value is already known.
	var path []string
	for hash := prevHash; hash != GenesisParent; {
		if _, exists := db.difficulties[hash]; exists {
			break
		}

		block, exists := db.blocks[hash]
		if !exists {
			break
		}

		path = append(path, hash)
		hash = block.PrevHash
	}

	for i := len(path) - 1; i >= 0; i-- {
		hash := path[i]
		block := db.blocks[hash]

		current := db.genesis.Difficulty
		if block.PrevHash != GenesisParent {
			if d, exists := db.difficulties[block.PrevHash]; exists {
				current = d
			}
		}

		db.difficulties[hash] = db.adjustAt(hash, current)
	}

	if d, exists := db.difficulties[prevHash]; exists {
		return d
	}

	return db.genesis.Difficulty
}

// adjustAt applies the adjustment over the window of blocks that ends at
// the specified block.
func (db *Database) adjustAt(hash string, current int) int {
	window := db.genesis.DifficultyWindow

	timeStamps := make([]uint64, window)
	for i := window - 1; i >= 0; i-- {
		block, exists := db.blocks[hash]
		if !exists {
			return current
		}

		timeStamps[i] = block.TimeStamp
		hash = block.PrevHash
	}

	return AdjustDifficulty(current, timeStamps, db.genesis.TargetBlockTimeMS)
}
