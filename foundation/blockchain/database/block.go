package database

import (
	"strconv"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// GenesisParent is the previous hash carried by the first block of a chain.
const GenesisParent = ""

// maxDifficulty is the number of hex characters in a hash.
const maxDifficulty = 64

// =============================================================================

// Block represents a group of transactions batched together. The first
// transaction is always the coinbase transaction.
type Block struct {
	PrevHash  string `json:"prev_hash"` // Hash of the previous block in the chain.
	TimeStamp uint64 `json:"timestamp"` // Time the block was mined in milliseconds.
	Nonce     uint64 `json:"nonce"`     // Value identified to solve the hash solution.
	Trans     []Tx   `json:"transactions"`
}

// NewBlock constructs a block on top of the specified previous hash. The
// transactions are copied so the block doesn't share them with the caller.
func NewBlock(prevHash string, trans []Tx) Block {
	return Block{
		PrevHash: prevHash,
		Trans:    append([]Tx{}, trans...),
	}
}

// Hash returns the unique hash for the Block.
func (b Block) Hash(crypto signature.Provider) string {
	return HashBlock(crypto, b.PrevHash, b.TimeStamp, b.Nonce, TransDigest(crypto, b.Trans))
}

// Coinbase returns the reward transaction of the block.
func (b Block) Coinbase() (Tx, bool) {
	if len(b.Trans) == 0 {
		return Tx{}, false
	}

	return b.Trans[0], true
}

// Contains reports whether the block carries a transaction with the id.
func (b Block) Contains(crypto signature.Provider, id string) bool {
	for _, tx := range b.Trans {
		if tx.Hash(crypto) == id {
			return true
		}
	}

	return false
}

// =============================================================================

// TransDigest concatenates the hashes of the transactions. Mining reuses
// the digest across nonce attempts since it only changes with the
// transaction set.
func TransDigest(crypto signature.Provider, trans []Tx) string {
	var sb strings.Builder
	for _, tx := range trans {
		sb.WriteString(tx.Hash(crypto))
	}

	return sb.String()
}

// HashBlock computes a block hash from its parts.
func HashBlock(crypto signature.Provider, prevHash string, timeStamp uint64, nonce uint64, transDigest string) string {
	var sb strings.Builder
	sb.WriteString(prevHash)
	sb.WriteString(strconv.FormatUint(timeStamp, 10))
	sb.WriteString(strconv.FormatUint(nonce, 10))
	sb.WriteString(transDigest)

	return signature.ToHex(crypto.Hash([]byte(sb.String())))
}

// IsHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func IsHashSolved(difficulty int, hash string) bool {
	hash = strings.TrimPrefix(hash, "0x")

	if difficulty <= 0 {
		return true
	}

	if difficulty > maxDifficulty || difficulty > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == difficulty
}
