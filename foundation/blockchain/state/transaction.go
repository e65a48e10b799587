package state

import (
	"errors"
	"math/bits"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Set of errors for transactions that can't be built.
var (
	ErrInvalidRecipient = errors.New("recipient is not a valid address")
	ErrNothingToSend    = errors.New("amount and fee are both zero")
)

// SendResult represents the outcome of sending coins.
type SendResult int

// Set of outcomes for sending coins.
const (
	SendSuccess SendResult = iota
	SendInsufficientFunds
)

// String implements the fmt.Stringer interface.
func (r SendResult) String() string {
	switch r {
	case SendSuccess:
		return "success"
	case SendInsufficientFunds:
		return "insufficient funds"
	}

	return "unknown"
}

// =============================================================================

// MakeTransaction sends the amount to the recipient, paying the fee to the
// miner of the block that confirms it. The owner's unspent transactions are
// spent oldest first until they cover the amount and the fee, and the
// difference comes back to the owner as change.
func (s *State) MakeTransaction(amount uint64, recipient database.Address, fee uint64) (SendResult, error) {
	if !recipient.IsAddress() {
		return 0, ErrInvalidRecipient
	}

	total, carry := bits.Add64(amount, fee, 0)
	if carry != 0 {
		return SendInsufficientFunds, nil
	}

	if total == 0 {
		return 0, ErrNothingToSend
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var inputs []database.Input
	var ids []string
	var available uint64
	for _, tx := range s.db.Relevant() {
		id := tx.Hash(s.crypto)
		for i, out := range tx.Outputs {
			if out.Recipient == s.address {
				inputs = append(inputs, database.Input{TransactionID: id, OutputIndex: i})
			}
		}

		ids = append(ids, id)
		available += tx.AmountTo(s.address)

		if available >= total {
			break
		}
	}

	if available < total {
		s.evHandler("state: MakeTransaction: insufficient funds: available[%d]: required[%d]", available, total)
		return SendInsufficientFunds, nil
	}

	outputs := []database.Output{
		{Amount: amount, Recipient: recipient},
		{Amount: available - total, Recipient: s.address},
	}

	tx, err := database.NewTx(s.publicKey, inputs, outputs).Sign(s.crypto, s.privateKey)
	if err != nil {
		return 0, err
	}

	s.db.RemoveRelevant(ids...)
	s.miner.IncludeTransaction(tx)
	s.updateBalance()

	s.metrics.transactions.WithLabelValues("sent").Inc()
	s.evHandler("state: MakeTransaction: tx[%s]: to[%s]: amount[%d]: fee[%d]: change[%d]", tx.Hash(s.crypto), recipient, amount, fee, available-total)

	s.signalShare(TxMessage{Tx: tx})

	return SendSuccess, nil
}

// processTx validates a transaction received from a peer against the
// confirmed transactions and the ones waiting to be mined, and queues it
// for mining when it is valid.
func (s *State) processTx(tx database.Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.db.Confirmed()
	for _, pending := range s.miner.Transactions() {
		ref.Put(pending.Hash(s.crypto), pending)
	}

	if !s.db.ValidateTransaction(tx, ref) {
		s.metrics.transactions.WithLabelValues("rejected").Inc()
		return
	}

	s.miner.IncludeTransaction(tx)
	s.metrics.transactions.WithLabelValues("accepted").Inc()
}
