package public

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
)

type peerInfo struct {
	Name           string           `json:"name"`
	Address        database.Address `json:"address"`
	NetworkAddress string           `json:"network_address"`
	Connected      bool             `json:"connected"`
	Ready          bool             `json:"ready"`
}

type balance struct {
	Name    string           `json:"name"`
	Address database.Address `json:"address"`
	Balance uint64           `json:"balance"`
}

type output struct {
	Amount    uint64           `json:"amount"`
	Recipient database.Address `json:"recipient"`
	Name      string           `json:"name"`
}

type tx struct {
	ID         string           `json:"id"`
	Coinbase   bool             `json:"coinbase"`
	Sender     database.Address `json:"sender,omitempty"`
	SenderName string           `json:"sender_name,omitempty"`
	Inputs     []database.Input `json:"inputs"`
	Outputs    []output         `json:"outputs"`
	Signature  string           `json:"signature,omitempty"`
}

type block struct {
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash"`
	Height    int    `json:"height,omitempty"`
	TimeStamp uint64 `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Trans     []tx   `json:"transactions"`
}

// SendRequest is the payload for sending coins. To accepts either a peer
// name known to the name service or an address.
type SendRequest struct {
	To     string `json:"to" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Fee    uint64 `json:"fee"`
}

type sendResponse struct {
	Status string `json:"status"`
}

type event struct {
	Type    string  `json:"type"`
	Peer    string  `json:"peer,omitempty"`
	Message string  `json:"message,omitempty"`
	Balance *uint64 `json:"balance,omitempty"`
}

// =============================================================================

func toTx(crypto signature.Provider, ns *nameservice.NameService, dbTx database.Tx) tx {
	outs := make([]output, len(dbTx.Outputs))
	for i, out := range dbTx.Outputs {
		outs[i] = output{
			Amount:    out.Amount,
			Recipient: out.Recipient,
			Name:      ns.Lookup(out.Recipient),
		}
	}

	t := tx{
		ID:        dbTx.Hash(crypto),
		Coinbase:  dbTx.IsCoinbase(),
		Inputs:    dbTx.Inputs,
		Outputs:   outs,
		Signature: dbTx.SenderSignature,
	}

	if !t.Coinbase {
		t.Sender = dbTx.SenderAddress(crypto)
		t.SenderName = ns.Lookup(t.Sender)
	}

	return t
}

func toTxs(crypto signature.Provider, ns *nameservice.NameService, dbTxs []database.Tx) []tx {
	txs := make([]tx, len(dbTxs))
	for i, dbTx := range dbTxs {
		txs[i] = toTx(crypto, ns, dbTx)
	}
	return txs
}

func toBlock(crypto signature.Provider, ns *nameservice.NameService, dbBlock database.Block, height int) block {
	return block{
		Hash:      dbBlock.Hash(crypto),
		PrevHash:  dbBlock.PrevHash,
		Height:    height,
		TimeStamp: dbBlock.TimeStamp,
		Nonce:     dbBlock.Nonce,
		Trans:     toTxs(crypto, ns, dbBlock.Trans),
	}
}
