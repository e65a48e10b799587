package state

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
)

// TxMessage carries a transaction broadcast to the network.
type TxMessage struct {
	Tx database.Tx `json:"tx"`
}

// TypeName implements the protocol.Message interface.
func (TxMessage) TypeName() string { return "Transaction" }

// BlockMessage carries a block broadcast to the network.
type BlockMessage struct {
	Block database.Block `json:"block"`
}

// TypeName implements the protocol.Message interface.
func (BlockMessage) TypeName() string { return "Block" }

// =============================================================================

// GetBlockchainRequest asks the peers for every block they know.
type GetBlockchainRequest struct{}

// TypeName implements the protocol.Message interface.
func (GetBlockchainRequest) TypeName() string { return "GetBlockchainRequest" }

// GetBlockchainResponse answers a GetBlockchainRequest with the known
// blocks keyed by hash.
type GetBlockchainResponse struct {
	Blockchain map[string]database.Block `json:"blockchain"`
}

// TypeName implements the protocol.Message interface.
func (GetBlockchainResponse) TypeName() string { return "GetBlockchainResponse" }

// GetUnconfirmedTransactions asks the peers for the transactions they have
// not mined yet.
type GetUnconfirmedTransactions struct{}

// TypeName implements the protocol.Message interface.
func (GetUnconfirmedTransactions) TypeName() string { return "GetUnconfirmedTransactions" }

// GetUnconfirmedTransactionsResponse answers a GetUnconfirmedTransactions
// request.
type GetUnconfirmedTransactionsResponse struct {
	Transactions []database.Tx `json:"transactions"`
}

// TypeName implements the protocol.Message interface.
func (GetUnconfirmedTransactionsResponse) TypeName() string {
	return "GetUnconfirmedTransactionsResponse"
}

// =============================================================================

// NewRegistry returns a registry able to decode every message a node
// exchanges.
func NewRegistry() *protocol.Registry {
	r := protocol.NewRegistry()

	protocol.RegisterType[TxMessage](r)
	protocol.RegisterType[BlockMessage](r)
	protocol.RegisterType[GetBlockchainRequest](r)
	protocol.RegisterType[GetBlockchainResponse](r)
	protocol.RegisterType[GetUnconfirmedTransactions](r)
	protocol.RegisterType[GetUnconfirmedTransactionsResponse](r)

	return r
}
