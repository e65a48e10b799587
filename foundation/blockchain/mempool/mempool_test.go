package mempool_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sign(prv signature.Provider, in database.Input, amount uint64) (database.Tx, error) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		return database.Tx{}, err
	}

	owner := database.PublicKeyToAddress(prv, &pk.PublicKey)
	tx := database.NewTx(signature.PublicKeyBytes(&pk.PublicKey), []database.Input{in}, []database.Output{
		{Amount: amount, Recipient: owner},
	})

	return tx.Sign(prv, pk)
}

func TestCRUD(t *testing.T) {
	type table struct {
		name    string
		inputs  []database.Input
		amounts []uint64
	}

	tt := []table{
		{
			name: "basic",
			inputs: []database.Input{
				{TransactionID: "0x02", OutputIndex: 0},
				{TransactionID: "0x03", OutputIndex: 1},
				{TransactionID: "0x04", OutputIndex: 0},
				{TransactionID: "0x01", OutputIndex: 2},
			},
			amounts: []uint64{10, 50, 100, 10},
		},
	}

	t.Log("Given the need to validate mempool api.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					prv := signature.New()
					mp := mempool.New(prv)

					var ids []string
					for i, in := range tst.inputs {
						tx, err := sign(prv, in, tst.amounts[i])
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to sign transaction.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to sign transaction.", success, testID)

						mp.Upsert(tx)
						ids = append(ids, tx.Hash(prv))
						t.Logf("\t%s\tTest %d:\tShould be able to add new transaction: %s", success, testID, ids[i][:10])
					}

					first := mp.Copy()[0]
					if n := mp.Upsert(first); n != len(tst.inputs) {
						t.Fatalf("\t%s\tTest %d:\tShould not add a transaction twice: got %d", failed, testID, n)
					}
					t.Logf("\t%s\tTest %d:\tShould not add a transaction twice.", success, testID)

					for i, tx := range mp.Copy() {
						if tx.Hash(prv) != ids[i] {
							t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, tx.Hash(prv))
							t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, ids[i])
							t.Fatalf("\t%s\tTest %d:\tShould get back the arrival order.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould get back the arrival order: %d", success, testID, tx.OutputSum())
					}

					mp.Delete(ids[1])
					if mp.Count() != 3 || mp.Contains(ids[1]) {
						t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

					drained := mp.Drain()
					if len(drained) != 3 || mp.Count() != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to drain the mempool.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to drain the mempool.", success, testID)

					mp.Upsert(drained[0])
					mp.Truncate()
					if l := len(mp.Copy()); l != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
