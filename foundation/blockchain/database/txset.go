package database

import "slices"

// TxSet is an insertion ordered set of transactions keyed by id. It also
// indexes every input listed by the transactions it holds so a spent check
// doesn't need to scan the whole set.
type TxSet struct {
	txs   map[string]Tx
	ids   []string
	spent map[Input]string
}

// NewTxSet constructs an empty set.
func NewTxSet() *TxSet {
	return &TxSet{
		txs:   make(map[string]Tx),
		spent: make(map[Input]string),
	}
}

// Put adds the transaction under the id. Adding an existing id replaces
// the value but keeps its original position.
func (ts *TxSet) Put(id string, tx Tx) {
	if old, exists := ts.txs[id]; exists {
		ts.unindex(id, old)
	} else {
		ts.ids = append(ts.ids, id)
	}

	ts.txs[id] = tx
	for _, in := range tx.Inputs {
		ts.spent[in] = id
	}
}

// Get returns the transaction for the id.
func (ts *TxSet) Get(id string) (Tx, bool) {
	tx, exists := ts.txs[id]
	return tx, exists
}

// Contains reports whether the id is in the set.
func (ts *TxSet) Contains(id string) bool {
	_, exists := ts.txs[id]
	return exists
}

// Delete removes the transaction with the id.
func (ts *TxSet) Delete(id string) {
	tx, exists := ts.txs[id]
	if !exists {
		return
	}

	ts.unindex(id, tx)
	delete(ts.txs, id)

	if i := slices.Index(ts.ids, id); i >= 0 {
		ts.ids = slices.Delete(ts.ids, i, i+1)
	}
}

// SpentBy returns the id of the transaction in the set that lists the
// input, if any.
func (ts *TxSet) SpentBy(in Input) (string, bool) {
	id, exists := ts.spent[in]
	return id, exists
}

// Len returns the number of transactions in the set.
func (ts *TxSet) Len() int {
	return len(ts.ids)
}

// IDs returns the ids in insertion order.
func (ts *TxSet) IDs() []string {
	return slices.Clone(ts.ids)
}

// Values returns the transactions in insertion order.
func (ts *TxSet) Values() []Tx {
	out := make([]Tx, 0, len(ts.ids))
	for _, id := range ts.ids {
		out = append(out, ts.txs[id])
	}

	return out
}

// Copy returns an independent copy of the set.
func (ts *TxSet) Copy() *TxSet {
	cpy := TxSet{
		txs:   make(map[string]Tx, len(ts.txs)),
		ids:   slices.Clone(ts.ids),
		spent: make(map[Input]string, len(ts.spent)),
	}

	for id, tx := range ts.txs {
		cpy.txs[id] = tx
	}
	for in, id := range ts.spent {
		cpy.spent[in] = id
	}

	return &cpy
}

func (ts *TxSet) unindex(id string, tx Tx) {
	for _, in := range tx.Inputs {
		if ts.spent[in] == id {
			delete(ts.spent, in)
		}
	}
}
