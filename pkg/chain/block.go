package chain

// Asset names a quantity-bearing native asset inside an output's value.
type Asset struct {
	PolicyID  PolicyID
	AssetName []byte
}

// TransactionOutput is one output of a transaction as seen on the wire,
// before it is materialized into an Input row.
type TransactionOutput struct {
	Address    Address
	Value      []byte // CBOR-encoded value (lovelace + native assets)
	Assets     []Asset
	DatumHash  *DatumHash
	Datum      []byte // inline datum bytes, when the output carries one
	ScriptRef  *ScriptHash
}

// Transaction is the subset of a transaction the indexer folds: its id, the
// outputs it produces, the references it spends, and the artifacts it
// carries.
type Transaction struct {
	ID       TransactionID
	Inputs   []OutputReference // spent by this transaction
	Outputs  []TransactionOutput
	Datums   map[DatumHash][]byte
	Scripts  map[ScriptHash]Script
	Metadata []byte // CBOR-encoded auxiliary data, nil when absent
}

// Script is a reference script or witness script with its language tag.
type Script struct {
	Language string // "native", "plutus:v1", "plutus:v2", "plutus:v3"
	Bytes    []byte
}

// Block is a fully deserialized block as delivered by the producer.
type Block struct {
	Point        Point
	Height       uint64
	Transactions []Transaction
}

// Input is a materialized output: an output that matched a registered
// pattern at ingest time, with its creation and spending provenance.
type Input struct {
	OutputReference OutputReference
	Address         string
	Value           []byte
	DatumHash       *DatumHash
	ScriptHash      *ScriptHash
	CreatedAtSlot   uint64
	CreatedAtHash   [32]byte
	SpentAtSlot     *uint64
	SpentAtHash     *[32]byte
	SpentAtTxID     *TransactionID
}

// CreatedAt returns the point at which the input was created.
func (in *Input) CreatedAt() Point {
	return NewPoint(in.CreatedAtSlot, in.CreatedAtHash)
}

// Spent reports whether the input has been spent.
func (in *Input) Spent() bool {
	return in.SpentAtSlot != nil
}
