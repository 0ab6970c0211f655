package producer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/fxamacker/cbor/v2"
)

// blockJSON mirrors the bridge's block schema, restricted to the fields the
// indexer folds.
type blockJSON struct {
	ID           string            `json:"id"`
	Slot         uint64            `json:"slot"`
	Height       uint64            `json:"height"`
	Transactions []transactionJSON `json:"transactions"`
}

type transactionJSON struct {
	ID      string `json:"id"`
	Inputs  []struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
		Index uint32 `json:"index"`
	} `json:"inputs"`
	Outputs []struct {
		Address   string                       `json:"address"`
		Value     map[string]map[string]uint64 `json:"value"`
		DatumHash string                       `json:"datumHash"`
		Datum     string                       `json:"datum"`
		Script    *scriptJSON                  `json:"script"`
	} `json:"outputs"`
	Datums   map[string]string      `json:"datums"`
	Scripts  map[string]scriptJSON  `json:"scripts"`
	Metadata map[string]interface{} `json:"metadata"`
}

type scriptJSON struct {
	Language string `json:"language"`
	CBOR     string `json:"cbor"`
	JSON     json.RawMessage `json:"json"`
}

// unmarshalBlock converts the bridge's JSON block into the internal model.
// Output values arrive as {policy: {asset: quantity}} maps (with "ada" /
// "lovelace" for the base currency) and are re-encoded as canonical CBOR
// for storage; asset entries are kept alongside for pattern matching.
func unmarshalBlock(raw json.RawMessage) (*chain.Block, error) {
	var bj blockJSON
	if err := json.Unmarshal(raw, &bj); err != nil {
		return nil, fmt.Errorf("unexpected block shape: %w", err)
	}

	hash, err := chain.ParseHeaderHash(bj.ID)
	if err != nil {
		return nil, fmt.Errorf("unexpected block id: %w", err)
	}

	block := &chain.Block{
		Point:  chain.NewPoint(bj.Slot, hash),
		Height: bj.Height,
	}

	for _, tj := range bj.Transactions {
		tx, err := unmarshalTransaction(tj)
		if err != nil {
			return nil, err
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

func unmarshalTransaction(tj transactionJSON) (chain.Transaction, error) {
	txID, err := chain.ParseTransactionID(tj.ID)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("unexpected transaction id: %w", err)
	}
	tx := chain.Transaction{ID: txID}

	for _, in := range tj.Inputs {
		spentID, err := chain.ParseTransactionID(in.Transaction.ID)
		if err != nil {
			return chain.Transaction{}, fmt.Errorf("unexpected input reference: %w", err)
		}
		tx.Inputs = append(tx.Inputs, chain.OutputReference{
			TransactionID: spentID,
			OutputIndex:   in.Index,
		})
	}

	for _, out := range tj.Outputs {
		parsed, err := unmarshalOutput(out.Address, out.Value, out.DatumHash, out.Datum)
		if err != nil {
			return chain.Transaction{}, err
		}
		if out.Script != nil {
			// Reference scripts are addressed by hash; the bridge
			// does not repeat the hash per output, so it is
			// recomputed here.
			script, err := unmarshalScript(*out.Script)
			if err != nil {
				return chain.Transaction{}, err
			}
			hash := chain.HashScript(script)
			parsed.ScriptRef = &hash
			if tx.Scripts == nil {
				tx.Scripts = make(map[chain.ScriptHash]chain.Script)
			}
			tx.Scripts[hash] = script
		}
		tx.Outputs = append(tx.Outputs, parsed)
	}

	if len(tj.Datums) > 0 {
		tx.Datums = make(map[chain.DatumHash][]byte, len(tj.Datums))
		for hashText, datumHex := range tj.Datums {
			hash, err := chain.ParseDatumHash(hashText)
			if err != nil {
				return chain.Transaction{}, err
			}
			data, err := hex.DecodeString(datumHex)
			if err != nil {
				return chain.Transaction{}, fmt.Errorf("unexpected datum encoding for %s", hashText)
			}
			tx.Datums[hash] = data
		}
	}

	if len(tj.Scripts) > 0 {
		if tx.Scripts == nil {
			tx.Scripts = make(map[chain.ScriptHash]chain.Script, len(tj.Scripts))
		}
		for hashText, sj := range tj.Scripts {
			hash, err := chain.ParseScriptHash(hashText)
			if err != nil {
				return chain.Transaction{}, err
			}
			script, err := unmarshalScript(sj)
			if err != nil {
				return chain.Transaction{}, err
			}
			tx.Scripts[hash] = script
		}
	}

	if tj.Metadata != nil {
		// Metadata is stored as it will be served: CBOR bytes.
		encoded, err := cbor.Marshal(tj.Metadata)
		if err != nil {
			return chain.Transaction{}, fmt.Errorf("failed to encode metadata: %w", err)
		}
		tx.Metadata = encoded
	}

	return tx, nil
}

func unmarshalOutput(addrText string, value map[string]map[string]uint64,
	datumHashText, datumHex string) (chain.TransactionOutput, error) {

	addr, err := chain.ParseAddress(addrText)
	if err != nil {
		return chain.TransactionOutput{}, err
	}
	out := chain.TransactionOutput{Address: addr}

	// Canonical CBOR keeps the stored value deterministic regardless of
	// the bridge's JSON key order.
	encOpts := cbor.CanonicalEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return chain.TransactionOutput{}, err
	}
	out.Value, err = em.Marshal(value)
	if err != nil {
		return chain.TransactionOutput{}, fmt.Errorf("failed to encode value: %w", err)
	}

	for policyText, assets := range value {
		if policyText == "ada" || policyText == "lovelace" {
			continue
		}
		policy, err := chain.ParsePolicyID(policyText)
		if err != nil {
			return chain.TransactionOutput{}, fmt.Errorf("unexpected policy id in value: %w", err)
		}
		for nameHex := range assets {
			name, err := hex.DecodeString(nameHex)
			if err != nil {
				return chain.TransactionOutput{}, fmt.Errorf("unexpected asset name %q", nameHex)
			}
			out.Assets = append(out.Assets, chain.Asset{PolicyID: policy, AssetName: name})
		}
	}

	if datumHashText != "" {
		hash, err := chain.ParseDatumHash(datumHashText)
		if err != nil {
			return chain.TransactionOutput{}, err
		}
		out.DatumHash = &hash
	}
	if datumHex != "" {
		data, err := hex.DecodeString(datumHex)
		if err != nil {
			return chain.TransactionOutput{}, fmt.Errorf("unexpected inline datum encoding")
		}
		out.Datum = data
		if out.DatumHash == nil {
			// Inline datums come without a hash; they are stored
			// and served by hash all the same.
			hash := chain.HashDatum(data)
			out.DatumHash = &hash
		}
	}

	return out, nil
}

func unmarshalScript(sj scriptJSON) (chain.Script, error) {
	script := chain.Script{Language: sj.Language}
	if sj.CBOR != "" {
		raw, err := hex.DecodeString(sj.CBOR)
		if err != nil {
			return chain.Script{}, fmt.Errorf("unexpected script encoding")
		}
		script.Bytes = raw
	} else if sj.JSON != nil {
		script.Bytes = []byte(sj.JSON)
	}
	return script, nil
}
