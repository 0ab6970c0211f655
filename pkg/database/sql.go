package database

import (
	"encoding/hex"
	"fmt"

	"github.com/cuemby/kupo/pkg/pattern"
)

// StatusFlag narrows a match query to unspent, spent, or all inputs.
type StatusFlag int

const (
	StatusAll StatusFlag = iota
	StatusUnspent
	StatusSpent
)

// SortDirection orders match results by creation slot.
type SortDirection int

const (
	SortDesc SortDirection = iota
	SortAsc
)

// selection is a translated pattern: a parameterized WHERE fragment over
// the inputs table, plus whether asset names must still be checked in
// process (the SQL pre-filter for assets stops at the policy).
type selection struct {
	where      string
	args       []interface{}
	postFilter *assetFilter
}

type assetFilter struct {
	policyID  string
	assetName string
}

// translate maps a pattern variant to its SQL pre-filter. The translator is
// total over the closed variant set, and every fragment leads with a fixed
// indexed column per variant so the planner resolves the same index family
// deterministically.
func translate(p pattern.Pattern) selection {
	switch p.Kind() {
	case pattern.KindAny:
		return selection{where: "address IS NOT NULL"}

	case pattern.KindExactAddress:
		return selection{where: "address = ?", args: []interface{}{p.String()}}

	case pattern.KindPaymentCredential:
		pay, _, _ := p.Credentials()
		return selection{
			where: "payment_credential = ?",
			args:  []interface{}{pay},
		}

	case pattern.KindDelegationCredential:
		_, del, _ := p.Credentials()
		return selection{
			where: "delegation_credential = ?",
			args:  []interface{}{del},
		}

	case pattern.KindAddressPair:
		pay, del, _ := p.Credentials()
		return selection{
			where: "payment_credential = ? AND delegation_credential = ?",
			args:  []interface{}{pay, del},
		}

	case pattern.KindPolicyID:
		policy, _ := p.Asset()
		return selection{
			where: "output_reference IN (SELECT output_reference FROM policies WHERE policy_id = ?)",
			args:  []interface{}{policy},
		}

	case pattern.KindAssetID:
		policy, name := p.Asset()
		return selection{
			where:      "output_reference IN (SELECT output_reference FROM policies WHERE policy_id = ?)",
			args:       []interface{}{policy},
			postFilter: &assetFilter{policyID: policy, assetName: name},
		}

	case pattern.KindTransactionID:
		txID, _ := p.Reference()
		return selection{where: "transaction_id = ?", args: []interface{}{txID}}

	case pattern.KindOutputReference:
		txID, ix := p.Reference()
		return selection{
			where: "output_reference = ?",
			args:  []interface{}{fmt.Sprintf("%d@%s", ix, txID)},
		}

	default:
		// Unreachable: the variant set is closed.
		return selection{where: "address IS NOT NULL"}
	}
}

// apply composes the pattern fragment with the status flag and sort
// direction into a full statement over the inputs table.
func (s selection) apply(status StatusFlag, sort SortDirection) (string, []interface{}) {
	where := s.where
	switch status {
	case StatusUnspent:
		where += " AND spent_at_slot_no IS NULL"
	case StatusSpent:
		where += " AND spent_at_slot_no IS NOT NULL"
	}

	direction := "DESC"
	if sort == SortAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT output_reference, transaction_id, output_index, address,
		value, datum_hash, script_hash,
		created_at_slot_no, created_at_header_hash,
		spent_at_slot_no, spent_at_header_hash, spent_at_transaction_id
		FROM inputs WHERE %s
		ORDER BY created_at_slot_no %s, output_reference %s`, where, direction, direction)

	return query, s.args
}

// encodeAssetName renders an asset name for storage and comparison.
func encodeAssetName(name []byte) string {
	return hex.EncodeToString(name)
}
