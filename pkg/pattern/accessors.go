package pattern

import "encoding/hex"

// Credentials exposes the credential parts of a credential-shaped pattern
// as hex text, for the SQL translator. ok is false for other variants.
func (p Pattern) Credentials() (payment, delegation string, ok bool) {
	switch p.kind {
	case KindPaymentCredential:
		return p.payment.String(), "", true
	case KindDelegationCredential:
		return "", p.delegation.String(), true
	case KindAddressPair:
		return p.payment.String(), p.delegation.String(), true
	default:
		return "", "", false
	}
}

// Asset exposes the policy id and asset name (hex) of an asset-shaped
// pattern. The name is empty for KindPolicyID.
func (p Pattern) Asset() (policyID, assetName string) {
	return p.policy.String(), hex.EncodeToString(p.assetName)
}

// Reference exposes the transaction id (hex) and output index of a
// reference-shaped pattern. The index is meaningful only for
// KindOutputReference.
func (p Pattern) Reference() (txID string, outputIndex uint32) {
	return p.txID.String(), p.outputIx
}
