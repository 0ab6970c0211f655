package pattern

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/kupo/pkg/chain"
)

// Kind discriminates the closed set of pattern variants.
type Kind int

const (
	KindAny Kind = iota
	KindExactAddress
	KindPaymentCredential
	KindDelegationCredential
	KindAddressPair
	KindPolicyID
	KindAssetID
	KindTransactionID
	KindOutputReference
)

// Pattern is a matcher over transaction outputs. The zero value is not a
// valid pattern; construct one with Parse or the typed constructors.
type Pattern struct {
	kind       Kind
	address    chain.Address
	payment    chain.Credential
	delegation chain.Credential
	policy     chain.PolicyID
	assetName  []byte
	txID       chain.TransactionID
	outputIx   uint32
}

// Any matches every output.
func Any() Pattern { return Pattern{kind: KindAny} }

// ExactAddress matches outputs paying to exactly the given address text.
func ExactAddress(addr chain.Address) Pattern {
	return Pattern{kind: KindExactAddress, address: addr}
}

// PaymentCredential matches outputs whose payment part is the credential.
func PaymentCredential(c chain.Credential) Pattern {
	return Pattern{kind: KindPaymentCredential, payment: c}
}

// DelegationCredential matches outputs whose delegation part is the credential.
func DelegationCredential(c chain.Credential) Pattern {
	return Pattern{kind: KindDelegationCredential, delegation: c}
}

// AddressPair matches outputs carrying both given credentials.
func AddressPair(payment, delegation chain.Credential) Pattern {
	return Pattern{kind: KindAddressPair, payment: payment, delegation: delegation}
}

// ByPolicyID matches outputs holding any asset of the policy.
func ByPolicyID(p chain.PolicyID) Pattern {
	return Pattern{kind: KindPolicyID, policy: p}
}

// ByAssetID matches outputs holding the single named asset.
func ByAssetID(p chain.PolicyID, name []byte) Pattern {
	return Pattern{kind: KindAssetID, policy: p, assetName: name}
}

// ByTransactionID matches every output produced by the transaction.
func ByTransactionID(t chain.TransactionID) Pattern {
	return Pattern{kind: KindTransactionID, txID: t}
}

// ByOutputReference matches a single output reference.
func ByOutputReference(ref chain.OutputReference) Pattern {
	return Pattern{kind: KindOutputReference, txID: ref.TransactionID, outputIx: ref.OutputIndex}
}

// Kind returns the pattern's variant.
func (p Pattern) Kind() Kind { return p.kind }

// Parse parses the canonical text form of a pattern.
func Parse(s string) (Pattern, error) {
	if s == "" {
		return Pattern{}, fmt.Errorf("invalid pattern: empty")
	}
	if s == "*" || s == "*/*" {
		return Any(), nil
	}

	if at := strings.IndexByte(s, '@'); at >= 0 {
		return parseReference(s, at)
	}

	// The credential separator and the asset separator are unambiguous:
	// '/' never appears in an address or hex digest, and '.' never
	// appears in a credential.
	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		return parseCredentials(s, slash)
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		return parseAsset(s, dot)
	}

	addr, err := chain.ParseAddress(s)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
	}
	return ExactAddress(addr), nil
}

func parseReference(s string, at int) (Pattern, error) {
	if at == 0 || at == len(s)-1 {
		return Pattern{}, fmt.Errorf("invalid pattern %q: expected \"<index>@<tx id>\" or \"*@<tx id>\"", s)
	}
	txID, err := chain.ParseTransactionID(s[at+1:])
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
	}
	if s[:at] == "*" {
		return ByTransactionID(txID), nil
	}
	ix, err := strconv.ParseUint(s[:at], 10, 32)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: invalid output index", s)
	}
	return ByOutputReference(chain.OutputReference{TransactionID: txID, OutputIndex: uint32(ix)}), nil
}

func parseCredentials(s string, slash int) (Pattern, error) {
	left, right := s[:slash], s[slash+1:]

	switch {
	case left == "*" && right == "*":
		return Any(), nil
	case left == "*":
		del, err := chain.ParseCredential(right)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
		}
		return DelegationCredential(del), nil
	case right == "*":
		pay, err := chain.ParseCredential(left)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
		}
		return PaymentCredential(pay), nil
	default:
		pay, err := chain.ParseCredential(left)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
		}
		del, err := chain.ParseCredential(right)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
		}
		return AddressPair(pay, del), nil
	}
}

func parseAsset(s string, dot int) (Pattern, error) {
	policy, err := chain.ParsePolicyID(s[:dot])
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %v", s, err)
	}
	name := s[dot+1:]
	if name == "*" {
		return ByPolicyID(policy), nil
	}
	raw, err := hex.DecodeString(name)
	if err != nil || len(raw) > 32 {
		return Pattern{}, fmt.Errorf("invalid pattern %q: asset name must be at most 32 hex-encoded bytes", s)
	}
	return ByAssetID(policy, raw), nil
}

// String renders the canonical text form.
func (p Pattern) String() string {
	switch p.kind {
	case KindAny:
		return "*"
	case KindExactAddress:
		return p.address.Text
	case KindPaymentCredential:
		return p.payment.String() + "/*"
	case KindDelegationCredential:
		return "*/" + p.delegation.String()
	case KindAddressPair:
		return p.payment.String() + "/" + p.delegation.String()
	case KindPolicyID:
		return p.policy.String() + ".*"
	case KindAssetID:
		return p.policy.String() + "." + hex.EncodeToString(p.assetName)
	case KindTransactionID:
		return "*@" + p.txID.String()
	case KindOutputReference:
		return fmt.Sprintf("%d@%s", p.outputIx, p.txID)
	default:
		return "<invalid>"
	}
}

// Match reports whether the output identified by ref, paying to addr and
// holding assets, is selected by the pattern.
func (p Pattern) Match(ref chain.OutputReference, addr chain.Address, assets []chain.Asset) bool {
	switch p.kind {
	case KindAny:
		return true
	case KindExactAddress:
		return p.address.Text == addr.Text
	case KindPaymentCredential:
		return addr.Payment != nil && *addr.Payment == p.payment
	case KindDelegationCredential:
		return addr.Delegation != nil && *addr.Delegation == p.delegation
	case KindAddressPair:
		return addr.Payment != nil && *addr.Payment == p.payment &&
			addr.Delegation != nil && *addr.Delegation == p.delegation
	case KindPolicyID:
		for _, a := range assets {
			if a.PolicyID == p.policy {
				return true
			}
		}
		return false
	case KindAssetID:
		for _, a := range assets {
			if a.PolicyID == p.policy && bytes.Equal(a.AssetName, p.assetName) {
				return true
			}
		}
		return false
	case KindTransactionID:
		return ref.TransactionID == p.txID
	case KindOutputReference:
		return ref.TransactionID == p.txID && ref.OutputIndex == p.outputIx
	default:
		return false
	}
}

// Equal reports structural equality of two patterns.
func (p Pattern) Equal(q Pattern) bool {
	return p.kind == q.kind &&
		p.address.Text == q.address.Text &&
		p.payment == q.payment &&
		p.delegation == q.delegation &&
		p.policy == q.policy &&
		bytes.Equal(p.assetName, q.assetName) &&
		p.txID == q.txID &&
		p.outputIx == q.outputIx
}
