package pattern

import (
	"strings"
	"testing"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	paymentHex    = strings.Repeat("aa", 28)
	delegationHex = strings.Repeat("bb", 28)
	policyHex     = strings.Repeat("cc", 28)
	txIDHex       = strings.Repeat("dd", 32)
)

// baseAddress builds a hex base address carrying both test credentials.
func baseAddress(t *testing.T) chain.Address {
	t.Helper()
	addr, err := chain.ParseAddress("01" + paymentHex + delegationHex)
	require.NoError(t, err)
	return addr
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
		// canonical defaults to input
		canonical string
	}{
		{name: "any", input: "*", kind: KindAny},
		{name: "any pair", input: "*/*", kind: KindAny, canonical: "*"},
		{name: "payment credential", input: paymentHex + "/*", kind: KindPaymentCredential},
		{name: "delegation credential", input: "*/" + delegationHex, kind: KindDelegationCredential},
		{name: "address pair", input: paymentHex + "/" + delegationHex, kind: KindAddressPair},
		{name: "policy", input: policyHex + ".*", kind: KindPolicyID},
		{name: "asset", input: policyHex + ".6b75706f", kind: KindAssetID},
		{name: "transaction", input: "*@" + txIDHex, kind: KindTransactionID},
		{name: "output reference", input: "42@" + txIDHex, kind: KindOutputReference},
		{name: "hex address", input: "01" + paymentHex + delegationHex, kind: KindExactAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())

			canonical := tt.canonical
			if canonical == "" {
				canonical = tt.input
			}
			assert.Equal(t, canonical, p.String())

			// The canonical form parses back to an equal pattern.
			again, err := Parse(p.String())
			require.NoError(t, err)
			assert.True(t, p.Equal(again))
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{
		"",
		"**",
		"not hex/*",
		paymentHex[:10] + "/*",          // short credential
		policyHex + "." + strings.Repeat("ff", 33), // long asset name
		"x@" + txIDHex,
		"1@" + txIDHex[:12],
		"zzz.*",
	} {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMatch(t *testing.T) {
	addr := baseAddress(t)
	policy, err := chain.ParsePolicyID(policyHex)
	require.NoError(t, err)
	txID, err := chain.ParseTransactionID(txIDHex)
	require.NoError(t, err)

	ref := chain.OutputReference{TransactionID: txID, OutputIndex: 42}
	assets := []chain.Asset{{PolicyID: policy, AssetName: []byte("kupo")}}

	otherAddr, err := chain.ParseAddress("61" + delegationHex)
	require.NoError(t, err)

	tests := []struct {
		name    string
		pattern string
		addr    chain.Address
		matches bool
	}{
		{name: "any matches all", pattern: "*", addr: addr, matches: true},
		{name: "exact address", pattern: addr.Text, addr: addr, matches: true},
		{name: "exact address mismatch", pattern: addr.Text, addr: otherAddr, matches: false},
		{name: "payment credential", pattern: paymentHex + "/*", addr: addr, matches: true},
		{name: "payment credential mismatch", pattern: delegationHex + "/*", addr: addr, matches: false},
		{name: "delegation credential", pattern: "*/" + delegationHex, addr: addr, matches: true},
		{name: "pair", pattern: paymentHex + "/" + delegationHex, addr: addr, matches: true},
		{name: "pair on enterprise address", pattern: paymentHex + "/" + delegationHex, addr: otherAddr, matches: false},
		{name: "policy", pattern: policyHex + ".*", addr: addr, matches: true},
		{name: "asset", pattern: policyHex + ".6b75706f", addr: addr, matches: true},
		{name: "asset name mismatch", pattern: policyHex + ".6b75", addr: addr, matches: false},
		{name: "transaction", pattern: "*@" + txIDHex, addr: addr, matches: true},
		{name: "output reference", pattern: "42@" + txIDHex, addr: addr, matches: true},
		{name: "output reference mismatch", pattern: "41@" + txIDHex, addr: addr, matches: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, p.Match(ref, tt.addr, assets))
		})
	}
}
