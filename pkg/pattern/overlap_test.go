package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Pattern {
	t.Helper()
	p, err := Parse(s)
	require.NoError(t, err)
	return p
}

func TestIncludes(t *testing.T) {
	addr := "01" + paymentHex + delegationHex

	tests := []struct {
		name     string
		outer    string
		inner    string
		includes bool
	}{
		{name: "any includes everything", outer: "*", inner: "42@" + txIDHex, includes: true},
		{name: "equal patterns", outer: paymentHex + "/*", inner: paymentHex + "/*", includes: true},
		{name: "payment absorbs pair", outer: paymentHex + "/*", inner: paymentHex + "/" + delegationHex, includes: true},
		{name: "payment absorbs address", outer: paymentHex + "/*", inner: addr, includes: true},
		{name: "delegation absorbs address", outer: "*/" + delegationHex, inner: addr, includes: true},
		{name: "pair absorbs address", outer: paymentHex + "/" + delegationHex, inner: addr, includes: true},
		{name: "policy absorbs asset", outer: policyHex + ".*", inner: policyHex + ".6b75706f", includes: true},
		{name: "transaction absorbs reference", outer: "*@" + txIDHex, inner: "7@" + txIDHex, includes: true},
		{name: "asset does not absorb policy", outer: policyHex + ".6b75706f", inner: policyHex + ".*", includes: false},
		{name: "address does not absorb credential", outer: addr, inner: paymentHex + "/*", includes: false},
		{name: "distinct credentials", outer: paymentHex + "/*", inner: delegationHex + "/*", includes: false},
		{name: "nothing includes any", outer: "42@" + txIDHex, inner: "*", includes: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outer := mustParse(t, tt.outer)
			inner := mustParse(t, tt.inner)
			assert.Equal(t, tt.includes, outer.Includes(inner))
		})
	}
}

// TestOverlapsSymmetry checks the algebra: overlap is symmetric, and
// reflexive on equal patterns.
func TestOverlapsSymmetry(t *testing.T) {
	patterns := []string{
		"*",
		paymentHex + "/*",
		"*/" + delegationHex,
		paymentHex + "/" + delegationHex,
		"01" + paymentHex + delegationHex,
		policyHex + ".*",
		policyHex + ".6b75706f",
		"*@" + txIDHex,
		"42@" + txIDHex,
	}

	for _, a := range patterns {
		pa := mustParse(t, a)
		assert.True(t, pa.Overlaps([]Pattern{pa}), "reflexive on %s", a)

		for _, b := range patterns {
			pb := mustParse(t, b)
			assert.Equal(t,
				pa.Overlaps([]Pattern{pb}),
				pb.Overlaps([]Pattern{pa}),
				"symmetric on (%s, %s)", a, b)
		}
	}
}

func TestOverlapsAgainstSet(t *testing.T) {
	set := []Pattern{
		mustParse(t, policyHex+".*"),
		mustParse(t, paymentHex+"/*"),
	}

	assert.True(t, mustParse(t, policyHex+".6b75706f").Overlaps(set))
	assert.True(t, mustParse(t, "*").Overlaps(set))
	assert.True(t, mustParse(t, "01"+paymentHex+delegationHex).Overlaps(set))
	assert.False(t, mustParse(t, "42@"+txIDHex).Overlaps(set))
	assert.False(t, mustParse(t, delegationHex+"/*").Overlaps(set))
	assert.False(t, mustParse(t, "42@"+txIDHex).Overlaps(nil))
}
