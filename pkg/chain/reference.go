package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// OutputReference uniquely identifies a transaction output as the pair of
// the producing transaction id and the output's index within it. Its text
// form is "<output index>@<tx id>".
type OutputReference struct {
	TransactionID TransactionID
	OutputIndex   uint32
}

// String renders the canonical "<ix>@<tx id>" form.
func (r OutputReference) String() string {
	return fmt.Sprintf("%d@%s", r.OutputIndex, r.TransactionID)
}

// ParseOutputReference parses the canonical "<ix>@<tx id>" form.
func ParseOutputReference(s string) (OutputReference, error) {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return OutputReference{}, fmt.Errorf("malformed output reference %q: expected \"<index>@<tx id>\"", s)
	}

	ix, err := strconv.ParseUint(s[:at], 10, 32)
	if err != nil {
		return OutputReference{}, fmt.Errorf("malformed output reference %q: invalid output index", s)
	}

	txID, err := ParseTransactionID(s[at+1:])
	if err != nil {
		return OutputReference{}, fmt.Errorf("malformed output reference %q: %v", s, err)
	}

	return OutputReference{TransactionID: txID, OutputIndex: uint32(ix)}, nil
}
