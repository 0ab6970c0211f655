package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Address is a decoded chain address: the text form it arrived in, plus the
// credentials extracted from its payload. Byron-era bootstrap addresses and
// pointer addresses carry no usable delegation part; their Delegation field
// is nil.
type Address struct {
	Text       string
	Payment    *Credential
	Delegation *Credential
}

// Shelley address types, from the high nibble of the header byte.
const (
	addrKeyKey       = 0x00 // payment key, delegation key
	addrScriptKey    = 0x01
	addrKeyScript    = 0x02
	addrScriptScript = 0x03
	addrKeyPointer   = 0x04
	addrScriptPtr    = 0x05
	addrKeyNone      = 0x06
	addrScriptNone   = 0x07
	addrByron        = 0x08
	addrRewardKey    = 0x0e
	addrRewardScript = 0x0f
)

// ParseAddress decodes an address from bech32 text (addr…, addr_test…,
// stake…, stake_test…) or raw hex, extracting the payment and delegation
// credentials when the address carries them.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("malformed address: empty")
	}

	var payload []byte
	switch {
	case strings.HasPrefix(s, "addr") || strings.HasPrefix(s, "stake"):
		// Cardano addresses routinely exceed the 90-character bech32
		// limit, hence DecodeNoLimit.
		_, data, err := bech32.DecodeNoLimit(s)
		if err != nil {
			return Address{}, fmt.Errorf("malformed address %q: %v", s, err)
		}
		payload, err = bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return Address{}, fmt.Errorf("malformed address %q: %v", s, err)
		}
	default:
		raw, err := hex.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("malformed address %q: neither bech32 nor hex", s)
		}
		payload = raw
	}

	addr := Address{Text: s}
	if len(payload) == 0 {
		return Address{}, fmt.Errorf("malformed address %q: empty payload", s)
	}

	addrType := payload[0] >> 4
	body := payload[1:]

	switch addrType {
	case addrKeyKey, addrScriptKey, addrKeyScript, addrScriptScript:
		if len(body) < 56 {
			return Address{}, fmt.Errorf("malformed address %q: truncated credentials", s)
		}
		var pay, del Credential
		copy(pay[:], body[:28])
		copy(del[:], body[28:56])
		addr.Payment = &pay
		addr.Delegation = &del

	case addrKeyPointer, addrScriptPtr, addrKeyNone, addrScriptNone:
		if len(body) < 28 {
			return Address{}, fmt.Errorf("malformed address %q: truncated payment credential", s)
		}
		var pay Credential
		copy(pay[:], body[:28])
		addr.Payment = &pay

	case addrRewardKey, addrRewardScript:
		if len(body) < 28 {
			return Address{}, fmt.Errorf("malformed address %q: truncated stake credential", s)
		}
		var del Credential
		copy(del[:], body[:28])
		addr.Delegation = &del

	default:
		// Byron bootstrap addresses have no extractable credentials but
		// are still indexable by their text form.
	}

	return addr, nil
}
