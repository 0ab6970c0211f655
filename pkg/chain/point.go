package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Point identifies a position on the chain: either the distinguished origin
// or a slot paired with the hash of the block header minted in that slot.
type Point struct {
	Slot       uint64
	HeaderHash [32]byte
	origin     bool
}

// Origin is the point before the first block of the chain.
var Origin = Point{origin: true}

// NewPoint builds a point from a slot and header hash.
func NewPoint(slot uint64, headerHash [32]byte) Point {
	return Point{Slot: slot, HeaderHash: headerHash}
}

// IsOrigin reports whether the point is the chain origin.
func (p Point) IsOrigin() bool {
	return p.origin
}

// String renders the canonical text form: "origin" or "<slot>.<hex hash>".
func (p Point) String() string {
	if p.origin {
		return "origin"
	}
	return fmt.Sprintf("%d.%s", p.Slot, hex.EncodeToString(p.HeaderHash[:]))
}

// ParsePoint parses the canonical text form of a point.
func ParsePoint(s string) (Point, error) {
	if s == "origin" {
		return Origin, nil
	}

	dot := strings.IndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return Point{}, fmt.Errorf("malformed point %q: expected \"origin\" or \"<slot>.<hash>\"", s)
	}

	slot, err := strconv.ParseUint(s[:dot], 10, 64)
	if err != nil {
		return Point{}, fmt.Errorf("malformed point %q: invalid slot number", s)
	}

	hash, err := ParseHeaderHash(s[dot+1:])
	if err != nil {
		return Point{}, fmt.Errorf("malformed point %q: %v", s, err)
	}

	return Point{Slot: slot, HeaderHash: hash}, nil
}

// ParseHeaderHash decodes a 32-byte block header hash from hex text.
func ParseHeaderHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return hash, fmt.Errorf("invalid header hash: not hex-encoded")
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("invalid header hash: expected 32 bytes, got %d", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}

// MarshalJSON renders the point as {"slot_no": ..., "header_hash": ...},
// or null for the origin.
func (p Point) MarshalJSON() ([]byte, error) {
	if p.origin {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]interface{}{
		"slot_no":     p.Slot,
		"header_hash": hex.EncodeToString(p.HeaderHash[:]),
	})
}

// UnmarshalJSON accepts the object form produced by MarshalJSON.
func (p *Point) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Origin
		return nil
	}
	var obj struct {
		Slot uint64 `json:"slot_no"`
		Hash string `json:"header_hash"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	hash, err := ParseHeaderHash(obj.Hash)
	if err != nil {
		return err
	}
	*p = Point{Slot: obj.Slot, HeaderHash: hash}
	return nil
}

// Before reports whether p is strictly older than other. The origin is
// before every other point.
func (p Point) Before(other Point) bool {
	if p.origin {
		return !other.origin
	}
	if other.origin {
		return false
	}
	return p.Slot < other.Slot
}

// Tip is the producer's view of the end of the chain. It carries the block
// height on top of the point.
type Tip struct {
	Point
	BlockHeight uint64
}
