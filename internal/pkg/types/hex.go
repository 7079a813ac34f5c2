package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HexNumber is an unsigned integer that travels over JSON-RPC as a
// "0x"-prefixed hexadecimal string, such as the block number of a header.
type HexNumber uint64

// ParseHexNumber parses a "0x"-prefixed hexadecimal string.
func ParseHexNumber(s string) (HexNumber, error) {
	digits, err := trimHexPrefix(s)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hexadecimal value: %w", err)
	}

	return HexNumber(v), nil
}

// MarshalJSON encodes the number as a "0x"-prefixed JSON string.
func (h HexNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON accepts either a hexadecimal JSON string or a plain JSON number.
func (h *HexNumber) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*h = HexNumber(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hex number: %w", err)
	}

	v, err := ParseHexNumber(s)
	if err != nil {
		return err
	}

	*h = v
	return nil
}

// String returns the "0x"-prefixed representation.
func (h HexNumber) String() string {
	return "0x" + strconv.FormatUint(uint64(h), 16)
}

// Uint64 returns the decoded value.
func (h HexNumber) Uint64() uint64 {
	return uint64(h)
}

// Bytes is a byte string carried over JSON-RPC as "0x"-prefixed hex.
//
// Substrate serializes some Vec<u8> results as a JSON array of numbers instead
// of a hex string, so decoding accepts both forms.
type Bytes []byte

// BytesFromHex decodes a "0x"-prefixed hexadecimal string.
func BytesFromHex(s string) (Bytes, error) {
	digits, err := trimHexPrefix(s)
	if err != nil {
		return nil, err
	}

	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid hexadecimal value: %w", err)
	}

	return b, nil
}

// Hex returns the "0x"-prefixed hexadecimal encoding.
func (b Bytes) Hex() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalJSON encodes the bytes as a hex JSON string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Hex())
}

// UnmarshalJSON decodes either a hex JSON string or a JSON array of bytes.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var nums []uint16
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("invalid byte array: %w", err)
		}

		raw := make([]byte, len(nums))
		for i, n := range nums {
			if n > 0xff {
				return fmt.Errorf("invalid byte array: value %d at index %d overflows a byte", n, i)
			}
			raw[i] = byte(n)
		}

		*b = raw
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}

	v, err := BytesFromHex(s)
	if err != nil {
		return err
	}

	*b = v
	return nil
}

// H256 is a 32 byte hash such as a block hash or a Merkle root.
type H256 [32]byte

// H256FromHex decodes a "0x"-prefixed 32 byte hexadecimal string.
func H256FromHex(s string) (H256, error) {
	b, err := BytesFromHex(s)
	if err != nil {
		return H256{}, err
	}

	if len(b) != len(H256{}) {
		return H256{}, fmt.Errorf("invalid hash length: expected 32 bytes, got %d", len(b))
	}

	var h H256
	copy(h[:], b)
	return h, nil
}

// Hex returns the "0x"-prefixed hexadecimal encoding.
func (h H256) Hex() string {
	return Bytes(h[:]).Hex()
}

// String implements fmt.Stringer.
func (h H256) String() string {
	return h.Hex()
}

// IsZero reports whether every byte of the hash is zero.
func (h H256) IsZero() bool {
	return h == H256{}
}

// MarshalJSON encodes the hash as a hex JSON string.
func (h H256) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a hex JSON string of exactly 32 bytes.
func (h *H256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}

	v, err := H256FromHex(s)
	if err != nil {
		return err
	}

	*h = v
	return nil
}

func trimHexPrefix(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("hex string must start with 0x")
	}

	return s[2:], nil
}
