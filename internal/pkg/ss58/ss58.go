// Package ss58 encodes and decodes Substrate SS58 addresses.
//
// An address is base58(format || account id || checksum) where the checksum
// is the first two bytes of blake2b-512("SS58PRE" || format || account id).
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SubstrateFormat is the generic Substrate address format used by Avail.
const SubstrateFormat uint16 = 42

const (
	checksumLength = 2
	maxFormat      = 16383
)

var (
	// ErrInvalidAddress is returned when a string is not a well-formed SS58
	// address for a 32 or 33 byte public key.
	ErrInvalidAddress = errors.New("invalid ss58 address")

	// ErrInvalidChecksum is returned when the address checksum does not match
	// its content.
	ErrInvalidChecksum = errors.New("invalid ss58 checksum")

	// ErrInvalidFormat is returned for network formats outside 0..16383.
	ErrInvalidFormat = errors.New("invalid ss58 format")
)

var checksumPrefix = []byte("SS58PRE")

// Encode returns the SS58 address of a public key under the given network
// format.
func Encode(publicKey []byte, format uint16) (string, error) {
	if len(publicKey) != 32 && len(publicKey) != 33 {
		return "", fmt.Errorf("%w: public key must have 32 or 33 bytes, got %d", ErrInvalidAddress, len(publicKey))
	}

	prefix, err := encodeFormat(format)
	if err != nil {
		return "", err
	}

	payload := append(prefix, publicKey...)
	sum := checksum(payload)

	return base58.Encode(append(payload, sum[:checksumLength]...)), nil
}

// Decode returns the public key and network format of an address.
func Decode(address string) ([]byte, uint16, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if len(raw) == 0 {
		return nil, 0, ErrInvalidAddress
	}

	format, prefixLength, err := decodeFormat(raw)
	if err != nil {
		return nil, 0, err
	}

	keyLength := len(raw) - prefixLength - checksumLength
	if keyLength != 32 && keyLength != 33 {
		return nil, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(raw))
	}

	payload := raw[:len(raw)-checksumLength]
	sum := checksum(payload)
	if !bytes.Equal(sum[:checksumLength], raw[len(raw)-checksumLength:]) {
		return nil, 0, ErrInvalidChecksum
	}

	key := make([]byte, keyLength)
	copy(key, payload[prefixLength:])
	return key, format, nil
}

// DecodeAccountID decodes an address holding a 32 byte account id and checks
// that it belongs to the expected network format.
func DecodeAccountID(address string, format uint16) ([32]byte, error) {
	var id [32]byte

	key, got, err := Decode(address)
	if err != nil {
		return id, err
	}

	if got != format {
		return id, fmt.Errorf("%w: address format %d, expected %d", ErrInvalidFormat, got, format)
	}

	if len(key) != len(id) {
		return id, fmt.Errorf("%w: not a 32 byte account id", ErrInvalidAddress)
	}

	copy(id[:], key)
	return id, nil
}

func checksum(payload []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte{}, checksumPrefix...), payload...))
}

func encodeFormat(format uint16) ([]byte, error) {
	switch {
	case format < 64:
		return []byte{byte(format)}, nil
	case format <= maxFormat:
		first := byte((format&0b0000_0000_1111_1100)>>2) | 0b0100_0000
		second := byte(format>>8) | byte((format&0b0000_0000_0000_0011)<<6)
		return []byte{first, second}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidFormat, format)
	}
}

func decodeFormat(raw []byte) (uint16, int, error) {
	first := raw[0]

	switch {
	case first < 64:
		return uint16(first), 1, nil
	case first < 128:
		if len(raw) < 2 {
			return 0, 0, ErrInvalidAddress
		}

		second := raw[1]
		lower := (first << 2) | (second >> 6)
		upper := second & 0b0011_1111
		return uint16(lower) | uint16(upper)<<8, 2, nil
	default:
		return 0, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidFormat, first)
	}
}
