package avail

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

// maxDecodeLength caps length prefixes so a corrupt payload cannot force a
// huge allocation.
const maxDecodeLength = 16 << 20

// ErrDecode is returned when a SCALE payload does not match the expected type.
var ErrDecode = errors.New("scale decode failed")

func encodeCompact(e scale.Encoder, v uint64) error {
	return e.EncodeUintCompact(*new(big.Int).SetUint64(v))
}

func encodeCompactBig(e scale.Encoder, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	return e.EncodeUintCompact(*v)
}

func decodeCompact(d scale.Decoder, bits int) (uint64, error) {
	v, err := d.DecodeUintCompact()
	if err != nil {
		return 0, err
	}

	if v.Sign() < 0 || v.BitLen() > bits {
		return 0, fmt.Errorf("%w: compact %s overflows u%d", ErrDecode, v, bits)
	}
	return v.Uint64(), nil
}

func decodeLength(d scale.Decoder) (int, error) {
	n, err := decodeCompact(d, 32)
	if err != nil {
		return 0, err
	}

	if n > maxDecodeLength {
		return 0, fmt.Errorf("%w: length %d exceeds limit", ErrDecode, n)
	}
	return int(n), nil
}

func encodeBytes(e scale.Encoder, b []byte) error {
	if err := encodeCompact(e, uint64(len(b))); err != nil {
		return err
	}

	if len(b) == 0 {
		return nil
	}
	return e.Write(b)
}

func decodeBytes(d scale.Decoder) ([]byte, error) {
	n, err := decodeLength(d)
	if err != nil {
		return nil, err
	}

	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}

	if err := d.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func encodeH256(e scale.Encoder, h types.H256) error {
	return e.Write(h[:])
}

func decodeH256(d scale.Decoder) (types.H256, error) {
	var h types.H256
	err := d.Read(h[:])
	return h, err
}

func encodeU32(e scale.Encoder, v uint32) error {
	return e.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func decodeU32(d scale.Decoder) (uint32, error) {
	var b [4]byte
	if err := d.Read(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
