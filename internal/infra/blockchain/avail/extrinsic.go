package avail

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

const (
	extrinsicVersion   = 4
	signedBit          = 0b1000_0000
	multiAddressID     = 0x00
	multiSignatureSr25 = 0x01

	// Payloads longer than this are hashed before signing.
	maxUnhashedPayload = 256
)

// Signer produces sr25519 signatures for an account.
type Signer interface {
	// PublicKey returns the 32 byte account id.
	PublicKey() []byte

	// Sign returns a 64 byte sr25519 signature of payload.
	Sign(payload []byte) ([]byte, error)
}

// SignOptions are the per extrinsic values of the signed extensions. The
// era is always immortal.
type SignOptions struct {
	AppID AppID
	Nonce uint64
	Tip   *big.Int
}

// Call is an encoded runtime call.
type Call struct {
	Index CallIndex
	Args  []byte
}

// NewCall encodes args in order after the call index.
func NewCall(index CallIndex, args ...any) (Call, error) {
	var buf bytes.Buffer
	for _, arg := range args {
		encoded, err := codec.Encode(arg)
		if err != nil {
			return Call{}, err
		}
		buf.Write(encoded)
	}
	return Call{Index: index, Args: buf.Bytes()}, nil
}

func (c Call) Encode(e scale.Encoder) error {
	if err := e.PushByte(c.Index.Section); err != nil {
		return err
	}

	if err := e.PushByte(c.Index.Method); err != nil {
		return err
	}

	if len(c.Args) == 0 {
		return nil
	}
	return e.Write(c.Args)
}

// AccountID is a 32 byte account public key.
type AccountID [32]byte

// MultiAddress is the Id variant of the runtime's address type.
type MultiAddress AccountID

func (m MultiAddress) Encode(e scale.Encoder) error {
	if err := e.PushByte(multiAddressID); err != nil {
		return err
	}
	return e.Write(m[:])
}

// Balance is a u128 amount encoded as Compact<u128>.
type Balance struct {
	*big.Int
}

func (b Balance) Encode(e scale.Encoder) error {
	return encodeCompactBig(e, b.Int)
}

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// transferCallNames lists the balance transfer call across runtime upgrades
// that renamed it.
var transferCallNames = []string{
	"Balances.transfer",
	"Balances.transfer_allow_death",
	"Balances.transfer_keep_alive",
}

// NewTransferCall builds a balance transfer of amount base units to dest.
func NewTransferCall(metadata Metadata, dest AccountID, amount *big.Int) (Call, error) {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxU128) > 0 {
		return Call{}, fmt.Errorf("%w: transfer amount %v is not a u128", ErrInvalidArgument, amount)
	}

	var lastErr error
	for _, name := range transferCallNames {
		index, err := metadata.CallIndex(name)
		if err != nil {
			lastErr = err
			continue
		}
		return NewCall(index, MultiAddress(dest), Balance{amount})
	}
	return Call{}, lastErr
}

// knownSignedExtensions are the extensions the builder can encode. Anything
// else in the runtime metadata means the node speaks a schema we do not.
var knownSignedExtensions = types.NewSet(
	"CheckNonZeroSender",
	"CheckSpecVersion",
	"CheckTxVersion",
	"CheckGenesis",
	"CheckMortality",
	"CheckEra",
	"CheckNonce",
	"CheckWeight",
	"ChargeTransactionPayment",
	"CheckAppId",
)

func checkSignedExtensions(names []string) error {
	var hasAppID bool
	for _, name := range names {
		if !knownSignedExtensions.Has(name) {
			return fmt.Errorf("%w: unknown signed extension %s", ErrSchemaMismatch, name)
		}

		if _, ok := Schema.SignedExtension(name); ok {
			hasAppID = true
		}
	}

	if !hasAppID {
		return fmt.Errorf("%w: runtime does not declare the CheckAppId signed extension", ErrSchemaMismatch)
	}
	return nil
}

// runtimeInfo holds the chain values every signature commits to.
type runtimeInfo struct {
	genesisHash types.H256
	specVersion uint32
	txVersion   uint32
	metadata    Metadata
}

// signedExtensions encodes the extra (carried in the extrinsic) and
// additional (signed only) parts in metadata order.
func (r runtimeInfo) signedExtensions(opts SignOptions) ([]byte, []byte, error) {
	var extra, additional bytes.Buffer
	ee, ae := *scale.NewEncoder(&extra), *scale.NewEncoder(&additional)

	for _, name := range r.metadata.SignedExtensions() {
		var err error

		switch name {
		case "CheckNonZeroSender", "CheckWeight":
		case "CheckSpecVersion":
			err = encodeU32(ae, r.specVersion)
		case "CheckTxVersion":
			err = encodeU32(ae, r.txVersion)
		case "CheckGenesis":
			err = encodeH256(ae, r.genesisHash)
		case "CheckMortality", "CheckEra":
			// Immortal era; the checkpoint block is genesis.
			if err = ee.PushByte(0); err == nil {
				err = encodeH256(ae, r.genesisHash)
			}
		case "CheckNonce":
			err = encodeCompact(ee, opts.Nonce)
		case "ChargeTransactionPayment":
			err = encodeCompactBig(ee, opts.Tip)
		case "CheckAppId":
			err = CheckAppID{AppID: opts.AppID}.Encode(ee)
		default:
			err = fmt.Errorf("%w: unknown signed extension %s", ErrSchemaMismatch, name)
		}

		if err != nil {
			return nil, nil, err
		}
	}

	return extra.Bytes(), additional.Bytes(), nil
}

// signingPayload is what the signer commits to: call, extra and additional,
// hashed when longer than 256 bytes.
func signingPayload(call, extra, additional []byte) []byte {
	payload := make([]byte, 0, len(call)+len(extra)+len(additional))
	payload = append(payload, call...)
	payload = append(payload, extra...)
	payload = append(payload, additional...)

	if len(payload) > maxUnhashedPayload {
		sum := blake2b.Sum256(payload)
		return sum[:]
	}
	return payload
}

// signExtrinsic returns the length prefixed encoding of a signed v4
// extrinsic and its hash.
func (r runtimeInfo) signExtrinsic(call Call, signer Signer, opts SignOptions) ([]byte, types.H256, error) {
	callBytes, err := codec.Encode(call)
	if err != nil {
		return nil, types.H256{}, err
	}

	extra, additional, err := r.signedExtensions(opts)
	if err != nil {
		return nil, types.H256{}, err
	}

	publicKey := signer.PublicKey()
	if len(publicKey) != 32 {
		return nil, types.H256{}, fmt.Errorf("%w: signer public key has %d bytes", ErrInvalidArgument, len(publicKey))
	}

	signature, err := signer.Sign(signingPayload(callBytes, extra, additional))
	if err != nil {
		return nil, types.H256{}, err
	}

	if len(signature) != 64 {
		return nil, types.H256{}, fmt.Errorf("%w: signature has %d bytes", ErrInvalidArgument, len(signature))
	}

	var body bytes.Buffer
	body.WriteByte(signedBit | extrinsicVersion)
	body.WriteByte(multiAddressID)
	body.Write(publicKey)
	body.WriteByte(multiSignatureSr25)
	body.Write(signature)
	body.Write(extra)
	body.Write(callBytes)

	var encoded bytes.Buffer
	if err := encodeBytes(*scale.NewEncoder(&encoded), body.Bytes()); err != nil {
		return nil, types.H256{}, err
	}

	return encoded.Bytes(), blake2b.Sum256(encoded.Bytes()), nil
}
