package avail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

// ErrUnknownVariant is returned when decoding an enum with an unexpected
// variant.
var ErrUnknownVariant = errors.New("unknown enum variant")

// AppID is the application namespace an extrinsic's data belongs to.
// Encoded as Compact<u32>.
type AppID uint32

func (a AppID) Encode(e scale.Encoder) error {
	return encodeCompact(e, uint64(a))
}

func (a *AppID) Decode(d scale.Decoder) error {
	v, err := decodeCompact(d, 32)
	*a = AppID(v)
	return err
}

// DataLookupIndexItem marks the first chunk owned by an application.
type DataLookupIndexItem struct {
	AppID AppID  `json:"appId"`
	Start uint32 `json:"start"`
}

func (i DataLookupIndexItem) Encode(e scale.Encoder) error {
	if err := i.AppID.Encode(e); err != nil {
		return err
	}
	return encodeCompact(e, uint64(i.Start))
}

func (i *DataLookupIndexItem) Decode(d scale.Decoder) error {
	if err := i.AppID.Decode(d); err != nil {
		return err
	}

	start, err := decodeCompact(d, 32)
	i.Start = uint32(start)
	return err
}

// DataLookup maps application ids to their ranges in the block data matrix.
type DataLookup struct {
	Size  uint32                `json:"size"`
	Index []DataLookupIndexItem `json:"index"`
}

func (l DataLookup) Encode(e scale.Encoder) error {
	if err := encodeCompact(e, uint64(l.Size)); err != nil {
		return err
	}

	if err := encodeCompact(e, uint64(len(l.Index))); err != nil {
		return err
	}

	for _, item := range l.Index {
		if err := item.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (l *DataLookup) Decode(d scale.Decoder) error {
	size, err := decodeCompact(d, 32)
	if err != nil {
		return err
	}
	l.Size = uint32(size)

	n, err := decodeLength(d)
	if err != nil {
		return err
	}

	l.Index = make([]DataLookupIndexItem, n)
	for i := range l.Index {
		if err := l.Index[i].Decode(d); err != nil {
			return err
		}
	}
	return nil
}

// KateCommitment is the polynomial commitment over a block's data matrix.
type KateCommitment struct {
	Rows       uint16      `json:"rows"`
	Cols       uint16      `json:"cols"`
	DataRoot   types.H256  `json:"dataRoot"`
	Commitment types.Bytes `json:"commitment"`
}

func (k KateCommitment) Encode(e scale.Encoder) error {
	if err := encodeCompact(e, uint64(k.Rows)); err != nil {
		return err
	}

	if err := encodeCompact(e, uint64(k.Cols)); err != nil {
		return err
	}

	if err := encodeH256(e, k.DataRoot); err != nil {
		return err
	}
	return encodeBytes(e, k.Commitment)
}

func (k *KateCommitment) Decode(d scale.Decoder) error {
	rows, err := decodeCompact(d, 16)
	if err != nil {
		return err
	}

	cols, err := decodeCompact(d, 16)
	if err != nil {
		return err
	}

	if k.DataRoot, err = decodeH256(d); err != nil {
		return err
	}

	commitment, err := decodeBytes(d)
	if err != nil {
		return err
	}

	k.Rows, k.Cols, k.Commitment = uint16(rows), uint16(cols), commitment
	return nil
}

type V1HeaderExtension struct {
	Commitment KateCommitment `json:"commitment"`
	AppLookup  DataLookup     `json:"appLookup"`
}

func (v V1HeaderExtension) Encode(e scale.Encoder) error {
	if err := v.Commitment.Encode(e); err != nil {
		return err
	}
	return v.AppLookup.Encode(e)
}

func (v *V1HeaderExtension) Decode(d scale.Decoder) error {
	if err := v.Commitment.Decode(d); err != nil {
		return err
	}
	return v.AppLookup.Decode(d)
}

// VTHeaderExtension is the test variant of the header extension.
type VTHeaderExtension struct {
	NewField   types.Bytes    `json:"newField"`
	Commitment KateCommitment `json:"commitment"`
	AppLookup  DataLookup     `json:"appLookup"`
}

func (v VTHeaderExtension) Encode(e scale.Encoder) error {
	if err := encodeBytes(e, v.NewField); err != nil {
		return err
	}

	if err := v.Commitment.Encode(e); err != nil {
		return err
	}
	return v.AppLookup.Encode(e)
}

func (v *VTHeaderExtension) Decode(d scale.Decoder) error {
	newField, err := decodeBytes(d)
	if err != nil {
		return err
	}
	v.NewField = newField

	if err := v.Commitment.Decode(d); err != nil {
		return err
	}
	return v.AppLookup.Decode(d)
}

const (
	headerExtensionV1    = "v1"
	headerExtensionVTest = "vTest"
)

// HeaderExtension is the Avail specific part of a block header. Exactly one
// variant is set.
type HeaderExtension struct {
	V1    *V1HeaderExtension
	VTest *VTHeaderExtension
}

// Variant returns the name of the populated variant, or "" if none is.
func (h HeaderExtension) Variant() string {
	switch {
	case h.V1 != nil:
		return headerExtensionV1
	case h.VTest != nil:
		return headerExtensionVTest
	default:
		return ""
	}
}

// Commitment returns the commitment of whichever variant is set.
func (h HeaderExtension) Commitment() (KateCommitment, bool) {
	switch {
	case h.V1 != nil:
		return h.V1.Commitment, true
	case h.VTest != nil:
		return h.VTest.Commitment, true
	default:
		return KateCommitment{}, false
	}
}

func (h HeaderExtension) Encode(e scale.Encoder) error {
	switch {
	case h.V1 != nil:
		if err := e.PushByte(0); err != nil {
			return err
		}
		return h.V1.Encode(e)
	case h.VTest != nil:
		if err := e.PushByte(1); err != nil {
			return err
		}
		return h.VTest.Encode(e)
	default:
		return fmt.Errorf("%w: empty header extension", ErrUnknownVariant)
	}
}

func (h *HeaderExtension) Decode(d scale.Decoder) error {
	variant, err := d.ReadOneByte()
	if err != nil {
		return err
	}

	*h = HeaderExtension{}

	switch variant {
	case 0:
		h.V1 = new(V1HeaderExtension)
		return h.V1.Decode(d)
	case 1:
		h.VTest = new(VTHeaderExtension)
		return h.VTest.Decode(d)
	default:
		return fmt.Errorf("%w: header extension index %d", ErrUnknownVariant, variant)
	}
}

func (h HeaderExtension) MarshalJSON() ([]byte, error) {
	switch {
	case h.V1 != nil:
		return json.Marshal(map[string]any{headerExtensionV1: h.V1})
	case h.VTest != nil:
		return json.Marshal(map[string]any{headerExtensionVTest: h.VTest})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the variant key in any case, since nodes and
// polkadot.js disagree on it ("V1" vs "v1").
func (h *HeaderExtension) UnmarshalJSON(data []byte) error {
	*h = HeaderExtension{}

	if string(data) == "null" {
		return nil
	}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return err
	}

	if len(variants) != 1 {
		return fmt.Errorf("%w: expected one variant, got %d", ErrUnknownVariant, len(variants))
	}

	for name, raw := range variants {
		switch {
		case strings.EqualFold(name, headerExtensionV1):
			h.V1 = new(V1HeaderExtension)
			return json.Unmarshal(raw, h.V1)
		case strings.EqualFold(name, headerExtensionVTest):
			h.VTest = new(VTHeaderExtension)
			return json.Unmarshal(raw, h.VTest)
		default:
			return fmt.Errorf("%w: header extension %q", ErrUnknownVariant, name)
		}
	}
	return nil
}

// Digest holds the header digest items, each kept in its SCALE encoding as
// returned by the node.
type Digest struct {
	Logs []types.Bytes `json:"logs"`
}

func (g Digest) Encode(e scale.Encoder) error {
	if err := encodeCompact(e, uint64(len(g.Logs))); err != nil {
		return err
	}

	for _, item := range g.Logs {
		if err := e.Write(item); err != nil {
			return err
		}
	}
	return nil
}

func (g *Digest) Decode(d scale.Decoder) error {
	n, err := decodeLength(d)
	if err != nil {
		return err
	}

	g.Logs = make([]types.Bytes, n)
	for i := range g.Logs {
		if g.Logs[i], err = decodeDigestItem(d); err != nil {
			return err
		}
	}
	return nil
}

// Digest item kinds.
const (
	digestOther                     = 0
	digestConsensus                 = 4
	digestSeal                      = 5
	digestPreRuntime                = 6
	digestRuntimeEnvironmentUpdated = 8
)

func decodeDigestItem(d scale.Decoder) ([]byte, error) {
	kind, err := d.ReadOneByte()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(kind)
	e := scale.NewEncoder(&buf)

	switch kind {
	case digestConsensus, digestSeal, digestPreRuntime:
		var engine [4]byte
		if err := d.Read(engine[:]); err != nil {
			return nil, err
		}
		buf.Write(engine[:])
		fallthrough
	case digestOther:
		payload, err := decodeBytes(d)
		if err != nil {
			return nil, err
		}
		if err := encodeBytes(*e, payload); err != nil {
			return nil, err
		}
	case digestRuntimeEnvironmentUpdated:
	default:
		return nil, fmt.Errorf("%w: digest item kind %d", ErrUnknownVariant, kind)
	}

	return buf.Bytes(), nil
}

// DaHeader is the Avail block header: a Substrate header plus the data
// availability extension.
type DaHeader struct {
	ParentHash     types.H256      `json:"parentHash"`
	Number         types.HexNumber `json:"number"`
	StateRoot      types.H256      `json:"stateRoot"`
	ExtrinsicsRoot types.H256      `json:"extrinsicsRoot"`
	Digest         Digest          `json:"digest"`
	Extension      HeaderExtension `json:"extension"`
}

// Header is the header type of the chain.
type Header = DaHeader

func (h DaHeader) Encode(e scale.Encoder) error {
	if err := encodeH256(e, h.ParentHash); err != nil {
		return err
	}

	if err := encodeCompact(e, h.Number.Uint64()); err != nil {
		return err
	}

	if err := encodeH256(e, h.StateRoot); err != nil {
		return err
	}

	if err := encodeH256(e, h.ExtrinsicsRoot); err != nil {
		return err
	}

	if err := h.Digest.Encode(e); err != nil {
		return err
	}
	return h.Extension.Encode(e)
}

func (h *DaHeader) Decode(d scale.Decoder) error {
	var err error

	if h.ParentHash, err = decodeH256(d); err != nil {
		return err
	}

	number, err := decodeCompact(d, 32)
	if err != nil {
		return err
	}
	h.Number = types.HexNumber(number)

	if h.StateRoot, err = decodeH256(d); err != nil {
		return err
	}

	if h.ExtrinsicsRoot, err = decodeH256(d); err != nil {
		return err
	}

	if err := h.Digest.Decode(d); err != nil {
		return err
	}
	return h.Extension.Decode(d)
}

// Hash computes the block hash, blake2b-256 over the SCALE encoded header.
func (h DaHeader) Hash() (types.H256, error) {
	encoded, err := codec.Encode(h)
	if err != nil {
		return types.H256{}, err
	}
	return blake2b.Sum256(encoded), nil
}

// Block is a header plus its opaque extrinsics.
type Block struct {
	Header     DaHeader      `json:"header"`
	Extrinsics []types.Bytes `json:"extrinsics"`
}

// SignedBlock is the result of chain_getBlock.
type SignedBlock struct {
	Block         Block           `json:"block"`
	Justification json.RawMessage `json:"justification,omitempty"`
}

// PerDispatchClass holds one value per dispatch class.
type PerDispatchClass struct {
	Normal      uint32 `json:"normal"`
	Operational uint32 `json:"operational"`
	Mandatory   uint32 `json:"mandatory"`
}

// BlockLength describes the block size limits and data matrix dimensions.
type BlockLength struct {
	Max       PerDispatchClass `json:"max"`
	Cols      uint32           `json:"cols"`
	Rows      uint32           `json:"rows"`
	ChunkSize uint32           `json:"chunkSize"`
}

func (b BlockLength) Encode(e scale.Encoder) error {
	for _, v := range []uint32{b.Max.Normal, b.Max.Operational, b.Max.Mandatory} {
		if err := encodeU32(e, v); err != nil {
			return err
		}
	}

	for _, v := range []uint32{b.Cols, b.Rows, b.ChunkSize} {
		if err := encodeCompact(e, uint64(v)); err != nil {
			return err
		}
	}
	return nil
}

func (b *BlockLength) Decode(d scale.Decoder) error {
	for _, v := range []*uint32{&b.Max.Normal, &b.Max.Operational, &b.Max.Mandatory} {
		n, err := decodeU32(d)
		if err != nil {
			return err
		}
		*v = n
	}

	for _, v := range []*uint32{&b.Cols, &b.Rows, &b.ChunkSize} {
		n, err := decodeCompact(d, 32)
		if err != nil {
			return err
		}
		*v = uint32(n)
	}
	return nil
}

// DataProof is a merkle proof that a leaf is part of a block's data root.
type DataProof struct {
	Root           types.H256   `json:"root"`
	Proof          []types.H256 `json:"proof"`
	NumberOfLeaves uint32       `json:"numberOfLeaves"`
	LeafIndex      uint32       `json:"leaf_index"`
	Leaf           types.H256   `json:"leaf"`
}

func (p DataProof) Encode(e scale.Encoder) error {
	if err := encodeH256(e, p.Root); err != nil {
		return err
	}

	if err := encodeCompact(e, uint64(len(p.Proof))); err != nil {
		return err
	}

	for _, h := range p.Proof {
		if err := encodeH256(e, h); err != nil {
			return err
		}
	}

	if err := encodeCompact(e, uint64(p.NumberOfLeaves)); err != nil {
		return err
	}

	if err := encodeCompact(e, uint64(p.LeafIndex)); err != nil {
		return err
	}
	return encodeH256(e, p.Leaf)
}

func (p *DataProof) Decode(d scale.Decoder) error {
	var err error

	if p.Root, err = decodeH256(d); err != nil {
		return err
	}

	n, err := decodeLength(d)
	if err != nil {
		return err
	}

	p.Proof = make([]types.H256, n)
	for i := range p.Proof {
		if p.Proof[i], err = decodeH256(d); err != nil {
			return err
		}
	}

	leaves, err := decodeCompact(d, 32)
	if err != nil {
		return err
	}

	index, err := decodeCompact(d, 32)
	if err != nil {
		return err
	}

	if p.Leaf, err = decodeH256(d); err != nil {
		return err
	}

	p.NumberOfLeaves, p.LeafIndex = uint32(leaves), uint32(index)
	return nil
}

// Cell addresses one cell of the data matrix.
type Cell struct {
	Row uint32 `json:"row"`
	Col uint32 `json:"col"`
}

func (c Cell) Encode(e scale.Encoder) error {
	if err := encodeU32(e, c.Row); err != nil {
		return err
	}
	return encodeU32(e, c.Col)
}

func (c *Cell) Decode(d scale.Decoder) error {
	var err error
	if c.Row, err = decodeU32(d); err != nil {
		return err
	}
	c.Col, err = decodeU32(d)
	return err
}

// CheckAppID is the signed extension tagging an extrinsic with its
// application id. It adds nothing to the additional signed payload.
type CheckAppID struct {
	AppID AppID `json:"appId"`
}

func (c CheckAppID) Encode(e scale.Encoder) error {
	return c.AppID.Encode(e)
}

func (c *CheckAppID) Decode(d scale.Decoder) error {
	return c.AppID.Decode(d)
}
