package avail

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hash(b byte) types.H256 {
	var h types.H256
	for i := range h {
		h[i] = b
	}
	return h
}

func hashHex(b byte) string {
	return "0x" + strings.Repeat(hex.EncodeToString([]byte{b}), 32)
}

var headerJSON = `{
	"parentHash": "` + hashHex(0x22) + `",
	"number": "0x2a",
	"stateRoot": "` + hashHex(0x33) + `",
	"extrinsicsRoot": "` + hashHex(0x44) + `",
	"digest": {"logs": ["0x06424142451001020304", "0x054241424508aabb"]},
	"extension": {
		"V1": {
			"commitment": {"rows": 1, "cols": 4, "dataRoot": "` + hashHex(0x55) + `", "commitment": [1, 2, 3]},
			"appLookup": {"size": 1, "index": [{"appId": 0, "start": 0}]}
		}
	}
}`

func TestDaHeader_JSON(t *testing.T) {
	t.Run("decodes a node header", func(t *testing.T) {
		var h DaHeader
		require.NoError(t, json.Unmarshal([]byte(headerJSON), &h))

		assert.Equal(t, hash(0x22), h.ParentHash)
		assert.Equal(t, uint64(42), h.Number.Uint64())
		assert.Equal(t, hash(0x44), h.ExtrinsicsRoot)
		require.Len(t, h.Digest.Logs, 2)
		assert.Equal(t, "0x06424142451001020304", h.Digest.Logs[0].Hex())

		assert.Equal(t, "v1", h.Extension.Variant())
		commitment, ok := h.Extension.Commitment()
		require.True(t, ok)
		assert.Equal(t, uint16(4), commitment.Cols)
		assert.Equal(t, types.Bytes{1, 2, 3}, commitment.Commitment)
		assert.Equal(t, hash(0x55), commitment.DataRoot)
	})

	t.Run("header is an alias of DaHeader", func(t *testing.T) {
		var h Header
		require.NoError(t, json.Unmarshal([]byte(headerJSON), &h))
		assert.Equal(t, uint64(42), h.Number.Uint64())
	})
}

func TestDaHeader_SCALE(t *testing.T) {
	var h DaHeader
	require.NoError(t, json.Unmarshal([]byte(headerJSON), &h))

	encoded, err := codec.Encode(h)
	require.NoError(t, err)

	var decoded DaHeader
	require.NoError(t, codec.Decode(encoded, &decoded))
	assert.Equal(t, h, decoded)

	first, err := h.Hash()
	require.NoError(t, err)
	second, err := decoded.Hash()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, first.IsZero())
}

func TestHeaderExtension(t *testing.T) {
	t.Run("json variant keys are case insensitive", func(t *testing.T) {
		for _, key := range []string{"v1", "V1"} {
			var ext HeaderExtension
			raw := `{"` + key + `": {"commitment": {"rows": 0, "cols": 0, "dataRoot": "` + hashHex(0) + `", "commitment": "0x"}, "appLookup": {"size": 0, "index": []}}}`

			require.NoError(t, json.Unmarshal([]byte(raw), &ext))
			assert.NotNil(t, ext.V1)
			assert.Nil(t, ext.VTest)
		}
	})

	t.Run("test variant", func(t *testing.T) {
		raw := `{"vTest": {"newField": "0x0102", "commitment": {"rows": 2, "cols": 2, "dataRoot": "` + hashHex(1) + `", "commitment": "0x"}, "appLookup": {"size": 0, "index": []}}}`

		var ext HeaderExtension
		require.NoError(t, json.Unmarshal([]byte(raw), &ext))
		require.NotNil(t, ext.VTest)
		assert.Equal(t, types.Bytes{1, 2}, ext.VTest.NewField)

		out, err := json.Marshal(ext)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"vTest"`)
	})

	t.Run("unknown variant", func(t *testing.T) {
		var ext HeaderExtension
		err := json.Unmarshal([]byte(`{"v3": {}}`), &ext)
		assert.ErrorIs(t, err, ErrUnknownVariant)
	})

	t.Run("scale variant index", func(t *testing.T) {
		ext := HeaderExtension{VTest: &VTHeaderExtension{}}

		encoded, err := codec.Encode(ext)
		require.NoError(t, err)
		assert.Equal(t, byte(1), encoded[0])

		encoded[0] = 7
		var decoded HeaderExtension
		assert.ErrorIs(t, codec.Decode(encoded, &decoded), ErrUnknownVariant)
	})

	t.Run("empty extension cannot be encoded", func(t *testing.T) {
		_, err := codec.Encode(HeaderExtension{})
		assert.Error(t, err)
	})
}

func TestBlockLength(t *testing.T) {
	t.Run("scale layout", func(t *testing.T) {
		bl := BlockLength{
			Max:       PerDispatchClass{Normal: 1, Operational: 2, Mandatory: 3},
			Cols:      4,
			Rows:      5,
			ChunkSize: 6,
		}

		encoded, err := codec.Encode(bl)
		require.NoError(t, err)
		assert.Equal(t, "010000000200000003000000101418", hex.EncodeToString(encoded))

		var decoded BlockLength
		require.NoError(t, codec.Decode(encoded, &decoded))
		assert.Equal(t, bl, decoded)
	})

	t.Run("json", func(t *testing.T) {
		raw := `{"max": {"normal": 2097152, "operational": 2097152, "mandatory": 2097152}, "cols": 256, "rows": 256, "chunkSize": 32}`

		var bl BlockLength
		require.NoError(t, json.Unmarshal([]byte(raw), &bl))
		assert.Equal(t, uint32(2097152), bl.Max.Normal)
		assert.Equal(t, uint32(32), bl.ChunkSize)
	})
}

func TestDataProof(t *testing.T) {
	raw := `{
		"root": "` + hashHex(0xaa) + `",
		"proof": ["` + hashHex(0x01) + `", "` + hashHex(0x02) + `"],
		"numberOfLeaves": 4,
		"leaf_index": 3,
		"leaf": "` + hashHex(0xbb) + `"
	}`

	var p DataProof
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, uint32(3), p.LeafIndex)
	assert.Equal(t, uint32(4), p.NumberOfLeaves)
	assert.Equal(t, []types.H256{hash(1), hash(2)}, p.Proof)

	encoded, err := codec.Encode(p)
	require.NoError(t, err)
	assert.Len(t, encoded, 32+1+64+1+1+32)

	var decoded DataProof
	require.NoError(t, codec.Decode(encoded, &decoded))
	assert.Equal(t, p, decoded)
}

func TestCell(t *testing.T) {
	encoded, err := codec.Encode(Cell{Row: 1, Col: 256})
	require.NoError(t, err)
	assert.Equal(t, "0100000000010000", hex.EncodeToString(encoded))

	out, err := json.Marshal(Cell{Row: 1, Col: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"row": 1, "col": 2}`, string(out))
}

func TestCheckAppID(t *testing.T) {
	encoded, err := codec.Encode(CheckAppID{AppID: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04}, encoded)

	encoded, err = codec.Encode(CheckAppID{AppID: 256})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x04}, encoded)

	var decoded CheckAppID
	require.NoError(t, codec.Decode(encoded, &decoded))
	assert.Equal(t, AppID(256), decoded.AppID)
}

func TestDataLookup_SCALE(t *testing.T) {
	lookup := DataLookup{
		Size:  3,
		Index: []DataLookupIndexItem{{AppID: 1, Start: 0}, {AppID: 2, Start: 2}},
	}

	encoded, err := codec.Encode(lookup)
	require.NoError(t, err)
	assert.Equal(t, "0c0804000808", hex.EncodeToString(encoded))

	var decoded DataLookup
	require.NoError(t, codec.Decode(encoded, &decoded))
	assert.Equal(t, lookup, decoded)
}
