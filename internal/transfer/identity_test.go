package transfer

import (
	"testing"

	"github.com/gabapcia/availkit/internal/pkg/ss58"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bobAddress   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	devPhrase    = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"
)

func TestNewIdentity(t *testing.T) {
	t.Run("dev uri", func(t *testing.T) {
		id, err := NewIdentity("//Alice", ss58.SubstrateFormat)
		require.NoError(t, err)

		assert.Equal(t, aliceAddress, id.Address())
		assert.Len(t, id.PublicKey(), 32)
		account := id.AccountID()
		assert.Equal(t, id.PublicKey(), account[:])
	})

	t.Run("mnemonic with derivation path", func(t *testing.T) {
		id, err := NewIdentity(devPhrase+"//Bob", ss58.SubstrateFormat)
		require.NoError(t, err)
		assert.Equal(t, bobAddress, id.Address())
	})

	t.Run("hex seed", func(t *testing.T) {
		id, err := NewIdentity("0xe5be9a5092b81bca64be81d212e7f2f9eba183bb7a90954f7b76361f6edb5c0a", ss58.SubstrateFormat)
		require.NoError(t, err)
		assert.Equal(t, aliceAddress, id.Address())
	})

	t.Run("address follows the network format", func(t *testing.T) {
		id, err := NewIdentity("//Alice", 0)
		require.NoError(t, err)

		want, err := ss58.Encode(id.PublicKey(), 0)
		require.NoError(t, err)
		assert.Equal(t, want, id.Address())
		assert.NotEqual(t, aliceAddress, id.Address())
	})

	t.Run("invalid mnemonic", func(t *testing.T) {
		_, err := NewIdentity("these words are not a valid recovery phrase at all", ss58.SubstrateFormat)
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewIdentity("   ", ss58.SubstrateFormat)
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("malformed hex seed", func(t *testing.T) {
		_, err := NewIdentity("0xzz", ss58.SubstrateFormat)
		assert.ErrorIs(t, err, ErrInvalidSecret)
	})

	t.Run("string does not leak the secret", func(t *testing.T) {
		id, err := NewIdentity("//Alice", ss58.SubstrateFormat)
		require.NoError(t, err)
		assert.Equal(t, aliceAddress, id.String())
	})
}

func TestIdentity_Sign(t *testing.T) {
	id, err := NewIdentity("//Alice", ss58.SubstrateFormat)
	require.NoError(t, err)

	payload := []byte("transfer payload")
	sig, err := id.Sign(payload)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	ok, err := signature.Verify(payload, sig, "//Alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = signature.Verify([]byte("other payload"), sig, "//Alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
