package transfer

import (
	"fmt"
	"strings"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/ss58"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/tyler-smith/go-bip39"
)

// keyringNetwork only affects the address GSRPC renders, which is not used.
const keyringNetwork = 42

// Identity is an sr25519 keypair able to sign extrinsics.
type Identity struct {
	uri       string
	publicKey []byte
	address   string
}

var _ avail.Signer = (*Identity)(nil)

// NewIdentity derives a keypair from a secret URI: a mnemonic, a 0x hex
// seed or a dev URI such as //Alice, optionally followed by derivation
// paths. The address is rendered with the given SS58 format.
func NewIdentity(secret string, ss58Format uint16) (*Identity, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidSecret)
	}

	phrase, _, _ := strings.Cut(secret, "/")
	phrase = strings.TrimSpace(phrase)
	if strings.Contains(phrase, " ") && !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrInvalidSecret)
	}

	pair, err := signature.KeyringPairFromSecret(secret, keyringNetwork)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	address, err := ss58.Encode(pair.PublicKey, ss58Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	return &Identity{
		uri:       secret,
		publicKey: pair.PublicKey,
		address:   address,
	}, nil
}

// Address is the SS58 address of the identity.
func (i *Identity) Address() string {
	return i.address
}

func (i *Identity) AccountID() avail.AccountID {
	var id avail.AccountID
	copy(id[:], i.publicKey)
	return id
}

func (i *Identity) PublicKey() []byte {
	return i.publicKey
}

func (i *Identity) Sign(payload []byte) ([]byte, error) {
	return signature.Sign(payload, i.uri)
}

// String hides the secret.
func (i *Identity) String() string {
	return i.address
}
