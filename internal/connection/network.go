package connection

import (
	"errors"
	"fmt"
	"maps"
)

// Well known network selectors.
const (
	Testnet = "testnet"
	Devnet  = "devnet"
	Local   = "local"

	// DefaultNetwork is used for an empty selector.
	DefaultNetwork = Testnet
)

// Endpoint profiles.
const (
	// ProfileStatic uses the public endpoints baked into the binary.
	ProfileStatic = "static"

	// ProfileEnv takes the testnet endpoint from the environment
	// (AVAIL_TESTNET_WS) and fails when it is not set.
	ProfileEnv = "env"
)

var ErrUnknownProfile = errors.New("unknown endpoint profile")

// Networks maps network selectors to endpoint URIs. A selector that is not
// in the map is itself used as the endpoint.
type Networks map[string]string

// StaticNetworks returns the public Avail endpoints.
func StaticNetworks() Networks {
	return Networks{
		Testnet: "wss://testnet.avail.tools/ws",
		Devnet:  "wss://devnet.avail.tools/ws",
		Local:   "ws://127.0.0.1:9944",
	}
}

// EnvNetworks returns the static endpoints with testnet replaced by
// testnetEndpoint, which may be empty.
func EnvNetworks(testnetEndpoint string) Networks {
	n := StaticNetworks()
	n[Testnet] = testnetEndpoint
	return n
}

// NetworksForProfile returns the endpoint mapping of a profile.
func NetworksForProfile(profile, testnetEndpoint string) (Networks, error) {
	switch profile {
	case ProfileStatic, "":
		return StaticNetworks(), nil
	case ProfileEnv:
		return EnvNetworks(testnetEndpoint), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
}

// Merge returns a copy of n with the entries of other added or replaced.
func (n Networks) Merge(other Networks) Networks {
	out := make(Networks, len(n)+len(other))
	maps.Copy(out, n)
	maps.Copy(out, other)
	return out
}

// Resolve returns the endpoint of a selector.
func (n Networks) Resolve(selector string) (string, error) {
	if selector == "" {
		selector = DefaultNetwork
	}

	endpoint, known := n[selector]
	if !known {
		return selector, nil
	}

	if endpoint == "" {
		return "", fmt.Errorf("%w: %s", ErrEndpointNotConfigured, selector)
	}
	return endpoint, nil
}
