package types

import (
	"fmt"
	"strings"
)

// Network represents the EVM chains the WRLD token is tracked on
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
)

// Networks returns every supported network in a stable order.
func Networks() []Network {
	return []Network{NetworkPolygon, NetworkEthereum}
}

// ParseNetwork accepts the canonical name in any case.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", &WrldError{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %q", s),
		}
	}
	return n, nil
}

func (n Network) IsValid() bool {
	return n == NetworkEthereum || n == NetworkPolygon
}

// DefaultChainID returns the mainnet chain id of the network, or 0 if unknown.
func (n Network) DefaultChainID() int64 {
	switch n {
	case NetworkEthereum:
		return 1
	case NetworkPolygon:
		return 137
	default:
		return 0
	}
}

func (n Network) String() string {
	return string(n)
}
