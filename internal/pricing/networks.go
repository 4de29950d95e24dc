package pricing

import "strings"

const (
	// DefaultDecimals is the precision of USDC, the default settlement asset.
	DefaultDecimals = 6
	// DefaultCurrency names the default settlement asset.
	DefaultCurrency = "USDC"
)

// usdcAssets maps network identifiers to their USDC contract addresses.
var usdcAssets = map[string]string{
	"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"eip155:8453":  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"eip155:84532": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
}

// chainIDs maps friendly network names to CAIP-2 chain identifiers.
var chainIDs = map[string]string{
	"base":         "eip155:8453",
	"base-sepolia": "eip155:84532",
}

// ChainID returns the CAIP-2 identifier for network, or network itself when
// it is already one. Friendly names match case-insensitively.
func ChainID(network string) string {
	if id, ok := chainIDs[strings.ToLower(strings.TrimSpace(network))]; ok {
		return id
	}
	return network
}

// NumericChainID strips the CAIP-2 namespace: "eip155:8453" -> "8453".
func NumericChainID(network string) string {
	id := ChainID(network)
	if _, ref, ok := strings.Cut(id, ":"); ok {
		return ref
	}
	return id
}

// USDCAddress returns the USDC contract on network.
func USDCAddress(network string) (string, bool) {
	a, ok := usdcAssets[network]
	return a, ok
}

// KnownNetwork reports whether a default asset is known for network.
func KnownNetwork(network string) bool {
	_, ok := usdcAssets[network]
	return ok
}

// SameNetwork compares two network identifiers after CAIP-2 normalization.
func SameNetwork(a, b string) bool {
	return strings.EqualFold(ChainID(a), ChainID(b))
}
