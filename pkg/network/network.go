// Package network defines the closed set of blockchain networks the
// orchestrator can route payments across, and the CCTP domain table used
// by the cross-chain state machine.
package network

import "fmt"

// Network is a closed enumeration of blockchain identifiers. Every network
// the router or CCTP FSM touches must be one of these values.
type Network string

const (
	EthMainnet  Network = "ETH-MAINNET"
	EthSepolia  Network = "ETH-SEPOLIA"
	BaseMainnet Network = "BASE-MAINNET"
	BaseSepolia Network = "BASE-SEPOLIA"
	AvaxMainnet Network = "AVAX-MAINNET"
	ArbMainnet  Network = "ARB-MAINNET"
	ArcTestnet  Network = "ARC-TESTNET"
	SolMainnet  Network = "SOL-MAINNET"
	SolDevnet   Network = "SOL-DEVNET"
)

// attributes holds the per-network facts consulted by adapters and the
// CCTP FSM: whether the network is a testnet, which VM family it belongs
// to, its CCTP domain ID (if CCTP-supported), and whether it only supports
// agent-side manual minting (no relayer).
type attributes struct {
	isTestnet  bool
	isEVM      bool
	isSolana   bool
	cctpDomain int
	hasCCTP    bool
	manualOnly bool // minting requires an agent-side wallet; no relayer service
	chainID    int64
}

var table = map[Network]attributes{
	EthMainnet:  {isTestnet: false, isEVM: true, cctpDomain: 0, hasCCTP: true, chainID: 1},
	EthSepolia:  {isTestnet: true, isEVM: true, cctpDomain: 0, hasCCTP: true, chainID: 11155111},
	AvaxMainnet: {isTestnet: false, isEVM: true, cctpDomain: 1, hasCCTP: true, chainID: 43114},
	ArbMainnet:  {isTestnet: false, isEVM: true, cctpDomain: 3, hasCCTP: true, chainID: 42161},
	BaseMainnet: {isTestnet: false, isEVM: true, cctpDomain: 6, hasCCTP: true, chainID: 8453},
	BaseSepolia: {isTestnet: true, isEVM: true, cctpDomain: 6, hasCCTP: true, chainID: 84532},
	ArcTestnet:  {isTestnet: true, isEVM: true, cctpDomain: 15, hasCCTP: true, manualOnly: true, chainID: 101},
	SolMainnet:  {isTestnet: false, isSolana: true, cctpDomain: 5, hasCCTP: true},
	SolDevnet:   {isTestnet: true, isSolana: true, cctpDomain: 5, hasCCTP: true},
}

// Parse resolves a network identifier, accepting both canonical enum
// strings and a handful of legacy aliases (e.g. "ethereum", "base").
func Parse(s string) (Network, error) {
	if _, ok := table[Network(s)]; ok {
		return Network(s), nil
	}
	if alias, ok := aliases[s]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("network: unknown network identifier %q", s)
}

var aliases = map[string]Network{
	"ethereum": EthMainnet,
	"eth":      EthMainnet,
	"base":     BaseMainnet,
	"avalanche": AvaxMainnet,
	"avax":     AvaxMainnet,
	"arbitrum": ArbMainnet,
	"arb":      ArbMainnet,
	"arc":      ArcTestnet,
	"solana":   SolMainnet,
	"sol":      SolMainnet,
}

func (n Network) attrs() attributes {
	return table[n]
}

// IsTestnet reports whether the network is a test network.
func (n Network) IsTestnet() bool { return n.attrs().isTestnet }

// IsEVM reports whether the network is an EVM-compatible chain.
func (n Network) IsEVM() bool { return n.attrs().isEVM }

// IsSolana reports whether the network is a Solana cluster.
func (n Network) IsSolana() bool { return n.attrs().isSolana }

// ChainID returns the EVM chain ID, or 0 for non-EVM networks.
func (n Network) ChainID() int64 { return n.attrs().chainID }

// SupportsCCTP reports whether the network has a registered CCTP domain.
func (n Network) SupportsCCTP() bool { return n.attrs().hasCCTP }

// CCTPDomain returns the CCTP domain ID for the network, or an error if
// the network is not CCTP-supported.
func (n Network) CCTPDomain() (int, error) {
	a := n.attrs()
	if !a.hasCCTP {
		return 0, fmt.Errorf("network: %s has no CCTP domain", n)
	}
	return a.cctpDomain, nil
}

// ManualMintOnly reports whether the destination network has no attestation
// relayer and always requires an agent-side mint (e.g. Arc testnet, where
// gas is paid in USDC and maxFee is forced to zero).
func (n Network) ManualMintOnly() bool { return n.attrs().manualOnly }

// Valid reports whether n is a recognized network.
func (n Network) Valid() bool {
	_, ok := table[n]
	return ok
}

// String implements fmt.Stringer.
func (n Network) String() string { return string(n) }
