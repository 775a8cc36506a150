package cctp

import "github.com/cedrospay/agentpay/pkg/network"

// messageTransmitter holds the CCTP V2 MessageTransmitter contract address
// per EVM network — the receiveMessage() call target for agent-side minting.
var messageTransmitter = map[network.Network]string{
	network.EthMainnet:  "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
	network.EthSepolia:  "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275",
	network.BaseMainnet: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
	network.BaseSepolia: "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275",
	network.AvaxMainnet: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
	network.ArbMainnet:  "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
	network.ArcTestnet:  "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275",
}

// messageTransmitterAddress returns the MessageTransmitter address for n,
// or an empty string if n has no registered deployment (Solana settles
// mints through its own program, not this EVM contract).
func messageTransmitterAddress(n network.Network) string {
	return messageTransmitter[n]
}

// minGasReserveWei is the native-gas balance the source wallet must hold
// before the approve and burn legs are attempted. Arc testnet pays gas in
// USDC so it is exempt from this pre-flight check.
const minGasReserveWei = "2000000000000000" // 0.002 native token, enough for approve+burn+mint at typical L2 gas prices

// defaultMaxFeeAtomic is the CCTP fast-transfer fee cap in micro-USDC when
// the destination supports the attestation relayer.
const defaultMaxFeeAtomic = 500

const (
	finalityThresholdFast     = 1000
	finalityThresholdStandard = 2000
)
