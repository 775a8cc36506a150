package money

import (
	"fmt"
	"sync"
)

// Asset represents a currency or token with its properties.
type Asset struct {
	Code     string // Asset code (USD, USDC, SOL, etc.)
	Decimals uint8  // Number of decimal places (2 for USD, 6 for USDC, 9 for SOL)
	Type     AssetType
	Metadata AssetMetadata
}

// AssetType categorizes the asset for settlement-rail dispatch. A single
// logical asset can still carry metadata for more than one rail (USDC is
// AssetTypeSPL on Solana and also carries EVMContracts for CCTP/ERC-20
// rails); Type records the asset's primary/native rail.
type AssetType int

const (
	AssetTypeFiat   AssetType = iota // Fiat currency (Stripe rail)
	AssetTypeSPL                     // Solana SPL token
	AssetTypeERC20                   // EVM ERC-20 token
	AssetTypeNative                  // Native gas asset (ETH, SOL, ...)
)

// AssetMetadata contains backend-specific addressing information. Amounts
// for a given asset are always denominated in the same Decimals regardless
// of which network rail carries them (USDC is 6 decimals on every chain
// CCTP supports), so a single Money value can move across the EVMContracts
// map without re-scaling.
type AssetMetadata struct {
	StripeCurrency string // Stripe currency code (lowercase: "usd", "eur")
	SolanaMint     string // Solana token mint address (base58), if deployed there

	// EVMContracts maps a network identifier (as used by pkg/network) to the
	// checksummed ERC-20 contract address for this asset on that chain.
	EVMContracts map[string]string

	// CCTPTokenMessenger maps a network identifier to the TokenMessenger
	// contract address used to burn this asset for cross-chain transfer.
	CCTPTokenMessenger map[string]string
}

// Global asset registry with concurrent access protection.
var (
	assetRegistry = map[string]Asset{
		// Fiat currencies (Stripe settlement rail)
		"USD": {
			Code:     "USD",
			Decimals: 2, // cents
			Type:     AssetTypeFiat,
			Metadata: AssetMetadata{StripeCurrency: "usd"},
		},
		"EUR": {
			Code:     "EUR",
			Decimals: 2, // cents
			Type:     AssetTypeFiat,
			Metadata: AssetMetadata{StripeCurrency: "eur"},
		},

		// USDC: the primary cross-chain settlement asset. Carries a Solana
		// mint for the x402/SPL transfer rail and per-network ERC-20 +
		// TokenMessenger addresses for the CCTP burn/mint rail.
		"USDC": {
			Code:     "USDC",
			Decimals: 6, // micro-USDC, same on every supported chain
			Type:     AssetTypeSPL,
			Metadata: AssetMetadata{
				SolanaMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				EVMContracts: map[string]string{
					"ETH-MAINNET":  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
					"ETH-SEPOLIA":  "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
					"BASE-MAINNET": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
					"BASE-SEPOLIA": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
					"AVAX-MAINNET": "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
					"ARB-MAINNET":  "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
				},
				CCTPTokenMessenger: map[string]string{
					"ETH-MAINNET":  "0xBd3fa81B58Ba92a82136038B25aDec7066af3155",
					"ETH-SEPOLIA":  "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
					"BASE-MAINNET": "0x1682Ae6375C4E4A97e4B583BC394c861A46D8962",
					"BASE-SEPOLIA": "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
					"AVAX-MAINNET": "0x6B25532e1060CE10cc3B0A99e5683b91BFDe6982",
					"ARB-MAINNET":  "0x19330d10D9Cc8751218eaf51E8885D058642E08A",
				},
			},
		},
		"SOL": {
			Code:     "SOL",
			Decimals: 9, // lamports
			Type:     AssetTypeNative,
			Metadata: AssetMetadata{SolanaMint: "So11111111111111111111111111111111111111112"},
		},
		"ETH": {
			Code:     "ETH",
			Decimals: 18, // wei
			Type:     AssetTypeNative,
		},
		"USDT": {
			Code:     "USDT",
			Decimals: 6, // micro-USDT
			Type:     AssetTypeSPL,
			Metadata: AssetMetadata{SolanaMint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"},
		},
		"PYUSD": {
			Code:     "PYUSD",
			Decimals: 6, // micro-PYUSD (PayPal USD)
			Type:     AssetTypeSPL,
			Metadata: AssetMetadata{SolanaMint: "2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo"},
		},
		"CASH": {
			Code:     "CASH",
			Decimals: 6, // micro-CASH
			Type:     AssetTypeSPL,
			Metadata: AssetMetadata{SolanaMint: "CASHx9KJUStyftLFWGvEVf59SGeG9sh5FfcnZMVPCASH"},
		},
	}
	assetRegistryMu sync.RWMutex
)

// GetAsset retrieves an asset from the registry.
func GetAsset(code string) (Asset, error) {
	assetRegistryMu.RLock()
	asset, ok := assetRegistry[code]
	assetRegistryMu.RUnlock()

	if !ok {
		return Asset{}, fmt.Errorf("money: unknown asset: %s", code)
	}
	return asset, nil
}

// MustGetAsset retrieves an asset and panics if not found (for tests/constants).
func MustGetAsset(code string) Asset {
	asset, err := GetAsset(code)
	if err != nil {
		panic(err)
	}
	return asset
}

// RegisterAsset adds a new asset to the registry (for testing or dynamic tokens).
func RegisterAsset(asset Asset) error {
	if asset.Code == "" {
		return fmt.Errorf("money: asset code required")
	}
	if asset.Decimals > 18 {
		return fmt.Errorf("money: decimals must be <= 18")
	}

	assetRegistryMu.Lock()
	assetRegistry[asset.Code] = asset
	assetRegistryMu.Unlock()

	return nil
}

// ListAssets returns all registered assets.
func ListAssets() []Asset {
	assetRegistryMu.RLock()
	assets := make([]Asset, 0, len(assetRegistry))
	for _, asset := range assetRegistry {
		assets = append(assets, asset)
	}
	assetRegistryMu.RUnlock()

	return assets
}

// IsStripeCurrency returns true if the asset is a Stripe fiat currency.
func (a Asset) IsStripeCurrency() bool {
	return a.Type == AssetTypeFiat
}

// IsSPLToken returns true if the asset has a Solana mint, regardless of
// whether Solana is its primary rail (USDC's primary Type is AssetTypeSPL;
// SOL is AssetTypeNative but still addressable as a mint for wrapped transfers).
func (a Asset) IsSPLToken() bool {
	return a.Metadata.SolanaMint != "" && a.Type != AssetTypeFiat
}

// IsEVMToken returns true if the asset has at least one EVM contract address.
func (a Asset) IsEVMToken() bool {
	return len(a.Metadata.EVMContracts) > 0
}

// GetStripeCurrency returns the Stripe currency code or error.
func (a Asset) GetStripeCurrency() (string, error) {
	if !a.IsStripeCurrency() {
		return "", fmt.Errorf("money: %s is not a Stripe currency", a.Code)
	}
	return a.Metadata.StripeCurrency, nil
}

// GetSolanaMint returns the Solana mint address or error.
func (a Asset) GetSolanaMint() (string, error) {
	if a.Metadata.SolanaMint == "" {
		return "", fmt.Errorf("money: %s has no Solana mint", a.Code)
	}
	return a.Metadata.SolanaMint, nil
}

// GetEVMContract returns the ERC-20 contract address for the given network identifier.
func (a Asset) GetEVMContract(network string) (string, error) {
	addr, ok := a.Metadata.EVMContracts[network]
	if !ok || addr == "" {
		return "", fmt.Errorf("money: %s has no contract on network %s", a.Code, network)
	}
	return addr, nil
}

// GetCCTPTokenMessenger returns the CCTP TokenMessenger contract address
// for the given network identifier, used to burn this asset cross-chain.
func (a Asset) GetCCTPTokenMessenger(network string) (string, error) {
	addr, ok := a.Metadata.CCTPTokenMessenger[network]
	if !ok || addr == "" {
		return "", fmt.Errorf("money: %s has no CCTP TokenMessenger on network %s", a.Code, network)
	}
	return addr, nil
}
