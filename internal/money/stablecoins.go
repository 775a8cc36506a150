package money

import "fmt"

// ValidateStablecoinMint checks that a Solana mint address belongs to a
// registered SPL-token asset. Returns the asset code if valid, or an error.
//
// Why this matters:
//   - Typo in token mint = payments go to wrong token = permanent loss
//   - Non-stablecoins have unpredictable values (1 SOL != $1, 1 BONK != $1)
//   - Reservation and guard math assumes a stable $1 peg for the settlement asset
func ValidateStablecoinMint(mintAddress string) (string, error) {
	assetRegistryMu.RLock()
	defer assetRegistryMu.RUnlock()

	for code, asset := range assetRegistry {
		if asset.Type != AssetTypeSPL {
			continue
		}
		if asset.Metadata.SolanaMint == mintAddress {
			return code, nil
		}
	}
	return "", fmt.Errorf("token mint %s is not a recognized settlement asset", mintAddress)
}

// IsStablecoin returns true if the mint address belongs to a registered
// SPL-token asset (USDC, USDT, PYUSD, CASH, ...).
func IsStablecoin(mintAddress string) bool {
	_, err := ValidateStablecoinMint(mintAddress)
	return err == nil
}

// GetStablecoinSymbol returns the asset code for a mint address, or "" if unknown.
func GetStablecoinSymbol(mintAddress string) string {
	symbol, _ := ValidateStablecoinMint(mintAddress)
	return symbol
}

// GetMintAddressForSymbol returns the Solana mint address for an SPL-token
// asset code, or "" for any other code.
func GetMintAddressForSymbol(symbol string) string {
	asset, err := GetAsset(symbol)
	if err != nil || asset.Type != AssetTypeSPL {
		return ""
	}
	return asset.Metadata.SolanaMint
}
