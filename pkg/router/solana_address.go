package router

import (
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// isValidSolanaAddress reports whether recipient decodes to a 32-byte
// base58 public key, the shape every Solana address takes regardless of
// cluster. The character-class regex in ClassifyRecipient is a cheap
// prefilter; this does the real decode-and-length check before a payment
// is ever routed to a Solana-network adapter.
func isValidSolanaAddress(recipient string) bool {
	decoded, err := base58.Decode(recipient)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = solana.PublicKeyFromBase58(recipient)
	return err == nil
}
