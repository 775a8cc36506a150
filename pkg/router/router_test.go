package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRecipient(t *testing.T) {
	cases := []struct {
		name      string
		recipient string
		wantKind  RecipientKind
	}{
		{"https url", "https://api.example.com/resource", RecipientURL},
		{"http url", "http://api.example.com/resource", RecipientURL},
		{"evm address", "0x00000000000000000000000000000000000000aa", RecipientEVMAddress},
		{"legacy chain form", "base-sepolia:0x000000000000000000000000000000000000aa", RecipientLegacyChainAddress},
		{"valid solana address", "11111111111111111111111111111111", RecipientSolanaAddress},
		{"garbage base58-shaped string", "not-a-real-base58-address-at-all!!", RecipientUnknown},
		{"unknown", "", RecipientUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, _, _ := ClassifyRecipient(tc.recipient)
			assert.Equal(t, tc.wantKind, kind)
		})
	}
}

func TestIsValidSolanaAddress(t *testing.T) {
	assert.True(t, isValidSolanaAddress("11111111111111111111111111111111"))
	assert.False(t, isValidSolanaAddress("0x000000000000000000000000000000000000aa"))
	assert.False(t, isValidSolanaAddress("short"))
}
