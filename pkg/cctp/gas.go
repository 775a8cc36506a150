package cctp

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// EVMGasChecker reads a wallet's native-gas balance directly from each
// network's JSON-RPC endpoint via go-ethereum's ethclient, wrapped per
// network in the circuit breaker manager so a stalled RPC endpoint trips
// independently of every other network's breaker.
type EVMGasChecker struct {
	provider wallet.Provider
	breakers *circuitbreaker.Manager
	rpcURLs  map[network.Network]string

	mu      sync.Mutex
	clients map[network.Network]*ethclient.Client
}

// NewEVMGasChecker builds a GasChecker over the given per-network RPC URLs.
func NewEVMGasChecker(provider wallet.Provider, breakers *circuitbreaker.Manager, rpcURLs map[network.Network]string) *EVMGasChecker {
	return &EVMGasChecker{
		provider: provider,
		breakers: breakers,
		rpcURLs:  rpcURLs,
		clients:  make(map[network.Network]*ethclient.Client),
	}
}

func (g *EVMGasChecker) clientFor(n network.Network) (*ethclient.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[n]; ok {
		return c, nil
	}
	url, ok := g.rpcURLs[n]
	if !ok || url == "" {
		return nil, fmt.Errorf("cctp: no RPC endpoint configured for %s", n)
	}
	c, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("cctp: dial %s RPC: %w", n, err)
	}
	g.clients[n] = c
	return c, nil
}

// NativeBalance returns the wallet's native-gas balance in wei, as a
// decimal string, reading through the per-network circuit breaker.
func (g *EVMGasChecker) NativeBalance(ctx context.Context, walletID string, n network.Network) (string, error) {
	w, err := g.provider.GetWallet(ctx, walletID)
	if err != nil {
		return "", fmt.Errorf("cctp: resolve wallet address: %w", err)
	}

	client, err := g.clientFor(n)
	if err != nil {
		return "", err
	}

	result, err := g.breakers.Execute(circuitbreaker.EVMNetworkService(string(n)), func() (interface{}, error) {
		return client.BalanceAt(ctx, common.HexToAddress(w.Address), nil)
	})
	if err != nil {
		return "", fmt.Errorf("cctp: balance query on %s: %w", n, err)
	}

	balance, ok := result.(interface{ String() string })
	if !ok {
		return "", fmt.Errorf("cctp: unexpected balance type from %s", n)
	}
	return balance.String(), nil
}
