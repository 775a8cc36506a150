package wallet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cedrospay/agentpay/pkg/network"
)

// MemoryProvider is an in-process Provider used for tests, simulation, and
// local demos. It never touches a real chain: transfers and contract
// executions resolve to COMPLETE transactions immediately, with balances
// tracked in simple maps.
//
// Executor-wallet selection for CCTP agent-side minting round-robins over
// the wallets registered for a given network, spreading load across that
// pool.
type MemoryProvider struct {
	mu sync.RWMutex

	wallets  map[string]Wallet
	balances map[string]map[string]string // walletID -> tokenID -> decimal amount
	txs      map[string]Tx

	byNetwork   map[network.Network][]string // walletID list per network, for executor selection
	roundRobin  map[network.Network]*atomic.Uint64
	seenIdemKey map[string]string // idempotency key -> tx id, for dedup
}

// NewMemoryProvider returns an empty provider; use RegisterWallet to seed it.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		wallets:     make(map[string]Wallet),
		balances:    make(map[string]map[string]string),
		txs:         make(map[string]Tx),
		byNetwork:   make(map[network.Network][]string),
		roundRobin:  make(map[network.Network]*atomic.Uint64),
		seenIdemKey: make(map[string]string),
	}
}

// RegisterWallet adds a wallet and its initial balances to the provider.
func (p *MemoryProvider) RegisterWallet(w Wallet, balances map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.wallets[w.ID] = w
	p.balances[w.ID] = balances
	p.byNetwork[w.Blockchain] = append(p.byNetwork[w.Blockchain], w.ID)
	if _, ok := p.roundRobin[w.Blockchain]; !ok {
		p.roundRobin[w.Blockchain] = &atomic.Uint64{}
	}
}

func (p *MemoryProvider) GetWallet(_ context.Context, walletID string) (Wallet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.wallets[walletID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet: unknown wallet id %q", walletID)
	}
	return w, nil
}

func (p *MemoryProvider) ListWallets(_ context.Context, walletSetID string, blockchain network.Network) ([]Wallet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Wallet
	for _, w := range p.wallets {
		if walletSetID != "" && w.WalletSetID != walletSetID {
			continue
		}
		if blockchain != "" && w.Blockchain != blockchain {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// ExecutorWallet round-robins over LIVE wallets registered for a network,
// used by the CCTP FSM to pick an agent-side minting executor when no
// relayer route is available. Returns an error if no LIVE wallet exists.
func (p *MemoryProvider) ExecutorWallet(blockchain network.Network) (Wallet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.byNetwork[blockchain]
	var live []string
	for _, id := range ids {
		if p.wallets[id].State == StateLive {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return Wallet{}, fmt.Errorf("wallet: no LIVE wallet registered on %s", blockchain)
	}

	counter := p.roundRobin[blockchain]
	idx := counter.Add(1) % uint64(len(live))
	return p.wallets[live[idx]], nil
}

func (p *MemoryProvider) GetWalletBalances(_ context.Context, walletID string) ([]Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	balances, ok := p.balances[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet: unknown wallet id %q", walletID)
	}

	out := make([]Balance, 0, len(balances))
	for tokenID, amount := range balances {
		out = append(out, Balance{Token: Token{ID: tokenID, Symbol: tokenID, Decimals: 6}, Amount: amount})
	}
	return out, nil
}

func (p *MemoryProvider) CreateTransfer(_ context.Context, walletID, tokenID, destinationAddress, amount string, fee FeeLevel, idempotencyKey string) (Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idempotencyKey != "" {
		if txID, ok := p.seenIdemKey[idempotencyKey]; ok {
			return p.txs[txID], nil
		}
	}

	if _, ok := p.wallets[walletID]; !ok {
		return Tx{}, fmt.Errorf("wallet: unknown wallet id %q", walletID)
	}

	tx := Tx{ID: uuid.New().String(), State: TxStateComplete, TxHash: "0xmock" + uuid.New().String()[:16]}
	p.txs[tx.ID] = tx
	if idempotencyKey != "" {
		p.seenIdemKey[idempotencyKey] = tx.ID
	}
	_ = destinationAddress
	_ = tokenID
	_ = fee
	return tx, nil
}

func (p *MemoryProvider) CreateContractExecution(_ context.Context, walletID, contractAddress, signature string, params []ContractParam, fee FeeLevel, idempotencyKey string) (Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idempotencyKey != "" {
		if txID, ok := p.seenIdemKey[idempotencyKey]; ok {
			return p.txs[txID], nil
		}
	}

	if _, ok := p.wallets[walletID]; !ok {
		return Tx{}, fmt.Errorf("wallet: unknown wallet id %q", walletID)
	}

	tx := Tx{ID: uuid.New().String(), State: TxStateComplete, TxHash: "0xmock" + uuid.New().String()[:16]}
	p.txs[tx.ID] = tx
	if idempotencyKey != "" {
		p.seenIdemKey[idempotencyKey] = tx.ID
	}
	_ = contractAddress
	_ = signature
	_ = params
	_ = fee
	return tx, nil
}

func (p *MemoryProvider) GetTransaction(_ context.Context, txID string) (Tx, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx, ok := p.txs[txID]
	if !ok {
		return Tx{}, fmt.Errorf("wallet: unknown transaction id %q", txID)
	}
	return tx, nil
}

func (p *MemoryProvider) ListTransactions(_ context.Context, walletID string, blockchain network.Network) ([]Tx, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Tx, 0, len(p.txs))
	for _, tx := range p.txs {
		out = append(out, tx)
	}
	_ = walletID
	_ = blockchain
	return out, nil
}

// SetTxState lets tests move a transaction through PENDING/FAILED states
// before it reaches terminal, to exercise polling code paths.
func (p *MemoryProvider) SetTxState(txID string, state TxState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tx, ok := p.txs[txID]; ok {
		tx.State = state
		p.txs[txID] = tx
	}
}
