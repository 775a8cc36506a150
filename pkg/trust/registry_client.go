package trust

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const identityRegistryABI = `[
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"name":"getAgentWallet","type":"function","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthIdentityRegistryClient reads an ERC-8004 Identity Registry contract
// over JSON-RPC eth_call via go-ethereum's ethclient, ABI-encoding calls
// with accounts/abi.
type EthIdentityRegistryClient struct {
	client          *ethclient.Client
	contractAddress common.Address
	parsedABI       abi.ABI
}

// NewEthIdentityRegistryClient dials rpcURL and binds to contractAddress.
func NewEthIdentityRegistryClient(rpcURL, contractAddress string) (*EthIdentityRegistryClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trust: dial identity registry RPC: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(identityRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("trust: parse identity registry ABI: %w", err)
	}
	return &EthIdentityRegistryClient{
		client:          client,
		contractAddress: common.HexToAddress(contractAddress),
		parsedABI:       parsed,
	}, nil
}

// callSingle packs method(args...), submits it as an eth_call, and unpacks
// the single return value.
func (c *EthIdentityRegistryClient) callSingle(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	data, err := c.parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("trust: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.contractAddress, Data: data}
	output, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("trust: eth_call %s: %w", method, err)
	}

	values, err := c.parsedABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("trust: unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("trust: unexpected return count from %s: %d", method, len(values))
	}
	return values[0], nil
}

func agentIDToBigInt(agentID string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(agentID, 10)
	if !ok {
		return nil, fmt.Errorf("trust: invalid agent id %q", agentID)
	}
	return n, nil
}

func (c *EthIdentityRegistryClient) OwnerOf(ctx context.Context, agentID string) (string, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return "", err
	}
	result, err := c.callSingle(ctx, "ownerOf", id)
	if err != nil {
		return "", err
	}
	owner, ok := result.(common.Address)
	if !ok {
		return "", fmt.Errorf("trust: ownerOf: unexpected return type")
	}
	return owner.Hex(), nil
}

func (c *EthIdentityRegistryClient) TokenURI(ctx context.Context, agentID string) (string, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return "", err
	}
	result, err := c.callSingle(ctx, "tokenURI", id)
	if err != nil {
		return "", err
	}
	uri, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("trust: tokenURI: unexpected return type")
	}
	return uri, nil
}

func (c *EthIdentityRegistryClient) GetAgentWallet(ctx context.Context, agentID string) (string, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return "", err
	}
	result, err := c.callSingle(ctx, "getAgentWallet", id)
	if err != nil {
		return "", err
	}
	addr, ok := result.(common.Address)
	if !ok {
		return "", fmt.Errorf("trust: getAgentWallet: unexpected return type")
	}
	return addr.Hex(), nil
}

func (c *EthIdentityRegistryClient) BalanceOf(ctx context.Context, owner string) (int64, error) {
	result, err := c.callSingle(ctx, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("trust: balanceOf: unexpected return type")
	}
	return balance.Int64(), nil
}

func (c *EthIdentityRegistryClient) TokenOfOwnerByIndex(ctx context.Context, owner string, index int64) (string, error) {
	result, err := c.callSingle(ctx, "tokenOfOwnerByIndex", common.HexToAddress(owner), big.NewInt(index))
	if err != nil {
		return "", err
	}
	tokenID, ok := result.(*big.Int)
	if !ok {
		return "", fmt.Errorf("trust: tokenOfOwnerByIndex: unexpected return type")
	}
	return tokenID.String(), nil
}
