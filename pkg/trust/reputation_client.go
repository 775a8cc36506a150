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

// reputationRegistryABI declares the paginated read path every deployed
// Reputation Registry supports, plus the optional bulk method a registry
// may or may not expose.
const reputationRegistryABI = `[
	{"name":"getClients","type":"function","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"","type":"address[]"}]},
	{"name":"getLastIndex","type":"function","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"},{"name":"client","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"readFeedback","type":"function","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"},{"name":"client","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"value","type":"int128"},{"name":"valueDecimals","type":"uint8"},{"name":"tag1","type":"string"},{"name":"tag2","type":"string"},{"name":"isRevoked","type":"bool"},{"name":"submitterOwner","type":"address"}]},
	{"name":"readAllFeedback","type":"function","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"clients","type":"address[]"},{"name":"indices","type":"uint256[]"},{"name":"values","type":"int128[]"},{"name":"valueDecimals","type":"uint8[]"},{"name":"tag1s","type":"string[]"},{"name":"tag2s","type":"string[]"},{"name":"isRevoked","type":"bool[]"},{"name":"submitterOwners","type":"address[]"}]}
]`

// EthReputationRegistryClient reads an on-chain Reputation Registry over
// eth_call, the same way EthIdentityRegistryClient reads the Identity
// Registry. readAllFeedback is attempted first (Bulk); registries that
// don't implement it fall back transparently to the paginated path.
type EthReputationRegistryClient struct {
	client          *ethclient.Client
	contractAddress common.Address
	parsedABI       abi.ABI
	hasBulk         bool
}

// NewEthReputationRegistryClient dials rpcURL and binds to contractAddress.
// hasBulk declares whether the deployed registry supports readAllFeedback;
// set false for registries that only implement the paginated path.
func NewEthReputationRegistryClient(rpcURL, contractAddress string, hasBulk bool) (*EthReputationRegistryClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trust: dial reputation registry RPC: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(reputationRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("trust: parse reputation registry ABI: %w", err)
	}
	return &EthReputationRegistryClient{
		client:          client,
		contractAddress: common.HexToAddress(contractAddress),
		parsedABI:       parsed,
		hasBulk:         hasBulk,
	}, nil
}

func (c *EthReputationRegistryClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
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
	return values, nil
}

// Bulk implements ReputationRegistryClient.
func (c *EthReputationRegistryClient) Bulk(ctx context.Context, agentID string) ([]FeedbackSignal, bool, error) {
	if !c.hasBulk {
		return nil, false, nil
	}
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return nil, false, err
	}
	values, err := c.call(ctx, "readAllFeedback", id)
	if err != nil {
		return nil, false, err
	}
	if len(values) != 8 {
		return nil, false, fmt.Errorf("trust: readAllFeedback: unexpected return shape")
	}

	clients, ok := values[0].([]common.Address)
	if !ok {
		return nil, false, fmt.Errorf("trust: readAllFeedback: bad clients field")
	}
	indices, _ := values[1].([]*big.Int)
	vals, _ := values[2].([]*big.Int)
	decimals, _ := values[3].([]uint8)
	tag1s, _ := values[4].([]string)
	tag2s, _ := values[5].([]string)
	revoked, _ := values[6].([]bool)
	owners, _ := values[7].([]common.Address)

	signals := make([]FeedbackSignal, 0, len(clients))
	for i := range clients {
		signals = append(signals, FeedbackSignal{
			AgentID:        agentID,
			ClientAddress:  clients[i].Hex(),
			FeedbackIndex:  safeIndex(indices, i),
			Value:          safeValue(vals, i),
			ValueDecimals:  safeDecimals(decimals, i),
			Tag1:           safeString(tag1s, i),
			Tag2:           safeString(tag2s, i),
			IsRevoked:      safeBool(revoked, i),
			SubmitterOwner: safeAddress(owners, i),
		})
	}
	return signals, true, nil
}

// Clients implements ReputationRegistryClient.
func (c *EthReputationRegistryClient) Clients(ctx context.Context, agentID string) ([]string, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, "getClients", id)
	if err != nil {
		return nil, err
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("trust: getClients: unexpected return type")
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out, nil
}

// LastIndex implements ReputationRegistryClient.
func (c *EthReputationRegistryClient) LastIndex(ctx context.Context, agentID, client string) (int64, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return 0, err
	}
	values, err := c.call(ctx, "getLastIndex", id, common.HexToAddress(client))
	if err != nil {
		return 0, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("trust: getLastIndex: unexpected return type")
	}
	return n.Int64(), nil
}

// ReadFeedback implements ReputationRegistryClient.
func (c *EthReputationRegistryClient) ReadFeedback(ctx context.Context, agentID, client string, index int64) (FeedbackSignal, error) {
	id, err := agentIDToBigInt(agentID)
	if err != nil {
		return FeedbackSignal{}, err
	}
	values, err := c.call(ctx, "readFeedback", id, common.HexToAddress(client), big.NewInt(index))
	if err != nil {
		return FeedbackSignal{}, err
	}
	if len(values) != 6 {
		return FeedbackSignal{}, fmt.Errorf("trust: readFeedback: unexpected return shape")
	}
	value, _ := values[0].(*big.Int)
	decimals, _ := values[1].(uint8)
	tag1, _ := values[2].(string)
	tag2, _ := values[3].(string)
	revoked, _ := values[4].(bool)
	owner, _ := values[5].(common.Address)

	v := int64(0)
	if value != nil {
		v = value.Int64()
	}

	return FeedbackSignal{
		AgentID:        agentID,
		ClientAddress:  client,
		FeedbackIndex:  index,
		Value:          v,
		ValueDecimals:  decimals,
		Tag1:           tag1,
		Tag2:           tag2,
		IsRevoked:      revoked,
		SubmitterOwner: owner.Hex(),
	}, nil
}

func safeIndex(xs []*big.Int, i int) int64 {
	if i >= len(xs) || xs[i] == nil {
		return 0
	}
	return xs[i].Int64()
}

func safeValue(xs []*big.Int, i int) int64 {
	if i >= len(xs) || xs[i] == nil {
		return 0
	}
	return xs[i].Int64()
}

func safeDecimals(xs []uint8, i int) uint8 {
	if i >= len(xs) {
		return 0
	}
	return xs[i]
}

func safeString(xs []string, i int) string {
	if i >= len(xs) {
		return ""
	}
	return xs[i]
}

func safeBool(xs []bool, i int) bool {
	if i >= len(xs) {
		return false
	}
	return xs[i]
}

func safeAddress(xs []common.Address, i int) string {
	if i >= len(xs) {
		return ""
	}
	return xs[i].Hex()
}
