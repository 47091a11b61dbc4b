package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RouterABI is the ABI surface of the StakingRouter contract
const RouterABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "adapter", "type": "address"}
		],
		"name": "stake",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "feeBasisPoints",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "adapter", "type": "address"},
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "address", "name": "user", "type": "address"}
		],
		"name": "getProtocolBalance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "adapter", "type": "address"}],
		"name": "supportedAdapters",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Router provides methods to interact with the StakingRouter contract
type Router struct {
	client  *Client
	address common.Address
	abi     abi.ABI
	logger  *zap.Logger
}

// NewRouter creates a new Router instance bound to address
func NewRouter(client *Client, address common.Address, logger *zap.Logger) (*Router, error) {
	parsedABI, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &Router{
		client:  client,
		address: address,
		abi:     parsedABI,
		logger:  logger,
	}, nil
}

// Address returns the router contract address
func (r *Router) Address() common.Address {
	return r.address
}

// Stake calls stake(token, amount, adapter) with a fixed gas ceiling
func (r *Router) Stake(ctx context.Context, token common.Address, amount *big.Int, adapter common.Address, gasLimit uint64) (common.Hash, error) {
	r.logger.Info("Calling stake on router",
		zap.String("router", r.address.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
		zap.String("adapter", adapter.Hex()))

	data, err := r.abi.Pack("stake", token, amount, adapter)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack stake call: %w", err)
	}

	txHash, err := r.client.SignAndSendTransaction(ctx, r.address, data, big.NewInt(0), gasLimit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send stake transaction: %w", err)
	}

	r.logger.Info("Stake transaction sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("router", r.address.Hex()))

	return txHash, nil
}

// FeeBasisPoints returns the router's protocol fee in basis points
func (r *Router) FeeBasisPoints(ctx context.Context) (*big.Int, error) {
	out := new(big.Int)
	if err := callContract(ctx, r.client, r.abi, r.address, &out, "feeBasisPoints"); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProtocolBalance returns the user's balance of token staked through adapter
func (r *Router) GetProtocolBalance(ctx context.Context, adapter, token, user common.Address) (*big.Int, error) {
	out := new(big.Int)
	if err := callContract(ctx, r.client, r.abi, r.address, &out, "getProtocolBalance", adapter, token, user); err != nil {
		return nil, err
	}
	return out, nil
}

// SupportedAdapter reports whether the router whitelists adapter
func (r *Router) SupportedAdapter(ctx context.Context, adapter common.Address) (bool, error) {
	var supported bool
	if err := callContract(ctx, r.client, r.abi, r.address, &supported, "supportedAdapters", adapter); err != nil {
		return false, err
	}
	return supported, nil
}
