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

// ERC20ABI is the minimal ERC20 surface used for staking
const ERC20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20 provides methods to interact with ERC20 token contracts
type ERC20 struct {
	client *Client
	abi    abi.ABI
	logger *zap.Logger
}

// NewERC20 creates a new ERC20 instance
func NewERC20(client *Client, logger *zap.Logger) (*ERC20, error) {
	parsedABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	return &ERC20{
		client: client,
		abi:    parsedABI,
		logger: logger,
	}, nil
}

// Approve calls approve(spender, amount) on the token with a fixed gas ceiling
func (t *ERC20) Approve(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error) {
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve call: %w", err)
	}

	txHash, err := t.client.SignAndSendTransaction(ctx, token, data, big.NewInt(0), gasLimit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send approve transaction: %w", err)
	}

	t.logger.Info("Approve transaction sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()))

	return txHash, nil
}

// Allowance returns the amount spender may transfer on behalf of owner
func (t *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out := new(big.Int)
	if err := t.call(ctx, token, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceOf returns the token balance of an account
func (t *ERC20) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out := new(big.Int)
	if err := t.call(ctx, token, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return out, nil
}

// Decimals returns the token's on-chain decimal count
func (t *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var out uint8
	if err := t.call(ctx, token, &out, "decimals"); err != nil {
		return 0, err
	}
	return out, nil
}

func (t *ERC20) call(ctx context.Context, token common.Address, out interface{}, method string, args ...interface{}) error {
	return callContract(ctx, t.client, t.abi, token, out, method, args...)
}

// callContract packs a view call, executes it and unpacks the single return value into out
func callContract(ctx context.Context, client *Client, contractABI abi.ABI, to common.Address, out interface{}, method string, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := client.Call(ctx, to, data)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if err := contractABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return nil
}
