package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakeflow/internal/config"
)

// Gateway bundles token and router access for one network and one signer
type Gateway struct {
	client *Client
	token  *ERC20
	router *Router
}

// NewGateway creates a gateway for the configured network
func NewGateway(client *Client, network *config.NetworkConfig, logger *zap.Logger) (*Gateway, error) {
	logger = logger.Named("gateway")

	token, err := NewERC20(client, logger)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(network.RouterAddress) {
		return nil, fmt.Errorf("invalid router address %q", network.RouterAddress)
	}

	router, err := NewRouter(client, common.HexToAddress(network.RouterAddress), logger)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		client: client,
		token:  token,
		router: router,
	}, nil
}

// Account returns the signer address, zero when the client is read-only
func (g *Gateway) Account() common.Address {
	return g.client.Address()
}

// Router returns the router binding
func (g *Gateway) Router() *Router {
	return g.router
}

// Approve submits an ERC20 approval
func (g *Gateway) Approve(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error) {
	return g.token.Approve(ctx, token, spender, amount, gasLimit)
}

// Allowance reads an ERC20 allowance
func (g *Gateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return g.token.Allowance(ctx, token, owner, spender)
}

// BalanceOf reads an ERC20 balance
func (g *Gateway) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return g.token.BalanceOf(ctx, token, owner)
}

// Stake submits a router stake
func (g *Gateway) Stake(ctx context.Context, token common.Address, amount *big.Int, adapter common.Address, gasLimit uint64) (common.Hash, error) {
	return g.router.Stake(ctx, token, amount, adapter, gasLimit)
}

// FeeBasisPoints reads the router fee
func (g *Gateway) FeeBasisPoints(ctx context.Context) (*big.Int, error) {
	return g.router.FeeBasisPoints(ctx)
}

// GetProtocolBalance reads a user's staked balance for an adapter
func (g *Gateway) GetProtocolBalance(ctx context.Context, adapter, token, user common.Address) (*big.Int, error) {
	return g.router.GetProtocolBalance(ctx, adapter, token, user)
}

// SupportedAdapter reads the router's adapter whitelist
func (g *Gateway) SupportedAdapter(ctx context.Context, adapter common.Address) (bool, error) {
	return g.router.SupportedAdapter(ctx, adapter)
}

// TransactionReceipt looks up a receipt; ethereum.NotFound while pending
func (g *Gateway) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return g.client.TransactionReceipt(ctx, txHash)
}

// TransactionByHash looks up a transaction
func (g *Gateway) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, error) {
	return g.client.TransactionByHash(ctx, txHash)
}

// Decimals reads a token's decimals from chain
func (g *Gateway) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return g.token.Decimals(ctx, token)
}

// Close releases the underlying RPC connection
func (g *Gateway) Close() {
	g.client.Close()
}
