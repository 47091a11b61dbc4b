package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stakeflow/internal/config"
)

type fakeBackend struct {
	chainID     *big.Int
	nonce       uint64
	gasPrice    *big.Int
	estimate    uint64
	sent        []*types.Transaction
	sendErr     error
	callResults map[string][]byte // keyed by 4-byte selector hex
	calls       []ethereum.CallMsg
	receipts    map[common.Hash]*types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:     big.NewInt(config.SepoliaChainID),
		gasPrice:    big.NewInt(1_000_000_000),
		callResults: make(map[string][]byte),
		receipts:    make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.calls = append(b.calls, call)
	res, ok := b.callResults[hex.EncodeToString(call.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return res, nil
}

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return b.gasPrice, nil }

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return b.estimate, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) Close() {}

func testKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key))
}

func newTestGateway(t *testing.T, backend *fakeBackend, withSigner bool) *Gateway {
	t.Helper()
	key := ""
	if withSigner {
		key = testKey(t)
	}
	client, err := NewClientWithBackend(backend, key, zap.NewNop())
	require.NoError(t, err)

	network := config.DefaultNetworks()[config.DefaultNetwork]
	gw, err := NewGateway(client, &network, zap.NewNop())
	require.NoError(t, err)
	return gw
}

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func TestGateway_ApproveUnlimited(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, true)

	token := common.HexToAddress(config.SepoliaWETHAddress)
	router := common.HexToAddress(config.SepoliaRouterAddress)

	hash, err := gw.Approve(context.Background(), token, router, math.MaxBig256, 100_000)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, token, *tx.To())
	require.Equal(t, uint64(100_000), tx.Gas())
	require.Equal(t, "095ea7b3", hex.EncodeToString(tx.Data()[:4]))

	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	require.NoError(t, err)
	args, err := parsed.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Equal(t, router, args[0].(common.Address))
	require.Zero(t, math.MaxBig256.Cmp(args[1].(*big.Int)))

	signer := types.NewEIP155Signer(backend.chainID)
	from, err := types.Sender(signer, tx)
	require.NoError(t, err)
	require.Equal(t, gw.Account(), from)
}

func TestGateway_Stake(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, true)

	token := common.HexToAddress(config.SepoliaWBTCAddress)
	adapter := common.HexToAddress("0xC53d3B458D3393dA5989285905337E94fd1f9b60")
	amount := big.NewInt(150_000_000)

	_, err := gw.Stake(context.Background(), token, amount, adapter, 500_000)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, gw.Router().Address(), *tx.To())
	require.Equal(t, uint64(500_000), tx.Gas())
	require.Equal(t, selector("stake(address,uint256,address)"), tx.Data()[:4])
}

func TestGateway_EstimatesGasWhenNoCeiling(t *testing.T) {
	backend := newFakeBackend()
	backend.estimate = 50_000
	gw := newTestGateway(t, backend, true)

	_, err := gw.Approve(context.Background(), common.HexToAddress(config.SepoliaWETHAddress),
		gw.Router().Address(), big.NewInt(1), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(60_000), backend.sent[0].Gas())
}

func TestGateway_ReadOnlyCannotSign(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, false)

	require.Equal(t, common.Address{}, gw.Account())

	_, err := gw.Stake(context.Background(), common.HexToAddress(config.SepoliaWETHAddress),
		big.NewInt(1), common.HexToAddress("0x01"), 500_000)
	require.ErrorIs(t, err, ErrNoSigner)
	require.Empty(t, backend.sent)
}

func TestGateway_SendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("insufficient funds for gas")
	gw := newTestGateway(t, backend, true)

	_, err := gw.Approve(context.Background(), common.HexToAddress(config.SepoliaWETHAddress),
		gw.Router().Address(), big.NewInt(1), 100_000)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient funds for gas")
}

func TestGateway_Reads(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, false)

	word := func(v int64) []byte { return common.LeftPadBytes(big.NewInt(v).Bytes(), 32) }

	backend.callResults["dd62ed3e"] = word(42) // allowance
	backend.callResults["70a08231"] = word(7)  // balanceOf
	backend.callResults[hex.EncodeToString(selector("feeBasisPoints()"))] = word(30)
	backend.callResults[hex.EncodeToString(selector("getProtocolBalance(address,address,address)"))] = word(1000)
	backend.callResults[hex.EncodeToString(selector("supportedAdapters(address)"))] = word(1)

	ctx := context.Background()
	token := common.HexToAddress(config.SepoliaWETHAddress)
	user := common.HexToAddress("0x0C1ee65e59Cd82C1C6FF3bc0d5E612190F45264D")
	adapter := common.HexToAddress("0x8fEB6f4aA42Aec109b5a95A2653297A01Ef1340A")

	allowance, err := gw.Allowance(ctx, token, user, gw.Router().Address())
	require.NoError(t, err)
	require.Equal(t, int64(42), allowance.Int64())

	balance, err := gw.BalanceOf(ctx, token, user)
	require.NoError(t, err)
	require.Equal(t, int64(7), balance.Int64())

	bps, err := gw.FeeBasisPoints(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(30), bps.Int64())

	staked, err := gw.GetProtocolBalance(ctx, adapter, token, user)
	require.NoError(t, err)
	require.Equal(t, int64(1000), staked.Int64())

	supported, err := gw.SupportedAdapter(ctx, adapter)
	require.NoError(t, err)
	require.True(t, supported)
}

func TestGateway_ReadReverts(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, false)

	_, err := gw.FeeBasisPoints(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to call feeBasisPoints")
}

func TestGateway_ReceiptNotFound(t *testing.T) {
	backend := newFakeBackend()
	gw := newTestGateway(t, backend, false)

	_, err := gw.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, ethereum.NotFound)
}
