package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"stakeflow/internal/config"
	"stakeflow/internal/models"
)

var testRouter = common.HexToAddress(config.SepoliaRouterAddress)

// signedStake returns a stake call to the router signed by a fresh key, and the key's address
func signedStake(t *testing.T, to common.Address) (*types.Transaction, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	signer := types.LatestSignerForChainID(big.NewInt(config.SepoliaChainID))
	tx, err := types.SignTx(types.NewTransaction(0, to, big.NewInt(0), 500000, big.NewInt(1), nil), signer, key)
	if err != nil {
		t.Fatalf("failed to sign transaction: %v", err)
	}

	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

type fakeChain struct {
	receipts   map[common.Hash]*types.Receipt
	txs        map[common.Hash]*types.Transaction
	receiptErr error
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, error) {
	if tx, ok := c.txs[hash]; ok {
		return tx, nil
	}
	return nil, ethereum.NotFound
}

type fakeVerificationStore struct {
	verified map[string]bool
	rejected map[string]string
	attempts map[string]int
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{
		verified: make(map[string]bool),
		rejected: make(map[string]string),
		attempts: make(map[string]int),
	}
}

func (s *fakeVerificationStore) GetPendingVerifications(context.Context, int) ([]models.StoredTransaction, error) {
	return nil, nil
}

func (s *fakeVerificationStore) CountPendingVerifications(context.Context) (int, error) {
	return 0, nil
}

func (s *fakeVerificationStore) MarkTransactionVerified(_ context.Context, id string) error {
	s.verified[id] = true
	return nil
}

func (s *fakeVerificationStore) MarkTransactionRejected(_ context.Context, id, reason string) error {
	s.rejected[id] = reason
	return nil
}

func (s *fakeVerificationStore) IncrementVerifyAttempts(_ context.Context, id string) (int, error) {
	s.attempts[id]++
	return s.attempts[id], nil
}

func storedTx(id string, hash common.Hash) *models.StoredTransaction {
	r := validRecord()
	r.TxHash = hash.Hex()
	return &models.StoredTransaction{ID: id, TransactionRecord: r, Verification: models.VerificationPending}
}

func storedTxFrom(id string, hash common.Hash, user common.Address) *models.StoredTransaction {
	tx := storedTx(id, hash)
	tx.UserAddress = user.Hex()
	return tx
}

func newTestVerifier(store VerificationStore, chain ChainReader) *VerificationService {
	v := NewVerificationService(store, chain, testRouter, zap.NewNop())
	v.timeout = 10 * time.Millisecond
	v.interval = 2 * time.Millisecond
	return v
}

func TestVerificationService_Verify(t *testing.T) {
	other := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	stakeTx, staker := signedStake(t, testRouter)
	otherTargetTx, otherTargetSender := signedStake(t, other)

	tests := []struct {
		name     string
		status   uint64
		tx       *types.Transaction
		user     common.Address
		expected models.VerificationStatus
		reason   string
	}{
		{
			name:     "successful stake to router",
			status:   types.ReceiptStatusSuccessful,
			tx:       stakeTx,
			user:     staker,
			expected: models.VerificationVerified,
		},
		{
			name:     "reverted on chain",
			status:   types.ReceiptStatusFailed,
			tx:       stakeTx,
			user:     staker,
			expected: models.VerificationRejected,
			reason:   "reverted",
		},
		{
			name:     "sent to another contract",
			status:   types.ReceiptStatusSuccessful,
			tx:       otherTargetTx,
			user:     otherTargetSender,
			expected: models.VerificationRejected,
			reason:   "not the staking router",
		},
		{
			name:     "contract creation",
			status:   types.ReceiptStatusSuccessful,
			tx:       types.NewContractCreation(0, big.NewInt(0), 500000, big.NewInt(1), nil),
			user:     staker,
			expected: models.VerificationRejected,
			reason:   "contract creation",
		},
		{
			name:     "stake sent by another user",
			status:   types.ReceiptStatusSuccessful,
			tx:       stakeTx,
			user:     common.HexToAddress("0x0C1ee65e59Cd82C1C6FF3bc0d5E612190F45264D"),
			expected: models.VerificationRejected,
			reason:   "does not match user",
		},
		{
			name:     "unsigned transaction",
			status:   types.ReceiptStatusSuccessful,
			tx:       types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(config.SepoliaChainID), To: &testRouter, Gas: 500000, GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1), Value: big.NewInt(0)}),
			user:     staker,
			expected: models.VerificationRejected,
			reason:   "sender unrecoverable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := common.HexToHash("0xabc1")
			chain := &fakeChain{
				receipts: map[common.Hash]*types.Receipt{hash: {Status: tt.status, GasUsed: 180000}},
				txs:      map[common.Hash]*types.Transaction{hash: tt.tx},
			}
			store := newFakeVerificationStore()
			v := newTestVerifier(store, chain)

			status, err := v.Verify(context.Background(), storedTxFrom("id-1", hash, tt.user))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, status)
			}

			switch tt.expected {
			case models.VerificationVerified:
				if !store.verified["id-1"] {
					t.Error("expected record to be marked verified")
				}
			case models.VerificationRejected:
				if store.verified["id-1"] {
					t.Error("rejected record must not be marked verified")
				}
				if !strings.Contains(store.rejected["id-1"], tt.reason) {
					t.Errorf("expected rejection reason containing %q, got %q", tt.reason, store.rejected["id-1"])
				}
			}
		})
	}
}

func TestVerificationService_SenderMatchIgnoresCase(t *testing.T) {
	hash := common.HexToHash("0xabc4")
	stakeTx, staker := signedStake(t, testRouter)
	chain := &fakeChain{
		receipts: map[common.Hash]*types.Receipt{hash: {Status: types.ReceiptStatusSuccessful}},
		txs:      map[common.Hash]*types.Transaction{hash: stakeTx},
	}
	store := newFakeVerificationStore()
	v := newTestVerifier(store, chain)

	tx := storedTx("id-4", hash)
	tx.UserAddress = strings.ToLower(staker.Hex())

	status, err := v.Verify(context.Background(), tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.VerificationVerified {
		t.Errorf("expected verified, got %s (reason %q)", status, store.rejected["id-4"])
	}
}

func TestVerificationService_NotFoundUntilMaxAttempts(t *testing.T) {
	store := newFakeVerificationStore()
	v := newTestVerifier(store, &fakeChain{})
	tx := storedTx("id-2", common.HexToHash("0xabc2"))

	for i := 1; i < MaxVerifyAttempts; i++ {
		status, err := v.Verify(context.Background(), tx)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if status != models.VerificationPending {
			t.Fatalf("attempt %d: expected pending, got %s", i, status)
		}
	}

	status, err := v.Verify(context.Background(), tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != models.VerificationRejected {
		t.Errorf("expected rejected after %d attempts, got %s", MaxVerifyAttempts, status)
	}
	if store.attempts["id-2"] != MaxVerifyAttempts {
		t.Errorf("expected %d attempts, got %d", MaxVerifyAttempts, store.attempts["id-2"])
	}
	if !strings.Contains(store.rejected["id-2"], "not found on chain") {
		t.Errorf("unexpected rejection reason %q", store.rejected["id-2"])
	}
}

func TestVerificationService_LookupError(t *testing.T) {
	rpcErr := errors.New("503 service unavailable")
	store := newFakeVerificationStore()
	v := newTestVerifier(store, &fakeChain{receiptErr: rpcErr})

	status, err := v.Verify(context.Background(), storedTx("id-3", common.HexToHash("0xabc3")))
	if !errors.Is(err, rpcErr) {
		t.Errorf("expected RPC error, got %v", err)
	}
	if status != models.VerificationPending {
		t.Errorf("expected pending, got %s", status)
	}
	if store.attempts["id-3"] != 1 {
		t.Errorf("expected one attempt recorded, got %d", store.attempts["id-3"])
	}
}
