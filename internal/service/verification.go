package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakeflow/internal/metrics"
	"stakeflow/internal/models"
	"stakeflow/internal/stake"
)

// Verification limits
const (
	MaxVerifyAttempts  = 5
	VerifyTimeout      = 10 * time.Second
	VerifyPollInterval = 2 * time.Second
	VerificationBatch  = 50
)

// ChainReader looks up mined transactions.
// *evm.Gateway satisfies it.
type ChainReader interface {
	stake.ReceiptFetcher
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, error)
}

// VerificationStore tracks the verification state of stored records.
// *database.DB satisfies it.
type VerificationStore interface {
	GetPendingVerifications(ctx context.Context, limit int) ([]models.StoredTransaction, error)
	CountPendingVerifications(ctx context.Context) (int, error)
	MarkTransactionVerified(ctx context.Context, id string) error
	MarkTransactionRejected(ctx context.Context, id, reason string) error
	IncrementVerifyAttempts(ctx context.Context, id string) (int, error)
}

// VerificationService re-checks client-reported records against the chain
type VerificationService struct {
	store    VerificationStore
	chain    ChainReader
	poller   *stake.Poller
	router   common.Address
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewVerificationService creates a verifier accepting only stakes sent to router
func NewVerificationService(store VerificationStore, chain ChainReader, router common.Address, logger *zap.Logger) *VerificationService {
	logger = logger.Named("verification")
	return &VerificationService{
		store:    store,
		chain:    chain,
		poller:   stake.NewPoller(chain, logger),
		router:   router,
		timeout:  VerifyTimeout,
		interval: VerifyPollInterval,
		logger:   logger,
	}
}

// Pending returns up to limit records waiting for verification
func (s *VerificationService) Pending(ctx context.Context, limit int) ([]models.StoredTransaction, error) {
	return s.store.GetPendingVerifications(ctx, limit)
}

// PendingCount returns the number of records waiting for verification
func (s *VerificationService) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPendingVerifications(ctx)
}

// Verify checks one record and persists the outcome.
// A record is verified only for a successful call to the router sent by the record's user.
// A record whose receipt cannot be found stays pending until MaxVerifyAttempts.
func (s *VerificationService) Verify(ctx context.Context, tx *models.StoredTransaction) (models.VerificationStatus, error) {
	logger := s.logger.With(zap.String("id", tx.ID), zap.String("tx_hash", tx.TxHash))
	hash := common.HexToHash(tx.TxHash)

	receipt, err := s.poller.WaitForReceipt(ctx, hash, s.timeout, s.interval)
	if err != nil {
		if ctx.Err() != nil {
			return models.VerificationPending, ctx.Err()
		}
		return s.retryLater(ctx, tx, fmt.Errorf("receipt unavailable: %w", err), logger)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return s.reject(ctx, tx, "transaction reverted on chain", logger)
	}

	chainTx, err := s.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return s.retryLater(ctx, tx, fmt.Errorf("transaction unavailable: %w", err), logger)
	}
	if chainTx.To() == nil || *chainTx.To() != s.router {
		return s.reject(ctx, tx, fmt.Sprintf("transaction target %s is not the staking router", targetOf(chainTx)), logger)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(chainTx.ChainId()), chainTx)
	if err != nil {
		return s.reject(ctx, tx, fmt.Sprintf("transaction sender unrecoverable: %v", err), logger)
	}
	if !common.IsHexAddress(tx.UserAddress) || sender != common.HexToAddress(tx.UserAddress) {
		return s.reject(ctx, tx, fmt.Sprintf("transaction sender %s does not match user %s", sender.Hex(), tx.UserAddress), logger)
	}

	if err := s.store.MarkTransactionVerified(ctx, tx.ID); err != nil {
		return models.VerificationPending, fmt.Errorf("failed to mark transaction verified: %w", err)
	}

	metrics.Verifications.WithLabelValues(string(models.VerificationVerified)).Inc()
	logger.Info("Transaction verified",
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.String("reported_fee", tx.Fee))

	return models.VerificationVerified, nil
}

func (s *VerificationService) reject(ctx context.Context, tx *models.StoredTransaction, reason string, logger *zap.Logger) (models.VerificationStatus, error) {
	if err := s.store.MarkTransactionRejected(ctx, tx.ID, reason); err != nil {
		return models.VerificationPending, fmt.Errorf("failed to mark transaction rejected: %w", err)
	}

	metrics.Verifications.WithLabelValues(string(models.VerificationRejected)).Inc()
	logger.Warn("Transaction rejected", zap.String("reason", reason))

	return models.VerificationRejected, nil
}

func (s *VerificationService) retryLater(ctx context.Context, tx *models.StoredTransaction, cause error, logger *zap.Logger) (models.VerificationStatus, error) {
	attempts, err := s.store.IncrementVerifyAttempts(ctx, tx.ID)
	if err != nil {
		return models.VerificationPending, fmt.Errorf("failed to record verify attempt: %w", err)
	}

	if attempts >= MaxVerifyAttempts {
		return s.reject(ctx, tx, fmt.Sprintf("not found on chain after %d attempts: %v", attempts, cause), logger)
	}

	metrics.Verifications.WithLabelValues("retry").Inc()
	logger.Info("Verification deferred",
		zap.Int("attempt", attempts),
		zap.Error(cause))

	if errors.Is(cause, stake.ErrReceiptTimeout) {
		return models.VerificationPending, nil
	}
	return models.VerificationPending, cause
}

func targetOf(tx *types.Transaction) string {
	if tx.To() == nil {
		return "contract creation"
	}
	return tx.To().Hex()
}
