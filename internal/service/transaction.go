package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeflow/internal/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/models"
	"stakeflow/internal/stake"
)

// Pagination bounds for user transaction listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	// ErrInvalidRecord is returned when a transaction record fails validation
	ErrInvalidRecord = errors.New("invalid transaction record")
	// ErrNotFound is returned when a requested transaction does not exist
	ErrNotFound = errors.New("transaction not found")

	txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// TransactionStore persists transaction records and protocol options.
// *database.DB satisfies it.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.StoredTransaction) error
	GetTransactionByHash(ctx context.Context, txHash string) (*models.StoredTransaction, error)
	GetTransactionsByUser(ctx context.Context, userAddress string, limit, offset int) ([]models.StoredTransaction, error)
	GetActiveProtocolOptions(ctx context.Context, network string) ([]models.ProtocolOption, error)
}

// TransactionService validates and stores confirmed stake records
type TransactionService struct {
	store  TransactionStore
	cfg    *config.Config
	logger *zap.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(store TransactionStore, cfg *config.Config, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("transactions"),
	}
}

// Record validates a record pushed by a client and stores it pending verification
func (s *TransactionService) Record(ctx context.Context, record models.TransactionRecord) (*models.StoredTransaction, error) {
	if err := s.ValidateRecord(record); err != nil {
		return nil, err
	}

	tx := &models.StoredTransaction{
		TransactionRecord: record,
		Verification:      models.VerificationPending,
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}

	metrics.RecordsSaved.WithLabelValues(record.Network, string(record.Token)).Inc()
	s.logger.Info("Transaction recorded",
		zap.String("id", tx.ID),
		zap.String("tx_hash", record.TxHash),
		zap.String("user_address", record.UserAddress),
		zap.String("protocol", record.Protocol),
		zap.String("token", string(record.Token)),
		zap.String("amount", record.Amount))

	return tx, nil
}

// ValidateRecord checks the shape of a record before it is stored
func (s *TransactionService) ValidateRecord(r models.TransactionRecord) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
	}

	for field, value := range map[string]string{
		"userAddress":    r.UserAddress,
		"tokenAddress":   r.TokenAddress,
		"adapterAddress": r.AdapterAddress,
	} {
		if !common.IsHexAddress(value) {
			return invalid("%s must be a hex address, got %q", field, value)
		}
	}

	if !txHashPattern.MatchString(r.TxHash) {
		return invalid("txHash must be a 32-byte hex hash, got %q", r.TxHash)
	}
	if r.Status != models.TransactionStatusConfirmed {
		return invalid("status must be %q, got %q", models.TransactionStatusConfirmed, r.Status)
	}
	if strings.TrimSpace(r.Protocol) == "" {
		return invalid("protocol is required")
	}
	if r.Token == "" {
		return invalid("token is required")
	}

	amount, err := stake.ParseDecimal(r.Amount)
	if err != nil || !amount.IsPositive() {
		return invalid("amount must be a positive decimal, got %q", r.Amount)
	}
	fee, err := stake.ParseDecimal(r.Fee)
	if err != nil || !fee.IsInteger() || fee.IsNegative() || strings.Contains(r.Fee, ".") {
		return invalid("fee must be an integer gas amount, got %q", r.Fee)
	}
	if r.Network != s.cfg.Network.Name {
		return invalid("network %q is not served here", r.Network)
	}

	return nil
}

// GetByHash returns the stored record for a transaction hash
func (s *TransactionService) GetByHash(ctx context.Context, txHash string) (*models.StoredTransaction, error) {
	if !txHashPattern.MatchString(txHash) {
		return nil, fmt.Errorf("%w: malformed tx hash %q", ErrInvalidRecord, txHash)
	}

	tx, err := s.store.GetTransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil {
		return nil, ErrNotFound
	}
	return tx, nil
}

// ListByUser returns a page of a user's records, newest first
func (s *TransactionService) ListByUser(ctx context.Context, userAddress string, limit, offset int) ([]models.StoredTransaction, error) {
	if !common.IsHexAddress(userAddress) {
		return nil, fmt.Errorf("%w: malformed address %q", ErrInvalidRecord, userAddress)
	}

	limit, offset = NormalizePage(limit, offset)

	txs, err := s.store.GetTransactionsByUser(ctx, userAddress, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user transactions: %w", err)
	}
	return txs, nil
}

// NormalizePage applies the default and maximum page size and clamps the offset
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ProtocolOptions returns the active options of the served network
func (s *TransactionService) ProtocolOptions(ctx context.Context) ([]models.ProtocolOption, error) {
	options, err := s.store.GetActiveProtocolOptions(ctx, s.cfg.Network.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get protocol options: %w", err)
	}
	return options, nil
}
