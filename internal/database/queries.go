package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stakeflow/internal/models"
)

// ErrDuplicateTransaction is returned when a record with the same tx hash exists
var ErrDuplicateTransaction = errors.New("transaction already recorded")

const transactionColumns = `
	id, user_address, protocol, token, token_address, amount, tx_hash, status,
	adapter_address, network, fee, verification, verification_error,
	verify_attempts, created_at, verified_at
`

// ==================== Transaction Queries ====================

// CreateTransaction inserts a transaction record, assigning its id and creation time
func (db *DB) CreateTransaction(ctx context.Context, tx *models.StoredTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Verification == "" {
		tx.Verification = models.VerificationPending
	}

	query := `
		INSERT INTO transactions (
			id, user_address, protocol, token, token_address, amount, tx_hash,
			status, adapter_address, network, fee, verification
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := db.QueryRowContext(
		ctx, query,
		tx.ID,
		tx.UserAddress,
		tx.Protocol,
		tx.Token,
		tx.TokenAddress,
		tx.Amount,
		tx.TxHash,
		tx.Status,
		tx.AdapterAddress,
		tx.Network,
		tx.Fee,
		tx.Verification,
	).Scan(&tx.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TxHash)
	}
	return err
}

// GetTransactionByHash retrieves a transaction by its tx hash (case-insensitive)
func (db *DB) GetTransactionByHash(ctx context.Context, txHash string) (*models.StoredTransaction, error) {
	var tx models.StoredTransaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE LOWER(tx_hash) = LOWER($1)`
	err := db.GetContext(ctx, &tx, query, txHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionsByUser retrieves a user's transactions, newest first
func (db *DB) GetTransactionsByUser(ctx context.Context, userAddress string, limit, offset int) ([]models.StoredTransaction, error) {
	txs := []models.StoredTransaction{}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE LOWER(user_address) = LOWER($1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.SelectContext(ctx, &txs, query, userAddress, limit, offset)
	return txs, err
}

// GetPendingVerifications retrieves records waiting for on-chain verification, oldest first
func (db *DB) GetPendingVerifications(ctx context.Context, limit int) ([]models.StoredTransaction, error) {
	var txs []models.StoredTransaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE verification = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	err := db.SelectContext(ctx, &txs, query, models.VerificationPending, limit)
	return txs, err
}

// CountPendingVerifications returns the number of records waiting for verification
func (db *DB) CountPendingVerifications(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transactions WHERE verification = $1`
	err := db.GetContext(ctx, &count, query, models.VerificationPending)
	return count, err
}

// MarkTransactionVerified records that the chain confirmed the transaction
func (db *DB) MarkTransactionVerified(ctx context.Context, id string) error {
	query := `
		UPDATE transactions
		SET verification = $1, verification_error = NULL, verified_at = NOW()
		WHERE id = $2
	`
	_, err := db.ExecContext(ctx, query, models.VerificationVerified, id)
	return err
}

// MarkTransactionRejected records that the chain contradicts the transaction
func (db *DB) MarkTransactionRejected(ctx context.Context, id, reason string) error {
	query := `
		UPDATE transactions
		SET verification = $1, verification_error = $2, verified_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.VerificationRejected, reason, id)
	return err
}

// IncrementVerifyAttempts bumps the attempt counter and returns the new value
func (db *DB) IncrementVerifyAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	query := `
		UPDATE transactions
		SET verify_attempts = verify_attempts + 1
		WHERE id = $1
		RETURNING verify_attempts
	`
	err := db.QueryRowContext(ctx, query, id).Scan(&attempts)
	return attempts, err
}

// ==================== Protocol Option Queries ====================

// GetActiveProtocolOptions retrieves the active options of a network
func (db *DB) GetActiveProtocolOptions(ctx context.Context, network string) ([]models.ProtocolOption, error) {
	options := []models.ProtocolOption{}
	query := `
		SELECT id, protocol, token, apy, tvl, risk, adapter_address, is_active, network
		FROM protocol_options
		WHERE network = $1 AND is_active
		ORDER BY token, apy DESC
	`
	err := db.SelectContext(ctx, &options, query, network)
	return options, err
}

// ReplaceProtocolOptions replaces every option of the given network
func (db *DB) ReplaceProtocolOptions(ctx context.Context, network string, options []models.ProtocolOption) error {
	return db.InTransaction(func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM protocol_options WHERE network = $1`, network); err != nil {
			return fmt.Errorf("failed to clear protocol options: %w", err)
		}

		query := `
			INSERT INTO protocol_options (id, protocol, token, apy, tvl, risk, adapter_address, is_active, network)
			VALUES (:id, :protocol, :token, :apy, :tvl, :risk, :adapter_address, :is_active, :network)
		`
		for _, option := range options {
			if _, err := tx.NamedExecContext(ctx, query, option); err != nil {
				return fmt.Errorf("failed to insert protocol option %s: %w", option.ID, err)
			}
		}
		return nil
	})
}
