package api

import (
	"time"

	"stakeflow/internal/models"
)

// ==================== Transactions ====================

// TransactionResponse is a stored transaction record as returned by the API.
// The record fields are flattened next to the sink-assigned id.
type TransactionResponse struct {
	ID string `json:"_id"`
	models.TransactionRecord
	Verification      models.VerificationStatus `json:"verification"`
	VerificationError *string                   `json:"verificationError,omitempty"`
	CreatedAt         time.Time                 `json:"createdAt"`
	VerifiedAt        *time.Time                `json:"verifiedAt,omitempty"`
}

// UserTransactionsResponse represents a page of a user's transactions
type UserTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func newTransactionResponse(tx *models.StoredTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                tx.ID,
		TransactionRecord: tx.TransactionRecord,
		Verification:      tx.Verification,
		VerificationError: tx.VerificationError,
		CreatedAt:         tx.CreatedAt,
		VerifiedAt:        tx.VerifiedAt,
	}
}

// ==================== Protocol Options ====================

// ProtocolOptionsResponse lists the active protocol options
type ProtocolOptionsResponse struct {
	Network string                  `json:"network"`
	Options []models.ProtocolOption `json:"options"`
}

// ==================== Fee Preview ====================

// FeePreviewResponse represents the router fee for a prospective stake
type FeePreviewResponse struct {
	Token          models.Token `json:"token"`
	Amount         string       `json:"amount"`
	FeeBasisPoints int64        `json:"feeBasisPoints"`
	Fee            string       `json:"fee"`
	Net            string       `json:"net"`
	FeeBaseUnits   string       `json:"feeBaseUnits"`
	NetBaseUnits   string       `json:"netBaseUnits"`
}

// ==================== Error Response ====================

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==================== Health Check ====================

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Network string `json:"network,omitempty"`
}
