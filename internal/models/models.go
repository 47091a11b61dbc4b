package models

import (
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// Token is the symbol of a stakeable asset
type Token string

const (
	TokenWETH Token = "WETH"
	TokenWBTC Token = "WBTC"
	TokenSOL  Token = "SOL"
	TokenUSDC Token = "USDC"
)

// TransactionStatus is the status carried by a persisted transaction record
type TransactionStatus string

// TransactionStatusConfirmed is the only status a client ever sends
const TransactionStatusConfirmed TransactionStatus = "confirmed"

// VerificationStatus tracks the server-side re-check of a record against the chain
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// ErrReceiptNotSuccessful is returned when a record is built from a failed receipt
var ErrReceiptNotSuccessful = errors.New("receipt status is not success")

// StakeRequest holds the inputs of a single stake attempt
type StakeRequest struct {
	Protocol       string
	Token          Token
	TokenAddress   string // used when the network table has no entry for Token
	AdapterAddress string
	Amount         string // decimal string in user-facing units
	Network        string
}

// TransactionRecord is the durable artifact sent to the transaction sink
type TransactionRecord struct {
	UserAddress    string            `json:"userAddress" db:"user_address"`
	Protocol       string            `json:"protocol" db:"protocol"`
	Token          Token             `json:"token" db:"token"`
	TokenAddress   string            `json:"tokenAddress" db:"token_address"`
	Amount         string            `json:"amount" db:"amount"`
	TxHash         string            `json:"txHash" db:"tx_hash"`
	Status         TransactionStatus `json:"status" db:"status"`
	AdapterAddress string            `json:"adapterAddress" db:"adapter_address"`
	Network        string            `json:"network" db:"network"`
	Fee            string            `json:"fee" db:"fee"` // gas used
}

// NewConfirmedRecord builds the record for a stake whose receipt reported success.
// It refuses any other receipt, so a record always proves an on-chain success.
func NewConfirmedRecord(userAddress, tokenAddress string, req StakeRequest, receipt *types.Receipt) (TransactionRecord, error) {
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return TransactionRecord{}, ErrReceiptNotSuccessful
	}

	return TransactionRecord{
		UserAddress:    userAddress,
		Protocol:       req.Protocol,
		Token:          req.Token,
		TokenAddress:   tokenAddress,
		Amount:         req.Amount,
		TxHash:         receipt.TxHash.Hex(),
		Status:         TransactionStatusConfirmed,
		AdapterAddress: req.AdapterAddress,
		Network:        req.Network,
		Fee:            strconv.FormatUint(receipt.GasUsed, 10),
	}, nil
}

// StoredTransaction is a transaction record as persisted by the sink service
type StoredTransaction struct {
	ID string `db:"id"`
	TransactionRecord
	Verification      VerificationStatus `db:"verification"`
	VerificationError *string            `db:"verification_error"`
	VerifyAttempts    int                `db:"verify_attempts"`
	CreatedAt         time.Time          `db:"created_at"`
	VerifiedAt        *time.Time         `db:"verified_at"`
}

// ProtocolOption is a stakeable protocol/token pair offered to users
type ProtocolOption struct {
	ID             string  `json:"id" db:"id"`
	Protocol       string  `json:"protocol" db:"protocol"`
	Token          Token   `json:"token" db:"token"`
	APY            float64 `json:"apy" db:"apy"`
	TVL            string  `json:"tvl" db:"tvl"`
	Risk           string  `json:"risk" db:"risk"`
	AdapterAddress string  `json:"adapterAddress" db:"adapter_address"`
	IsActive       bool    `json:"isActive" db:"is_active"`
	Network        string  `json:"network" db:"network"`
}
