package stake

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a stake attempt failed
type ErrorCode string

const (
	CodeConfiguration      ErrorCode = "configuration"
	CodeBusy               ErrorCode = "busy"
	CodeUnrecognizedAsset  ErrorCode = "unrecognized_asset"
	CodeInvalidAmount      ErrorCode = "invalid_amount"
	CodeInvalidAdapter     ErrorCode = "invalid_adapter"
	CodeSubmission         ErrorCode = "submission"
	CodeApprovalReverted   ErrorCode = "approval_reverted"
	CodeConfirmationFailed ErrorCode = "confirmation_failed"
	CodeReverted           ErrorCode = "reverted"
)

var (
	// ErrNoSigner is returned when no signer address is available
	ErrNoSigner = errors.New("wallet not connected")
	// ErrNoClient is returned when the chain client is not initialized
	ErrNoClient = errors.New("chain client not initialized")
	// ErrNoNetwork is returned when no network table was injected
	ErrNoNetwork = errors.New("network configuration missing")
	// ErrNetworkMismatch is returned when a request names another network than the configured one
	ErrNetworkMismatch = errors.New("network mismatch")
	// ErrAttemptInFlight is returned when Stake is called while another attempt runs
	ErrAttemptInFlight = errors.New("stake attempt already in progress")
	// ErrConfirmationExhausted wraps the final confirmation failure
	ErrConfirmationExhausted = errors.New("failed to get transaction receipt after multiple attempts")
)

// Error is the terminal error of a stake attempt
type Error struct {
	Code   ErrorCode
	TxHash string // set once the stake transaction was submitted
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, txHash string, err error) *Error {
	return &Error{Code: code, TxHash: txHash, Err: err}
}

// CodeOf returns the code of a stake error, or "" for other errors
func CodeOf(err error) ErrorCode {
	var stakeErr *Error
	if errors.As(err, &stakeErr) {
		return stakeErr.Code
	}
	return ""
}

// revertedError builds the message for a stake mined with a failure status
func revertedError(txHash, txURL string) error {
	return fmt.Errorf("transaction %s failed on chain with status reverted, check %s for details", txHash, txURL)
}
