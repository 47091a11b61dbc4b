package stake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrReceiptTimeout is returned when no receipt was observed within the timeout
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// ReceiptFetcher looks up transaction receipts.
// It must return ethereum.NotFound while the transaction is not mined.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Poller waits for a transaction receipt to appear. It does not interpret the receipt.
type Poller struct {
	fetcher ReceiptFetcher
	logger  *zap.Logger
}

// NewPoller creates a new receipt poller
func NewPoller(fetcher ReceiptFetcher, logger *zap.Logger) *Poller {
	return &Poller{
		fetcher: fetcher,
		logger:  logger,
	}
}

// WaitForReceipt polls every interval until a receipt is found or timeout elapses.
// A lookup error other than ethereum.NotFound ends the wait with that error.
func (p *Poller) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := p.fetcher.TransactionReceipt(waitCtx, txHash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			return nil, fmt.Errorf("failed to look up receipt for %s: %w", txHash.Hex(), err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, txHash.Hex(), timeout)
		case <-ticker.C:
			p.logger.Debug("Receipt not found yet", zap.String("tx_hash", txHash.Hex()))
		}
	}
}
