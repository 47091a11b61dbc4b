package worker

import (
	"context"

	"go.uber.org/zap"

	"stakeflow/internal/models"
)

// Executor verifies records handed over by the monitor
type Executor struct {
	manager *WorkerManager
	logger  *zap.Logger
}

// NewExecutor creates a new record executor
func NewExecutor(manager *WorkerManager) *Executor {
	return &Executor{
		manager: manager,
		logger:  manager.logger.Named("executor"),
	}
}

// Run starts the executor loop
func (e *Executor) Run(ctx context.Context) {
	e.logger.Info("Executor started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Executor stopping")
			return
		case rec, ok := <-e.manager.monitor.readyRecords:
			if !ok {
				e.logger.Info("Record channel closed, executor stopping")
				return
			}
			e.handleRecord(ctx, rec)
		}
	}
}

// handleRecord verifies a single record. Errors leave it pending for the next poll.
func (e *Executor) handleRecord(ctx context.Context, rec *models.StoredTransaction) {
	defer e.manager.monitor.done(rec.ID)

	verifyCtx, cancel := context.WithTimeout(ctx, VerifyTimeout)
	defer cancel()

	status, err := e.manager.verifier.Verify(verifyCtx, rec)
	if err != nil {
		e.logger.Error("Verification failed",
			zap.String("id", rec.ID),
			zap.String("tx_hash", rec.TxHash),
			zap.Error(err))
		return
	}

	e.logger.Debug("Record handled",
		zap.String("id", rec.ID),
		zap.String("tx_hash", rec.TxHash),
		zap.String("verification", string(status)))
}
