package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stakeflow/internal/models"
)

// Constants for worker configuration
const (
	DefaultPollInterval = 30 * time.Second
	MonitorTimeout      = 30 * time.Second
	VerifyTimeout       = 30 * time.Second
	QueueSize           = 100
)

// Verifier checks stored records against the chain.
// *service.VerificationService satisfies it.
type Verifier interface {
	Pending(ctx context.Context, limit int) ([]models.StoredTransaction, error)
	PendingCount(ctx context.Context) (int, error)
	Verify(ctx context.Context, tx *models.StoredTransaction) (models.VerificationStatus, error)
}

// WorkerManager runs the background verification of transaction records
type WorkerManager struct {
	verifier     Verifier
	pollInterval time.Duration
	batchSize    int
	logger       *zap.Logger

	// Worker components
	monitor  *Monitor
	executor *Executor

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(verifier Verifier, pollInterval time.Duration, batchSize int, logger *zap.Logger) *WorkerManager {
	logger = logger.Named("worker")

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if batchSize <= 0 || batchSize > QueueSize {
		batchSize = QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	wm := &WorkerManager{
		verifier:     verifier,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}

	wm.monitor = NewMonitor(wm)
	wm.executor = NewExecutor(wm)

	return wm
}

// Start starts all worker goroutines
func (wm *WorkerManager) Start() {
	wm.logger.Info("Starting worker manager",
		zap.Duration("poll_interval", wm.pollInterval),
		zap.Int("batch_size", wm.batchSize))

	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.monitor.Run(wm.ctx)
	}()

	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.executor.Run(wm.ctx)
	}()

	wm.logger.Info("Worker manager started")
}

// Shutdown gracefully stops all workers
func (wm *WorkerManager) Shutdown(timeout time.Duration) error {
	wm.logger.Info("Shutting down worker manager")

	wm.cancel()

	done := make(chan struct{})
	go func() {
		wm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wm.logger.Info("Workers stopped gracefully")
	case <-time.After(timeout):
		wm.logger.Warn("Worker shutdown timed out")
	}

	wm.logger.Info("Worker manager shutdown complete")
	return nil
}
