package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stakeflow/internal/metrics"
	"stakeflow/internal/models"
)

// Monitor polls the store for records waiting for verification
type Monitor struct {
	manager *WorkerManager
	logger  *zap.Logger

	// Channel to send records ready for verification
	readyRecords chan *models.StoredTransaction

	// ids queued or being verified, so a slow record is not queued twice
	mu     sync.Mutex
	queued map[string]struct{}
}

// NewMonitor creates a new verification monitor
func NewMonitor(manager *WorkerManager) *Monitor {
	return &Monitor{
		manager:      manager,
		logger:       manager.logger.Named("monitor"),
		readyRecords: make(chan *models.StoredTransaction, QueueSize),
		queued:       make(map[string]struct{}),
	}
}

// Run starts the monitor polling loop
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Monitor started",
		zap.Duration("poll_interval", m.manager.pollInterval))

	ticker := time.NewTicker(m.manager.pollInterval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopping")
			close(m.readyRecords)
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll executes one polling cycle
func (m *Monitor) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, MonitorTimeout)
	defer cancel()

	if count, err := m.manager.verifier.PendingCount(pollCtx); err == nil {
		metrics.PendingVerifications.Set(float64(count))
	} else {
		m.logger.Error("Failed to count pending verifications", zap.Error(err))
	}

	records, err := m.manager.verifier.Pending(pollCtx, m.manager.batchSize)
	if err != nil {
		m.logger.Error("Failed to get pending verifications", zap.Error(err))
		return
	}

	if len(records) == 0 {
		return
	}

	m.logger.Debug("Queueing pending records", zap.Int("count", len(records)))

	for i := range records {
		rec := &records[i]
		if !m.markQueued(rec.ID) {
			continue
		}

		select {
		case m.readyRecords <- rec:
		case <-ctx.Done():
			return
		default:
			m.done(rec.ID)
			m.logger.Warn("Executor channel full, skipping record",
				zap.String("id", rec.ID),
				zap.String("tx_hash", rec.TxHash))
		}
	}
}

func (m *Monitor) markQueued(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[id]; ok {
		return false
	}
	m.queued[id] = struct{}{}
	return true
}

// done releases a record so later polls may queue it again
func (m *Monitor) done(id string) {
	m.mu.Lock()
	delete(m.queued, id)
	m.mu.Unlock()
}
