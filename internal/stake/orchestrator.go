package stake

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakeflow/internal/config"
	"stakeflow/internal/metrics"
	"stakeflow/internal/models"
)

// Gas ceilings and confirmation policy defaults
const (
	DefaultApprovalGasLimit = 100_000
	DefaultStakeGasLimit    = 500_000
	DefaultApprovalTimeout  = 2 * time.Minute
	DefaultAttempts         = 3
	DefaultAttemptTimeout   = 2 * time.Minute
	DefaultPollInterval     = 2 * time.Second
	DefaultRetryDelay       = 3 * time.Second
	DefaultFinalTimeout     = 3 * time.Minute
	DefaultSinkTimeout      = 10 * time.Second
)

// Gateway is the chain access the orchestrator needs
type Gateway interface {
	ReceiptFetcher
	Account() common.Address
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error)
	Stake(ctx context.Context, token common.Address, amount *big.Int, adapter common.Address, gasLimit uint64) (common.Hash, error)
}

// Sink durably stores confirmed transaction records and returns the stored id
type Sink interface {
	Save(ctx context.Context, record models.TransactionRecord) (string, error)
}

// ConfirmPolicy bounds the receipt polling for a stake transaction:
// Attempts bounded waits separated by RetryDelay, then one final wait of FinalTimeout.
type ConfirmPolicy struct {
	Attempts       int
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	RetryDelay     time.Duration
	FinalTimeout   time.Duration
}

// Options configures an Orchestrator
type Options struct {
	ApprovalGasLimit uint64
	StakeGasLimit    uint64
	ApprovalTimeout  time.Duration
	Confirm          ConfirmPolicy
	SinkTimeout      time.Duration

	// OnTransition, if set, receives a snapshot after every state change
	OnTransition func(State)
}

// DefaultOptions returns the production gas ceilings and timeouts
func DefaultOptions() Options {
	return Options{
		ApprovalGasLimit: DefaultApprovalGasLimit,
		StakeGasLimit:    DefaultStakeGasLimit,
		ApprovalTimeout:  DefaultApprovalTimeout,
		Confirm: ConfirmPolicy{
			Attempts:       DefaultAttempts,
			AttemptTimeout: DefaultAttemptTimeout,
			PollInterval:   DefaultPollInterval,
			RetryDelay:     DefaultRetryDelay,
			FinalTimeout:   DefaultFinalTimeout,
		},
		SinkTimeout: DefaultSinkTimeout,
	}
}

// Result is returned by a successful stake
type Result struct {
	TxHash   common.Hash
	Receipt  *types.Receipt
	Record   models.TransactionRecord
	RecordID string
	// SinkErr is set when the record could not be persisted.
	// The stake itself succeeded on chain regardless.
	SinkErr error
}

// Orchestrator drives approve -> stake -> confirm -> persist for a single signer.
// One attempt runs at a time per Orchestrator.
type Orchestrator struct {
	gateway Gateway
	sink    Sink
	network *config.NetworkConfig
	opts    Options
	poller  *Poller
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	running bool
}

// NewOrchestrator creates an orchestrator. A nil gateway is reported at Stake time.
func NewOrchestrator(gateway Gateway, sink Sink, network *config.NetworkConfig, opts Options, logger *zap.Logger) *Orchestrator {
	logger = logger.Named("orchestrator")

	var poller *Poller
	if gateway != nil {
		poller = NewPoller(gateway, logger.Named("poller"))
	}

	return &Orchestrator{
		gateway: gateway,
		sink:    sink,
		network: network,
		opts:    opts,
		poller:  poller,
		logger:  logger,
		state:   State{Step: StepIdle},
	}
}

// State returns a snapshot of the current attempt
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsLoading reports whether an attempt is approving or staking
func (o *Orchestrator) IsLoading() bool {
	return o.State().Step.IsLoading()
}

// Reset returns the state machine to idle, clearing error and tx hash
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAttemptInFlight
	}
	o.state = State{Step: StepIdle}
	snapshot := o.state
	o.mu.Unlock()

	o.notify(snapshot)
	return nil
}

// Stake runs one stake attempt to a terminal state.
// Every failure is returned as *Error and is also reflected in State.
func (o *Orchestrator) Stake(ctx context.Context, req models.StakeRequest) (*Result, error) {
	if o.gateway == nil || o.poller == nil {
		return nil, newError(CodeConfiguration, "", ErrNoClient)
	}
	if o.network == nil {
		return nil, newError(CodeConfiguration, "", ErrNoNetwork)
	}
	account := o.gateway.Account()
	if account == (common.Address{}) {
		return nil, newError(CodeConfiguration, "", ErrNoSigner)
	}

	// Records always carry the network the transactions are sent on
	if req.Network == "" {
		req.Network = o.network.Name
	}
	if req.Network != o.network.Name {
		return nil, newError(CodeConfiguration, "",
			fmt.Errorf("%w: request targets %q, orchestrator is configured for %q", ErrNetworkMismatch, req.Network, o.network.Name))
	}

	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.finish()

	logger := o.logger.With(
		zap.String("protocol", req.Protocol),
		zap.String("token", string(req.Token)),
		zap.String("amount", req.Amount),
		zap.String("network", req.Network))

	// Approving
	token, amount, err := o.resolve(req, logger)
	if err != nil {
		return nil, o.fail(req, err)
	}
	if !common.IsHexAddress(req.AdapterAddress) {
		return nil, o.fail(req, newError(CodeInvalidAdapter, "", fmt.Errorf("invalid adapter address %q", req.AdapterAddress)))
	}
	adapter := common.HexToAddress(req.AdapterAddress)
	router := common.HexToAddress(o.network.RouterAddress)

	logger.Info("Approving token spend (unlimited)",
		zap.String("token_address", token.Hex()),
		zap.String("spender", router.Hex()))

	approveHash, err := o.gateway.Approve(ctx, token, router, math.MaxBig256, o.opts.ApprovalGasLimit)
	if err != nil {
		return nil, o.fail(req, newError(CodeSubmission, "", err))
	}
	logger.Info("Approval tx sent", zap.String("tx_hash", approveHash.Hex()))

	approval, err := o.poller.WaitForReceipt(ctx, approveHash, o.opts.ApprovalTimeout, o.opts.Confirm.PollInterval)
	if err != nil {
		return nil, o.fail(req, newError(CodeConfirmationFailed, "", fmt.Errorf("approval %s not confirmed: %w", approveHash.Hex(), err)))
	}
	if approval.Status != types.ReceiptStatusSuccessful {
		return nil, o.fail(req, newError(CodeApprovalReverted, "",
			fmt.Errorf("approval %s reverted on chain, check %s", approveHash.Hex(), o.network.TxURL(approveHash.Hex()))))
	}
	logger.Info("Approval confirmed", zap.String("tx_hash", approveHash.Hex()))

	// Staking
	o.transition(func(s *State) { s.Step = StepStaking })

	logger.Info("Staking tokens",
		zap.String("token_address", token.Hex()),
		zap.String("amount_base_units", amount.String()),
		zap.String("adapter", adapter.Hex()),
		zap.String("router", router.Hex()))

	stakeHash, err := o.gateway.Stake(ctx, token, amount, adapter, o.opts.StakeGasLimit)
	if err != nil {
		return nil, o.fail(req, newError(CodeSubmission, "", err))
	}
	txHash := stakeHash.Hex()
	o.transition(func(s *State) { s.TxHash = txHash })
	logger.Info("Stake tx sent, waiting for confirmation", zap.String("tx_hash", txHash))

	receipt, err := o.confirm(ctx, stakeHash, logger)
	if err != nil {
		return nil, o.fail(req, newError(CodeConfirmationFailed, txHash, err))
	}

	logger.Info("Transaction receipt received",
		zap.String("tx_hash", txHash),
		zap.Uint64("status", receipt.Status),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.String("block_number", blockNumber(receipt)))

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, o.fail(req, newError(CodeReverted, txHash, revertedError(txHash, o.network.TxURL(txHash))))
	}

	record, err := models.NewConfirmedRecord(account.Hex(), token.Hex(), req, receipt)
	if err != nil {
		return nil, o.fail(req, newError(CodeReverted, txHash, err))
	}

	o.transition(func(s *State) { s.Step = StepSuccess })
	metrics.StakeAttempts.WithLabelValues(req.Network, string(req.Token), string(StepSuccess)).Inc()
	logger.Info("Transaction confirmed on chain", zap.String("tx_hash", txHash))

	result := &Result{
		TxHash:  stakeHash,
		Receipt: receipt,
		Record:  record,
	}
	result.RecordID, result.SinkErr = o.persist(ctx, record, logger)

	return result, nil
}

// resolve finds the token address and converts the amount to base units
func (o *Orchestrator) resolve(req models.StakeRequest, logger *zap.Logger) (common.Address, *big.Int, error) {
	address, decimals, known := o.network.ResolveToken(req.Token)
	if !known {
		logger.Warn("Token not in network table, using request address and default decimals",
			zap.Uint8("decimals", decimals))
		address = req.TokenAddress
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, nil, newError(CodeUnrecognizedAsset, "", fmt.Errorf("unrecognized asset %q", req.Token))
	}

	amount, err := ParseUnits(req.Amount, decimals)
	if err != nil {
		return common.Address{}, nil, newError(CodeInvalidAmount, "", err)
	}
	if amount.Sign() <= 0 {
		return common.Address{}, nil, newError(CodeInvalidAmount, "", fmt.Errorf("amount must be positive: %q", req.Amount))
	}

	return common.HexToAddress(address), amount, nil
}

// confirm applies the bounded-retry-then-escalate policy to one transaction hash.
// The transaction is never resubmitted.
func (o *Orchestrator) confirm(ctx context.Context, txHash common.Hash, logger *zap.Logger) (*types.Receipt, error) {
	policy := o.opts.Confirm

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		metrics.ConfirmationAttempts.WithLabelValues(o.network.Name, "bounded").Inc()

		receipt, err := o.poller.WaitForReceipt(ctx, txHash, policy.AttemptTimeout, policy.PollInterval)
		if err == nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt == policy.Attempts {
			logger.Warn("Max retries reached, making final attempt",
				zap.String("tx_hash", txHash.Hex()),
				zap.Int("retries", attempt),
				zap.Error(err))
			break
		}

		logger.Warn("Receipt fetch failed, retrying",
			zap.String("tx_hash", txHash.Hex()),
			zap.Int("retry", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.RetryDelay):
		}
	}

	metrics.ConfirmationAttempts.WithLabelValues(o.network.Name, "final").Inc()

	receipt, err := o.poller.WaitForReceipt(ctx, txHash, policy.FinalTimeout, policy.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmationExhausted, err)
	}
	return receipt, nil
}

// persist pushes the record to the sink. Failures are reported, never fatal.
func (o *Orchestrator) persist(ctx context.Context, record models.TransactionRecord, logger *zap.Logger) (string, error) {
	if o.sink == nil {
		logger.Warn("No transaction sink configured, record not persisted", zap.String("tx_hash", record.TxHash))
		return "", nil
	}

	sinkCtx, cancel := context.WithTimeout(ctx, o.opts.SinkTimeout)
	defer cancel()

	id, err := o.sink.Save(sinkCtx, record)
	if err == nil {
		logger.Info("Transaction saved to sink", zap.String("tx_hash", record.TxHash), zap.String("id", id))
		return id, nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		metrics.SinkFailures.WithLabelValues(record.Network, "timeout").Inc()
		logger.Warn("Transaction sink timed out, record not persisted",
			zap.String("tx_hash", record.TxHash),
			zap.Duration("timeout", o.opts.SinkTimeout),
			zap.Error(err))
	} else {
		metrics.SinkFailures.WithLabelValues(record.Network, "error").Inc()
		logger.Error("Failed to save transaction to sink",
			zap.String("tx_hash", record.TxHash),
			zap.Error(err))
	}

	return "", fmt.Errorf("failed to save transaction %s: %w", record.TxHash, err)
}

// begin starts a new attempt: clears the previous outcome and enters approving
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return newError(CodeBusy, "", ErrAttemptInFlight)
	}
	o.running = true
	o.state = State{Step: StepIdle}
	o.mu.Unlock()

	o.transition(func(s *State) { s.Step = StepApproving })
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// fail moves the attempt to error and records the failure
func (o *Orchestrator) fail(req models.StakeRequest, err error) error {
	var stakeErr *Error
	if !errors.As(err, &stakeErr) {
		stakeErr = newError(CodeSubmission, "", err)
	}

	o.transition(func(s *State) {
		s.Step = StepError
		s.Error = stakeErr.Error()
		s.Code = stakeErr.Code
		if stakeErr.TxHash != "" {
			s.TxHash = stakeErr.TxHash
		}
	})

	metrics.StakeAttempts.WithLabelValues(req.Network, string(req.Token), string(stakeErr.Code)).Inc()
	o.logger.Error("Staking error",
		zap.String("code", string(stakeErr.Code)),
		zap.String("tx_hash", stakeErr.TxHash),
		zap.Error(stakeErr.Err))

	return stakeErr
}

// transition applies update under the lock and notifies the observer.
// Step changes outside validTransitions are rejected.
func (o *Orchestrator) transition(update func(*State)) {
	o.mu.Lock()
	next := o.state
	update(&next)
	if next.Step != o.state.Step && !canTransition(o.state.Step, next.Step) {
		from := o.state.Step
		o.mu.Unlock()
		o.logger.DPanic("Invalid stake state transition",
			zap.String("from", string(from)),
			zap.String("to", string(next.Step)))
		return
	}
	o.state = next
	o.mu.Unlock()

	o.notify(next)
}

func (o *Orchestrator) notify(s State) {
	if o.opts.OnTransition != nil {
		o.opts.OnTransition(s)
	}
}

func blockNumber(r *types.Receipt) string {
	if r.BlockNumber == nil {
		return ""
	}
	return r.BlockNumber.String()
}
